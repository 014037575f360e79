package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fleetcare/internal/app"
	"fleetcare/internal/config"
	"fleetcare/internal/db"
	"fleetcare/internal/recurrence"
	"fleetcare/internal/risk"
	"fleetcare/internal/scheduler"
	"fleetcare/internal/types"
)

func newRunCommand() *cobra.Command {
	var (
		referenceTime string
		dryRun        bool
		withAWS       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one maintenance run",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := buildPayload(referenceTime)
			if err != nil {
				return err
			}
			if dryRun {
				return printJSON(cmd.OutOrStdout(), payload)
			}

			ctx := commandContext(cmd)
			cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
			if err != nil {
				return err
			}
			logger := config.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel).With("service", "fleetctl")

			pool, err := app.OpenPool(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			engine, err := app.Build(ctx, cfg, pool, logger, app.Options{SkipAWS: !withAWS})
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			if payload.ReferenceTime != nil {
				now = *payload.ReferenceTime
			}
			report, runErr := engine.Run(types.WithRunID(ctx, "cli-"+uuid.NewString()), now)
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&referenceTime, "reference-time", "", "RFC3339 instant to run as (default now)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the payload without running")
	cmd.Flags().BoolVar(&withAWS, "notify", false, "Publish notifications and CloudWatch metrics")
	return cmd
}

func buildPayload(referenceTime string) (scheduler.RunPayload, error) {
	var payload scheduler.RunPayload
	if referenceTime == "" {
		return payload, nil
	}
	t, err := time.Parse(time.RFC3339, referenceTime)
	if err != nil {
		return payload, fmt.Errorf("invalid --reference-time %q: %w", referenceTime, err)
	}
	t = t.UTC()
	payload.ReferenceTime = &t
	return payload, nil
}

func newScoreCommand() *cobra.Command {
	var (
		usage    float64
		issues   int
		downtime float64
		days     int
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a set of aggregated metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(cmd.OutOrStdout(), risk.Score(usage, issues, downtime, days))
		},
	}

	cmd.Flags().Float64Var(&usage, "usage", 0, "Usage hours in the window")
	cmd.Flags().IntVar(&issues, "issues", 0, "Issues reported in the window")
	cmd.Flags().Float64Var(&downtime, "downtime", 0, "Average daily downtime in minutes")
	cmd.Flags().IntVar(&days, "days", risk.NeverServicedDays, "Days since last maintenance")
	return cmd
}

func newRiskCommand() *cobra.Command {
	var (
		actionable bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Score every active asset without creating requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
			if err != nil {
				return err
			}
			pool, err := app.OpenPool(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			now := time.Now().UTC()
			fleet, err := db.NewAssetRepository(pool).ListActiveAssetsWithTelemetry(ctx, cfg.Scheduler.WindowDays, now)
			if err != nil {
				return err
			}
			entries := risk.Rank(fleet, now, actionable)
			if asJSON {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			writeRiskTable(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	cmd.Flags().BoolVar(&actionable, "actionable", false, "Only list high and critical assets")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func writeRiskTable(w io.Writer, entries []risk.Entry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ASSET\tSTORE\tSCORE\tTIER\tUSAGE_H\tISSUES\tDOWNTIME_MIN\tDAYS_SINCE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%.1f\t%d\t%.1f\t%d\n",
			e.AssetID, e.StoreID, e.Score, e.Tier,
			e.Inputs.UsageHours, e.Inputs.Issues, e.Inputs.AvgDowntimeMinutes, e.Inputs.DaysSinceMaintenance)
	}
	_ = tw.Flush()
}

func newRulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Preventive-maintenance rule tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newRulesNextCommand())
	return cmd
}

func newRulesNextCommand() *cobra.Command {
	var (
		unit      string
		frequency int
		from      string
		n         int
	)

	cmd := &cobra.Command{
		Use:   "next",
		Short: "List the next occurrences of a recurrence",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := time.Parse(time.DateOnly, from)
			if err != nil {
				return fmt.Errorf("invalid --from %q: %w", from, err)
			}
			dates, err := recurrence.Preview(types.RecurrenceType(strings.ToLower(unit)), frequency, start, n)
			if err != nil {
				return err
			}
			for _, d := range dates {
				fmt.Fprintln(cmd.OutOrStdout(), d.Format(time.DateOnly))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&unit, "type", "", "daily, weekly, monthly, quarterly or yearly")
	cmd.Flags().IntVar(&frequency, "frequency", 1, "Units between occurrences")
	cmd.Flags().StringVar(&from, "from", time.Now().UTC().Format(time.DateOnly), "Reference date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&n, "n", 5, "Number of occurrences")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(m *db.Migrator) error {
				applied, err := m.Up(commandContext(cmd))
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				}
				for _, v := range applied {
					fmt.Fprintf(cmd.OutOrStdout(), "applied %05d\n", v)
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(m *db.Migrator) error {
				statuses, err := m.Status(commandContext(cmd))
				if err != nil {
					return err
				}
				for _, s := range statuses {
					state := "pending"
					if s.Applied {
						state = "applied"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%05d  %-8s %s\n", s.Version, state, s.Path)
				}
				return nil
			})
		},
	})
	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(m *db.Migrator) error) error {
	ctx := commandContext(cmd)
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return err
	}
	pool, err := app.OpenPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	m, err := db.NewMigrator(pool)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			slog.Warn("closing migrator", "error", cerr)
		}
	}()
	return fn(m)
}
