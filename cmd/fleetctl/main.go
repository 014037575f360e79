// Package main implements fleetctl, the operator CLI for fleetcare.
//
// Usage:
//
//	fleetctl run                                      # one maintenance run against DATABASE_URL
//	fleetctl run --reference-time=2026-03-01T03:00:00Z
//	fleetctl run --dry-run                            # print the payload only
//	fleetctl score --usage=220 --issues=4 --downtime=75 --days=120
//	fleetctl risk --actionable                        # read-only fleet risk report
//	fleetctl rules next --type=monthly --frequency=1 --from=2026-01-31 --n=6
//	fleetctl migrate up
//	fleetctl migrate status
//
// Configuration comes from the environment (or a .env file), resolved the
// same way as the deployed binaries.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fleetctl",
		Short:         "Operate the fleetcare maintenance scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newScoreCommand())
	cmd.AddCommand(newRiskCommand())
	cmd.AddCommand(newRulesCommand())
	cmd.AddCommand(newMigrateCommand())
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
