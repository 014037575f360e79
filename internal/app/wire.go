// Package app assembles the maintenance Engine from Config for the
// fleetcare binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleetcare/internal/config"
	"fleetcare/internal/db"
	"fleetcare/internal/external"
	"fleetcare/internal/metrics"
	"fleetcare/internal/notify"
	"fleetcare/internal/scheduler"
)

// Options adjusts what Build wires.
type Options struct {
	// ExtraRecorders receive run metrics alongside CloudWatch.
	ExtraRecorders []metrics.Recorder
	// SkipAWS disables the SQS notifier and CloudWatch metrics, for CLI
	// runs without credentials.
	SkipAWS bool
}

// OpenPool connects to Postgres with the configured pool settings.
func OpenPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	return db.Open(ctx, cfg.URL.Unmask(), db.PoolOptions{
		MaxConns:        cfg.MaxConns,
		ConnectTimeout:  cfg.ConnectTimeout,
		MaxConnIdleTime: cfg.MaxConnIdleTime,
	})
}

// EngineConfig maps the scheduler section onto scheduler.EngineConfig.
func EngineConfig(cfg *config.Config) scheduler.EngineConfig {
	s := cfg.Scheduler
	return scheduler.EngineConfig{
		WindowDays:         s.WindowDays,
		Concurrency:        s.Concurrency,
		InspectionLeadTime: s.InspectionLeadTime,
		UpcomingWindowDays: s.UpcomingWindowDays,
		StoreTimeout:       s.StoreTimeout,
		ProviderTimeout:    s.ProviderTimeout,
		AdvisoryTimeout:    cfg.Advisory.Timeout,
		NotifyTimeout:      s.NotifyTimeout,
	}
}

// Build wires repositories, the optional advisory client, notifier and
// metrics into an Engine.
func Build(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger, opts Options) (*scheduler.Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	deps := scheduler.Dependencies{
		Assets:    db.NewAssetRepository(pool),
		Requests:  db.NewServiceRequestRepository(pool),
		Schedules: db.NewScheduleRuleRepository(pool),
		Providers: db.NewProviderLinkRepository(pool),
		History:   db.NewJobHistoryRepository(pool),
	}

	if cfg.Advisory.Enabled {
		deps.Advisory = external.NewAdvisoryClient(&http.Client{Timeout: cfg.Advisory.Timeout}, external.AdvisoryClientConfig{
			BaseURL:   cfg.Advisory.BaseURL,
			APIKey:    cfg.Advisory.APIKey.Unmask(),
			Model:     cfg.Advisory.Model,
			MaxTokens: cfg.Advisory.MaxTokens,
			Breaker: external.BreakerSettings{
				ConsecutiveFailures: cfg.Advisory.BreakerFailures,
				OpenTimeout:         cfg.Advisory.BreakerOpenTimeout,
			},
			Logger: logger,
		})
	}

	recorders := append([]metrics.Recorder(nil), opts.ExtraRecorders...)

	if !opts.SkipAWS {
		awsCfg, err := loadAWS(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		if cfg.AWS.NotificationQueue != "" {
			client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
				if cfg.AWS.EndpointURL != "" {
					o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
				}
			})
			deps.Notifier = notify.NewSQSNotifier(client, cfg.AWS.NotificationQueue, cfg.AWS.CompressThreshold, logger)
		}
		if cfg.Observability.EnableCloudWatch {
			client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
				if cfg.AWS.EndpointURL != "" {
					o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
				}
			})
			recorders = append(recorders, metrics.NewCloudWatchRecorder(client, cfg.Observability.MetricNamespace, logger))
		}
	}
	if m := metrics.NewMulti(recorders...); len(m) > 0 {
		deps.Metrics = m
	}

	logger.InfoContext(ctx, "engine wired",
		"advisory", deps.Advisory != nil,
		"notifier", deps.Notifier != nil,
		"metric_sinks", len(recorders),
	)
	return scheduler.NewEngine(deps, EngineConfig(cfg), logger), nil
}

func loadAWS(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	lctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	awsCfg, err := awsconfig.LoadDefaultConfig(lctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return awsCfg, nil
}
