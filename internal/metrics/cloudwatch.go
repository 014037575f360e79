// Package metrics publishes maintenance-run counters to CloudWatch and
// Prometheus.
package metrics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const (
	// Namespace is the CloudWatch namespace for all fleetcare metrics.
	Namespace = "Fleetcare"

	MetricRunDuration = "RunDuration"
	MetricRunFailed   = "RunFailed"
	DimJobType        = "JobType"
	JobTypeRun        = "maintenance_run"
)

// CloudWatchClient abstracts PutMetricData for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRecorder emits one datum per run counter plus duration and
// failure, all dimensioned by JobType.
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchRecorder creates a recorder publishing to namespace, or
// Namespace if empty.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRecorder {
	if namespace == "" {
		namespace = Namespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRecorder{client: client, namespace: namespace, logger: logger}
}

// RecordRun publishes the run. Failures are logged, never returned.
func (r *CloudWatchRecorder) RecordRun(ctx context.Context, counts map[string]int, duration time.Duration, failed bool) {
	dims := []cwtypes.Dimension{{Name: aws.String(DimJobType), Value: aws.String(JobTypeRun)}}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	data := make([]cwtypes.MetricDatum, 0, len(counts)+2)
	for _, name := range names {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(metricName(name)),
			Value:      aws.Float64(float64(counts[name])),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		})
	}
	failedValue := 0.0
	if failed {
		failedValue = 1
	}
	data = append(data,
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricRunDuration),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricRunFailed),
			Value:      aws.Float64(failedValue),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		},
	)

	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(r.namespace),
		MetricData: data,
	})
	if err != nil {
		r.logger.WarnContext(ctx, "failed to publish run metrics",
			"error", err,
			"namespace", r.namespace,
			"datums", len(data),
		)
	}
}

// metricName converts a snake_case counter key to CloudWatch CamelCase:
// "requests_created" -> "RequestsCreated".
func metricName(key string) string {
	out := make([]byte, 0, len(key))
	upper := true
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c == '_' {
			upper = true
			continue
		}
		if upper && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		out = append(out, c)
	}
	return string(out)
}
