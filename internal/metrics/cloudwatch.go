// Package metrics publishes trigger, scheduler and API telemetry to
// CloudWatch. Publishing is best effort: failures are logged and never
// returned to the caller.
package metrics

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"farewatch/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Recorder is the set of metrics the service emits.
type Recorder interface {
	RecordTriggerOutcome(ctx context.Context, outcome *types.TriggerOutcome)
	RecordWatchesEnqueued(ctx context.Context, count int)
	RecordAPILatency(ctx context.Context, endpoint string, d time.Duration)
}

// CloudWatchRecorder implements Recorder with PutMetricData.
//
// Metrics emitted:
//   - TriggerOutcome: Dims {Action, Reason, Provider}, one per trigger run
//   - SearchedCombinations: Dims {Provider}
//   - SearchFailure: Dims {Provider}, value is the number of failed
//     combination searches, omitted when none failed
//   - NotificationFailure: no dims, when a NOTIFY run could not deliver
//   - WatchesEnqueued: no dims, per scheduler tick
//   - APILatency: Dims {Endpoint}
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchRecorder creates a CloudWatchRecorder publishing to namespace,
// or to types.MetricNamespace when namespace is empty.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchRecorder {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = types.NewSlogAdapter(nil)
	}
	return &CloudWatchRecorder{client: client, namespace: namespace, logger: logger}
}

// RecordTriggerOutcome emits the per-run metrics in a single PutMetricData call.
func (m *CloudWatchRecorder) RecordTriggerOutcome(ctx context.Context, o *types.TriggerOutcome) {
	if o == nil {
		return
	}
	provider := o.Provider
	if provider == "" {
		provider = "none"
	}
	providerDim := dim(types.DimProvider, provider)

	data := []cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricTriggerOutcome),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				dim(types.DimAction, string(o.Action)),
				dim(types.DimReason, string(o.Reason)),
				providerDim,
			},
		},
		{
			MetricName: aws.String(types.MetricSearchedCombinations),
			Value:      aws.Float64(float64(o.SearchedCombinations)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{providerDim},
		},
	}
	if o.SearchFailures > 0 {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricSearchFailure),
			Value:      aws.Float64(float64(o.SearchFailures)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{providerDim},
		})
	}
	if o.Action == types.ActionNotify && !o.NotificationSent {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricNotificationFailure),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
		})
	}

	m.put(ctx, data, "action", string(o.Action), "reason", string(o.Reason))
}

// RecordWatchesEnqueued emits the number of watches a scheduler tick queued.
func (m *CloudWatchRecorder) RecordWatchesEnqueued(ctx context.Context, count int) {
	m.put(ctx, []cwtypes.MetricDatum{{
		MetricName: aws.String(types.MetricWatchesEnqueued),
		Value:      aws.Float64(float64(count)),
		Unit:       cwtypes.StandardUnitCount,
	}}, "count", count)
}

// RecordAPILatency emits the handling time of one API request in milliseconds.
func (m *CloudWatchRecorder) RecordAPILatency(ctx context.Context, endpoint string, d time.Duration) {
	m.put(ctx, []cwtypes.MetricDatum{{
		MetricName: aws.String(types.MetricAPILatency),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{dim(types.DimEndpoint, endpoint)},
	}}, "endpoint", endpoint)
}

func (m *CloudWatchRecorder) put(ctx context.Context, data []cwtypes.MetricDatum, logArgs ...any) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.Error("failed to publish metrics", append([]any{"error", err.Error()}, logArgs...)...)
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

// Noop discards all metrics. Used locally and when ENABLE_METRICS is false.
type Noop struct{}

func (Noop) RecordTriggerOutcome(context.Context, *types.TriggerOutcome) {}
func (Noop) RecordWatchesEnqueued(context.Context, int)                  {}
func (Noop) RecordAPILatency(context.Context, string, time.Duration)     {}

var (
	_ Recorder = (*CloudWatchRecorder)(nil)
	_ Recorder = Noop{}
)
