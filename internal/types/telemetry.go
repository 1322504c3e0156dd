package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricTriggerOutcome       = "TriggerOutcome"
	MetricSearchedCombinations = "SearchedCombinations"
	MetricSearchFailure        = "SearchFailure"
	MetricNotificationFailure  = "NotificationFailure"
	MetricAPILatency           = "APILatency"
	MetricWatchesEnqueued      = "WatchesEnqueued"

	// Dimension Keys
	DimAction   = "Action"
	DimReason   = "Reason"
	DimProvider = "Provider"
	DimEndpoint = "Endpoint"

	// Metric Namespace
	MetricNamespace = "FareWatch"
)
