package observability

// Metric name prefixes
const (
	MetricPrefix = "settlement"
)

// Metric names
const (
	// Payout metrics
	PayoutRunsStartedTotal  = MetricPrefix + ".payout.runs_started_total"
	PayoutRunsFinishedTotal = MetricPrefix + ".payout.runs_finished_total"
	PayoutBatchDuration     = MetricPrefix + ".payout.batch_duration"

	// Receipt metrics
	ReceiptsTotal      = MetricPrefix + ".receipts.total"
	ReceiptAmountTotal = MetricPrefix + ".receipts.net_amount_total"

	// Rule engine metrics
	RuleFailuresTotal = MetricPrefix + ".rules.failures_total"

	// NATS metrics
	NATSMessagesPublishedTotal = MetricPrefix + ".nats.messages_published_total"
)

// Label keys
const (
	LabelStatus    = "status"
	LabelDryRun    = "dry_run"
	LabelEngine    = "engine"
	LabelEventType = "event_type"
	LabelSuccess   = "success"
)
