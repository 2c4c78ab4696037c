package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"settlement/config"
	"settlement/domain/entities"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

// MetricsProvider manages OpenTelemetry metrics for the settlement service
type MetricsProvider struct {
	config        *config.Config
	reader        sdkmetric.Reader
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	enabled       bool
	initialized   bool
	mu            sync.RWMutex

	// Metric instruments
	runsStartedCounter   metric.Int64Counter
	runsFinishedCounter  metric.Int64Counter
	batchDurationHist    metric.Float64Histogram
	receiptsCounter      metric.Int64Counter
	receiptAmountCounter metric.Float64Counter
	ruleFailuresCounter  metric.Int64Counter
	natsPublishedCounter metric.Int64Counter
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// NewMetricsProviderWithReader creates a provider that exports through reader instead of
// the configured exporter
func NewMetricsProviderWithReader(cfg *config.Config, reader sdkmetric.Reader) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
		reader: reader,
	}
}

// Initialize sets up the OpenTelemetry metrics provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		log.Debug("Metrics provider already initialized")
		return nil
	}

	if !mp.config.OTelEnabled && mp.reader == nil {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	reader := mp.reader
	if reader == nil {
		var exporter sdkmetric.Exporter
		switch mp.config.OTelExporterType {
		case "console":
			exporter, err = stdoutmetric.New()
			if err != nil {
				return fmt.Errorf("failed to create console exporter: %w", err)
			}
			log.Info("Using console metric exporter")

		case "otlp":
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			exporter, err = otlpmetricgrpc.New(ctx,
				otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
				otlpmetricgrpc.WithInsecure(),
			)
			if err != nil {
				return fmt.Errorf("failed to create OTLP exporter: %w", err)
			}
			log.WithField("endpoint", mp.config.OTelOTLPEndpoint).Info("Using OTLP metric exporter")

		case "none":
			log.Info("Metrics export disabled (exporter_type='none')")
			mp.initialized = true
			return nil

		default:
			return fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
		}

		reader = sdkmetric.NewPeriodicReader(
			exporter,
			sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMillis)*time.Millisecond),
		)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp.meterProvider)
	mp.meter = mp.meterProvider.Meter("settlement")

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.enabled = true
	mp.initialized = true
	log.Info("Metrics provider initialized successfully")
	return nil
}

// createInstruments creates all metric instruments
func (mp *MetricsProvider) createInstruments() error {
	var err error

	mp.runsStartedCounter, err = mp.meter.Int64Counter(
		PayoutRunsStartedTotal,
		metric.WithDescription("Total number of payout runs started"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create runs started counter: %w", err)
	}

	mp.runsFinishedCounter, err = mp.meter.Int64Counter(
		PayoutRunsFinishedTotal,
		metric.WithDescription("Total number of payout runs that reached a terminal status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create runs finished counter: %w", err)
	}

	mp.batchDurationHist, err = mp.meter.Float64Histogram(
		PayoutBatchDuration,
		metric.WithDescription("Duration of payout batches in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return fmt.Errorf("failed to create batch duration histogram: %w", err)
	}

	mp.receiptsCounter, err = mp.meter.Int64Counter(
		ReceiptsTotal,
		metric.WithDescription("Total number of receipts by final status"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create receipts counter: %w", err)
	}

	mp.receiptAmountCounter, err = mp.meter.Float64Counter(
		ReceiptAmountTotal,
		metric.WithDescription("Net amount of receipts by final status"),
	)
	if err != nil {
		return fmt.Errorf("failed to create receipt amount counter: %w", err)
	}

	mp.ruleFailuresCounter, err = mp.meter.Int64Counter(
		RuleFailuresTotal,
		metric.WithDescription("Total number of rule formula evaluation failures"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create rule failures counter: %w", err)
	}

	mp.natsPublishedCounter, err = mp.meter.Int64Counter(
		NATSMessagesPublishedTotal,
		metric.WithDescription("Total number of NATS messages published"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create NATS messages published counter: %w", err)
	}

	return nil
}

// Shutdown flushes and shuts down the metrics provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordRuleFailure records a withholding or fee formula that failed to evaluate
func (mp *MetricsProvider) RecordRuleFailure(engine string) {
	if !mp.isEnabled() {
		return
	}
	mp.ruleFailuresCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelEngine, engine)),
	)
}

// RecordPayoutRunStarted records a payout run moving to IN_PROGRESS
func (mp *MetricsProvider) RecordPayoutRunStarted(isDryRun bool) {
	if !mp.isEnabled() {
		return
	}
	mp.runsStartedCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Bool(LabelDryRun, isDryRun)),
	)
}

// RecordPayoutRunFinished records a payout run's terminal status
func (mp *MetricsProvider) RecordPayoutRunFinished(status entities.PayoutRunStatus, isDryRun bool) {
	if !mp.isEnabled() {
		return
	}
	mp.runsFinishedCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelStatus, string(status)),
			attribute.Bool(LabelDryRun, isDryRun),
		),
	)
}

// RecordReceipt records a receipt reaching a final status
func (mp *MetricsProvider) RecordReceipt(status entities.ReceiptStatus, amount decimal.Decimal) {
	if !mp.isEnabled() {
		return
	}
	attrs := metric.WithAttributes(attribute.String(LabelStatus, string(status)))
	mp.receiptsCounter.Add(context.Background(), 1, attrs)
	mp.receiptAmountCounter.Add(context.Background(), amount.InexactFloat64(), attrs)
}

// RecordBatchDuration records how long one batch of transfers took
func (mp *MetricsProvider) RecordBatchDuration(size int, duration time.Duration) {
	if !mp.isEnabled() {
		return
	}
	mp.batchDurationHist.Record(context.Background(), duration.Seconds(),
		metric.WithAttributes(attribute.Int("batch_size", size)),
	)
}

// RecordEventPublished records an event forwarded to NATS
func (mp *MetricsProvider) RecordEventPublished(eventType string, success bool) {
	if !mp.isEnabled() {
		return
	}
	mp.natsPublishedCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelEventType, eventType),
			attribute.Bool(LabelSuccess, success),
		),
	)
}

// isEnabled checks if metrics are enabled and initialized
func (mp *MetricsProvider) isEnabled() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.enabled
}
