package observability

import (
	"context"
	"testing"
	"time"

	"settlement/config"
	"settlement/domain/entities"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	byName := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			byName[m.Name] = m
		}
	}
	return byName
}

func sumFor(t *testing.T, m metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)

	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.Emit() == value {
			total += dp.Value
		}
	}
	return total
}

func TestMetricsProvider_RecordsSettlementMeasurements(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := NewMetricsProviderWithReader(config.NewTestConfig(), reader)
	ctx := context.Background()
	require.NoError(t, mp.Initialize(ctx))
	defer mp.Shutdown(ctx)

	mp.RecordPayoutRunStarted(false)
	mp.RecordPayoutRunStarted(true)
	mp.RecordPayoutRunFinished(entities.PayoutRunStatusCompleted, false)
	mp.RecordReceipt(entities.ReceiptStatusCompleted, decimal.RequireFromString("125.50"))
	mp.RecordReceipt(entities.ReceiptStatusCompleted, decimal.RequireFromString("74.50"))
	mp.RecordReceipt(entities.ReceiptStatusFailed, decimal.NewFromInt(10))
	mp.RecordRuleFailure("withholding")
	mp.RecordBatchDuration(10, 1500*time.Millisecond)
	mp.RecordEventPublished("distribution.executed", true)

	metrics := collect(t, reader)

	assert.Equal(t, int64(1), sumFor(t, metrics[PayoutRunsStartedTotal], LabelDryRun, "true"))
	assert.Equal(t, int64(1), sumFor(t, metrics[PayoutRunsStartedTotal], LabelDryRun, "false"))
	assert.Equal(t, int64(1), sumFor(t, metrics[PayoutRunsFinishedTotal], LabelStatus, "COMPLETED"))
	assert.Equal(t, int64(2), sumFor(t, metrics[ReceiptsTotal], LabelStatus, "COMPLETED"))
	assert.Equal(t, int64(1), sumFor(t, metrics[ReceiptsTotal], LabelStatus, "FAILED"))
	assert.Equal(t, int64(1), sumFor(t, metrics[RuleFailuresTotal], LabelEngine, "withholding"))
	assert.Equal(t, int64(1), sumFor(t, metrics[NATSMessagesPublishedTotal], LabelEventType, "distribution.executed"))

	amounts, ok := metrics[ReceiptAmountTotal].Data.(metricdata.Sum[float64])
	require.True(t, ok)
	var completed float64
	for _, dp := range amounts.DataPoints {
		if v, _ := dp.Attributes.Value(LabelStatus); v.AsString() == "COMPLETED" {
			completed = dp.Value
		}
	}
	assert.InDelta(t, 200.0, completed, 0.0001)

	hist, ok := metrics[PayoutBatchDuration].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
}

func TestMetricsProvider_DisabledIsNoop(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.OTelEnabled = false
	mp := NewMetricsProvider(cfg)
	require.NoError(t, mp.Initialize(context.Background()))

	assert.NotPanics(t, func() {
		mp.RecordPayoutRunStarted(false)
		mp.RecordReceipt(entities.ReceiptStatusCompleted, decimal.NewFromInt(1))
		mp.RecordBatchDuration(1, time.Second)
	})
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestMetricsProvider_UnknownExporter(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.OTelEnabled = true
	cfg.OTelExporterType = "prometheus"

	err := NewMetricsProvider(cfg).Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown exporter type")
}
