package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"settlement/events"
	"settlement/infrastructure/retry"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedMessage struct {
	subject string
	data    []byte
}

// fakeMessagePublisher records messages and fails the first failures calls with err
type fakeMessagePublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	failures int
	err      error
	calls    int
}

func (p *fakeMessagePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return p.err
	}
	p.messages = append(p.messages, publishedMessage{subject: subject, data: data})
	return nil
}

func (p *fakeMessagePublisher) published() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMessage(nil), p.messages...)
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string][]bool
}

func (o *recordingObserver) RecordEventPublished(eventType string, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[string][]bool)
	}
	o.outcomes[eventType] = append(o.outcomes[eventType], success)
}

var forwarderNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestEventSubjectMapper_MapsEverySettlementEvent(t *testing.T) {
	mapper := NewEventSubjectMapper()

	tests := []struct {
		event events.Event
		want  string
	}{
		{events.DistributionCreatedEvent{}, "settlement.distribution.created"},
		{events.DistributionApprovedEvent{}, "settlement.distribution.approved"},
		{events.DistributionCancelledEvent{}, "settlement.distribution.cancelled"},
		{events.DistributionExecutedEvent{}, "settlement.distribution.executed"},
		{events.DistributionFailedEvent{}, "settlement.distribution.failed"},
		{events.PayoutRunCompletedEvent{}, "settlement.payout.run_completed"},
		{events.ReceiptFailedEvent{}, "settlement.payout.receipt_failed"},
		{events.FeeCollectedEvent{}, "settlement.fee.collected"},
	}

	for _, tt := range tests {
		t.Run(string(tt.event.Type()), func(t *testing.T) {
			assert.Equal(t, tt.want, mapper.MapEventToSubject(tt.event))
		})
	}

	assert.Len(t, tests, len(events.AllEventTypes()))
}

func TestNATSEventForwarder_Forward(t *testing.T) {
	publisher := &fakeMessagePublisher{}
	forwarder := NewNATSEventForwarder(publisher, NewEventSubjectMapper(), clockwork.NewFakeClockAt(forwarderNow)).
		WithRetryConfig(fastRetry())

	event := events.DistributionExecutedEvent{
		DistributionID:    42,
		AssetID:           "asset-solar-1",
		PayoutRunID:       7,
		DistributedAmount: decimal.NewFromInt(10000),
		NetAmount:         decimal.NewFromInt(8500),
	}
	require.NoError(t, forwarder.Forward(context.Background(), event))

	messages := publisher.published()
	require.Len(t, messages, 1)
	assert.Equal(t, "settlement.distribution.executed", messages[0].subject)

	var envelope EventEnvelope
	require.NoError(t, json.Unmarshal(messages[0].data, &envelope))
	assert.NotEmpty(t, envelope.EventID)
	assert.Equal(t, "distribution.executed", envelope.EventType)
	assert.Equal(t, "settlement", envelope.SourceService)
	assert.True(t, forwarderNow.Equal(envelope.Timestamp))

	var payload events.DistributionExecutedEvent
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	assert.Equal(t, int64(42), payload.DistributionID)
	assert.True(t, decimal.NewFromInt(8500).Equal(payload.NetAmount))
}

func TestNATSEventForwarder_RetriesTransientFailures(t *testing.T) {
	publisher := &fakeMessagePublisher{failures: 2, err: nats.ErrTimeout}
	forwarder := NewNATSEventForwarder(publisher, NewEventSubjectMapper(), nil).WithRetryConfig(fastRetry())

	err := forwarder.Forward(context.Background(), events.FeeCollectedEvent{FeeCaptureID: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, publisher.calls)
	assert.Len(t, publisher.published(), 1)

	t.Run("permanent failure", func(t *testing.T) {
		publisher := &fakeMessagePublisher{failures: 10, err: errors.New("not connected to NATS JetStream")}
		forwarder := NewNATSEventForwarder(publisher, NewEventSubjectMapper(), nil).WithRetryConfig(fastRetry())

		err := forwarder.Forward(context.Background(), events.FeeCollectedEvent{FeeCaptureID: 3})
		require.Error(t, err)
		assert.Equal(t, 1, publisher.calls)
	})
}

func TestNATSEventForwarder_AttachForwardsBusEvents(t *testing.T) {
	bus := events.NewBus()
	publisher := &fakeMessagePublisher{}
	observer := &recordingObserver{}
	NewNATSEventForwarder(publisher, NewEventSubjectMapper(), nil).
		WithRetryConfig(fastRetry()).
		WithObserver(observer).
		Attach(bus)

	tx := events.NewTransactionalBus(bus)
	require.NoError(t, tx.Publish(events.DistributionCreatedEvent{DistributionID: 1}))
	require.NoError(t, tx.Publish(events.ReceiptFailedEvent{ReceiptID: 5, Reason: "timeout"}))
	assert.Empty(t, publisher.published())

	require.NoError(t, tx.Flush(context.Background()))
	bus.Wait()

	subjects := make([]string, 0, 2)
	for _, m := range publisher.published() {
		subjects = append(subjects, m.subject)
	}
	assert.ElementsMatch(t, []string{"settlement.distribution.created", "settlement.payout.receipt_failed"}, subjects)

	observer.mu.Lock()
	defer observer.mu.Unlock()
	assert.Equal(t, []bool{true}, observer.outcomes["distribution.created"])
	assert.Equal(t, []bool{true}, observer.outcomes["payout.receipt_failed"])
}
