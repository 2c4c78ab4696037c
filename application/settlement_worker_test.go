package application

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"settlement/domain/interfaces"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOperations struct {
	scheduled chan struct{}
	recurring chan struct{}
	fees      atomic.Int32
	dueErr    error
	feeErr    error
}

func newFakeOperations() *fakeOperations {
	return &fakeOperations{
		scheduled: make(chan struct{}, 10),
		recurring: make(chan struct{}, 10),
	}
}

func (f *fakeOperations) ProcessDueDistributions(ctx context.Context) (int, int, error) {
	f.scheduled <- struct{}{}
	return 1, 0, f.dueErr
}

func (f *fakeOperations) CreateRecurringDistributions(ctx context.Context) (int, error) {
	f.recurring <- struct{}{}
	return 2, nil
}

func (f *fakeOperations) CollectAutomaticFees(ctx context.Context) (*interfaces.FeeCollectionResult, error) {
	f.fees.Add(1)
	if f.feeErr != nil {
		return nil, f.feeErr
	}
	return &interfaces.FeeCollectionResult{Processed: 1, Successful: 1}, nil
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("%s did not run", what)
	}
}

func TestSettlementWorker_RunsPassesOnTicks(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	ops := newFakeOperations()
	worker := NewSettlementWorker(ops, clock, time.Minute, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stop := worker.Start(ctx)
	defer stop()

	require.NoError(t, clock.BlockUntilContext(ctx, 2))

	clock.Advance(time.Minute)
	waitFor(t, ops.scheduled, "scheduled pass")
	assert.Empty(t, ops.recurring)

	clock.Advance(59 * time.Minute)
	waitFor(t, ops.recurring, "recurring pass")
	waitFor(t, ops.scheduled, "scheduled pass")
}

func TestSettlementWorker_StopWaitsForLoop(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	ops := newFakeOperations()
	worker := NewSettlementWorker(ops, clock, time.Minute, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stop := worker.Start(ctx)
	require.NoError(t, clock.BlockUntilContext(ctx, 2))

	stop()
	// Calling stop twice is safe
	stop()

	clock.Advance(time.Hour)
	assert.Empty(t, ops.scheduled)
	assert.Empty(t, ops.recurring)
}

func TestSettlementWorker_ScheduledPassToleratesErrors(t *testing.T) {
	ops := newFakeOperations()
	ops.dueErr = errors.New("database unavailable")
	ops.feeErr = errors.New("fee repository unavailable")
	worker := NewSettlementWorker(ops, clockwork.NewFakeClockAt(testNow), time.Minute, time.Hour)

	assert.NotPanics(t, func() { worker.RunScheduledPass(context.Background()) })
	assert.Len(t, ops.scheduled, 1)
	assert.Equal(t, int32(1), ops.fees.Load())
}
