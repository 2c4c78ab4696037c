package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"settlement/domain/entities"
	"settlement/domain/interfaces"
	"settlement/domain/testhelpers"
	"settlement/events"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func createRequest() interfaces.CreateDistributionRequest {
	return interfaces.CreateDistributionRequest{
		AssetID:       "asset-solar-1",
		AssetName:     "Solar Farm I",
		Type:          entities.DistributionTypeDividend,
		TotalAmount:   decimal.NewFromInt(5000),
		ScheduledDate: testNow.Add(48 * time.Hour),
		CreatedBy:     "ops-1",
	}
}

func TestSettlement_CreateDistributionCommitsBeforeEvents(t *testing.T) {
	f := newSettlementFixture()
	ctx := context.Background()

	received := make(chan events.DistributionCreatedEvent, 1)
	f.Bus.Subscribe(events.EventTypeDistributionCreated, func(ctx context.Context, event events.Event) {
		received <- event.(events.DistributionCreatedEvent)
	})

	f.TxRepo.On("HasPendingForAsset", ctx, "asset-solar-1").Return(false, nil)
	f.TxRepo.On("Create", ctx, mock.AnythingOfType("*entities.Distribution")).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*entities.Distribution).ID = 12
	})

	distribution, err := f.Settlement.CreateDistribution(ctx, createRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(12), distribution.ID)

	require.Len(t, f.Factory.created, 1)
	uow := f.Factory.created[0]
	assert.True(t, uow.committed)
	assert.False(t, uow.rolledBack)

	f.Bus.Wait()
	select {
	case ev := <-received:
		assert.Equal(t, int64(12), ev.DistributionID)
	default:
		t.Fatal("created event was not delivered after commit")
	}

	// Lifecycle events go through the unit of work, never straight to the publisher
	f.Publisher.AssertNotCalled(t, "Publish", mock.Anything)
	f.TxRepo.AssertExpectations(t)
	f.DistRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSettlement_LifecycleFailureRollsBack(t *testing.T) {
	f := newSettlementFixture()
	ctx := context.Background()

	delivered := false
	f.Bus.SubscribeAll(func(ctx context.Context, event events.Event) { delivered = true })

	f.TxRepo.On("HasPendingForAsset", ctx, "asset-solar-1").Return(true, nil)

	_, err := f.Settlement.CreateDistribution(ctx, createRequest())
	assert.ErrorIs(t, err, entities.ErrConflict)

	require.Len(t, f.Factory.created, 1)
	assert.True(t, f.Factory.created[0].rolledBack)
	assert.False(t, f.Factory.created[0].committed)

	f.Bus.Wait()
	assert.False(t, delivered)
}

func TestSettlement_ApproveAndCancelUseRowLock(t *testing.T) {
	ctx := context.Background()

	t.Run("approve", func(t *testing.T) {
		f := newSettlementFixture()
		pending := &entities.Distribution{
			ID:               3,
			AssetID:          "asset-solar-1",
			Status:           entities.DistributionStatusPending,
			ScheduledDate:    testNow.Add(time.Hour),
			TotalAmount:      decimal.NewFromInt(100),
			ApprovalWorkflow: entities.DefaultApprovalWorkflow(),
		}
		f.TxRepo.On("GetByIDForUpdate", ctx, int64(3)).Return(pending, nil)
		f.TxRepo.On("Update", ctx, pending).Return(nil)

		approved, err := f.Settlement.ApproveDistribution(ctx, 3, "ops-2")
		require.NoError(t, err)
		assert.Equal(t, entities.DistributionStatusApproved, approved.Status)
		assert.Equal(t, "ops-2", approved.ApprovedBy)
		assert.True(t, f.Factory.created[0].committed)
		f.DistRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})

	t.Run("cancel of a missing distribution rolls back", func(t *testing.T) {
		f := newSettlementFixture()
		f.TxRepo.On("GetByIDForUpdate", ctx, int64(9)).Return(nil, nil)

		_, err := f.Settlement.CancelDistribution(ctx, 9, "duplicate", "ops-1")
		assert.ErrorIs(t, err, entities.ErrNotFound)
		assert.True(t, f.Factory.created[0].rolledBack)
	})

	t.Run("begin failure", func(t *testing.T) {
		f := newSettlementFixture()
		f.Factory.beginErr = errors.New("pool exhausted")

		_, err := f.Settlement.UpdateDistribution(ctx, 1, interfaces.UpdateDistributionRequest{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pool exhausted")
		f.TxRepo.AssertNotCalled(t, "GetByIDForUpdate", mock.Anything, mock.Anything)
	})
}

func TestSettlement_ProcessDueDistributionsContinuesAfterFailures(t *testing.T) {
	f := newSettlementFixture()
	ctx := context.Background()

	stale := &entities.Distribution{ID: 1, AssetID: "asset-a", Status: entities.DistributionStatusApproved, ScheduledDate: testNow.Add(-time.Hour)}
	empty := &entities.Distribution{ID: 2, AssetID: "asset-b", Status: entities.DistributionStatusApproved, ScheduledDate: testNow.Add(-time.Hour), TotalAmount: decimal.NewFromInt(10)}
	contended := &entities.Distribution{ID: 3, AssetID: "asset-c", Status: entities.DistributionStatusApproved, ScheduledDate: testNow.Add(-time.Hour)}
	cancelled := *stale
	cancelled.Status = entities.DistributionStatusCancelled

	f.DistRepo.On("GetDue", ctx, testNow, mock.AnythingOfType("int")).Return([]*entities.Distribution{stale, empty, contended}, nil)
	// Cancelled between listing and execution
	f.DistRepo.On("GetByID", ctx, int64(1)).Return(&cancelled, nil)
	f.DistRepo.On("GetByID", ctx, int64(2)).Return(empty, nil)
	f.DistRepo.On("ClaimExecution", ctx, int64(2), testNow).Return(true, nil)
	f.WalletRepo.On("GetEligibleWallets", ctx, "asset-b").Return([]*entities.InvestorWallet{}, nil)
	f.DistRepo.On("RecordOutcome", mock.Anything, empty).Return(true, nil)
	f.Publisher.On("Publish", mock.AnythingOfType("events.DistributionFailedEvent")).Return(nil)
	// Claimed by another instance
	f.DistRepo.On("GetByID", ctx, int64(3)).Return(contended, nil)
	f.DistRepo.On("ClaimExecution", ctx, int64(3), testNow).Return(false, nil)

	executed, failed, err := f.Settlement.ProcessDueDistributions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, executed)
	assert.Equal(t, 3, failed)
	assert.Equal(t, entities.DistributionStatusFailed, empty.Status)
	f.WalletRepo.AssertNotCalled(t, "GetEligibleWallets", ctx, "asset-c")

	f.DistRepo.AssertExpectations(t)
	f.WalletRepo.AssertExpectations(t)
	f.Publisher.AssertExpectations(t)
}

func TestSettlement_GetSummary(t *testing.T) {
	f := newSettlementFixture()
	ctx := context.Background()

	f.DistRepo.On("GetStats", ctx).Return(&entities.DistributionStats{Total: 4}, nil)
	f.RunRepo.On("GetStats", ctx).Return(&entities.PayoutStats{TotalRuns: 2}, nil)
	f.Receipts.On("GetStats", ctx, entities.ReceiptFilter{}).Return(&entities.ReceiptStats{Total: 30}, nil)
	f.RuleRepo.On("GetStats", ctx).Return(&entities.WithholdingStats{TotalRules: 5}, nil)
	f.FeeRepo.On("GetStats", ctx, testNow).Return(&entities.FeeStats{TotalFees: 6}, nil)

	summary, err := f.Settlement.GetSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), summary.Distributions.Total)
	assert.Equal(t, int64(2), summary.Payouts.TotalRuns)
	assert.Equal(t, int64(30), summary.Receipts.Total)
	assert.Equal(t, int64(5), summary.Withholding.TotalRules)
	assert.Equal(t, int64(6), summary.Fees.TotalFees)

	t.Run("first failure aborts", func(t *testing.T) {
		f := newSettlementFixture()
		f.DistRepo.On("GetStats", ctx).Return(nil, errors.New("connection refused"))

		_, err := f.Settlement.GetSummary(ctx)
		assert.Error(t, err)
		f.RunRepo.AssertNotCalled(t, "GetStats", mock.Anything)
	})
}

func TestSettlement_HealthCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		f := newSettlementFixture(stubChecker{name: "database"})
		adapter := &testhelpers.MockStablecoinAdapter{}
		adapter.On("HealthCheck", ctx).Return(nil)
		f.Adapters.On("AdapterFor", mock.Anything).Return(adapter, nil)

		assert.NoError(t, f.Settlement.HealthCheck(ctx))
		adapter.AssertNumberOfCalls(t, "HealthCheck", 2)
	})

	t.Run("reports every failure", func(t *testing.T) {
		f := newSettlementFixture(stubChecker{name: "database", err: errors.New("ping timeout")})
		adapter := &testhelpers.MockStablecoinAdapter{}
		adapter.On("HealthCheck", ctx).Return(nil)
		f.Adapters.On("AdapterFor", entities.StablecoinUSDC).Return(adapter, nil)
		f.Adapters.On("AdapterFor", entities.StablecoinHKD).Return(nil, errors.New("no adapter registered"))

		err := f.Settlement.HealthCheck(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database: ping timeout")
		assert.Contains(t, err.Error(), "HKD_STABLECOIN adapter: no adapter registered")
	})
}
