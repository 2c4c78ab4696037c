package testhelpers

import (
	"context"
	"time"

	"settlement/domain/entities"
	"settlement/events"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockDistributionRepository is a mock implementation of DistributionRepository
type MockDistributionRepository struct {
	mock.Mock
}

func (m *MockDistributionRepository) Create(ctx context.Context, distribution *entities.Distribution) error {
	args := m.Called(ctx, distribution)
	return args.Error(0)
}

func (m *MockDistributionRepository) GetByID(ctx context.Context, id int64) (*entities.Distribution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Distribution), args.Error(1)
}

func (m *MockDistributionRepository) GetByIDForUpdate(ctx context.Context, id int64) (*entities.Distribution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Distribution), args.Error(1)
}

func (m *MockDistributionRepository) Update(ctx context.Context, distribution *entities.Distribution) error {
	args := m.Called(ctx, distribution)
	return args.Error(0)
}

func (m *MockDistributionRepository) ClaimExecution(ctx context.Context, id int64, claimedAt time.Time) (bool, error) {
	args := m.Called(ctx, id, claimedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockDistributionRepository) RecordOutcome(ctx context.Context, distribution *entities.Distribution) (bool, error) {
	args := m.Called(ctx, distribution)
	return args.Bool(0), args.Error(1)
}

func (m *MockDistributionRepository) HasPendingForAsset(ctx context.Context, assetID string) (bool, error) {
	args := m.Called(ctx, assetID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDistributionRepository) HasChild(ctx context.Context, parentID int64) (bool, error) {
	args := m.Called(ctx, parentID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDistributionRepository) Search(ctx context.Context, filter entities.DistributionFilter) ([]*entities.Distribution, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*entities.Distribution), args.Get(1).(int64), args.Error(2)
}

func (m *MockDistributionRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]*entities.Distribution, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Distribution), args.Error(1)
}

func (m *MockDistributionRepository) GetExecutedRecurring(ctx context.Context) ([]*entities.Distribution, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Distribution), args.Error(1)
}

func (m *MockDistributionRepository) GetStats(ctx context.Context) (*entities.DistributionStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.DistributionStats), args.Error(1)
}

// MockPayoutRunRepository is a mock implementation of PayoutRunRepository
type MockPayoutRunRepository struct {
	mock.Mock
}

func (m *MockPayoutRunRepository) Create(ctx context.Context, run *entities.PayoutRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockPayoutRunRepository) GetByID(ctx context.Context, id int64) (*entities.PayoutRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.PayoutRun), args.Error(1)
}

func (m *MockPayoutRunRepository) GetByDistribution(ctx context.Context, distributionID int64) ([]*entities.PayoutRun, error) {
	args := m.Called(ctx, distributionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.PayoutRun), args.Error(1)
}

func (m *MockPayoutRunRepository) Start(ctx context.Context, id int64, recipients int, totalAmount decimal.Decimal, startedAt time.Time) error {
	args := m.Called(ctx, id, recipients, totalAmount, startedAt)
	return args.Error(0)
}

func (m *MockPayoutRunRepository) RecordSuccess(ctx context.Context, id int64, gross, net, fee, withholding decimal.Decimal) error {
	args := m.Called(ctx, id, gross, net, fee, withholding)
	return args.Error(0)
}

func (m *MockPayoutRunRepository) RecordFailure(ctx context.Context, id int64, net decimal.Decimal, entry entities.RunErrorLog) error {
	args := m.Called(ctx, id, net, entry)
	return args.Error(0)
}

func (m *MockPayoutRunRepository) Finish(ctx context.Context, id int64, status entities.PayoutRunStatus, completedAt time.Time) error {
	args := m.Called(ctx, id, status, completedAt)
	return args.Error(0)
}

func (m *MockPayoutRunRepository) Fail(ctx context.Context, id int64, entry entities.RunErrorLog, completedAt time.Time) error {
	args := m.Called(ctx, id, entry, completedAt)
	return args.Error(0)
}

func (m *MockPayoutRunRepository) RequestCancel(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockPayoutRunRepository) IsCancelRequested(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockPayoutRunRepository) BeginRetry(ctx context.Context, id int64, startedAt time.Time) (bool, error) {
	args := m.Called(ctx, id, startedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockPayoutRunRepository) RecountFromReceipts(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPayoutRunRepository) GetStats(ctx context.Context) (*entities.PayoutStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.PayoutStats), args.Error(1)
}

// MockPayoutReceiptRepository is a mock implementation of PayoutReceiptRepository
type MockPayoutReceiptRepository struct {
	mock.Mock
}

func (m *MockPayoutReceiptRepository) Create(ctx context.Context, receipt *entities.PayoutReceipt) error {
	args := m.Called(ctx, receipt)
	return args.Error(0)
}

func (m *MockPayoutReceiptRepository) GetByID(ctx context.Context, id int64) (*entities.PayoutReceipt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.PayoutReceipt), args.Error(1)
}

func (m *MockPayoutReceiptRepository) GetByPayoutRun(ctx context.Context, runID int64) ([]*entities.PayoutReceipt, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.PayoutReceipt), args.Error(1)
}

func (m *MockPayoutReceiptRepository) GetByInvestor(ctx context.Context, investorID string, limit int) ([]*entities.PayoutReceipt, error) {
	args := m.Called(ctx, investorID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.PayoutReceipt), args.Error(1)
}

func (m *MockPayoutReceiptRepository) Transition(ctx context.Context, id int64, from entities.ReceiptStatus, update entities.ReceiptStatusUpdate, at time.Time) (bool, error) {
	args := m.Called(ctx, id, from, update, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockPayoutReceiptRepository) SetDocument(ctx context.Context, id int64, url string, format entities.DocumentFormat) error {
	args := m.Called(ctx, id, url, format)
	return args.Error(0)
}

func (m *MockPayoutReceiptRepository) Search(ctx context.Context, filter entities.ReceiptFilter) ([]*entities.PayoutReceipt, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*entities.PayoutReceipt), args.Get(1).(int64), args.Error(2)
}

func (m *MockPayoutReceiptRepository) GetStats(ctx context.Context, filter entities.ReceiptFilter) (*entities.ReceiptStats, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ReceiptStats), args.Error(1)
}

// MockWithholdingRuleRepository is a mock implementation of WithholdingRuleRepository
type MockWithholdingRuleRepository struct {
	mock.Mock
}

func (m *MockWithholdingRuleRepository) Create(ctx context.Context, rule *entities.WithholdingRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockWithholdingRuleRepository) GetByID(ctx context.Context, id int64) (*entities.WithholdingRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.WithholdingRule), args.Error(1)
}

func (m *MockWithholdingRuleRepository) Update(ctx context.Context, rule *entities.WithholdingRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockWithholdingRuleRepository) SetActive(ctx context.Context, id int64, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}

func (m *MockWithholdingRuleRepository) GetActive(ctx context.Context) ([]*entities.WithholdingRule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.WithholdingRule), args.Error(1)
}

func (m *MockWithholdingRuleRepository) GetByJurisdiction(ctx context.Context, jurisdiction string) ([]*entities.WithholdingRule, error) {
	args := m.Called(ctx, jurisdiction)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.WithholdingRule), args.Error(1)
}

func (m *MockWithholdingRuleRepository) RecordUsage(ctx context.Context, ruleIDs []int64, usedAt time.Time) error {
	args := m.Called(ctx, ruleIDs, usedAt)
	return args.Error(0)
}

func (m *MockWithholdingRuleRepository) GetStats(ctx context.Context) (*entities.WithholdingStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.WithholdingStats), args.Error(1)
}

// MockFeeCaptureRepository is a mock implementation of FeeCaptureRepository
type MockFeeCaptureRepository struct {
	mock.Mock
}

func (m *MockFeeCaptureRepository) Create(ctx context.Context, fee *entities.FeeCapture) error {
	args := m.Called(ctx, fee)
	return args.Error(0)
}

func (m *MockFeeCaptureRepository) GetByID(ctx context.Context, id int64) (*entities.FeeCapture, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.FeeCapture), args.Error(1)
}

func (m *MockFeeCaptureRepository) GetPendingByAsset(ctx context.Context, assetID string) ([]*entities.FeeCapture, error) {
	args := m.Called(ctx, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.FeeCapture), args.Error(1)
}

func (m *MockFeeCaptureRepository) GetByInvestor(ctx context.Context, investorID string) ([]*entities.FeeCapture, error) {
	args := m.Called(ctx, investorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.FeeCapture), args.Error(1)
}

func (m *MockFeeCaptureRepository) GetByAsset(ctx context.Context, assetID string) ([]*entities.FeeCapture, error) {
	args := m.Called(ctx, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.FeeCapture), args.Error(1)
}

func (m *MockFeeCaptureRepository) GetOverdue(ctx context.Context, now time.Time, automaticOnly bool) ([]*entities.FeeCapture, error) {
	args := m.Called(ctx, now, automaticOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.FeeCapture), args.Error(1)
}

func (m *MockFeeCaptureRepository) UpdateStatus(ctx context.Context, fee *entities.FeeCapture) error {
	args := m.Called(ctx, fee)
	return args.Error(0)
}

func (m *MockFeeCaptureRepository) RecordCalculated(ctx context.Context, amounts map[int64]decimal.Decimal) error {
	args := m.Called(ctx, amounts)
	return args.Error(0)
}

func (m *MockFeeCaptureRepository) GetStats(ctx context.Context, now time.Time) (*entities.FeeStats, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.FeeStats), args.Error(1)
}

// MockInvestorWalletRepository is a mock implementation of InvestorWalletRepository
type MockInvestorWalletRepository struct {
	mock.Mock
}

func (m *MockInvestorWalletRepository) GetEligibleWallets(ctx context.Context, assetID string) ([]*entities.InvestorWallet, error) {
	args := m.Called(ctx, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.InvestorWallet), args.Error(1)
}

func (m *MockInvestorWalletRepository) Upsert(ctx context.Context, wallet *entities.InvestorWallet) error {
	args := m.Called(ctx, wallet)
	return args.Error(0)
}

func (m *MockInvestorWalletRepository) GetByID(ctx context.Context, id string) (*entities.InvestorWallet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.InvestorWallet), args.Error(1)
}

func (m *MockInvestorWalletRepository) GetByInvestor(ctx context.Context, investorID string) ([]*entities.InvestorWallet, error) {
	args := m.Called(ctx, investorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.InvestorWallet), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	args := m.Called(event)
	return args.Error(0)
}
