package testhelpers

import (
	"context"
	"time"

	"settlement/domain/entities"
	"settlement/domain/interfaces"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockStablecoinAdapter is a mock implementation of StablecoinAdapter
type MockStablecoinAdapter struct {
	mock.Mock
}

func (m *MockStablecoinAdapter) Transfer(ctx context.Context, req interfaces.TransferRequest) (*interfaces.TransferResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.TransferResult), args.Error(1)
}

func (m *MockStablecoinAdapter) GetBalance(ctx context.Context, address string) (*interfaces.TokenBalance, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.TokenBalance), args.Error(1)
}

func (m *MockStablecoinAdapter) IsValidAddress(address string) bool {
	args := m.Called(address)
	return args.Bool(0)
}

func (m *MockStablecoinAdapter) GetTransactionStatus(ctx context.Context, hash string) (*interfaces.TransactionStatus, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.TransactionStatus), args.Error(1)
}

func (m *MockStablecoinAdapter) Info() interfaces.AdapterInfo {
	args := m.Called()
	return args.Get(0).(interfaces.AdapterInfo)
}

func (m *MockStablecoinAdapter) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockAdapterRegistry is a mock implementation of AdapterRegistry
type MockAdapterRegistry struct {
	mock.Mock
}

func (m *MockAdapterRegistry) AdapterFor(currency entities.StablecoinType) (interfaces.StablecoinAdapter, error) {
	args := m.Called(currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(interfaces.StablecoinAdapter), args.Error(1)
}

// MockDocumentRenderer is a mock implementation of DocumentRenderer
type MockDocumentRenderer struct {
	mock.Mock
}

func (m *MockDocumentRenderer) Render(ctx context.Context, receipt *entities.PayoutReceipt, format entities.DocumentFormat) (string, error) {
	args := m.Called(ctx, receipt, format)
	return args.String(0), args.Error(1)
}

func (m *MockDocumentRenderer) Encode(receipts []*entities.PayoutReceipt, format entities.DocumentFormat) ([]byte, error) {
	args := m.Called(receipts, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// MockWithholdingService is a mock implementation of WithholdingService
type MockWithholdingService struct {
	mock.Mock
}

func (m *MockWithholdingService) ActiveRules(ctx context.Context) ([]*entities.WithholdingRule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.WithholdingRule), args.Error(1)
}

func (m *MockWithholdingService) Evaluate(rules []*entities.WithholdingRule, wallet *entities.InvestorWallet, gross decimal.Decimal, distribution *entities.Distribution) interfaces.DeductionResult {
	args := m.Called(rules, wallet, gross, distribution)
	return args.Get(0).(interfaces.DeductionResult)
}

func (m *MockWithholdingService) CalculateWithholding(ctx context.Context, wallet *entities.InvestorWallet, gross decimal.Decimal, distribution *entities.Distribution) (*interfaces.DeductionResult, error) {
	args := m.Called(ctx, wallet, gross, distribution)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.DeductionResult), args.Error(1)
}

func (m *MockWithholdingService) CreateRule(ctx context.Context, rule *entities.WithholdingRule) (*entities.WithholdingRule, error) {
	args := m.Called(ctx, rule)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.WithholdingRule), args.Error(1)
}

func (m *MockWithholdingService) UpdateRule(ctx context.Context, rule *entities.WithholdingRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockWithholdingService) GetRule(ctx context.Context, id int64) (*entities.WithholdingRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.WithholdingRule), args.Error(1)
}

func (m *MockWithholdingService) DeactivateRule(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockWithholdingService) GetRulesByJurisdiction(ctx context.Context, jurisdiction string) ([]*entities.WithholdingRule, error) {
	args := m.Called(ctx, jurisdiction)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.WithholdingRule), args.Error(1)
}

func (m *MockWithholdingService) RecordUsage(ctx context.Context, ruleIDs []int64) error {
	args := m.Called(ctx, ruleIDs)
	return args.Error(0)
}

func (m *MockWithholdingService) GetWithholdingStats(ctx context.Context) (*entities.WithholdingStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.WithholdingStats), args.Error(1)
}

// MockFeeService is a mock implementation of FeeService
type MockFeeService struct {
	mock.Mock
}

func (m *MockFeeService) PendingFees(ctx context.Context, assetID string) ([]*entities.FeeCapture, error) {
	args := m.Called(ctx, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.FeeCapture), args.Error(1)
}

func (m *MockFeeService) Evaluate(fees []*entities.FeeCapture, wallet *entities.InvestorWallet, gross decimal.Decimal, distribution *entities.Distribution) interfaces.DeductionResult {
	args := m.Called(fees, wallet, gross, distribution)
	return args.Get(0).(interfaces.DeductionResult)
}

func (m *MockFeeService) CalculateFees(ctx context.Context, wallet *entities.InvestorWallet, gross decimal.Decimal, distribution *entities.Distribution) (*interfaces.DeductionResult, error) {
	args := m.Called(ctx, wallet, gross, distribution)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.DeductionResult), args.Error(1)
}

func (m *MockFeeService) CreateFeeCapture(ctx context.Context, fee *entities.FeeCapture) (*entities.FeeCapture, error) {
	args := m.Called(ctx, fee)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.FeeCapture), args.Error(1)
}

func (m *MockFeeService) GetFeeCapture(ctx context.Context, id int64) (*entities.FeeCapture, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.FeeCapture), args.Error(1)
}

func (m *MockFeeService) UpdateFeeStatus(ctx context.Context, id int64, update entities.FeeStatusUpdate) (*entities.FeeCapture, error) {
	args := m.Called(ctx, id, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.FeeCapture), args.Error(1)
}

func (m *MockFeeService) GetFeesByInvestor(ctx context.Context, investorID string) ([]*entities.FeeCapture, error) {
	args := m.Called(ctx, investorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.FeeCapture), args.Error(1)
}

func (m *MockFeeService) GetFeesByAsset(ctx context.Context, assetID string) ([]*entities.FeeCapture, error) {
	args := m.Called(ctx, assetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.FeeCapture), args.Error(1)
}

func (m *MockFeeService) GetOverdueFees(ctx context.Context) ([]*entities.FeeCapture, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.FeeCapture), args.Error(1)
}

func (m *MockFeeService) RecordCalculated(ctx context.Context, breakdown []entities.RuleApplication) error {
	args := m.Called(ctx, breakdown)
	return args.Error(0)
}

func (m *MockFeeService) RecordCollection(ctx context.Context, breakdown []entities.RuleApplication, runID int64, txHash string) error {
	args := m.Called(ctx, breakdown, runID, txHash)
	return args.Error(0)
}

func (m *MockFeeService) ProcessAutomaticFeeCollection(ctx context.Context) (*interfaces.FeeCollectionResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.FeeCollectionResult), args.Error(1)
}

func (m *MockFeeService) GetFeeStats(ctx context.Context) (*entities.FeeStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.FeeStats), args.Error(1)
}

// MockProRataCalculator is a mock implementation of ProRataCalculator
type MockProRataCalculator struct {
	mock.Mock
}

func (m *MockProRataCalculator) CalculateProRataShares(ctx context.Context, distribution *entities.Distribution, wallets []*entities.InvestorWallet) ([]*entities.ProRataCalculation, error) {
	args := m.Called(ctx, distribution, wallets)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.ProRataCalculation), args.Error(1)
}

func (m *MockProRataCalculator) PreviewPayout(ctx context.Context, distribution *entities.Distribution) (*interfaces.PayoutPreview, error) {
	args := m.Called(ctx, distribution)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.PayoutPreview), args.Error(1)
}

// MockPayoutService is a mock implementation of PayoutService
type MockPayoutService struct {
	mock.Mock
}

func (m *MockPayoutService) ExecutePayoutRun(ctx context.Context, req interfaces.PayoutRunRequest) (*interfaces.PayoutRunResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.PayoutRunResult), args.Error(1)
}

func (m *MockPayoutService) RetryPayoutRun(ctx context.Context, runID int64) (*interfaces.PayoutRunResult, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.PayoutRunResult), args.Error(1)
}

func (m *MockPayoutService) CancelPayoutRun(ctx context.Context, runID int64) error {
	args := m.Called(ctx, runID)
	return args.Error(0)
}

func (m *MockPayoutService) GetPayoutRun(ctx context.Context, runID int64) (*entities.PayoutRun, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.PayoutRun), args.Error(1)
}

func (m *MockPayoutService) GetPayoutRunsByDistribution(ctx context.Context, distributionID int64) ([]*entities.PayoutRun, error) {
	args := m.Called(ctx, distributionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.PayoutRun), args.Error(1)
}

func (m *MockPayoutService) GetPayoutStats(ctx context.Context) (*entities.PayoutStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.PayoutStats), args.Error(1)
}

// MockReceiptService is a mock implementation of ReceiptService
type MockReceiptService struct {
	mock.Mock
}

func (m *MockReceiptService) CreateReceipt(ctx context.Context, run *entities.PayoutRun, distribution *entities.Distribution, calc *entities.ProRataCalculation, sequence int) (*entities.PayoutReceipt, error) {
	args := m.Called(ctx, run, distribution, calc, sequence)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.PayoutReceipt), args.Error(1)
}

func (m *MockReceiptService) UpdateReceiptStatus(ctx context.Context, id int64, update entities.ReceiptStatusUpdate) (*entities.PayoutReceipt, error) {
	args := m.Called(ctx, id, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.PayoutReceipt), args.Error(1)
}

func (m *MockReceiptService) GetReceipt(ctx context.Context, id int64) (*entities.PayoutReceipt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.PayoutReceipt), args.Error(1)
}

func (m *MockReceiptService) GetReceiptsByPayoutRun(ctx context.Context, runID int64) ([]*entities.PayoutReceipt, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.PayoutReceipt), args.Error(1)
}

func (m *MockReceiptService) GetReceiptsByInvestor(ctx context.Context, investorID string, limit int) ([]*entities.PayoutReceipt, error) {
	args := m.Called(ctx, investorID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.PayoutReceipt), args.Error(1)
}

func (m *MockReceiptService) SearchReceipts(ctx context.Context, filter entities.ReceiptFilter) ([]*entities.PayoutReceipt, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*entities.PayoutReceipt), args.Get(1).(int64), args.Error(2)
}

func (m *MockReceiptService) BulkGenerateDocuments(ctx context.Context, runID int64, format entities.DocumentFormat) ([]interfaces.GeneratedDocument, error) {
	args := m.Called(ctx, runID, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interfaces.GeneratedDocument), args.Error(1)
}

func (m *MockReceiptService) ExportReceipt(ctx context.Context, id int64, format entities.DocumentFormat) (*interfaces.ExportedReceipt, error) {
	args := m.Called(ctx, id, format)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.ExportedReceipt), args.Error(1)
}

func (m *MockReceiptService) GetReceiptStats(ctx context.Context, filter entities.ReceiptFilter) (*entities.ReceiptStats, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ReceiptStats), args.Error(1)
}

// MockSettlementMetrics is a mock implementation of SettlementMetrics
type MockSettlementMetrics struct {
	mock.Mock
}

func (m *MockSettlementMetrics) RecordRuleFailure(engine string) {
	m.Called(engine)
}

func (m *MockSettlementMetrics) RecordPayoutRunStarted(isDryRun bool) {
	m.Called(isDryRun)
}

func (m *MockSettlementMetrics) RecordPayoutRunFinished(status entities.PayoutRunStatus, isDryRun bool) {
	m.Called(status, isDryRun)
}

func (m *MockSettlementMetrics) RecordReceipt(status entities.ReceiptStatus, amount decimal.Decimal) {
	m.Called(status, amount)
}

func (m *MockSettlementMetrics) RecordBatchDuration(size int, duration time.Duration) {
	m.Called(size, duration)
}
