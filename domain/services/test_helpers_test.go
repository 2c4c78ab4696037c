package services

import (
	"testing"
	"time"

	"settlement/domain/entities"
	"settlement/domain/testhelpers"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

const (
	testAssetID      = "asset-solar-1"
	testInvestorID   = "inv-1"
	testTreasury     = "0x1111111111111111111111111111111111111111"
	testDistribution = int64(42)
)

// testNow is the fixed instant every service test runs at
var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestClock() *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(testNow)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// TestMocks aggregates the repository and collaborator mocks used by the services
type TestMocks struct {
	DistributionRepo *testhelpers.MockDistributionRepository
	RunRepo          *testhelpers.MockPayoutRunRepository
	ReceiptRepo      *testhelpers.MockPayoutReceiptRepository
	RuleRepo         *testhelpers.MockWithholdingRuleRepository
	FeeRepo          *testhelpers.MockFeeCaptureRepository
	WalletRepo       *testhelpers.MockInvestorWalletRepository
	EventPublisher   *testhelpers.MockEventPublisher
	Adapter          *testhelpers.MockStablecoinAdapter
	Adapters         *testhelpers.MockAdapterRegistry
	Renderer         *testhelpers.MockDocumentRenderer
}

// NewTestMocks creates a new set of mocks
func NewTestMocks() *TestMocks {
	return &TestMocks{
		DistributionRepo: &testhelpers.MockDistributionRepository{},
		RunRepo:          &testhelpers.MockPayoutRunRepository{},
		ReceiptRepo:      &testhelpers.MockPayoutReceiptRepository{},
		RuleRepo:         &testhelpers.MockWithholdingRuleRepository{},
		FeeRepo:          &testhelpers.MockFeeCaptureRepository{},
		WalletRepo:       &testhelpers.MockInvestorWalletRepository{},
		EventPublisher:   &testhelpers.MockEventPublisher{},
		Adapter:          &testhelpers.MockStablecoinAdapter{},
		Adapters:         &testhelpers.MockAdapterRegistry{},
		Renderer:         &testhelpers.MockDocumentRenderer{},
	}
}

// AssertAllExpectations verifies all mock expectations were met
func (m *TestMocks) AssertAllExpectations(t *testing.T) {
	m.DistributionRepo.AssertExpectations(t)
	m.RunRepo.AssertExpectations(t)
	m.ReceiptRepo.AssertExpectations(t)
	m.RuleRepo.AssertExpectations(t)
	m.FeeRepo.AssertExpectations(t)
	m.WalletRepo.AssertExpectations(t)
	m.EventPublisher.AssertExpectations(t)
	m.Adapter.AssertExpectations(t)
	m.Adapters.AssertExpectations(t)
	m.Renderer.AssertExpectations(t)
}

func newWallet(id, investorID string, balance string) *entities.InvestorWallet {
	return &entities.InvestorWallet{
		ID:             id,
		InvestorID:     investorID,
		AssetID:        testAssetID,
		Address:        "0x" + id,
		StablecoinType: entities.StablecoinUSDC,
		Status:         entities.WalletStatusActive,
		IsKYCVerified:  true,
		TokenBalance:   dec(balance),
		Jurisdiction:   "US",
	}
}

func newApprovedDistribution(total string) *entities.Distribution {
	approvedAt := testNow.Add(-time.Hour)
	return &entities.Distribution{
		ID:               testDistribution,
		AssetID:          testAssetID,
		AssetName:        "Solar Farm I",
		Type:             entities.DistributionTypeDividend,
		Frequency:        entities.FrequencyOneTime,
		Status:           entities.DistributionStatusApproved,
		ScheduledDate:    testNow.Add(-time.Minute),
		TotalAmount:      dec(total),
		StablecoinType:   entities.StablecoinUSDC,
		ExchangeRate:     decimal.NewFromInt(1),
		ApprovalWorkflow: entities.DefaultApprovalWorkflow(),
		ApprovedBy:       "ops-1",
		ApprovedAt:       &approvedAt,
	}
}

func percentageRule(id int64, jurisdiction, rate string) *entities.WithholdingRule {
	return &entities.WithholdingRule{
		ID:                id,
		Name:              "withholding " + jurisdiction,
		Type:              entities.WithholdingTypeTax,
		TriggerType:       entities.TriggerJurisdiction,
		Jurisdiction:      jurisdiction,
		CalculationMethod: entities.CalculationPercentage,
		Rate:              dec(rate),
		IsActive:          true,
	}
}

func fixedFee(id int64, investorID, amount string) *entities.FeeCapture {
	return &entities.FeeCapture{
		ID:                id,
		AssetID:           testAssetID,
		InvestorID:        investorID,
		FeeType:           entities.FeeTypeManagement,
		FeeName:           "management fee",
		CalculationMethod: entities.CalculationFixedAmount,
		FixedAmount:       dec(amount),
		Status:            entities.FeeStatusPending,
	}
}
