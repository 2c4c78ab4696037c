package testutil

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"settlement/domain/entities"

	"github.com/shopspring/decimal"
)

// CreateTestDistribution creates a PENDING one-time dividend with default values
func CreateTestDistribution(assetID string, scheduled time.Time) *entities.Distribution {
	return &entities.Distribution{
		AssetID:        assetID,
		AssetName:      "Test Asset " + assetID,
		Type:           entities.DistributionTypeDividend,
		Frequency:      entities.FrequencyOneTime,
		Status:         entities.DistributionStatusPending,
		ScheduledDate:  scheduled,
		TotalAmount:    decimal.NewFromInt(10000),
		StablecoinType: entities.StablecoinUSDC,
		ExchangeRate:   decimal.NewFromInt(1),
		ApprovalWorkflow: entities.ApprovalWorkflow{
			RequiresApproval:  true,
			RequiredApprovals: 1,
		},
		Metadata:  map[string]interface{}{"source": "test"},
		CreatedBy: "test-operator",
	}
}

// CreateTestDistributionWithStatus creates a test distribution in the given status
func CreateTestDistributionWithStatus(assetID string, scheduled time.Time, status entities.DistributionStatus) *entities.Distribution {
	d := CreateTestDistribution(assetID, scheduled)
	d.Status = status
	return d
}

// CreateTestPayoutRun creates a PENDING manual run for a distribution
func CreateTestPayoutRun(distributionID int64, dryRun bool) *entities.PayoutRun {
	runType := entities.PayoutRunTypeManual
	if dryRun {
		runType = entities.PayoutRunTypeTest
	}
	return &entities.PayoutRun{
		DistributionID: distributionID,
		Type:           runType,
		Status:         entities.PayoutRunStatusPending,
		IsDryRun:       dryRun,
		BatchSize:      entities.DefaultPayoutBatchSize,
		MaxRetries:     3,
		InitiatedBy:    "test-operator",
	}
}

// CreateTestReceipt creates a PENDING receipt for the nth investor of a run
func CreateTestReceipt(run *entities.PayoutRun, distribution *entities.Distribution, sequence int, net decimal.Decimal) *entities.PayoutReceipt {
	return &entities.PayoutReceipt{
		PayoutRunID:       run.ID,
		DistributionID:    distribution.ID,
		AssetID:           distribution.AssetID,
		DistributionType:  distribution.Type,
		InvestorID:        fmt.Sprintf("inv-%d", sequence),
		WalletID:          fmt.Sprintf("w-%d", sequence),
		WalletAddress:     fmt.Sprintf("0x%040d", sequence),
		Sequence:          sequence,
		GrossAmount:       net,
		WithholdingAmount: decimal.Zero,
		FeeAmount:         decimal.Zero,
		NetAmount:         net,
		TokenBalance:      decimal.NewFromInt(100),
		ProRataShare:      decimal.RequireFromString("0.5"),
		StablecoinType:    distribution.StablecoinType,
		ExchangeRate:      decimal.NewFromInt(1),
		Status:            entities.ReceiptStatusPending,
		IsDryRun:          run.IsDryRun,
		ReceiptNumber:     fmt.Sprintf("RCP-TEST-%d-%d", run.ID, sequence),
	}
}

// CreateTestWallet creates an ACTIVE, KYC-verified wallet
func CreateTestWallet(id, investorID, assetID string, balance int64) *entities.InvestorWallet {
	return &entities.InvestorWallet{
		ID:             id,
		InvestorID:     investorID,
		AssetID:        assetID,
		Address:        TestAddress(id),
		StablecoinType: entities.StablecoinUSDC,
		WalletType:     "PRIMARY",
		Status:         entities.WalletStatusActive,
		IsKYCVerified:  true,
		TokenBalance:   decimal.NewFromInt(balance),
		Jurisdiction:   "US",
		Metadata:       map[string]interface{}{"investorType": "INDIVIDUAL"},
	}
}

// CreateTestWithholdingRule creates an active percentage withholding rule for a jurisdiction
func CreateTestWithholdingRule(name, jurisdiction string, rate string, priority int) *entities.WithholdingRule {
	return &entities.WithholdingRule{
		Name:              name,
		Type:              entities.WithholdingTypeTax,
		TriggerType:       entities.TriggerJurisdiction,
		TriggerValue:      jurisdiction,
		CalculationMethod: entities.CalculationPercentage,
		Rate:              decimal.RequireFromString(rate),
		Jurisdiction:      jurisdiction,
		IsActive:          true,
		Priority:          priority,
	}
}

// CreateTestFeeCapture creates a PENDING percentage fee capture
func CreateTestFeeCapture(assetID, investorID string, rate string) *entities.FeeCapture {
	return &entities.FeeCapture{
		AssetID:           assetID,
		InvestorID:        investorID,
		FeeType:           entities.FeeTypeManagement,
		FeeName:           "Management fee",
		CalculationMethod: entities.CalculationPercentage,
		Rate:              decimal.RequireFromString(rate),
		Status:            entities.FeeStatusPending,
		Metadata:          map[string]interface{}{},
	}
}

// TestAddress derives a well-formed, unique 0x address from an identifier
func TestAddress(id string) string {
	digits := hex.EncodeToString([]byte(id))
	if len(digits) > 40 {
		digits = digits[len(digits)-40:]
	}
	return "0x" + strings.Repeat("0", 40-len(digits)) + digits
}
