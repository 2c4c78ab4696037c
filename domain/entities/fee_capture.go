package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeType classifies a fee capture
type FeeType string

const (
	FeeTypeManagement     FeeType = "MANAGEMENT_FEE"
	FeeTypePerformance    FeeType = "PERFORMANCE_FEE"
	FeeTypeTransaction    FeeType = "TRANSACTION_FEE"
	FeeTypeAdministration FeeType = "ADMINISTRATION_FEE"
	FeeTypeCustody        FeeType = "CUSTODY_FEE"
	FeeTypeCompliance     FeeType = "COMPLIANCE_FEE"
	FeeTypeWithdrawal     FeeType = "WITHDRAWAL_FEE"
	FeeTypeDeposit        FeeType = "DEPOSIT_FEE"
	FeeTypeCustom         FeeType = "CUSTOM_FEE"
)

// FeeStatus represents the collection state of a fee capture
type FeeStatus string

const (
	FeeStatusPending   FeeStatus = "PENDING"
	FeeStatusCollected FeeStatus = "COLLECTED"
	FeeStatusWaived    FeeStatus = "WAIVED"
	FeeStatusDeferred  FeeStatus = "DEFERRED"
	FeeStatusFailed    FeeStatus = "FAILED"
)

// FeeDeferralPeriod is how far a deferred fee's due date moves
const FeeDeferralPeriod = 30 * 24 * time.Hour

// FeeCapture is a contractual fee owed by one investor for one asset
type FeeCapture struct {
	ID                int64                  `db:"id"`
	AssetID           string                 `db:"asset_id"`
	InvestorID        string                 `db:"investor_id"`
	DistributionID    *int64                 `db:"distribution_id"` // Nil applies to every distribution of the asset
	PayoutRunID       *int64                 `db:"payout_run_id"`   // Run that collected the fee
	FeeType           FeeType                `db:"fee_type"`
	FeeName           string                 `db:"fee_name"`
	FeeDescription    string                 `db:"fee_description"`
	CalculationMethod CalculationMethod      `db:"calculation_method"`
	Rate              decimal.Decimal        `db:"rate"`
	FixedAmount       decimal.Decimal        `db:"fixed_amount"`
	TieredRates       []Tier                 `db:"-"` // Stored as JSONB
	Formula           string                 `db:"formula"`
	BaseAmount        decimal.NullDecimal    `db:"base_amount"` // Minimum gross before the fee applies
	CalculatedFee     decimal.Decimal        `db:"calculated_fee"`
	CollectedFee      decimal.Decimal        `db:"collected_fee"`
	WaivedFee         decimal.Decimal        `db:"waived_fee"`
	Priority          int                    `db:"priority"`
	Status            FeeStatus              `db:"status"`
	DueDate           *time.Time             `db:"due_date"`
	EffectiveFrom     *time.Time             `db:"effective_from"`
	EffectiveUntil    *time.Time             `db:"effective_until"`
	CollectedAt       *time.Time             `db:"collected_at"`
	WaivedAt          *time.Time             `db:"waived_at"`
	DeferredUntil     *time.Time             `db:"deferred_until"`
	TransactionHash   string                 `db:"transaction_hash"`
	IsAutomatic       bool                   `db:"is_automatic"`
	StatusReason      string                 `db:"status_reason"`
	Metadata          map[string]interface{} `db:"-"` // Stored as JSONB
	CreatedAt         time.Time              `db:"created_at"`
	UpdatedAt         time.Time              `db:"updated_at"`
}

// Window returns the capture's effective window
func (f *FeeCapture) Window() EffectiveWindow {
	return EffectiveWindow{From: f.EffectiveFrom, Until: f.EffectiveUntil}
}

// IsDueAt returns true if the fee has no due date or the due date has passed
func (f *FeeCapture) IsDueAt(now time.Time) bool {
	return f.DueDate == nil || !now.Before(*f.DueDate)
}

// IsOverdueAt returns true for pending fees whose due date has passed
func (f *FeeCapture) IsOverdueAt(now time.Time) bool {
	return f.Status == FeeStatusPending && f.DueDate != nil && now.After(*f.DueDate)
}

// AppliesTo reports whether the capture is scoped to the investor, asset and distribution
func (f *FeeCapture) AppliesTo(investorID, assetID string, distributionID int64) bool {
	if f.InvestorID != investorID || f.AssetID != assetID {
		return false
	}
	return f.DistributionID == nil || *f.DistributionID == distributionID
}

// IsApplicableAt returns true if a pending capture is due and inside its window
func (f *FeeCapture) IsApplicableAt(now time.Time) bool {
	return f.Status == FeeStatusPending && f.IsDueAt(now) && f.Window().Contains(now)
}

// Validate checks the fields required to create a capture
func (f *FeeCapture) Validate() error {
	if f.AssetID == "" || f.InvestorID == "" {
		return NewValidationError("fee capture requires asset and investor")
	}
	if f.FeeName == "" {
		return NewValidationError("fee name is required")
	}
	return validateCalculation(f.CalculationMethod, f.Rate, f.FixedAmount, f.TieredRates, f.Formula)
}

// FeeStatusUpdate describes a manual status change of a capture
type FeeStatusUpdate struct {
	Status          FeeStatus
	Amount          decimal.Decimal // Collected or waived amount; zero uses the calculated fee
	Reason          string
	TransactionHash string
}

// FeeStats aggregates fee captures for reporting
type FeeStats struct {
	TotalFees       int64               `json:"total_fees"`
	ByStatus        map[FeeStatus]int64 `json:"by_status"`
	ByType          map[FeeType]int64   `json:"by_type"`
	TotalCalculated decimal.Decimal     `json:"total_calculated"`
	TotalCollected  decimal.Decimal     `json:"total_collected"`
	TotalWaived     decimal.Decimal     `json:"total_waived"`
	OverdueFees     int64               `json:"overdue_fees"`
}
