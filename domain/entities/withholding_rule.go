package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// WithholdingType classifies the authority behind a withholding rule
type WithholdingType string

const (
	WithholdingTypeTax        WithholdingType = "TAX"
	WithholdingTypeCompliance WithholdingType = "COMPLIANCE"
	WithholdingTypeRegulatory WithholdingType = "REGULATORY"
	WithholdingTypeCustom     WithholdingType = "CUSTOM"
)

// WithholdingRule is a declarative tax or compliance deduction
type WithholdingRule struct {
	ID                int64               `db:"id"`
	Name              string              `db:"name"`
	Description       string              `db:"description"`
	Type              WithholdingType     `db:"withholding_type"`
	TriggerType       TriggerType         `db:"trigger_type"`
	TriggerValue      string              `db:"trigger_value"`
	CalculationMethod CalculationMethod   `db:"calculation_method"`
	Rate              decimal.Decimal     `db:"rate"` // Fraction, 0.15 = 15%
	FixedAmount       decimal.Decimal     `db:"fixed_amount"`
	TieredRates       []Tier              `db:"-"` // Stored as JSONB
	Formula           string              `db:"formula"`
	MinimumAmount     decimal.NullDecimal `db:"minimum_amount"`
	MaximumAmount     decimal.NullDecimal `db:"maximum_amount"`
	Jurisdiction      string              `db:"jurisdiction"`
	SubJurisdiction   string              `db:"sub_jurisdiction"`
	InvestorType      string              `db:"investor_type"`
	AssetType         string              `db:"asset_type"`
	DistributionType  DistributionType    `db:"distribution_type"`
	Exemptions        []Exemption         `db:"-"` // Stored as JSONB
	IsActive          bool                `db:"is_active"`
	Priority          int                 `db:"priority"`
	EffectiveFrom     *time.Time          `db:"effective_from"`
	EffectiveUntil    *time.Time          `db:"effective_until"`
	UsageCount        int                 `db:"usage_count"`
	LastUsedAt        *time.Time          `db:"last_used_at"`
	CreatedAt         time.Time           `db:"created_at"`
	UpdatedAt         time.Time           `db:"updated_at"`
}

// Window returns the rule's effective window
func (r *WithholdingRule) Window() EffectiveWindow {
	return EffectiveWindow{From: r.EffectiveFrom, Until: r.EffectiveUntil}
}

// IsApplicableAt returns true if the rule is active and inside its window
func (r *WithholdingRule) IsApplicableAt(now time.Time) bool {
	return r.IsActive && r.Window().Contains(now)
}

// Validate checks the fields required by the rule's calculation method
func (r *WithholdingRule) Validate() error {
	if r.Name == "" {
		return NewValidationError("rule name is required")
	}
	if !r.TriggerType.IsValid() {
		return NewValidationError("unknown trigger type %q", r.TriggerType)
	}
	if r.CalculationMethod == CalculationPerUnit {
		return NewValidationError("PER_UNIT is not a withholding calculation method")
	}
	return validateCalculation(r.CalculationMethod, r.Rate, r.FixedAmount, r.TieredRates, r.Formula)
}

func validateCalculation(method CalculationMethod, rate, fixed decimal.Decimal, tiers []Tier, formula string) error {
	switch method {
	case CalculationPercentage, CalculationPerUnit:
		if rate.IsNegative() {
			return NewValidationError("rate must not be negative")
		}
	case CalculationFixedAmount:
		if fixed.IsNegative() {
			return NewValidationError("fixed amount must not be negative")
		}
	case CalculationTiered:
		if len(tiers) == 0 {
			return NewValidationError("tiered calculation requires at least one tier")
		}
		for _, t := range tiers {
			if t.Threshold.IsNegative() || t.Rate.IsNegative() {
				return NewValidationError("tier thresholds and rates must not be negative")
			}
		}
	case CalculationFormula:
		if formula == "" {
			return NewValidationError("formula calculation requires an expression")
		}
	default:
		return NewValidationError("unknown calculation method %q", method)
	}
	return nil
}

// WithholdingStats aggregates withholding rules for reporting
type WithholdingStats struct {
	TotalRules          int64                     `json:"total_rules"`
	ActiveRules         int64                     `json:"active_rules"`
	ByType              map[WithholdingType]int64 `json:"by_type"`
	ByJurisdiction      map[string]int64          `json:"by_jurisdiction"`
	TotalUsage          int64                     `json:"total_usage"`
	TotalWithheldAmount decimal.Decimal           `json:"total_withheld_amount"`
}
