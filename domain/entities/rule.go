package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// CalculationMethod selects how a rule turns a gross amount into a deduction
type CalculationMethod string

const (
	CalculationPercentage  CalculationMethod = "PERCENTAGE"
	CalculationFixedAmount CalculationMethod = "FIXED_AMOUNT"
	CalculationTiered      CalculationMethod = "TIERED"
	CalculationFormula     CalculationMethod = "FORMULA"
	CalculationPerUnit     CalculationMethod = "PER_UNIT" // Fee captures only
)

// TriggerType selects the predicate that decides whether a withholding rule applies
type TriggerType string

const (
	TriggerAmountThreshold  TriggerType = "AMOUNT_THRESHOLD"
	TriggerJurisdiction     TriggerType = "JURISDICTION"
	TriggerInvestorType     TriggerType = "INVESTOR_TYPE"
	TriggerAssetType        TriggerType = "ASSET_TYPE"
	TriggerDistributionType TriggerType = "DISTRIBUTION_TYPE"
	TriggerTimeBased        TriggerType = "TIME_BASED"
)

// IsValid reports whether t is a known trigger
func (t TriggerType) IsValid() bool {
	switch t {
	case TriggerAmountThreshold, TriggerJurisdiction, TriggerInvestorType,
		TriggerAssetType, TriggerDistributionType, TriggerTimeBased:
		return true
	}
	return false
}

// Tier is one band of a tiered rate table. A tier covers amounts from its
// threshold up to the next tier's threshold; the last tier is unbounded.
type Tier struct {
	Threshold decimal.Decimal `json:"threshold"`
	Rate      decimal.Decimal `json:"rate"`
}

// ExemptionType selects how an exemption reduces a rule's withholding
type ExemptionType string

const (
	ExemptionPercentage ExemptionType = "PERCENTAGE" // Value is a percent of the rule's withholding
	ExemptionFixed      ExemptionType = "FIXED"
)

// Exemption reduces a withholding rule's output for investors whose metadata
// carries every condition key with an equal value
type Exemption struct {
	Type        ExemptionType          `json:"type"`
	Value       decimal.Decimal        `json:"value"`
	Conditions  map[string]interface{} `json:"conditions,omitempty"`
	Description string                 `json:"description,omitempty"`
}

// RuleApplication records what one rule contributed to a calculation
type RuleApplication struct {
	RuleID   int64             `json:"rule_id"`
	RuleName string            `json:"rule_name"`
	Method   CalculationMethod `json:"method"`
	Amount   decimal.Decimal   `json:"amount"`
	Exempted decimal.Decimal   `json:"exempted,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// EffectiveWindow bounds when a rule may apply. Nil bounds are open.
type EffectiveWindow struct {
	From  *time.Time
	Until *time.Time
}

// Contains reports whether now falls inside the window
func (w EffectiveWindow) Contains(now time.Time) bool {
	if w.From != nil && now.Before(*w.From) {
		return false
	}
	if w.Until != nil && now.After(*w.Until) {
		return false
	}
	return true
}
