package rules

import (
	"fmt"

	"settlement/domain/entities"

	"github.com/shopspring/decimal"
)

// Input carries the quantities a calculation method may use
type Input struct {
	Gross decimal.Decimal
	Units decimal.Decimal
}

// Method is the closed set of calculation methods. Implementations live in this
// package only.
type Method interface {
	Kind() entities.CalculationMethod
	Amount(in Input) (decimal.Decimal, error)
	sealed()
}

// Percentage charges gross × rate
type Percentage struct {
	Rate decimal.Decimal
}

// FixedAmount charges a flat amount regardless of gross
type FixedAmount struct {
	Value decimal.Decimal
}

// Tiered partitions gross across ascending thresholds
type Tiered struct {
	Tiers []entities.Tier
}

// Formula evaluates an arithmetic expression over amount, rate and fixed
type Formula struct {
	Expression string
	Rate       decimal.Decimal
	Fixed      decimal.Decimal
	evaluator  *FormulaEvaluator
}

// PerUnit charges units × rate
type PerUnit struct {
	Rate decimal.Decimal
}

func (Percentage) Kind() entities.CalculationMethod  { return entities.CalculationPercentage }
func (FixedAmount) Kind() entities.CalculationMethod { return entities.CalculationFixedAmount }
func (Tiered) Kind() entities.CalculationMethod      { return entities.CalculationTiered }
func (Formula) Kind() entities.CalculationMethod     { return entities.CalculationFormula }
func (PerUnit) Kind() entities.CalculationMethod     { return entities.CalculationPerUnit }

func (Percentage) sealed()  {}
func (FixedAmount) sealed() {}
func (Tiered) sealed()      {}
func (Formula) sealed()     {}
func (PerUnit) sealed()     {}

func (m Percentage) Amount(in Input) (decimal.Decimal, error) {
	return in.Gross.Mul(m.Rate), nil
}

func (m FixedAmount) Amount(Input) (decimal.Decimal, error) {
	return m.Value, nil
}

func (m Tiered) Amount(in Input) (decimal.Decimal, error) {
	return TieredAmount(m.Tiers, in.Gross), nil
}

func (m Formula) Amount(in Input) (decimal.Decimal, error) {
	return m.evaluator.Evaluate(m.Expression, Variables{
		Amount: in.Gross,
		Rate:   m.Rate,
		Fixed:  m.Fixed,
	})
}

func (m PerUnit) Amount(in Input) (decimal.Decimal, error) {
	return in.Units.Mul(m.Rate), nil
}

// MethodParams is the stored, untyped form of a calculation method
type MethodParams struct {
	Method  entities.CalculationMethod
	Rate    decimal.Decimal
	Fixed   decimal.Decimal
	Tiers   []entities.Tier
	Formula string
}

// NewMethod builds the calculation variant described by params
func NewMethod(params MethodParams, formulas *FormulaEvaluator) (Method, error) {
	switch params.Method {
	case entities.CalculationPercentage:
		return Percentage{Rate: params.Rate}, nil
	case entities.CalculationFixedAmount:
		return FixedAmount{Value: params.Fixed}, nil
	case entities.CalculationTiered:
		return Tiered{Tiers: params.Tiers}, nil
	case entities.CalculationFormula:
		if formulas == nil {
			return nil, fmt.Errorf("formula evaluator not configured")
		}
		return Formula{Expression: params.Formula, Rate: params.Rate, Fixed: params.Fixed, evaluator: formulas}, nil
	case entities.CalculationPerUnit:
		return PerUnit{Rate: params.Rate}, nil
	default:
		return nil, fmt.Errorf("unknown calculation method %q", params.Method)
	}
}
