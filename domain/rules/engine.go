package rules

import (
	"sort"

	"settlement/domain/entities"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Descriptor is the engine's view of one rule
type Descriptor struct {
	ID       int64
	Name     string
	Priority int
	Params   MethodParams
}

// Definition parameterizes the engine for one kind of rule
type Definition[R any] struct {
	// Kind names the engine in logs, e.g. "withholding"
	Kind string

	Describe func(R) Descriptor
	Matches  func(R, *Context) bool

	// Adjust post-processes a rule's raw amount and returns the adjusted amount
	// and the reduction it applied. Nil means no adjustment.
	Adjust func(R, decimal.Decimal, *Context) (decimal.Decimal, decimal.Decimal)

	// OnFailure is called when a rule fails to evaluate and counts as zero
	OnFailure func(kind string, d Descriptor, err error)
}

// Result is the outcome of evaluating a rule set for one investor
type Result[R any] struct {
	Total        decimal.Decimal
	Applications []entities.RuleApplication
	Applied      []R // Matched rules in evaluation order
	Failures     int
}

// Engine matches rules against a context, evaluates each matched rule independently
// and sums the outputs. Every rule output is floored at zero and capped at gross, and
// so is the total.
type Engine[R any] struct {
	def      Definition[R]
	formulas *FormulaEvaluator
}

// NewEngine creates an engine for def. formulas may be shared between engines.
func NewEngine[R any](def Definition[R], formulas *FormulaEvaluator) *Engine[R] {
	if formulas == nil {
		formulas = NewFormulaEvaluator()
	}
	return &Engine[R]{def: def, formulas: formulas}
}

// Formulas returns the evaluator used for FORMULA rules
func (e *Engine[R]) Formulas() *FormulaEvaluator {
	return e.formulas
}

type candidate[R any] struct {
	rule R
	desc Descriptor
}

// Evaluate applies the matching rules in priority order (highest first, id ascending)
func (e *Engine[R]) Evaluate(rules []R, c *Context) Result[R] {
	result := Result[R]{Total: decimal.Zero}
	if !c.Gross.IsPositive() {
		return result
	}

	matched := make([]candidate[R], 0, len(rules))
	for _, r := range rules {
		if e.def.Matches(r, c) {
			matched = append(matched, candidate[R]{rule: r, desc: e.def.Describe(r)})
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].desc.Priority != matched[j].desc.Priority {
			return matched[i].desc.Priority > matched[j].desc.Priority
		}
		return matched[i].desc.ID < matched[j].desc.ID
	})

	input := c.input()
	for _, m := range matched {
		app := entities.RuleApplication{
			RuleID:   m.desc.ID,
			RuleName: m.desc.Name,
			Method:   m.desc.Params.Method,
			Amount:   decimal.Zero,
		}

		amount, err := e.amount(m.desc, input)
		if err != nil {
			result.Failures++
			app.Error = err.Error()
			e.reportFailure(m.desc, err)
		} else {
			amount = entities.ClampNonNegative(amount)
			if e.def.Adjust != nil {
				var exempted decimal.Decimal
				amount, exempted = e.def.Adjust(m.rule, amount, c)
				app.Exempted = entities.RoundAmount(exempted)
			}
			amount = entities.MinDecimal(entities.RoundAmount(entities.ClampNonNegative(amount)), c.Gross)
			app.Amount = amount
			result.Total = result.Total.Add(amount)
		}

		result.Applications = append(result.Applications, app)
		result.Applied = append(result.Applied, m.rule)
	}

	result.Total = entities.MinDecimal(result.Total, c.Gross)
	return result
}

func (e *Engine[R]) amount(d Descriptor, in Input) (decimal.Decimal, error) {
	method, err := NewMethod(d.Params, e.formulas)
	if err != nil {
		return decimal.Zero, err
	}
	return method.Amount(in)
}

func (e *Engine[R]) reportFailure(d Descriptor, err error) {
	log.WithFields(log.Fields{
		"engine":    e.def.Kind,
		"rule_id":   d.ID,
		"rule_name": d.Name,
		"method":    d.Params.Method,
	}).WithError(err).Warn("Rule evaluation failed, counting it as zero")

	if e.def.OnFailure != nil {
		e.def.OnFailure(e.def.Kind, d, err)
	}
}
