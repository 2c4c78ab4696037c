package rules

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sync"

	"github.com/Knetic/govaluate"
	"github.com/shopspring/decimal"
)

// ErrFormula wraps every failure to evaluate a rule formula
var ErrFormula = errors.New("formula evaluation failed")

var placeholderPattern = regexp.MustCompile(`\$\{(\w+)\}`)

// Variable names bound inside formulas
const (
	VarAmount = "amount"
	VarRate   = "rate"
	VarFixed  = "fixed"
)

var allowedVariables = map[string]bool{VarAmount: true, VarRate: true, VarFixed: true}

// Arithmetic only. Functions, accessors, strings, comparisons and ternaries are rejected.
var allowedTokens = map[govaluate.TokenKind]bool{
	govaluate.NUMERIC:      true,
	govaluate.VARIABLE:     true,
	govaluate.MODIFIER:     true,
	govaluate.PREFIX:       true,
	govaluate.CLAUSE:       true,
	govaluate.CLAUSE_CLOSE: true,
}

// Variables are the values bound to a formula
type Variables struct {
	Amount decimal.Decimal
	Rate   decimal.Decimal
	Fixed  decimal.Decimal
}

// FormulaEvaluator compiles and evaluates rule formulas, caching compiled expressions
type FormulaEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*govaluate.EvaluableExpression
}

// NewFormulaEvaluator creates an evaluator with an empty cache
func NewFormulaEvaluator() *FormulaEvaluator {
	return &FormulaEvaluator{cache: make(map[string]*govaluate.EvaluableExpression)}
}

// Validate reports whether expression compiles and only uses arithmetic over known variables
func (e *FormulaEvaluator) Validate(expression string) error {
	_, err := e.compile(expression)
	return err
}

// Evaluate computes expression with vars bound. Errors, non-numeric results and
// non-finite results are returned as ErrFormula.
func (e *FormulaEvaluator) Evaluate(expression string, vars Variables) (decimal.Decimal, error) {
	expr, err := e.compile(expression)
	if err != nil {
		return decimal.Zero, err
	}

	params := map[string]interface{}{
		VarAmount: vars.Amount.InexactFloat64(),
		VarRate:   vars.Rate.InexactFloat64(),
		VarFixed:  vars.Fixed.InexactFloat64(),
	}
	result, err := expr.Evaluate(params)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrFormula, err)
	}

	value, ok := result.(float64)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: result %v is not a number", ErrFormula, result)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return decimal.Zero, fmt.Errorf("%w: result is not finite", ErrFormula)
	}
	return decimal.NewFromFloat(value), nil
}

func (e *FormulaEvaluator) compile(expression string) (*govaluate.EvaluableExpression, error) {
	e.mu.RLock()
	expr, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return expr, nil
	}

	normalized := placeholderPattern.ReplaceAllString(expression, "$1")
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrFormula)
	}

	expr, err := govaluate.NewEvaluableExpression(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormula, err)
	}
	for _, token := range expr.Tokens() {
		if !allowedTokens[token.Kind] {
			return nil, fmt.Errorf("%w: token %v not allowed in %q", ErrFormula, token.Kind, expression)
		}
		if token.Kind == govaluate.VARIABLE {
			name, _ := token.Value.(string)
			if !allowedVariables[name] {
				return nil, fmt.Errorf("%w: unknown variable %q", ErrFormula, name)
			}
		}
	}

	e.mu.Lock()
	e.cache[expression] = expr
	e.mu.Unlock()
	return expr, nil
}
