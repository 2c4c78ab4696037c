package rules

import (
	"sync/atomic"
	"testing"

	"settlement/domain/entities"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRule struct {
	id       int64
	priority int
	matches  bool
	params   MethodParams
	exempt   decimal.Decimal
}

func newTestEngine(failures *int32) *Engine[testRule] {
	return NewEngine(Definition[testRule]{
		Kind: "test",
		Describe: func(r testRule) Descriptor {
			return Descriptor{ID: r.id, Name: "rule", Priority: r.priority, Params: r.params}
		},
		Matches: func(r testRule, _ *Context) bool { return r.matches },
		Adjust: func(r testRule, amount decimal.Decimal, _ *Context) (decimal.Decimal, decimal.Decimal) {
			return amount.Sub(r.exempt), r.exempt
		},
		OnFailure: func(string, Descriptor, error) {
			if failures != nil {
				atomic.AddInt32(failures, 1)
			}
		},
	}, nil)
}

func pct(rate string) MethodParams {
	return MethodParams{Method: entities.CalculationPercentage, Rate: decimal.RequireFromString(rate)}
}

func fixed(amount string) MethodParams {
	return MethodParams{Method: entities.CalculationFixedAmount, Fixed: decimal.RequireFromString(amount)}
}

func TestEngine_Evaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		gross        string
		rules        []testRule
		wantTotal    string
		wantOrder    []int64
		wantFailures int
	}{
		{
			name:      "rules stack additively",
			gross:     "1000",
			rules:     []testRule{{id: 1, matches: true, params: pct("0.1")}, {id: 2, matches: true, params: fixed("5")}},
			wantTotal: "105",
			wantOrder: []int64{1, 2},
		},
		{
			name:      "unmatched rules are skipped",
			gross:     "1000",
			rules:     []testRule{{id: 1, matches: false, params: pct("0.1")}, {id: 2, matches: true, params: fixed("5")}},
			wantTotal: "5",
			wantOrder: []int64{2},
		},
		{
			name:  "priority descending then id ascending",
			gross: "1000",
			rules: []testRule{
				{id: 3, priority: 1, matches: true, params: fixed("1")},
				{id: 2, priority: 5, matches: true, params: fixed("1")},
				{id: 1, priority: 1, matches: true, params: fixed("1")},
			},
			wantTotal: "3",
			wantOrder: []int64{2, 1, 3},
		},
		{
			name:      "total capped at gross",
			gross:     "1000",
			rules:     []testRule{{id: 1, matches: true, params: fixed("1500")}, {id: 2, matches: true, params: pct("0.2")}},
			wantTotal: "1000",
			wantOrder: []int64{1, 2},
		},
		{
			name:      "exemption reduces rule output and floors at zero",
			gross:     "1000",
			rules:     []testRule{{id: 1, matches: true, params: fixed("10"), exempt: decimal.NewFromInt(25)}},
			wantTotal: "0",
			wantOrder: []int64{1},
		},
		{
			name:  "failing formula counts as zero",
			gross: "1000",
			rules: []testRule{
				{id: 1, matches: true, params: MethodParams{Method: entities.CalculationFormula, Formula: "amount / 0"}},
				{id: 2, matches: true, params: pct("0.01")},
			},
			wantTotal:    "10",
			wantOrder:    []int64{1, 2},
			wantFailures: 1,
		},
		{
			name:         "unknown method counts as zero",
			gross:        "1000",
			rules:        []testRule{{id: 1, matches: true, params: MethodParams{Method: "MAGIC"}}},
			wantTotal:    "0",
			wantOrder:    []int64{1},
			wantFailures: 1,
		},
		{
			name:      "zero gross yields nothing",
			gross:     "0",
			rules:     []testRule{{id: 1, matches: true, params: fixed("10")}},
			wantTotal: "0",
		},
		{
			name:      "rounded to six decimals",
			gross:     "0.0000015",
			rules:     []testRule{{id: 1, matches: true, params: pct("0.5")}},
			wantTotal: "0.000001",
			wantOrder: []int64{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var failures int32
			engine := newTestEngine(&failures)

			result := engine.Evaluate(tt.rules, &Context{Gross: decimal.RequireFromString(tt.gross)})

			assert.True(t, decimal.RequireFromString(tt.wantTotal).Equal(result.Total), "got %s want %s", result.Total, tt.wantTotal)
			assert.Equal(t, tt.wantFailures, result.Failures)
			assert.Equal(t, int32(tt.wantFailures), failures)

			var order []int64
			for _, app := range result.Applications {
				order = append(order, app.RuleID)
			}
			assert.Equal(t, tt.wantOrder, order)
			require.Len(t, result.Applied, len(tt.wantOrder))
		})
	}
}

func TestEngine_Evaluate_PerUnitUsesWalletUnits(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(nil)
	wallet := &entities.InvestorWallet{Metadata: map[string]interface{}{"units": float64(40)}}
	rules := []testRule{{id: 1, matches: true, params: MethodParams{Method: entities.CalculationPerUnit, Rate: decimal.RequireFromString("0.25")}}}

	result := engine.Evaluate(rules, &Context{Wallet: wallet, Gross: decimal.NewFromInt(100)})
	assert.True(t, decimal.NewFromInt(10).Equal(result.Total))

	result = engine.Evaluate(rules, &Context{Wallet: &entities.InvestorWallet{}, Gross: decimal.NewFromInt(100)})
	assert.True(t, decimal.RequireFromString("0.25").Equal(result.Total))
}
