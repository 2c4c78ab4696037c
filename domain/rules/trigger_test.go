package rules

import (
	"testing"
	"time"

	"settlement/domain/entities"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMatchCalendar(t *testing.T) {
	t.Parallel()

	may := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		expr string
		want bool
	}{
		{expr: "*", want: true},
		{expr: "5", want: true},
		{expr: "1, 5, 9", want: true},
		{expr: "Q2", want: true},
		{expr: "q2", want: true},
		{expr: "Q1,Q3", want: false},
		{expr: "12", want: false},
		{expr: "", want: false},
		{expr: "May", want: false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchCalendar(tt.expr, may), tt.expr)
	}
}

func TestMatchWithholdingTrigger(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)
	wallet := &entities.InvestorWallet{
		Jurisdiction: "US-CA",
		Metadata:     map[string]interface{}{"investorType": "INSTITUTIONAL"},
	}
	distribution := &entities.Distribution{
		Type:     entities.DistributionTypeInterest,
		Metadata: map[string]interface{}{"assetType": "BOND"},
	}
	ctx := &Context{Wallet: wallet, Distribution: distribution, Gross: decimal.NewFromInt(500), Now: now}

	tests := []struct {
		name string
		rule entities.WithholdingRule
		want bool
	}{
		{
			name: "jurisdiction exact",
			rule: entities.WithholdingRule{TriggerType: entities.TriggerJurisdiction, Jurisdiction: "US-CA"},
			want: true,
		},
		{
			name: "sub jurisdiction substring",
			rule: entities.WithholdingRule{TriggerType: entities.TriggerJurisdiction, Jurisdiction: "US", SubJurisdiction: "CA"},
			want: true,
		},
		{
			name: "jurisdiction mismatch",
			rule: entities.WithholdingRule{TriggerType: entities.TriggerJurisdiction, Jurisdiction: "UK"},
			want: false,
		},
		{
			name: "amount within bounds",
			rule: entities.WithholdingRule{
				TriggerType:   entities.TriggerAmountThreshold,
				MinimumAmount: decimal.NewNullDecimal(decimal.NewFromInt(100)),
				MaximumAmount: decimal.NewNullDecimal(decimal.NewFromInt(1000)),
			},
			want: true,
		},
		{
			name: "amount below minimum",
			rule: entities.WithholdingRule{
				TriggerType:   entities.TriggerAmountThreshold,
				MinimumAmount: decimal.NewNullDecimal(decimal.NewFromInt(501)),
			},
			want: false,
		},
		{
			name: "amount with open bounds",
			rule: entities.WithholdingRule{TriggerType: entities.TriggerAmountThreshold},
			want: true,
		},
		{
			name: "investor type",
			rule: entities.WithholdingRule{TriggerType: entities.TriggerInvestorType, InvestorType: "INSTITUTIONAL"},
			want: true,
		},
		{
			name: "investor type from trigger value",
			rule: entities.WithholdingRule{TriggerType: entities.TriggerInvestorType, TriggerValue: "RETAIL"},
			want: false,
		},
		{
			name: "asset type",
			rule: entities.WithholdingRule{TriggerType: entities.TriggerAssetType, AssetType: "BOND"},
			want: true,
		},
		{
			name: "distribution type",
			rule: entities.WithholdingRule{TriggerType: entities.TriggerDistributionType, DistributionType: entities.DistributionTypeInterest},
			want: true,
		},
		{
			name: "distribution type mismatch",
			rule: entities.WithholdingRule{TriggerType: entities.TriggerDistributionType, TriggerValue: "DIVIDEND"},
			want: false,
		},
		{
			name: "time based quarter",
			rule: entities.WithholdingRule{TriggerType: entities.TriggerTimeBased, TriggerValue: "Q4"},
			want: true,
		},
		{
			name: "unknown trigger",
			rule: entities.WithholdingRule{TriggerType: "LUNAR_PHASE"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rule := tt.rule
			assert.Equal(t, tt.want, MatchWithholdingTrigger(&rule, ctx))
		})
	}
}
