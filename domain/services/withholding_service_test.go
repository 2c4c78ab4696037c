package services

import (
	"context"
	"testing"
	"time"

	"settlement/domain/entities"
	"settlement/domain/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestWithholdingService_CreateRule(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("applies defaults", func(t *testing.T) {
		t.Parallel()
		mocks := NewTestMocks()
		service := NewWithholdingService(mocks.RuleRepo, nil, newTestClock(), nil)

		rule := percentageRule(0, "US", "0.3")
		rule.Type = ""
		rule.IsActive = false
		mocks.RuleRepo.On("Create", ctx, mock.MatchedBy(func(r *entities.WithholdingRule) bool {
			return r.Type == entities.WithholdingTypeTax && r.IsActive
		})).Return(nil).Run(func(args mock.Arguments) {
			args.Get(1).(*entities.WithholdingRule).ID = 7
		})

		created, err := service.CreateRule(ctx, rule)
		require.NoError(t, err)
		assert.Equal(t, int64(7), created.ID)
		mocks.RuleRepo.AssertExpectations(t)
	})

	tests := []struct {
		name   string
		modify func(r *entities.WithholdingRule)
	}{
		{"missing name", func(r *entities.WithholdingRule) { r.Name = "" }},
		{"unknown trigger", func(r *entities.WithholdingRule) { r.TriggerType = "LUNAR_PHASE" }},
		{"per unit method", func(r *entities.WithholdingRule) { r.CalculationMethod = entities.CalculationPerUnit }},
		{"negative rate", func(r *entities.WithholdingRule) { r.Rate = dec("-0.1") }},
		{"formula with function call", func(r *entities.WithholdingRule) {
			r.CalculationMethod = entities.CalculationFormula
			r.Formula = "max(amount, 10)"
		}},
		{"window ends before it starts", func(r *entities.WithholdingRule) {
			from := testNow
			until := testNow.Add(-time.Hour)
			r.EffectiveFrom = &from
			r.EffectiveUntil = &until
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mocks := NewTestMocks()
			service := NewWithholdingService(mocks.RuleRepo, nil, newTestClock(), nil)

			rule := percentageRule(0, "US", "0.3")
			tt.modify(rule)

			_, err := service.CreateRule(ctx, rule)
			assert.ErrorIs(t, err, entities.ErrValidation)
			mocks.RuleRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestWithholdingService_CalculateWithholding(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	expired := percentageRule(3, "US", "0.5")
	until := testNow.Add(-24 * time.Hour)
	expired.EffectiveUntil = &until

	inactive := percentageRule(4, "US", "0.5")
	inactive.IsActive = false

	fixed := &entities.WithholdingRule{
		ID:                5,
		Name:              "flat compliance charge",
		TriggerType:       entities.TriggerDistributionType,
		DistributionType:  entities.DistributionTypeDividend,
		CalculationMethod: entities.CalculationFixedAmount,
		FixedAmount:       dec("20"),
		IsActive:          true,
		Exemptions: []entities.Exemption{{
			Type:       entities.ExemptionFixed,
			Value:      dec("5"),
			Conditions: map[string]interface{}{"investorType": "PENSION"},
		}},
	}

	mocks := NewTestMocks()
	service := NewWithholdingService(mocks.RuleRepo, nil, newTestClock(), nil)
	mocks.RuleRepo.On("GetActive", ctx).Return([]*entities.WithholdingRule{
		percentageRule(1, "US", "0.10"), expired, inactive, fixed,
	}, nil)

	wallet := newWallet("w-1", testInvestorID, "1")
	wallet.Metadata = map[string]interface{}{"investorType": "PENSION"}

	result, err := service.CalculateWithholding(ctx, wallet, dec("1000"), newApprovedDistribution("1000"))
	require.NoError(t, err)

	// 10% of 1000 plus the flat 20 reduced by a 5 exemption
	assert.True(t, result.Amount.Equal(dec("115")), "got %s", result.Amount)
	assert.ElementsMatch(t, []int64{1, 5}, result.RuleIDs)
	require.Len(t, result.Applications, 2)
	for _, app := range result.Applications {
		if app.RuleID == 5 {
			assert.True(t, app.Exempted.Equal(dec("5")))
		}
	}
	mocks.RuleRepo.AssertExpectations(t)
}

func TestWithholdingService_FormulaFailureCountsAsZero(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mocks := NewTestMocks()
	metrics := new(testhelpers.MockSettlementMetrics)
	metrics.On("RecordRuleFailure", "withholding").Once()
	service := NewWithholdingService(mocks.RuleRepo, nil, newTestClock(), metrics)

	broken := &entities.WithholdingRule{
		ID:                9,
		Name:              "division by zero",
		TriggerType:       entities.TriggerAmountThreshold,
		CalculationMethod: entities.CalculationFormula,
		Formula:           "amount / 0",
		IsActive:          true,
	}
	mocks.RuleRepo.On("GetActive", ctx).Return([]*entities.WithholdingRule{broken, percentageRule(1, "US", "0.2")}, nil)

	result, err := service.CalculateWithholding(ctx, newWallet("w-1", testInvestorID, "1"), dec("100"), newApprovedDistribution("100"))
	require.NoError(t, err)
	assert.True(t, result.Amount.Equal(dec("20")))
	assert.Equal(t, 1, result.Failures)
	assert.Equal(t, []int64{1}, result.RuleIDs)
	metrics.AssertExpectations(t)
}

func TestWithholdingService_RecordUsageDedupes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mocks := NewTestMocks()
	service := NewWithholdingService(mocks.RuleRepo, nil, newTestClock(), nil)

	mocks.RuleRepo.On("RecordUsage", ctx, []int64{3, 1}, testNow).Return(nil)

	require.NoError(t, service.RecordUsage(ctx, []int64{3, 1, 3, 1}))
	require.NoError(t, service.RecordUsage(ctx, nil))
	mocks.RuleRepo.AssertNumberOfCalls(t, "RecordUsage", 1)
}

func TestWithholdingService_Administration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("deactivate unknown rule", func(t *testing.T) {
		t.Parallel()
		mocks := NewTestMocks()
		service := NewWithholdingService(mocks.RuleRepo, nil, newTestClock(), nil)
		mocks.RuleRepo.On("GetByID", ctx, int64(404)).Return(nil, nil)

		err := service.DeactivateRule(ctx, 404)
		assert.ErrorIs(t, err, entities.ErrNotFound)
	})

	t.Run("deactivate sets inactive", func(t *testing.T) {
		t.Parallel()
		mocks := NewTestMocks()
		service := NewWithholdingService(mocks.RuleRepo, nil, newTestClock(), nil)
		mocks.RuleRepo.On("GetByID", ctx, int64(1)).Return(percentageRule(1, "US", "0.1"), nil)
		mocks.RuleRepo.On("SetActive", ctx, int64(1), false).Return(nil)

		require.NoError(t, service.DeactivateRule(ctx, 1))
		mocks.RuleRepo.AssertExpectations(t)
	})

	t.Run("update keeps usage counters", func(t *testing.T) {
		t.Parallel()
		mocks := NewTestMocks()
		service := NewWithholdingService(mocks.RuleRepo, nil, newTestClock(), nil)

		stored := percentageRule(1, "US", "0.1")
		stored.UsageCount = 12
		lastUsed := testNow.Add(-time.Hour)
		stored.LastUsedAt = &lastUsed
		mocks.RuleRepo.On("GetByID", ctx, int64(1)).Return(stored, nil)
		mocks.RuleRepo.On("Update", ctx, mock.MatchedBy(func(r *entities.WithholdingRule) bool {
			return r.UsageCount == 12 && r.LastUsedAt != nil && r.Rate.Equal(dec("0.2"))
		})).Return(nil)

		require.NoError(t, service.UpdateRule(ctx, percentageRule(1, "US", "0.2")))
		mocks.RuleRepo.AssertExpectations(t)
	})

	t.Run("jurisdiction is required", func(t *testing.T) {
		t.Parallel()
		service := NewWithholdingService(NewTestMocks().RuleRepo, nil, newTestClock(), nil)
		_, err := service.GetRulesByJurisdiction(ctx, "  ")
		assert.ErrorIs(t, err, entities.ErrValidation)
	})
}
