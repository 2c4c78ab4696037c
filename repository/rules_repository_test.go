package repository

import (
	"context"
	"testing"
	"time"

	"settlement/domain/entities"
	"settlement/repository/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithholdingRuleRepository(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewWithholdingRuleRepository(testDB.DB)
	ctx := context.Background()

	federal := testutil.CreateTestWithholdingRule("US federal", "US", "0.15", 10)
	federal.MaximumAmount = decimal.NewNullDecimal(decimal.NewFromInt(1000))
	federal.Exemptions = []entities.Exemption{{
		Type:       entities.ExemptionPercentage,
		Value:      decimal.NewFromInt(50),
		Conditions: map[string]interface{}{"treatyCountry": "CA"},
	}}
	state := testutil.CreateTestWithholdingRule("US state", "US", "0.05", 20)
	state.CalculationMethod = entities.CalculationTiered
	state.TieredRates = []entities.Tier{
		{Threshold: decimal.Zero, Rate: decimal.RequireFromString("0.01")},
		{Threshold: decimal.NewFromInt(1000), Rate: decimal.RequireFromString("0.05")},
	}
	hk := testutil.CreateTestWithholdingRule("HK levy", "HK", "0.02", 5)
	hk.CalculationMethod = entities.CalculationFormula
	hk.Formula = "gross * 0.02"

	for _, rule := range []*entities.WithholdingRule{federal, state, hk} {
		require.NoError(t, repo.Create(ctx, rule))
		assert.NotZero(t, rule.ID)
	}

	t.Run("round trip", func(t *testing.T) {
		stored, err := repo.GetByID(ctx, federal.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.True(t, stored.Rate.Equal(decimal.RequireFromString("0.15")))
		assert.True(t, stored.MaximumAmount.Valid)
		assert.False(t, stored.MinimumAmount.Valid)
		require.Len(t, stored.Exemptions, 1)
		assert.Equal(t, "CA", stored.Exemptions[0].Conditions["treatyCountry"])

		tiered, err := repo.GetByID(ctx, state.ID)
		require.NoError(t, err)
		require.Len(t, tiered.TieredRates, 2)
		assert.True(t, tiered.TieredRates[1].Threshold.Equal(decimal.NewFromInt(1000)))

		missing, err := repo.GetByID(ctx, 9999)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("ordered by priority", func(t *testing.T) {
		active, err := repo.GetActive(ctx)
		require.NoError(t, err)
		require.Len(t, active, 3)
		assert.Equal(t, []string{"US state", "US federal", "HK levy"},
			[]string{active[0].Name, active[1].Name, active[2].Name})

		us, err := repo.GetByJurisdiction(ctx, "US")
		require.NoError(t, err)
		require.Len(t, us, 2)
		assert.Equal(t, state.ID, us[0].ID)
	})

	t.Run("deactivated rules are kept but not active", func(t *testing.T) {
		require.NoError(t, repo.SetActive(ctx, hk.ID, false))

		active, err := repo.GetActive(ctx)
		require.NoError(t, err)
		assert.Len(t, active, 2)

		stored, err := repo.GetByID(ctx, hk.ID)
		require.NoError(t, err)
		assert.False(t, stored.IsActive)

		assert.ErrorIs(t, repo.SetActive(ctx, 9999, false), entities.ErrNotFound)
	})

	t.Run("update", func(t *testing.T) {
		federal.Rate = decimal.RequireFromString("0.30")
		federal.Description = "treaty rate"
		require.NoError(t, repo.Update(ctx, federal))

		stored, err := repo.GetByID(ctx, federal.ID)
		require.NoError(t, err)
		assert.True(t, stored.Rate.Equal(decimal.RequireFromString("0.3")))
		assert.Equal(t, "treaty rate", stored.Description)
	})

	t.Run("usage and stats", func(t *testing.T) {
		usedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, repo.RecordUsage(ctx, []int64{federal.ID, state.ID}, usedAt))
		require.NoError(t, repo.RecordUsage(ctx, []int64{federal.ID}, usedAt))
		require.NoError(t, repo.RecordUsage(ctx, nil, usedAt))

		stored, err := repo.GetByID(ctx, federal.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, stored.UsageCount)
		require.NotNil(t, stored.LastUsedAt)
		assert.True(t, stored.LastUsedAt.Equal(usedAt))

		stats, err := repo.GetStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.TotalRules)
		assert.Equal(t, int64(2), stats.ActiveRules)
		assert.Equal(t, int64(3), stats.TotalUsage)
		assert.Equal(t, int64(2), stats.ByJurisdiction["US"])
		assert.Equal(t, int64(3), stats.ByType[entities.WithholdingTypeTax])
		assert.True(t, stats.TotalWithheldAmount.IsZero())
	})
}

func TestFeeCaptureRepository(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewFeeCaptureRepository(testDB.DB)
	ctx := context.Background()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	pastDue := now.Add(-24 * time.Hour)
	futureDue := now.Add(24 * time.Hour)

	management := testutil.CreateTestFeeCapture("asset-fee", "inv-1", "0.01")
	management.DueDate = &pastDue
	management.IsAutomatic = true
	custody := testutil.CreateTestFeeCapture("asset-fee", "inv-1", "0.002")
	custody.FeeType = entities.FeeTypeCustody
	custody.FeeName = "Custody fee"
	custody.Priority = 5
	custody.DueDate = &pastDue
	admin := testutil.CreateTestFeeCapture("asset-fee", "inv-2", "0")
	admin.FeeType = entities.FeeTypeAdministration
	admin.FeeName = "Admin fee"
	admin.CalculationMethod = entities.CalculationFixedAmount
	admin.FixedAmount = decimal.NewFromInt(25)
	admin.DueDate = &futureDue
	other := testutil.CreateTestFeeCapture("asset-other", "inv-1", "0.01")

	for _, fee := range []*entities.FeeCapture{management, custody, admin, other} {
		require.NoError(t, repo.Create(ctx, fee))
	}

	t.Run("pending by asset", func(t *testing.T) {
		pending, err := repo.GetPendingByAsset(ctx, "asset-fee")
		require.NoError(t, err)
		require.Len(t, pending, 3)
		assert.Equal(t, custody.ID, pending[0].ID, "higher priority first within an investor")
		assert.Equal(t, management.ID, pending[1].ID)
		assert.Equal(t, admin.ID, pending[2].ID)
	})

	t.Run("overdue", func(t *testing.T) {
		overdue, err := repo.GetOverdue(ctx, now, false)
		require.NoError(t, err)
		assert.Len(t, overdue, 2)

		automatic, err := repo.GetOverdue(ctx, now, true)
		require.NoError(t, err)
		require.Len(t, automatic, 1)
		assert.Equal(t, management.ID, automatic[0].ID)
	})

	t.Run("record calculated", func(t *testing.T) {
		require.NoError(t, repo.RecordCalculated(ctx, map[int64]decimal.Decimal{
			management.ID: decimal.RequireFromString("12.5"),
			custody.ID:    decimal.RequireFromString("2.5"),
		}))

		stored, err := repo.GetByID(ctx, management.ID)
		require.NoError(t, err)
		assert.True(t, stored.CalculatedFee.Equal(decimal.RequireFromString("12.5")))
		assert.Equal(t, entities.FeeStatusPending, stored.Status)
	})

	t.Run("update status", func(t *testing.T) {
		management.Status = entities.FeeStatusCollected
		management.CollectedFee = decimal.RequireFromString("12.5")
		management.CalculatedFee = decimal.RequireFromString("12.5")
		management.CollectedAt = &now
		management.TransactionHash = "0xfee"
		management.StatusReason = "collected automatically"
		require.NoError(t, repo.UpdateStatus(ctx, management))

		stored, err := repo.GetByID(ctx, management.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.FeeStatusCollected, stored.Status)
		assert.Equal(t, "0xfee", stored.TransactionHash)
		require.NotNil(t, stored.CollectedAt)

		missing := *management
		missing.ID = 9999
		assert.ErrorIs(t, repo.UpdateStatus(ctx, &missing), entities.ErrNotFound)
	})

	t.Run("lookups and stats", func(t *testing.T) {
		byInvestor, err := repo.GetByInvestor(ctx, "inv-1")
		require.NoError(t, err)
		assert.Len(t, byInvestor, 3)

		byAsset, err := repo.GetByAsset(ctx, "asset-other")
		require.NoError(t, err)
		require.Len(t, byAsset, 1)
		assert.Equal(t, other.ID, byAsset[0].ID)

		stats, err := repo.GetStats(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(4), stats.TotalFees)
		assert.Equal(t, int64(1), stats.ByStatus[entities.FeeStatusCollected])
		assert.Equal(t, int64(3), stats.ByStatus[entities.FeeStatusPending])
		assert.Equal(t, int64(1), stats.OverdueFees)
		assert.True(t, stats.TotalCollected.Equal(decimal.RequireFromString("12.5")))
		assert.True(t, stats.TotalCalculated.Equal(decimal.NewFromInt(15)))
	})
}

func TestInvestorWalletRepository(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewInvestorWalletRepository(testDB.DB)
	ctx := context.Background()

	small := testutil.CreateTestWallet("w-small", "inv-1", "asset-w", 100)
	large := testutil.CreateTestWallet("w-large", "inv-2", "asset-w", 900)
	unverified := testutil.CreateTestWallet("w-kyc", "inv-3", "asset-w", 500)
	unverified.IsKYCVerified = false
	suspended := testutil.CreateTestWallet("w-suspended", "inv-4", "asset-w", 500)
	suspended.Status = entities.WalletStatusSuspended
	empty := testutil.CreateTestWallet("w-empty", "inv-5", "asset-w", 0)
	elsewhere := testutil.CreateTestWallet("w-elsewhere", "inv-1", "asset-x", 300)

	for _, w := range []*entities.InvestorWallet{small, large, unverified, suspended, empty, elsewhere} {
		require.NoError(t, repo.Upsert(ctx, w))
	}

	t.Run("eligible wallets", func(t *testing.T) {
		eligible, err := repo.GetEligibleWallets(ctx, "asset-w")
		require.NoError(t, err)
		require.Len(t, eligible, 2)
		assert.Equal(t, "w-large", eligible[0].ID)
		assert.Equal(t, "w-small", eligible[1].ID)
		assert.Equal(t, "INDIVIDUAL", eligible[0].InvestorType())
	})

	t.Run("upsert replaces", func(t *testing.T) {
		small.TokenBalance = decimal.RequireFromString("1000.123456789012345678")
		require.NoError(t, repo.Upsert(ctx, small))

		stored, err := repo.GetByID(ctx, "w-small")
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.True(t, stored.TokenBalance.Equal(small.TokenBalance))

		eligible, err := repo.GetEligibleWallets(ctx, "asset-w")
		require.NoError(t, err)
		assert.Equal(t, "w-small", eligible[0].ID)
	})

	t.Run("address is unique per asset", func(t *testing.T) {
		clash := testutil.CreateTestWallet("w-clash", "inv-9", "asset-w", 10)
		clash.Address = large.Address
		assert.ErrorIs(t, repo.Upsert(ctx, clash), entities.ErrConflict)
	})

	t.Run("by investor", func(t *testing.T) {
		wallets, err := repo.GetByInvestor(ctx, "inv-1")
		require.NoError(t, err)
		assert.Len(t, wallets, 2)

		missing, err := repo.GetByID(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}
