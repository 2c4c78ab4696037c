package services

import (
	"context"
	"fmt"
	"sort"

	"settlement/domain/entities"
	"settlement/domain/interfaces"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// shareScale matches the stored precision of pro_rata_share
const shareScale = 18

// proRataCalculator splits a distribution's total across token holders and applies
// withholding and fees to each share
type proRataCalculator struct {
	withholdingService interfaces.WithholdingService
	feeService         interfaces.FeeService
	walletRegistry     interfaces.WalletRegistry
}

// NewProRataCalculator creates a new pro-rata calculator
func NewProRataCalculator(
	withholdingService interfaces.WithholdingService,
	feeService interfaces.FeeService,
	walletRegistry interfaces.WalletRegistry,
) interfaces.ProRataCalculator {
	return &proRataCalculator{
		withholdingService: withholdingService,
		feeService:         feeService,
		walletRegistry:     walletRegistry,
	}
}

// CalculateProRataShares returns one calculation per wallet with a positive balance,
// ordered by balance descending and wallet ID ascending. Gross shares are truncated
// to the stored scale and the residual goes to the largest holder, so the gross
// amounts always sum to the distribution total.
func (c *proRataCalculator) CalculateProRataShares(
	ctx context.Context,
	distribution *entities.Distribution,
	wallets []*entities.InvestorWallet,
) ([]*entities.ProRataCalculation, error) {
	if distribution == nil {
		return nil, entities.NewValidationError("distribution is required")
	}
	if !distribution.TotalAmount.IsPositive() {
		return nil, entities.NewValidationError("distribution amount must be positive, got %s", distribution.TotalAmount)
	}

	holders := make([]*entities.InvestorWallet, 0, len(wallets))
	totalTokens := decimal.Zero
	for _, w := range wallets {
		if w == nil || !w.TokenBalance.IsPositive() {
			continue
		}
		holders = append(holders, w)
		totalTokens = totalTokens.Add(w.TokenBalance)
	}
	if totalTokens.IsZero() {
		return nil, entities.ErrZeroSupply
	}

	sort.SliceStable(holders, func(i, j int) bool {
		if cmp := holders[i].TokenBalance.Cmp(holders[j].TokenBalance); cmp != 0 {
			return cmp > 0
		}
		return holders[i].ID < holders[j].ID
	})

	withholdingRules, err := c.withholdingService.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	pendingFees, err := c.feeService.PendingFees(ctx, distribution.AssetID)
	if err != nil {
		return nil, err
	}

	total := distribution.TotalAmount
	calcs := make([]*entities.ProRataCalculation, 0, len(holders))
	allocated := decimal.Zero
	for _, w := range holders {
		gross, _ := total.Mul(w.TokenBalance).QuoRem(totalTokens, entities.AmountScale)
		allocated = allocated.Add(gross)
		calcs = append(calcs, &entities.ProRataCalculation{
			Wallet:       w,
			TokenBalance: w.TokenBalance,
			Share:        w.TokenBalance.DivRound(totalTokens, shareScale),
			GrossAmount:  gross,
		})
	}
	if residual := total.Sub(allocated); !residual.IsZero() {
		calcs[0].GrossAmount = calcs[0].GrossAmount.Add(residual)
	}

	for _, calc := range calcs {
		c.applyDeductions(calc, distribution, withholdingRules, pendingFees)
	}

	log.WithFields(log.Fields{
		"distribution_id": distribution.ID,
		"recipients":      len(calcs),
		"skipped":         len(wallets) - len(holders),
		"total_tokens":    totalTokens.String(),
	}).Debug("Calculated pro-rata shares")

	return calcs, nil
}

// applyDeductions evaluates withholding before fees. Withholding is capped at gross
// and fees at whatever gross remains after withholding.
func (c *proRataCalculator) applyDeductions(
	calc *entities.ProRataCalculation,
	distribution *entities.Distribution,
	withholdingRules []*entities.WithholdingRule,
	pendingFees []*entities.FeeCapture,
) {
	gross := calc.GrossAmount

	withholding := c.withholdingService.Evaluate(withholdingRules, calc.Wallet, gross, distribution)
	calc.WithholdingAmount = entities.MinDecimal(entities.ClampNonNegative(withholding.Amount), gross)
	calc.WithholdingDetails = capApplications(withholding.Applications, calc.WithholdingAmount)

	remaining := gross.Sub(calc.WithholdingAmount)
	fees := c.feeService.Evaluate(pendingFees, calc.Wallet, gross, distribution)
	calc.FeeAmount = entities.MinDecimal(entities.ClampNonNegative(fees.Amount), remaining)
	calc.FeeBreakdown = capApplications(fees.Applications, calc.FeeAmount)

	calc.NetAmount = gross.Sub(calc.WithholdingAmount).Sub(calc.FeeAmount)
}

// capApplications trims applications in evaluation order so their amounts sum to at most limit
func capApplications(apps []entities.RuleApplication, limit decimal.Decimal) []entities.RuleApplication {
	remaining := limit
	for i := range apps {
		if apps[i].Error != "" {
			continue
		}
		if apps[i].Amount.GreaterThan(remaining) {
			apps[i].Amount = remaining
		}
		remaining = remaining.Sub(apps[i].Amount)
	}
	return apps
}

// PreviewPayout calculates the shares of a distribution's eligible wallets without side effects
func (c *proRataCalculator) PreviewPayout(ctx context.Context, distribution *entities.Distribution) (*interfaces.PayoutPreview, error) {
	wallets, err := c.walletRegistry.GetEligibleWallets(ctx, distribution.AssetID)
	if err != nil {
		return nil, fmt.Errorf("failed to get eligible wallets for asset %s: %w", distribution.AssetID, err)
	}
	if len(wallets) == 0 {
		return nil, entities.ErrNoEligibleWallets
	}

	calcs, err := c.CalculateProRataShares(ctx, distribution, wallets)
	if err != nil {
		return nil, err
	}
	return &interfaces.PayoutPreview{
		DistributionID: distribution.ID,
		Summary:        entities.Summarize(calcs),
		Calculations:   calcs,
	}, nil
}
