package rules

import (
	"sort"

	"settlement/domain/entities"

	"github.com/shopspring/decimal"
)

// TieredAmount charges each band of gross at its tier's rate. A tier spans from its
// threshold to the next tier's threshold; whatever remains after the last boundary
// is charged at the last tier's rate.
func TieredAmount(tiers []entities.Tier, gross decimal.Decimal) decimal.Decimal {
	if len(tiers) == 0 || !gross.IsPositive() {
		return decimal.Zero
	}

	sorted := make([]entities.Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Threshold.LessThan(sorted[j].Threshold)
	})

	total := decimal.Zero
	remaining := gross
	for i, tier := range sorted {
		band := remaining
		if i+1 < len(sorted) {
			band = entities.MinDecimal(remaining, sorted[i+1].Threshold.Sub(tier.Threshold))
		}
		if band.IsPositive() {
			total = total.Add(band.Mul(tier.Rate))
			remaining = remaining.Sub(band)
		}
		if !remaining.IsPositive() {
			break
		}
	}
	return total
}
