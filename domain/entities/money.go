package entities

import "github.com/shopspring/decimal"

// AmountScale is the number of decimal places stored for monetary amounts
const AmountScale = 6

// RoundAmount rounds a monetary amount to the stored scale
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}

// TruncateAmount drops digits beyond the stored scale without rounding up
func TruncateAmount(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(AmountScale)
}

// MinDecimal returns the smaller of a and b
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// ClampNonNegative returns zero for negative amounts
func ClampNonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
