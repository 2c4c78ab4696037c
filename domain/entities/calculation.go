package entities

import "github.com/shopspring/decimal"

// ProRataCalculation is one investor's share of a distribution
type ProRataCalculation struct {
	Wallet             *InvestorWallet
	TokenBalance       decimal.Decimal
	Share              decimal.Decimal // Fraction of the contributing supply
	GrossAmount        decimal.Decimal
	WithholdingAmount  decimal.Decimal
	FeeAmount          decimal.Decimal
	NetAmount          decimal.Decimal
	WithholdingDetails []RuleApplication
	FeeBreakdown       []RuleApplication
}

// PayoutSummary totals a set of calculations
type PayoutSummary struct {
	Recipients       int             `json:"recipients"`
	TotalTokens      decimal.Decimal `json:"total_tokens"`
	TotalGross       decimal.Decimal `json:"total_gross"`
	TotalWithholding decimal.Decimal `json:"total_withholding"`
	TotalFees        decimal.Decimal `json:"total_fees"`
	TotalNet         decimal.Decimal `json:"total_net"`
}

// Summarize totals the calculations
func Summarize(calcs []*ProRataCalculation) PayoutSummary {
	s := PayoutSummary{Recipients: len(calcs)}
	for _, c := range calcs {
		s.TotalTokens = s.TotalTokens.Add(c.TokenBalance)
		s.TotalGross = s.TotalGross.Add(c.GrossAmount)
		s.TotalWithholding = s.TotalWithholding.Add(c.WithholdingAmount)
		s.TotalFees = s.TotalFees.Add(c.FeeAmount)
		s.TotalNet = s.TotalNet.Add(c.NetAmount)
	}
	return s
}
