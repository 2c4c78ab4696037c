package rules

import (
	"strconv"
	"strings"
	"time"

	"settlement/domain/entities"
)

// MatchWithholdingTrigger evaluates a withholding rule's trigger against the context
func MatchWithholdingTrigger(r *entities.WithholdingRule, c *Context) bool {
	switch r.TriggerType {
	case entities.TriggerAmountThreshold:
		if r.MinimumAmount.Valid && c.Gross.LessThan(r.MinimumAmount.Decimal) {
			return false
		}
		if r.MaximumAmount.Valid && c.Gross.GreaterThan(r.MaximumAmount.Decimal) {
			return false
		}
		return true

	case entities.TriggerJurisdiction:
		if c.Wallet == nil || c.Wallet.Jurisdiction == "" {
			return false
		}
		if r.Jurisdiction != "" && r.Jurisdiction == c.Wallet.Jurisdiction {
			return true
		}
		return r.SubJurisdiction != "" && strings.Contains(c.Wallet.Jurisdiction, r.SubJurisdiction)

	case entities.TriggerInvestorType:
		want := firstNonEmpty(r.InvestorType, r.TriggerValue)
		return want != "" && c.Wallet != nil && c.Wallet.InvestorType() == want

	case entities.TriggerAssetType:
		want := firstNonEmpty(r.AssetType, r.TriggerValue)
		return want != "" && c.Distribution != nil && c.Distribution.AssetType() == want

	case entities.TriggerDistributionType:
		want := firstNonEmpty(string(r.DistributionType), r.TriggerValue)
		return want != "" && c.Distribution != nil && string(c.Distribution.Type) == want

	case entities.TriggerTimeBased:
		return MatchCalendar(r.TriggerValue, c.Now)
	}
	return false
}

// MatchCalendar evaluates a comma-separated calendar expression against now.
// Each term is a month number (1-12), a quarter (Q1-Q4) or "*". Empty or
// malformed expressions never match.
func MatchCalendar(expr string, now time.Time) bool {
	month := int(now.Month())
	quarter := (month-1)/3 + 1
	for _, term := range strings.Split(expr, ",") {
		term = strings.ToUpper(strings.TrimSpace(term))
		switch {
		case term == "":
			continue
		case term == "*":
			return true
		case strings.HasPrefix(term, "Q"):
			if q, err := strconv.Atoi(term[1:]); err == nil && q == quarter {
				return true
			}
		default:
			if m, err := strconv.Atoi(term); err == nil && m == month {
				return true
			}
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
