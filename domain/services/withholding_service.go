package services

import (
	"context"
	"fmt"
	"strings"

	"settlement/domain/entities"
	"settlement/domain/interfaces"
	"settlement/domain/rules"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// withholdingService implements the withholding rule engine and rule administration
type withholdingService struct {
	ruleRepo interfaces.WithholdingRuleRepository
	engine   *rules.Engine[*entities.WithholdingRule]
	clock    clockwork.Clock
}

// NewWithholdingService creates a new withholding service. formulas may be shared
// with the fee service so compiled expressions are cached once.
func NewWithholdingService(
	ruleRepo interfaces.WithholdingRuleRepository,
	formulas *rules.FormulaEvaluator,
	clock clockwork.Clock,
	metrics interfaces.SettlementMetrics,
) interfaces.WithholdingService {
	metrics = metricsOrNoop(metrics)
	engine := rules.NewEngine(rules.Definition[*entities.WithholdingRule]{
		Kind:     "withholding",
		Describe: describeWithholdingRule,
		Matches: func(r *entities.WithholdingRule, c *rules.Context) bool {
			return r.IsApplicableAt(c.Now) && rules.MatchWithholdingTrigger(r, c)
		},
		Adjust: applyExemptions,
		OnFailure: func(kind string, _ rules.Descriptor, _ error) {
			metrics.RecordRuleFailure(kind)
		},
	}, formulas)

	return &withholdingService{
		ruleRepo: ruleRepo,
		engine:   engine,
		clock:    clock,
	}
}

func describeWithholdingRule(r *entities.WithholdingRule) rules.Descriptor {
	return rules.Descriptor{
		ID:       r.ID,
		Name:     r.Name,
		Priority: r.Priority,
		Params: rules.MethodParams{
			Method:  r.CalculationMethod,
			Rate:    r.Rate,
			Fixed:   r.FixedAmount,
			Tiers:   r.TieredRates,
			Formula: r.Formula,
		},
	}
}

// applyExemptions reduces a rule's withholding by every exemption whose conditions
// match the investor's metadata. Percentage exemptions are relative to the rule's
// unreduced withholding.
func applyExemptions(r *entities.WithholdingRule, amount decimal.Decimal, c *rules.Context) (decimal.Decimal, decimal.Decimal) {
	if c.Wallet == nil || len(r.Exemptions) == 0 {
		return amount, decimal.Zero
	}

	adjusted := amount
	for _, ex := range r.Exemptions {
		if !entities.MetadataMatches(c.Wallet.Metadata, ex.Conditions) {
			continue
		}
		switch ex.Type {
		case entities.ExemptionPercentage:
			adjusted = adjusted.Sub(amount.Mul(ex.Value).Div(decimal.NewFromInt(100)))
		case entities.ExemptionFixed:
			adjusted = adjusted.Sub(ex.Value)
		}
	}
	adjusted = entities.ClampNonNegative(adjusted)
	return adjusted, amount.Sub(adjusted)
}

// ActiveRules loads the rules an evaluation may consider
func (s *withholdingService) ActiveRules(ctx context.Context) ([]*entities.WithholdingRule, error) {
	ruleSet, err := s.ruleRepo.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load withholding rules: %w", err)
	}
	return ruleSet, nil
}

// Evaluate computes the withholding owed on gross from a preloaded rule set
func (s *withholdingService) Evaluate(
	ruleSet []*entities.WithholdingRule,
	wallet *entities.InvestorWallet,
	gross decimal.Decimal,
	distribution *entities.Distribution,
) interfaces.DeductionResult {
	result := s.engine.Evaluate(ruleSet, &rules.Context{
		Wallet:       wallet,
		Distribution: distribution,
		Gross:        gross,
		Now:          s.clock.Now(),
	})
	return toDeductionResult(result.Total, result.Applications, result.Failures)
}

// CalculateWithholding loads the active rules and evaluates them
func (s *withholdingService) CalculateWithholding(
	ctx context.Context,
	wallet *entities.InvestorWallet,
	gross decimal.Decimal,
	distribution *entities.Distribution,
) (*interfaces.DeductionResult, error) {
	ruleSet, err := s.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	result := s.Evaluate(ruleSet, wallet, gross, distribution)
	return &result, nil
}

// CreateRule validates and stores a new rule
func (s *withholdingService) CreateRule(ctx context.Context, rule *entities.WithholdingRule) (*entities.WithholdingRule, error) {
	if err := s.validateRule(rule); err != nil {
		return nil, err
	}
	if rule.Type == "" {
		rule.Type = entities.WithholdingTypeTax
	}
	rule.IsActive = true

	if err := s.ruleRepo.Create(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create withholding rule: %w", err)
	}

	log.WithFields(log.Fields{
		"rule_id":      rule.ID,
		"name":         rule.Name,
		"trigger_type": rule.TriggerType,
		"method":       rule.CalculationMethod,
	}).Info("Created withholding rule")
	return rule, nil
}

// UpdateRule validates and persists a rule's definition
func (s *withholdingService) UpdateRule(ctx context.Context, rule *entities.WithholdingRule) error {
	existing, err := s.GetRule(ctx, rule.ID)
	if err != nil {
		return err
	}
	if err := s.validateRule(rule); err != nil {
		return err
	}
	rule.UsageCount = existing.UsageCount
	rule.LastUsedAt = existing.LastUsedAt

	if err := s.ruleRepo.Update(ctx, rule); err != nil {
		return fmt.Errorf("failed to update withholding rule %d: %w", rule.ID, err)
	}
	return nil
}

// GetRule retrieves a rule by ID
func (s *withholdingService) GetRule(ctx context.Context, id int64) (*entities.WithholdingRule, error) {
	rule, err := s.ruleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get withholding rule %d: %w", id, err)
	}
	if rule == nil {
		return nil, fmt.Errorf("withholding rule %d: %w", id, entities.ErrNotFound)
	}
	return rule, nil
}

// DeactivateRule disables a rule; rules are never deleted
func (s *withholdingService) DeactivateRule(ctx context.Context, id int64) error {
	if _, err := s.GetRule(ctx, id); err != nil {
		return err
	}
	if err := s.ruleRepo.SetActive(ctx, id, false); err != nil {
		return fmt.Errorf("failed to deactivate withholding rule %d: %w", id, err)
	}
	log.WithField("rule_id", id).Info("Deactivated withholding rule")
	return nil
}

// GetRulesByJurisdiction returns the active rules of a jurisdiction
func (s *withholdingService) GetRulesByJurisdiction(ctx context.Context, jurisdiction string) ([]*entities.WithholdingRule, error) {
	jurisdiction = strings.TrimSpace(jurisdiction)
	if jurisdiction == "" {
		return nil, entities.NewValidationError("jurisdiction is required")
	}
	ruleSet, err := s.ruleRepo.GetByJurisdiction(ctx, jurisdiction)
	if err != nil {
		return nil, fmt.Errorf("failed to get withholding rules for %s: %w", jurisdiction, err)
	}
	return ruleSet, nil
}

// RecordUsage bumps the usage counters of the given rules
func (s *withholdingService) RecordUsage(ctx context.Context, ruleIDs []int64) error {
	if len(ruleIDs) == 0 {
		return nil
	}
	if err := s.ruleRepo.RecordUsage(ctx, dedupeIDs(ruleIDs), s.clock.Now()); err != nil {
		return fmt.Errorf("failed to record withholding rule usage: %w", err)
	}
	return nil
}

// GetWithholdingStats aggregates rules and withheld amounts
func (s *withholdingService) GetWithholdingStats(ctx context.Context) (*entities.WithholdingStats, error) {
	stats, err := s.ruleRepo.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get withholding stats: %w", err)
	}
	return stats, nil
}

func (s *withholdingService) validateRule(rule *entities.WithholdingRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.CalculationMethod == entities.CalculationFormula {
		if err := s.engine.Formulas().Validate(rule.Formula); err != nil {
			return entities.NewValidationError("invalid formula: %v", err)
		}
	}
	if rule.EffectiveFrom != nil && rule.EffectiveUntil != nil && rule.EffectiveUntil.Before(*rule.EffectiveFrom) {
		return entities.NewValidationError("effective_until precedes effective_from")
	}
	return nil
}

func toDeductionResult(total decimal.Decimal, apps []entities.RuleApplication, failures int) interfaces.DeductionResult {
	result := interfaces.DeductionResult{
		Amount:       total,
		Applications: apps,
		Failures:     failures,
	}
	for _, app := range apps {
		if app.Error == "" {
			result.RuleIDs = append(result.RuleIDs, app.RuleID)
		}
	}
	return result
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
