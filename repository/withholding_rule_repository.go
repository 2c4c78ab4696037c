package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlement/database"
	"settlement/domain/entities"

	"github.com/jackc/pgx/v5"
)

const withholdingRuleColumns = `
	id, name, COALESCE(description, ''), withholding_type, trigger_type, trigger_value,
	calculation_method, rate, fixed_amount, tiered_rates, COALESCE(formula, ''),
	minimum_amount, maximum_amount, jurisdiction, COALESCE(sub_jurisdiction, ''),
	COALESCE(investor_type, ''), COALESCE(asset_type, ''), COALESCE(distribution_type, ''),
	exemptions, is_active, priority, effective_from, effective_until, usage_count,
	last_used_at, created_at, updated_at`

// WithholdingRuleRepository implements withholding rule data access
type WithholdingRuleRepository struct {
	q Queryable
}

// NewWithholdingRuleRepository creates a new withholding rule repository
func NewWithholdingRuleRepository(db *database.DB) *WithholdingRuleRepository {
	return &WithholdingRuleRepository{q: db.Pool}
}

// newWithholdingRuleRepositoryWithTx creates a withholding rule repository bound to a transaction
func newWithholdingRuleRepositoryWithTx(tx Queryable) *WithholdingRuleRepository {
	return &WithholdingRuleRepository{q: tx}
}

// Create inserts a new rule
func (r *WithholdingRuleRepository) Create(ctx context.Context, rule *entities.WithholdingRule) error {
	tiers, exemptions, err := encodeRuleJSON(rule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO withholding_rules (
			name, description, withholding_type, trigger_type, trigger_value,
			calculation_method, rate, fixed_amount, tiered_rates, formula,
			minimum_amount, maximum_amount, jurisdiction, sub_jurisdiction,
			investor_type, asset_type, distribution_type, exemptions, is_active,
			priority, effective_from, effective_until
		)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12, $13,
		        NULLIF($14, ''), NULLIF($15, ''), NULLIF($16, ''), NULLIF($17, ''), $18, $19, $20, $21, $22)
		RETURNING id, created_at, updated_at
	`

	err = r.q.QueryRow(ctx, query,
		rule.Name,
		rule.Description,
		rule.Type,
		rule.TriggerType,
		rule.TriggerValue,
		rule.CalculationMethod,
		rule.Rate,
		rule.FixedAmount,
		tiers,
		rule.Formula,
		rule.MinimumAmount,
		rule.MaximumAmount,
		rule.Jurisdiction,
		rule.SubJurisdiction,
		rule.InvestorType,
		rule.AssetType,
		string(rule.DistributionType),
		exemptions,
		rule.IsActive,
		rule.Priority,
		rule.EffectiveFrom,
		rule.EffectiveUntil,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "failed to create withholding rule %q", rule.Name)
	}

	return nil
}

// GetByID retrieves a rule by ID
func (r *WithholdingRuleRepository) GetByID(ctx context.Context, id int64) (*entities.WithholdingRule, error) {
	query := `SELECT ` + withholdingRuleColumns + ` FROM withholding_rules WHERE id = $1`

	rule, err := scanWithholdingRule(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get withholding rule %d: %w", id, err)
	}
	return rule, nil
}

// Update persists the definition of a rule
func (r *WithholdingRuleRepository) Update(ctx context.Context, rule *entities.WithholdingRule) error {
	tiers, exemptions, err := encodeRuleJSON(rule)
	if err != nil {
		return err
	}

	query := `
		UPDATE withholding_rules
		SET name = $2,
		    description = NULLIF($3, ''),
		    withholding_type = $4,
		    trigger_type = $5,
		    trigger_value = $6,
		    calculation_method = $7,
		    rate = $8,
		    fixed_amount = $9,
		    tiered_rates = $10,
		    formula = NULLIF($11, ''),
		    minimum_amount = $12,
		    maximum_amount = $13,
		    jurisdiction = $14,
		    sub_jurisdiction = NULLIF($15, ''),
		    investor_type = NULLIF($16, ''),
		    asset_type = NULLIF($17, ''),
		    distribution_type = NULLIF($18, ''),
		    exemptions = $19,
		    is_active = $20,
		    priority = $21,
		    effective_from = $22,
		    effective_until = $23,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err = r.q.QueryRow(ctx, query,
		rule.ID,
		rule.Name,
		rule.Description,
		rule.Type,
		rule.TriggerType,
		rule.TriggerValue,
		rule.CalculationMethod,
		rule.Rate,
		rule.FixedAmount,
		tiers,
		rule.Formula,
		rule.MinimumAmount,
		rule.MaximumAmount,
		rule.Jurisdiction,
		rule.SubJurisdiction,
		rule.InvestorType,
		rule.AssetType,
		string(rule.DistributionType),
		exemptions,
		rule.IsActive,
		rule.Priority,
		rule.EffectiveFrom,
		rule.EffectiveUntil,
	).Scan(&rule.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("withholding rule %d: %w", rule.ID, entities.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update withholding rule %d: %w", rule.ID, err)
	}

	return nil
}

// SetActive enables or disables a rule
func (r *WithholdingRuleRepository) SetActive(ctx context.Context, id int64, active bool) error {
	result, err := r.q.Exec(ctx, `UPDATE withholding_rules SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to set active flag of withholding rule %d: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("withholding rule %d: %w", id, entities.ErrNotFound)
	}
	return nil
}

// GetActive returns every active rule, highest priority first
func (r *WithholdingRuleRepository) GetActive(ctx context.Context) ([]*entities.WithholdingRule, error) {
	query := `SELECT ` + withholdingRuleColumns + `
		FROM withholding_rules
		WHERE is_active
		ORDER BY priority DESC, id`

	return r.queryRules(ctx, query)
}

// GetByJurisdiction returns the active rules of a jurisdiction, highest priority first
func (r *WithholdingRuleRepository) GetByJurisdiction(ctx context.Context, jurisdiction string) ([]*entities.WithholdingRule, error) {
	query := `SELECT ` + withholdingRuleColumns + `
		FROM withholding_rules
		WHERE is_active AND jurisdiction = $1
		ORDER BY priority DESC, id`

	return r.queryRules(ctx, query, jurisdiction)
}

// RecordUsage increments usage_count and stamps last_used_at of each rule
func (r *WithholdingRuleRepository) RecordUsage(ctx context.Context, ruleIDs []int64, usedAt time.Time) error {
	if len(ruleIDs) == 0 {
		return nil
	}

	query := `
		UPDATE withholding_rules
		SET usage_count = usage_count + 1,
		    last_used_at = $2
		WHERE id = ANY($1)
	`
	if _, err := r.q.Exec(ctx, query, ruleIDs, usedAt); err != nil {
		return fmt.Errorf("failed to record usage of withholding rules %v: %w", ruleIDs, err)
	}
	return nil
}

// GetStats aggregates rules and the withholding recorded on completed real receipts
func (r *WithholdingRuleRepository) GetStats(ctx context.Context) (*entities.WithholdingStats, error) {
	query := `
		SELECT withholding_type, jurisdiction, COUNT(*),
		       COUNT(*) FILTER (WHERE is_active), COALESCE(SUM(usage_count), 0)
		FROM withholding_rules
		GROUP BY withholding_type, jurisdiction
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get withholding rule stats: %w", err)
	}
	defer rows.Close()

	stats := &entities.WithholdingStats{
		ByType:         make(map[entities.WithholdingType]int64),
		ByJurisdiction: make(map[string]int64),
	}
	for rows.Next() {
		var (
			ruleType     entities.WithholdingType
			jurisdiction string
			total, active int64
			usage int64
		)
		if err := rows.Scan(&ruleType, &jurisdiction, &total, &active, &usage); err != nil {
			return nil, fmt.Errorf("failed to scan withholding rule stats: %w", err)
		}
		stats.TotalRules += total
		stats.ActiveRules += active
		stats.TotalUsage += usage
		stats.ByType[ruleType] += total
		stats.ByJurisdiction[jurisdiction] += total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withholding rule stats: %w", err)
	}

	withheldQuery := `
		SELECT COALESCE(SUM(withholding_amount), 0)
		FROM payout_receipts
		WHERE status = 'COMPLETED' AND NOT is_dry_run
	`
	if err := r.q.QueryRow(ctx, withheldQuery).Scan(&stats.TotalWithheldAmount); err != nil {
		return nil, fmt.Errorf("failed to sum withheld amounts: %w", err)
	}

	return stats, nil
}

func (r *WithholdingRuleRepository) queryRules(ctx context.Context, query string, args ...interface{}) ([]*entities.WithholdingRule, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query withholding rules: %w", err)
	}
	defer rows.Close()

	var ruleSet []*entities.WithholdingRule
	for rows.Next() {
		rule, err := scanWithholdingRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withholding rule: %w", err)
		}
		ruleSet = append(ruleSet, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating withholding rules: %w", err)
	}

	return ruleSet, nil
}

func scanWithholdingRule(row rowScanner) (*entities.WithholdingRule, error) {
	var rule entities.WithholdingRule
	var tiers, exemptions []byte
	var distributionType string

	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&rule.Type,
		&rule.TriggerType,
		&rule.TriggerValue,
		&rule.CalculationMethod,
		&rule.Rate,
		&rule.FixedAmount,
		&tiers,
		&rule.Formula,
		&rule.MinimumAmount,
		&rule.MaximumAmount,
		&rule.Jurisdiction,
		&rule.SubJurisdiction,
		&rule.InvestorType,
		&rule.AssetType,
		&distributionType,
		&exemptions,
		&rule.IsActive,
		&rule.Priority,
		&rule.EffectiveFrom,
		&rule.EffectiveUntil,
		&rule.UsageCount,
		&rule.LastUsedAt,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rule.DistributionType = entities.DistributionType(distributionType)

	if err := unmarshalJSONB(tiers, &rule.TieredRates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tiered rates: %w", err)
	}
	if err := unmarshalJSONB(exemptions, &rule.Exemptions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal exemptions: %w", err)
	}
	return &rule, nil
}

func encodeRuleJSON(rule *entities.WithholdingRule) (tiers, exemptions []byte, err error) {
	if tiers, err = marshalJSONB(rule.TieredRates, "[]"); err != nil {
		return nil, nil, fmt.Errorf("failed to marshal tiered rates: %w", err)
	}
	if exemptions, err = marshalJSONB(rule.Exemptions, "[]"); err != nil {
		return nil, nil, fmt.Errorf("failed to marshal exemptions: %w", err)
	}
	return tiers, exemptions, nil
}
