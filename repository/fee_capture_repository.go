package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlement/database"
	"settlement/domain/entities"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const feeCaptureColumns = `
	id, asset_id, investor_id, distribution_id, payout_run_id, fee_type, fee_name,
	COALESCE(fee_description, ''), calculation_method, rate, fixed_amount, tiered_rates,
	COALESCE(formula, ''), base_amount, calculated_fee, collected_fee, waived_fee, priority,
	status, due_date, effective_from, effective_until, collected_at, waived_at, deferred_until,
	COALESCE(transaction_hash, ''), is_automatic, COALESCE(status_reason, ''), fee_metadata,
	created_at, updated_at`

// FeeCaptureRepository implements fee capture data access
type FeeCaptureRepository struct {
	q Queryable
}

// NewFeeCaptureRepository creates a new fee capture repository
func NewFeeCaptureRepository(db *database.DB) *FeeCaptureRepository {
	return &FeeCaptureRepository{q: db.Pool}
}

// newFeeCaptureRepositoryWithTx creates a fee capture repository bound to a transaction
func newFeeCaptureRepositoryWithTx(tx Queryable) *FeeCaptureRepository {
	return &FeeCaptureRepository{q: tx}
}

// Create inserts a new fee capture
func (r *FeeCaptureRepository) Create(ctx context.Context, fee *entities.FeeCapture) error {
	tiers, err := marshalJSONB(fee.TieredRates, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal tiered rates: %w", err)
	}
	metadata, err := marshalJSONB(fee.Metadata, "{}")
	if err != nil {
		return fmt.Errorf("failed to marshal fee metadata: %w", err)
	}

	query := `
		INSERT INTO fee_captures (
			asset_id, investor_id, distribution_id, fee_type, fee_name, fee_description,
			calculation_method, rate, fixed_amount, tiered_rates, formula, base_amount,
			priority, status, due_date, effective_from, effective_until, is_automatic, fee_metadata
		)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, NULLIF($11, ''),
		        $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id, created_at, updated_at
	`

	err = r.q.QueryRow(ctx, query,
		fee.AssetID,
		fee.InvestorID,
		fee.DistributionID,
		fee.FeeType,
		fee.FeeName,
		fee.FeeDescription,
		fee.CalculationMethod,
		fee.Rate,
		fee.FixedAmount,
		tiers,
		fee.Formula,
		fee.BaseAmount,
		fee.Priority,
		fee.Status,
		fee.DueDate,
		fee.EffectiveFrom,
		fee.EffectiveUntil,
		fee.IsAutomatic,
		metadata,
	).Scan(&fee.ID, &fee.CreatedAt, &fee.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "failed to create fee capture %q for investor %s", fee.FeeName, fee.InvestorID)
	}

	return nil
}

// GetByID retrieves a fee capture by ID
func (r *FeeCaptureRepository) GetByID(ctx context.Context, id int64) (*entities.FeeCapture, error) {
	query := `SELECT ` + feeCaptureColumns + ` FROM fee_captures WHERE id = $1`

	fee, err := scanFeeCapture(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fee capture %d: %w", id, err)
	}
	return fee, nil
}

// GetPendingByAsset returns the PENDING captures of an asset in priority order
func (r *FeeCaptureRepository) GetPendingByAsset(ctx context.Context, assetID string) ([]*entities.FeeCapture, error) {
	query := `SELECT ` + feeCaptureColumns + `
		FROM fee_captures
		WHERE asset_id = $1 AND status = 'PENDING'
		ORDER BY investor_id, priority DESC, id`

	return r.queryFees(ctx, query, assetID)
}

// GetByInvestor returns an investor's captures, newest first
func (r *FeeCaptureRepository) GetByInvestor(ctx context.Context, investorID string) ([]*entities.FeeCapture, error) {
	query := `SELECT ` + feeCaptureColumns + `
		FROM fee_captures
		WHERE investor_id = $1
		ORDER BY created_at DESC, id DESC`

	return r.queryFees(ctx, query, investorID)
}

// GetByAsset returns an asset's captures, newest first
func (r *FeeCaptureRepository) GetByAsset(ctx context.Context, assetID string) ([]*entities.FeeCapture, error) {
	query := `SELECT ` + feeCaptureColumns + `
		FROM fee_captures
		WHERE asset_id = $1
		ORDER BY created_at DESC, id DESC`

	return r.queryFees(ctx, query, assetID)
}

// GetOverdue returns PENDING captures whose due date has passed
func (r *FeeCaptureRepository) GetOverdue(ctx context.Context, now time.Time, automaticOnly bool) ([]*entities.FeeCapture, error) {
	query := `SELECT ` + feeCaptureColumns + `
		FROM fee_captures
		WHERE status = 'PENDING'
		  AND due_date IS NOT NULL
		  AND due_date < $1
		  AND ($2 = FALSE OR is_automatic)
		ORDER BY due_date, id`

	return r.queryFees(ctx, query, now, automaticOnly)
}

// UpdateStatus persists the status fields of a capture
func (r *FeeCaptureRepository) UpdateStatus(ctx context.Context, fee *entities.FeeCapture) error {
	query := `
		UPDATE fee_captures
		SET status = $2,
		    payout_run_id = $3,
		    calculated_fee = $4,
		    collected_fee = $5,
		    waived_fee = $6,
		    due_date = $7,
		    collected_at = $8,
		    waived_at = $9,
		    deferred_until = $10,
		    transaction_hash = NULLIF($11, ''),
		    status_reason = NULLIF($12, ''),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query,
		fee.ID,
		fee.Status,
		fee.PayoutRunID,
		fee.CalculatedFee,
		fee.CollectedFee,
		fee.WaivedFee,
		fee.DueDate,
		fee.CollectedAt,
		fee.WaivedAt,
		fee.DeferredUntil,
		fee.TransactionHash,
		fee.StatusReason,
	).Scan(&fee.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("fee capture %d: %w", fee.ID, entities.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update fee capture %d: %w", fee.ID, err)
	}

	return nil
}

// RecordCalculated stores the most recent calculated amount of each capture
func (r *FeeCaptureRepository) RecordCalculated(ctx context.Context, amounts map[int64]decimal.Decimal) error {
	if len(amounts) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(amounts))
	values := make([]decimal.Decimal, 0, len(amounts))
	for id, amount := range amounts {
		ids = append(ids, id)
		values = append(values, amount)
	}

	query := `
		UPDATE fee_captures AS f
		SET calculated_fee = c.amount,
		    updated_at = NOW()
		FROM unnest($1::bigint[], $2::numeric[]) AS c(id, amount)
		WHERE f.id = c.id
	`
	if _, err := r.q.Exec(ctx, query, ids, values); err != nil {
		return fmt.Errorf("failed to record calculated fees for %d captures: %w", len(ids), err)
	}
	return nil
}

// GetStats aggregates every capture
func (r *FeeCaptureRepository) GetStats(ctx context.Context, now time.Time) (*entities.FeeStats, error) {
	query := `
		SELECT status, fee_type, COUNT(*),
		       COALESCE(SUM(calculated_fee), 0),
		       COALESCE(SUM(collected_fee), 0),
		       COALESCE(SUM(waived_fee), 0),
		       COUNT(*) FILTER (WHERE status = 'PENDING' AND due_date < $1)
		FROM fee_captures
		GROUP BY status, fee_type
	`

	rows, err := r.q.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get fee stats: %w", err)
	}
	defer rows.Close()

	stats := &entities.FeeStats{
		ByStatus: make(map[entities.FeeStatus]int64),
		ByType:   make(map[entities.FeeType]int64),
	}
	for rows.Next() {
		var (
			status  entities.FeeStatus
			feeType entities.FeeType
			count, overdue                int64
			calculated, collected, waived decimal.Decimal
		)
		if err := rows.Scan(&status, &feeType, &count, &calculated, &collected, &waived, &overdue); err != nil {
			return nil, fmt.Errorf("failed to scan fee stats: %w", err)
		}
		stats.TotalFees += count
		stats.ByStatus[status] += count
		stats.ByType[feeType] += count
		stats.TotalCalculated = stats.TotalCalculated.Add(calculated)
		stats.TotalCollected = stats.TotalCollected.Add(collected)
		stats.TotalWaived = stats.TotalWaived.Add(waived)
		stats.OverdueFees += overdue
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fee stats: %w", err)
	}

	return stats, nil
}

func (r *FeeCaptureRepository) queryFees(ctx context.Context, query string, args ...interface{}) ([]*entities.FeeCapture, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fee captures: %w", err)
	}
	defer rows.Close()

	var fees []*entities.FeeCapture
	for rows.Next() {
		fee, err := scanFeeCapture(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fee capture: %w", err)
		}
		fees = append(fees, fee)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fee captures: %w", err)
	}

	return fees, nil
}

func scanFeeCapture(row rowScanner) (*entities.FeeCapture, error) {
	var fee entities.FeeCapture
	var tiers, metadata []byte

	err := row.Scan(
		&fee.ID,
		&fee.AssetID,
		&fee.InvestorID,
		&fee.DistributionID,
		&fee.PayoutRunID,
		&fee.FeeType,
		&fee.FeeName,
		&fee.FeeDescription,
		&fee.CalculationMethod,
		&fee.Rate,
		&fee.FixedAmount,
		&tiers,
		&fee.Formula,
		&fee.BaseAmount,
		&fee.CalculatedFee,
		&fee.CollectedFee,
		&fee.WaivedFee,
		&fee.Priority,
		&fee.Status,
		&fee.DueDate,
		&fee.EffectiveFrom,
		&fee.EffectiveUntil,
		&fee.CollectedAt,
		&fee.WaivedAt,
		&fee.DeferredUntil,
		&fee.TransactionHash,
		&fee.IsAutomatic,
		&fee.StatusReason,
		&metadata,
		&fee.CreatedAt,
		&fee.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSONB(tiers, &fee.TieredRates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tiered rates: %w", err)
	}
	if err := unmarshalJSONB(metadata, &fee.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fee metadata: %w", err)
	}
	return &fee, nil
}
