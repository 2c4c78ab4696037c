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

const distributionColumns = `
	id, asset_id, asset_name, distribution_type, frequency, status,
	scheduled_date, executed_date, total_amount, distributed_amount,
	withheld_amount, fee_amount, net_amount, stablecoin_type, exchange_rate,
	approval_workflow, COALESCE(approved_by, ''), approved_at,
	COALESCE(cancellation_reason, ''), COALESCE(cancelled_by, ''), cancelled_at,
	COALESCE(execution_error, ''), execution_claimed_at, is_recurring, recurrence,
	parent_distribution_id, last_payout_run_id, metadata,
	COALESCE(notes, ''), COALESCE(created_by, ''), created_at, updated_at`

// DistributionRepository implements distribution data access
type DistributionRepository struct {
	q Queryable
}

// NewDistributionRepository creates a new distribution repository
func NewDistributionRepository(db *database.DB) *DistributionRepository {
	return &DistributionRepository{q: db.Pool}
}

// newDistributionRepositoryWithTx creates a distribution repository bound to a transaction
func newDistributionRepositoryWithTx(tx Queryable) *DistributionRepository {
	return &DistributionRepository{q: tx}
}

// Create inserts a new distribution
func (r *DistributionRepository) Create(ctx context.Context, d *entities.Distribution) error {
	workflow, recurrence, metadata, err := encodeDistributionJSON(d)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO distributions (
			asset_id, asset_name, distribution_type, frequency, status,
			scheduled_date, total_amount, stablecoin_type, exchange_rate,
			approval_workflow, is_recurring, recurrence, parent_distribution_id,
			metadata, notes, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NULLIF($15, ''), NULLIF($16, ''))
		RETURNING id, created_at, updated_at
	`

	err = r.q.QueryRow(ctx, query,
		d.AssetID,
		d.AssetName,
		d.Type,
		d.Frequency,
		d.Status,
		d.ScheduledDate,
		d.TotalAmount,
		d.StablecoinType,
		d.ExchangeRate,
		workflow,
		d.IsRecurring,
		recurrence,
		d.ParentDistributionID,
		metadata,
		d.Notes,
		d.CreatedBy,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "failed to create distribution for asset %s", d.AssetID)
	}

	return nil
}

// GetByID retrieves a distribution by ID
func (r *DistributionRepository) GetByID(ctx context.Context, id int64) (*entities.Distribution, error) {
	query := `SELECT ` + distributionColumns + ` FROM distributions WHERE id = $1`

	d, err := scanDistribution(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get distribution %d: %w", id, err)
	}
	return d, nil
}

// GetByIDForUpdate retrieves a distribution and locks its row until the transaction ends
func (r *DistributionRepository) GetByIDForUpdate(ctx context.Context, id int64) (*entities.Distribution, error) {
	query := `SELECT ` + distributionColumns + ` FROM distributions WHERE id = $1 FOR UPDATE`

	d, err := scanDistribution(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock distribution %d: %w", id, err)
	}
	return d, nil
}

// Update persists the mutable fields of a distribution
func (r *DistributionRepository) Update(ctx context.Context, d *entities.Distribution) error {
	workflow, recurrence, metadata, err := encodeDistributionJSON(d)
	if err != nil {
		return err
	}

	query := `
		UPDATE distributions
		SET status = $2,
		    scheduled_date = $3,
		    executed_date = $4,
		    total_amount = $5,
		    distributed_amount = $6,
		    withheld_amount = $7,
		    fee_amount = $8,
		    net_amount = $9,
		    approval_workflow = $10,
		    approved_by = NULLIF($11, ''),
		    approved_at = $12,
		    cancellation_reason = NULLIF($13, ''),
		    cancelled_by = NULLIF($14, ''),
		    cancelled_at = $15,
		    execution_error = NULLIF($16, ''),
		    recurrence = $17,
		    last_payout_run_id = $18,
		    metadata = $19,
		    notes = NULLIF($20, ''),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err = r.q.QueryRow(ctx, query,
		d.ID,
		d.Status,
		d.ScheduledDate,
		d.ExecutedDate,
		d.TotalAmount,
		d.DistributedAmount,
		d.WithheldAmount,
		d.FeeAmount,
		d.NetAmount,
		workflow,
		d.ApprovedBy,
		d.ApprovedAt,
		d.CancellationReason,
		d.CancelledBy,
		d.CancelledAt,
		d.ExecutionError,
		recurrence,
		d.LastPayoutRunID,
		metadata,
		d.Notes,
	).Scan(&d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("distribution %d: %w", d.ID, entities.ErrNotFound)
	}
	if err != nil {
		return mapWriteError(err, "failed to update distribution %d", d.ID)
	}

	return nil
}

// ClaimExecution takes an APPROVED distribution for execution. It reports false if
// the distribution has left APPROVED or another executor already holds it.
func (r *DistributionRepository) ClaimExecution(ctx context.Context, id int64, claimedAt time.Time) (bool, error) {
	query := `
		UPDATE distributions
		SET execution_claimed_at = $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'APPROVED'
		  AND execution_claimed_at IS NULL
	`

	result, err := r.q.Exec(ctx, query, id, claimedAt)
	if err != nil {
		return false, fmt.Errorf("failed to claim distribution %d for execution: %w", id, err)
	}
	return result.RowsAffected() > 0, nil
}

// RecordOutcome stores the EXECUTED or FAILED outcome of a claimed execution. It
// reports false if the distribution is no longer APPROVED and claimed.
func (r *DistributionRepository) RecordOutcome(ctx context.Context, d *entities.Distribution) (bool, error) {
	query := `
		UPDATE distributions
		SET status = $2,
		    executed_date = $3,
		    distributed_amount = $4,
		    withheld_amount = $5,
		    fee_amount = $6,
		    net_amount = $7,
		    execution_error = NULLIF($8, ''),
		    last_payout_run_id = $9,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'APPROVED'
		  AND execution_claimed_at IS NOT NULL
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query,
		d.ID,
		d.Status,
		d.ExecutedDate,
		d.DistributedAmount,
		d.WithheldAmount,
		d.FeeAmount,
		d.NetAmount,
		d.ExecutionError,
		d.LastPayoutRunID,
	).Scan(&d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapWriteError(err, "failed to record outcome of distribution %d", d.ID)
	}
	return true, nil
}

// HasPendingForAsset reports whether a PENDING distribution exists for the asset
func (r *DistributionRepository) HasPendingForAsset(ctx context.Context, assetID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM distributions WHERE asset_id = $1 AND status = 'PENDING')`

	var exists bool
	if err := r.q.QueryRow(ctx, query, assetID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check pending distributions for asset %s: %w", assetID, err)
	}
	return exists, nil
}

// HasChild reports whether a recurring instance was already created from parentID
func (r *DistributionRepository) HasChild(ctx context.Context, parentID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM distributions WHERE parent_distribution_id = $1)`

	var exists bool
	if err := r.q.QueryRow(ctx, query, parentID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check children of distribution %d: %w", parentID, err)
	}
	return exists, nil
}

// Search returns a page of matching distributions, most recently scheduled first
func (r *DistributionRepository) Search(ctx context.Context, filter entities.DistributionFilter) ([]*entities.Distribution, int64, error) {
	var where whereBuilder
	if filter.AssetID != "" {
		where.add("asset_id = ?", filter.AssetID)
	}
	if filter.Status != "" {
		where.add("status = ?", filter.Status)
	}
	if filter.Type != "" {
		where.add("distribution_type = ?", filter.Type)
	}
	if filter.From != nil {
		where.add("scheduled_date >= ?", *filter.From)
	}
	if filter.To != nil {
		where.add("scheduled_date <= ?", *filter.To)
	}

	var total int64
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM distributions `+where.sql(), where.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count distributions: %w", err)
	}

	limit, args := where.page(filter.Limit, filter.Offset)
	query := `SELECT ` + distributionColumns + ` FROM distributions ` + where.sql() +
		` ORDER BY scheduled_date DESC, id DESC ` + limit

	distributions, err := r.queryDistributions(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return distributions, total, nil
}

// GetDue returns unclaimed APPROVED distributions scheduled at or before now, oldest first
func (r *DistributionRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]*entities.Distribution, error) {
	query := `SELECT ` + distributionColumns + `
		FROM distributions
		WHERE status = 'APPROVED' AND scheduled_date <= $1 AND execution_claimed_at IS NULL
		ORDER BY scheduled_date, id
		LIMIT $2`

	return r.queryDistributions(ctx, query, now, limit)
}

// GetExecutedRecurring returns EXECUTED recurring distributions that have no child yet
func (r *DistributionRepository) GetExecutedRecurring(ctx context.Context) ([]*entities.Distribution, error) {
	query := `SELECT ` + distributionColumns + `
		FROM distributions d
		WHERE d.status = 'EXECUTED'
		  AND (d.is_recurring OR d.frequency <> 'ONE_TIME')
		  AND NOT EXISTS (SELECT 1 FROM distributions c WHERE c.parent_distribution_id = d.id)
		ORDER BY d.scheduled_date, d.id`

	return r.queryDistributions(ctx, query)
}

// GetStats aggregates every distribution
func (r *DistributionRepository) GetStats(ctx context.Context) (*entities.DistributionStats, error) {
	query := `
		SELECT status, distribution_type, frequency, COUNT(*),
		       SUM(total_amount), SUM(distributed_amount), SUM(withheld_amount),
		       SUM(fee_amount), SUM(net_amount)
		FROM distributions
		GROUP BY status, distribution_type, frequency
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get distribution stats: %w", err)
	}
	defer rows.Close()

	stats := &entities.DistributionStats{
		ByStatus:    make(map[entities.DistributionStatus]int64),
		ByType:      make(map[entities.DistributionType]int64),
		ByFrequency: make(map[entities.DistributionFrequency]int64),
	}
	for rows.Next() {
		var (
			status    entities.DistributionStatus
			distType  entities.DistributionType
			frequency entities.DistributionFrequency
			count     int64
			total, distributed, withheld, fee, net decimal.Decimal
		)
		if err := rows.Scan(&status, &distType, &frequency, &count, &total, &distributed, &withheld, &fee, &net); err != nil {
			return nil, fmt.Errorf("failed to scan distribution stats: %w", err)
		}
		stats.Total += count
		stats.ByStatus[status] += count
		stats.ByType[distType] += count
		stats.ByFrequency[frequency] += count
		stats.TotalAmount = stats.TotalAmount.Add(total)
		stats.DistributedAmount = stats.DistributedAmount.Add(distributed)
		stats.WithheldAmount = stats.WithheldAmount.Add(withheld)
		stats.FeeAmount = stats.FeeAmount.Add(fee)
		stats.NetAmount = stats.NetAmount.Add(net)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating distribution stats: %w", err)
	}

	return stats, nil
}

func (r *DistributionRepository) queryDistributions(ctx context.Context, query string, args ...interface{}) ([]*entities.Distribution, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query distributions: %w", err)
	}
	defer rows.Close()

	var distributions []*entities.Distribution
	for rows.Next() {
		d, err := scanDistribution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan distribution: %w", err)
		}
		distributions = append(distributions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating distributions: %w", err)
	}

	return distributions, nil
}

func scanDistribution(row rowScanner) (*entities.Distribution, error) {
	var d entities.Distribution
	var workflow, recurrence, metadata []byte

	err := row.Scan(
		&d.ID,
		&d.AssetID,
		&d.AssetName,
		&d.Type,
		&d.Frequency,
		&d.Status,
		&d.ScheduledDate,
		&d.ExecutedDate,
		&d.TotalAmount,
		&d.DistributedAmount,
		&d.WithheldAmount,
		&d.FeeAmount,
		&d.NetAmount,
		&d.StablecoinType,
		&d.ExchangeRate,
		&workflow,
		&d.ApprovedBy,
		&d.ApprovedAt,
		&d.CancellationReason,
		&d.CancelledBy,
		&d.CancelledAt,
		&d.ExecutionError,
		&d.ExecutionClaimedAt,
		&d.IsRecurring,
		&recurrence,
		&d.ParentDistributionID,
		&d.LastPayoutRunID,
		&metadata,
		&d.Notes,
		&d.CreatedBy,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSONB(workflow, &d.ApprovalWorkflow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal approval workflow: %w", err)
	}
	if err := unmarshalJSONB(recurrence, &d.Recurrence); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recurrence: %w", err)
	}
	if err := unmarshalJSONB(metadata, &d.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &d, nil
}

func encodeDistributionJSON(d *entities.Distribution) (workflow, recurrence, metadata []byte, err error) {
	if workflow, err = marshalJSONB(d.ApprovalWorkflow, "{}"); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal approval workflow: %w", err)
	}
	if recurrence, err = marshalJSONB(d.Recurrence, "{}"); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal recurrence: %w", err)
	}
	if metadata, err = marshalJSONB(d.Metadata, "{}"); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return workflow, recurrence, metadata, nil
}
