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

const payoutRunColumns = `
	id, distribution_id, run_type, status, is_dry_run, batch_size, max_retries,
	retry_count, total_recipients, successful_payouts, failed_payouts,
	total_amount, successful_gross, successful_amount, failed_amount,
	total_fees, total_withholding, error_logs, cancel_requested,
	COALESCE(initiated_by, ''), started_at, completed_at, created_at, updated_at`

// PayoutRunRepository implements payout run data access.
// Counters only ever change through single UPDATE statements.
type PayoutRunRepository struct {
	q Queryable
}

// NewPayoutRunRepository creates a new payout run repository
func NewPayoutRunRepository(db *database.DB) *PayoutRunRepository {
	return &PayoutRunRepository{q: db.Pool}
}

// newPayoutRunRepositoryWithTx creates a payout run repository bound to a transaction
func newPayoutRunRepositoryWithTx(tx Queryable) *PayoutRunRepository {
	return &PayoutRunRepository{q: tx}
}

// Create inserts a new run
func (r *PayoutRunRepository) Create(ctx context.Context, run *entities.PayoutRun) error {
	query := `
		INSERT INTO payout_runs (
			distribution_id, run_type, status, is_dry_run, batch_size, max_retries, initiated_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		run.DistributionID,
		run.Type,
		run.Status,
		run.IsDryRun,
		run.BatchSize,
		run.MaxRetries,
		run.InitiatedBy,
	).Scan(&run.ID, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "failed to create payout run for distribution %d", run.DistributionID)
	}

	return nil
}

// GetByID retrieves a run by ID
func (r *PayoutRunRepository) GetByID(ctx context.Context, id int64) (*entities.PayoutRun, error) {
	query := `SELECT ` + payoutRunColumns + ` FROM payout_runs WHERE id = $1`

	run, err := scanPayoutRun(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payout run %d: %w", id, err)
	}
	return run, nil
}

// GetByDistribution returns all runs of a distribution, newest first
func (r *PayoutRunRepository) GetByDistribution(ctx context.Context, distributionID int64) ([]*entities.PayoutRun, error) {
	query := `SELECT ` + payoutRunColumns + `
		FROM payout_runs
		WHERE distribution_id = $1
		ORDER BY created_at DESC, id DESC`

	rows, err := r.q.Query(ctx, query, distributionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payout runs of distribution %d: %w", distributionID, err)
	}
	defer rows.Close()

	var runs []*entities.PayoutRun
	for rows.Next() {
		run, err := scanPayoutRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payout runs: %w", err)
	}

	return runs, nil
}

// Start moves a run to IN_PROGRESS
func (r *PayoutRunRepository) Start(ctx context.Context, id int64, recipients int, totalAmount decimal.Decimal, startedAt time.Time) error {
	query := `
		UPDATE payout_runs
		SET status = 'IN_PROGRESS',
		    total_recipients = $2,
		    total_amount = $3,
		    started_at = $4,
		    updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, id, "start", query, id, recipients, totalAmount, startedAt)
}

// RecordSuccess adds one completed receipt to the counters
func (r *PayoutRunRepository) RecordSuccess(ctx context.Context, id int64, gross, net, fee, withholding decimal.Decimal) error {
	query := `
		UPDATE payout_runs
		SET successful_payouts = successful_payouts + 1,
		    successful_gross = successful_gross + $2,
		    successful_amount = successful_amount + $3,
		    total_fees = total_fees + $4,
		    total_withholding = total_withholding + $5,
		    updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, id, "record success on", query, id, gross, net, fee, withholding)
}

// RecordFailure adds one failed payout to the counters and appends it to the error log
func (r *PayoutRunRepository) RecordFailure(ctx context.Context, id int64, net decimal.Decimal, entry entities.RunErrorLog) error {
	logEntry, err := marshalJSONB([]entities.RunErrorLog{entry}, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal error log entry: %w", err)
	}

	query := `
		UPDATE payout_runs
		SET failed_payouts = failed_payouts + 1,
		    failed_amount = failed_amount + $2,
		    error_logs = error_logs || $3::jsonb,
		    updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, id, "record failure on", query, id, net, logEntry)
}

// Finish moves a run to a terminal status
func (r *PayoutRunRepository) Finish(ctx context.Context, id int64, status entities.PayoutRunStatus, completedAt time.Time) error {
	query := `
		UPDATE payout_runs
		SET status = $2,
		    completed_at = $3,
		    updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, id, "finish", query, id, status, completedAt)
}

// Fail moves a run to FAILED with an error log entry
func (r *PayoutRunRepository) Fail(ctx context.Context, id int64, entry entities.RunErrorLog, completedAt time.Time) error {
	logEntry, err := marshalJSONB([]entities.RunErrorLog{entry}, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal error log entry: %w", err)
	}

	query := `
		UPDATE payout_runs
		SET status = 'FAILED',
		    error_logs = error_logs || $2::jsonb,
		    completed_at = $3,
		    updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, id, "fail", query, id, logEntry, completedAt)
}

// RequestCancel flags a PENDING or IN_PROGRESS run for cancellation
func (r *PayoutRunRepository) RequestCancel(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE payout_runs
		SET cancel_requested = TRUE,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'IN_PROGRESS')
	`

	result, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to request cancellation of payout run %d: %w", id, err)
	}
	return result.RowsAffected() > 0, nil
}

// IsCancelRequested reports whether cancellation was requested for the run
func (r *PayoutRunRepository) IsCancelRequested(ctx context.Context, id int64) (bool, error) {
	var requested bool
	err := r.q.QueryRow(ctx, `SELECT cancel_requested FROM payout_runs WHERE id = $1`, id).Scan(&requested)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("payout run %d: %w", id, entities.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cancellation flag of payout run %d: %w", id, err)
	}
	return requested, nil
}

// BeginRetry consumes one retry and reopens the run if it is still retryable
func (r *PayoutRunRepository) BeginRetry(ctx context.Context, id int64, startedAt time.Time) (bool, error) {
	query := `
		UPDATE payout_runs
		SET retry_count = retry_count + 1,
		    status = 'IN_PROGRESS',
		    cancel_requested = FALSE,
		    started_at = $2,
		    completed_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
		  AND NOT is_dry_run
		  AND status IN ('PARTIALLY_COMPLETED', 'FAILED')
		  AND retry_count < max_retries
	`

	result, err := r.q.Exec(ctx, query, id, startedAt)
	if err != nil {
		return false, fmt.Errorf("failed to begin retry of payout run %d: %w", id, err)
	}
	return result.RowsAffected() > 0, nil
}

// RecountFromReceipts re-derives the counters from the run's receipts. Every receipt
// that is not COMPLETED counts as failed, as do calculations that never produced a receipt.
func (r *PayoutRunRepository) RecountFromReceipts(ctx context.Context, id int64) error {
	query := `
		UPDATE payout_runs r
		SET successful_payouts = s.completed,
		    failed_payouts = (s.receipts - s.completed) + GREATEST(r.total_recipients - s.receipts, 0),
		    successful_gross = s.gross,
		    successful_amount = s.net,
		    failed_amount = s.failed_net,
		    total_fees = s.fees,
		    total_withholding = s.withholding,
		    updated_at = NOW()
		FROM (
			SELECT COUNT(*) AS receipts,
			       COUNT(*) FILTER (WHERE status = 'COMPLETED') AS completed,
			       COALESCE(SUM(gross_amount) FILTER (WHERE status = 'COMPLETED'), 0) AS gross,
			       COALESCE(SUM(net_amount) FILTER (WHERE status = 'COMPLETED'), 0) AS net,
			       COALESCE(SUM(net_amount) FILTER (WHERE status <> 'COMPLETED'), 0) AS failed_net,
			       COALESCE(SUM(fee_amount) FILTER (WHERE status = 'COMPLETED'), 0) AS fees,
			       COALESCE(SUM(withholding_amount) FILTER (WHERE status = 'COMPLETED'), 0) AS withholding
			FROM payout_receipts
			WHERE payout_run_id = $1
		) s
		WHERE r.id = $1
	`
	return r.exec(ctx, id, "recount", query, id)
}

// GetStats aggregates runs and their non-dry-run receipts
func (r *PayoutRunRepository) GetStats(ctx context.Context) (*entities.PayoutStats, error) {
	var stats entities.PayoutStats

	runQuery := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'COMPLETED'),
		       COUNT(*) FILTER (WHERE status = 'FAILED')
		FROM payout_runs
	`
	if err := r.q.QueryRow(ctx, runQuery).Scan(&stats.TotalRuns, &stats.CompletedRuns, &stats.FailedRuns); err != nil {
		return nil, fmt.Errorf("failed to get payout run stats: %w", err)
	}

	receiptQuery := `
		SELECT COUNT(*) FILTER (WHERE status = 'COMPLETED'),
		       COUNT(*) FILTER (WHERE status = 'FAILED'),
		       COALESCE(SUM(net_amount) FILTER (WHERE status = 'COMPLETED'), 0),
		       COALESCE(SUM(fee_amount) FILTER (WHERE status = 'COMPLETED'), 0),
		       COALESCE(SUM(withholding_amount) FILTER (WHERE status = 'COMPLETED'), 0)
		FROM payout_receipts
		WHERE NOT is_dry_run
	`
	err := r.q.QueryRow(ctx, receiptQuery).Scan(
		&stats.SuccessfulPayouts,
		&stats.FailedPayouts,
		&stats.TotalAmountPaid,
		&stats.TotalFeesCollected,
		&stats.TotalWithholding,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get payout receipt stats: %w", err)
	}

	return &stats, nil
}

// exec runs a single-row update and reports a missing run as not found
func (r *PayoutRunRepository) exec(ctx context.Context, id int64, action, query string, args ...interface{}) error {
	result, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s payout run %d: %w", action, id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("payout run %d: %w", id, entities.ErrNotFound)
	}
	return nil
}

func scanPayoutRun(row rowScanner) (*entities.PayoutRun, error) {
	var run entities.PayoutRun
	var errorLogs []byte

	err := row.Scan(
		&run.ID,
		&run.DistributionID,
		&run.Type,
		&run.Status,
		&run.IsDryRun,
		&run.BatchSize,
		&run.MaxRetries,
		&run.RetryCount,
		&run.TotalRecipients,
		&run.SuccessfulPayouts,
		&run.FailedPayouts,
		&run.TotalAmount,
		&run.SuccessfulGross,
		&run.SuccessfulAmount,
		&run.FailedAmount,
		&run.TotalFees,
		&run.TotalWithholding,
		&errorLogs,
		&run.CancelRequested,
		&run.InitiatedBy,
		&run.StartedAt,
		&run.CompletedAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSONB(errorLogs, &run.ErrorLogs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal error logs: %w", err)
	}
	return &run, nil
}
