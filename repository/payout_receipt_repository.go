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

const payoutReceiptColumns = `
	id, payout_run_id, distribution_id, asset_id, distribution_type, investor_id,
	wallet_id, wallet_address, sequence, gross_amount, withholding_amount,
	fee_amount, net_amount, token_balance, pro_rata_share, stablecoin_type,
	exchange_rate, status, COALESCE(transaction_hash, ''), COALESCE(from_address, ''),
	block_number, gas_used, gas_price, COALESCE(failure_reason, ''), retry_count,
	is_dry_run, dry_run_results, withholding_details, fee_breakdown, receipt_number,
	COALESCE(document_url, ''), COALESCE(document_format, ''), processed_at,
	failed_at, created_at, updated_at`

// PayoutReceiptRepository implements the receipt ledger data access
type PayoutReceiptRepository struct {
	q Queryable
}

// NewPayoutReceiptRepository creates a new receipt repository
func NewPayoutReceiptRepository(db *database.DB) *PayoutReceiptRepository {
	return &PayoutReceiptRepository{q: db.Pool}
}

// newPayoutReceiptRepositoryWithTx creates a receipt repository bound to a transaction
func newPayoutReceiptRepositoryWithTx(tx Queryable) *PayoutReceiptRepository {
	return &PayoutReceiptRepository{q: tx}
}

// Create inserts a new receipt
func (r *PayoutReceiptRepository) Create(ctx context.Context, receipt *entities.PayoutReceipt) error {
	withholding, err := marshalJSONB(receipt.WithholdingDetails, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal withholding details: %w", err)
	}
	fees, err := marshalJSONB(receipt.FeeBreakdown, "[]")
	if err != nil {
		return fmt.Errorf("failed to marshal fee breakdown: %w", err)
	}

	query := `
		INSERT INTO payout_receipts (
			payout_run_id, distribution_id, asset_id, distribution_type, investor_id,
			wallet_id, wallet_address, sequence, gross_amount, withholding_amount,
			fee_amount, net_amount, token_balance, pro_rata_share, stablecoin_type,
			exchange_rate, status, is_dry_run, withholding_details, fee_breakdown,
			receipt_number
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING id, created_at, updated_at
	`

	err = r.q.QueryRow(ctx, query,
		receipt.PayoutRunID,
		receipt.DistributionID,
		receipt.AssetID,
		receipt.DistributionType,
		receipt.InvestorID,
		receipt.WalletID,
		receipt.WalletAddress,
		receipt.Sequence,
		receipt.GrossAmount,
		receipt.WithholdingAmount,
		receipt.FeeAmount,
		receipt.NetAmount,
		receipt.TokenBalance,
		receipt.ProRataShare,
		receipt.StablecoinType,
		receipt.ExchangeRate,
		receipt.Status,
		receipt.IsDryRun,
		withholding,
		fees,
		receipt.ReceiptNumber,
	).Scan(&receipt.ID, &receipt.CreatedAt, &receipt.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "failed to create receipt for wallet %s in payout run %d",
			receipt.WalletID, receipt.PayoutRunID)
	}

	return nil
}

// GetByID retrieves a receipt by ID
func (r *PayoutReceiptRepository) GetByID(ctx context.Context, id int64) (*entities.PayoutReceipt, error) {
	query := `SELECT ` + payoutReceiptColumns + ` FROM payout_receipts WHERE id = $1`

	receipt, err := scanPayoutReceipt(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt %d: %w", id, err)
	}
	return receipt, nil
}

// GetByPayoutRun returns the receipts of a run in calculator order
func (r *PayoutReceiptRepository) GetByPayoutRun(ctx context.Context, runID int64) ([]*entities.PayoutReceipt, error) {
	query := `SELECT ` + payoutReceiptColumns + `
		FROM payout_receipts
		WHERE payout_run_id = $1
		ORDER BY sequence, id`

	return r.queryReceipts(ctx, query, runID)
}

// GetByInvestor returns an investor's receipts, newest first
func (r *PayoutReceiptRepository) GetByInvestor(ctx context.Context, investorID string, limit int) ([]*entities.PayoutReceipt, error) {
	query := `SELECT ` + payoutReceiptColumns + `
		FROM payout_receipts
		WHERE investor_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	return r.queryReceipts(ctx, query, investorID, limit)
}

// Transition applies an update only if the receipt is still in status from.
// Empty update fields keep their stored values.
func (r *PayoutReceiptRepository) Transition(
	ctx context.Context,
	id int64,
	from entities.ReceiptStatus,
	update entities.ReceiptStatusUpdate,
	at time.Time,
) (bool, error) {
	var dryRun []byte
	if update.DryRunResults != nil {
		data, err := marshalJSONB(update.DryRunResults, "null")
		if err != nil {
			return false, fmt.Errorf("failed to marshal dry run results: %w", err)
		}
		dryRun = data
	}

	query := `
		UPDATE payout_receipts
		SET status = $3::varchar,
		    transaction_hash = COALESCE(NULLIF($4, ''), transaction_hash),
		    from_address = COALESCE(NULLIF($5, ''), from_address),
		    block_number = COALESCE($6::bigint, block_number),
		    gas_used = COALESCE($7::bigint, gas_used),
		    gas_price = COALESCE($8::numeric, gas_price),
		    failure_reason = CASE WHEN $3::varchar = 'COMPLETED' THEN NULL ELSE COALESCE(NULLIF($9, ''), failure_reason) END,
		    dry_run_results = COALESCE($10::jsonb, dry_run_results),
		    document_url = COALESCE(NULLIF($11, ''), document_url),
		    document_format = COALESCE(NULLIF($12, ''), document_format),
		    processed_at = CASE WHEN $3::varchar = 'COMPLETED' THEN $13 ELSE processed_at END,
		    failed_at = CASE WHEN $3::varchar = 'FAILED' THEN $13 ELSE failed_at END,
		    retry_count = retry_count + CASE WHEN status = 'FAILED' THEN 1 ELSE 0 END,
		    updated_at = $13
		WHERE id = $1 AND status = $2
	`

	result, err := r.q.Exec(ctx, query,
		id,
		from,
		update.Status,
		update.TransactionHash,
		update.FromAddress,
		update.BlockNumber,
		update.GasUsed,
		update.GasPrice,
		update.FailureReason,
		dryRun,
		update.DocumentURL,
		string(update.DocumentFormat),
		at,
	)
	if err != nil {
		return false, fmt.Errorf("failed to move receipt %d from %s to %s: %w", id, from, update.Status, err)
	}
	return result.RowsAffected() > 0, nil
}

// SetDocument records the rendered document of a receipt
func (r *PayoutReceiptRepository) SetDocument(ctx context.Context, id int64, url string, format entities.DocumentFormat) error {
	query := `
		UPDATE payout_receipts
		SET document_url = $2,
		    document_format = $3,
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.q.Exec(ctx, query, id, url, format)
	if err != nil {
		return fmt.Errorf("failed to set document of receipt %d: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("receipt %d: %w", id, entities.ErrNotFound)
	}
	return nil
}

// Search returns a page of matching receipts, newest first
func (r *PayoutReceiptRepository) Search(ctx context.Context, filter entities.ReceiptFilter) ([]*entities.PayoutReceipt, int64, error) {
	where := receiptWhere(filter)

	var total int64
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM payout_receipts `+where.sql(), where.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count receipts: %w", err)
	}

	limit, args := where.page(filter.Limit, filter.Offset)
	query := `SELECT ` + payoutReceiptColumns + ` FROM payout_receipts ` + where.sql() +
		` ORDER BY created_at DESC, id DESC ` + limit

	receipts, err := r.queryReceipts(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return receipts, total, nil
}

// GetStats aggregates the matching receipts. Amount totals cover completed
// receipts of real runs only.
func (r *PayoutReceiptRepository) GetStats(ctx context.Context, filter entities.ReceiptFilter) (*entities.ReceiptStats, error) {
	where := receiptWhere(filter)
	query := `
		SELECT status, is_dry_run, COUNT(*),
		       SUM(gross_amount), SUM(net_amount), SUM(withholding_amount), SUM(fee_amount)
		FROM payout_receipts ` + where.sql() + `
		GROUP BY status, is_dry_run
	`

	rows, err := r.q.Query(ctx, query, where.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt stats: %w", err)
	}
	defer rows.Close()

	stats := &entities.ReceiptStats{ByStatus: make(map[entities.ReceiptStatus]int64)}
	for rows.Next() {
		var (
			status entities.ReceiptStatus
			dryRun bool
			count  int64
			gross, net, withholding, fees decimal.Decimal
		)
		if err := rows.Scan(&status, &dryRun, &count, &gross, &net, &withholding, &fees); err != nil {
			return nil, fmt.Errorf("failed to scan receipt stats: %w", err)
		}
		stats.Total += count
		stats.ByStatus[status] += count
		if dryRun {
			stats.DryRunReceipts += count
			continue
		}
		if status == entities.ReceiptStatusCompleted {
			stats.TotalGross = stats.TotalGross.Add(gross)
			stats.TotalNet = stats.TotalNet.Add(net)
			stats.TotalWithholding = stats.TotalWithholding.Add(withholding)
			stats.TotalFees = stats.TotalFees.Add(fees)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating receipt stats: %w", err)
	}

	return stats, nil
}

func receiptWhere(filter entities.ReceiptFilter) *whereBuilder {
	where := &whereBuilder{}
	if filter.PayoutRunID != nil {
		where.add("payout_run_id = ?", *filter.PayoutRunID)
	}
	if filter.InvestorID != "" {
		where.add("investor_id = ?", filter.InvestorID)
	}
	if filter.AssetID != "" {
		where.add("asset_id = ?", filter.AssetID)
	}
	if filter.Status != "" {
		where.add("status = ?", filter.Status)
	}
	if filter.From != nil {
		where.add("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		where.add("created_at <= ?", *filter.To)
	}
	return where
}

func (r *PayoutReceiptRepository) queryReceipts(ctx context.Context, query string, args ...interface{}) ([]*entities.PayoutReceipt, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []*entities.PayoutReceipt
	for rows.Next() {
		receipt, err := scanPayoutReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating receipts: %w", err)
	}

	return receipts, nil
}

func scanPayoutReceipt(row rowScanner) (*entities.PayoutReceipt, error) {
	var receipt entities.PayoutReceipt
	var dryRun, withholding, fees []byte
	var format string

	err := row.Scan(
		&receipt.ID,
		&receipt.PayoutRunID,
		&receipt.DistributionID,
		&receipt.AssetID,
		&receipt.DistributionType,
		&receipt.InvestorID,
		&receipt.WalletID,
		&receipt.WalletAddress,
		&receipt.Sequence,
		&receipt.GrossAmount,
		&receipt.WithholdingAmount,
		&receipt.FeeAmount,
		&receipt.NetAmount,
		&receipt.TokenBalance,
		&receipt.ProRataShare,
		&receipt.StablecoinType,
		&receipt.ExchangeRate,
		&receipt.Status,
		&receipt.TransactionHash,
		&receipt.FromAddress,
		&receipt.BlockNumber,
		&receipt.GasUsed,
		&receipt.GasPrice,
		&receipt.FailureReason,
		&receipt.RetryCount,
		&receipt.IsDryRun,
		&dryRun,
		&withholding,
		&fees,
		&receipt.ReceiptNumber,
		&receipt.DocumentURL,
		&format,
		&receipt.ProcessedAt,
		&receipt.FailedAt,
		&receipt.CreatedAt,
		&receipt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	receipt.DocumentFormat = entities.DocumentFormat(format)

	if len(dryRun) > 0 {
		receipt.DryRunResults = &entities.DryRunResult{}
		if err := unmarshalJSONB(dryRun, receipt.DryRunResults); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dry run results: %w", err)
		}
	}
	if err := unmarshalJSONB(withholding, &receipt.WithholdingDetails); err != nil {
		return nil, fmt.Errorf("failed to unmarshal withholding details: %w", err)
	}
	if err := unmarshalJSONB(fees, &receipt.FeeBreakdown); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fee breakdown: %w", err)
	}
	return &receipt, nil
}
