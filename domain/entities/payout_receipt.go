package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptStatus represents the state of one investor's payout
type ReceiptStatus string

const (
	ReceiptStatusPending    ReceiptStatus = "PENDING"
	ReceiptStatusProcessing ReceiptStatus = "PROCESSING"
	ReceiptStatusCompleted  ReceiptStatus = "COMPLETED"
	ReceiptStatusFailed     ReceiptStatus = "FAILED"
	ReceiptStatusCancelled  ReceiptStatus = "CANCELLED"
)

// DocumentFormat is the rendering format of a receipt document
type DocumentFormat string

const (
	DocumentFormatJSON DocumentFormat = "json"
	DocumentFormatCSV  DocumentFormat = "csv"
	DocumentFormatXLSX DocumentFormat = "xlsx"
)

// IsValid reports whether f is a supported document format
func (f DocumentFormat) IsValid() bool {
	return f == DocumentFormatJSON || f == DocumentFormatCSV || f == DocumentFormatXLSX
}

// ZeroAddress is recorded as the sender of simulated transfers
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// DryRunResult describes a simulated transfer
type DryRunResult struct {
	Simulated           bool      `json:"simulated"`
	MockTransactionHash string    `json:"mock_transaction_hash"`
	Timestamp           time.Time `json:"timestamp"`
}

// PayoutReceipt is the auditable outcome of one investor's payout within a run
type PayoutReceipt struct {
	ID                 int64               `db:"id"`
	PayoutRunID        int64               `db:"payout_run_id"`
	DistributionID     int64               `db:"distribution_id"`
	AssetID            string              `db:"asset_id"`
	DistributionType   DistributionType    `db:"distribution_type"`
	InvestorID         string              `db:"investor_id"`
	WalletID           string              `db:"wallet_id"`
	WalletAddress      string              `db:"wallet_address"`
	Sequence           int                 `db:"sequence"` // Calculator order within the run
	GrossAmount        decimal.Decimal     `db:"gross_amount"`
	WithholdingAmount  decimal.Decimal     `db:"withholding_amount"`
	FeeAmount          decimal.Decimal     `db:"fee_amount"`
	NetAmount          decimal.Decimal     `db:"net_amount"`
	TokenBalance       decimal.Decimal     `db:"token_balance"`  // Snapshot at calculation time
	ProRataShare       decimal.Decimal     `db:"pro_rata_share"` // Fraction in [0, 1]
	StablecoinType     StablecoinType      `db:"stablecoin_type"`
	ExchangeRate       decimal.Decimal     `db:"exchange_rate"`
	Status             ReceiptStatus       `db:"status"`
	TransactionHash    string              `db:"transaction_hash"`
	FromAddress        string              `db:"from_address"`
	BlockNumber        *int64              `db:"block_number"`
	GasUsed            *int64              `db:"gas_used"`
	GasPrice           decimal.NullDecimal `db:"gas_price"`
	FailureReason      string              `db:"failure_reason"`
	RetryCount         int                 `db:"retry_count"`
	IsDryRun           bool                `db:"is_dry_run"`
	DryRunResults      *DryRunResult       `db:"-"` // Stored as JSONB
	WithholdingDetails []RuleApplication   `db:"-"` // Stored as JSONB
	FeeBreakdown       []RuleApplication   `db:"-"` // Stored as JSONB
	ReceiptNumber      string              `db:"receipt_number"`
	DocumentURL        string              `db:"document_url"`
	DocumentFormat     DocumentFormat      `db:"document_format"`
	ProcessedAt        *time.Time          `db:"processed_at"`
	FailedAt           *time.Time          `db:"failed_at"`
	CreatedAt          time.Time           `db:"created_at"`
	UpdatedAt          time.Time           `db:"updated_at"`
}

// IsTerminal returns true when only document metadata may still change
func (r *PayoutReceipt) IsTerminal() bool {
	return r.Status == ReceiptStatusCompleted || r.Status == ReceiptStatusCancelled
}

// CanTransitionTo reports whether the receipt may move to next.
// FAILED receipts may be re-claimed by a retry.
func (r *PayoutReceipt) CanTransitionTo(next ReceiptStatus) bool {
	switch r.Status {
	case ReceiptStatusPending:
		return next == ReceiptStatusProcessing || next == ReceiptStatusCompleted ||
			next == ReceiptStatusFailed || next == ReceiptStatusCancelled
	case ReceiptStatusProcessing:
		return next == ReceiptStatusCompleted || next == ReceiptStatusFailed
	case ReceiptStatusFailed:
		return next == ReceiptStatusProcessing || next == ReceiptStatusCancelled
	}
	return false
}

// CheckAmounts verifies net = gross - withholding - fee and withholding + fee <= gross
func (r *PayoutReceipt) CheckAmounts() error {
	if r.WithholdingAmount.IsNegative() || r.FeeAmount.IsNegative() || r.NetAmount.IsNegative() {
		return NewValidationError("receipt amounts must be non-negative")
	}
	deductions := r.WithholdingAmount.Add(r.FeeAmount)
	if deductions.GreaterThan(r.GrossAmount) {
		return NewValidationError("withholding %s plus fee %s exceeds gross %s",
			r.WithholdingAmount, r.FeeAmount, r.GrossAmount)
	}
	if !r.NetAmount.Equal(r.GrossAmount.Sub(deductions)) {
		return NewValidationError("net %s does not equal gross %s minus deductions %s",
			r.NetAmount, r.GrossAmount, deductions)
	}
	return nil
}

// ReceiptStatusUpdate carries the fields recorded with a status change
type ReceiptStatusUpdate struct {
	Status          ReceiptStatus
	TransactionHash string
	FromAddress     string
	BlockNumber     *int64
	GasUsed         *int64
	GasPrice        decimal.NullDecimal
	FailureReason   string
	DryRunResults   *DryRunResult
	DocumentURL     string
	DocumentFormat  DocumentFormat
}

// ReceiptFilter narrows receipt searches
type ReceiptFilter struct {
	PayoutRunID *int64
	InvestorID  string
	AssetID     string
	Status      ReceiptStatus
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}

// ReceiptStats aggregates receipts for reporting
type ReceiptStats struct {
	Total            int64                   `json:"total"`
	ByStatus         map[ReceiptStatus]int64 `json:"by_status"`
	TotalGross       decimal.Decimal         `json:"total_gross"`
	TotalNet         decimal.Decimal         `json:"total_net"`
	TotalWithholding decimal.Decimal         `json:"total_withholding"`
	TotalFees        decimal.Decimal         `json:"total_fees"`
	DryRunReceipts   int64                   `json:"dry_run_receipts"`
}
