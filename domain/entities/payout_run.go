package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutRunStatus represents the state of a payout run
type PayoutRunStatus string

const (
	PayoutRunStatusPending            PayoutRunStatus = "PENDING"
	PayoutRunStatusInProgress         PayoutRunStatus = "IN_PROGRESS"
	PayoutRunStatusCompleted          PayoutRunStatus = "COMPLETED"
	PayoutRunStatusPartiallyCompleted PayoutRunStatus = "PARTIALLY_COMPLETED"
	PayoutRunStatusFailed             PayoutRunStatus = "FAILED"
	PayoutRunStatusCancelled          PayoutRunStatus = "CANCELLED"
)

// PayoutRunType represents what triggered the run
type PayoutRunType string

const (
	PayoutRunTypeScheduled PayoutRunType = "SCHEDULED"
	PayoutRunTypeManual    PayoutRunType = "MANUAL"
	PayoutRunTypeEmergency PayoutRunType = "EMERGENCY"
	PayoutRunTypeTest      PayoutRunType = "TEST"
)

// DefaultPayoutBatchSize is used when a request does not specify a batch size
const DefaultPayoutBatchSize = 100

// RunErrorLog is one entry of a run's error_logs column
type RunErrorLog struct {
	InvestorID string    `json:"investor_id,omitempty"`
	WalletID   string    `json:"wallet_id,omitempty"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PayoutRun is one execution attempt of a distribution
type PayoutRun struct {
	ID                int64           `db:"id"`
	DistributionID    int64           `db:"distribution_id"`
	Type              PayoutRunType   `db:"run_type"`
	Status            PayoutRunStatus `db:"status"`
	IsDryRun          bool            `db:"is_dry_run"`
	BatchSize         int             `db:"batch_size"`
	MaxRetries        int             `db:"max_retries"`
	RetryCount        int             `db:"retry_count"`
	TotalRecipients   int             `db:"total_recipients"`
	SuccessfulPayouts int             `db:"successful_payouts"`
	FailedPayouts     int             `db:"failed_payouts"`
	TotalAmount       decimal.Decimal `db:"total_amount"`      // Σ net over all calculations
	SuccessfulGross   decimal.Decimal `db:"successful_gross"`  // Σ gross over completed receipts
	SuccessfulAmount  decimal.Decimal `db:"successful_amount"` // Σ net over completed receipts
	FailedAmount      decimal.Decimal `db:"failed_amount"`
	TotalFees         decimal.Decimal `db:"total_fees"`
	TotalWithholding  decimal.Decimal `db:"total_withholding"`
	ErrorLogs         []RunErrorLog   `db:"-"` // Stored as JSONB
	CancelRequested   bool            `db:"cancel_requested"`
	InitiatedBy       string          `db:"initiated_by"`
	StartedAt         *time.Time      `db:"started_at"`
	CompletedAt       *time.Time      `db:"completed_at"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// IsTerminal returns true once the run has finished
func (r *PayoutRun) IsTerminal() bool {
	switch r.Status {
	case PayoutRunStatusCompleted, PayoutRunStatusPartiallyCompleted,
		PayoutRunStatusFailed, PayoutRunStatusCancelled:
		return true
	}
	return false
}

// CanBeCancelled returns true while the run has not finished
func (r *PayoutRun) CanBeCancelled() bool {
	return r.Status == PayoutRunStatusPending || r.Status == PayoutRunStatusInProgress
}

// CanBeRetried returns true for real runs that reached their recipients and have retries left
func (r *PayoutRun) CanBeRetried() bool {
	if r.IsDryRun || r.TotalRecipients == 0 {
		return false
	}
	if r.Status != PayoutRunStatusPartiallyCompleted && r.Status != PayoutRunStatusFailed {
		return false
	}
	return r.RetryCount < r.MaxRetries
}

// OutcomeStatus derives the terminal status from the counters. Recipients that are
// neither counted successful nor failed were never settled and count as failures.
// A run without recipients paid nobody and has FAILED.
func (r *PayoutRun) OutcomeStatus() PayoutRunStatus {
	if r.TotalRecipients == 0 {
		return PayoutRunStatusFailed
	}
	if r.FailedPayouts == 0 && r.SuccessfulPayouts >= r.TotalRecipients {
		return PayoutRunStatusCompleted
	}
	return PayoutRunStatusPartiallyCompleted
}

// PayoutStats aggregates payout activity across runs
type PayoutStats struct {
	TotalRuns          int64           `json:"total_runs"`
	CompletedRuns      int64           `json:"completed_runs"`
	FailedRuns         int64           `json:"failed_runs"`
	SuccessfulPayouts  int64           `json:"successful_payouts"`
	FailedPayouts      int64           `json:"failed_payouts"`
	TotalAmountPaid    decimal.Decimal `json:"total_amount_paid"`
	TotalFeesCollected decimal.Decimal `json:"total_fees_collected"`
	TotalWithholding   decimal.Decimal `json:"total_withholding"`
}
