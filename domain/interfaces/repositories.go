package interfaces

import (
	"context"
	"time"

	"settlement/domain/entities"
	"settlement/events"

	"github.com/shopspring/decimal"
)

// DistributionRepository defines the interface for distribution data access
type DistributionRepository interface {
	// Create inserts a new distribution and sets its ID and timestamps.
	// Returns entities.ErrConflict if another PENDING distribution exists for the asset.
	Create(ctx context.Context, distribution *entities.Distribution) error

	// GetByID retrieves a distribution by ID, nil if it does not exist
	GetByID(ctx context.Context, id int64) (*entities.Distribution, error)

	// GetByIDForUpdate retrieves a distribution and locks its row for the rest of the transaction
	GetByIDForUpdate(ctx context.Context, id int64) (*entities.Distribution, error)

	// Update persists the mutable fields of a distribution
	Update(ctx context.Context, distribution *entities.Distribution) error

	// ClaimExecution takes an APPROVED distribution for execution.
	// Returns false if it is no longer APPROVED or is already claimed.
	ClaimExecution(ctx context.Context, id int64, claimedAt time.Time) (bool, error)

	// RecordOutcome stores the terminal outcome of a claimed execution.
	// Returns false if the distribution is no longer APPROVED and claimed.
	RecordOutcome(ctx context.Context, distribution *entities.Distribution) (bool, error)

	// HasPendingForAsset reports whether a PENDING distribution exists for the asset
	HasPendingForAsset(ctx context.Context, assetID string) (bool, error)

	// HasChild reports whether a recurring instance has already been created from parentID
	HasChild(ctx context.Context, parentID int64) (bool, error)

	// Search returns the distributions matching the filter and the total match count
	Search(ctx context.Context, filter entities.DistributionFilter) ([]*entities.Distribution, int64, error)

	// GetDue returns APPROVED distributions scheduled at or before now
	GetDue(ctx context.Context, now time.Time, limit int) ([]*entities.Distribution, error)

	// GetExecutedRecurring returns EXECUTED recurring distributions without a child instance
	GetExecutedRecurring(ctx context.Context) ([]*entities.Distribution, error)

	// GetStats aggregates every distribution
	GetStats(ctx context.Context) (*entities.DistributionStats, error)
}

// PayoutRunRepository defines the interface for payout run data access.
// Counter updates are single SQL statements so concurrent workers never lose increments.
type PayoutRunRepository interface {
	// Create inserts a new run and sets its ID
	Create(ctx context.Context, run *entities.PayoutRun) error

	// GetByID retrieves a run by ID, nil if it does not exist
	GetByID(ctx context.Context, id int64) (*entities.PayoutRun, error)

	// GetByDistribution returns all runs of a distribution, newest first
	GetByDistribution(ctx context.Context, distributionID int64) ([]*entities.PayoutRun, error)

	// Start moves a run to IN_PROGRESS and records the recipient count and total net amount
	Start(ctx context.Context, id int64, recipients int, totalAmount decimal.Decimal, startedAt time.Time) error

	// RecordSuccess increments the success counters of a run by one receipt
	RecordSuccess(ctx context.Context, id int64, gross, net, fee, withholding decimal.Decimal) error

	// RecordFailure increments the failure counters of a run by one receipt
	RecordFailure(ctx context.Context, id int64, net decimal.Decimal, entry entities.RunErrorLog) error

	// Finish moves a run to a terminal status
	Finish(ctx context.Context, id int64, status entities.PayoutRunStatus, completedAt time.Time) error

	// Fail moves a run to FAILED and appends an error log entry
	Fail(ctx context.Context, id int64, entry entities.RunErrorLog, completedAt time.Time) error

	// RequestCancel flags a PENDING or IN_PROGRESS run for cancellation.
	// Returns false if the run was not cancellable.
	RequestCancel(ctx context.Context, id int64) (bool, error)

	// IsCancelRequested reports whether cancellation has been requested for the run
	IsCancelRequested(ctx context.Context, id int64) (bool, error)

	// BeginRetry increments retry_count and moves the run back to IN_PROGRESS
	// if it is still retryable. Returns false otherwise.
	BeginRetry(ctx context.Context, id int64, startedAt time.Time) (bool, error)

	// RecountFromReceipts re-derives the run counters from its receipts
	RecountFromReceipts(ctx context.Context, id int64) error

	// GetStats aggregates runs and their non-dry-run receipts
	GetStats(ctx context.Context) (*entities.PayoutStats, error)
}

// PayoutReceiptRepository defines the interface for receipt ledger data access
type PayoutReceiptRepository interface {
	// Create inserts a new receipt and sets its ID and timestamps
	Create(ctx context.Context, receipt *entities.PayoutReceipt) error

	// GetByID retrieves a receipt by ID, nil if it does not exist
	GetByID(ctx context.Context, id int64) (*entities.PayoutReceipt, error)

	// GetByPayoutRun returns the receipts of a run in calculator order
	GetByPayoutRun(ctx context.Context, runID int64) ([]*entities.PayoutReceipt, error)


	// GetByInvestor returns an investor's receipts, newest first
	GetByInvestor(ctx context.Context, investorID string, limit int) ([]*entities.PayoutReceipt, error)

	// Transition moves a receipt from one status to another and records the update fields.
	// The change only applies if the stored status still equals from; the returned
	// bool reports whether it did. Leaving FAILED increments retry_count.
	Transition(ctx context.Context, id int64, from entities.ReceiptStatus, update entities.ReceiptStatusUpdate, at time.Time) (bool, error)

	// SetDocument records the rendered document of a receipt in any status
	SetDocument(ctx context.Context, id int64, url string, format entities.DocumentFormat) error

	// Search returns the receipts matching the filter and the total match count
	Search(ctx context.Context, filter entities.ReceiptFilter) ([]*entities.PayoutReceipt, int64, error)

	// GetStats aggregates the receipts matching the filter; limit and offset are ignored
	GetStats(ctx context.Context, filter entities.ReceiptFilter) (*entities.ReceiptStats, error)
}

// WithholdingRuleRepository defines the interface for withholding rule data access
type WithholdingRuleRepository interface {
	// Create inserts a new rule and sets its ID
	Create(ctx context.Context, rule *entities.WithholdingRule) error

	// GetByID retrieves a rule by ID, nil if it does not exist
	GetByID(ctx context.Context, id int64) (*entities.WithholdingRule, error)

	// Update persists the definition of a rule
	Update(ctx context.Context, rule *entities.WithholdingRule) error

	// SetActive enables or disables a rule
	SetActive(ctx context.Context, id int64, active bool) error

	// GetActive returns every active rule
	GetActive(ctx context.Context) ([]*entities.WithholdingRule, error)

	// GetByJurisdiction returns the active rules of a jurisdiction ordered by priority
	GetByJurisdiction(ctx context.Context, jurisdiction string) ([]*entities.WithholdingRule, error)

	// RecordUsage increments usage_count and sets last_used_at for each rule
	RecordUsage(ctx context.Context, ruleIDs []int64, usedAt time.Time) error

	// GetStats aggregates rules and the withholding recorded on completed receipts
	GetStats(ctx context.Context) (*entities.WithholdingStats, error)
}

// FeeCaptureRepository defines the interface for fee capture data access
type FeeCaptureRepository interface {
	// Create inserts a new fee capture and sets its ID
	Create(ctx context.Context, fee *entities.FeeCapture) error

	// GetByID retrieves a fee capture by ID, nil if it does not exist
	GetByID(ctx context.Context, id int64) (*entities.FeeCapture, error)

	// GetPendingByAsset returns the PENDING captures of every investor in an asset
	GetPendingByAsset(ctx context.Context, assetID string) ([]*entities.FeeCapture, error)

	// GetByInvestor returns an investor's captures, newest first
	GetByInvestor(ctx context.Context, investorID string) ([]*entities.FeeCapture, error)

	// GetByAsset returns an asset's captures, newest first
	GetByAsset(ctx context.Context, assetID string) ([]*entities.FeeCapture, error)

	// GetOverdue returns PENDING captures due at or before now, optionally only automatic ones
	GetOverdue(ctx context.Context, now time.Time, automaticOnly bool) ([]*entities.FeeCapture, error)

	// UpdateStatus persists the status fields of a capture
	UpdateStatus(ctx context.Context, fee *entities.FeeCapture) error

	// RecordCalculated stores the most recent calculated amount of each capture
	RecordCalculated(ctx context.Context, amounts map[int64]decimal.Decimal) error

	// GetStats aggregates every capture
	GetStats(ctx context.Context, now time.Time) (*entities.FeeStats, error)
}

// InvestorWalletRepository defines the interface for the investor wallet registry table
type InvestorWalletRepository interface {
	WalletRegistry

	// Upsert inserts or replaces a wallet by ID
	Upsert(ctx context.Context, wallet *entities.InvestorWallet) error

	// GetByID retrieves a wallet by ID, nil if it does not exist
	GetByID(ctx context.Context, id string) (*entities.InvestorWallet, error)

	// GetByInvestor returns every wallet of an investor
	GetByInvestor(ctx context.Context, investorID string) ([]*entities.InvestorWallet, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event) error
}
