package interfaces

import (
	"context"
	"time"

	"settlement/domain/entities"

	"github.com/shopspring/decimal"
)

// DeductionResult is the outcome of running one rule engine for one investor
type DeductionResult struct {
	Amount       decimal.Decimal
	Applications []entities.RuleApplication
	RuleIDs      []int64 // Rules that matched and evaluated without error
	Failures     int
}

// WithholdingService defines the withholding rule engine and rule administration
type WithholdingService interface {
	// ActiveRules loads the rules an evaluation may consider
	ActiveRules(ctx context.Context) ([]*entities.WithholdingRule, error)

	// Evaluate computes the withholding owed on gross from a preloaded rule set
	Evaluate(rules []*entities.WithholdingRule, wallet *entities.InvestorWallet, gross decimal.Decimal, distribution *entities.Distribution) DeductionResult

	// CalculateWithholding loads the active rules and evaluates them
	CalculateWithholding(ctx context.Context, wallet *entities.InvestorWallet, gross decimal.Decimal, distribution *entities.Distribution) (*DeductionResult, error)

	// CreateRule validates and stores a new rule
	CreateRule(ctx context.Context, rule *entities.WithholdingRule) (*entities.WithholdingRule, error)

	// UpdateRule validates and persists a rule's definition
	UpdateRule(ctx context.Context, rule *entities.WithholdingRule) error

	// GetRule retrieves a rule by ID
	GetRule(ctx context.Context, id int64) (*entities.WithholdingRule, error)

	// DeactivateRule disables a rule; rules are never deleted
	DeactivateRule(ctx context.Context, id int64) error

	// GetRulesByJurisdiction returns the active rules of a jurisdiction
	GetRulesByJurisdiction(ctx context.Context, jurisdiction string) ([]*entities.WithholdingRule, error)

	// RecordUsage bumps the usage counters of the given rules
	RecordUsage(ctx context.Context, ruleIDs []int64) error

	// GetWithholdingStats aggregates rules and withheld amounts
	GetWithholdingStats(ctx context.Context) (*entities.WithholdingStats, error)
}

// FeeCollectionResult summarizes an automatic fee collection pass
type FeeCollectionResult struct {
	Processed  int
	Successful int
	Failed     int
	Errors     []string
}

// FeeService defines the fee rule engine and fee capture administration
type FeeService interface {
	// PendingFees loads the PENDING captures of an asset
	PendingFees(ctx context.Context, assetID string) ([]*entities.FeeCapture, error)

	// Evaluate computes the fees owed on gross from preloaded captures
	Evaluate(fees []*entities.FeeCapture, wallet *entities.InvestorWallet, gross decimal.Decimal, distribution *entities.Distribution) DeductionResult

	// CalculateFees loads the pending captures of the distribution's asset and evaluates them
	CalculateFees(ctx context.Context, wallet *entities.InvestorWallet, gross decimal.Decimal, distribution *entities.Distribution) (*DeductionResult, error)

	// CreateFeeCapture validates and stores a new capture
	CreateFeeCapture(ctx context.Context, fee *entities.FeeCapture) (*entities.FeeCapture, error)

	// GetFeeCapture retrieves a capture by ID
	GetFeeCapture(ctx context.Context, id int64) (*entities.FeeCapture, error)

	// UpdateFeeStatus applies a manual status change to a PENDING or DEFERRED capture
	UpdateFeeStatus(ctx context.Context, id int64, update entities.FeeStatusUpdate) (*entities.FeeCapture, error)

	// GetFeesByInvestor returns an investor's captures
	GetFeesByInvestor(ctx context.Context, investorID string) ([]*entities.FeeCapture, error)

	// GetFeesByAsset returns an asset's captures
	GetFeesByAsset(ctx context.Context, assetID string) ([]*entities.FeeCapture, error)

	// GetOverdueFees returns PENDING captures past their due date
	GetOverdueFees(ctx context.Context) ([]*entities.FeeCapture, error)

	// RecordCalculated stores the amounts computed for the captures of a fee breakdown
	RecordCalculated(ctx context.Context, breakdown []entities.RuleApplication) error

	// RecordCollection marks the captures of a paid fee breakdown COLLECTED
	RecordCollection(ctx context.Context, breakdown []entities.RuleApplication, runID int64, txHash string) error

	// ProcessAutomaticFeeCollection collects every due automatic capture
	ProcessAutomaticFeeCollection(ctx context.Context) (*FeeCollectionResult, error)

	// GetFeeStats aggregates fee captures
	GetFeeStats(ctx context.Context) (*entities.FeeStats, error)
}

// ProRataCalculator splits a distribution across wallets
type ProRataCalculator interface {
	// CalculateProRataShares returns one calculation per contributing wallet in payout order
	CalculateProRataShares(ctx context.Context, distribution *entities.Distribution, wallets []*entities.InvestorWallet) ([]*entities.ProRataCalculation, error)

	// PreviewPayout calculates the shares of a distribution's eligible wallets without side effects
	PreviewPayout(ctx context.Context, distribution *entities.Distribution) (*PayoutPreview, error)
}

// PayoutPreview is a side-effect free calculation of a distribution
type PayoutPreview struct {
	DistributionID int64                          `json:"distribution_id"`
	Summary        entities.PayoutSummary         `json:"summary"`
	Calculations   []*entities.ProRataCalculation `json:"-"`
}

// PayoutRunRequest starts a payout run
type PayoutRunRequest struct {
	DistributionID int64
	IsDryRun       bool
	BatchSize      int
	MaxRetries     int
	Type           entities.PayoutRunType
	InitiatedBy    string
}

// PayoutError is one investor's failure within a run
type PayoutError struct {
	InvestorID    string `json:"investor_id"`
	WalletAddress string `json:"wallet_address"`
	Error         string `json:"error"`
}

// PayoutRunResult is the aggregate outcome of a run or a retry
type PayoutRunResult struct {
	PayoutRunID       int64                    `json:"payout_run_id"`
	Status            entities.PayoutRunStatus `json:"status"`
	IsDryRun          bool                     `json:"is_dry_run"`
	TotalRecipients   int                      `json:"total_recipients"`
	SuccessfulPayouts int                      `json:"successful_payouts"`
	FailedPayouts     int                      `json:"failed_payouts"`
	TotalAmount       decimal.Decimal          `json:"total_amount"`
	SuccessfulGross   decimal.Decimal          `json:"successful_gross"`
	SuccessfulAmount  decimal.Decimal          `json:"successful_amount"`
	FailedAmount      decimal.Decimal          `json:"failed_amount"`
	TotalFees         decimal.Decimal          `json:"total_fees"`
	TotalWithholding  decimal.Decimal          `json:"total_withholding"`
	Errors            []PayoutError            `json:"errors,omitempty"`
	Duration          time.Duration            `json:"duration"`
}

// PayoutService defines the payout batch executor
type PayoutService interface {
	// ExecutePayoutRun calculates and pays a distribution in sequential batches
	ExecutePayoutRun(ctx context.Context, req PayoutRunRequest) (*PayoutRunResult, error)

	// RetryPayoutRun re-attempts the FAILED receipts of a run from their stored snapshot
	RetryPayoutRun(ctx context.Context, runID int64) (*PayoutRunResult, error)

	// CancelPayoutRun requests cancellation; the run stops before its next batch
	CancelPayoutRun(ctx context.Context, runID int64) error

	// GetPayoutRun retrieves a run by ID
	GetPayoutRun(ctx context.Context, runID int64) (*entities.PayoutRun, error)

	// GetPayoutRunsByDistribution returns every run of a distribution
	GetPayoutRunsByDistribution(ctx context.Context, distributionID int64) ([]*entities.PayoutRun, error)

	// GetPayoutStats aggregates runs and non-dry-run receipts
	GetPayoutStats(ctx context.Context) (*entities.PayoutStats, error)
}

// CreateDistributionRequest describes a new distribution
type CreateDistributionRequest struct {
	AssetID          string
	AssetName        string
	Type             entities.DistributionType
	Frequency        entities.DistributionFrequency
	TotalAmount      decimal.Decimal
	ScheduledDate    time.Time
	StablecoinType   entities.StablecoinType
	ExchangeRate     decimal.Decimal
	ApprovalWorkflow *entities.ApprovalWorkflow
	IsRecurring      bool
	Recurrence       entities.RecurrenceSettings
	Metadata         map[string]interface{}
	Notes            string
	CreatedBy        string
}

// UpdateDistributionRequest changes a PENDING distribution. Nil fields are left unchanged.
type UpdateDistributionRequest struct {
	TotalAmount   *decimal.Decimal
	ScheduledDate *time.Time
	Notes         *string
	Metadata      map[string]interface{}
}

// ExecutionResult is the outcome of executing a distribution
type ExecutionResult struct {
	Success        bool
	DistributionID int64
	Status         entities.DistributionStatus
	PayoutRun      *PayoutRunResult
	Errors         []string
}

// DistributionService defines the distribution lifecycle manager
type DistributionService interface {
	// CreateDistribution validates and schedules a PENDING distribution
	CreateDistribution(ctx context.Context, req CreateDistributionRequest) (*entities.Distribution, error)

	// ApproveDistribution records an approval and transitions to APPROVED once the quorum is met
	ApproveDistribution(ctx context.Context, id int64, approverID string) (*entities.Distribution, error)

	// ExecuteDistribution pays an APPROVED, due distribution
	ExecuteDistribution(ctx context.Context, id int64) (*ExecutionResult, error)

	// CancelDistribution cancels a PENDING or APPROVED distribution
	CancelDistribution(ctx context.Context, id int64, reason, actor string) (*entities.Distribution, error)

	// CreateRecurringDistributions schedules the next instance of every executed recurring distribution
	CreateRecurringDistributions(ctx context.Context) (int, error)

	// GetDistribution retrieves a distribution by ID
	GetDistribution(ctx context.Context, id int64) (*entities.Distribution, error)

	// UpdateDistribution changes a PENDING distribution
	UpdateDistribution(ctx context.Context, id int64, req UpdateDistributionRequest) (*entities.Distribution, error)

	// SearchDistributions returns the matching distributions and the total match count
	SearchDistributions(ctx context.Context, filter entities.DistributionFilter) ([]*entities.Distribution, int64, error)

	// GetDistributionStats aggregates distributions
	GetDistributionStats(ctx context.Context) (*entities.DistributionStats, error)

	// GetDueDistributions returns APPROVED distributions whose scheduled date has passed
	GetDueDistributions(ctx context.Context) ([]*entities.Distribution, error)
}

// GeneratedDocument is the outcome of rendering one receipt
type GeneratedDocument struct {
	ReceiptID   int64  `json:"receipt_id"`
	DocumentURL string `json:"document_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ExportedReceipt is a serialized receipt
type ExportedReceipt struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ReceiptService defines the receipt ledger
type ReceiptService interface {
	// CreateReceipt stores a PENDING receipt for one calculation of a run
	CreateReceipt(ctx context.Context, run *entities.PayoutRun, distribution *entities.Distribution, calc *entities.ProRataCalculation, sequence int) (*entities.PayoutReceipt, error)

	// UpdateReceiptStatus applies a guarded status change; terminal receipts only accept document metadata
	UpdateReceiptStatus(ctx context.Context, id int64, update entities.ReceiptStatusUpdate) (*entities.PayoutReceipt, error)

	// GetReceipt retrieves a receipt by ID
	GetReceipt(ctx context.Context, id int64) (*entities.PayoutReceipt, error)

	// GetReceiptsByPayoutRun returns the receipts of a run in calculator order
	GetReceiptsByPayoutRun(ctx context.Context, runID int64) ([]*entities.PayoutReceipt, error)

	// GetReceiptsByInvestor returns an investor's receipts, newest first
	GetReceiptsByInvestor(ctx context.Context, investorID string, limit int) ([]*entities.PayoutReceipt, error)

	// SearchReceipts returns the matching receipts and the total match count
	SearchReceipts(ctx context.Context, filter entities.ReceiptFilter) ([]*entities.PayoutReceipt, int64, error)

	// BulkGenerateDocuments renders a document for every receipt of a run
	BulkGenerateDocuments(ctx context.Context, runID int64, format entities.DocumentFormat) ([]GeneratedDocument, error)

	// ExportReceipt serializes one receipt as JSON or CSV
	ExportReceipt(ctx context.Context, id int64, format entities.DocumentFormat) (*ExportedReceipt, error)

	// GetReceiptStats aggregates the receipts matching the filter
	GetReceiptStats(ctx context.Context, filter entities.ReceiptFilter) (*entities.ReceiptStats, error)
}
