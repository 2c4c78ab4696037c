package interfaces

import (
	"context"
	"time"

	"settlement/domain/entities"

	"github.com/shopspring/decimal"
)

// WalletRegistry supplies the investor wallets of an asset
type WalletRegistry interface {
	// GetEligibleWallets returns ACTIVE, KYC-verified wallets of the asset with a positive balance
	GetEligibleWallets(ctx context.Context, assetID string) ([]*entities.InvestorWallet, error)
}

// TransferRequest is a single stablecoin transfer
type TransferRequest struct {
	From     string
	To       string
	Amount   decimal.Decimal
	Currency entities.StablecoinType
	Metadata map[string]string
}

// TransferResult is the adapter's outcome of a transfer
type TransferResult struct {
	Success         bool
	TransactionHash string
	BlockNumber     int64
	GasUsed         int64
	GasPrice        decimal.Decimal
	Error           string
}

// TokenBalance is a wallet's stablecoin balance
type TokenBalance struct {
	Address     string
	Balance     decimal.Decimal
	Currency    entities.StablecoinType
	LastUpdated time.Time
}

// TransactionState is the settlement state of a submitted transfer
type TransactionState string

const (
	TransactionStatePending   TransactionState = "PENDING"
	TransactionStateConfirmed TransactionState = "CONFIRMED"
	TransactionStateFailed    TransactionState = "FAILED"
)

// TransactionStatus describes a submitted transfer
type TransactionStatus struct {
	Hash          string
	State         TransactionState
	Confirmations int
	BlockNumber   int64
}

// AdapterInfo describes the network an adapter settles on
type AdapterInfo struct {
	Name            string
	Network         string
	Currency        entities.StablecoinType
	Decimals        int32
	ContractAddress string
}

// StablecoinAdapter performs stablecoin transfers on one network
type StablecoinAdapter interface {
	// Transfer submits a transfer. A business failure is reported in the result;
	// the error is reserved for transport or adapter faults.
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)

	// GetBalance returns the stablecoin balance of an address
	GetBalance(ctx context.Context, address string) (*TokenBalance, error)

	// IsValidAddress reports whether the address is well formed for the network
	IsValidAddress(address string) bool

	// GetTransactionStatus looks up a submitted transfer
	GetTransactionStatus(ctx context.Context, hash string) (*TransactionStatus, error)

	// Info describes the adapter
	Info() AdapterInfo

	// HealthCheck verifies the network is reachable
	HealthCheck(ctx context.Context) error
}

// AdapterRegistry resolves the adapter for a settlement currency
type AdapterRegistry interface {
	AdapterFor(currency entities.StablecoinType) (StablecoinAdapter, error)
}

// DocumentRenderer turns receipts into documents
type DocumentRenderer interface {
	// Render writes the receipt document and returns where it can be retrieved
	Render(ctx context.Context, receipt *entities.PayoutReceipt, format entities.DocumentFormat) (string, error)

	// Encode serializes receipts in the given format
	Encode(receipts []*entities.PayoutReceipt, format entities.DocumentFormat) ([]byte, error)
}

// SettlementMetrics receives settlement measurements
type SettlementMetrics interface {
	RecordRuleFailure(engine string)
	RecordPayoutRunStarted(isDryRun bool)
	RecordPayoutRunFinished(status entities.PayoutRunStatus, isDryRun bool)
	RecordReceipt(status entities.ReceiptStatus, amount decimal.Decimal)
	RecordBatchDuration(size int, duration time.Duration)
}
