package interfaces

import "context"

// UnitOfWork manages a database transaction and its repositories.
// Events published through EventBus are delivered only after Commit.
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Repository getters
	DistributionRepository() DistributionRepository
	PayoutRunRepository() PayoutRunRepository
	PayoutReceiptRepository() PayoutReceiptRepository
	WithholdingRuleRepository() WithholdingRuleRepository
	FeeCaptureRepository() FeeCaptureRepository
	InvestorWalletRepository() InvestorWalletRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}
