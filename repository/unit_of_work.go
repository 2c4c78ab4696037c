package repository

import (
	"context"
	"errors"
	"fmt"

	"settlement/database"
	"settlement/domain/interfaces"
	"settlement/events"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db               *database.DB
	tx               pgx.Tx
	ctx              context.Context
	transactionalBus *events.TransactionalBus
	distributionRepo *DistributionRepository
	payoutRunRepo    *PayoutRunRepository
	receiptRepo      *PayoutReceiptRepository
	withholdingRepo  *WithholdingRuleRepository
	feeRepo          *FeeCaptureRepository
	walletRepo       *InvestorWalletRepository
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *database.DB, eventBus *events.Bus) interfaces.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:       db,
		eventBus: eventBus,
	}
}

type unitOfWorkFactory struct {
	db       *database.DB
	eventBus *events.Bus
}

func (f *unitOfWorkFactory) Create() interfaces.UnitOfWork {
	return &unitOfWork{
		db:               f.db,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	u.distributionRepo = newDistributionRepositoryWithTx(tx)
	u.payoutRunRepo = newPayoutRunRepositoryWithTx(tx)
	u.receiptRepo = newPayoutReceiptRepositoryWithTx(tx)
	u.withholdingRepo = newWithholdingRuleRepositoryWithTx(tx)
	u.feeRepo = newFeeCaptureRepositoryWithTx(tx)
	u.walletRepo = newInvestorWalletRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction and flushes pending events
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	if err := u.tx.Commit(u.ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.tx = nil

	if err := u.transactionalBus.Flush(u.ctx); err != nil {
		log.WithError(err).Error("Failed to flush events after commit")
	}

	return nil
}

// Rollback rolls back the transaction and discards pending events
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Nothing to rollback
	}

	err := u.tx.Rollback(u.ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.tx = nil
	u.transactionalBus.Discard()

	return nil
}

// DistributionRepository returns the distribution repository for this unit of work
func (u *unitOfWork) DistributionRepository() interfaces.DistributionRepository {
	if u.distributionRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.distributionRepo
}

// PayoutRunRepository returns the payout run repository for this unit of work
func (u *unitOfWork) PayoutRunRepository() interfaces.PayoutRunRepository {
	if u.payoutRunRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.payoutRunRepo
}

// PayoutReceiptRepository returns the receipt repository for this unit of work
func (u *unitOfWork) PayoutReceiptRepository() interfaces.PayoutReceiptRepository {
	if u.receiptRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.receiptRepo
}

// WithholdingRuleRepository returns the withholding rule repository for this unit of work
func (u *unitOfWork) WithholdingRuleRepository() interfaces.WithholdingRuleRepository {
	if u.withholdingRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.withholdingRepo
}

// FeeCaptureRepository returns the fee capture repository for this unit of work
func (u *unitOfWork) FeeCaptureRepository() interfaces.FeeCaptureRepository {
	if u.feeRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.feeRepo
}

// InvestorWalletRepository returns the wallet repository for this unit of work
func (u *unitOfWork) InvestorWalletRepository() interfaces.InvestorWalletRepository {
	if u.walletRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.walletRepo
}

// EventBus returns the transactional event bus for this unit of work
func (u *unitOfWork) EventBus() interfaces.EventPublisher {
	if u.transactionalBus == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transactionalBus
}
