package application

import (
	"context"
	"errors"
	"time"

	"settlement/domain/interfaces"
	"settlement/domain/services"
	"settlement/domain/testhelpers"
	"settlement/events"

	"github.com/jonboulle/clockwork"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// fakeUnitOfWork records its transaction lifecycle and delivers events through a real transactional bus
type fakeUnitOfWork struct {
	distributionRepo *testhelpers.MockDistributionRepository
	bus              *events.TransactionalBus
	beginErr         error
	begun            bool
	committed        bool
	rolledBack       bool
}

func (u *fakeUnitOfWork) Begin(ctx context.Context) error {
	if u.beginErr != nil {
		return u.beginErr
	}
	u.begun = true
	return nil
}

func (u *fakeUnitOfWork) Commit() error {
	if !u.begun {
		return errors.New("no transaction to commit")
	}
	u.committed = true
	return u.bus.Flush(context.Background())
}

func (u *fakeUnitOfWork) Rollback() error {
	if u.begun && !u.committed {
		u.rolledBack = true
		u.bus.Discard()
	}
	return nil
}

func (u *fakeUnitOfWork) DistributionRepository() interfaces.DistributionRepository {
	return u.distributionRepo
}

func (u *fakeUnitOfWork) PayoutRunRepository() interfaces.PayoutRunRepository { return nil }

func (u *fakeUnitOfWork) PayoutReceiptRepository() interfaces.PayoutReceiptRepository { return nil }

func (u *fakeUnitOfWork) WithholdingRuleRepository() interfaces.WithholdingRuleRepository {
	return nil
}

func (u *fakeUnitOfWork) FeeCaptureRepository() interfaces.FeeCaptureRepository { return nil }

func (u *fakeUnitOfWork) InvestorWalletRepository() interfaces.InvestorWalletRepository { return nil }

func (u *fakeUnitOfWork) EventBus() interfaces.EventPublisher { return u.bus }

type fakeUnitOfWorkFactory struct {
	bus      *events.Bus
	repo     *testhelpers.MockDistributionRepository
	beginErr error
	created  []*fakeUnitOfWork
}

func (f *fakeUnitOfWorkFactory) Create() interfaces.UnitOfWork {
	uow := &fakeUnitOfWork{
		distributionRepo: f.repo,
		bus:              events.NewTransactionalBus(f.bus),
		beginErr:         f.beginErr,
	}
	f.created = append(f.created, uow)
	return uow
}

// settlementFixture wires a Settlement over mocks
type settlementFixture struct {
	Bus        *events.Bus
	TxRepo     *testhelpers.MockDistributionRepository
	Factory    *fakeUnitOfWorkFactory
	DistRepo   *testhelpers.MockDistributionRepository
	RunRepo    *testhelpers.MockPayoutRunRepository
	Receipts   *testhelpers.MockPayoutReceiptRepository
	RuleRepo   *testhelpers.MockWithholdingRuleRepository
	FeeRepo    *testhelpers.MockFeeCaptureRepository
	WalletRepo *testhelpers.MockInvestorWalletRepository
	Adapters   *testhelpers.MockAdapterRegistry
	Publisher  *testhelpers.MockEventPublisher
	Clock      *clockwork.FakeClock
	Settlement *Settlement
}

func newSettlementFixture(checkers ...HealthChecker) *settlementFixture {
	f := &settlementFixture{
		Bus:        events.NewBus(),
		TxRepo:     &testhelpers.MockDistributionRepository{},
		DistRepo:   &testhelpers.MockDistributionRepository{},
		RunRepo:    &testhelpers.MockPayoutRunRepository{},
		Receipts:   &testhelpers.MockPayoutReceiptRepository{},
		RuleRepo:   &testhelpers.MockWithholdingRuleRepository{},
		FeeRepo:    &testhelpers.MockFeeCaptureRepository{},
		WalletRepo: &testhelpers.MockInvestorWalletRepository{},
		Adapters:   &testhelpers.MockAdapterRegistry{},
		Publisher:  &testhelpers.MockEventPublisher{},
		Clock:      clockwork.NewFakeClockAt(testNow),
	}
	f.Factory = &fakeUnitOfWorkFactory{bus: f.Bus, repo: f.TxRepo}

	f.Settlement = NewSettlement(Dependencies{
		UnitOfWorkFactory: f.Factory,
		DistributionRepo:  f.DistRepo,
		PayoutRunRepo:     f.RunRepo,
		ReceiptRepo:       f.Receipts,
		RuleRepo:          f.RuleRepo,
		FeeRepo:           f.FeeRepo,
		WalletRegistry:    f.WalletRepo,
		Adapters:          f.Adapters,
		Renderer:          &testhelpers.MockDocumentRenderer{},
		EventPublisher:    f.Publisher,
		Clock:             f.Clock,
		HealthCheckers:    checkers,
	}, services.PayoutConfig{
		TreasuryAddress:   "0x00000000000000000000000000000000000000aa",
		Concurrency:       2,
		DefaultBatchSize:  10,
		DefaultMaxRetries: 3,
	})
	return f
}

// stubChecker is a HealthChecker with a fixed outcome
type stubChecker struct {
	name string
	err  error
}

func (c stubChecker) Name() string { return c.name }

func (c stubChecker) HealthCheck(ctx context.Context) error { return c.err }
