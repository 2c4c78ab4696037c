package application

import (
	"context"
	"errors"
	"fmt"

	"settlement/domain/entities"
	"settlement/domain/interfaces"
	"settlement/domain/rules"
	"settlement/domain/services"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// HealthChecker is a dependency that can report whether it is reachable
type HealthChecker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

// Dependencies groups the collaborators of the settlement application.
// Repositories here are bound to the connection pool; lifecycle changes
// that must be atomic go through UnitOfWorkFactory instead.
type Dependencies struct {
	UnitOfWorkFactory interfaces.UnitOfWorkFactory
	DistributionRepo  interfaces.DistributionRepository
	PayoutRunRepo     interfaces.PayoutRunRepository
	ReceiptRepo       interfaces.PayoutReceiptRepository
	RuleRepo          interfaces.WithholdingRuleRepository
	FeeRepo           interfaces.FeeCaptureRepository
	WalletRegistry    interfaces.WalletRegistry
	Adapters          interfaces.AdapterRegistry
	Renderer          interfaces.DocumentRenderer
	EventPublisher    interfaces.EventPublisher
	Clock             clockwork.Clock
	Metrics           interfaces.SettlementMetrics
	HealthCheckers    []HealthChecker
}

// Settlement is the entry point for every settlement operation
type Settlement struct {
	deps          Dependencies
	withholding   interfaces.WithholdingService
	fees          interfaces.FeeService
	calculator    interfaces.ProRataCalculator
	receipts      interfaces.ReceiptService
	payouts       interfaces.PayoutService
	distributions interfaces.DistributionService
}

// Summary aggregates the statistics of every settlement component
type Summary struct {
	Distributions *entities.DistributionStats `json:"distributions"`
	Payouts       *entities.PayoutStats       `json:"payouts"`
	Receipts      *entities.ReceiptStats      `json:"receipts"`
	Withholding   *entities.WithholdingStats  `json:"withholding"`
	Fees          *entities.FeeStats          `json:"fees"`
}

// NewSettlement wires the domain services over the given dependencies
func NewSettlement(deps Dependencies, payoutConfig services.PayoutConfig) *Settlement {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	formulas := rules.NewFormulaEvaluator()
	withholding := services.NewWithholdingService(deps.RuleRepo, formulas, deps.Clock, deps.Metrics)
	fees := services.NewFeeService(deps.FeeRepo, formulas, deps.EventPublisher, deps.Clock, deps.Metrics)
	calculator := services.NewProRataCalculator(withholding, fees, deps.WalletRegistry)
	receipts := services.NewReceiptService(deps.ReceiptRepo, deps.Renderer, deps.Clock)
	payouts := services.NewPayoutService(services.PayoutDependencies{
		RunRepo:            deps.PayoutRunRepo,
		ReceiptRepo:        deps.ReceiptRepo,
		DistributionRepo:   deps.DistributionRepo,
		ReceiptService:     receipts,
		Calculator:         calculator,
		WalletRegistry:     deps.WalletRegistry,
		WithholdingService: withholding,
		FeeService:         fees,
		Adapters:           deps.Adapters,
		EventPublisher:     deps.EventPublisher,
		Clock:              deps.Clock,
		Metrics:            deps.Metrics,
	}, payoutConfig)

	return &Settlement{
		deps:          deps,
		withholding:   withholding,
		fees:          fees,
		calculator:    calculator,
		receipts:      receipts,
		payouts:       payouts,
		distributions: services.NewDistributionService(deps.DistributionRepo, payouts, deps.WalletRegistry, deps.EventPublisher, deps.Clock),
	}
}

// Distributions returns the pool-bound distribution service for reads and execution
func (s *Settlement) Distributions() interfaces.DistributionService { return s.distributions }

// Payouts returns the payout batch executor
func (s *Settlement) Payouts() interfaces.PayoutService { return s.payouts }

// Receipts returns the receipt ledger
func (s *Settlement) Receipts() interfaces.ReceiptService { return s.receipts }

// Withholding returns the withholding rule engine
func (s *Settlement) Withholding() interfaces.WithholdingService { return s.withholding }

// Fees returns the fee rule engine
func (s *Settlement) Fees() interfaces.FeeService { return s.fees }

// withDistributions runs fn against a distribution service bound to a new unit of work.
// The unit of work commits only if fn succeeds; its events are delivered after commit.
func (s *Settlement) withDistributions(ctx context.Context, fn func(interfaces.DistributionService) error) error {
	uow := s.deps.UnitOfWorkFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			uow.Rollback()
			panic(r)
		}
	}()

	svc := services.NewDistributionService(
		uow.DistributionRepository(),
		s.payouts,
		s.deps.WalletRegistry,
		uow.EventBus(),
		s.deps.Clock,
	)

	if err := fn(svc); err != nil {
		uow.Rollback()
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateDistribution schedules a new distribution
func (s *Settlement) CreateDistribution(ctx context.Context, req interfaces.CreateDistributionRequest) (*entities.Distribution, error) {
	var created *entities.Distribution
	err := s.withDistributions(ctx, func(svc interfaces.DistributionService) error {
		var err error
		created, err = svc.CreateDistribution(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ApproveDistribution records an approval under a row lock so concurrent approvers are serialized
func (s *Settlement) ApproveDistribution(ctx context.Context, id int64, approverID string) (*entities.Distribution, error) {
	var approved *entities.Distribution
	err := s.withDistributions(ctx, func(svc interfaces.DistributionService) error {
		var err error
		approved, err = svc.ApproveDistribution(ctx, id, approverID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return approved, nil
}

// CancelDistribution cancels a PENDING or APPROVED distribution
func (s *Settlement) CancelDistribution(ctx context.Context, id int64, reason, actor string) (*entities.Distribution, error) {
	var cancelled *entities.Distribution
	err := s.withDistributions(ctx, func(svc interfaces.DistributionService) error {
		var err error
		cancelled, err = svc.CancelDistribution(ctx, id, reason, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// UpdateDistribution changes a PENDING distribution
func (s *Settlement) UpdateDistribution(ctx context.Context, id int64, req interfaces.UpdateDistributionRequest) (*entities.Distribution, error) {
	var updated *entities.Distribution
	err := s.withDistributions(ctx, func(svc interfaces.DistributionService) error {
		var err error
		updated, err = svc.UpdateDistribution(ctx, id, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ExecuteDistribution pays an APPROVED, due distribution. Payout runs persist
// every receipt as it settles, so execution is not wrapped in a transaction.
func (s *Settlement) ExecuteDistribution(ctx context.Context, id int64) (*interfaces.ExecutionResult, error) {
	return s.distributions.ExecuteDistribution(ctx, id)
}

// PreviewDistribution calculates a distribution's payouts without side effects
func (s *Settlement) PreviewDistribution(ctx context.Context, id int64) (*interfaces.PayoutPreview, error) {
	distribution, err := s.distributions.GetDistribution(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.calculator.PreviewPayout(ctx, distribution)
}

// ProcessDueDistributions executes every APPROVED distribution whose scheduled date has passed.
// One distribution failing does not stop the others.
func (s *Settlement) ProcessDueDistributions(ctx context.Context) (executed, failed int, err error) {
	due, err := s.distributions.GetDueDistributions(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get due distributions: %w", err)
	}

	for _, d := range due {
		if ctx.Err() != nil {
			break
		}

		result, err := s.distributions.ExecuteDistribution(ctx, d.ID)
		if err != nil {
			log.WithError(err).WithField("distribution_id", d.ID).Error("Failed to execute due distribution")
			failed++
			continue
		}
		if !result.Success {
			log.WithFields(log.Fields{
				"distribution_id": d.ID,
				"status":          result.Status,
				"errors":          result.Errors,
			}).Warn("Due distribution did not execute successfully")
			failed++
			continue
		}
		executed++
	}

	return executed, failed, nil
}

// CreateRecurringDistributions schedules the next instance of every executed recurring distribution
func (s *Settlement) CreateRecurringDistributions(ctx context.Context) (int, error) {
	return s.distributions.CreateRecurringDistributions(ctx)
}

// CollectAutomaticFees collects every overdue automatic fee capture
func (s *Settlement) CollectAutomaticFees(ctx context.Context) (*interfaces.FeeCollectionResult, error) {
	return s.fees.ProcessAutomaticFeeCollection(ctx)
}

// GetSummary collects the statistics of every component
func (s *Settlement) GetSummary(ctx context.Context) (*Summary, error) {
	var (
		summary Summary
		err     error
	)

	if summary.Distributions, err = s.distributions.GetDistributionStats(ctx); err != nil {
		return nil, err
	}
	if summary.Payouts, err = s.payouts.GetPayoutStats(ctx); err != nil {
		return nil, err
	}
	if summary.Receipts, err = s.receipts.GetReceiptStats(ctx, entities.ReceiptFilter{}); err != nil {
		return nil, err
	}
	if summary.Withholding, err = s.withholding.GetWithholdingStats(ctx); err != nil {
		return nil, err
	}
	if summary.Fees, err = s.fees.GetFeeStats(ctx); err != nil {
		return nil, err
	}

	return &summary, nil
}

// HealthCheck verifies every registered dependency and the adapter of each stablecoin
func (s *Settlement) HealthCheck(ctx context.Context) error {
	var errs []error

	for _, checker := range s.deps.HealthCheckers {
		if err := checker.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", checker.Name(), err))
		}
	}

	for _, currency := range []entities.StablecoinType{entities.StablecoinUSDC, entities.StablecoinHKD} {
		adapter, err := s.deps.Adapters.AdapterFor(currency)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s adapter: %w", currency, err))
			continue
		}
		if err := adapter.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s adapter: %w", currency, err))
		}
	}

	if len(errs) > 0 {
		log.WithField("failures", len(errs)).Warn("Settlement health check failed")
	}
	return errors.Join(errs...)
}
