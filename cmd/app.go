package cmd

import (
	"context"
	"fmt"
	"time"

	"settlement/application"
	"settlement/config"
	"settlement/database"
	"settlement/domain/interfaces"
	"settlement/domain/services"
	"settlement/events"
	"settlement/infrastructure"
	"settlement/infrastructure/observability"
	"settlement/infrastructure/renderer"
	"settlement/infrastructure/retry"
	"settlement/infrastructure/stablecoin"
	"settlement/repository"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// App holds the wired settlement service and the resources it owns
type App struct {
	Config     *config.Config
	Settlement *application.Settlement
	Clock      clockwork.Clock

	db       *database.DB
	eventBus *events.Bus
	metrics  *observability.MetricsProvider
	nats     *infrastructure.NATSClient
}

// dbHealthChecker reports whether the connection pool can reach Postgres
type dbHealthChecker struct {
	db *database.DB
}

func (c dbHealthChecker) Name() string { return "postgres" }

func (c dbHealthChecker) HealthCheck(ctx context.Context) error {
	return c.db.Ping(ctx)
}

// Build connects to every dependency and wires the settlement application
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	clock := clockwork.NewRealClock()
	app := &App{Config: cfg, Clock: clock}

	log.Info("Connecting to database...")
	err := retry.Do(ctx, retry.Config{MaxAttempts: 5, BaseBackoff: time.Second, MaxBackoff: 10 * time.Second}, func() error {
		db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
		if err != nil {
			log.WithError(err).Warn("Database connection attempt failed")
			return err
		}
		app.db = db
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established successfully")

	app.metrics = observability.NewMetricsProvider(cfg)
	if err := app.metrics.Initialize(ctx); err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	app.eventBus = events.NewBus()
	checkers := []application.HealthChecker{dbHealthChecker{db: app.db}}

	if cfg.NATSEnabled {
		app.nats = infrastructure.NewNATSClient(cfg.NATSServers)
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := app.nats.Connect(connectCtx)
		cancel()
		if err != nil {
			app.Close(ctx)
			return nil, err
		}
		mapper := infrastructure.NewEventSubjectMapper()
		if err := app.nats.EnsureStream(infrastructure.SettlementStream, mapper.GetAllSubjects()); err != nil {
			app.Close(ctx)
			return nil, err
		}
		infrastructure.NewNATSEventForwarder(app.nats, mapper, clock).
			WithObserver(app.metrics).
			Attach(app.eventBus)
		checkers = append(checkers, app.nats)
	} else {
		log.Info("NATS disabled, settlement events stay in process")
	}

	adapters, err := buildAdapters(cfg, clock)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	documents, err := renderer.NewFileRenderer(cfg.DocumentDir, cfg.DocumentBaseURL)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	walletRepo := repository.NewInvestorWalletRepository(app.db)
	app.Settlement = application.NewSettlement(application.Dependencies{
		UnitOfWorkFactory: repository.NewUnitOfWorkFactory(app.db, app.eventBus),
		DistributionRepo:  repository.NewDistributionRepository(app.db),
		PayoutRunRepo:     repository.NewPayoutRunRepository(app.db),
		ReceiptRepo:       repository.NewPayoutReceiptRepository(app.db),
		RuleRepo:          repository.NewWithholdingRuleRepository(app.db),
		FeeRepo:           repository.NewFeeCaptureRepository(app.db),
		WalletRegistry:    walletRepo,
		Adapters:          adapters,
		Renderer:          documents,
		EventPublisher:    app.eventBus,
		Clock:             clock,
		Metrics:           app.metrics,
		HealthCheckers:    checkers,
	}, services.PayoutConfig{
		TreasuryAddress:   cfg.TreasuryAddress,
		Concurrency:       cfg.PayoutConcurrency,
		DryRunDelay:       cfg.DryRunDelay,
		DefaultBatchSize:  cfg.PayoutBatchSize,
		DefaultMaxRetries: cfg.PayoutMaxRetries,
	})

	return app, nil
}

// buildAdapters registers the simulated USDC and HKD adapters behind one shared rate limit
func buildAdapters(cfg *config.Config, clock clockwork.Clock) (interfaces.AdapterRegistry, error) {
	treasuryBalance, err := decimal.NewFromString(cfg.SimulatedTreasuryBalance)
	if err != nil {
		return nil, fmt.Errorf("invalid SIMULATED_TREASURY_BALANCE %q: %w", cfg.SimulatedTreasuryBalance, err)
	}

	limiter := stablecoin.NewLimiter(cfg.AdapterRateLimit, cfg.AdapterBurst)
	registry := stablecoin.NewRegistry()
	for _, profile := range []stablecoin.NetworkProfile{stablecoin.USDCProfile(), stablecoin.HKDProfile()} {
		adapter := stablecoin.NewSimulatedAdapter(profile, clock)
		adapter.SetBalance(cfg.TreasuryAddress, treasuryBalance)
		registry.Register(stablecoin.NewRateLimitedAdapter(adapter, limiter))
	}

	for _, info := range registry.Infos() {
		log.WithFields(log.Fields{
			"currency": info.Currency,
			"network":  info.Network,
		}).Info("Registered stablecoin adapter")
	}
	return registry, nil
}

// Close releases every resource in reverse order of acquisition
func (a *App) Close(ctx context.Context) {
	if a.nats != nil {
		if err := a.nats.Close(); err != nil {
			log.WithError(err).Error("Error closing NATS connection")
		}
	}
	if a.eventBus != nil {
		a.eventBus.Wait()
	}
	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Error shutting down metrics")
		}
	}
	if a.db != nil {
		log.Info("Closing database connection...")
		a.db.Close()
	}
}
