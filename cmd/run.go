package cmd

import (
	"context"
	"time"

	"settlement/application"
	"settlement/config"

	log "github.com/sirupsen/logrus"
)

// Run initializes and starts the settlement service
func Run(ctx context.Context) error {
	log.Info("Starting settlement service...")

	cfg := config.Get()

	app, err := Build(ctx, cfg)
	if err != nil {
		return err
	}

	if err := app.Settlement.HealthCheck(ctx); err != nil {
		log.WithError(err).Warn("Starting with unhealthy dependencies")
	}

	worker := application.NewSettlementWorker(app.Settlement, app.Clock, cfg.SchedulerInterval, cfg.RecurringInterval)
	stopWorker := worker.Start(ctx)

	log.WithField("environment", cfg.Environment).Info("Settlement service is running")
	<-ctx.Done()

	log.Info("Shutting down settlement service...")
	stopWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.Close(shutdownCtx)

	log.Info("Shutdown completed")
	return nil
}
