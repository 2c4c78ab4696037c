package application

import (
	"context"
	"sync"
	"time"

	"settlement/domain/interfaces"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
)

// ScheduledOperations are the settlement operations the worker drives
type ScheduledOperations interface {
	ProcessDueDistributions(ctx context.Context) (executed, failed int, err error)
	CreateRecurringDistributions(ctx context.Context) (int, error)
	CollectAutomaticFees(ctx context.Context) (*interfaces.FeeCollectionResult, error)
}

// SettlementWorker executes due distributions, collects automatic fees and
// generates recurring instances on fixed intervals
type SettlementWorker struct {
	ops               ScheduledOperations
	clock             clockwork.Clock
	schedulerInterval time.Duration
	recurringInterval time.Duration
}

// NewSettlementWorker creates a new settlement worker
func NewSettlementWorker(
	ops ScheduledOperations,
	clock clockwork.Clock,
	schedulerInterval time.Duration,
	recurringInterval time.Duration,
) *SettlementWorker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SettlementWorker{
		ops:               ops,
		clock:             clock,
		schedulerInterval: schedulerInterval,
		recurringInterval: recurringInterval,
	}
}

// Start begins the worker loop and returns a function that stops it and
// waits for an in-flight pass to finish
func (w *SettlementWorker) Start(ctx context.Context) func() {
	stopChan := make(chan struct{})
	var wg sync.WaitGroup

	schedulerTicker := w.clock.NewTicker(w.schedulerInterval)
	recurringTicker := w.clock.NewTicker(w.recurringInterval)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer schedulerTicker.Stop()
		defer recurringTicker.Stop()

		log.WithFields(log.Fields{
			"scheduler_interval": w.schedulerInterval,
			"recurring_interval": w.recurringInterval,
		}).Info("Settlement worker started")

		for {
			select {
			case <-ctx.Done():
				log.Info("Settlement worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Settlement worker shutting down (stop requested)...")
				return
			case <-schedulerTicker.Chan():
				w.RunScheduledPass(ctx)
			case <-recurringTicker.Chan():
				w.RunRecurringPass(ctx)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stopChan) })
		wg.Wait()
	}
}

// RunScheduledPass executes due distributions and then collects overdue automatic fees
func (w *SettlementWorker) RunScheduledPass(ctx context.Context) {
	started := w.clock.Now()

	executed, failed, err := w.ops.ProcessDueDistributions(ctx)
	if err != nil {
		log.WithError(err).Error("Error processing due distributions")
	}

	fees, err := w.ops.CollectAutomaticFees(ctx)
	if err != nil {
		log.WithError(err).Error("Error collecting automatic fees")
		fees = &interfaces.FeeCollectionResult{}
	}

	log.WithFields(log.Fields{
		"distributions_executed": executed,
		"distributions_failed":   failed,
		"fees_processed":         fees.Processed,
		"fees_collected":         fees.Successful,
		"fees_failed":            fees.Failed,
		"duration":               w.clock.Since(started),
	}).Info("Completed scheduled settlement pass")
}

// RunRecurringPass generates the next instance of every executed recurring distribution
func (w *SettlementWorker) RunRecurringPass(ctx context.Context) {
	created, err := w.ops.CreateRecurringDistributions(ctx)
	if err != nil {
		log.WithError(err).WithField("created", created).Error("Error creating recurring distributions")
		return
	}
	if created > 0 {
		log.WithField("created", created).Info("Created recurring distributions")
	}
}
