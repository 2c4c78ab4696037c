package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"settlement/domain/entities"
	"settlement/domain/interfaces"
	"settlement/events"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// PayoutConfig holds the executor settings that come from configuration
type PayoutConfig struct {
	TreasuryAddress   string
	Concurrency       int           // Transfers in flight within one batch
	DryRunDelay       time.Duration // Simulated latency of a dry-run transfer
	DefaultBatchSize  int
	DefaultMaxRetries int
}

// PayoutDependencies groups the collaborators of the payout executor
type PayoutDependencies struct {
	RunRepo            interfaces.PayoutRunRepository
	ReceiptRepo        interfaces.PayoutReceiptRepository
	DistributionRepo   interfaces.DistributionRepository
	ReceiptService     interfaces.ReceiptService
	Calculator         interfaces.ProRataCalculator
	WalletRegistry     interfaces.WalletRegistry
	WithholdingService interfaces.WithholdingService
	FeeService         interfaces.FeeService
	Adapters           interfaces.AdapterRegistry
	EventPublisher     interfaces.EventPublisher
	Clock              clockwork.Clock
	Metrics            interfaces.SettlementMetrics
}

// payoutService executes payout runs in sequential batches
type payoutService struct {
	deps    PayoutDependencies
	config  PayoutConfig
	clock   clockwork.Clock
	metrics interfaces.SettlementMetrics
}

// NewPayoutService creates a new payout batch executor
func NewPayoutService(deps PayoutDependencies, config PayoutConfig) interfaces.PayoutService {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.DefaultBatchSize <= 0 {
		config.DefaultBatchSize = entities.DefaultPayoutBatchSize
	}
	if config.DefaultMaxRetries < 0 {
		config.DefaultMaxRetries = 0
	}
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &payoutService{
		deps:    deps,
		config:  config,
		clock:   clock,
		metrics: metricsOrNoop(deps.Metrics),
	}
}

// runState is shared by the workers of one run
type runState struct {
	run      *entities.PayoutRun
	adapter  interfaces.StablecoinAdapter
	recount  bool // Counters are re-derived from receipts once the pass ends
	mu       sync.Mutex
	failures []interfaces.PayoutError
}

func (st *runState) addFailure(receipt *entities.PayoutReceipt, reason string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.failures = append(st.failures, interfaces.PayoutError{
		InvestorID:    receipt.InvestorID,
		WalletAddress: receipt.WalletAddress,
		Error:         reason,
	})
}

// ExecutePayoutRun calculates and pays a distribution in sequential batches.
// Items within a batch are transferred concurrently and joined before the next
// batch starts. A failed transfer only fails its own receipt.
func (s *payoutService) ExecutePayoutRun(ctx context.Context, req interfaces.PayoutRunRequest) (*interfaces.PayoutRunResult, error) {
	started := s.clock.Now()

	distribution, err := s.deps.DistributionRepo.GetByID(ctx, req.DistributionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get distribution %d: %w", req.DistributionID, err)
	}
	if distribution == nil {
		return nil, fmt.Errorf("distribution %d: %w", req.DistributionID, entities.ErrNotFound)
	}
	if !req.IsDryRun && !distribution.IsExecuting() {
		return nil, fmt.Errorf("%w: distribution %d is %s and not claimed for execution; real payouts run through ExecuteDistribution",
			entities.ErrPrecondition, distribution.ID, distribution.Status)
	}

	run := &entities.PayoutRun{
		DistributionID: distribution.ID,
		Type:           req.Type,
		Status:         entities.PayoutRunStatusPending,
		IsDryRun:       req.IsDryRun,
		BatchSize:      req.BatchSize,
		MaxRetries:     req.MaxRetries,
		InitiatedBy:    req.InitiatedBy,
	}
	if run.BatchSize <= 0 {
		run.BatchSize = s.config.DefaultBatchSize
	}
	if run.MaxRetries <= 0 {
		run.MaxRetries = s.config.DefaultMaxRetries
	}
	if run.IsDryRun {
		run.Type = entities.PayoutRunTypeTest
	} else if run.Type == "" {
		run.Type = entities.PayoutRunTypeManual
	}

	if err := s.deps.RunRepo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create payout run: %w", err)
	}
	s.metrics.RecordPayoutRunStarted(run.IsDryRun)

	logger := log.WithFields(log.Fields{
		"payout_run_id":   run.ID,
		"distribution_id": distribution.ID,
		"is_dry_run":      run.IsDryRun,
	})
	logger.Info("Starting payout run")

	st := &runState{run: run}
	calcs, err := s.prepareRun(ctx, st, distribution)
	if err != nil {
		s.failRun(ctx, run, err)
		logger.WithError(err).Error("Payout run failed before any batch")
		return nil, err
	}

	cancelled := false
	for start := 0; start < len(calcs); start += run.BatchSize {
		if err := ctx.Err(); err != nil {
			s.failRun(ctx, run, err)
			return nil, err
		}
		requested, err := s.deps.RunRepo.IsCancelRequested(ctx, run.ID)
		if err != nil {
			s.failRun(ctx, run, err)
			return nil, fmt.Errorf("failed to check cancellation of payout run %d: %w", run.ID, err)
		}
		if requested {
			logger.WithField("processed", start).Warn("Payout run cancelled between batches")
			cancelled = true
			break
		}

		end := min(start+run.BatchSize, len(calcs))
		s.executeBatch(ctx, st, distribution, calcs[start:end], start)
	}

	var status entities.PayoutRunStatus
	if cancelled {
		status = entities.PayoutRunStatusCancelled
	}
	return s.finishRun(ctx, st, status, started)
}

// prepareRun resolves everything a run needs before its first batch
func (s *payoutService) prepareRun(ctx context.Context, st *runState, distribution *entities.Distribution) ([]*entities.ProRataCalculation, error) {
	if !st.run.IsDryRun {
		adapter, err := s.deps.Adapters.AdapterFor(distribution.StablecoinType)
		if err != nil {
			return nil, fmt.Errorf("no adapter for %s: %w", distribution.StablecoinType, err)
		}
		st.adapter = adapter
	}

	wallets, err := s.deps.WalletRegistry.GetEligibleWallets(ctx, distribution.AssetID)
	if err != nil {
		return nil, fmt.Errorf("failed to get eligible wallets: %w", err)
	}
	if len(wallets) == 0 {
		return nil, entities.ErrNoEligibleWallets
	}

	calcs, err := s.deps.Calculator.CalculateProRataShares(ctx, distribution, wallets)
	if err != nil {
		return nil, err
	}

	summary := entities.Summarize(calcs)
	if err := s.deps.RunRepo.Start(ctx, st.run.ID, summary.Recipients, summary.TotalNet, s.clock.Now()); err != nil {
		return nil, fmt.Errorf("failed to start payout run: %w", err)
	}
	st.run.Status = entities.PayoutRunStatusInProgress
	st.run.TotalRecipients = summary.Recipients
	st.run.TotalAmount = summary.TotalNet

	if !st.run.IsDryRun {
		for _, calc := range calcs {
			if err := s.deps.FeeService.RecordCalculated(ctx, calc.FeeBreakdown); err != nil {
				log.WithError(err).WithField("payout_run_id", st.run.ID).Warn("Failed to record calculated fees")
			}
		}
	}
	return calcs, nil
}

// executeBatch creates the batch's receipts in calculator order, then transfers them concurrently
func (s *payoutService) executeBatch(
	ctx context.Context,
	st *runState,
	distribution *entities.Distribution,
	batch []*entities.ProRataCalculation,
	offset int,
) {
	batchStarted := s.clock.Now()

	receipts := make([]*entities.PayoutReceipt, 0, len(batch))
	for i, calc := range batch {
		receipt, err := s.deps.ReceiptService.CreateReceipt(ctx, st.run, distribution, calc, offset+i)
		if err != nil {
			s.recordUnreceiptedFailure(ctx, st, calc, err)
			continue
		}
		receipts = append(receipts, receipt)
	}

	s.processReceipts(ctx, st, receipts)
	s.metrics.RecordBatchDuration(len(batch), s.clock.Since(batchStarted))
}

// processReceipts transfers a set of receipts with bounded concurrency and waits for all of them.
// Each receipt is claimed from the status it was loaded in.
func (s *payoutService) processReceipts(ctx context.Context, st *runState, receipts []*entities.PayoutReceipt) {
	var g errgroup.Group
	g.SetLimit(s.config.Concurrency)
	for _, receipt := range receipts {
		g.Go(func() error {
			if st.run.IsDryRun {
				s.simulateTransfer(ctx, st, receipt)
			} else {
				s.transfer(ctx, st, receipt, receipt.Status)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// simulateTransfer completes a dry-run receipt without touching the adapter
func (s *payoutService) simulateTransfer(ctx context.Context, st *runState, receipt *entities.PayoutReceipt) {
	if s.config.DryRunDelay > 0 {
		select {
		case <-s.clock.After(s.config.DryRunDelay):
		case <-ctx.Done():
		}
	}

	now := s.clock.Now()
	marker := DryRunTransactionHash(now)
	block := int64(0)
	update := entities.ReceiptStatusUpdate{
		Status:          entities.ReceiptStatusCompleted,
		TransactionHash: marker,
		FromAddress:     entities.ZeroAddress,
		BlockNumber:     &block,
		DryRunResults: &entities.DryRunResult{
			Simulated:           true,
			MockTransactionHash: marker,
			Timestamp:           now,
		},
	}
	if !s.moveReceipt(ctx, st, receipt, entities.ReceiptStatusPending, update) {
		return
	}
	s.recordSuccess(ctx, st, receipt)
}

// DryRunTransactionHash returns the marker recorded in place of a transaction hash
func DryRunTransactionHash(now time.Time) string {
	return fmt.Sprintf("DRY_RUN_%d_%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// transfer claims a receipt and submits its net amount exactly once
func (s *payoutService) transfer(ctx context.Context, st *runState, receipt *entities.PayoutReceipt, from entities.ReceiptStatus) {
	claim := entities.ReceiptStatusUpdate{Status: entities.ReceiptStatusProcessing}
	if !s.moveReceipt(ctx, st, receipt, from, claim) {
		return
	}

	if !st.adapter.IsValidAddress(receipt.WalletAddress) {
		s.failReceipt(ctx, st, receipt, fmt.Sprintf("invalid wallet address %q", receipt.WalletAddress))
		return
	}

	result, err := st.adapter.Transfer(ctx, interfaces.TransferRequest{
		From:     s.config.TreasuryAddress,
		To:       receipt.WalletAddress,
		Amount:   receipt.NetAmount,
		Currency: receipt.StablecoinType,
		Metadata: map[string]string{
			"payoutRunId":    fmt.Sprint(receipt.PayoutRunID),
			"distributionId": fmt.Sprint(receipt.DistributionID),
			"investorId":     receipt.InvestorID,
			"receiptNumber":  receipt.ReceiptNumber,
		},
	})
	switch {
	case err != nil:
		s.failReceipt(ctx, st, receipt, err.Error())
		return
	case result == nil || !result.Success:
		reason := "transfer rejected"
		if result != nil && result.Error != "" {
			reason = result.Error
		}
		s.failReceipt(ctx, st, receipt, reason)
		return
	}

	update := entities.ReceiptStatusUpdate{
		Status:          entities.ReceiptStatusCompleted,
		TransactionHash: result.TransactionHash,
		FromAddress:     s.config.TreasuryAddress,
		BlockNumber:     &result.BlockNumber,
		GasUsed:         &result.GasUsed,
		GasPrice:        decimal.NewNullDecimal(result.GasPrice),
	}
	if !s.moveReceipt(ctx, st, receipt, entities.ReceiptStatusProcessing, update) {
		return
	}
	s.recordSuccess(ctx, st, receipt)

	if err := s.deps.FeeService.RecordCollection(ctx, receipt.FeeBreakdown, st.run.ID, result.TransactionHash); err != nil {
		log.WithError(err).WithField("receipt_id", receipt.ID).Warn("Failed to record fee collection")
	}
	if ids := appliedRuleIDs(receipt.WithholdingDetails); len(ids) > 0 {
		if err := s.deps.WithholdingService.RecordUsage(ctx, ids); err != nil {
			log.WithError(err).WithField("receipt_id", receipt.ID).Warn("Failed to record withholding rule usage")
		}
	}
}

// moveReceipt applies a compare-and-set transition. A lost race or a storage error
// leaves the receipt untouched and counts it as a failed payout of the run.
func (s *payoutService) moveReceipt(
	ctx context.Context,
	st *runState,
	receipt *entities.PayoutReceipt,
	from entities.ReceiptStatus,
	update entities.ReceiptStatusUpdate,
) bool {
	ok, err := s.deps.ReceiptRepo.Transition(ctx, receipt.ID, from, update, s.clock.Now())
	if err == nil && ok {
		receipt.Status = update.Status
		return true
	}

	reason := fmt.Sprintf("receipt is no longer %s", from)
	if err != nil {
		reason = err.Error()
	}
	log.WithFields(log.Fields{
		"receipt_id": receipt.ID,
		"from":       from,
		"to":         update.Status,
		"reason":     reason,
	}).Error("Failed to update receipt status")
	st.addFailure(receipt, reason)
	s.recordRunFailure(ctx, st, receipt, reason)
	return false
}

func (s *payoutService) failReceipt(ctx context.Context, st *runState, receipt *entities.PayoutReceipt, reason string) {
	log.WithFields(log.Fields{
		"payout_run_id": st.run.ID,
		"receipt_id":    receipt.ID,
		"investor_id":   receipt.InvestorID,
		"reason":        reason,
	}).Warn("Payout transfer failed")

	st.addFailure(receipt, reason)
	s.recordRunFailure(ctx, st, receipt, reason)

	update := entities.ReceiptStatusUpdate{Status: entities.ReceiptStatusFailed, FailureReason: reason}
	ok, err := s.deps.ReceiptRepo.Transition(ctx, receipt.ID, entities.ReceiptStatusProcessing, update, s.clock.Now())
	if err != nil || !ok {
		log.WithError(err).WithField("receipt_id", receipt.ID).Error("Failed to mark receipt failed")
		return
	}
	receipt.Status = entities.ReceiptStatusFailed
	s.metrics.RecordReceipt(entities.ReceiptStatusFailed, receipt.NetAmount)

	if err := s.deps.EventPublisher.Publish(events.ReceiptFailedEvent{
		ReceiptID:     receipt.ID,
		PayoutRunID:   st.run.ID,
		InvestorID:    receipt.InvestorID,
		WalletAddress: receipt.WalletAddress,
		NetAmount:     receipt.NetAmount,
		Reason:        reason,
	}); err != nil {
		log.WithError(err).Warn("Failed to publish receipt failed event")
	}
}

// recordRunFailure counts a failed item on the run. Retries re-derive the counters instead.
func (s *payoutService) recordRunFailure(ctx context.Context, st *runState, receipt *entities.PayoutReceipt, reason string) {
	if st.recount {
		return
	}
	entry := entities.RunErrorLog{
		InvestorID: receipt.InvestorID,
		WalletID:   receipt.WalletID,
		Message:    reason,
		OccurredAt: s.clock.Now(),
	}
	if err := s.deps.RunRepo.RecordFailure(ctx, st.run.ID, receipt.NetAmount, entry); err != nil {
		log.WithError(err).WithField("payout_run_id", st.run.ID).Error("Failed to record payout failure")
	}
}

func (s *payoutService) recordSuccess(ctx context.Context, st *runState, receipt *entities.PayoutReceipt) {
	s.metrics.RecordReceipt(entities.ReceiptStatusCompleted, receipt.NetAmount)
	if st.recount {
		return
	}
	err := s.deps.RunRepo.RecordSuccess(ctx, st.run.ID,
		receipt.GrossAmount, receipt.NetAmount, receipt.FeeAmount, receipt.WithholdingAmount)
	if err != nil {
		log.WithError(err).WithField("payout_run_id", st.run.ID).Error("Failed to record payout success")
	}
}

// recordUnreceiptedFailure counts a calculation whose receipt could not be stored
func (s *payoutService) recordUnreceiptedFailure(ctx context.Context, st *runState, calc *entities.ProRataCalculation, cause error) {
	reason := fmt.Sprintf("failed to create receipt: %v", cause)
	log.WithFields(log.Fields{
		"payout_run_id": st.run.ID,
		"investor_id":   calc.Wallet.InvestorID,
	}).WithError(cause).Error("Failed to create receipt")

	st.mu.Lock()
	st.failures = append(st.failures, interfaces.PayoutError{
		InvestorID:    calc.Wallet.InvestorID,
		WalletAddress: calc.Wallet.Address,
		Error:         reason,
	})
	st.mu.Unlock()

	entry := entities.RunErrorLog{
		InvestorID: calc.Wallet.InvestorID,
		WalletID:   calc.Wallet.ID,
		Message:    reason,
		OccurredAt: s.clock.Now(),
	}
	if err := s.deps.RunRepo.RecordFailure(ctx, st.run.ID, calc.NetAmount, entry); err != nil {
		log.WithError(err).WithField("payout_run_id", st.run.ID).Error("Failed to record payout failure")
	}
}

// finishRun moves the run to its terminal status and builds the result. An empty
// status derives COMPLETED or PARTIALLY_COMPLETED from the stored counters.
func (s *payoutService) finishRun(
	ctx context.Context,
	st *runState,
	status entities.PayoutRunStatus,
	started time.Time,
) (*interfaces.PayoutRunResult, error) {
	runID := st.run.ID
	if st.recount {
		if err := s.deps.RunRepo.RecountFromReceipts(ctx, runID); err != nil {
			return nil, fmt.Errorf("failed to recount payout run %d: %w", runID, err)
		}
	}

	run, err := s.deps.RunRepo.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload payout run %d: %w", runID, err)
	}
	if run == nil {
		return nil, fmt.Errorf("payout run %d: %w", runID, entities.ErrNotFound)
	}
	if status == "" {
		status = run.OutcomeStatus()
	}

	now := s.clock.Now()
	if err := s.deps.RunRepo.Finish(ctx, runID, status, now); err != nil {
		return nil, fmt.Errorf("failed to finish payout run %d: %w", runID, err)
	}
	run.Status = status
	run.CompletedAt = &now
	s.metrics.RecordPayoutRunFinished(status, run.IsDryRun)

	if err := s.deps.EventPublisher.Publish(events.PayoutRunCompletedEvent{
		PayoutRunID:       run.ID,
		DistributionID:    run.DistributionID,
		Status:            string(status),
		IsDryRun:          run.IsDryRun,
		RetryCount:        run.RetryCount,
		TotalRecipients:   run.TotalRecipients,
		SuccessfulPayouts: run.SuccessfulPayouts,
		FailedPayouts:     run.FailedPayouts,
		SuccessfulAmount:  run.SuccessfulAmount,
		FailedAmount:      run.FailedAmount,
	}); err != nil {
		log.WithError(err).Warn("Failed to publish payout run completed event")
	}

	result := resultFromRun(run)
	result.Errors = st.failures
	result.Duration = s.clock.Since(started)

	log.WithFields(log.Fields{
		"payout_run_id": run.ID,
		"status":        status,
		"successful":    run.SuccessfulPayouts,
		"failed":        run.FailedPayouts,
		"duration":      result.Duration,
	}).Info("Payout run finished")
	return result, nil
}

// failRun marks a run FAILED. It survives a cancelled caller context.
func (s *payoutService) failRun(ctx context.Context, run *entities.PayoutRun, cause error) {
	ctx = context.WithoutCancel(ctx)
	now := s.clock.Now()
	entry := entities.RunErrorLog{Message: cause.Error(), OccurredAt: now}
	if err := s.deps.RunRepo.Fail(ctx, run.ID, entry, now); err != nil {
		log.WithError(err).WithField("payout_run_id", run.ID).Error("Failed to mark payout run failed")
	}
	s.metrics.RecordPayoutRunFinished(entities.PayoutRunStatusFailed, run.IsDryRun)
}

// RetryPayoutRun re-attempts the unsettled receipts of a run from their stored snapshot:
// FAILED receipts and PENDING receipts that were never dispatched. Completed receipts are
// never touched, PROCESSING receipts may already have reached the network and are left
// alone, and amounts are never recomputed.
func (s *payoutService) RetryPayoutRun(ctx context.Context, runID int64) (*interfaces.PayoutRunResult, error) {
	started := s.clock.Now()

	run, err := s.GetPayoutRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !run.IsDryRun && run.Status == entities.PayoutRunStatusFailed && run.TotalRecipients == 0 {
		return nil, fmt.Errorf("%w: payout run %d failed before any payout was attempted; execute the distribution again",
			entities.ErrPrecondition, runID)
	}
	if !run.CanBeRetried() {
		return nil, fmt.Errorf("%w: payout run %d is %s with %d of %d retries used",
			entities.ErrInvalidTransition, runID, run.Status, run.RetryCount, run.MaxRetries)
	}

	existing, err := s.deps.ReceiptRepo.GetByPayoutRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipts of payout run %d: %w", runID, err)
	}
	if len(existing) == 0 {
		return nil, fmt.Errorf("%w: payout run %d has no receipts to retry; execute the distribution again",
			entities.ErrPrecondition, runID)
	}

	distribution, err := s.deps.DistributionRepo.GetByID(ctx, run.DistributionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get distribution %d: %w", run.DistributionID, err)
	}
	if distribution == nil {
		return nil, fmt.Errorf("distribution %d: %w", run.DistributionID, entities.ErrNotFound)
	}
	adapter, err := s.deps.Adapters.AdapterFor(distribution.StablecoinType)
	if err != nil {
		return nil, fmt.Errorf("no adapter for %s: %w", distribution.StablecoinType, err)
	}

	ok, err := s.deps.RunRepo.BeginRetry(ctx, runID, started)
	if err != nil {
		return nil, fmt.Errorf("failed to begin retry of payout run %d: %w", runID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: payout run %d is no longer retryable", entities.ErrConflict, runID)
	}
	s.metrics.RecordPayoutRunStarted(false)

	receipts, err := s.deps.ReceiptRepo.GetByPayoutRun(ctx, runID)
	if err != nil {
		s.failRun(ctx, run, err)
		return nil, fmt.Errorf("failed to get receipts of payout run %d: %w", runID, err)
	}
	unsettled := retryableReceipts(receipts)

	log.WithFields(log.Fields{
		"payout_run_id": runID,
		"attempt":       run.RetryCount + 1,
		"receipts":      len(unsettled),
	}).Info("Retrying unsettled payouts")

	st := &runState{run: run, adapter: adapter, recount: true}
	for start := 0; start < len(unsettled); start += run.BatchSize {
		if err := ctx.Err(); err != nil {
			break
		}
		batchStarted := s.clock.Now()
		end := min(start+run.BatchSize, len(unsettled))
		s.processReceipts(ctx, st, unsettled[start:end])
		s.metrics.RecordBatchDuration(end-start, s.clock.Since(batchStarted))
	}

	result, err := s.finishRun(context.WithoutCancel(ctx), st, "", started)
	if err != nil {
		return nil, err
	}
	s.syncDistributionTotals(ctx, distribution, result)
	return result, nil
}

// retryableReceipts keeps the FAILED and PENDING receipts in calculator order
func retryableReceipts(receipts []*entities.PayoutReceipt) []*entities.PayoutReceipt {
	var out []*entities.PayoutReceipt
	for _, r := range receipts {
		if r.Status == entities.ReceiptStatusFailed || r.Status == entities.ReceiptStatusPending {
			out = append(out, r)
		}
	}
	return out
}

// syncDistributionTotals refreshes an executed distribution after a retry of its last run
func (s *payoutService) syncDistributionTotals(ctx context.Context, distribution *entities.Distribution, result *interfaces.PayoutRunResult) {
	if distribution.Status != entities.DistributionStatusExecuted ||
		distribution.LastPayoutRunID == nil || *distribution.LastPayoutRunID != result.PayoutRunID {
		return
	}
	distribution.DistributedAmount = result.SuccessfulGross
	distribution.NetAmount = result.SuccessfulAmount
	distribution.FeeAmount = result.TotalFees
	distribution.WithheldAmount = result.TotalWithholding
	if err := s.deps.DistributionRepo.Update(ctx, distribution); err != nil {
		log.WithError(err).WithField("distribution_id", distribution.ID).Error("Failed to refresh distribution totals after retry")
	}
}

// CancelPayoutRun requests cancellation; the run stops before its next batch
func (s *payoutService) CancelPayoutRun(ctx context.Context, runID int64) error {
	run, err := s.GetPayoutRun(ctx, runID)
	if err != nil {
		return err
	}
	if !run.CanBeCancelled() {
		return fmt.Errorf("%w: payout run %d is %s", entities.ErrInvalidTransition, runID, run.Status)
	}

	ok, err := s.deps.RunRepo.RequestCancel(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to cancel payout run %d: %w", runID, err)
	}
	if !ok {
		return fmt.Errorf("%w: payout run %d finished before it could be cancelled", entities.ErrInvalidTransition, runID)
	}

	log.WithField("payout_run_id", runID).Info("Cancellation requested for payout run")
	return nil
}

// GetPayoutRun retrieves a run by ID
func (s *payoutService) GetPayoutRun(ctx context.Context, runID int64) (*entities.PayoutRun, error) {
	run, err := s.deps.RunRepo.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payout run %d: %w", runID, err)
	}
	if run == nil {
		return nil, fmt.Errorf("payout run %d: %w", runID, entities.ErrNotFound)
	}
	return run, nil
}

// GetPayoutRunsByDistribution returns every run of a distribution
func (s *payoutService) GetPayoutRunsByDistribution(ctx context.Context, distributionID int64) ([]*entities.PayoutRun, error) {
	runs, err := s.deps.RunRepo.GetByDistribution(ctx, distributionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payout runs of distribution %d: %w", distributionID, err)
	}
	return runs, nil
}

// GetPayoutStats aggregates runs and non-dry-run receipts
func (s *payoutService) GetPayoutStats(ctx context.Context) (*entities.PayoutStats, error) {
	stats, err := s.deps.RunRepo.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get payout stats: %w", err)
	}
	return stats, nil
}

func resultFromRun(run *entities.PayoutRun) *interfaces.PayoutRunResult {
	return &interfaces.PayoutRunResult{
		PayoutRunID:       run.ID,
		Status:            run.Status,
		IsDryRun:          run.IsDryRun,
		TotalRecipients:   run.TotalRecipients,
		SuccessfulPayouts: run.SuccessfulPayouts,
		FailedPayouts:     run.FailedPayouts,
		TotalAmount:       run.TotalAmount,
		SuccessfulGross:   run.SuccessfulGross,
		SuccessfulAmount:  run.SuccessfulAmount,
		FailedAmount:      run.FailedAmount,
		TotalFees:         run.TotalFees,
		TotalWithholding:  run.TotalWithholding,
	}
}

// appliedRuleIDs returns the rules that contributed a positive amount
func appliedRuleIDs(apps []entities.RuleApplication) []int64 {
	var ids []int64
	for _, app := range apps {
		if app.Error == "" && app.Amount.IsPositive() {
			ids = append(ids, app.RuleID)
		}
	}
	return ids
}
