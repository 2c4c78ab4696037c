package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"settlement/domain/entities"
	"settlement/domain/interfaces"
	"settlement/events"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	defaultDistributionPageSize = 50
	maxDistributionPageSize     = 500
	dueDistributionLimit        = 100
)

// distributionService manages the lifecycle of distributions
type distributionService struct {
	distRepo       interfaces.DistributionRepository
	payoutService  interfaces.PayoutService
	walletRegistry interfaces.WalletRegistry
	eventPublisher interfaces.EventPublisher
	clock          clockwork.Clock
}

// NewDistributionService creates a new distribution service. payoutService and
// walletRegistry are only needed by ExecuteDistribution.
func NewDistributionService(
	distRepo interfaces.DistributionRepository,
	payoutService interfaces.PayoutService,
	walletRegistry interfaces.WalletRegistry,
	eventPublisher interfaces.EventPublisher,
	clock clockwork.Clock,
) interfaces.DistributionService {
	return &distributionService{
		distRepo:       distRepo,
		payoutService:  payoutService,
		walletRegistry: walletRegistry,
		eventPublisher: eventPublisher,
		clock:          clock,
	}
}

// CreateDistribution validates and schedules a PENDING distribution.
// Only one PENDING distribution may exist per asset.
func (s *distributionService) CreateDistribution(ctx context.Context, req interfaces.CreateDistributionRequest) (*entities.Distribution, error) {
	now := s.clock.Now()

	if strings.TrimSpace(req.AssetID) == "" {
		return nil, entities.NewValidationError("asset id is required")
	}
	if !req.TotalAmount.IsPositive() {
		return nil, entities.NewValidationError("total amount must be positive, got %s", req.TotalAmount)
	}
	if req.ScheduledDate.IsZero() || req.ScheduledDate.Before(now) {
		return nil, entities.NewValidationError("scheduled date %s is in the past", req.ScheduledDate.Format("2006-01-02T15:04:05Z07:00"))
	}
	if !req.Type.IsValid() {
		return nil, entities.NewValidationError("unknown distribution type %q", req.Type)
	}

	frequency := req.Frequency
	if frequency == "" {
		frequency = entities.FrequencyOneTime
	}
	if !frequency.IsValid() {
		return nil, entities.NewValidationError("unknown frequency %q", req.Frequency)
	}
	stablecoin := req.StablecoinType
	if stablecoin == "" {
		stablecoin = entities.StablecoinUSDC
	}
	if !stablecoin.IsValid() {
		return nil, entities.NewValidationError("unsupported stablecoin %q", req.StablecoinType)
	}
	exchangeRate := req.ExchangeRate
	if exchangeRate.IsZero() {
		exchangeRate = decimal.NewFromInt(1)
	}
	if !exchangeRate.IsPositive() {
		return nil, entities.NewValidationError("exchange rate must be positive, got %s", exchangeRate)
	}
	workflow := entities.DefaultApprovalWorkflow()
	if req.ApprovalWorkflow != nil {
		workflow = *req.ApprovalWorkflow
		workflow.Approvers = nil
	}

	pending, err := s.distRepo.HasPendingForAsset(ctx, req.AssetID)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending distributions: %w", err)
	}
	if pending {
		return nil, fmt.Errorf("%w: asset %s already has a pending distribution", entities.ErrConflict, req.AssetID)
	}

	distribution := &entities.Distribution{
		AssetID:           req.AssetID,
		AssetName:         req.AssetName,
		Type:              req.Type,
		Frequency:         frequency,
		Status:            entities.DistributionStatusPending,
		ScheduledDate:     req.ScheduledDate,
		TotalAmount:       entities.RoundAmount(req.TotalAmount),
		DistributedAmount: decimal.Zero,
		WithheldAmount:    decimal.Zero,
		FeeAmount:         decimal.Zero,
		NetAmount:         decimal.Zero,
		StablecoinType:    stablecoin,
		ExchangeRate:      exchangeRate,
		ApprovalWorkflow:  workflow,
		IsRecurring:       req.IsRecurring,
		Recurrence:        req.Recurrence,
		Metadata:          req.Metadata,
		Notes:             req.Notes,
		CreatedBy:         req.CreatedBy,
	}
	if err := s.distRepo.Create(ctx, distribution); err != nil {
		return nil, fmt.Errorf("failed to create distribution: %w", err)
	}

	s.publish(events.DistributionCreatedEvent{
		DistributionID:   distribution.ID,
		AssetID:          distribution.AssetID,
		DistributionType: string(distribution.Type),
		TotalAmount:      distribution.TotalAmount,
		ScheduledDate:    distribution.ScheduledDate,
	})

	log.WithFields(log.Fields{
		"distribution_id": distribution.ID,
		"asset_id":        distribution.AssetID,
		"total_amount":    distribution.TotalAmount,
		"scheduled_date":  distribution.ScheduledDate,
	}).Info("Distribution created")
	return distribution, nil
}

// ApproveDistribution records an approval and transitions to APPROVED once the quorum is met
func (s *distributionService) ApproveDistribution(ctx context.Context, id int64, approverID string) (*entities.Distribution, error) {
	distribution, err := s.getForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	approved, err := distribution.Approve(approverID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.distRepo.Update(ctx, distribution); err != nil {
		return nil, fmt.Errorf("failed to update distribution %d: %w", id, err)
	}

	logger := log.WithFields(log.Fields{
		"distribution_id": id,
		"approver_id":     approverID,
	})
	if !approved {
		logger.WithFields(log.Fields{
			"approvals": len(distribution.ApprovalWorkflow.Approvers),
			"required":  distribution.ApprovalWorkflow.Quorum(),
		}).Info("Approval recorded, awaiting quorum")
		return distribution, nil
	}

	s.publish(events.DistributionApprovedEvent{
		DistributionID: distribution.ID,
		AssetID:        distribution.AssetID,
		ApprovedBy:     approverID,
		Approvers:      distribution.ApprovalWorkflow.Approvers,
	})
	logger.Info("Distribution approved")
	return distribution, nil
}

// ExecuteDistribution pays an APPROVED, due distribution through the payout executor.
// The distribution is claimed in the database first, so concurrent executors and
// cancellations cannot both act on it. Execution failures are recorded on the
// distribution and reported in the result; the error return is reserved for
// requests that could not be attempted.
func (s *distributionService) ExecuteDistribution(ctx context.Context, id int64) (*interfaces.ExecutionResult, error) {
	distribution, err := s.GetDistribution(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if distribution.Status != entities.DistributionStatusApproved {
		return nil, fmt.Errorf("%w: distribution %d is %s, not APPROVED",
			entities.ErrInvalidTransition, id, distribution.Status)
	}
	if !distribution.IsDue(now) {
		return nil, entities.NewValidationError("distribution %d is scheduled for %s and not yet due",
			id, distribution.ScheduledDate.Format("2006-01-02T15:04:05Z07:00"))
	}

	claimed, err := s.distRepo.ClaimExecution(ctx, id, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("%w: distribution %d is already executing or no longer APPROVED", entities.ErrConflict, id)
	}
	distribution.ExecutionClaimedAt = &now

	logger := log.WithFields(log.Fields{
		"distribution_id": id,
		"asset_id":        distribution.AssetID,
	})
	logger.Info("Executing distribution")

	wallets, err := s.walletRegistry.GetEligibleWallets(ctx, distribution.AssetID)
	if err != nil {
		return s.fail(ctx, distribution, fmt.Sprintf("failed to get eligible wallets: %v", err), nil)
	}
	if len(wallets) == 0 {
		return s.fail(ctx, distribution, entities.ErrNoEligibleWallets.Error(), nil)
	}

	runResult, err := s.payoutService.ExecutePayoutRun(ctx, interfaces.PayoutRunRequest{
		DistributionID: id,
		Type:           entities.PayoutRunTypeScheduled,
		InitiatedBy:    "system",
	})
	if err != nil {
		logger.WithError(err).Error("Payout run failed")
		return s.fail(ctx, distribution, err.Error(), nil)
	}
	if runResult.Status == entities.PayoutRunStatusCancelled {
		return s.fail(ctx, distribution, fmt.Sprintf("payout run %d was cancelled", runResult.PayoutRunID), runResult)
	}

	run := &entities.PayoutRun{
		ID:               runResult.PayoutRunID,
		SuccessfulGross:  runResult.SuccessfulGross,
		SuccessfulAmount: runResult.SuccessfulAmount,
		TotalFees:        runResult.TotalFees,
		TotalWithholding: runResult.TotalWithholding,
	}
	if err := distribution.MarkExecuted(s.clock.Now(), run); err != nil {
		return s.fail(ctx, distribution, err.Error(), runResult)
	}
	if err := s.recordOutcome(context.WithoutCancel(ctx), distribution); err != nil {
		return nil, err
	}

	s.publish(events.DistributionExecutedEvent{
		DistributionID:    distribution.ID,
		AssetID:           distribution.AssetID,
		PayoutRunID:       runResult.PayoutRunID,
		DistributedAmount: distribution.DistributedAmount,
		NetAmount:         distribution.NetAmount,
		WithheldAmount:    distribution.WithheldAmount,
		FeeAmount:         distribution.FeeAmount,
	})

	result := &interfaces.ExecutionResult{
		Success:        true,
		DistributionID: id,
		Status:         distribution.Status,
		PayoutRun:      runResult,
	}
	for _, e := range runResult.Errors {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", e.InvestorID, e.Error))
	}

	logger.WithFields(log.Fields{
		"payout_run_id":      runResult.PayoutRunID,
		"distributed_amount": distribution.DistributedAmount,
		"failed_payouts":     runResult.FailedPayouts,
	}).Info("Distribution executed")
	return result, nil
}

// fail moves the claimed distribution to FAILED and reports the reason in the result
func (s *distributionService) fail(
	ctx context.Context,
	distribution *entities.Distribution,
	reason string,
	runResult *interfaces.PayoutRunResult,
) (*interfaces.ExecutionResult, error) {
	ctx = context.WithoutCancel(ctx)
	if err := distribution.MarkFailed(reason); err != nil {
		return nil, err
	}
	if err := s.recordOutcome(ctx, distribution); err != nil {
		return nil, err
	}

	s.publish(events.DistributionFailedEvent{
		DistributionID: distribution.ID,
		AssetID:        distribution.AssetID,
		Error:          reason,
	})
	log.WithFields(log.Fields{
		"distribution_id": distribution.ID,
		"reason":          reason,
	}).Error("Distribution execution failed")

	return &interfaces.ExecutionResult{
		Success:        false,
		DistributionID: distribution.ID,
		Status:         distribution.Status,
		PayoutRun:      runResult,
		Errors:         []string{reason},
	}, nil
}

// recordOutcome persists the terminal status of a claimed execution
func (s *distributionService) recordOutcome(ctx context.Context, distribution *entities.Distribution) error {
	ok, err := s.distRepo.RecordOutcome(ctx, distribution)
	if err != nil {
		return fmt.Errorf("failed to record %s outcome of distribution %d: %w", distribution.Status, distribution.ID, err)
	}
	if !ok {
		return fmt.Errorf("%w: distribution %d changed while it was executing", entities.ErrConflict, distribution.ID)
	}
	return nil
}

// CancelDistribution cancels a PENDING or APPROVED distribution
func (s *distributionService) CancelDistribution(ctx context.Context, id int64, reason, actor string) (*entities.Distribution, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, entities.NewValidationError("cancellation reason is required")
	}
	distribution, err := s.getForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := distribution.Cancel(reason, actor, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.distRepo.Update(ctx, distribution); err != nil {
		return nil, fmt.Errorf("failed to update distribution %d: %w", id, err)
	}

	s.publish(events.DistributionCancelledEvent{
		DistributionID: distribution.ID,
		AssetID:        distribution.AssetID,
		Reason:         reason,
		CancelledBy:    actor,
	})
	log.WithFields(log.Fields{
		"distribution_id": id,
		"reason":          reason,
		"actor":           actor,
	}).Info("Distribution cancelled")
	return distribution, nil
}

// CreateRecurringDistributions schedules the next instance of every executed recurring
// distribution. A parent spawns at most one child, and only for a future date.
func (s *distributionService) CreateRecurringDistributions(ctx context.Context) (int, error) {
	parents, err := s.distRepo.GetExecutedRecurring(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get executed recurring distributions: %w", err)
	}

	now := s.clock.Now()
	created := 0
	var errs []error
	for _, parent := range parents {
		if !parent.IsRecurringSeries() {
			continue
		}
		logger := log.WithFields(log.Fields{
			"parent_distribution_id": parent.ID,
			"asset_id":               parent.AssetID,
		})

		hasChild, err := s.distRepo.HasChild(ctx, parent.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("distribution %d: %w", parent.ID, err))
			continue
		}
		if hasChild {
			continue
		}

		next := parent.NextRecurringDate()
		if !next.After(now) {
			logger.WithField("next_date", next).Debug("Next recurring date already passed, skipping")
			continue
		}

		pending, err := s.distRepo.HasPendingForAsset(ctx, parent.AssetID)
		if err != nil {
			errs = append(errs, fmt.Errorf("distribution %d: %w", parent.ID, err))
			continue
		}
		if pending {
			logger.Warn("Asset already has a pending distribution, recurring instance not created")
			continue
		}

		child := parent.NewRecurringChild(next)
		if err := s.distRepo.Create(ctx, child); err != nil {
			if errors.Is(err, entities.ErrConflict) {
				logger.WithError(err).Warn("Recurring instance already exists")
				continue
			}
			errs = append(errs, fmt.Errorf("distribution %d: %w", parent.ID, err))
			continue
		}
		created++

		s.publish(events.DistributionCreatedEvent{
			DistributionID:       child.ID,
			AssetID:              child.AssetID,
			DistributionType:     string(child.Type),
			TotalAmount:          child.TotalAmount,
			ScheduledDate:        child.ScheduledDate,
			ParentDistributionID: child.ParentDistributionID,
		})
		logger.WithFields(log.Fields{
			"distribution_id": child.ID,
			"scheduled_date":  child.ScheduledDate,
		}).Info("Recurring distribution created")
	}

	return created, errors.Join(errs...)
}

// GetDistribution retrieves a distribution by ID
func (s *distributionService) GetDistribution(ctx context.Context, id int64) (*entities.Distribution, error) {
	distribution, err := s.distRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get distribution %d: %w", id, err)
	}
	if distribution == nil {
		return nil, fmt.Errorf("distribution %d: %w", id, entities.ErrNotFound)
	}
	return distribution, nil
}

// UpdateDistribution changes the amount, date, notes or metadata of a PENDING distribution
func (s *distributionService) UpdateDistribution(ctx context.Context, id int64, req interfaces.UpdateDistributionRequest) (*entities.Distribution, error) {
	distribution, err := s.getForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if distribution.Status != entities.DistributionStatusPending {
		return nil, fmt.Errorf("%w: distribution %d is %s and can no longer be edited",
			entities.ErrInvalidTransition, id, distribution.Status)
	}

	if req.TotalAmount != nil {
		if !req.TotalAmount.IsPositive() {
			return nil, entities.NewValidationError("total amount must be positive, got %s", *req.TotalAmount)
		}
		distribution.TotalAmount = entities.RoundAmount(*req.TotalAmount)
	}
	if req.ScheduledDate != nil {
		if req.ScheduledDate.Before(s.clock.Now()) {
			return nil, entities.NewValidationError("scheduled date is in the past")
		}
		distribution.ScheduledDate = *req.ScheduledDate
	}
	if req.Notes != nil {
		distribution.Notes = *req.Notes
	}
	if req.Metadata != nil {
		distribution.Metadata = req.Metadata
	}

	if err := s.distRepo.Update(ctx, distribution); err != nil {
		return nil, fmt.Errorf("failed to update distribution %d: %w", id, err)
	}
	return distribution, nil
}

// SearchDistributions returns the matching distributions and the total match count
func (s *distributionService) SearchDistributions(ctx context.Context, filter entities.DistributionFilter) ([]*entities.Distribution, int64, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, 0, entities.NewValidationError("search range ends before it starts")
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultDistributionPageSize
	}
	filter.Limit = min(filter.Limit, maxDistributionPageSize)
	filter.Offset = max(filter.Offset, 0)

	distributions, total, err := s.distRepo.Search(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search distributions: %w", err)
	}
	return distributions, total, nil
}

// GetDistributionStats aggregates distributions
func (s *distributionService) GetDistributionStats(ctx context.Context) (*entities.DistributionStats, error) {
	stats, err := s.distRepo.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get distribution stats: %w", err)
	}
	return stats, nil
}

// GetDueDistributions returns APPROVED distributions whose scheduled date has passed
func (s *distributionService) GetDueDistributions(ctx context.Context) ([]*entities.Distribution, error) {
	due, err := s.distRepo.GetDue(ctx, s.clock.Now(), dueDistributionLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due distributions: %w", err)
	}
	return due, nil
}

func (s *distributionService) getForUpdate(ctx context.Context, id int64) (*entities.Distribution, error) {
	distribution, err := s.distRepo.GetByIDForUpdate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get distribution %d: %w", id, err)
	}
	if distribution == nil {
		return nil, fmt.Errorf("distribution %d: %w", id, entities.ErrNotFound)
	}
	return distribution, nil
}

func (s *distributionService) publish(event events.Event) {
	if err := s.eventPublisher.Publish(event); err != nil {
		log.WithError(err).WithField("event_type", event.Type()).Warn("Failed to publish event")
	}
}
