package services

import (
	"context"
	"errors"
	"fmt"

	"settlement/domain/entities"
	"settlement/domain/interfaces"
	"settlement/domain/rules"
	"settlement/events"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// feeService implements the fee rule engine and fee capture administration
type feeService struct {
	feeRepo        interfaces.FeeCaptureRepository
	engine         *rules.Engine[*entities.FeeCapture]
	eventPublisher interfaces.EventPublisher
	clock          clockwork.Clock
}

// NewFeeService creates a new fee service
func NewFeeService(
	feeRepo interfaces.FeeCaptureRepository,
	formulas *rules.FormulaEvaluator,
	eventPublisher interfaces.EventPublisher,
	clock clockwork.Clock,
	metrics interfaces.SettlementMetrics,
) interfaces.FeeService {
	metrics = metricsOrNoop(metrics)
	engine := rules.NewEngine(rules.Definition[*entities.FeeCapture]{
		Kind:     "fee",
		Describe: describeFeeCapture,
		Matches:  feeMatches,
		OnFailure: func(kind string, _ rules.Descriptor, _ error) {
			metrics.RecordRuleFailure(kind)
		},
	}, formulas)

	return &feeService{
		feeRepo:        feeRepo,
		engine:         engine,
		eventPublisher: eventPublisher,
		clock:          clock,
	}
}

func describeFeeCapture(f *entities.FeeCapture) rules.Descriptor {
	return rules.Descriptor{
		ID:       f.ID,
		Name:     f.FeeName,
		Priority: f.Priority,
		Params: rules.MethodParams{
			Method:  f.CalculationMethod,
			Rate:    f.Rate,
			Fixed:   f.FixedAmount,
			Tiers:   f.TieredRates,
			Formula: f.Formula,
		},
	}
}

// feeMatches scopes a capture to the investor, asset and distribution being paid.
// base_amount is the minimum gross before the fee applies.
func feeMatches(f *entities.FeeCapture, c *rules.Context) bool {
	if c.Wallet == nil || c.Distribution == nil {
		return false
	}
	if !f.IsApplicableAt(c.Now) {
		return false
	}
	if !f.AppliesTo(c.Wallet.InvestorID, c.Distribution.AssetID, c.Distribution.ID) {
		return false
	}
	return !f.BaseAmount.Valid || !c.Gross.LessThan(f.BaseAmount.Decimal)
}

// PendingFees loads the PENDING captures of an asset
func (s *feeService) PendingFees(ctx context.Context, assetID string) ([]*entities.FeeCapture, error) {
	fees, err := s.feeRepo.GetPendingByAsset(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending fees for asset %s: %w", assetID, err)
	}
	return fees, nil
}

// Evaluate computes the fees owed on gross from preloaded captures
func (s *feeService) Evaluate(
	fees []*entities.FeeCapture,
	wallet *entities.InvestorWallet,
	gross decimal.Decimal,
	distribution *entities.Distribution,
) interfaces.DeductionResult {
	result := s.engine.Evaluate(fees, &rules.Context{
		Wallet:       wallet,
		Distribution: distribution,
		Gross:        gross,
		Now:          s.clock.Now(),
	})
	return toDeductionResult(result.Total, result.Applications, result.Failures)
}

// CalculateFees loads the pending captures of the distribution's asset and evaluates them
func (s *feeService) CalculateFees(
	ctx context.Context,
	wallet *entities.InvestorWallet,
	gross decimal.Decimal,
	distribution *entities.Distribution,
) (*interfaces.DeductionResult, error) {
	fees, err := s.PendingFees(ctx, distribution.AssetID)
	if err != nil {
		return nil, err
	}
	result := s.Evaluate(fees, wallet, gross, distribution)
	return &result, nil
}

// CreateFeeCapture validates and stores a new capture
func (s *feeService) CreateFeeCapture(ctx context.Context, fee *entities.FeeCapture) (*entities.FeeCapture, error) {
	if err := fee.Validate(); err != nil {
		return nil, err
	}
	if fee.CalculationMethod == entities.CalculationFormula {
		if err := s.engine.Formulas().Validate(fee.Formula); err != nil {
			return nil, entities.NewValidationError("invalid formula: %v", err)
		}
	}
	if fee.FeeType == "" {
		fee.FeeType = entities.FeeTypeManagement
	}
	fee.Status = entities.FeeStatusPending
	fee.CalculatedFee = decimal.Zero
	fee.CollectedFee = decimal.Zero
	fee.WaivedFee = decimal.Zero

	if err := s.feeRepo.Create(ctx, fee); err != nil {
		return nil, fmt.Errorf("failed to create fee capture: %w", err)
	}

	log.WithFields(log.Fields{
		"fee_id":      fee.ID,
		"investor_id": fee.InvestorID,
		"asset_id":    fee.AssetID,
		"fee_type":    fee.FeeType,
		"method":      fee.CalculationMethod,
	}).Info("Created fee capture")
	return fee, nil
}

// GetFeeCapture retrieves a capture by ID
func (s *feeService) GetFeeCapture(ctx context.Context, id int64) (*entities.FeeCapture, error) {
	fee, err := s.feeRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get fee capture %d: %w", id, err)
	}
	if fee == nil {
		return nil, fmt.Errorf("fee capture %d: %w", id, entities.ErrNotFound)
	}
	return fee, nil
}

// UpdateFeeStatus applies a manual status change to a PENDING or DEFERRED capture
func (s *feeService) UpdateFeeStatus(ctx context.Context, id int64, update entities.FeeStatusUpdate) (*entities.FeeCapture, error) {
	fee, err := s.GetFeeCapture(ctx, id)
	if err != nil {
		return nil, err
	}
	if fee.Status != entities.FeeStatusPending && fee.Status != entities.FeeStatusDeferred {
		return nil, fmt.Errorf("%w: fee capture %d is %s", entities.ErrInvalidTransition, id, fee.Status)
	}
	if update.Amount.IsNegative() {
		return nil, entities.NewValidationError("fee amount must not be negative")
	}

	now := s.clock.Now()
	amount := update.Amount
	if amount.IsZero() {
		amount = fee.CalculatedFee
	}

	switch update.Status {
	case entities.FeeStatusCollected:
		fee.CollectedFee = amount
		fee.CollectedAt = &now
		if update.TransactionHash != "" {
			fee.TransactionHash = update.TransactionHash
		}
	case entities.FeeStatusWaived:
		fee.WaivedFee = amount
		fee.WaivedAt = &now
	case entities.FeeStatusDeferred:
		until := now.Add(entities.FeeDeferralPeriod)
		fee.DeferredUntil = &until
	case entities.FeeStatusPending:
		if fee.Status != entities.FeeStatusDeferred {
			return nil, fmt.Errorf("%w: fee capture %d is already PENDING", entities.ErrInvalidTransition, id)
		}
		fee.DeferredUntil = nil
	case entities.FeeStatusFailed:
	default:
		return nil, entities.NewValidationError("unknown fee status %q", update.Status)
	}
	fee.Status = update.Status
	fee.StatusReason = update.Reason

	if err := s.feeRepo.UpdateStatus(ctx, fee); err != nil {
		return nil, fmt.Errorf("failed to update fee capture %d: %w", id, err)
	}

	log.WithFields(log.Fields{
		"fee_id": id,
		"status": fee.Status,
		"amount": amount.String(),
	}).Info("Updated fee capture status")

	if fee.Status == entities.FeeStatusCollected {
		s.publishCollected(fee)
	}
	return fee, nil
}

// GetFeesByInvestor returns an investor's captures
func (s *feeService) GetFeesByInvestor(ctx context.Context, investorID string) ([]*entities.FeeCapture, error) {
	fees, err := s.feeRepo.GetByInvestor(ctx, investorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get fees for investor %s: %w", investorID, err)
	}
	return fees, nil
}

// GetFeesByAsset returns an asset's captures
func (s *feeService) GetFeesByAsset(ctx context.Context, assetID string) ([]*entities.FeeCapture, error) {
	fees, err := s.feeRepo.GetByAsset(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to get fees for asset %s: %w", assetID, err)
	}
	return fees, nil
}

// GetOverdueFees returns PENDING captures past their due date
func (s *feeService) GetOverdueFees(ctx context.Context) ([]*entities.FeeCapture, error) {
	now := s.clock.Now()
	fees, err := s.feeRepo.GetOverdue(ctx, now, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get overdue fees: %w", err)
	}

	overdue := fees[:0]
	for _, f := range fees {
		if f.IsOverdueAt(now) {
			overdue = append(overdue, f)
		}
	}
	return overdue, nil
}

// RecordCalculated stores the amounts computed for the captures of a fee breakdown
func (s *feeService) RecordCalculated(ctx context.Context, breakdown []entities.RuleApplication) error {
	amounts := make(map[int64]decimal.Decimal, len(breakdown))
	for _, app := range breakdown {
		if app.Error == "" {
			amounts[app.RuleID] = app.Amount
		}
	}
	if len(amounts) == 0 {
		return nil
	}
	if err := s.feeRepo.RecordCalculated(ctx, amounts); err != nil {
		return fmt.Errorf("failed to record calculated fees: %w", err)
	}
	return nil
}

// RecordCollection marks the captures of a paid fee breakdown COLLECTED
func (s *feeService) RecordCollection(ctx context.Context, breakdown []entities.RuleApplication, runID int64, txHash string) error {
	var errs []error
	for _, app := range breakdown {
		if app.Error != "" || !app.Amount.IsPositive() {
			continue
		}

		fee, err := s.GetFeeCapture(ctx, app.RuleID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if fee.Status != entities.FeeStatusPending {
			continue
		}

		now := s.clock.Now()
		fee.Status = entities.FeeStatusCollected
		fee.CalculatedFee = app.Amount
		fee.CollectedFee = app.Amount
		fee.CollectedAt = &now
		fee.PayoutRunID = &runID
		fee.TransactionHash = txHash
		fee.StatusReason = "deducted from payout"

		if err := s.feeRepo.UpdateStatus(ctx, fee); err != nil {
			errs = append(errs, fmt.Errorf("failed to collect fee capture %d: %w", fee.ID, err))
			continue
		}
		s.publishCollected(fee)
	}
	return errors.Join(errs...)
}

// ProcessAutomaticFeeCollection collects every due automatic capture
func (s *feeService) ProcessAutomaticFeeCollection(ctx context.Context) (*interfaces.FeeCollectionResult, error) {
	now := s.clock.Now()
	fees, err := s.feeRepo.GetOverdue(ctx, now, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load automatic fees: %w", err)
	}

	result := &interfaces.FeeCollectionResult{Processed: len(fees)}
	for _, fee := range fees {
		collectedAt := now
		fee.Status = entities.FeeStatusCollected
		fee.CollectedFee = fee.CalculatedFee
		fee.CollectedAt = &collectedAt
		fee.StatusReason = "collected automatically"

		if err := s.feeRepo.UpdateStatus(ctx, fee); err != nil {
			result.Failed++
			msg := fmt.Sprintf("failed to collect fee %d: %v", fee.ID, err)
			result.Errors = append(result.Errors, msg)
			log.WithError(err).WithField("fee_id", fee.ID).Error("Automatic fee collection failed")
			continue
		}

		result.Successful++
		log.WithFields(log.Fields{
			"fee_id": fee.ID,
			"amount": fee.CollectedFee.String(),
		}).Info("Automatically collected fee")
		s.publishCollected(fee)
	}
	return result, nil
}

// GetFeeStats aggregates fee captures
func (s *feeService) GetFeeStats(ctx context.Context) (*entities.FeeStats, error) {
	stats, err := s.feeRepo.GetStats(ctx, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to get fee stats: %w", err)
	}
	return stats, nil
}

func (s *feeService) publishCollected(fee *entities.FeeCapture) {
	if s.eventPublisher == nil {
		return
	}
	err := s.eventPublisher.Publish(events.FeeCollectedEvent{
		FeeCaptureID: fee.ID,
		InvestorID:   fee.InvestorID,
		AssetID:      fee.AssetID,
		Amount:       fee.CollectedFee,
		PayoutRunID:  fee.PayoutRunID,
	})
	if err != nil {
		log.WithError(err).WithField("fee_id", fee.ID).Warn("Failed to publish fee collected event")
	}
}
