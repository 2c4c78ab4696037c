package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"settlement/domain/entities"
	"settlement/domain/interfaces"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	defaultReceiptPageSize = 50
	maxReceiptPageSize     = 500
)

// receiptService implements the receipt ledger
type receiptService struct {
	receiptRepo interfaces.PayoutReceiptRepository
	renderer    interfaces.DocumentRenderer
	clock       clockwork.Clock
}

// NewReceiptService creates a new receipt service
func NewReceiptService(
	receiptRepo interfaces.PayoutReceiptRepository,
	renderer interfaces.DocumentRenderer,
	clock clockwork.Clock,
) interfaces.ReceiptService {
	return &receiptService{
		receiptRepo: receiptRepo,
		renderer:    renderer,
		clock:       clock,
	}
}

// NewReceiptNumber formats a receipt number as RCP-<base36 unix millis>-<random>
func NewReceiptNumber(now time.Time) string {
	ts := strconv.FormatInt(now.UnixMilli(), 36)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return strings.ToUpper("RCP-" + ts + "-" + suffix)
}

// CreateReceipt stores a PENDING receipt for one calculation of a run
func (s *receiptService) CreateReceipt(
	ctx context.Context,
	run *entities.PayoutRun,
	distribution *entities.Distribution,
	calc *entities.ProRataCalculation,
	sequence int,
) (*entities.PayoutReceipt, error) {
	now := s.clock.Now()
	receipt := &entities.PayoutReceipt{
		PayoutRunID:        run.ID,
		DistributionID:     distribution.ID,
		AssetID:            distribution.AssetID,
		DistributionType:   distribution.Type,
		InvestorID:         calc.Wallet.InvestorID,
		WalletID:           calc.Wallet.ID,
		WalletAddress:      calc.Wallet.Address,
		Sequence:           sequence,
		GrossAmount:        calc.GrossAmount,
		WithholdingAmount:  calc.WithholdingAmount,
		FeeAmount:          calc.FeeAmount,
		NetAmount:          calc.NetAmount,
		TokenBalance:       calc.TokenBalance,
		ProRataShare:       calc.Share,
		StablecoinType:     distribution.StablecoinType,
		ExchangeRate:       distribution.ExchangeRate,
		Status:             entities.ReceiptStatusPending,
		IsDryRun:           run.IsDryRun,
		WithholdingDetails: calc.WithholdingDetails,
		FeeBreakdown:       calc.FeeBreakdown,
		ReceiptNumber:      NewReceiptNumber(now),
	}
	if receipt.ExchangeRate.IsZero() {
		receipt.ExchangeRate = decimal.NewFromInt(1)
	}
	if err := receipt.CheckAmounts(); err != nil {
		return nil, err
	}

	if err := s.receiptRepo.Create(ctx, receipt); err != nil {
		return nil, fmt.Errorf("failed to create receipt for investor %s: %w", receipt.InvestorID, err)
	}
	return receipt, nil
}

// UpdateReceiptStatus applies a guarded status change. An update without a status
// change only records document metadata, which is allowed in every status.
func (s *receiptService) UpdateReceiptStatus(ctx context.Context, id int64, update entities.ReceiptStatusUpdate) (*entities.PayoutReceipt, error) {
	receipt, err := s.GetReceipt(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Status != "" && update.Status != receipt.Status {
		if receipt.IsTerminal() || !receipt.CanTransitionTo(update.Status) {
			return nil, fmt.Errorf("%w: receipt %d cannot move from %s to %s",
				entities.ErrInvalidTransition, id, receipt.Status, update.Status)
		}
		ok, err := s.receiptRepo.Transition(ctx, id, receipt.Status, update, s.clock.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to update receipt %d: %w", id, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: receipt %d changed concurrently", entities.ErrConflict, id)
		}
	}

	if update.DocumentURL != "" {
		format := update.DocumentFormat
		if format == "" {
			format = entities.DocumentFormatJSON
		}
		if err := s.receiptRepo.SetDocument(ctx, id, update.DocumentURL, format); err != nil {
			return nil, fmt.Errorf("failed to record document of receipt %d: %w", id, err)
		}
	}

	return s.GetReceipt(ctx, id)
}

// GetReceipt retrieves a receipt by ID
func (s *receiptService) GetReceipt(ctx context.Context, id int64) (*entities.PayoutReceipt, error) {
	receipt, err := s.receiptRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt %d: %w", id, err)
	}
	if receipt == nil {
		return nil, fmt.Errorf("receipt %d: %w", id, entities.ErrNotFound)
	}
	return receipt, nil
}

// GetReceiptsByPayoutRun returns the receipts of a run in calculator order
func (s *receiptService) GetReceiptsByPayoutRun(ctx context.Context, runID int64) ([]*entities.PayoutReceipt, error) {
	receipts, err := s.receiptRepo.GetByPayoutRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipts of payout run %d: %w", runID, err)
	}
	return receipts, nil
}

// GetReceiptsByInvestor returns an investor's receipts, newest first
func (s *receiptService) GetReceiptsByInvestor(ctx context.Context, investorID string, limit int) ([]*entities.PayoutReceipt, error) {
	receipts, err := s.receiptRepo.GetByInvestor(ctx, investorID, pageSize(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get receipts of investor %s: %w", investorID, err)
	}
	return receipts, nil
}

// SearchReceipts returns the matching receipts and the total match count
func (s *receiptService) SearchReceipts(ctx context.Context, filter entities.ReceiptFilter) ([]*entities.PayoutReceipt, int64, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, 0, entities.NewValidationError("search range ends before it starts")
	}
	filter.Limit = pageSize(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	receipts, total, err := s.receiptRepo.Search(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search receipts: %w", err)
	}
	return receipts, total, nil
}

// BulkGenerateDocuments renders a document for every receipt of a run. A render
// failure is reported for that receipt and does not stop the others.
func (s *receiptService) BulkGenerateDocuments(ctx context.Context, runID int64, format entities.DocumentFormat) ([]interfaces.GeneratedDocument, error) {
	if !format.IsValid() {
		return nil, entities.NewValidationError("unsupported document format %q", format)
	}
	receipts, err := s.GetReceiptsByPayoutRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	docs := make([]interfaces.GeneratedDocument, 0, len(receipts))
	failed := 0
	for _, r := range receipts {
		doc := interfaces.GeneratedDocument{ReceiptID: r.ID}
		url, err := s.renderer.Render(ctx, r, format)
		if err == nil {
			err = s.receiptRepo.SetDocument(ctx, r.ID, url, format)
		}
		if err != nil {
			failed++
			doc.Error = err.Error()
		} else {
			doc.DocumentURL = url
		}
		docs = append(docs, doc)
	}

	log.WithFields(log.Fields{
		"payout_run_id": runID,
		"format":        format,
		"generated":     len(docs) - failed,
		"failed":        failed,
	}).Info("Generated receipt documents")
	return docs, nil
}

// ExportReceipt serializes one receipt as JSON or CSV
func (s *receiptService) ExportReceipt(ctx context.Context, id int64, format entities.DocumentFormat) (*interfaces.ExportedReceipt, error) {
	var contentType string
	switch format {
	case entities.DocumentFormatJSON:
		contentType = "application/json"
	case entities.DocumentFormatCSV:
		contentType = "text/csv"
	default:
		return nil, entities.NewValidationError("unsupported export format %q", format)
	}

	receipt, err := s.GetReceipt(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := s.renderer.Encode([]*entities.PayoutReceipt{receipt}, format)
	if err != nil {
		return nil, fmt.Errorf("failed to encode receipt %d: %w", id, err)
	}

	return &interfaces.ExportedReceipt{
		Filename:    receipt.ReceiptNumber + "." + string(format),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// GetReceiptStats aggregates the receipts matching the filter
func (s *receiptService) GetReceiptStats(ctx context.Context, filter entities.ReceiptFilter) (*entities.ReceiptStats, error) {
	stats, err := s.receiptRepo.GetStats(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt stats: %w", err)
	}
	return stats, nil
}

func pageSize(limit int) int {
	if limit <= 0 {
		return defaultReceiptPageSize
	}
	return min(limit, maxReceiptPageSize)
}
