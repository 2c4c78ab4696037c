package renderer

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"settlement/domain/entities"

	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const (
	receiptSheet    = "Receipts"
	deductionsSheet = "Deductions"
)

var receiptColumns = []string{
	"Receipt Number",
	"Investor ID",
	"Wallet Address",
	"Asset ID",
	"Distribution Type",
	"Payout Date",
	"Gross Amount",
	"Withholding Amount",
	"Fee Amount",
	"Net Amount",
	"Token Balance",
	"Pro-rata Share",
	"Stablecoin Type",
	"Exchange Rate",
	"Status",
	"Transaction Hash",
}

var deductionColumns = []string{"Receipt Number", "Kind", "Rule ID", "Rule Name", "Method", "Amount", "Exempted", "Error"}

// receiptDocument is the JSON form of a receipt
type receiptDocument struct {
	ReceiptNumber      string                     `json:"receipt_number"`
	InvestorID         string                     `json:"investor_id"`
	WalletAddress      string                     `json:"wallet_address"`
	AssetID            string                     `json:"asset_id"`
	DistributionID     int64                      `json:"distribution_id"`
	PayoutRunID        int64                      `json:"payout_run_id"`
	DistributionType   string                     `json:"distribution_type"`
	PayoutDate         time.Time                  `json:"payout_date"`
	GrossAmount        string                     `json:"gross_amount"`
	WithholdingAmount  string                     `json:"withholding_amount"`
	FeeAmount          string                     `json:"fee_amount"`
	NetAmount          string                     `json:"net_amount"`
	TokenBalance       string                     `json:"token_balance"`
	ProRataShare       string                     `json:"pro_rata_share"`
	StablecoinType     string                     `json:"stablecoin_type"`
	ExchangeRate       string                     `json:"exchange_rate"`
	Status             string                     `json:"status"`
	TransactionHash    string                     `json:"transaction_hash,omitempty"`
	IsDryRun           bool                       `json:"is_dry_run"`
	WithholdingDetails []entities.RuleApplication `json:"withholding_details,omitempty"`
	FeeBreakdown       []entities.RuleApplication `json:"fee_breakdown,omitempty"`
}

// FileRenderer writes receipt documents into a directory served under a base URL
type FileRenderer struct {
	dir     string
	baseURL string
}

// NewFileRenderer creates the document directory if needed
func NewFileRenderer(dir, baseURL string) (*FileRenderer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create document directory %s: %w", dir, err)
	}
	return &FileRenderer{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Render writes the receipt in format and returns its URL
func (r *FileRenderer) Render(ctx context.Context, receipt *entities.PayoutReceipt, format entities.DocumentFormat) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := r.Encode([]*entities.PayoutReceipt{receipt}, format)
	if err != nil {
		return "", err
	}

	name := documentName(receipt, format)
	if err := writeFileAtomic(filepath.Join(r.dir, name), data); err != nil {
		return "", fmt.Errorf("failed to write document %s: %w", name, err)
	}

	url := r.baseURL + "/" + name
	log.WithFields(log.Fields{
		"receipt_id": receipt.ID,
		"format":     format,
		"url":        url,
	}).Debug("Rendered receipt document")
	return url, nil
}

// Encode serializes receipts in format
func (r *FileRenderer) Encode(receipts []*entities.PayoutReceipt, format entities.DocumentFormat) ([]byte, error) {
	switch format {
	case entities.DocumentFormatJSON:
		return encodeJSON(receipts)
	case entities.DocumentFormatCSV:
		return encodeCSV(receipts)
	case entities.DocumentFormatXLSX:
		return encodeXLSX(receipts)
	default:
		return nil, entities.NewValidationError("unsupported document format %q", format)
	}
}

func documentName(receipt *entities.PayoutReceipt, format entities.DocumentFormat) string {
	base := receipt.ReceiptNumber
	if base == "" {
		base = "receipt-" + strconv.FormatInt(receipt.ID, 10)
	}
	return base + "." + string(format)
}

func payoutDate(receipt *entities.PayoutReceipt) time.Time {
	if receipt.ProcessedAt != nil {
		return receipt.ProcessedAt.UTC()
	}
	return receipt.CreatedAt.UTC()
}

func toDocument(r *entities.PayoutReceipt) receiptDocument {
	return receiptDocument{
		ReceiptNumber:      r.ReceiptNumber,
		InvestorID:         r.InvestorID,
		WalletAddress:      r.WalletAddress,
		AssetID:            r.AssetID,
		DistributionID:     r.DistributionID,
		PayoutRunID:        r.PayoutRunID,
		DistributionType:   string(r.DistributionType),
		PayoutDate:         payoutDate(r),
		GrossAmount:        r.GrossAmount.String(),
		WithholdingAmount:  r.WithholdingAmount.String(),
		FeeAmount:          r.FeeAmount.String(),
		NetAmount:          r.NetAmount.String(),
		TokenBalance:       r.TokenBalance.String(),
		ProRataShare:       r.ProRataShare.String(),
		StablecoinType:     string(r.StablecoinType),
		ExchangeRate:       r.ExchangeRate.String(),
		Status:             string(r.Status),
		TransactionHash:    r.TransactionHash,
		IsDryRun:           r.IsDryRun,
		WithholdingDetails: r.WithholdingDetails,
		FeeBreakdown:       r.FeeBreakdown,
	}
}

func receiptRow(r *entities.PayoutReceipt) []string {
	return []string{
		r.ReceiptNumber,
		r.InvestorID,
		r.WalletAddress,
		r.AssetID,
		string(r.DistributionType),
		payoutDate(r).Format(time.RFC3339),
		r.GrossAmount.String(),
		r.WithholdingAmount.String(),
		r.FeeAmount.String(),
		r.NetAmount.String(),
		r.TokenBalance.String(),
		r.ProRataShare.String(),
		string(r.StablecoinType),
		r.ExchangeRate.String(),
		string(r.Status),
		r.TransactionHash,
	}
}

func encodeJSON(receipts []*entities.PayoutReceipt) ([]byte, error) {
	var v any
	if len(receipts) == 1 {
		v = toDocument(receipts[0])
	} else {
		docs := make([]receiptDocument, 0, len(receipts))
		for _, r := range receipts {
			docs = append(docs, toDocument(r))
		}
		v = docs
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode receipts as JSON: %w", err)
	}
	return data, nil
}

func encodeCSV(receipts []*entities.PayoutReceipt) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(receiptColumns); err != nil {
		return nil, err
	}
	for _, r := range receipts {
		if err := w.Write(receiptRow(r)); err != nil {
			return nil, fmt.Errorf("failed to encode receipt %d as CSV: %w", r.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode receipts as CSV: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeXLSX(receipts []*entities.PayoutReceipt) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", receiptSheet); err != nil {
		return nil, fmt.Errorf("failed to name receipt sheet: %w", err)
	}
	if _, err := f.NewSheet(deductionsSheet); err != nil {
		return nil, fmt.Errorf("failed to create deductions sheet: %w", err)
	}

	if err := writeRow(f, receiptSheet, 1, receiptColumns); err != nil {
		return nil, err
	}
	if err := writeRow(f, deductionsSheet, 1, deductionColumns); err != nil {
		return nil, err
	}

	deductionRow := 2
	for i, r := range receipts {
		if err := writeRow(f, receiptSheet, i+2, receiptRow(r)); err != nil {
			return nil, err
		}
		for _, group := range []struct {
			kind  string
			rules []entities.RuleApplication
		}{
			{"withholding", r.WithholdingDetails},
			{"fee", r.FeeBreakdown},
		} {
			for _, app := range group.rules {
				row := []string{
					r.ReceiptNumber,
					group.kind,
					strconv.FormatInt(app.RuleID, 10),
					app.RuleName,
					string(app.Method),
					app.Amount.String(),
					app.Exempted.String(),
					app.Error,
				}
				if err := writeRow(f, deductionsSheet, deductionRow, row); err != nil {
					return nil, err
				}
				deductionRow++
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []string) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to set %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".receipt-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
