package renderer

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"settlement/domain/entities"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testReceipt() *entities.PayoutReceipt {
	processed := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	return &entities.PayoutReceipt{
		ID:                7,
		PayoutRunID:       3,
		DistributionID:    2,
		AssetID:           "asset-solar-1",
		DistributionType:  entities.DistributionTypeDividend,
		InvestorID:        "inv-1",
		WalletAddress:     "0x2345678901234567890123456789012345678901",
		GrossAmount:       decimal.RequireFromString("1000.00"),
		WithholdingAmount: decimal.RequireFromString("150.00"),
		FeeAmount:         decimal.RequireFromString("10.00"),
		NetAmount:         decimal.RequireFromString("840.00"),
		TokenBalance:      decimal.NewFromInt(500),
		ProRataShare:      decimal.RequireFromString("0.1"),
		StablecoinType:    entities.StablecoinUSDC,
		ExchangeRate:      decimal.NewFromInt(1),
		Status:            entities.ReceiptStatusCompleted,
		TransactionHash:   "0xabc",
		ReceiptNumber:     "RCP-TEST-1",
		ProcessedAt:       &processed,
		WithholdingDetails: []entities.RuleApplication{
			{RuleID: 1, RuleName: "US dividend", Method: entities.CalculationPercentage, Amount: decimal.RequireFromString("150.00")},
		},
		FeeBreakdown: []entities.RuleApplication{
			{RuleID: 4, RuleName: "Platform fee", Method: entities.CalculationFixedAmount, Amount: decimal.RequireFromString("10.00")},
		},
	}
}

func TestFileRenderer_Encode(t *testing.T) {
	r, err := NewFileRenderer(t.TempDir(), "https://docs.example.com/receipts/")
	require.NoError(t, err)
	receipt := testReceipt()

	t.Run("json", func(t *testing.T) {
		data, err := r.Encode([]*entities.PayoutReceipt{receipt}, entities.DocumentFormatJSON)
		require.NoError(t, err)

		var doc map[string]any
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.Equal(t, "RCP-TEST-1", doc["receipt_number"])
		assert.Equal(t, "840", doc["net_amount"])
		assert.Equal(t, "2026-03-15T12:00:00Z", doc["payout_date"])
		assert.Len(t, doc["withholding_details"], 1)
	})

	t.Run("csv", func(t *testing.T) {
		data, err := r.Encode([]*entities.PayoutReceipt{receipt, receipt}, entities.DocumentFormatCSV)
		require.NoError(t, err)

		records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, receiptColumns, records[0])
		assert.Equal(t, "RCP-TEST-1", records[1][0])
		assert.Equal(t, "840", records[1][9])
	})

	t.Run("xlsx", func(t *testing.T) {
		data, err := r.Encode([]*entities.PayoutReceipt{receipt}, entities.DocumentFormatXLSX)
		require.NoError(t, err)

		f, err := excelize.OpenReader(bytes.NewReader(data))
		require.NoError(t, err)
		defer f.Close()

		rows, err := f.GetRows(receiptSheet)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "Net Amount", rows[0][9])
		assert.Equal(t, "840", rows[1][9])

		deductions, err := f.GetRows(deductionsSheet)
		require.NoError(t, err)
		require.Len(t, deductions, 3)
		assert.Equal(t, "withholding", deductions[1][1])
		assert.Equal(t, "fee", deductions[2][1])
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := r.Encode([]*entities.PayoutReceipt{receipt}, "pdf")
		assert.ErrorIs(t, err, entities.ErrValidation)
	})
}

func TestFileRenderer_Render(t *testing.T) {
	dir := t.TempDir()
	r, err := NewFileRenderer(dir, "https://docs.example.com/receipts/")
	require.NoError(t, err)

	url, err := r.Render(context.Background(), testReceipt(), entities.DocumentFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "https://docs.example.com/receipts/RCP-TEST-1.csv", url)

	data, err := os.ReadFile(filepath.Join(dir, "RCP-TEST-1.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "RCP-TEST-1")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")

	t.Run("falls back to the receipt id", func(t *testing.T) {
		receipt := testReceipt()
		receipt.ReceiptNumber = ""
		url, err := r.Render(context.Background(), receipt, entities.DocumentFormatJSON)
		require.NoError(t, err)
		assert.Equal(t, "https://docs.example.com/receipts/receipt-7.json", url)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := r.Render(ctx, testReceipt(), entities.DocumentFormatJSON)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
