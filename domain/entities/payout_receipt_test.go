package entities

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPayoutReceipt_CheckAmounts(t *testing.T) {
	t.Parallel()

	d := decimal.RequireFromString

	tests := []struct {
		name        string
		gross       string
		withholding string
		fee         string
		net         string
		wantErr     bool
	}{
		{name: "consistent amounts", gross: "1000", withholding: "150", fee: "50", net: "800"},
		{name: "fully withheld", gross: "1000", withholding: "1000", fee: "0", net: "0"},
		{name: "net mismatch", gross: "1000", withholding: "150", fee: "50", net: "801", wantErr: true},
		{name: "deductions exceed gross", gross: "100", withholding: "80", fee: "30", net: "-10", wantErr: true},
		{name: "negative fee", gross: "100", withholding: "0", fee: "-1", net: "101", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := &PayoutReceipt{
				GrossAmount:       d(tt.gross),
				WithholdingAmount: d(tt.withholding),
				FeeAmount:         d(tt.fee),
				NetAmount:         d(tt.net),
			}
			err := r.CheckAmounts()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPayoutReceipt_CanTransitionTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from ReceiptStatus
		to   ReceiptStatus
		want bool
	}{
		{ReceiptStatusPending, ReceiptStatusProcessing, true},
		{ReceiptStatusPending, ReceiptStatusCompleted, true},
		{ReceiptStatusProcessing, ReceiptStatusCompleted, true},
		{ReceiptStatusProcessing, ReceiptStatusFailed, true},
		{ReceiptStatusFailed, ReceiptStatusProcessing, true},
		{ReceiptStatusCompleted, ReceiptStatusFailed, false},
		{ReceiptStatusCompleted, ReceiptStatusProcessing, false},
		{ReceiptStatusProcessing, ReceiptStatusPending, false},
	}

	for _, tt := range tests {
		r := &PayoutReceipt{Status: tt.from}
		assert.Equal(t, tt.want, r.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}
