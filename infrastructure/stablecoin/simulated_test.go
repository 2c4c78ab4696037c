package stablecoin

import (
	"context"
	"testing"
	"time"

	"settlement/domain/entities"
	"settlement/domain/interfaces"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	treasury = "0x1234567890123456789012345678901234567890"
	investor = "0x2345678901234567890123456789012345678901"
)

func instantProfile() NetworkProfile {
	p := USDCProfile()
	p.LatencyMin = 0
	p.LatencySpread = 0
	return p
}

func TestSimulatedAdapter_Transfer(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		req         interfaces.TransferRequest
		setup       func(a *SimulatedAdapter)
		wantSuccess bool
		wantError   string
	}{
		{
			name:        "moves balance",
			req:         interfaces.TransferRequest{From: treasury, To: investor, Amount: decimal.NewFromInt(250)},
			wantSuccess: true,
		},
		{
			name:      "invalid recipient",
			req:       interfaces.TransferRequest{From: treasury, To: "0x123", Amount: decimal.NewFromInt(1)},
			wantError: "Invalid address format",
		},
		{
			name:      "insufficient balance",
			req:       interfaces.TransferRequest{From: treasury, To: investor, Amount: decimal.NewFromInt(5000)},
			wantError: "Insufficient balance",
		},
		{
			name:      "zero amount",
			req:       interfaces.TransferRequest{From: treasury, To: investor, Amount: decimal.Zero},
			wantError: "Transfer amount must be positive",
		},
		{
			name: "injected failure",
			req:  interfaces.TransferRequest{From: treasury, To: investor, Amount: decimal.NewFromInt(1)},
			setup: func(a *SimulatedAdapter) {
				a.FailTransfersTo(investor, "wallet frozen")
			},
			wantError: "wallet frozen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := NewSimulatedAdapter(instantProfile(), clockwork.NewFakeClock())
			adapter.SetBalance(treasury, decimal.NewFromInt(1000))
			if tt.setup != nil {
				tt.setup(adapter)
			}

			result, err := adapter.Transfer(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, result.Success)
			assert.Equal(t, tt.wantError, result.Error)

			from, err := adapter.GetBalance(ctx, treasury)
			require.NoError(t, err)
			to, err := adapter.GetBalance(ctx, investor)
			require.NoError(t, err)

			if !tt.wantSuccess {
				assert.True(t, decimal.NewFromInt(1000).Equal(from.Balance))
				assert.True(t, to.Balance.IsZero())
				return
			}

			assert.Len(t, result.TransactionHash, 66)
			assert.GreaterOrEqual(t, result.BlockNumber, int64(1_000_000))
			assert.True(t, decimal.NewFromInt(750).Equal(from.Balance))
			assert.True(t, decimal.NewFromInt(250).Equal(to.Balance))
		})
	}
}

func TestSimulatedAdapter_RejectsForeignCurrency(t *testing.T) {
	adapter := NewSimulatedAdapter(instantProfile(), nil)
	_, err := adapter.Transfer(context.Background(), interfaces.TransferRequest{
		From:     treasury,
		To:       investor,
		Amount:   decimal.NewFromInt(1),
		Currency: entities.StablecoinHKD,
	})
	assert.Error(t, err)
}

func TestSimulatedAdapter_LatencyHonoursContext(t *testing.T) {
	clock := clockwork.NewFakeClock()
	adapter := NewSimulatedAdapter(HKDProfile(), clock)
	adapter.SetBalance(treasury, decimal.NewFromInt(100))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := adapter.Transfer(ctx, interfaces.TransferRequest{From: treasury, To: investor, Amount: decimal.NewFromInt(1)})
		done <- err
	}()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("transfer did not return after cancellation")
	}
}

func TestSimulatedAdapter_TransactionStatus(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	profile := instantProfile()
	adapter := NewSimulatedAdapter(profile, clock)
	adapter.SetBalance(treasury, decimal.NewFromInt(10))

	result, err := adapter.Transfer(ctx, interfaces.TransferRequest{From: treasury, To: investor, Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)
	require.True(t, result.Success)

	status, err := adapter.GetTransactionStatus(ctx, result.TransactionHash)
	require.NoError(t, err)
	assert.Equal(t, interfaces.TransactionStateConfirmed, status.State)
	assert.Equal(t, 12, status.Confirmations)
	assert.Equal(t, result.BlockNumber, status.BlockNumber)

	unknown, err := adapter.GetTransactionStatus(ctx, "0xdeadbeef")
	require.NoError(t, err)
	assert.Equal(t, interfaces.TransactionStateFailed, unknown.State)
}

func TestSimulatedAdapter_InfoAndHealth(t *testing.T) {
	adapter := NewSimulatedAdapter(HKDProfile(), nil)

	info := adapter.Info()
	assert.Equal(t, entities.StablecoinHKD, info.Currency)
	assert.Equal(t, "HKD Blockchain Network", info.Network)
	assert.Equal(t, int32(2), info.Decimals)

	assert.NoError(t, adapter.HealthCheck(context.Background()))
	adapter.SetHealthy(false)
	assert.ErrorIs(t, adapter.HealthCheck(context.Background()), ErrUnhealthy)

	assert.True(t, adapter.IsValidAddress(treasury))
	assert.False(t, adapter.IsValidAddress("1234567890123456789012345678901234567890"))
}
