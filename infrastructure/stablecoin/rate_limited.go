package stablecoin

import (
	"context"
	"fmt"

	"settlement/domain/interfaces"

	"golang.org/x/time/rate"
)

// RateLimitedAdapter bounds the rate of network calls made through an adapter
type RateLimitedAdapter struct {
	interfaces.StablecoinAdapter
	limiter *rate.Limiter
}

// NewRateLimitedAdapter wraps adapter with limiter. Adapters sharing one limiter share its budget.
func NewRateLimitedAdapter(adapter interfaces.StablecoinAdapter, limiter *rate.Limiter) *RateLimitedAdapter {
	return &RateLimitedAdapter{StablecoinAdapter: adapter, limiter: limiter}
}

// NewLimiter creates a limiter; a non-positive rate means unlimited
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Transfer waits for a token before submitting the transfer
func (a *RateLimitedAdapter) Transfer(ctx context.Context, req interfaces.TransferRequest) (*interfaces.TransferResult, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return a.StablecoinAdapter.Transfer(ctx, req)
}

// GetBalance waits for a token before querying the balance
func (a *RateLimitedAdapter) GetBalance(ctx context.Context, address string) (*interfaces.TokenBalance, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return a.StablecoinAdapter.GetBalance(ctx, address)
}

// GetTransactionStatus waits for a token before looking up the transaction
func (a *RateLimitedAdapter) GetTransactionStatus(ctx context.Context, hash string) (*interfaces.TransactionStatus, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return a.StablecoinAdapter.GetTransactionStatus(ctx, hash)
}
