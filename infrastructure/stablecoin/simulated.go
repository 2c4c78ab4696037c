package stablecoin

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"

	"settlement/domain/entities"
	"settlement/domain/interfaces"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ErrUnhealthy is returned by HealthCheck when the network is marked unreachable
var ErrUnhealthy = errors.New("stablecoin network unreachable")

// NetworkProfile describes the chain a simulated adapter pretends to settle on
type NetworkProfile struct {
	Name            string
	Network         string
	Currency        entities.StablecoinType
	Decimals        int32
	ContractAddress string
	Confirmations   int
	BlockBase       int64
	GasBase         int64
	GasSpread       int64
	GasPriceBase    decimal.Decimal
	LatencyMin      time.Duration
	LatencySpread   time.Duration
}

// USDCProfile simulates USDC on Ethereum mainnet
func USDCProfile() NetworkProfile {
	return NetworkProfile{
		Name:            "USDC Simulated Adapter",
		Network:         "Ethereum Mainnet",
		Currency:        entities.StablecoinUSDC,
		Decimals:        6,
		ContractAddress: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
		Confirmations:   12,
		BlockBase:       1_000_000,
		GasBase:         21_000,
		GasSpread:       50_000,
		GasPriceBase:    decimal.NewFromInt(20),
		LatencyMin:      100 * time.Millisecond,
		LatencySpread:   200 * time.Millisecond,
	}
}

// HKDProfile simulates an HKD stablecoin on its own network
func HKDProfile() NetworkProfile {
	return NetworkProfile{
		Name:            "HKD Stablecoin Simulated Adapter",
		Network:         "HKD Blockchain Network",
		Currency:        entities.StablecoinHKD,
		Decimals:        2,
		ContractAddress: "0x00000000000000000000000000000000000a4b1d",
		Confirmations:   8,
		BlockBase:       2_000_000,
		GasBase:         15_000,
		GasSpread:       30_000,
		GasPriceBase:    decimal.NewFromInt(10),
		LatencyMin:      150 * time.Millisecond,
		LatencySpread:   300 * time.Millisecond,
	}
}

type simulatedTransaction struct {
	from        string
	to          string
	amount      decimal.Decimal
	blockNumber int64
	submittedAt time.Time
}

// SimulatedAdapter is an in-memory stablecoin ledger. Transfers move balances between
// addresses and become CONFIRMED once the network latency has elapsed.
type SimulatedAdapter struct {
	profile   NetworkProfile
	clock     clockwork.Clock
	mu        sync.Mutex
	balances  map[string]decimal.Decimal
	txs       map[string]simulatedTransaction
	failing   map[string]string // recipient address -> failure reason
	unhealthy bool
}

// NewSimulatedAdapter creates an adapter with empty balances
func NewSimulatedAdapter(profile NetworkProfile, clock clockwork.Clock) *SimulatedAdapter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SimulatedAdapter{
		profile:  profile,
		clock:    clock,
		balances: make(map[string]decimal.Decimal),
		txs:      make(map[string]simulatedTransaction),
		failing:  make(map[string]string),
	}
}

// SetBalance sets the balance of an address
func (a *SimulatedAdapter) SetBalance(address string, balance decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances[normalize(address)] = balance
}

// FailTransfersTo makes every transfer to address fail with reason
func (a *SimulatedAdapter) FailTransfersTo(address, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failing[normalize(address)] = reason
}

// SetHealthy toggles the network reachability reported by HealthCheck
func (a *SimulatedAdapter) SetHealthy(healthy bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unhealthy = !healthy
}

// Transfer moves amount from req.From to req.To
func (a *SimulatedAdapter) Transfer(ctx context.Context, req interfaces.TransferRequest) (*interfaces.TransferResult, error) {
	logger := log.WithFields(log.Fields{
		"adapter": a.profile.Name,
		"to":      req.To,
		"amount":  req.Amount,
	})

	if req.Currency != "" && req.Currency != a.profile.Currency {
		return nil, fmt.Errorf("adapter %s does not settle %s", a.profile.Name, req.Currency)
	}
	if !a.IsValidAddress(req.From) || !a.IsValidAddress(req.To) {
		return &interfaces.TransferResult{Success: false, Error: "Invalid address format"}, nil
	}
	if !req.Amount.IsPositive() {
		return &interfaces.TransferResult{Success: false, Error: "Transfer amount must be positive"}, nil
	}

	if err := a.simulateLatency(ctx); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	from, to := normalize(req.From), normalize(req.To)
	if reason, ok := a.failing[to]; ok {
		logger.WithField("reason", reason).Warn("Simulated transfer rejected")
		return &interfaces.TransferResult{Success: false, Error: reason}, nil
	}
	balance := a.balances[from]
	if balance.LessThan(req.Amount) {
		return &interfaces.TransferResult{Success: false, Error: "Insufficient balance"}, nil
	}

	hash := transactionHash()
	blockNumber := a.profile.BlockBase + rand.Int64N(1_000_000)
	a.balances[from] = balance.Sub(req.Amount)
	a.balances[to] = a.balances[to].Add(req.Amount)
	a.txs[hash] = simulatedTransaction{
		from:        from,
		to:          to,
		amount:      req.Amount,
		blockNumber: blockNumber,
		submittedAt: a.clock.Now(),
	}

	logger.WithField("transaction_hash", hash).Debug("Simulated transfer settled")
	return &interfaces.TransferResult{
		Success:         true,
		TransactionHash: hash,
		BlockNumber:     blockNumber,
		GasUsed:         a.profile.GasBase + rand.Int64N(max(a.profile.GasSpread, 1)),
		GasPrice:        a.profile.GasPriceBase.Add(decimal.NewFromInt(rand.Int64N(30))),
	}, nil
}

// GetBalance returns the balance of an address
func (a *SimulatedAdapter) GetBalance(ctx context.Context, address string) (*interfaces.TokenBalance, error) {
	if !a.IsValidAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return &interfaces.TokenBalance{
		Address:     address,
		Balance:     a.balances[normalize(address)],
		Currency:    a.profile.Currency,
		LastUpdated: a.clock.Now(),
	}, nil
}

// IsValidAddress reports whether address is a 0x-prefixed 20 byte hex address
func (a *SimulatedAdapter) IsValidAddress(address string) bool {
	return addressPattern.MatchString(address)
}

// GetTransactionStatus reports FAILED for unknown hashes
func (a *SimulatedAdapter) GetTransactionStatus(ctx context.Context, hash string) (*interfaces.TransactionStatus, error) {
	a.mu.Lock()
	tx, ok := a.txs[hash]
	a.mu.Unlock()

	if !ok {
		return &interfaces.TransactionStatus{Hash: hash, State: interfaces.TransactionStateFailed}, nil
	}

	status := &interfaces.TransactionStatus{
		Hash:          hash,
		State:         interfaces.TransactionStateConfirmed,
		Confirmations: a.profile.Confirmations,
		BlockNumber:   tx.blockNumber,
	}
	if a.clock.Since(tx.submittedAt) < a.profile.LatencyMin {
		status.State = interfaces.TransactionStatePending
		status.Confirmations = 0
	}
	return status, nil
}

// Info describes the simulated network
func (a *SimulatedAdapter) Info() interfaces.AdapterInfo {
	return interfaces.AdapterInfo{
		Name:            a.profile.Name,
		Network:         a.profile.Network,
		Currency:        a.profile.Currency,
		Decimals:        a.profile.Decimals,
		ContractAddress: a.profile.ContractAddress,
	}
}

// HealthCheck fails when the adapter was marked unhealthy
func (a *SimulatedAdapter) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.unhealthy {
		return fmt.Errorf("%s: %w", a.profile.Network, ErrUnhealthy)
	}
	return nil
}

func (a *SimulatedAdapter) simulateLatency(ctx context.Context) error {
	delay := a.profile.LatencyMin
	if a.profile.LatencySpread > 0 {
		delay += rand.N(a.profile.LatencySpread)
	}
	if delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.clock.After(delay):
		return nil
	}
}

func normalize(address string) string {
	return strings.ToLower(address)
}

// transactionHash returns a 32 byte hex hash
func transactionHash() string {
	a, b := uuid.New(), uuid.New()
	return "0x" + strings.ReplaceAll(a.String()+b.String(), "-", "")
}
