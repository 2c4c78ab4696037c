package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletStatus represents the registry state of an investor wallet
type WalletStatus string

const (
	WalletStatusActive              WalletStatus = "ACTIVE"
	WalletStatusSuspended           WalletStatus = "SUSPENDED"
	WalletStatusClosed              WalletStatus = "CLOSED"
	WalletStatusPendingVerification WalletStatus = "PENDING_VERIFICATION"
)

// InvestorWallet is a registered payout destination and its token holding for an asset
type InvestorWallet struct {
	ID             string                 `db:"id"`
	InvestorID     string                 `db:"investor_id"`
	AssetID        string                 `db:"asset_id"`
	Address        string                 `db:"wallet_address"`
	StablecoinType StablecoinType         `db:"stablecoin_type"`
	WalletType     string                 `db:"wallet_type"`
	Status         WalletStatus           `db:"status"`
	IsKYCVerified  bool                   `db:"is_kyc_verified"`
	TokenBalance   decimal.Decimal        `db:"token_balance"`
	Jurisdiction   string                 `db:"jurisdiction"`
	TaxResidence   string                 `db:"tax_residence"`
	Metadata       map[string]interface{} `db:"-"` // Stored as JSONB
	CreatedAt      time.Time              `db:"created_at"`
	UpdatedAt      time.Time              `db:"updated_at"`
}

// IsEligible returns true for active, KYC-verified wallets
func (w *InvestorWallet) IsEligible() bool {
	return w.Status == WalletStatusActive && w.IsKYCVerified
}

// InvestorType returns the investor classification carried in metadata
func (w *InvestorWallet) InvestorType() string {
	return metadataString(w.Metadata, "investorType")
}

// Units returns the unit count used by per-unit fees, defaulting to one
func (w *InvestorWallet) Units() decimal.Decimal {
	raw := metadataString(w.Metadata, "units")
	if raw == "" {
		return decimal.NewFromInt(1)
	}
	units, err := decimal.NewFromString(raw)
	if err != nil || units.IsNegative() {
		return decimal.NewFromInt(1)
	}
	return units
}
