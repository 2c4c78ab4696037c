package repository

import (
	"context"
	"errors"
	"fmt"

	"settlement/database"
	"settlement/domain/entities"

	"github.com/jackc/pgx/v5"
)

const investorWalletColumns = `
	id, investor_id, asset_id, wallet_address, stablecoin_type, wallet_type, status,
	is_kyc_verified, token_balance, COALESCE(jurisdiction, ''), COALESCE(tax_residence, ''),
	metadata, created_at, updated_at`

// InvestorWalletRepository implements the investor wallet registry
type InvestorWalletRepository struct {
	q Queryable
}

// NewInvestorWalletRepository creates a new investor wallet repository
func NewInvestorWalletRepository(db *database.DB) *InvestorWalletRepository {
	return &InvestorWalletRepository{q: db.Pool}
}

// newInvestorWalletRepositoryWithTx creates an investor wallet repository bound to a transaction
func newInvestorWalletRepositoryWithTx(tx Queryable) *InvestorWalletRepository {
	return &InvestorWalletRepository{q: tx}
}

// GetEligibleWallets returns ACTIVE, KYC-verified wallets of the asset with a positive balance.
// Largest holders come first so the calculator's remainder lands deterministically.
func (r *InvestorWalletRepository) GetEligibleWallets(ctx context.Context, assetID string) ([]*entities.InvestorWallet, error) {
	query := `SELECT ` + investorWalletColumns + `
		FROM investor_wallets
		WHERE asset_id = $1
		  AND status = 'ACTIVE'
		  AND is_kyc_verified
		  AND token_balance > 0
		ORDER BY token_balance DESC, id`

	rows, err := r.q.Query(ctx, query, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to get eligible wallets for asset %s: %w", assetID, err)
	}
	return collectWallets(rows)
}

// Upsert inserts or replaces a wallet by ID
func (r *InvestorWalletRepository) Upsert(ctx context.Context, wallet *entities.InvestorWallet) error {
	metadata, err := marshalJSONB(wallet.Metadata, "{}")
	if err != nil {
		return fmt.Errorf("failed to marshal wallet metadata: %w", err)
	}

	query := `
		INSERT INTO investor_wallets (
			id, investor_id, asset_id, wallet_address, stablecoin_type, wallet_type, status,
			is_kyc_verified, token_balance, jurisdiction, tax_residence, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''), $12)
		ON CONFLICT (id) DO UPDATE
		SET investor_id = EXCLUDED.investor_id,
		    asset_id = EXCLUDED.asset_id,
		    wallet_address = EXCLUDED.wallet_address,
		    stablecoin_type = EXCLUDED.stablecoin_type,
		    wallet_type = EXCLUDED.wallet_type,
		    status = EXCLUDED.status,
		    is_kyc_verified = EXCLUDED.is_kyc_verified,
		    token_balance = EXCLUDED.token_balance,
		    jurisdiction = EXCLUDED.jurisdiction,
		    tax_residence = EXCLUDED.tax_residence,
		    metadata = EXCLUDED.metadata,
		    updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err = r.q.QueryRow(ctx, query,
		wallet.ID,
		wallet.InvestorID,
		wallet.AssetID,
		wallet.Address,
		wallet.StablecoinType,
		wallet.WalletType,
		wallet.Status,
		wallet.IsKYCVerified,
		wallet.TokenBalance,
		wallet.Jurisdiction,
		wallet.TaxResidence,
		metadata,
	).Scan(&wallet.CreatedAt, &wallet.UpdatedAt)
	if err != nil {
		return mapWriteError(err, "failed to upsert wallet %s", wallet.ID)
	}

	return nil
}

// GetByID retrieves a wallet by ID
func (r *InvestorWalletRepository) GetByID(ctx context.Context, id string) (*entities.InvestorWallet, error) {
	query := `SELECT ` + investorWalletColumns + ` FROM investor_wallets WHERE id = $1`

	wallet, err := scanInvestorWallet(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet %s: %w", id, err)
	}
	return wallet, nil
}

// GetByInvestor returns every wallet of an investor
func (r *InvestorWalletRepository) GetByInvestor(ctx context.Context, investorID string) ([]*entities.InvestorWallet, error) {
	query := `SELECT ` + investorWalletColumns + `
		FROM investor_wallets
		WHERE investor_id = $1
		ORDER BY asset_id, id`

	rows, err := r.q.Query(ctx, query, investorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallets of investor %s: %w", investorID, err)
	}
	return collectWallets(rows)
}

func collectWallets(rows pgx.Rows) ([]*entities.InvestorWallet, error) {
	defer rows.Close()

	var wallets []*entities.InvestorWallet
	for rows.Next() {
		wallet, err := scanInvestorWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, wallet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallets: %w", err)
	}
	return wallets, nil
}

func scanInvestorWallet(row rowScanner) (*entities.InvestorWallet, error) {
	var wallet entities.InvestorWallet
	var metadata []byte

	err := row.Scan(
		&wallet.ID,
		&wallet.InvestorID,
		&wallet.AssetID,
		&wallet.Address,
		&wallet.StablecoinType,
		&wallet.WalletType,
		&wallet.Status,
		&wallet.IsKYCVerified,
		&wallet.TokenBalance,
		&wallet.Jurisdiction,
		&wallet.TaxResidence,
		&metadata,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSONB(metadata, &wallet.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet metadata: %w", err)
	}
	return &wallet, nil
}
