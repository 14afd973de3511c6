package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"settlement/internal/models"
)

// ErrFeeAddressMissing means a fee credit or sweep targeted a currency with
// no provisioned active fee address.
var ErrFeeAddressMissing = errors.New("no active fee address for currency")

// FeeStore manages the platform's fee collection addresses and the
// transactions that sweep accumulated fees out to cold wallets.
type FeeStore struct {
	db DB
}

func NewFeeStore(db DB) *FeeStore {
	return &FeeStore{db: db}
}

const feeAddressColumns = `currency, address, encrypted_private_key, balance, active`

func (s *FeeStore) GetByCurrency(ctx context.Context, currency string) (*models.AdminFeeAddress, error) {
	var addr models.AdminFeeAddress
	err := s.db.GetContext(ctx, &addr, `
		SELECT `+feeAddressColumns+`
		FROM admin_fee_addresses
		WHERE currency = $1 AND active = true
	`, currency)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func (s *FeeStore) Create(ctx context.Context, currency, address, encryptedKey string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_fee_addresses (currency, address, encrypted_private_key, balance, active)
		VALUES ($1, $2, $3, 0, true)
	`, currency, address, encryptedKey)
	return err
}

// CreditBalance accumulates a collected fee. Zero rows affected means no
// active fee address exists for the currency; that is an error so the
// enclosing escrow release rolls back instead of dropping the fee.
func (s *FeeStore) CreditBalance(ctx context.Context, tx Execer, currency string, amount decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE admin_fee_addresses
		SET balance = balance + $1
		WHERE currency = $2 AND active = true
	`, amount, currency)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrFeeAddressMissing
	}
	return nil
}

// DebitBalance fails without touching the row when the accumulated fee
// balance does not cover the sweep amount.
func (s *FeeStore) DebitBalance(ctx context.Context, tx Execer, currency string, amount decimal.Decimal) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE admin_fee_addresses
		SET balance = balance - $1
		WHERE currency = $2 AND active = true AND balance >= $1
	`, amount, currency)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *FeeStore) InsertFeeTransaction(ctx context.Context, tx Execer, t models.AdminFeeTransaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admin_fee_transactions (id, currency, type, amount, tx_hash, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.Currency, t.Type, t.Amount, t.TxHash, t.Status)
	return err
}

func (s *FeeStore) MarkFeeTransaction(ctx context.Context, tx Execer, id, txHash, status string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE admin_fee_transactions
		SET tx_hash = $1, status = $2
		WHERE id = $3
	`, txHash, status, id)
	return err
}

func (s *FeeStore) ListFeeTransactions(ctx context.Context, currency string, limit int) ([]models.AdminFeeTransaction, error) {
	var rows []models.AdminFeeTransaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, currency, type, amount, tx_hash, status, created_at
		FROM admin_fee_transactions
		WHERE currency = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, currency, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
