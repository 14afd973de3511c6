package store

import (
	"context"

	"github.com/shopspring/decimal"

	"settlement/internal/models"
)

type WalletStore struct {
	db DB
}

func NewWalletStore(db DB) *WalletStore {
	return &WalletStore{db: db}
}

// Ensure creates the zero-balance row on first touch and returns the current
// balances either way.
func (s *WalletStore) Ensure(ctx context.Context, userID string) (models.WalletBalance, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallet_balances (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return models.WalletBalance{}, err
	}
	return s.Get(ctx, userID)
}

func (s *WalletStore) Get(ctx context.Context, userID string) (models.WalletBalance, error) {
	var row models.WalletBalance
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, balance_eur, balance_credits, balance_btc, balance_ltc,
		       total_deposited_btc, total_deposited_ltc, created_at, updated_at
		FROM wallet_balances
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return models.WalletBalance{}, err
	}
	return row, nil
}

// DebitCredits is the pessimistic debit: the guard in the WHERE clause keeps
// the balance non-negative under concurrent requests. Zero rows affected
// means insufficient funds.
func (s *WalletStore) DebitCredits(ctx context.Context, tx Execer, userID string, amount int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE wallet_balances
		SET balance_credits = balance_credits - $1, updated_at = NOW()
		WHERE user_id = $2 AND balance_credits >= $1
	`, amount, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *WalletStore) CreditCredits(ctx context.Context, tx Execer, userID string, amount int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_balances (user_id, balance_credits)
		VALUES ($2, $1)
		ON CONFLICT (user_id) DO UPDATE
		SET balance_credits = wallet_balances.balance_credits + EXCLUDED.balance_credits,
		    updated_at = NOW()
	`, amount, userID)
	return err
}

// CreditCrypto adds to the per-currency balance; when countDeposit is set the
// cumulative-deposited counter advances too (deposits only, never refunds).
// The upsert creates the wallet row when the recipient has never touched the
// wallet API, so a credit can never match zero rows and vanish.
func (s *WalletStore) CreditCrypto(ctx context.Context, tx Execer, userID, currency string, amount decimal.Decimal, countDeposit bool) error {
	column, counter, err := cryptoColumns(currency)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO wallet_balances (user_id, ` + column + `)
		VALUES ($2, $1)
		ON CONFLICT (user_id) DO UPDATE
		SET ` + column + ` = wallet_balances.` + column + ` + EXCLUDED.` + column + `,
		    updated_at = NOW()
	`
	if countDeposit {
		query = `
		INSERT INTO wallet_balances (user_id, ` + column + `, ` + counter + `)
		VALUES ($2, $1, $1)
		ON CONFLICT (user_id) DO UPDATE
		SET ` + column + ` = wallet_balances.` + column + ` + EXCLUDED.` + column + `,
		    ` + counter + ` = wallet_balances.` + counter + ` + EXCLUDED.` + counter + `,
		    updated_at = NOW()
	`
	}
	_, err = tx.ExecContext(ctx, query, amount, userID)
	return err
}

func cryptoColumns(currency string) (balance, deposited string, err error) {
	switch currency {
	case models.CurrencyBTC:
		return "balance_btc", "total_deposited_btc", nil
	case models.CurrencyLTC:
		return "balance_ltc", "total_deposited_ltc", nil
	}
	return "", "", errUnknownCurrency(currency)
}

type errUnknownCurrency string

func (e errUnknownCurrency) Error() string {
	return "unknown currency " + string(e)
}
