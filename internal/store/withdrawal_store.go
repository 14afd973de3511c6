package store

import (
	"context"
	"database/sql"

	"settlement/internal/models"
)

// WithdrawalStore persists credit withdrawal requests and the credit
// ledger entries they produce.
type WithdrawalStore struct {
	db DB
}

func NewWithdrawalStore(db DB) *WithdrawalStore {
	return &WithdrawalStore{db: db}
}

const withdrawalColumns = `id, user_id, amount_credits, amount_eur, fee_eur, currency,
	destination_address, amount_crypto, status, tx_hash, failure_reason, created_at, updated_at`

func (s *WithdrawalStore) Create(ctx context.Context, tx Execer, w models.CreditWithdrawal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_withdrawals (id, user_id, amount_credits, amount_eur, fee_eur,
			currency, destination_address, amount_crypto, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, w.ID, w.UserID, w.AmountCredits, w.AmountEUR, w.FeeEUR,
		w.Currency, w.DestinationAddress, w.AmountCrypto, w.Status)
	return err
}

func (s *WithdrawalStore) Get(ctx context.Context, id string) (*models.CreditWithdrawal, error) {
	var w models.CreditWithdrawal
	err := s.db.GetContext(ctx, &w, `
		SELECT `+withdrawalColumns+`
		FROM credit_withdrawals
		WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *WithdrawalStore) UpdateStatus(ctx context.Context, tx Execer, id, from, to string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE credit_withdrawals
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *WithdrawalStore) MarkCompleted(ctx context.Context, tx Execer, id, txHash string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE credit_withdrawals
		SET status = $1, tx_hash = $2, updated_at = now()
		WHERE id = $3 AND status = $4
	`, models.WithdrawalCompleted, txHash, id, models.WithdrawalProcessing)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *WithdrawalStore) MarkFailed(ctx context.Context, tx Execer, id, reason string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE credit_withdrawals
		SET status = $1, failure_reason = $2, updated_at = now()
		WHERE id = $3 AND status IN ($4, $5)
	`, models.WithdrawalFailed, reason, id, models.WithdrawalPending, models.WithdrawalProcessing)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *WithdrawalStore) ListByUser(ctx context.Context, userID string, limit int) ([]models.CreditWithdrawal, error) {
	var rows []models.CreditWithdrawal
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+withdrawalColumns+`
		FROM credit_withdrawals
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *WithdrawalStore) InsertCreditTransaction(ctx context.Context, tx Execer, t models.CreditTransaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, user_id, type, amount_credits, description, reference_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.UserID, t.Type, t.AmountCredits, t.Description, t.ReferenceID)
	return err
}

func (s *WithdrawalStore) ListCreditTransactions(ctx context.Context, userID string, limit int) ([]models.CreditTransaction, error) {
	var rows []models.CreditTransaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, type, amount_credits, description, reference_id, created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
