package store

import (
	"context"
	"database/sql"

	"settlement/internal/models"
)

// DepositStore persists on-chain deposit requests keyed by transaction hash.
type DepositStore struct {
	db DB
}

func NewDepositStore(db DB) *DepositStore {
	return &DepositStore{db: db}
}

const depositColumns = `id, user_id, currency, amount, tx_hash, status, created_at, completed_at`

func (s *DepositStore) Create(ctx context.Context, tx Execer, d models.DepositRequest) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO deposit_requests (id, user_id, currency, amount, tx_hash, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.ID, d.UserID, d.Currency, d.Amount, d.TxHash, d.Status)
	return err
}

func (s *DepositStore) Get(ctx context.Context, id string) (*models.DepositRequest, error) {
	var d models.DepositRequest
	err := s.db.GetContext(ctx, &d, `
		SELECT `+depositColumns+`
		FROM deposit_requests
		WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *DepositStore) GetForUpdate(ctx context.Context, tx Getter, id string) (*models.DepositRequest, error) {
	var d models.DepositRequest
	err := tx.GetContext(ctx, &d, `
		SELECT `+depositColumns+`
		FROM deposit_requests
		WHERE id = $1
		FOR UPDATE
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// MarkConfirmed flips a pending request to confirmed when the payment
// provider reports the on-chain transaction as final.
func (s *DepositStore) MarkConfirmed(ctx context.Context, tx Execer, id string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE deposit_requests
		SET status = $1
		WHERE id = $2 AND status = $3
	`, models.DepositConfirmed, id, models.DepositPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *DepositStore) GetByTxHash(ctx context.Context, tx Getter, txHash, userID string) (*models.DepositRequest, error) {
	var d models.DepositRequest
	err := tx.GetContext(ctx, &d, `
		SELECT `+depositColumns+`
		FROM deposit_requests
		WHERE tx_hash = $1 AND user_id = $2
	`, txHash, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *DepositStore) MarkCompleted(ctx context.Context, tx Execer, id string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE deposit_requests
		SET status = $1, completed_at = now()
		WHERE id = $2 AND status != $1
	`, models.DepositCompleted, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *DepositStore) ListByUser(ctx context.Context, userID string, limit int) ([]models.DepositRequest, error) {
	var rows []models.DepositRequest
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+depositColumns+`
		FROM deposit_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
