package store

import (
	"context"

	"settlement/internal/models"
)

// TransactionStore persists user-facing crypto transaction records:
// deposits, escrow releases, refunds and sales.
type TransactionStore struct {
	db DB
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

const transactionColumns = `id, user_id, order_id, type, status, amount_crypto, currency, tx_hash, created_at`

func (s *TransactionStore) Insert(ctx context.Context, tx Execer, t models.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, order_id, type, status, amount_crypto, currency, tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.UserID, t.OrderID, t.Type, t.Status, t.AmountCrypto, t.Currency, t.TxHash)
	return err
}

// CancelPendingSale flips the seller's pending sale record for an order to
// cancelled. Used when an escrow is refunded so the sale never completes.
func (s *TransactionStore) CancelPendingSale(ctx context.Context, tx Execer, orderID, sellerID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1
		WHERE order_id = $2 AND user_id = $3 AND type = 'sale' AND status = $4
	`, models.TransactionCancelled, orderID, sellerID, models.TransactionPending)
	return err
}

// CompletePendingSale marks the seller's pending sale record for an order
// as completed once the escrow releases.
func (s *TransactionStore) CompletePendingSale(ctx context.Context, tx Execer, orderID, sellerID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1
		WHERE order_id = $2 AND user_id = $3 AND type = 'sale' AND status = $4
	`, models.TransactionCompleted, orderID, sellerID, models.TransactionPending)
	return err
}

// ExistsByTxHash backs the deposit idempotence check; the (tx_hash,
// user_id) unique index is the authoritative guard, this read just makes the
// duplicate path cheap and explicit.
func (s *TransactionStore) ExistsByTxHash(ctx context.Context, tx Getter, txHash, userID string) (bool, error) {
	var count int
	err := tx.GetContext(ctx, &count, `
		SELECT COUNT(1)
		FROM transactions
		WHERE tx_hash = $1 AND user_id = $2
	`, txHash, userID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *TransactionStore) ListByUser(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
