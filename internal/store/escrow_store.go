package store

import (
	"context"
	"time"

	"settlement/internal/models"
)

type EscrowStore struct {
	db DB
}

func NewEscrowStore(db DB) *EscrowStore {
	return &EscrowStore{db: db}
}

type EscrowHoldingInput struct {
	ID                 string
	OrderID            string
	BuyerID            string
	SellerID           string
	Currency           string
	AmountCrypto       string
	AmountEUR          int64
	SellerAmountCrypto string
	SellerAmountEUR    int64
	FeeAmountCrypto    string
	FeeAmountEUR       int64
}

func (s *EscrowStore) Create(ctx context.Context, tx Execer, input EscrowHoldingInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO escrow_holdings (id, order_id, buyer_id, seller_id, currency,
			amount_crypto, amount_eur, seller_amount_crypto, seller_amount_eur,
			fee_amount_crypto, fee_amount_eur, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'held')
	`, input.ID, input.OrderID, input.BuyerID, input.SellerID, input.Currency,
		input.AmountCrypto, input.AmountEUR, input.SellerAmountCrypto, input.SellerAmountEUR,
		input.FeeAmountCrypto, input.FeeAmountEUR)
	return err
}

const holdingColumns = `
	id, order_id, buyer_id, seller_id, currency,
	amount_crypto, amount_eur, seller_amount_crypto, seller_amount_eur,
	fee_amount_crypto, fee_amount_eur, status,
	created_at, released_at, refunded_at, buyer_confirmed_at`

// GetHeldByOrderForUpdate locks every held holding for the order so the
// terminal transition races with nothing.
func (s *EscrowStore) GetHeldByOrderForUpdate(ctx context.Context, tx Selecter, orderID string) ([]models.EscrowHolding, error) {
	var rows []models.EscrowHolding
	err := tx.SelectContext(ctx, &rows, `
		SELECT `+holdingColumns+`
		FROM escrow_holdings
		WHERE order_id = $1 AND status = 'held'
		ORDER BY id
		FOR UPDATE
	`, orderID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *EscrowStore) GetByOrder(ctx context.Context, orderID string) ([]models.EscrowHolding, error) {
	var rows []models.EscrowHolding
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+holdingColumns+`
		FROM escrow_holdings
		WHERE order_id = $1
		ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkReleased transitions held -> released. The status guard makes the
// terminal transition single-shot; zero rows affected means the holding was
// not held.
func (s *EscrowStore) MarkReleased(ctx context.Context, tx Execer, holdingID string, releasedAt time.Time, buyerConfirmedAt *time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE escrow_holdings
		SET status = 'released', released_at = $1, buyer_confirmed_at = $2
		WHERE id = $3 AND status = 'held'
	`, releasedAt, buyerConfirmedAt, holdingID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *EscrowStore) MarkRefunded(ctx context.Context, tx Execer, holdingID string, refundedAt time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE escrow_holdings
		SET status = 'refunded', refunded_at = $1
		WHERE id = $2 AND status = 'held'
	`, refundedAt, holdingID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListHeldOlderThan feeds the auto-release sweep.
func (s *EscrowStore) ListHeldOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	var orderIDs []string
	err := s.db.SelectContext(ctx, &orderIDs, `
		SELECT DISTINCT order_id
		FROM escrow_holdings
		WHERE status = 'held' AND created_at < $1
	`, cutoff)
	if err != nil {
		return nil, err
	}
	return orderIDs, nil
}
