package store

import (
	"context"
	"database/sql"

	"settlement/internal/models"
)

// OrderStore reads and stamps the marketplace orders that escrow holdings
// attach to. Order creation lives elsewhere; settlement only transitions
// the escrow and payment status columns.
type OrderStore struct {
	db DB
}

func NewOrderStore(db DB) *OrderStore {
	return &OrderStore{db: db}
}

func (s *OrderStore) Get(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	err := s.db.GetContext(ctx, &o, `
		SELECT id, buyer_id, seller_id, payment_status, escrow_status, created_at
		FROM orders
		WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *OrderStore) SetEscrowStatus(ctx context.Context, tx Execer, id, escrowStatus string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET escrow_status = $1
		WHERE id = $2
	`, escrowStatus, id)
	return err
}

func (s *OrderStore) SetPaymentStatus(ctx context.Context, tx Execer, id, paymentStatus string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $1
		WHERE id = $2
	`, paymentStatus, id)
	return err
}
