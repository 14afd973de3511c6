package store

import (
	"context"

	"github.com/shopspring/decimal"

	"settlement/internal/models"
)

// AuditStore writes the append-only escrow audit log. Entries are never
// updated or deleted; they are the evidence trail for disputes and
// reconciliation.
type AuditStore struct {
	db DB
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

type AuditEntryInput struct {
	ID             string
	HoldingID      string
	OrderID        string
	Action         string
	Actor          string
	PreviousStatus string
	NewStatus      string
	AmountCrypto   decimal.Decimal
	Currency       string
	Metadata       string
}

func (s *AuditStore) Append(ctx context.Context, tx Execer, input AuditEntryInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO escrow_audit_log (id, holding_id, order_id, action, actor,
			previous_status, new_status, amount_crypto, currency, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, input.ID, input.HoldingID, input.OrderID, input.Action, input.Actor,
		input.PreviousStatus, input.NewStatus, input.AmountCrypto, input.Currency, input.Metadata)
	return err
}

func (s *AuditStore) ListByOrder(ctx context.Context, orderID string) ([]models.EscrowAuditEntry, error) {
	var rows []models.EscrowAuditEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, holding_id, order_id, action, actor, previous_status,
		       new_status, amount_crypto, currency, metadata, created_at
		FROM escrow_audit_log
		WHERE order_id = $1
		ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
