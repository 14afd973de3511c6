package store

import (
	"context"

	"settlement/internal/models"
)

// AddressStore persists per-user deposit addresses. A user holds at most one
// active address per currency, enforced by a partial unique index.
type AddressStore struct {
	db DB
}

func NewAddressStore(db DB) *AddressStore {
	return &AddressStore{db: db}
}

const addressColumns = `id, user_id, currency, address, encrypted_private_key, active, created_at`

func (s *AddressStore) GetActive(ctx context.Context, ownerID, currency string) (models.UserAddress, error) {
	var a models.UserAddress
	err := s.db.GetContext(ctx, &a, `
		SELECT `+addressColumns+`
		FROM user_addresses
		WHERE user_id = $1 AND currency = $2 AND active = true
	`, ownerID, currency)
	return a, err
}

func (s *AddressStore) Create(ctx context.Context, id, ownerID, currency, address, encryptedKey string) (models.UserAddress, error) {
	var a models.UserAddress
	err := s.db.GetContext(ctx, &a, `
		INSERT INTO user_addresses (id, user_id, currency, address, encrypted_private_key, active)
		VALUES ($1, $2, $3, $4, $5, true)
		RETURNING `+addressColumns+`
	`, id, ownerID, currency, address, encryptedKey)
	return a, err
}
