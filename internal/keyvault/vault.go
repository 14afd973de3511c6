package keyvault

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"settlement/internal/db"
	"settlement/internal/models"
	"settlement/internal/validator"
)

type AddressStore interface {
	GetActive(ctx context.Context, ownerID, currency string) (models.UserAddress, error)
	Create(ctx context.Context, id, ownerID, currency, address, encryptedKey string) (models.UserAddress, error)
}

type WalletStore interface {
	Ensure(ctx context.Context, userID string) (models.WalletBalance, error)
}

type FeeAddressStore interface {
	GetByCurrency(ctx context.Context, currency string) (*models.AdminFeeAddress, error)
	Create(ctx context.Context, currency, address, encryptedKey string) error
}

// AddressGenerator is the external address-generation service; the returned
// private key is plaintext and must be encrypted before it leaves this
// package.
type AddressGenerator interface {
	NewAddress(ctx context.Context, currency string) (address, privateKey string, err error)
}

// Vault is the single place cryptocurrency keypairs are created and stored.
// Private keys exist in plaintext only between generation and Encrypt, and
// between Decrypt and the end of a signing operation.
type Vault struct {
	addresses AddressStore
	wallets   WalletStore
	fees      FeeAddressStore
	generator AddressGenerator
	secret    string
}

func NewVault(addresses AddressStore, wallets WalletStore, fees FeeAddressStore, generator AddressGenerator, secret string) *Vault {
	return &Vault{
		addresses: addresses,
		wallets:   wallets,
		fees:      fees,
		generator: generator,
		secret:    secret,
	}
}

// GenerateAddress returns the active address for (owner, currency), creating
// one if none exists. Concurrent calls race on the (user, currency) unique
// constraint; the loser reloads the winner's row.
func (v *Vault) GenerateAddress(ctx context.Context, ownerID, currency string) (models.UserAddress, error) {
	if !validator.SupportedCurrency(currency) {
		return models.UserAddress{}, validator.ErrUnsupportedCurrency
	}
	existing, err := v.addresses.GetActive(ctx, ownerID, currency)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.UserAddress{}, err
	}

	address, privateKey, err := v.generator.NewAddress(ctx, currency)
	if err != nil {
		return models.UserAddress{}, err
	}
	encrypted, err := Encrypt(privateKey, v.secret)
	if err != nil {
		return models.UserAddress{}, err
	}

	created, err := v.addresses.Create(ctx, uuid.NewString(), ownerID, currency, address, encrypted)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return v.addresses.GetActive(ctx, ownerID, currency)
		}
		return models.UserAddress{}, err
	}
	if _, err := v.wallets.Ensure(ctx, ownerID); err != nil {
		return models.UserAddress{}, err
	}
	logrus.WithFields(logrus.Fields{
		"user_id":  ownerID,
		"currency": currency,
	}).Info("generated deposit address")
	return created, nil
}

// EnsureFeeAddress returns the platform's active fee collection address for
// the currency, generating and encrypting a keypair on first call. Escrow
// releases credit this address, so it must exist before any release runs.
// Concurrent calls race on the currency primary key; the loser reloads the
// winner's row.
func (v *Vault) EnsureFeeAddress(ctx context.Context, currency string) (models.AdminFeeAddress, error) {
	if !validator.SupportedCurrency(currency) {
		return models.AdminFeeAddress{}, validator.ErrUnsupportedCurrency
	}
	existing, err := v.fees.GetByCurrency(ctx, currency)
	if err != nil {
		return models.AdminFeeAddress{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	address, privateKey, err := v.generator.NewAddress(ctx, currency)
	if err != nil {
		return models.AdminFeeAddress{}, err
	}
	encrypted, err := Encrypt(privateKey, v.secret)
	if err != nil {
		return models.AdminFeeAddress{}, err
	}

	if err := v.fees.Create(ctx, currency, address, encrypted); err != nil {
		if db.IsUniqueViolation(err) {
			winner, err := v.fees.GetByCurrency(ctx, currency)
			if err != nil {
				return models.AdminFeeAddress{}, err
			}
			if winner != nil {
				return *winner, nil
			}
		}
		return models.AdminFeeAddress{}, err
	}
	logrus.WithField("currency", currency).Info("provisioned fee collection address")
	return models.AdminFeeAddress{
		Currency:            currency,
		Address:             address,
		EncryptedPrivateKey: encrypted,
		Active:              true,
	}, nil
}

// DecryptKey resolves stored key material into signing-ready form.
func (v *Vault) DecryptKey(encrypted string) (PrivateKey, error) {
	plaintext, err := Decrypt(encrypted, v.secret)
	if err != nil {
		return PrivateKey{}, err
	}
	return ParsePrivateKey(plaintext)
}
