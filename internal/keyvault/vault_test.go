package keyvault

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/lib/pq"

	"settlement/internal/models"
	"settlement/internal/validator"
)

type stubAddressStore struct {
	getActiveFn func(ctx context.Context, ownerID, currency string) (models.UserAddress, error)
	createFn    func(ctx context.Context, id, ownerID, currency, address, encryptedKey string) (models.UserAddress, error)
}

func (s stubAddressStore) GetActive(ctx context.Context, ownerID, currency string) (models.UserAddress, error) {
	return s.getActiveFn(ctx, ownerID, currency)
}

func (s stubAddressStore) Create(ctx context.Context, id, ownerID, currency, address, encryptedKey string) (models.UserAddress, error) {
	if s.createFn == nil {
		return models.UserAddress{}, nil
	}
	return s.createFn(ctx, id, ownerID, currency, address, encryptedKey)
}

type stubWalletStore struct {
	ensured []string
	err     error
}

func (s *stubWalletStore) Ensure(_ context.Context, userID string) (models.WalletBalance, error) {
	s.ensured = append(s.ensured, userID)
	return models.WalletBalance{UserID: userID}, s.err
}

type stubGenerator struct {
	address    string
	privateKey string
	err        error
	calls      int
}

func (s *stubGenerator) NewAddress(context.Context, string) (string, string, error) {
	s.calls++
	return s.address, s.privateKey, s.err
}


type stubFeeStore struct {
	getFn    func(ctx context.Context, currency string) (*models.AdminFeeAddress, error)
	createFn func(ctx context.Context, currency, address, encryptedKey string) error
}

func (s stubFeeStore) GetByCurrency(ctx context.Context, currency string) (*models.AdminFeeAddress, error) {
	if s.getFn == nil {
		return nil, nil
	}
	return s.getFn(ctx, currency)
}

func (s stubFeeStore) Create(ctx context.Context, currency, address, encryptedKey string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, currency, address, encryptedKey)
}

func TestGenerateAddressReturnsExisting(t *testing.T) {
	generator := &stubGenerator{}
	vault := NewVault(stubAddressStore{
		getActiveFn: func(context.Context, string, string) (models.UserAddress, error) {
			return models.UserAddress{ID: "addr-1", Address: "bc1qexisting"}, nil
		},
	}, &stubWalletStore{}, stubFeeStore{}, generator, "secret")
	addr, err := vault.GenerateAddress(context.Background(), "user-1", "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr.ID != "addr-1" {
		t.Fatalf("unexpected address: %+v", addr)
	}
	if generator.calls != 0 {
		t.Fatal("generator must not be called when an active address exists")
	}
}

func TestGenerateAddressCreatesAndEncrypts(t *testing.T) {
	wallets := &stubWalletStore{}
	var storedKey string
	vault := NewVault(stubAddressStore{
		getActiveFn: func(context.Context, string, string) (models.UserAddress, error) {
			return models.UserAddress{}, sql.ErrNoRows
		},
		createFn: func(_ context.Context, id, ownerID, currency, address, encryptedKey string) (models.UserAddress, error) {
			storedKey = encryptedKey
			return models.UserAddress{ID: id, UserID: ownerID, Currency: currency, Address: address, EncryptedPrivateKey: encryptedKey}, nil
		},
	}, wallets, stubFeeStore{}, &stubGenerator{address: "bc1qnew", privateKey: testKeyHex}, "secret")

	addr, err := vault.GenerateAddress(context.Background(), "user-1", "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr.Address != "bc1qnew" {
		t.Fatalf("unexpected address: %+v", addr)
	}
	if storedKey == testKeyHex || storedKey == "" {
		t.Fatal("private key must be stored encrypted")
	}
	plaintext, err := Decrypt(storedKey, "secret")
	if err != nil || plaintext != testKeyHex {
		t.Fatalf("stored blob does not decrypt to the source key: %v", err)
	}
	if len(wallets.ensured) != 1 || wallets.ensured[0] != "user-1" {
		t.Fatalf("wallet row was not ensured: %v", wallets.ensured)
	}
}

func TestGenerateAddressUnsupportedCurrency(t *testing.T) {
	vault := NewVault(stubAddressStore{
		getActiveFn: func(context.Context, string, string) (models.UserAddress, error) {
			t.Fatal("store must not be read for unsupported currency")
			return models.UserAddress{}, nil
		},
	}, &stubWalletStore{}, stubFeeStore{}, &stubGenerator{}, "secret")
	if _, err := vault.GenerateAddress(context.Background(), "user-1", "XMR"); err != validator.ErrUnsupportedCurrency {
		t.Fatalf("expected ErrUnsupportedCurrency, got %v", err)
	}
}

func TestGenerateAddressGeneratorFailure(t *testing.T) {
	upstream := errors.New("address service unreachable")
	vault := NewVault(stubAddressStore{
		getActiveFn: func(context.Context, string, string) (models.UserAddress, error) {
			return models.UserAddress{}, sql.ErrNoRows
		},
	}, &stubWalletStore{}, stubFeeStore{}, &stubGenerator{err: upstream}, "secret")
	if _, err := vault.GenerateAddress(context.Background(), "user-1", "LTC"); !errors.Is(err, upstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestDecryptKeyRoundTrip(t *testing.T) {
	vault := NewVault(stubAddressStore{}, &stubWalletStore{}, stubFeeStore{}, &stubGenerator{}, "secret")
	blob, err := Encrypt(testKeyHex, "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	key, err := vault.DecryptKey(blob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.Kind != KeyHex {
		t.Fatalf("expected KeyHex, got %v", key.Kind)
	}
}

func TestEnsureFeeAddressReturnsExisting(t *testing.T) {
	generator := &stubGenerator{}
	vault := NewVault(stubAddressStore{}, &stubWalletStore{}, stubFeeStore{
		getFn: func(context.Context, string) (*models.AdminFeeAddress, error) {
			return &models.AdminFeeAddress{Currency: "BTC", Address: "bc1qfees", Active: true}, nil
		},
	}, generator, "secret")

	addr, err := vault.EnsureFeeAddress(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr.Address != "bc1qfees" {
		t.Fatalf("unexpected address: %+v", addr)
	}
	if generator.calls != 0 {
		t.Fatal("generator must not be called when a fee address exists")
	}
}

func TestEnsureFeeAddressCreatesAndEncrypts(t *testing.T) {
	var storedKey string
	vault := NewVault(stubAddressStore{}, &stubWalletStore{}, stubFeeStore{
		createFn: func(_ context.Context, currency, address, encryptedKey string) error {
			storedKey = encryptedKey
			return nil
		},
	}, &stubGenerator{address: "ltc1qfees", privateKey: testKeyHex}, "secret")

	addr, err := vault.EnsureFeeAddress(context.Background(), "LTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr.Address != "ltc1qfees" || !addr.Active {
		t.Fatalf("unexpected address: %+v", addr)
	}
	if storedKey == testKeyHex || storedKey == "" {
		t.Fatal("private key must be stored encrypted")
	}
	plaintext, err := Decrypt(storedKey, "secret")
	if err != nil || plaintext != testKeyHex {
		t.Fatalf("stored blob does not decrypt to the source key: %v", err)
	}
}

func TestEnsureFeeAddressConcurrentCreateReloadsWinner(t *testing.T) {
	reads := 0
	vault := NewVault(stubAddressStore{}, &stubWalletStore{}, stubFeeStore{
		getFn: func(context.Context, string) (*models.AdminFeeAddress, error) {
			reads++
			if reads == 1 {
				return nil, nil
			}
			return &models.AdminFeeAddress{Currency: "BTC", Address: "bc1qwinner", Active: true}, nil
		},
		createFn: func(context.Context, string, string, string) error {
			return &pq.Error{Code: "23505"}
		},
	}, &stubGenerator{address: "bc1qloser", privateKey: testKeyHex}, "secret")

	addr, err := vault.EnsureFeeAddress(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr.Address != "bc1qwinner" {
		t.Fatalf("expected the winner's row, got %+v", addr)
	}
}

func TestEnsureFeeAddressUnsupportedCurrency(t *testing.T) {
	vault := NewVault(stubAddressStore{}, &stubWalletStore{}, stubFeeStore{
		getFn: func(context.Context, string) (*models.AdminFeeAddress, error) {
			t.Fatal("store must not be read for unsupported currency")
			return nil, nil
		},
	}, &stubGenerator{}, "secret")
	if _, err := vault.EnsureFeeAddress(context.Background(), "XMR"); err != validator.ErrUnsupportedCurrency {
		t.Fatalf("expected ErrUnsupportedCurrency, got %v", err)
	}
}
