package services

import (
	"context"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"settlement/internal/models"
	"settlement/internal/store"
	"settlement/internal/validator"
)

func confirmedDeposit() *models.DepositRequest {
	return &models.DepositRequest{
		ID:       "dep-1",
		UserID:   "user-1",
		Currency: models.CurrencyBTC,
		Amount:   decimal.RequireFromString("0.03"),
		TxHash:   "f4184fc596403b9d638783cf57adfe4c75c605f6356fbc91338530e9831e9e16",
		Status:   models.DepositConfirmed,
	}
}

func TestRecordConfirmedDepositCreditsOnce(t *testing.T) {
	deposit := confirmedDeposit()

	var credited decimal.Decimal
	var countedDeposit bool
	var insertedTx models.Transaction
	var completed bool

	wallets := stubWalletStore{
		creditCryptoFn: func(ctx context.Context, tx store.Execer, userID, currency string, amount decimal.Decimal, countDeposit bool) error {
			credited = amount
			countedDeposit = countDeposit
			return nil
		},
	}
	deposits := stubDepositStore{
		getForUpdateFn: func(ctx context.Context, tx store.Getter, id string) (*models.DepositRequest, error) {
			return deposit, nil
		},
		completeFn: func(ctx context.Context, tx store.Execer, id string) (bool, error) {
			completed = true
			return true, nil
		},
	}
	transactions := stubTransactionStore{
		insertFn: func(ctx context.Context, tx store.Execer, tr models.Transaction) error {
			insertedTx = tr
			return nil
		},
	}

	svc := NewDepositService(&fakeTxRunner{}, wallets, deposits, transactions, &recordingHub{})
	if err := svc.RecordConfirmedDeposit(context.Background(), deposit.ID); err != nil {
		t.Fatalf("RecordConfirmedDeposit: %v", err)
	}

	if !credited.Equal(deposit.Amount) {
		t.Fatalf("credited %s, want %s", credited, deposit.Amount)
	}
	if !countedDeposit {
		t.Fatal("deposit must advance the cumulative counter")
	}
	if insertedTx.Type != "deposit" || insertedTx.TxHash == nil || *insertedTx.TxHash != deposit.TxHash {
		t.Fatalf("deposit transaction = %+v", insertedTx)
	}
	if !completed {
		t.Fatal("deposit request was not marked completed")
	}
}

func TestRecordConfirmedDepositDuplicate(t *testing.T) {
	deposit := confirmedDeposit()

	var credited bool
	wallets := stubWalletStore{
		creditCryptoFn: func(ctx context.Context, tx store.Execer, userID, currency string, amount decimal.Decimal, countDeposit bool) error {
			credited = true
			return nil
		},
	}
	deposits := stubDepositStore{
		getForUpdateFn: func(ctx context.Context, tx store.Getter, id string) (*models.DepositRequest, error) {
			return deposit, nil
		},
	}
	transactions := stubTransactionStore{
		existsFn: func(ctx context.Context, tx store.Getter, txHash, userID string) (bool, error) {
			return true, nil
		},
	}

	svc := NewDepositService(&fakeTxRunner{}, wallets, deposits, transactions, &recordingHub{})
	err := svc.RecordConfirmedDeposit(context.Background(), deposit.ID)
	if !errors.Is(err, ErrDuplicateDeposit) {
		t.Fatalf("err = %v, want ErrDuplicateDeposit", err)
	}
	if credited {
		t.Fatal("duplicate deposit must not credit the balance again")
	}
}

func TestRecordConfirmedDepositUniqueIndexRace(t *testing.T) {
	deposit := confirmedDeposit()
	deposits := stubDepositStore{
		getForUpdateFn: func(ctx context.Context, tx store.Getter, id string) (*models.DepositRequest, error) {
			return deposit, nil
		},
	}
	transactions := stubTransactionStore{
		insertFn: func(ctx context.Context, tx store.Execer, tr models.Transaction) error {
			return &pq.Error{Code: "23505"}
		},
	}

	svc := NewDepositService(&fakeTxRunner{}, stubWalletStore{}, deposits, transactions, &recordingHub{})
	err := svc.RecordConfirmedDeposit(context.Background(), deposit.ID)
	if !errors.Is(err, ErrDuplicateDeposit) {
		t.Fatalf("err = %v, want ErrDuplicateDeposit", err)
	}
}

func TestRecordConfirmedDepositWrongState(t *testing.T) {
	deposit := confirmedDeposit()
	deposit.Status = models.DepositPending
	deposits := stubDepositStore{
		getForUpdateFn: func(ctx context.Context, tx store.Getter, id string) (*models.DepositRequest, error) {
			return deposit, nil
		},
	}

	svc := NewDepositService(&fakeTxRunner{}, stubWalletStore{}, deposits, stubTransactionStore{}, &recordingHub{})
	if err := svc.RecordConfirmedDeposit(context.Background(), deposit.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestRecordConfirmedDepositMissing(t *testing.T) {
	svc := NewDepositService(&fakeTxRunner{}, stubWalletStore{}, stubDepositStore{}, stubTransactionStore{}, &recordingHub{})
	if err := svc.RecordConfirmedDeposit(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestConfirmDepositReplayedWebhook(t *testing.T) {
	deposit := confirmedDeposit()
	deposit.Status = models.DepositCompleted

	var confirmed bool
	deposits := stubDepositStore{
		getForUpdateFn: func(ctx context.Context, tx store.Getter, id string) (*models.DepositRequest, error) {
			return deposit, nil
		},
		confirmFn: func(ctx context.Context, tx store.Execer, id string) (bool, error) {
			confirmed = true
			return true, nil
		},
	}

	svc := NewDepositService(&fakeTxRunner{}, stubWalletStore{}, deposits, stubTransactionStore{}, &recordingHub{})
	if err := svc.ConfirmDeposit(context.Background(), deposit.ID); err != nil {
		t.Fatalf("ConfirmDeposit: %v", err)
	}
	if confirmed {
		t.Fatal("replayed webhook must not re-confirm a settled deposit")
	}
}

func TestConfirmDepositTriggersReconciliation(t *testing.T) {
	deposit := confirmedDeposit()
	deposit.Status = models.DepositPending

	var credited bool
	wallets := stubWalletStore{
		creditCryptoFn: func(ctx context.Context, tx store.Execer, userID, currency string, amount decimal.Decimal, countDeposit bool) error {
			credited = true
			return nil
		},
	}
	deposits := stubDepositStore{
		getForUpdateFn: func(ctx context.Context, tx store.Getter, id string) (*models.DepositRequest, error) {
			current := *deposit
			return &current, nil
		},
		confirmFn: func(ctx context.Context, tx store.Execer, id string) (bool, error) {
			deposit.Status = models.DepositConfirmed
			return true, nil
		},
	}

	svc := NewDepositService(&fakeTxRunner{}, wallets, deposits, stubTransactionStore{}, &recordingHub{})
	if err := svc.ConfirmDeposit(context.Background(), deposit.ID); err != nil {
		t.Fatalf("ConfirmDeposit: %v", err)
	}
	if !credited {
		t.Fatal("confirmed deposit was not reconciled")
	}
}

func TestCreateDepositRequestPending(t *testing.T) {
	var created models.DepositRequest
	deposits := stubDepositStore{
		createFn: func(ctx context.Context, tx store.Execer, d models.DepositRequest) error {
			created = d
			return nil
		},
	}
	svc := NewDepositService(&fakeTxRunner{}, stubWalletStore{}, deposits, stubTransactionStore{}, &recordingHub{})

	deposit, err := svc.CreateDepositRequest(context.Background(), "user-1", models.CurrencyBTC, decimal.RequireFromString("0.005"), "txhash-1")
	if err != nil {
		t.Fatalf("CreateDepositRequest: %v", err)
	}
	if deposit.Status != models.DepositPending {
		t.Fatalf("status = %q, want pending", deposit.Status)
	}
	if created.UserID != "user-1" || created.TxHash != "txhash-1" {
		t.Fatalf("created = %+v", created)
	}
	if created.ID == "" {
		t.Fatal("deposit request id should be assigned")
	}
}

func TestCreateDepositRequestDuplicateHash(t *testing.T) {
	deposits := stubDepositStore{
		getByTxHashFn: func(ctx context.Context, tx store.Getter, txHash, userID string) (*models.DepositRequest, error) {
			return &models.DepositRequest{ID: "dep-1", TxHash: txHash, UserID: userID}, nil
		},
	}
	svc := NewDepositService(&fakeTxRunner{}, stubWalletStore{}, deposits, stubTransactionStore{}, &recordingHub{})

	_, err := svc.CreateDepositRequest(context.Background(), "user-1", models.CurrencyBTC, decimal.RequireFromString("0.005"), "txhash-1")
	if !errors.Is(err, ErrDuplicateDeposit) {
		t.Fatalf("err = %v, want ErrDuplicateDeposit", err)
	}
}

func TestCreateDepositRequestRejectsBadInput(t *testing.T) {
	svc := NewDepositService(&fakeTxRunner{}, stubWalletStore{}, stubDepositStore{}, stubTransactionStore{}, &recordingHub{})

	if _, err := svc.CreateDepositRequest(context.Background(), "user-1", "DOGE", decimal.RequireFromString("1"), "txhash-1"); !errors.Is(err, validator.ErrUnsupportedCurrency) {
		t.Fatalf("err = %v, want ErrUnsupportedCurrency", err)
	}
	if _, err := svc.CreateDepositRequest(context.Background(), "user-1", models.CurrencyBTC, decimal.Zero, "txhash-1"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
}
