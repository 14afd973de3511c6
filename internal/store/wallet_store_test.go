package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestWalletStoreDebitCreditsGuard(t *testing.T) {
	var gotQuery string
	var gotArgs []any
	tx := stubExecer{
		execFn: func(ctx context.Context, query string, args ...any) (sql.Result, error) {
			gotQuery = query
			gotArgs = args
			return stubResult{rows: 0}, nil
		},
	}

	s := NewWalletStore(stubDB{})
	rows, err := s.DebitCredits(context.Background(), tx, "user-1", 500)
	if err != nil {
		t.Fatalf("DebitCredits: %v", err)
	}
	if rows != 0 {
		t.Fatalf("rows = %d, want 0 for insufficient funds", rows)
	}
	if gotArgs[0] != int64(500) || gotArgs[1] != "user-1" {
		t.Fatalf("unexpected args: %v", gotArgs)
	}
	if !strings.Contains(gotQuery, "balance_credits >= $1") {
		t.Fatalf("debit query is missing the balance guard: %s", gotQuery)
	}
}

func TestWalletStoreCreditCryptoCountsDeposit(t *testing.T) {
	var withCounter, withoutCounter string
	tx := stubExecer{
		execFn: func(ctx context.Context, query string, args ...any) (sql.Result, error) {
			if withoutCounter == "" {
				withoutCounter = query
			} else {
				withCounter = query
			}
			return stubResult{rows: 1}, nil
		},
	}

	s := NewWalletStore(stubDB{})
	amount := decimal.RequireFromString("0.01")
	if err := s.CreditCrypto(context.Background(), tx, "user-1", "BTC", amount, false); err != nil {
		t.Fatalf("CreditCrypto: %v", err)
	}
	if err := s.CreditCrypto(context.Background(), tx, "user-1", "BTC", amount, true); err != nil {
		t.Fatalf("CreditCrypto countDeposit: %v", err)
	}

	if strings.Contains(withoutCounter, "total_deposited_btc") {
		t.Fatalf("refund-style credit must not advance the deposit counter: %s", withoutCounter)
	}
	if !strings.Contains(withCounter, "total_deposited_btc") {
		t.Fatalf("deposit credit must advance the deposit counter: %s", withCounter)
	}
}

func TestWalletStoreCreditCryptoUnknownCurrency(t *testing.T) {
	s := NewWalletStore(stubDB{})
	err := s.CreditCrypto(context.Background(), stubExecer{}, "user-1", "DOGE", decimal.New(1, 0), false)
	if err == nil {
		t.Fatal("expected error for unsupported currency")
	}
}

func TestWalletStoreCreditCryptoUpsertsMissingRow(t *testing.T) {
	var gotQuery string
	var gotArgs []any
	tx := stubExecer{
		execFn: func(ctx context.Context, query string, args ...any) (sql.Result, error) {
			gotQuery = query
			gotArgs = args
			return stubResult{rows: 1}, nil
		},
	}

	s := NewWalletStore(stubDB{})
	amount := decimal.RequireFromString("0.0095")
	if err := s.CreditCrypto(context.Background(), tx, "seller-without-row", "BTC", amount, false); err != nil {
		t.Fatalf("CreditCrypto: %v", err)
	}
	if !strings.Contains(gotQuery, "INSERT INTO wallet_balances") ||
		!strings.Contains(gotQuery, "ON CONFLICT (user_id) DO UPDATE") {
		t.Fatalf("credit must upsert so a recipient without a wallet row still receives funds: %s", gotQuery)
	}
	if gotArgs[1] != "seller-without-row" {
		t.Fatalf("unexpected args: %v", gotArgs)
	}
}

func TestWalletStoreCreditCreditsUpsertsMissingRow(t *testing.T) {
	var gotQuery string
	tx := stubExecer{
		execFn: func(ctx context.Context, query string, args ...any) (sql.Result, error) {
			gotQuery = query
			return stubResult{rows: 1}, nil
		},
	}

	s := NewWalletStore(stubDB{})
	if err := s.CreditCredits(context.Background(), tx, "user-1", 50); err != nil {
		t.Fatalf("CreditCredits: %v", err)
	}
	if !strings.Contains(gotQuery, "ON CONFLICT (user_id) DO UPDATE") {
		t.Fatalf("compensating credit must never match zero rows: %s", gotQuery)
	}
}

func TestWalletStoreEnsureReturnsRow(t *testing.T) {
	db := stubDB{
		getFn: func(ctx context.Context, dest any, query string, args ...any) error {
			if args[0] != "user-9" {
				t.Fatalf("unexpected user id %v", args[0])
			}
			return nil
		},
	}
	s := NewWalletStore(db)
	if _, err := s.Ensure(context.Background(), "user-9"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
}

func TestWalletStoreGetPropagatesError(t *testing.T) {
	boom := errors.New("connection reset")
	db := stubDB{
		getFn: func(ctx context.Context, dest any, query string, args ...any) error {
			return boom
		},
	}
	s := NewWalletStore(db)
	if _, err := s.Get(context.Background(), "user-1"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
