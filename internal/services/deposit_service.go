package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"settlement/internal/db"
	"settlement/internal/metrics"
	"settlement/internal/models"
	"settlement/internal/store"
	"settlement/internal/validator"
	"settlement/internal/websocket"
)

type DepositStore interface {
	Create(ctx context.Context, tx store.Execer, d models.DepositRequest) error
	Get(ctx context.Context, id string) (*models.DepositRequest, error)
	GetForUpdate(ctx context.Context, tx store.Getter, id string) (*models.DepositRequest, error)
	GetByTxHash(ctx context.Context, tx store.Getter, txHash, userID string) (*models.DepositRequest, error)
	MarkConfirmed(ctx context.Context, tx store.Execer, id string) (bool, error)
	MarkCompleted(ctx context.Context, tx store.Execer, id string) (bool, error)
}

type DepositTransactionStore interface {
	Insert(ctx context.Context, tx store.Execer, t models.Transaction) error
	ExistsByTxHash(ctx context.Context, tx store.Getter, txHash, userID string) (bool, error)
}

// DepositService credits confirmed on-chain deposits exactly once. The
// (tx_hash, user_id) unique index on transactions is the hard guard; the
// explicit existence check keeps the duplicate path a clean error instead
// of a constraint violation.
type DepositService struct {
	txRunner     db.TxRunner
	wallets      WalletStore
	deposits     DepositStore
	transactions DepositTransactionStore
	hub          BalanceHub
}

func NewDepositService(txRunner db.TxRunner, wallets WalletStore, deposits DepositStore, transactions DepositTransactionStore, hub BalanceHub) *DepositService {
	return &DepositService{
		txRunner:     txRunner,
		wallets:      wallets,
		deposits:     deposits,
		transactions: transactions,
		hub:          hub,
	}
}

// CreateDepositRequest registers a pending on-chain deposit so the webhook
// can later confirm it. A tx hash the same user already submitted is
// rejected up front rather than left to fail at credit time.
func (s *DepositService) CreateDepositRequest(ctx context.Context, userID, currency string, amount decimal.Decimal, txHash string) (*models.DepositRequest, error) {
	if !validator.SupportedCurrency(currency) {
		return nil, validator.ErrUnsupportedCurrency
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	deposit := models.DepositRequest{
		ID:       uuid.NewString(),
		UserID:   userID,
		Currency: currency,
		Amount:   amount,
		TxHash:   txHash,
		Status:   models.DepositPending,
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.deposits.GetByTxHash(ctx, tx, txHash, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateDeposit
		}
		return s.deposits.Create(ctx, tx, deposit)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicateDeposit
		}
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"deposit_id": deposit.ID,
		"user_id":    userID,
		"currency":   currency,
	}).Info("deposit request registered")
	return &deposit, nil
}

// RecordConfirmedDeposit credits the deposit's owner and marks the request
// completed, all in one transaction. A second call for the same tx hash
// returns ErrDuplicateDeposit and changes nothing.
func (s *DepositService) RecordConfirmedDeposit(ctx context.Context, depositRequestID string) error {
	var userID, currency string
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		deposit, err := s.deposits.GetForUpdate(ctx, tx, depositRequestID)
		if err != nil {
			return err
		}
		if deposit == nil {
			return ErrNotFound
		}
		if deposit.Status != models.DepositConfirmed {
			return ErrInvalidState
		}
		exists, err := s.transactions.ExistsByTxHash(ctx, tx, deposit.TxHash, deposit.UserID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateDeposit
		}

		userID = deposit.UserID
		currency = deposit.Currency
		txHash := deposit.TxHash
		if err := s.transactions.Insert(ctx, tx, models.Transaction{
			ID:           uuid.NewString(),
			UserID:       deposit.UserID,
			Type:         "deposit",
			Status:       models.TransactionCompleted,
			AmountCrypto: deposit.Amount,
			Currency:     deposit.Currency,
			TxHash:       &txHash,
		}); err != nil {
			if db.IsUniqueViolation(err) {
				return ErrDuplicateDeposit
			}
			return err
		}
		if err := s.wallets.CreditCrypto(ctx, tx, deposit.UserID, deposit.Currency, deposit.Amount, true); err != nil {
			return err
		}
		ok, err := s.deposits.MarkCompleted(ctx, tx, depositRequestID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidState
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.Deposits.Inc()
	s.pushBalance(ctx, userID, currency)
	logrus.WithFields(logrus.Fields{
		"deposit_id": depositRequestID,
		"user_id":    userID,
		"currency":   currency,
	}).Info("deposit credited")
	return nil
}

// ConfirmDeposit is the webhook entry point: flips a pending deposit
// request to confirmed, then reconciles it. A request already past pending
// is left alone so replayed webhooks are harmless.
func (s *DepositService) ConfirmDeposit(ctx context.Context, depositRequestID string) error {
	var flipped bool
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		deposit, err := s.deposits.GetForUpdate(ctx, tx, depositRequestID)
		if err != nil {
			return err
		}
		if deposit == nil {
			return ErrNotFound
		}
		if deposit.Status != models.DepositPending {
			return nil
		}
		flipped, err = s.deposits.MarkConfirmed(ctx, tx, depositRequestID)
		return err
	})
	if err != nil {
		return err
	}
	if !flipped {
		return nil
	}
	return s.RecordConfirmedDeposit(ctx, depositRequestID)
}

func (s *DepositService) pushBalance(ctx context.Context, userID, currency string) {
	balance, err := s.wallets.Get(ctx, userID)
	if err != nil {
		return
	}
	update := websocket.BalanceUpdate{Currency: currency}
	switch currency {
	case models.CurrencyBTC:
		update.Balance = balance.BalanceBTC.String()
	case models.CurrencyLTC:
		update.Balance = balance.BalanceLTC.String()
	default:
		return
	}
	s.hub.BroadcastBalance(userID, update)
}
