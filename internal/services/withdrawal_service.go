package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"settlement/internal/chain"
	"settlement/internal/db"
	"settlement/internal/keyvault"
	"settlement/internal/metrics"
	"settlement/internal/models"
	"settlement/internal/money"
	"settlement/internal/store"
	"settlement/internal/validator"
	"settlement/internal/websocket"
)

type WithdrawalStore interface {
	Create(ctx context.Context, tx store.Execer, w models.CreditWithdrawal) error
	Get(ctx context.Context, id string) (*models.CreditWithdrawal, error)
	UpdateStatus(ctx context.Context, tx store.Execer, id, from, to string) (bool, error)
	MarkCompleted(ctx context.Context, tx store.Execer, id, txHash string) (bool, error)
	MarkFailed(ctx context.Context, tx store.Execer, id, reason string) (bool, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.CreditWithdrawal, error)
	InsertCreditTransaction(ctx context.Context, tx store.Execer, t models.CreditTransaction) error
}

type UserAddressStore interface {
	GetActive(ctx context.Context, ownerID, currency string) (models.UserAddress, error)
}

type AdminFeeStore interface {
	GetByCurrency(ctx context.Context, currency string) (*models.AdminFeeAddress, error)
	DebitBalance(ctx context.Context, tx store.Execer, currency string, amount decimal.Decimal) (bool, error)
	CreditBalance(ctx context.Context, tx store.Execer, currency string, amount decimal.Decimal) error
	InsertFeeTransaction(ctx context.Context, tx store.Execer, t models.AdminFeeTransaction) error
	MarkFeeTransaction(ctx context.Context, tx store.Execer, id, txHash, status string) error
}

type KeyVault interface {
	DecryptKey(encrypted string) (keyvault.PrivateKey, error)
}

type ChainClient interface {
	NewTransaction(ctx context.Context, currency, from, to string, amountUnits int64) (*chain.TxSkeleton, error)
	Send(ctx context.Context, currency string, skeleton *chain.TxSkeleton, key keyvault.PrivateKey) (string, error)
}

type WithdrawalHub interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
	BroadcastWithdrawal(userID string, update websocket.WithdrawalUpdate)
}

// WithdrawalService converts internal credits into outbound on-chain
// payments. Credits are debited before the send is attempted; any failure
// after the debit restores them with a compensating credit and leaves the
// withdrawal row in a state an operator can inspect.
type WithdrawalService struct {
	txRunner    db.TxRunner
	wallets     WalletStore
	withdrawals WithdrawalStore
	addresses   UserAddressStore
	fees        AdminFeeStore
	vault       KeyVault
	chain       ChainClient
	oracle      RateSource
	hub         WithdrawalHub
	feeRate     decimal.Decimal

	// handoff is swapped out in tests to run the pipeline synchronously.
	handoff func(id, userID string)
}

func NewWithdrawalService(txRunner db.TxRunner, wallets WalletStore, withdrawals WithdrawalStore, addresses UserAddressStore, fees AdminFeeStore, vault KeyVault, chainClient ChainClient, oracle RateSource, hub WithdrawalHub, feeRate decimal.Decimal) *WithdrawalService {
	s := &WithdrawalService{
		txRunner:    txRunner,
		wallets:     wallets,
		withdrawals: withdrawals,
		addresses:   addresses,
		fees:        fees,
		vault:       vault,
		chain:       chainClient,
		oracle:      oracle,
		hub:         hub,
		feeRate:     feeRate,
	}
	s.handoff = s.asyncProcess
	return s
}

// RequestWithdrawal validates, prices and debits a withdrawal, then hands
// the on-chain send off asynchronously. The caller gets the processing
// record back immediately.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, userID string, amountCredits int64, currency, destinationAddress string) (*models.CreditWithdrawal, error) {
	if amountCredits <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := validator.ValidateAddress(currency, destinationAddress); err != nil {
		return nil, err
	}
	rate, err := s.oracle.Rate(currency)
	if err != nil {
		return nil, err
	}

	amountEUR := amountCredits * 100
	feeEUR := decimal.New(amountEUR, 0).Mul(s.feeRate).Round(0).IntPart()
	netEUR := amountEUR - feeEUR
	amountCrypto := money.MinorToDecimal(netEUR).DivRound(rate, money.CryptoPlaces)
	if !amountCrypto.IsPositive() {
		return nil, ErrInvalidAmount
	}

	withdrawalID := uuid.NewString()
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := s.wallets.DebitCredits(ctx, tx, userID, amountCredits)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrInsufficientFunds
		}
		if err := s.withdrawals.Create(ctx, tx, models.CreditWithdrawal{
			ID:                 withdrawalID,
			UserID:             userID,
			AmountCredits:      amountCredits,
			AmountEUR:          amountEUR,
			FeeEUR:             feeEUR,
			Currency:           currency,
			DestinationAddress: destinationAddress,
			AmountCrypto:       amountCrypto,
			Status:             models.WithdrawalPending,
		}); err != nil {
			return err
		}
		return s.withdrawals.InsertCreditTransaction(ctx, tx, models.CreditTransaction{
			ID:            uuid.NewString(),
			UserID:        userID,
			Type:          "withdrawal",
			AmountCredits: -amountCredits,
			Description:   "credit withdrawal to " + currency,
			ReferenceID:   &withdrawalID,
		})
	})
	if err != nil {
		return nil, err
	}

	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := s.withdrawals.UpdateStatus(ctx, tx, withdrawalID, models.WithdrawalPending, models.WithdrawalProcessing)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidState
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.pushCreditsBalance(ctx, userID)
	s.handoff(withdrawalID, userID)

	withdrawal, err := s.withdrawals.Get(ctx, withdrawalID)
	if err != nil {
		return nil, err
	}
	if withdrawal == nil {
		return nil, ErrNotFound
	}
	return withdrawal, nil
}

func (s *WithdrawalService) asyncProcess(id, userID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.ProcessWithdrawal(ctx, id); err != nil {
			logrus.WithFields(logrus.Fields{
				"withdrawal_id": id,
				"user_id":       userID,
			}).WithError(err).Error("withdrawal processing failed")
		}
	}()
}

// ProcessWithdrawal drives a processing withdrawal through the on-chain
// pipeline. Failures flip it to failed and restore the user's credits.
func (s *WithdrawalService) ProcessWithdrawal(ctx context.Context, id string) error {
	withdrawal, err := s.withdrawals.Get(ctx, id)
	if err != nil {
		return err
	}
	if withdrawal == nil {
		return ErrNotFound
	}
	if withdrawal.Status != models.WithdrawalProcessing {
		return ErrInvalidState
	}

	txHash, err := s.sendOnChain(ctx, *withdrawal)
	if err != nil {
		return s.failWithdrawal(ctx, *withdrawal, err)
	}

	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := s.withdrawals.MarkCompleted(ctx, tx, id, txHash)
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

	metrics.Withdrawals.WithLabelValues(models.WithdrawalCompleted).Inc()
	s.hub.BroadcastWithdrawal(withdrawal.UserID, websocket.WithdrawalUpdate{
		WithdrawalID: id,
		Status:       models.WithdrawalCompleted,
		TxHash:       txHash,
	})
	logrus.WithFields(logrus.Fields{
		"withdrawal_id": id,
		"tx_hash":       txHash,
	}).Info("withdrawal completed")
	return nil
}

func (s *WithdrawalService) sendOnChain(ctx context.Context, withdrawal models.CreditWithdrawal) (string, error) {
	source, err := s.addresses.GetActive(ctx, withdrawal.UserID, withdrawal.Currency)
	if err != nil {
		return "", err
	}
	units := money.ToSmallestUnit(withdrawal.AmountCrypto)
	skeleton, err := s.chain.NewTransaction(ctx, withdrawal.Currency, source.Address, withdrawal.DestinationAddress, units)
	if err != nil {
		return "", err
	}
	key, err := s.vault.DecryptKey(source.EncryptedPrivateKey)
	if err != nil {
		return "", err
	}
	return s.chain.Send(ctx, withdrawal.Currency, skeleton, key)
}

// failWithdrawal records the failure and restores the debited credits in a
// single transaction. The provider's rejection body lands in failure_reason
// for manual reconciliation.
func (s *WithdrawalService) failWithdrawal(ctx context.Context, withdrawal models.CreditWithdrawal, cause error) error {
	if isBroadcastRejection(cause) {
		metrics.BroadcastFailures.Inc()
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := s.withdrawals.MarkFailed(ctx, tx, withdrawal.ID, cause.Error())
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidState
		}
		if err := s.wallets.CreditCredits(ctx, tx, withdrawal.UserID, withdrawal.AmountCredits); err != nil {
			return err
		}
		return s.withdrawals.InsertCreditTransaction(ctx, tx, models.CreditTransaction{
			ID:            uuid.NewString(),
			UserID:        withdrawal.UserID,
			Type:          "withdrawal_refund",
			AmountCredits: withdrawal.AmountCredits,
			Description:   "refund for failed withdrawal",
			ReferenceID:   &withdrawal.ID,
		})
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"withdrawal_id": withdrawal.ID,
			"cause":         cause.Error(),
		}).WithError(err).Error("failed withdrawal could not be compensated")
		return err
	}

	metrics.Withdrawals.WithLabelValues(models.WithdrawalFailed).Inc()
	s.pushCreditsBalance(ctx, withdrawal.UserID)
	s.hub.BroadcastWithdrawal(withdrawal.UserID, websocket.WithdrawalUpdate{
		WithdrawalID: withdrawal.ID,
		Status:       models.WithdrawalFailed,
	})
	logrus.WithFields(logrus.Fields{
		"withdrawal_id": withdrawal.ID,
	}).WithError(cause).Warn("withdrawal failed, credits restored")
	return cause
}

// WithdrawFees sweeps accumulated platform fees from the per-currency fee
// address to an external wallet through the same signing pipeline.
func (s *WithdrawalService) WithdrawFees(ctx context.Context, currency, destinationAddress string, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", ErrInvalidAmount
	}
	if err := validator.ValidateAddress(currency, destinationAddress); err != nil {
		return "", err
	}
	feeAddress, err := s.fees.GetByCurrency(ctx, currency)
	if err != nil {
		return "", err
	}
	if feeAddress == nil {
		return "", ErrNotFound
	}

	feeTxID := uuid.NewString()
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := s.fees.DebitBalance(ctx, tx, currency, amount)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientFunds
		}
		return s.fees.InsertFeeTransaction(ctx, tx, models.AdminFeeTransaction{
			ID:       feeTxID,
			Currency: currency,
			Type:     "withdrawal",
			Amount:   amount,
			Status:   models.WithdrawalProcessing,
		})
	})
	if err != nil {
		return "", err
	}

	key, err := s.vault.DecryptKey(feeAddress.EncryptedPrivateKey)
	if err != nil {
		return "", s.failFeeWithdrawal(ctx, feeTxID, currency, amount, err)
	}
	skeleton, err := s.chain.NewTransaction(ctx, currency, feeAddress.Address, destinationAddress, money.ToSmallestUnit(amount))
	if err != nil {
		return "", s.failFeeWithdrawal(ctx, feeTxID, currency, amount, err)
	}
	txHash, err := s.chain.Send(ctx, currency, skeleton, key)
	if err != nil {
		return "", s.failFeeWithdrawal(ctx, feeTxID, currency, amount, err)
	}

	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.fees.MarkFeeTransaction(ctx, tx, feeTxID, txHash, models.WithdrawalCompleted)
	})
	if err != nil {
		return "", err
	}
	logrus.WithFields(logrus.Fields{
		"currency": currency,
		"tx_hash":  txHash,
	}).Info("fee withdrawal completed")
	return txHash, nil
}

func (s *WithdrawalService) failFeeWithdrawal(ctx context.Context, feeTxID, currency string, amount decimal.Decimal, cause error) error {
	if isBroadcastRejection(cause) {
		metrics.BroadcastFailures.Inc()
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.fees.MarkFeeTransaction(ctx, tx, feeTxID, "", models.WithdrawalFailed); err != nil {
			return err
		}
		return s.fees.CreditBalance(ctx, tx, currency, amount)
	})
	if err != nil {
		logrus.WithField("fee_tx_id", feeTxID).WithError(err).Error("fee withdrawal could not be compensated")
		return err
	}
	logrus.WithField("fee_tx_id", feeTxID).WithError(cause).Warn("fee withdrawal failed, balance restored")
	return cause
}

func (s *WithdrawalService) pushCreditsBalance(ctx context.Context, userID string) {
	balance, err := s.wallets.Get(ctx, userID)
	if err != nil {
		return
	}
	s.hub.BroadcastBalance(userID, websocket.BalanceUpdate{
		Currency: "credits",
		Balance:  decimal.New(balance.BalanceCredits, 0).String(),
	})
}

func isBroadcastRejection(err error) bool {
	var broadcastErr *chain.BroadcastError
	return errors.As(err, &broadcastErr)
}
