package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"settlement/internal/db"
	"settlement/internal/metrics"
	"settlement/internal/middleware"
	"settlement/internal/models"
	"settlement/internal/money"
	"settlement/internal/store"
	"settlement/internal/validator"
	"settlement/internal/websocket"
)

// ActorSystem marks transitions performed by the auto-release scheduler
// rather than a person.
const ActorSystem = "system"

type WalletStore interface {
	Ensure(ctx context.Context, userID string) (models.WalletBalance, error)
	Get(ctx context.Context, userID string) (models.WalletBalance, error)
	DebitCredits(ctx context.Context, tx store.Execer, userID string, amount int64) (int64, error)
	CreditCredits(ctx context.Context, tx store.Execer, userID string, amount int64) error
	CreditCrypto(ctx context.Context, tx store.Execer, userID, currency string, amount decimal.Decimal, countDeposit bool) error
}

type EscrowStore interface {
	Create(ctx context.Context, tx store.Execer, input store.EscrowHoldingInput) error
	GetHeldByOrderForUpdate(ctx context.Context, tx store.Selecter, orderID string) ([]models.EscrowHolding, error)
	GetByOrder(ctx context.Context, orderID string) ([]models.EscrowHolding, error)
	MarkReleased(ctx context.Context, tx store.Execer, holdingID string, releasedAt time.Time, buyerConfirmedAt *time.Time) (int64, error)
	MarkRefunded(ctx context.Context, tx store.Execer, holdingID string, refundedAt time.Time) (int64, error)
	ListHeldOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
}

type FeeStore interface {
	CreditBalance(ctx context.Context, tx store.Execer, currency string, amount decimal.Decimal) error
}

type TransactionStore interface {
	Insert(ctx context.Context, tx store.Execer, t models.Transaction) error
	CompletePendingSale(ctx context.Context, tx store.Execer, orderID, sellerID string) error
	CancelPendingSale(ctx context.Context, tx store.Execer, orderID, sellerID string) error
}

type AuditStore interface {
	Append(ctx context.Context, tx store.Execer, input store.AuditEntryInput) error
}

type OrderStore interface {
	Get(ctx context.Context, id string) (*models.Order, error)
	SetEscrowStatus(ctx context.Context, tx store.Execer, id, escrowStatus string) error
	SetPaymentStatus(ctx context.Context, tx store.Execer, id, paymentStatus string) error
}

type AdminRoleStore interface {
	HasRole(ctx context.Context, userID, role string) (bool, error)
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
}

type BalanceHub interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
}

type RateSource interface {
	Rate(currency string) (decimal.Decimal, error)
}

// EscrowService is the state machine over escrow holdings. Every transition
// runs inside one serializable transaction: balance credits, the holding's
// terminal flip, the audit row and the order stamp commit together or not
// at all.
type EscrowService struct {
	txRunner     db.TxRunner
	wallets      WalletStore
	escrow       EscrowStore
	fees         FeeStore
	transactions TransactionStore
	audit        AuditStore
	orders       OrderStore
	admins       AdminRoleStore
	oracle       RateSource
	hub          BalanceHub
	feeRate      decimal.Decimal
}

func NewEscrowService(txRunner db.TxRunner, wallets WalletStore, escrow EscrowStore, fees FeeStore, transactions TransactionStore, audit AuditStore, orders OrderStore, admins AdminRoleStore, oracle RateSource, hub BalanceHub, feeRate decimal.Decimal) *EscrowService {
	return &EscrowService{
		txRunner:     txRunner,
		wallets:      wallets,
		escrow:       escrow,
		fees:         fees,
		transactions: transactions,
		audit:        audit,
		orders:       orders,
		admins:       admins,
		oracle:       oracle,
		hub:          hub,
		feeRate:      feeRate,
	}
}

type HoldRequest struct {
	OrderID       string
	BuyerID       string
	AmountCredits int64
	Currency      string
}

// Hold funds an escrow holding out of the buyer's credit balance. The fee
// split is fixed at hold time so release and refund never recompute it
// against a moved price.
func (s *EscrowService) Hold(ctx context.Context, req HoldRequest) (string, error) {
	if req.AmountCredits <= 0 {
		return "", ErrInvalidAmount
	}
	if !validator.SupportedCurrency(req.Currency) {
		return "", validator.ErrUnsupportedCurrency
	}
	order, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return "", err
	}
	if order == nil {
		return "", ErrNotFound
	}
	if order.BuyerID != req.BuyerID {
		return "", ErrUnauthorized
	}
	if order.EscrowStatus == models.EscrowHeld || order.EscrowStatus == models.EscrowReleased {
		return "", ErrInvalidState
	}

	rate, err := s.oracle.Rate(req.Currency)
	if err != nil {
		return "", err
	}

	amountEUR := req.AmountCredits * 100
	totalCrypto := money.MinorToDecimal(amountEUR).DivRound(rate, money.CryptoPlaces)
	feeCrypto := totalCrypto.Mul(s.feeRate).Round(money.CryptoPlaces)
	sellerCrypto := totalCrypto.Sub(feeCrypto)
	feeEUR := decimal.New(amountEUR, 0).Mul(s.feeRate).Round(0).IntPart()
	sellerEUR := amountEUR - feeEUR

	holdingID := uuid.NewString()
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := s.wallets.DebitCredits(ctx, tx, req.BuyerID, req.AmountCredits)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrInsufficientFunds
		}
		if err := s.escrow.Create(ctx, tx, store.EscrowHoldingInput{
			ID:                 holdingID,
			OrderID:            req.OrderID,
			BuyerID:            order.BuyerID,
			SellerID:           order.SellerID,
			Currency:           req.Currency,
			AmountCrypto:       totalCrypto.String(),
			AmountEUR:          amountEUR,
			SellerAmountCrypto: sellerCrypto.String(),
			SellerAmountEUR:    sellerEUR,
			FeeAmountCrypto:    feeCrypto.String(),
			FeeAmountEUR:       feeEUR,
		}); err != nil {
			// Two concurrent holds race on the one-held-per-(order, currency)
			// unique index; the loser must not keep the buyer's debit.
			if db.IsUniqueViolation(err) {
				return ErrInvalidState
			}
			return err
		}
		pendingSale := models.Transaction{
			ID:           uuid.NewString(),
			UserID:       order.SellerID,
			OrderID:      &req.OrderID,
			Type:         "sale",
			Status:       models.TransactionPending,
			AmountCrypto: sellerCrypto,
			Currency:     req.Currency,
		}
		if err := s.transactions.Insert(ctx, tx, pendingSale); err != nil {
			return err
		}
		if err := s.audit.Append(ctx, tx, store.AuditEntryInput{
			ID:             uuid.NewString(),
			HoldingID:      holdingID,
			OrderID:        req.OrderID,
			Action:         "hold",
			Actor:          req.BuyerID,
			PreviousStatus: "",
			NewStatus:      models.EscrowHeld,
			AmountCrypto:   totalCrypto,
			Currency:       req.Currency,
			Metadata:       mustMetadata(map[string]string{"rate_eur": rate.String()}),
		}); err != nil {
			return err
		}
		if err := s.orders.SetEscrowStatus(ctx, tx, req.OrderID, models.EscrowHeld); err != nil {
			return err
		}
		return s.orders.SetPaymentStatus(ctx, tx, req.OrderID, "paid")
	})
	if err != nil {
		return "", err
	}

	s.pushCreditsBalance(ctx, req.BuyerID)
	logrus.WithFields(logrus.Fields{
		"order_id":   req.OrderID,
		"holding_id": holdingID,
		"currency":   req.Currency,
	}).Info("escrow held")
	return holdingID, nil
}

// Release pays the seller their share and the platform its fee, then flips
// every held holding for the order to released. Only the order's buyer may
// trigger it manually; the scheduler passes isAutoRelease.
func (s *EscrowService) Release(ctx context.Context, orderID, actor string, isAutoRelease bool) error {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrNotFound
	}
	if !isAutoRelease && actor != order.BuyerID {
		return ErrUnauthorized
	}

	sellers := map[string]struct{}{}
	now := time.Now().UTC()
	var buyerConfirmedAt *time.Time
	if !isAutoRelease {
		buyerConfirmedAt = &now
	}

	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		holdings, err := s.escrow.GetHeldByOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if len(holdings) == 0 {
			return s.heldStateError(ctx, orderID)
		}
		for _, holding := range holdings {
			if err := s.wallets.CreditCrypto(ctx, tx, holding.SellerID, holding.Currency, holding.SellerAmountCrypto, false); err != nil {
				return err
			}
			if err := s.fees.CreditBalance(ctx, tx, holding.Currency, holding.FeeAmountCrypto); err != nil {
				return err
			}
			if err := s.transactions.CompletePendingSale(ctx, tx, orderID, holding.SellerID); err != nil {
				return err
			}
			rows, err := s.escrow.MarkReleased(ctx, tx, holding.ID, now, buyerConfirmedAt)
			if err != nil {
				return err
			}
			if rows != 1 {
				return ErrInvalidState
			}
			if err := s.audit.Append(ctx, tx, store.AuditEntryInput{
				ID:             uuid.NewString(),
				HoldingID:      holding.ID,
				OrderID:        orderID,
				Action:         releaseAction(isAutoRelease),
				Actor:          actor,
				PreviousStatus: models.EscrowHeld,
				NewStatus:      models.EscrowReleased,
				AmountCrypto:   holding.AmountCrypto,
				Currency:       holding.Currency,
				Metadata: mustMetadata(map[string]string{
					"seller_amount": holding.SellerAmountCrypto.String(),
					"fee_amount":    holding.FeeAmountCrypto.String(),
				}),
			}); err != nil {
				return err
			}
			sellers[holding.SellerID] = struct{}{}
		}
		if err := s.orders.SetEscrowStatus(ctx, tx, orderID, models.EscrowReleased); err != nil {
			return err
		}
		return s.orders.SetPaymentStatus(ctx, tx, orderID, models.EscrowReleased)
	})
	if err != nil {
		return err
	}

	metrics.EscrowReleases.WithLabelValues(releaseAction(isAutoRelease)).Inc()
	for sellerID := range sellers {
		s.pushCryptoBalances(ctx, sellerID)
	}
	logrus.WithFields(logrus.Fields{
		"order_id": orderID,
		"actor":    actor,
		"auto":     isAutoRelease,
	}).Info("escrow released")
	return nil
}

// Refund returns the full held amount to the buyer, fee included, and
// cancels the seller's pending sale. Administrative operation.
func (s *EscrowService) Refund(ctx context.Context, orderID, reason, actor string) error {
	if err := s.requireEscrowAdmin(ctx, actor); err != nil {
		return err
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrNotFound
	}

	buyers := map[string]struct{}{}
	now := time.Now().UTC()

	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		holdings, err := s.escrow.GetHeldByOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if len(holdings) == 0 {
			return s.heldStateError(ctx, orderID)
		}
		for _, holding := range holdings {
			if err := s.wallets.CreditCrypto(ctx, tx, holding.BuyerID, holding.Currency, holding.AmountCrypto, false); err != nil {
				return err
			}
			if err := s.transactions.CancelPendingSale(ctx, tx, orderID, holding.SellerID); err != nil {
				return err
			}
			refund := models.Transaction{
				ID:           uuid.NewString(),
				UserID:       holding.BuyerID,
				OrderID:      &orderID,
				Type:         "refund",
				Status:       models.TransactionCompleted,
				AmountCrypto: holding.AmountCrypto,
				Currency:     holding.Currency,
			}
			if err := s.transactions.Insert(ctx, tx, refund); err != nil {
				return err
			}
			rows, err := s.escrow.MarkRefunded(ctx, tx, holding.ID, now)
			if err != nil {
				return err
			}
			if rows != 1 {
				return ErrInvalidState
			}
			if err := s.audit.Append(ctx, tx, store.AuditEntryInput{
				ID:             uuid.NewString(),
				HoldingID:      holding.ID,
				OrderID:        orderID,
				Action:         "refund",
				Actor:          actor,
				PreviousStatus: models.EscrowHeld,
				NewStatus:      models.EscrowRefunded,
				AmountCrypto:   holding.AmountCrypto,
				Currency:       holding.Currency,
				Metadata:       mustMetadata(map[string]string{"reason": reason}),
			}); err != nil {
				return err
			}
			buyers[holding.BuyerID] = struct{}{}
		}
		if err := s.orders.SetEscrowStatus(ctx, tx, orderID, models.EscrowRefunded); err != nil {
			return err
		}
		return s.orders.SetPaymentStatus(ctx, tx, orderID, models.EscrowRefunded)
	})
	if err != nil {
		return err
	}

	metrics.EscrowRefunds.Inc()
	for buyerID := range buyers {
		s.pushCryptoBalances(ctx, buyerID)
	}
	logrus.WithFields(logrus.Fields{
		"order_id": orderID,
		"actor":    actor,
		"reason":   reason,
	}).Info("escrow refunded")
	return nil
}

// ReleaseExpired auto-releases every order whose held holdings are older
// than the inspection window. Per-order failures are logged and skipped so
// one bad order cannot wedge the sweep.
func (s *EscrowService) ReleaseExpired(ctx context.Context, window time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-window)
	orderIDs, err := s.escrow.ListHeldOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, orderID := range orderIDs {
		if err := s.Release(ctx, orderID, ActorSystem, true); err != nil {
			logrus.WithField("order_id", orderID).WithError(err).Warn("auto release failed")
			continue
		}
		released++
	}
	return released, nil
}

// heldStateError distinguishes "order never had escrow" from "escrow already
// settled" for callers acting on a non-held order.
func (s *EscrowService) heldStateError(ctx context.Context, orderID string) error {
	existing, err := s.escrow.GetByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return ErrInvalidState
	}
	return ErrNotFound
}

func (s *EscrowService) requireEscrowAdmin(ctx context.Context, actor string) error {
	isAdmin, isSuper, err := s.admins.IsAdmin(ctx, actor)
	if err != nil {
		return err
	}
	if !isAdmin {
		return ErrUnauthorized
	}
	if isSuper {
		return nil
	}
	hasRole, err := s.admins.HasRole(ctx, actor, middleware.RoleManageEscrow)
	if err != nil {
		return err
	}
	if !hasRole {
		return ErrUnauthorized
	}
	return nil
}

func (s *EscrowService) pushCreditsBalance(ctx context.Context, userID string) {
	balance, err := s.wallets.Get(ctx, userID)
	if err != nil {
		return
	}
	s.hub.BroadcastBalance(userID, websocket.BalanceUpdate{
		Currency: "credits",
		Balance:  decimal.New(balance.BalanceCredits, 0).String(),
	})
}

func (s *EscrowService) pushCryptoBalances(ctx context.Context, userID string) {
	balance, err := s.wallets.Get(ctx, userID)
	if err != nil {
		return
	}
	s.hub.BroadcastBalance(userID, websocket.BalanceUpdate{
		Currency: models.CurrencyBTC,
		Balance:  balance.BalanceBTC.String(),
	})
	s.hub.BroadcastBalance(userID, websocket.BalanceUpdate{
		Currency: models.CurrencyLTC,
		Balance:  balance.BalanceLTC.String(),
	})
}

func releaseAction(isAutoRelease bool) string {
	if isAutoRelease {
		return "auto_release"
	}
	return "release"
}

func mustMetadata(fields map[string]string) string {
	payload, err := json.Marshal(fields)
	if err != nil {
		return "{}"
	}
	return string(payload)
}
