package handlers

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"settlement/internal/models"
	"settlement/internal/prices"
	"settlement/internal/services"
)

type WalletStore interface {
	Ensure(ctx context.Context, userID string) (models.WalletBalance, error)
}

type EscrowStore interface {
	GetByOrder(ctx context.Context, orderID string) ([]models.EscrowHolding, error)
}

type AuditStore interface {
	ListByOrder(ctx context.Context, orderID string) ([]models.EscrowAuditEntry, error)
}

type WithdrawalStore interface {
	Get(ctx context.Context, id string) (*models.CreditWithdrawal, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.CreditWithdrawal, error)
}

type FeeStore interface {
	GetByCurrency(ctx context.Context, currency string) (*models.AdminFeeAddress, error)
	ListFeeTransactions(ctx context.Context, currency string, limit int) ([]models.AdminFeeTransaction, error)
}

type DepositStore interface {
	Get(ctx context.Context, id string) (*models.DepositRequest, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.DepositRequest, error)
}

type TransactionStore interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Transaction, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

type AddressVault interface {
	GenerateAddress(ctx context.Context, ownerID, currency string) (models.UserAddress, error)
	EnsureFeeAddress(ctx context.Context, currency string) (models.AdminFeeAddress, error)
}

type EscrowService interface {
	Hold(ctx context.Context, req services.HoldRequest) (string, error)
	Release(ctx context.Context, orderID, actor string, isAutoRelease bool) error
	Refund(ctx context.Context, orderID, reason, actor string) error
	ReleaseExpired(ctx context.Context, window time.Duration) (int, error)
}

type WithdrawalService interface {
	RequestWithdrawal(ctx context.Context, userID string, amountCredits int64, currency, destinationAddress string) (*models.CreditWithdrawal, error)
	WithdrawFees(ctx context.Context, currency, destinationAddress string, amount decimal.Decimal) (string, error)
}

type DepositService interface {
	CreateDepositRequest(ctx context.Context, userID, currency string, amount decimal.Decimal, txHash string) (*models.DepositRequest, error)
	ConfirmDeposit(ctx context.Context, depositRequestID string) error
}

type PriceOracle interface {
	Snapshot() prices.Snapshot
}
