package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CurrencyBTC = "BTC"
	CurrencyLTC = "LTC"
)

// Escrow holding lifecycle. Held is the only non-terminal state.
const (
	EscrowHeld     = "held"
	EscrowReleased = "released"
	EscrowRefunded = "refunded"
)

const (
	WithdrawalPending    = "pending"
	WithdrawalProcessing = "processing"
	WithdrawalCompleted  = "completed"
	WithdrawalFailed     = "failed"
)

const (
	DepositPending   = "pending"
	DepositConfirmed = "confirmed"
	DepositCompleted = "completed"
)

const (
	TransactionPending   = "pending"
	TransactionCompleted = "completed"
	TransactionCancelled = "cancelled"
)

type WalletBalance struct {
	UserID            string          `db:"user_id" json:"user_id"`
	BalanceEUR        int64           `db:"balance_eur" json:"balance_eur"`
	BalanceCredits    int64           `db:"balance_credits" json:"balance_credits"`
	BalanceBTC        decimal.Decimal `db:"balance_btc" json:"balance_btc"`
	BalanceLTC        decimal.Decimal `db:"balance_ltc" json:"balance_ltc"`
	TotalDepositedBTC decimal.Decimal `db:"total_deposited_btc" json:"total_deposited_btc"`
	TotalDepositedLTC decimal.Decimal `db:"total_deposited_ltc" json:"total_deposited_ltc"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

type EscrowHolding struct {
	ID                 string          `db:"id" json:"id"`
	OrderID            string          `db:"order_id" json:"order_id"`
	BuyerID            string          `db:"buyer_id" json:"buyer_id"`
	SellerID           string          `db:"seller_id" json:"seller_id"`
	Currency           string          `db:"currency" json:"currency"`
	AmountCrypto       decimal.Decimal `db:"amount_crypto" json:"amount_crypto"`
	AmountEUR          int64           `db:"amount_eur" json:"amount_eur"`
	SellerAmountCrypto decimal.Decimal `db:"seller_amount_crypto" json:"seller_amount_crypto"`
	SellerAmountEUR    int64           `db:"seller_amount_eur" json:"seller_amount_eur"`
	FeeAmountCrypto    decimal.Decimal `db:"fee_amount_crypto" json:"fee_amount_crypto"`
	FeeAmountEUR       int64           `db:"fee_amount_eur" json:"fee_amount_eur"`
	Status             string          `db:"status" json:"status"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	ReleasedAt         *time.Time      `db:"released_at" json:"released_at,omitempty"`
	RefundedAt         *time.Time      `db:"refunded_at" json:"refunded_at,omitempty"`
	BuyerConfirmedAt   *time.Time      `db:"buyer_confirmed_at" json:"buyer_confirmed_at,omitempty"`
}

type EscrowAuditEntry struct {
	ID             string          `db:"id" json:"id"`
	HoldingID      string          `db:"holding_id" json:"holding_id"`
	OrderID        string          `db:"order_id" json:"order_id"`
	Action         string          `db:"action" json:"action"`
	Actor          string          `db:"actor" json:"actor"`
	PreviousStatus string          `db:"previous_status" json:"previous_status"`
	NewStatus      string          `db:"new_status" json:"new_status"`
	AmountCrypto   decimal.Decimal `db:"amount_crypto" json:"amount_crypto"`
	Currency       string          `db:"currency" json:"currency"`
	Metadata       string          `db:"metadata" json:"metadata"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

type AdminFeeAddress struct {
	Currency            string          `db:"currency" json:"currency"`
	Address             string          `db:"address" json:"address"`
	EncryptedPrivateKey string          `db:"encrypted_private_key" json:"-"`
	Balance             decimal.Decimal `db:"balance" json:"balance"`
	Active              bool            `db:"active" json:"active"`
}

type AdminFeeTransaction struct {
	ID        string          `db:"id" json:"id"`
	Currency  string          `db:"currency" json:"currency"`
	Type      string          `db:"type" json:"type"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	TxHash    *string         `db:"tx_hash" json:"tx_hash,omitempty"`
	Status    string          `db:"status" json:"status"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

type CreditWithdrawal struct {
	ID                 string          `db:"id" json:"id"`
	UserID             string          `db:"user_id" json:"user_id"`
	AmountCredits      int64           `db:"amount_credits" json:"amount_credits"`
	AmountEUR          int64           `db:"amount_eur" json:"amount_eur"`
	FeeEUR             int64           `db:"fee_eur" json:"fee_eur"`
	Currency           string          `db:"currency" json:"currency"`
	DestinationAddress string          `db:"destination_address" json:"destination_address"`
	AmountCrypto       decimal.Decimal `db:"amount_crypto" json:"amount_crypto"`
	Status             string          `db:"status" json:"status"`
	TxHash             *string         `db:"tx_hash" json:"tx_hash,omitempty"`
	FailureReason      *string         `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

type CreditTransaction struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	Type          string    `db:"type" json:"type"`
	AmountCredits int64     `db:"amount_credits" json:"amount_credits"`
	Description   string    `db:"description" json:"description"`
	ReferenceID   *string   `db:"reference_id" json:"reference_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Transaction is the buyer/seller-facing record of crypto value movement.
// The (tx_hash, user_id) pair is unique and backs deposit idempotence.
type Transaction struct {
	ID           string          `db:"id" json:"id"`
	UserID       string          `db:"user_id" json:"user_id"`
	OrderID      *string         `db:"order_id" json:"order_id,omitempty"`
	Type         string          `db:"type" json:"type"`
	Status       string          `db:"status" json:"status"`
	AmountCrypto decimal.Decimal `db:"amount_crypto" json:"amount_crypto"`
	Currency     string          `db:"currency" json:"currency"`
	TxHash       *string         `db:"tx_hash" json:"tx_hash,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

type UserAddress struct {
	ID                  string    `db:"id" json:"id"`
	UserID              string    `db:"user_id" json:"user_id"`
	Currency            string    `db:"currency" json:"currency"`
	Address             string    `db:"address" json:"address"`
	EncryptedPrivateKey string    `db:"encrypted_private_key" json:"-"`
	Active              bool      `db:"active" json:"active"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

type DepositRequest struct {
	ID          string          `db:"id" json:"id"`
	UserID      string          `db:"user_id" json:"user_id"`
	Currency    string          `db:"currency" json:"currency"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	TxHash      string          `db:"tx_hash" json:"tx_hash"`
	Status      string          `db:"status" json:"status"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	CompletedAt *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

type Order struct {
	ID            string    `db:"id" json:"id"`
	BuyerID       string    `db:"buyer_id" json:"buyer_id"`
	SellerID      string    `db:"seller_id" json:"seller_id"`
	PaymentStatus string    `db:"payment_status" json:"payment_status"`
	EscrowStatus  string    `db:"escrow_status" json:"escrow_status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
