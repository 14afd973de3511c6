package services

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"settlement/internal/chain"
	"settlement/internal/keyvault"
	"settlement/internal/models"
	"settlement/internal/store"
	"settlement/internal/websocket"
)

type fakeTxRunner struct {
	err  error
	runs int
}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	f.runs++
	return fn(nil)
}

type stubWalletStore struct {
	ensureFn        func(ctx context.Context, userID string) (models.WalletBalance, error)
	getFn           func(ctx context.Context, userID string) (models.WalletBalance, error)
	debitCreditsFn  func(ctx context.Context, tx store.Execer, userID string, amount int64) (int64, error)
	creditCreditsFn func(ctx context.Context, tx store.Execer, userID string, amount int64) error
	creditCryptoFn  func(ctx context.Context, tx store.Execer, userID, currency string, amount decimal.Decimal, countDeposit bool) error
}

func (s stubWalletStore) Ensure(ctx context.Context, userID string) (models.WalletBalance, error) {
	if s.ensureFn == nil {
		return models.WalletBalance{UserID: userID}, nil
	}
	return s.ensureFn(ctx, userID)
}

func (s stubWalletStore) Get(ctx context.Context, userID string) (models.WalletBalance, error) {
	if s.getFn == nil {
		return models.WalletBalance{UserID: userID}, nil
	}
	return s.getFn(ctx, userID)
}

func (s stubWalletStore) DebitCredits(ctx context.Context, tx store.Execer, userID string, amount int64) (int64, error) {
	if s.debitCreditsFn == nil {
		return 1, nil
	}
	return s.debitCreditsFn(ctx, tx, userID, amount)
}

func (s stubWalletStore) CreditCredits(ctx context.Context, tx store.Execer, userID string, amount int64) error {
	if s.creditCreditsFn == nil {
		return nil
	}
	return s.creditCreditsFn(ctx, tx, userID, amount)
}

func (s stubWalletStore) CreditCrypto(ctx context.Context, tx store.Execer, userID, currency string, amount decimal.Decimal, countDeposit bool) error {
	if s.creditCryptoFn == nil {
		return nil
	}
	return s.creditCryptoFn(ctx, tx, userID, currency, amount, countDeposit)
}

type stubEscrowStore struct {
	createFn       func(ctx context.Context, tx store.Execer, input store.EscrowHoldingInput) error
	getHeldFn      func(ctx context.Context, tx store.Selecter, orderID string) ([]models.EscrowHolding, error)
	getByOrderFn   func(ctx context.Context, orderID string) ([]models.EscrowHolding, error)
	markReleasedFn func(ctx context.Context, tx store.Execer, holdingID string, releasedAt time.Time, buyerConfirmedAt *time.Time) (int64, error)
	markRefundedFn func(ctx context.Context, tx store.Execer, holdingID string, refundedAt time.Time) (int64, error)
	listHeldFn     func(ctx context.Context, cutoff time.Time) ([]string, error)
}

func (s stubEscrowStore) Create(ctx context.Context, tx store.Execer, input store.EscrowHoldingInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubEscrowStore) GetHeldByOrderForUpdate(ctx context.Context, tx store.Selecter, orderID string) ([]models.EscrowHolding, error) {
	if s.getHeldFn == nil {
		return nil, nil
	}
	return s.getHeldFn(ctx, tx, orderID)
}

func (s stubEscrowStore) GetByOrder(ctx context.Context, orderID string) ([]models.EscrowHolding, error) {
	if s.getByOrderFn == nil {
		return nil, nil
	}
	return s.getByOrderFn(ctx, orderID)
}

func (s stubEscrowStore) MarkReleased(ctx context.Context, tx store.Execer, holdingID string, releasedAt time.Time, buyerConfirmedAt *time.Time) (int64, error) {
	if s.markReleasedFn == nil {
		return 1, nil
	}
	return s.markReleasedFn(ctx, tx, holdingID, releasedAt, buyerConfirmedAt)
}

func (s stubEscrowStore) MarkRefunded(ctx context.Context, tx store.Execer, holdingID string, refundedAt time.Time) (int64, error) {
	if s.markRefundedFn == nil {
		return 1, nil
	}
	return s.markRefundedFn(ctx, tx, holdingID, refundedAt)
}

func (s stubEscrowStore) ListHeldOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	if s.listHeldFn == nil {
		return nil, nil
	}
	return s.listHeldFn(ctx, cutoff)
}

type stubFeeStore struct {
	getByCurrencyFn func(ctx context.Context, currency string) (*models.AdminFeeAddress, error)
	creditFn        func(ctx context.Context, tx store.Execer, currency string, amount decimal.Decimal) error
	debitFn         func(ctx context.Context, tx store.Execer, currency string, amount decimal.Decimal) (bool, error)
	insertFn        func(ctx context.Context, tx store.Execer, t models.AdminFeeTransaction) error
	markFn          func(ctx context.Context, tx store.Execer, id, txHash, status string) error
}

func (s stubFeeStore) GetByCurrency(ctx context.Context, currency string) (*models.AdminFeeAddress, error) {
	if s.getByCurrencyFn == nil {
		return &models.AdminFeeAddress{Currency: currency}, nil
	}
	return s.getByCurrencyFn(ctx, currency)
}

func (s stubFeeStore) CreditBalance(ctx context.Context, tx store.Execer, currency string, amount decimal.Decimal) error {
	if s.creditFn == nil {
		return nil
	}
	return s.creditFn(ctx, tx, currency, amount)
}

func (s stubFeeStore) DebitBalance(ctx context.Context, tx store.Execer, currency string, amount decimal.Decimal) (bool, error) {
	if s.debitFn == nil {
		return true, nil
	}
	return s.debitFn(ctx, tx, currency, amount)
}

func (s stubFeeStore) InsertFeeTransaction(ctx context.Context, tx store.Execer, t models.AdminFeeTransaction) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, tx, t)
}

func (s stubFeeStore) MarkFeeTransaction(ctx context.Context, tx store.Execer, id, txHash, status string) error {
	if s.markFn == nil {
		return nil
	}
	return s.markFn(ctx, tx, id, txHash, status)
}

type stubTransactionStore struct {
	insertFn   func(ctx context.Context, tx store.Execer, t models.Transaction) error
	completeFn func(ctx context.Context, tx store.Execer, orderID, sellerID string) error
	cancelFn   func(ctx context.Context, tx store.Execer, orderID, sellerID string) error
	existsFn   func(ctx context.Context, tx store.Getter, txHash, userID string) (bool, error)
}

func (s stubTransactionStore) Insert(ctx context.Context, tx store.Execer, t models.Transaction) error {
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, tx, t)
}

func (s stubTransactionStore) CompletePendingSale(ctx context.Context, tx store.Execer, orderID, sellerID string) error {
	if s.completeFn == nil {
		return nil
	}
	return s.completeFn(ctx, tx, orderID, sellerID)
}

func (s stubTransactionStore) CancelPendingSale(ctx context.Context, tx store.Execer, orderID, sellerID string) error {
	if s.cancelFn == nil {
		return nil
	}
	return s.cancelFn(ctx, tx, orderID, sellerID)
}

func (s stubTransactionStore) ExistsByTxHash(ctx context.Context, tx store.Getter, txHash, userID string) (bool, error) {
	if s.existsFn == nil {
		return false, nil
	}
	return s.existsFn(ctx, tx, txHash, userID)
}

type stubAuditStore struct {
	appendFn func(ctx context.Context, tx store.Execer, input store.AuditEntryInput) error
}

func (s stubAuditStore) Append(ctx context.Context, tx store.Execer, input store.AuditEntryInput) error {
	if s.appendFn == nil {
		return nil
	}
	return s.appendFn(ctx, tx, input)
}

type stubOrderStore struct {
	getFn              func(ctx context.Context, id string) (*models.Order, error)
	setEscrowStatusFn  func(ctx context.Context, tx store.Execer, id, escrowStatus string) error
	setPaymentStatusFn func(ctx context.Context, tx store.Execer, id, paymentStatus string) error
}

func (s stubOrderStore) Get(ctx context.Context, id string) (*models.Order, error) {
	if s.getFn == nil {
		return &models.Order{ID: id}, nil
	}
	return s.getFn(ctx, id)
}

func (s stubOrderStore) SetEscrowStatus(ctx context.Context, tx store.Execer, id, escrowStatus string) error {
	if s.setEscrowStatusFn == nil {
		return nil
	}
	return s.setEscrowStatusFn(ctx, tx, id, escrowStatus)
}

func (s stubOrderStore) SetPaymentStatus(ctx context.Context, tx store.Execer, id, paymentStatus string) error {
	if s.setPaymentStatusFn == nil {
		return nil
	}
	return s.setPaymentStatusFn(ctx, tx, id, paymentStatus)
}

type stubAdminStore struct {
	isAdminFn func(ctx context.Context, userID string) (bool, bool, error)
	hasRoleFn func(ctx context.Context, userID, role string) (bool, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	if s.isAdminFn == nil {
		return true, true, nil
	}
	return s.isAdminFn(ctx, userID)
}

func (s stubAdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	if s.hasRoleFn == nil {
		return true, nil
	}
	return s.hasRoleFn(ctx, userID, role)
}

type stubRateSource struct {
	rateFn func(currency string) (decimal.Decimal, error)
}

func (s stubRateSource) Rate(currency string) (decimal.Decimal, error) {
	if s.rateFn == nil {
		return decimal.RequireFromString("50000"), nil
	}
	return s.rateFn(currency)
}

type recordingHub struct {
	balances    []websocket.BalanceUpdate
	withdrawals []websocket.WithdrawalUpdate
}

func (h *recordingHub) BroadcastBalance(userID string, update websocket.BalanceUpdate) {
	h.balances = append(h.balances, update)
}

func (h *recordingHub) BroadcastWithdrawal(userID string, update websocket.WithdrawalUpdate) {
	h.withdrawals = append(h.withdrawals, update)
}

type stubWithdrawalStore struct {
	createFn       func(ctx context.Context, tx store.Execer, w models.CreditWithdrawal) error
	getFn          func(ctx context.Context, id string) (*models.CreditWithdrawal, error)
	updateStatusFn func(ctx context.Context, tx store.Execer, id, from, to string) (bool, error)
	completeFn     func(ctx context.Context, tx store.Execer, id, txHash string) (bool, error)
	failFn         func(ctx context.Context, tx store.Execer, id, reason string) (bool, error)
	listFn         func(ctx context.Context, userID string, limit int) ([]models.CreditWithdrawal, error)
	insertCtFn     func(ctx context.Context, tx store.Execer, t models.CreditTransaction) error
}

func (s stubWithdrawalStore) Create(ctx context.Context, tx store.Execer, w models.CreditWithdrawal) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, w)
}

func (s stubWithdrawalStore) Get(ctx context.Context, id string) (*models.CreditWithdrawal, error) {
	if s.getFn == nil {
		return &models.CreditWithdrawal{ID: id}, nil
	}
	return s.getFn(ctx, id)
}

func (s stubWithdrawalStore) UpdateStatus(ctx context.Context, tx store.Execer, id, from, to string) (bool, error) {
	if s.updateStatusFn == nil {
		return true, nil
	}
	return s.updateStatusFn(ctx, tx, id, from, to)
}

func (s stubWithdrawalStore) MarkCompleted(ctx context.Context, tx store.Execer, id, txHash string) (bool, error) {
	if s.completeFn == nil {
		return true, nil
	}
	return s.completeFn(ctx, tx, id, txHash)
}

func (s stubWithdrawalStore) MarkFailed(ctx context.Context, tx store.Execer, id, reason string) (bool, error) {
	if s.failFn == nil {
		return true, nil
	}
	return s.failFn(ctx, tx, id, reason)
}

func (s stubWithdrawalStore) ListByUser(ctx context.Context, userID string, limit int) ([]models.CreditWithdrawal, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, userID, limit)
}

func (s stubWithdrawalStore) InsertCreditTransaction(ctx context.Context, tx store.Execer, t models.CreditTransaction) error {
	if s.insertCtFn == nil {
		return nil
	}
	return s.insertCtFn(ctx, tx, t)
}

type stubUserAddressStore struct {
	getActiveFn func(ctx context.Context, ownerID, currency string) (models.UserAddress, error)
}

func (s stubUserAddressStore) GetActive(ctx context.Context, ownerID, currency string) (models.UserAddress, error) {
	if s.getActiveFn == nil {
		return models.UserAddress{UserID: ownerID, Currency: currency, Address: "1SourceAddr"}, nil
	}
	return s.getActiveFn(ctx, ownerID, currency)
}

type stubKeyVault struct {
	decryptFn func(encrypted string) (keyvault.PrivateKey, error)
}

func (s stubKeyVault) DecryptKey(encrypted string) (keyvault.PrivateKey, error) {
	if s.decryptFn == nil {
		return keyvault.PrivateKey{}, nil
	}
	return s.decryptFn(encrypted)
}

type stubChainClient struct {
	newTxFn func(ctx context.Context, currency, from, to string, amountUnits int64) (*chain.TxSkeleton, error)
	sendFn  func(ctx context.Context, currency string, skeleton *chain.TxSkeleton, key keyvault.PrivateKey) (string, error)
}

func (s stubChainClient) NewTransaction(ctx context.Context, currency, from, to string, amountUnits int64) (*chain.TxSkeleton, error) {
	if s.newTxFn == nil {
		return &chain.TxSkeleton{ToSign: []string{"aa"}}, nil
	}
	return s.newTxFn(ctx, currency, from, to, amountUnits)
}

func (s stubChainClient) Send(ctx context.Context, currency string, skeleton *chain.TxSkeleton, key keyvault.PrivateKey) (string, error) {
	if s.sendFn == nil {
		return "deadbeef", nil
	}
	return s.sendFn(ctx, currency, skeleton, key)
}

type stubDepositStore struct {
	createFn       func(ctx context.Context, tx store.Execer, d models.DepositRequest) error
	getFn          func(ctx context.Context, id string) (*models.DepositRequest, error)
	getForUpdateFn func(ctx context.Context, tx store.Getter, id string) (*models.DepositRequest, error)
	getByTxHashFn  func(ctx context.Context, tx store.Getter, txHash, userID string) (*models.DepositRequest, error)
	confirmFn      func(ctx context.Context, tx store.Execer, id string) (bool, error)
	completeFn     func(ctx context.Context, tx store.Execer, id string) (bool, error)
}

func (s stubDepositStore) Create(ctx context.Context, tx store.Execer, d models.DepositRequest) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, d)
}

func (s stubDepositStore) GetByTxHash(ctx context.Context, tx store.Getter, txHash, userID string) (*models.DepositRequest, error) {
	if s.getByTxHashFn == nil {
		return nil, nil
	}
	return s.getByTxHashFn(ctx, tx, txHash, userID)
}

func (s stubDepositStore) Get(ctx context.Context, id string) (*models.DepositRequest, error) {
	if s.getFn == nil {
		return nil, nil
	}
	return s.getFn(ctx, id)
}

func (s stubDepositStore) GetForUpdate(ctx context.Context, tx store.Getter, id string) (*models.DepositRequest, error) {
	if s.getForUpdateFn == nil {
		return nil, nil
	}
	return s.getForUpdateFn(ctx, tx, id)
}

func (s stubDepositStore) MarkConfirmed(ctx context.Context, tx store.Execer, id string) (bool, error) {
	if s.confirmFn == nil {
		return true, nil
	}
	return s.confirmFn(ctx, tx, id)
}

func (s stubDepositStore) MarkCompleted(ctx context.Context, tx store.Execer, id string) (bool, error) {
	if s.completeFn == nil {
		return true, nil
	}
	return s.completeFn(ctx, tx, id)
}
