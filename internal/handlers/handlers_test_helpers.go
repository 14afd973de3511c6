package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"settlement/internal/auth"
	"settlement/internal/config"
	"settlement/internal/models"
	"settlement/internal/prices"
	"settlement/internal/services"
	"settlement/internal/websocket"
)

const (
	testSecret    = "test-jwt-secret"
	testIPNSecret = "test-ipn-secret"
)

type stubWalletStore struct {
	ensureFn func(ctx context.Context, userID string) (models.WalletBalance, error)
}

func (s *stubWalletStore) Ensure(ctx context.Context, userID string) (models.WalletBalance, error) {
	if s.ensureFn != nil {
		return s.ensureFn(ctx, userID)
	}
	return models.WalletBalance{UserID: userID, BalanceCredits: 100}, nil
}

type stubEscrowStore struct {
	getByOrderFn func(ctx context.Context, orderID string) ([]models.EscrowHolding, error)
}

func (s *stubEscrowStore) GetByOrder(ctx context.Context, orderID string) ([]models.EscrowHolding, error) {
	if s.getByOrderFn != nil {
		return s.getByOrderFn(ctx, orderID)
	}
	return nil, nil
}

type stubAuditStore struct {
	listFn func(ctx context.Context, orderID string) ([]models.EscrowAuditEntry, error)
}

func (s *stubAuditStore) ListByOrder(ctx context.Context, orderID string) ([]models.EscrowAuditEntry, error) {
	if s.listFn != nil {
		return s.listFn(ctx, orderID)
	}
	return nil, nil
}

type stubWithdrawalStore struct {
	getFn  func(ctx context.Context, id string) (*models.CreditWithdrawal, error)
	listFn func(ctx context.Context, userID string, limit int) ([]models.CreditWithdrawal, error)
}

func (s *stubWithdrawalStore) Get(ctx context.Context, id string) (*models.CreditWithdrawal, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return nil, nil
}

func (s *stubWithdrawalStore) ListByUser(ctx context.Context, userID string, limit int) ([]models.CreditWithdrawal, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID, limit)
	}
	return nil, nil
}

type stubFeeStore struct {
	getFn  func(ctx context.Context, currency string) (*models.AdminFeeAddress, error)
	listFn func(ctx context.Context, currency string, limit int) ([]models.AdminFeeTransaction, error)
}

func (s *stubFeeStore) GetByCurrency(ctx context.Context, currency string) (*models.AdminFeeAddress, error) {
	if s.getFn != nil {
		return s.getFn(ctx, currency)
	}
	return nil, nil
}

func (s *stubFeeStore) ListFeeTransactions(ctx context.Context, currency string, limit int) ([]models.AdminFeeTransaction, error) {
	if s.listFn != nil {
		return s.listFn(ctx, currency, limit)
	}
	return nil, nil
}

type stubDepositStore struct {
	getFn  func(ctx context.Context, id string) (*models.DepositRequest, error)
	listFn func(ctx context.Context, userID string, limit int) ([]models.DepositRequest, error)
}

func (s *stubDepositStore) Get(ctx context.Context, id string) (*models.DepositRequest, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return nil, nil
}

func (s *stubDepositStore) ListByUser(ctx context.Context, userID string, limit int) ([]models.DepositRequest, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID, limit)
	}
	return nil, nil
}

type stubTransactionStore struct {
	listFn func(ctx context.Context, userID string, limit int) ([]models.Transaction, error)
}

func (s *stubTransactionStore) ListByUser(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID, limit)
	}
	return nil, nil
}

type stubAdminStore struct {
	isAdminFn func(ctx context.Context, userID string) (bool, bool, error)
	hasRoleFn func(ctx context.Context, userID, role string) (bool, error)
}

func (s *stubAdminStore) IsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	if s.isAdminFn != nil {
		return s.isAdminFn(ctx, userID)
	}
	return true, true, nil
}

func (s *stubAdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	if s.hasRoleFn != nil {
		return s.hasRoleFn(ctx, userID, role)
	}
	return true, nil
}

type stubVault struct {
	generateFn   func(ctx context.Context, ownerID, currency string) (models.UserAddress, error)
	ensureFeesFn func(ctx context.Context, currency string) (models.AdminFeeAddress, error)
}

func (s *stubVault) GenerateAddress(ctx context.Context, ownerID, currency string) (models.UserAddress, error) {
	if s.generateFn != nil {
		return s.generateFn(ctx, ownerID, currency)
	}
	return models.UserAddress{UserID: ownerID, Currency: currency, Address: "bc1qstubaddress", Active: true}, nil
}

func (s *stubVault) EnsureFeeAddress(ctx context.Context, currency string) (models.AdminFeeAddress, error) {
	if s.ensureFeesFn != nil {
		return s.ensureFeesFn(ctx, currency)
	}
	return models.AdminFeeAddress{Currency: currency, Address: "bc1qfeestub", Active: true}, nil
}

type stubEscrowService struct {
	holdFn    func(ctx context.Context, req services.HoldRequest) (string, error)
	releaseFn func(ctx context.Context, orderID, actor string, isAutoRelease bool) error
	refundFn  func(ctx context.Context, orderID, reason, actor string) error
}

func (s *stubEscrowService) Hold(ctx context.Context, req services.HoldRequest) (string, error) {
	if s.holdFn != nil {
		return s.holdFn(ctx, req)
	}
	return "holding-1", nil
}

func (s *stubEscrowService) Release(ctx context.Context, orderID, actor string, isAutoRelease bool) error {
	if s.releaseFn != nil {
		return s.releaseFn(ctx, orderID, actor, isAutoRelease)
	}
	return nil
}

func (s *stubEscrowService) Refund(ctx context.Context, orderID, reason, actor string) error {
	if s.refundFn != nil {
		return s.refundFn(ctx, orderID, reason, actor)
	}
	return nil
}

func (s *stubEscrowService) ReleaseExpired(ctx context.Context, window time.Duration) (int, error) {
	return 0, nil
}

type stubWithdrawalService struct {
	requestFn func(ctx context.Context, userID string, amountCredits int64, currency, destinationAddress string) (*models.CreditWithdrawal, error)
	feesFn    func(ctx context.Context, currency, destinationAddress string, amount decimal.Decimal) (string, error)
}

func (s *stubWithdrawalService) RequestWithdrawal(ctx context.Context, userID string, amountCredits int64, currency, destinationAddress string) (*models.CreditWithdrawal, error) {
	if s.requestFn != nil {
		return s.requestFn(ctx, userID, amountCredits, currency, destinationAddress)
	}
	return &models.CreditWithdrawal{ID: "wd-1", UserID: userID, AmountCredits: amountCredits, Currency: currency, Status: models.WithdrawalProcessing}, nil
}

func (s *stubWithdrawalService) WithdrawFees(ctx context.Context, currency, destinationAddress string, amount decimal.Decimal) (string, error) {
	if s.feesFn != nil {
		return s.feesFn(ctx, currency, destinationAddress, amount)
	}
	return "feehash", nil
}

type stubDepositService struct {
	createFn  func(ctx context.Context, userID, currency string, amount decimal.Decimal, txHash string) (*models.DepositRequest, error)
	confirmFn func(ctx context.Context, depositRequestID string) error
}

func (s *stubDepositService) CreateDepositRequest(ctx context.Context, userID, currency string, amount decimal.Decimal, txHash string) (*models.DepositRequest, error) {
	if s.createFn != nil {
		return s.createFn(ctx, userID, currency, amount, txHash)
	}
	return &models.DepositRequest{ID: "dep-1", UserID: userID, Currency: currency, Amount: amount, TxHash: txHash, Status: models.DepositPending}, nil
}

func (s *stubDepositService) ConfirmDeposit(ctx context.Context, depositRequestID string) error {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, depositRequestID)
	}
	return nil
}

type stubOracle struct {
	snapshot prices.Snapshot
}

func (s *stubOracle) Snapshot() prices.Snapshot {
	return s.snapshot
}

// testDeps groups one stub per handler dependency so individual tests only
// override what they exercise.
type testDeps struct {
	wallets      *stubWalletStore
	escrow       *stubEscrowStore
	audit        *stubAuditStore
	withdrawals  *stubWithdrawalStore
	fees         *stubFeeStore
	deposits     *stubDepositStore
	transactions *stubTransactionStore
	admin        *stubAdminStore
	vault        *stubVault
	escrowSvc    *stubEscrowService
	withdrawSvc  *stubWithdrawalService
	depositSvc   *stubDepositService
	oracle       *stubOracle
}

func newTestDeps() *testDeps {
	return &testDeps{
		wallets:      &stubWalletStore{},
		escrow:       &stubEscrowStore{},
		audit:        &stubAuditStore{},
		withdrawals:  &stubWithdrawalStore{},
		fees:         &stubFeeStore{},
		deposits:     &stubDepositStore{},
		transactions: &stubTransactionStore{},
		admin:        &stubAdminStore{},
		vault:        &stubVault{},
		escrowSvc:    &stubEscrowService{},
		withdrawSvc:  &stubWithdrawalService{},
		depositSvc:   &stubDepositService{},
		oracle:       &stubOracle{},
	}
}

func newTestHandler(deps *testDeps) *Handler {
	cfg := config.Config{JWTSecret: testSecret, IPNSecret: testIPNSecret, AllowedOrigins: "*"}
	return New(cfg, deps.wallets, deps.escrow, deps.audit, deps.withdrawals, deps.fees, deps.deposits, deps.transactions, deps.admin, deps.vault, deps.escrowSvc, deps.withdrawSvc, deps.depositSvc, deps.oracle, websocket.NewHub())
}

func authToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.IssueToken(testSecret, userID, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}
