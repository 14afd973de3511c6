package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	playvalidator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"settlement/internal/config"
	"settlement/internal/middleware"
	"settlement/internal/websocket"
)

type Handler struct {
	cfg          config.Config
	wallets      WalletStore
	escrow       EscrowStore
	audit        AuditStore
	withdrawals  WithdrawalStore
	fees         FeeStore
	deposits     DepositStore
	transactions TransactionStore
	admin        AdminStore
	vault        AddressVault
	escrowSvc    EscrowService
	withdrawSvc  WithdrawalService
	depositSvc   DepositService
	oracle       PriceOracle
	hub          *websocket.Hub
	validate     *playvalidator.Validate
}

func New(cfg config.Config, wallets WalletStore, escrow EscrowStore, audit AuditStore, withdrawals WithdrawalStore, fees FeeStore, deposits DepositStore, transactions TransactionStore, admin AdminStore, vault AddressVault, escrowSvc EscrowService, withdrawSvc WithdrawalService, depositSvc DepositService, oracle PriceOracle, hub *websocket.Hub) *Handler {
	return &Handler{
		cfg:          cfg,
		wallets:      wallets,
		escrow:       escrow,
		audit:        audit,
		withdrawals:  withdrawals,
		fees:         fees,
		deposits:     deposits,
		transactions: transactions,
		admin:        admin,
		vault:        vault,
		escrowSvc:    escrowSvc,
		withdrawSvc:  withdrawSvc,
		depositSvc:   depositSvc,
		oracle:       oracle,
		hub:          hub,
		validate:     playvalidator.New(),
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", h.Health)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	router.Get("/prices", h.GetPrices)
	router.Post("/webhooks/payments", h.PaymentWebhook)
	router.Get("/ws/balances", h.WSBalances)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Get("/wallet/balance", h.GetBalance)
		r.Post("/wallet/address", h.GenerateAddress)
		r.Post("/wallet/deposits", h.CreateDeposit)
		r.Get("/wallet/deposits", h.ListDeposits)
		r.Get("/wallet/transactions", h.ListTransactions)
		r.Post("/withdrawals", h.CreateWithdrawal)
		r.Get("/withdrawals", h.ListWithdrawals)
		r.Get("/withdrawals/{id}", h.GetWithdrawal)
		r.Post("/orders/{id}/hold", h.HoldEscrow)
		r.Post("/orders/{id}/release", h.ReleaseEscrow)
		r.Get("/orders/{id}/escrow", h.GetEscrow)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Use(middleware.RequireAdmin(h.admin, middleware.RoleManageEscrow))
		r.Post("/orders/{id}/refund", h.RefundEscrow)
		r.Get("/fees", h.ListFees)
		r.Post("/fees/addresses", h.ProvisionFeeAddress)
		r.Post("/fees/withdraw", h.WithdrawFees)
	})

	return router
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
