package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"settlement/internal/middleware"
)

type generateAddressRequest struct {
	Currency string `json:"currency" validate:"required,oneof=BTC LTC btc ltc"`
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}

	balance, err := h.wallets.Ensure(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, balance)
}

func (h *Handler) GenerateAddress(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}

	var req generateAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "currency must be BTC or LTC")
		return
	}

	address, err := h.vault.GenerateAddress(r.Context(), userID, strings.ToUpper(req.Currency))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, address)
}

type createDepositRequest struct {
	Currency string `json:"currency" validate:"required,oneof=BTC LTC btc ltc"`
	Amount   string `json:"amount" validate:"required"`
	TxHash   string `json:"tx_hash" validate:"required"`
}

func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}

	var req createDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "currency, amount and tx_hash are required")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "amount must be a decimal string")
		return
	}

	deposit, err := h.depositSvc.CreateDepositRequest(r.Context(), userID, strings.ToUpper(req.Currency), amount, req.TxHash)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, deposit)
}

func (h *Handler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}

	deposits, err := h.deposits.ListByUser(r.Context(), userID, 100)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, deposits)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}

	transactions, err := h.transactions.ListByUser(r.Context(), userID, 100)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, transactions)
}
