package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"settlement/internal/middleware"
)

type createWithdrawalRequest struct {
	AmountCredits      int64  `json:"amount_credits" validate:"required,gt=0"`
	Currency           string `json:"currency" validate:"required"`
	DestinationAddress string `json:"destination_address" validate:"required"`
}

func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}

	var req createWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "amount_credits, currency and destination_address are required")
		return
	}

	withdrawal, err := h.withdrawSvc.RequestWithdrawal(r.Context(), userID, req.AmountCredits, strings.ToUpper(req.Currency), req.DestinationAddress)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, withdrawal)
}

func (h *Handler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}

	withdrawal, err := h.withdrawals.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if withdrawal == nil || withdrawal.UserID != userID {
		respondError(w, http.StatusNotFound, "not found")
		return
	}
	respondJSON(w, http.StatusOK, withdrawal)
}

func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}

	withdrawals, err := h.withdrawals.ListByUser(r.Context(), userID, 100)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, withdrawals)
}
