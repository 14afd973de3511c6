package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"settlement/internal/middleware"
	"settlement/internal/services"
)

type holdEscrowRequest struct {
	AmountCredits int64  `json:"amount_credits" validate:"required,gt=0"`
	Currency      string `json:"currency" validate:"required"`
}

type refundEscrowRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (h *Handler) HoldEscrow(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}

	var req holdEscrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "amount_credits and currency are required")
		return
	}

	holdingID, err := h.escrowSvc.Hold(r.Context(), services.HoldRequest{
		OrderID:       chi.URLParam(r, "id"),
		BuyerID:       userID,
		AmountCredits: req.AmountCredits,
		Currency:      strings.ToUpper(req.Currency),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"holding_id": holdingID})
}

func (h *Handler) ReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}

	if err := h.escrowSvc.Release(r.Context(), chi.URLParam(r, "id"), userID, false); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func (h *Handler) RefundEscrow(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing user")
		return
	}

	var req refundEscrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "a refund reason is required")
		return
	}

	if err := h.escrowSvc.Refund(r.Context(), chi.URLParam(r, "id"), req.Reason, userID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "refunded"})
}

func (h *Handler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	holdings, err := h.escrow.GetByOrder(r.Context(), orderID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if len(holdings) == 0 {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	trail, err := h.audit.ListByOrder(r.Context(), orderID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"holdings": holdings,
		"audit":    trail,
	})
}
