package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"settlement/internal/chain"
	"settlement/internal/keyvault"
	"settlement/internal/prices"
	"settlement/internal/services"
	"settlement/internal/validator"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps the settlement error taxonomy onto HTTP statuses.
// Post-debit failures say so explicitly: the user's funds were restored.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, validator.ErrInvalidAddress),
		errors.Is(err, validator.ErrUnsupportedCurrency):
		respondError(w, http.StatusBadRequest, "request rejected: "+err.Error())
	case errors.Is(err, services.ErrInsufficientFunds):
		respondError(w, http.StatusPaymentRequired, "request rejected: insufficient funds")
	case errors.Is(err, services.ErrUnauthorized):
		respondError(w, http.StatusForbidden, "not allowed")
	case errors.Is(err, services.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrDuplicateDeposit):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, prices.ErrUpstreamUnavailable),
		errors.Is(err, chain.ErrUpstreamUnavailable):
		respondError(w, http.StatusBadGateway, "upstream unavailable, try again later")
	case errors.Is(err, chain.ErrInvalidSkeleton),
		isBroadcastError(err),
		errors.Is(err, keyvault.ErrDecryption):
		respondError(w, http.StatusBadGateway, "your funds are safe, the transfer could not be broadcast; try again")
	default:
		logrus.WithError(err).Error("unhandled service error")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func isBroadcastError(err error) bool {
	var broadcastErr *chain.BroadcastError
	return errors.As(err, &broadcastErr)
}
