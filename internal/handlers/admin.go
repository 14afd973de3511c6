package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"settlement/internal/models"
)

type withdrawFeesRequest struct {
	Currency           string `json:"currency" validate:"required"`
	DestinationAddress string `json:"destination_address" validate:"required"`
	Amount             string `json:"amount" validate:"required"`
}

type feeSummary struct {
	Address      *models.AdminFeeAddress      `json:"address"`
	Transactions []models.AdminFeeTransaction `json:"transactions"`
}

func (h *Handler) ListFees(w http.ResponseWriter, r *http.Request) {
	summaries := map[string]feeSummary{}
	for _, currency := range []string{models.CurrencyBTC, models.CurrencyLTC} {
		address, err := h.fees.GetByCurrency(r.Context(), currency)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		if address == nil {
			continue
		}
		transactions, err := h.fees.ListFeeTransactions(r.Context(), currency, 50)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		summaries[currency] = feeSummary{Address: address, Transactions: transactions}
	}
	respondJSON(w, http.StatusOK, summaries)
}

type provisionFeeAddressRequest struct {
	Currency string `json:"currency" validate:"required,oneof=BTC LTC btc ltc"`
}

// ProvisionFeeAddress creates the platform's fee collection address for a
// currency. Escrow releases fail for a currency until this has run once.
func (h *Handler) ProvisionFeeAddress(w http.ResponseWriter, r *http.Request) {
	var req provisionFeeAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "currency must be BTC or LTC")
		return
	}

	address, err := h.vault.EnsureFeeAddress(r.Context(), strings.ToUpper(req.Currency))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, address)
}

func (h *Handler) WithdrawFees(w http.ResponseWriter, r *http.Request) {
	var req withdrawFeesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "currency, destination_address and amount are required")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "amount must be a decimal string")
		return
	}

	txHash, err := h.withdrawSvc.WithdrawFees(r.Context(), strings.ToUpper(req.Currency), req.DestinationAddress, amount)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"tx_hash": txHash})
}
