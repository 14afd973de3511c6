package handlers

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

const signatureHeader = "X-Signature"

type paymentNotification struct {
	PaymentID     string `json:"payment_id"`
	PaymentStatus string `json:"payment_status"`
	OrderID       string `json:"order_id"`
}

// PaymentWebhook accepts payment provider notifications. The signature is
// an HMAC-SHA512 of the raw request body keyed with the shared IPN secret,
// verified before the payload is parsed.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unable to read body")
		return
	}

	if !verifySignature(body, r.Header.Get(signatureHeader), h.cfg.IPNSecret) {
		logrus.WithField("remote", r.RemoteAddr).Warn("webhook signature mismatch")
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var notice paymentNotification
	if err := json.Unmarshal(body, &notice); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if notice.PaymentID == "" {
		respondError(w, http.StatusBadRequest, "payment_id is required")
		return
	}

	if notice.PaymentStatus != "confirmed" && notice.PaymentStatus != "finished" {
		logrus.WithFields(logrus.Fields{
			"payment_id": notice.PaymentID,
			"status":     notice.PaymentStatus,
		}).Info("ignoring non-final payment notification")
		respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if err := h.depositSvc.ConfirmDeposit(r.Context(), notice.PaymentID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

func verifySignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
