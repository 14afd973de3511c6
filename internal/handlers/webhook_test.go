package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"settlement/internal/services"
)

func signBody(body string) string {
	mac := hmac.New(sha512.New, []byte(testIPNSecret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaymentWebhookRejectsMissingSignature(t *testing.T) {
	router := newTestHandler(newTestDeps()).Routes()

	body := `{"payment_id":"dep-1","payment_status":"confirmed","order_id":""}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(body))
	rec := doRequest(t, router, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestPaymentWebhookRejectsBadSignature(t *testing.T) {
	deps := newTestDeps()
	confirmed := false
	deps.depositSvc.confirmFn = func(ctx context.Context, depositRequestID string) error {
		confirmed = true
		return nil
	}
	router := newTestHandler(deps).Routes()

	body := `{"payment_id":"dep-1","payment_status":"confirmed","order_id":""}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(body))
	req.Header.Set(signatureHeader, signBody(`{"payment_id":"dep-1","payment_status":"confirmed","order_id":"tampered"}`))
	rec := doRequest(t, router, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if confirmed {
		t.Fatal("deposit must not be confirmed on a bad signature")
	}
}

func TestPaymentWebhookConfirmsDeposit(t *testing.T) {
	deps := newTestDeps()
	var gotID string
	deps.depositSvc.confirmFn = func(ctx context.Context, depositRequestID string) error {
		gotID = depositRequestID
		return nil
	}
	router := newTestHandler(deps).Routes()

	body := `{"payment_id":"dep-1","payment_status":"confirmed","order_id":"order-1"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(body))
	req.Header.Set(signatureHeader, signBody(body))
	rec := doRequest(t, router, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotID != "dep-1" {
		t.Fatalf("expected dep-1 confirmed, got %q", gotID)
	}
}

func TestPaymentWebhookIgnoresIntermediateStatuses(t *testing.T) {
	deps := newTestDeps()
	confirmed := false
	deps.depositSvc.confirmFn = func(ctx context.Context, depositRequestID string) error {
		confirmed = true
		return nil
	}
	router := newTestHandler(deps).Routes()

	body := `{"payment_id":"dep-1","payment_status":"waiting","order_id":"order-1"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(body))
	req.Header.Set(signatureHeader, signBody(body))
	rec := doRequest(t, router, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if confirmed {
		t.Fatal("waiting payments must not trigger reconciliation")
	}
}

func TestPaymentWebhookDuplicateDelivery(t *testing.T) {
	deps := newTestDeps()
	deps.depositSvc.confirmFn = func(ctx context.Context, depositRequestID string) error {
		return services.ErrDuplicateDeposit
	}
	router := newTestHandler(deps).Routes()

	body := `{"payment_id":"dep-1","payment_status":"confirmed","order_id":"order-1"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(body))
	req.Header.Set(signatureHeader, signBody(body))
	rec := doRequest(t, router, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}
