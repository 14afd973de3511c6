package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"settlement/internal/models"
	"settlement/internal/services"
)

func TestHoldEscrow(t *testing.T) {
	deps := newTestDeps()
	var got services.HoldRequest
	deps.escrowSvc.holdFn = func(ctx context.Context, req services.HoldRequest) (string, error) {
		got = req
		return "holding-9", nil
	}
	router := newTestHandler(deps).Routes()

	body := `{"amount_credits":100,"currency":"btc"}`
	req := httptest.NewRequest(http.MethodPost, "/orders/order-1/hold", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+authToken(t, "buyer-1"))
	rec := doRequest(t, router, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.OrderID != "order-1" || got.BuyerID != "buyer-1" || got.AmountCredits != 100 || got.Currency != "BTC" {
		t.Fatalf("unexpected hold request: %+v", got)
	}
}

func TestReleaseEscrowPassesCallerAsActor(t *testing.T) {
	deps := newTestDeps()
	var gotOrder, gotActor string
	var gotAuto bool
	deps.escrowSvc.releaseFn = func(ctx context.Context, orderID, actor string, isAutoRelease bool) error {
		gotOrder, gotActor, gotAuto = orderID, actor, isAutoRelease
		return nil
	}
	router := newTestHandler(deps).Routes()

	req := httptest.NewRequest(http.MethodPost, "/orders/order-1/release", nil)
	req.Header.Set("Authorization", "Bearer "+authToken(t, "buyer-1"))
	rec := doRequest(t, router, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotOrder != "order-1" || gotActor != "buyer-1" || gotAuto {
		t.Fatalf("unexpected release call: %s %s auto=%v", gotOrder, gotActor, gotAuto)
	}
}

func TestReleaseEscrowNonBuyerForbidden(t *testing.T) {
	deps := newTestDeps()
	deps.escrowSvc.releaseFn = func(ctx context.Context, orderID, actor string, isAutoRelease bool) error {
		return services.ErrUnauthorized
	}
	router := newTestHandler(deps).Routes()

	req := httptest.NewRequest(http.MethodPost, "/orders/order-1/release", nil)
	req.Header.Set("Authorization", "Bearer "+authToken(t, "stranger"))
	rec := doRequest(t, router, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestReleaseEscrowAlreadySettled(t *testing.T) {
	deps := newTestDeps()
	deps.escrowSvc.releaseFn = func(ctx context.Context, orderID, actor string, isAutoRelease bool) error {
		return services.ErrInvalidState
	}
	router := newTestHandler(deps).Routes()

	req := httptest.NewRequest(http.MethodPost, "/orders/order-1/release", nil)
	req.Header.Set("Authorization", "Bearer "+authToken(t, "buyer-1"))
	rec := doRequest(t, router, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestRefundEscrowRequiresAdmin(t *testing.T) {
	deps := newTestDeps()
	deps.admin.isAdminFn = func(ctx context.Context, userID string) (bool, bool, error) {
		return false, false, nil
	}
	router := newTestHandler(deps).Routes()

	body := `{"reason":"buyer dispute"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/orders/order-1/refund", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+authToken(t, "user-1"))
	rec := doRequest(t, router, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}
}

func TestRefundEscrowRequiresReason(t *testing.T) {
	router := newTestHandler(newTestDeps()).Routes()

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/order-1/refund", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+authToken(t, "admin-1"))
	rec := doRequest(t, router, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRefundEscrowForwardsReason(t *testing.T) {
	deps := newTestDeps()
	var gotReason, gotActor string
	deps.escrowSvc.refundFn = func(ctx context.Context, orderID, reason, actor string) error {
		gotReason, gotActor = reason, actor
		return nil
	}
	router := newTestHandler(deps).Routes()

	body := `{"reason":"goods never shipped"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/orders/order-1/refund", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+authToken(t, "admin-1"))
	rec := doRequest(t, router, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotReason != "goods never shipped" || gotActor != "admin-1" {
		t.Fatalf("unexpected refund call: %q by %q", gotReason, gotActor)
	}
}

func TestGetEscrowReturnsHoldingsAndAudit(t *testing.T) {
	deps := newTestDeps()
	deps.escrow.getByOrderFn = func(ctx context.Context, orderID string) ([]models.EscrowHolding, error) {
		return []models.EscrowHolding{{ID: "h-1", OrderID: orderID, Status: models.EscrowHeld}}, nil
	}
	deps.audit.listFn = func(ctx context.Context, orderID string) ([]models.EscrowAuditEntry, error) {
		return []models.EscrowAuditEntry{{Action: "hold", OrderID: orderID, AmountCrypto: decimal.New(1, -2)}}, nil
	}
	router := newTestHandler(deps).Routes()

	req := httptest.NewRequest(http.MethodGet, "/orders/order-1/escrow", nil)
	req.Header.Set("Authorization", "Bearer "+authToken(t, "buyer-1"))
	rec := doRequest(t, router, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"holdings"`) || !strings.Contains(rec.Body.String(), `"audit"`) {
		t.Fatalf("expected holdings and audit in body: %s", rec.Body.String())
	}
}

func TestGetEscrowUnknownOrder(t *testing.T) {
	router := newTestHandler(newTestDeps()).Routes()

	req := httptest.NewRequest(http.MethodGet, "/orders/missing/escrow", nil)
	req.Header.Set("Authorization", "Bearer "+authToken(t, "buyer-1"))
	rec := doRequest(t, router, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
