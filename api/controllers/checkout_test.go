package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/platterly/platterly-backend/internal/payments"
	"github.com/platterly/platterly-backend/pkg/db/models"
	"github.com/platterly/platterly-backend/pkg/enums"
	pkgerrors "github.com/platterly/platterly-backend/pkg/errors"
)

type stubPaymentService struct {
	link  *payments.CheckoutLink
	order *models.Order
	err   error

	redirectURL string
	sourceToken string
	txnID       string
}

func (s *stubPaymentService) CreateCheckoutLink(ctx context.Context, orderID uuid.UUID, redirectURL string) (*payments.CheckoutLink, error) {
	s.redirectURL = redirectURL
	return s.link, s.err
}

func (s *stubPaymentService) HandleCheckoutReturn(ctx context.Context, orderID uuid.UUID, transactionID string) (*models.Order, error) {
	s.txnID = transactionID
	return s.order, s.err
}

func (s *stubPaymentService) ChargeCard(ctx context.Context, orderID uuid.UUID, sourceToken string) (*models.Order, error) {
	s.sourceToken = sourceToken
	return s.order, s.err
}

func (s *stubPaymentService) CompleteOrder(ctx context.Context, orderID uuid.UUID, txnID, trigger string) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubPaymentService) HandleGatewayEvent(ctx context.Context, raw []byte) (string, error) {
	return payments.WebhookAccepted, s.err
}

func TestCreateCheckoutLinkSuccess(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentService{link: &payments.CheckoutLink{
		LinkID:         "plink_1",
		GatewayOrderID: "sq_order_1",
		URL:            "https://square.link/u/abc",
	}}
	handler := CreateCheckoutLink(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/x/checkout-link", strings.NewReader(`{"redirect_url":"https://platterly.com/thanks"}`))
	req.Header.Set("Content-Type", "application/json")
	req = withPathParam(req, "orderID", uuid.NewString())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.redirectURL != "https://platterly.com/thanks" {
		t.Fatalf("redirect url not forwarded: %s", svc.redirectURL)
	}

	var envelope struct {
		Data checkoutLinkResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.URL != "https://square.link/u/abc" {
		t.Fatalf("unexpected link url: %s", envelope.Data.URL)
	}
	if envelope.Data.GatewayOrderID != "sq_order_1" {
		t.Fatalf("unexpected gateway order id: %s", envelope.Data.GatewayOrderID)
	}
}

func TestCreateCheckoutLinkRejectsNonPending(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "order is not pending")}
	handler := CreateCheckoutLink(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/x/checkout-link", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req = withPathParam(req, "orderID", uuid.NewString())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestCheckoutReturnCompletesOrder(t *testing.T) {
	t.Parallel()

	order := sampleOrder()
	order.Status = enums.OrderStatusPaid
	svc := &stubPaymentService{order: order}
	handler := CheckoutReturn(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/return?order_id="+order.ID.String()+"&transaction_id=sq_txn_1", nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.txnID != "sq_txn_1" {
		t.Fatalf("transaction id not forwarded: %s", svc.txnID)
	}

	var envelope struct {
		Data orderResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Status != "paid" {
		t.Fatalf("unexpected status: %s", envelope.Data.Status)
	}
}

func TestCheckoutReturnRejectsBadOrderID(t *testing.T) {
	t.Parallel()

	handler := CheckoutReturn(&stubPaymentService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/return?order_id=nope", nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestChargeCardSuccess(t *testing.T) {
	t.Parallel()

	order := sampleOrder()
	order.Status = enums.OrderStatusPaid
	svc := &stubPaymentService{order: order}
	handler := ChargeCard(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/x/charge", strings.NewReader(`{"source_id":"cnon:card-nonce-ok"}`))
	req.Header.Set("Content-Type", "application/json")
	req = withPathParam(req, "orderID", order.ID.String())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.sourceToken != "cnon:card-nonce-ok" {
		t.Fatalf("source token not forwarded: %s", svc.sourceToken)
	}
}

func TestChargeCardDecline(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentService{err: pkgerrors.New(pkgerrors.CodePaymentDeclined, "card declined")}
	handler := ChargeCard(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/x/charge", strings.NewReader(`{"source_id":"cnon:card-nonce-declined"}`))
	req.Header.Set("Content-Type", "application/json")
	req = withPathParam(req, "orderID", uuid.NewString())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 got %d", resp.Code)
	}
}

func TestChargeCardRequiresSource(t *testing.T) {
	t.Parallel()

	handler := ChargeCard(&stubPaymentService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/x/charge", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req = withPathParam(req, "orderID", uuid.NewString())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
