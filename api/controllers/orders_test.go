package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/platterly/platterly-backend/internal/ledger"
	"github.com/platterly/platterly-backend/pkg/db/models"
	"github.com/platterly/platterly-backend/pkg/enums"
	pkgerrors "github.com/platterly/platterly-backend/pkg/errors"
)

type stubLedgerService struct {
	order  *models.Order
	orders []models.Order
	err    error

	createdInput *ledger.CreateOrderInput
	listStatus   enums.OrderStatus
	listLimit    int
	transitionTo enums.OrderStatus
}

func (s *stubLedgerService) CreateOrder(ctx context.Context, input ledger.CreateOrderInput) (*models.Order, error) {
	s.createdInput = &input
	return s.order, s.err
}

func (s *stubLedgerService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubLedgerService) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubLedgerService) GetOrderByPaymentRef(ctx context.Context, paymentRef string) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubLedgerService) ListOrders(ctx context.Context, status enums.OrderStatus, limit int) ([]models.Order, error) {
	s.listStatus = status
	s.listLimit = limit
	return s.orders, s.err
}

func (s *stubLedgerService) Transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error) {
	s.transitionTo = target
	return s.order, s.err
}

func (s *stubLedgerService) SetPaymentCorrelation(ctx context.Context, orderID uuid.UUID, paymentRef string) error {
	return s.err
}

func (s *stubLedgerService) CompleteIfPending(ctx context.Context, orderID uuid.UUID, txnID string) (bool, *models.Order, error) {
	return false, s.order, s.err
}

func (s *stubLedgerService) ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, s.err
}

func sampleOrder() *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "PLT-20260829-ABCD1234",
		Status:        enums.OrderStatusPending,
		CustomerName:  "Dana Ortiz",
		CustomerEmail: "dana@example.com",
		Street:        "401 E Camelback Rd",
		City:          "Scottsdale",
		State:         "AZ",
		Zip:           "85251",
		SubtotalCents: 13990,
		TaxCents:      1203,
		TotalCents:    15193,
		Items: []models.OrderItem{
			{MealID: uuid.New(), Name: "Chicken Tinga Bowl", Qty: 10, UnitPriceCents: 1399, TotalCents: 13990},
		},
	}
}

func withPathParam(req *http.Request, key, value string) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, ctx))
}

func TestCreateOrderSuccess(t *testing.T) {
	t.Parallel()

	order := sampleOrder()
	svc := &stubLedgerService{order: order}
	handler := CreateOrder(svc, nil)

	body := `{
		"customer_name": "Dana Ortiz",
		"customer_email": "dana@example.com",
		"street": "401 E Camelback Rd",
		"city": "Scottsdale",
		"state": "AZ",
		"zip": "85251",
		"items": [{"meal_id": "` + uuid.NewString() + `", "name": "Chicken Tinga Bowl", "qty": 10, "unit_price_cents": 1399}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data orderResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.OrderNumber != order.OrderNumber {
		t.Fatalf("unexpected order number: %s", envelope.Data.OrderNumber)
	}
	if envelope.Data.TotalCents != 15193 {
		t.Fatalf("unexpected total: %d", envelope.Data.TotalCents)
	}
	if svc.createdInput == nil || len(svc.createdInput.Items) != 1 {
		t.Fatalf("service did not receive order input")
	}
	if svc.createdInput.Items[0].Qty != 10 {
		t.Fatalf("unexpected item qty: %d", svc.createdInput.Items[0].Qty)
	}
}

func TestCreateOrderValidationError(t *testing.T) {
	t.Parallel()

	handler := CreateOrder(&stubLedgerService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"customer_name":"Dana"}`))
	req.Header.Set("Content-Type", "application/json")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	t.Parallel()

	svc := &stubLedgerService{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	handler := GetOrder(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/x", nil)
	req = withPathParam(req, "orderID", uuid.NewString())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestGetOrderRejectsBadID(t *testing.T) {
	t.Parallel()

	handler := GetOrder(&stubLedgerService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/nope", nil)
	req = withPathParam(req, "orderID", "nope")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestListOrdersPassesFilter(t *testing.T) {
	t.Parallel()

	svc := &stubLedgerService{orders: []models.Order{*sampleOrder()}}
	handler := ListOrders(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders?status=paid&limit=25", nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.listStatus != enums.OrderStatusPaid {
		t.Fatalf("unexpected status filter: %s", svc.listStatus)
	}
	if svc.listLimit != 25 {
		t.Fatalf("unexpected limit: %d", svc.listLimit)
	}
}

func TestListOrdersRejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	handler := ListOrders(&stubLedgerService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders?status=shipped", nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestTransitionOrderForwardsTarget(t *testing.T) {
	t.Parallel()

	order := sampleOrder()
	order.Status = enums.OrderStatusCompleted
	svc := &stubLedgerService{order: order}
	handler := TransitionOrder(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/x/transition", strings.NewReader(`{"status":"completed"}`))
	req.Header.Set("Content-Type", "application/json")
	req = withPathParam(req, "orderID", order.ID.String())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.transitionTo != enums.OrderStatusCompleted {
		t.Fatalf("unexpected target status: %s", svc.transitionTo)
	}
}

func TestTransitionOrderStateConflict(t *testing.T) {
	t.Parallel()

	svc := &stubLedgerService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "cannot move delivered order")}
	handler := TransitionOrder(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/x/transition", strings.NewReader(`{"status":"pending"}`))
	req.Header.Set("Content-Type", "application/json")
	req = withPathParam(req, "orderID", uuid.NewString())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}
