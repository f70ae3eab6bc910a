package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/platterly/platterly-backend/internal/routeplan"
	"github.com/platterly/platterly-backend/pkg/db/models"
	"github.com/platterly/platterly-backend/pkg/enums"
	pkgerrors "github.com/platterly/platterly-backend/pkg/errors"
)

type stubRoutePlanService struct {
	plan   *routeplan.PlanPreview
	route  *models.Route
	routes []models.Route
	err    error

	plannedIDs   []uuid.UUID
	committedIDs []uuid.UUID
	driverID     uuid.UUID
}

func (s *stubRoutePlanService) PlanRoute(ctx context.Context, deliveryIDs []uuid.UUID) (*routeplan.PlanPreview, error) {
	s.plannedIDs = deliveryIDs
	return s.plan, s.err
}

func (s *stubRoutePlanService) CommitRoute(ctx context.Context, driverID uuid.UUID, orderedIDs []uuid.UUID) (*models.Route, error) {
	s.driverID = driverID
	s.committedIDs = orderedIDs
	return s.route, s.err
}

func (s *stubRoutePlanService) GetRoute(ctx context.Context, routeID uuid.UUID) (*models.Route, error) {
	return s.route, s.err
}

func (s *stubRoutePlanService) ListDriverRoutes(ctx context.Context, driverID uuid.UUID, limit int) ([]models.Route, error) {
	s.driverID = driverID
	return s.routes, s.err
}

func (s *stubRoutePlanService) CloseCompletedRoutes(ctx context.Context) (int, error) {
	return 0, s.err
}

func sampleRoute() *models.Route {
	km := 12.4
	mins := 46
	return &models.Route{
		ID:          uuid.New(),
		DriverID:    uuid.New(),
		RouteDate:   time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC),
		Status:      enums.RouteStatusPlanned,
		Optimized:   true,
		DistanceKM:  &km,
		DurationMin: &mins,
	}
}

func TestPlanRouteReturnsPreview(t *testing.T) {
	t.Parallel()

	ordered := []uuid.UUID{uuid.New(), uuid.New()}
	skipped := []uuid.UUID{uuid.New()}
	svc := &stubRoutePlanService{plan: &routeplan.PlanPreview{
		OrderedIDs:  ordered,
		SkippedIDs:  skipped,
		DistanceKM:  12.4,
		DurationMin: 41,
	}}
	handler := PlanRoute(svc, nil)

	body := `{"delivery_ids":["` + ordered[0].String() + `","` + ordered[1].String() + `","` + skipped[0].String() + `"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/routes/plan", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.plannedIDs) != 3 {
		t.Fatalf("service did not receive requested ids")
	}

	var envelope struct {
		Data planRouteResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.OrderedIDs) != 2 || len(envelope.Data.SkippedIDs) != 1 {
		t.Fatalf("unexpected preview shape: %+v", envelope.Data)
	}
	if envelope.Data.DurationMin != 41 {
		t.Fatalf("unexpected duration: %d", envelope.Data.DurationMin)
	}
}

func TestPlanRouteEmptyBatchPlansUnrouted(t *testing.T) {
	t.Parallel()

	svc := &stubRoutePlanService{plan: &routeplan.PlanPreview{}}
	handler := PlanRoute(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/routes/plan", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if len(svc.plannedIDs) != 0 {
		t.Fatalf("expected empty id list, got %d", len(svc.plannedIDs))
	}
}

func TestCommitRouteSuccess(t *testing.T) {
	t.Parallel()

	route := sampleRoute()
	svc := &stubRoutePlanService{route: route}
	handler := CommitRoute(svc, nil)

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	body := `{"driver_id":"` + route.DriverID.String() + `","delivery_ids":["` + ids[0].String() + `","` + ids[1].String() + `"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/routes", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.driverID != route.DriverID {
		t.Fatalf("unexpected driver id: %s", svc.driverID)
	}
	if len(svc.committedIDs) != 2 {
		t.Fatalf("unexpected committed ids: %v", svc.committedIDs)
	}

	var envelope struct {
		Data routeResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !envelope.Data.Optimized {
		t.Fatalf("expected optimized route")
	}
}

func TestCommitRouteRequiresDeliveries(t *testing.T) {
	t.Parallel()

	handler := CommitRoute(&stubRoutePlanService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/routes", strings.NewReader(`{"driver_id":"`+uuid.NewString()+`"}`))
	req.Header.Set("Content-Type", "application/json")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCommitRouteStateConflict(t *testing.T) {
	t.Parallel()

	svc := &stubRoutePlanService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "delivery already routed")}
	handler := CommitRoute(svc, nil)

	body := `{"driver_id":"` + uuid.NewString() + `","delivery_ids":["` + uuid.NewString() + `"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/routes", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestGetRouteSuccess(t *testing.T) {
	t.Parallel()

	route := sampleRoute()
	svc := &stubRoutePlanService{route: route}
	handler := GetRoute(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/routes/x", nil)
	req = withPathParam(req, "routeID", route.ID.String())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}
