package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/platterly/platterly-backend/api/responses"
	"github.com/platterly/platterly-backend/api/validators"
	"github.com/platterly/platterly-backend/internal/routeplan"
	"github.com/platterly/platterly-backend/pkg/db/models"
	pkgerrors "github.com/platterly/platterly-backend/pkg/errors"
	"github.com/platterly/platterly-backend/pkg/logger"
)

type planRouteRequest struct {
	DeliveryIDs []uuid.UUID `json:"delivery_ids"`
}

type planRouteResponse struct {
	OrderedIDs  []uuid.UUID `json:"ordered_ids"`
	SkippedIDs  []uuid.UUID `json:"skipped_ids,omitempty"`
	DistanceKM  float64     `json:"distance_km"`
	DurationMin int         `json:"duration_min"`
}

type routeResponse struct {
	RouteID     uuid.UUID          `json:"route_id"`
	DriverID    uuid.UUID          `json:"driver_id"`
	RouteDate   time.Time          `json:"route_date"`
	Status      string             `json:"status"`
	Optimized   bool               `json:"optimized"`
	DistanceKM  *float64           `json:"distance_km,omitempty"`
	DurationMin *int               `json:"duration_min,omitempty"`
	Deliveries  []deliveryResponse `json:"deliveries,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

func newRouteResponse(route *models.Route) routeResponse {
	return routeResponse{
		RouteID:     route.ID,
		DriverID:    route.DriverID,
		RouteDate:   route.RouteDate,
		Status:      route.Status.String(),
		Optimized:   route.Optimized,
		DistanceKM:  route.DistanceKM,
		DurationMin: route.DurationMin,
		Deliveries:  newDeliveryListResponse(route.Deliveries),
		CreatedAt:   route.CreatedAt,
	}
}

// PlanRoute runs a dry-run planning pass. An empty delivery_ids list plans
// every unrouted delivery with coordinates.
func PlanRoute(svc routeplan.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "route service unavailable"))
			return
		}

		var payload planRouteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plan, err := svc.PlanRoute(r.Context(), payload.DeliveryIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, planRouteResponse{
			OrderedIDs:  plan.OrderedIDs,
			SkippedIDs:  plan.SkippedIDs,
			DistanceKM:  plan.DistanceKM,
			DurationMin: plan.DurationMin,
		})
	}
}

type commitRouteRequest struct {
	DriverID    uuid.UUID   `json:"driver_id" validate:"required"`
	DeliveryIDs []uuid.UUID `json:"delivery_ids" validate:"required,min=1"`
}

// CommitRoute persists a reviewed stop order as a driver's route. The whole
// batch commits or none of it does.
func CommitRoute(svc routeplan.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "route service unavailable"))
			return
		}

		var payload commitRouteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		route, err := svc.CommitRoute(r.Context(), payload.DriverID, payload.DeliveryIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newRouteResponse(route))
	}
}

// GetRoute returns a route with its deliveries in stop order.
func GetRoute(svc routeplan.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID, err := pathUUID(r, "routeID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		route, err := svc.GetRoute(r.Context(), routeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newRouteResponse(route))
	}
}

// ListDriverRoutes returns a driver's recent routes, newest first.
func ListDriverRoutes(svc routeplan.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driverID, err := pathUUID(r, "driverID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 20, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		routes, err := svc.ListDriverRoutes(r.Context(), driverID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]routeResponse, 0, len(routes))
		for i := range routes {
			out = append(out, newRouteResponse(&routes[i]))
		}
		responses.WriteSuccess(w, out)
	}
}
