package routeplan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/platterly/platterly-backend/internal/dispatch"
	"github.com/platterly/platterly-backend/pkg/config"
	"github.com/platterly/platterly-backend/pkg/db/models"
	"github.com/platterly/platterly-backend/pkg/enums"
	pkgerrors "github.com/platterly/platterly-backend/pkg/errors"
	"github.com/platterly/platterly-backend/pkg/geo"
	"github.com/platterly/platterly-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PlanPreview is the result of a dry-run planning pass. Nothing is persisted;
// staff review the proposed order before committing it to a driver.
type PlanPreview struct {
	OrderedIDs  []uuid.UUID
	SkippedIDs  []uuid.UUID
	DistanceKM  float64
	DurationMin int
}

// Service plans stop sequences for pending deliveries, commits them to
// driver routes, and closes routes whose stops have all landed.
type Service interface {
	PlanRoute(ctx context.Context, deliveryIDs []uuid.UUID) (*PlanPreview, error)
	CommitRoute(ctx context.Context, driverID uuid.UUID, orderedIDs []uuid.UUID) (*models.Route, error)
	GetRoute(ctx context.Context, routeID uuid.UUID) (*models.Route, error)
	ListDriverRoutes(ctx context.Context, driverID uuid.UUID, limit int) ([]models.Route, error)
	CloseCompletedRoutes(ctx context.Context) (int, error)
}

type service struct {
	routes     RouteRepository
	deliveries dispatch.Repository
	tx         txRunner
	depot      geo.Point
	logg       *logger.Logger
}

// NewService builds the planner service. The depot coordinate comes from
// store configuration.
func NewService(routes RouteRepository, deliveries dispatch.Repository, tx txRunner, store config.StoreConfig, logg *logger.Logger) (Service, error) {
	if routes == nil {
		return nil, fmt.Errorf("route repository required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		routes:     routes,
		deliveries: deliveries,
		tx:         tx,
		depot:      geo.Point{Lat: store.DepotLat, Lng: store.DepotLng},
		logg:       logg,
	}, nil
}

// PlanRoute runs the nearest-neighbor heuristic over the requested
// deliveries. An empty id list plans every unrouted pending delivery.
// Deliveries without coordinates cannot be placed and come back in
// SkippedIDs for geocode-then-retry handling.
func (s *service) PlanRoute(ctx context.Context, deliveryIDs []uuid.UUID) (*PlanPreview, error) {
	candidates, err := s.loadCandidates(ctx, deliveryIDs)
	if err != nil {
		return nil, err
	}

	var stops []Stop
	var skipped []uuid.UUID
	for i := range candidates {
		d := &candidates[i]
		if !d.HasCoordinates() {
			skipped = append(skipped, d.ID)
			continue
		}
		stops = append(stops, Stop{
			DeliveryID: d.ID,
			Point:      geo.Point{Lat: *d.Lat, Lng: *d.Lng},
		})
	}

	plan := PlanStops(s.depot, stops)
	return &PlanPreview{
		OrderedIDs:  plan.OrderedIDs,
		SkippedIDs:  skipped,
		DistanceKM:  plan.DistanceKM,
		DurationMin: plan.DurationMin,
	}, nil
}

// CommitRoute creates a planned route for the driver and assigns every
// delivery its route and 1-based sequence inside one transaction. A failure
// on any delivery rolls the whole batch back.
func (s *service) CommitRoute(ctx context.Context, driverID uuid.UUID, orderedIDs []uuid.UUID) (*models.Route, error) {
	if driverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "driver id is required")
	}
	if len(orderedIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one delivery is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, dup := seen[id]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("delivery %s appears more than once", id))
		}
		seen[id] = struct{}{}
	}

	var route *models.Route
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		routes := s.routes.WithTx(tx)
		deliveries := s.deliveries.WithTx(tx)

		loaded := make([]models.Delivery, 0, len(orderedIDs))
		for _, id := range orderedIDs {
			delivery, err := deliveries.FindByID(ctx, id)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeNotFound,
						fmt.Sprintf("delivery %s not found", id))
				}
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading delivery")
			}
			if delivery.RouteID != nil {
				return pkgerrors.New(pkgerrors.CodeStateConflict,
					fmt.Sprintf("delivery %s is already on a route", id))
			}
			if delivery.Status == enums.DeliveryStatusDelivered {
				return pkgerrors.New(pkgerrors.CodeStateConflict,
					fmt.Sprintf("delivery %s is already completed", id))
			}
			loaded = append(loaded, *delivery)
		}

		created, err := routes.Create(ctx, s.buildRoute(driverID, loaded))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating route")
		}

		// Per-stop ETAs come from the same linear model as the route totals,
		// accumulated leg by leg in the committed order. Stops without
		// coordinates get no ETA.
		departure := time.Now().UTC()
		current := s.depot
		legKM := 0.0
		visited := 0
		for i := range loaded {
			updates := map[string]any{
				"route_id":  created.ID,
				"sequence":  i + 1,
				"driver_id": driverID,
				"status":    enums.DeliveryStatusInProgress,
			}
			if loaded[i].HasCoordinates() {
				point := geo.Point{Lat: *loaded[i].Lat, Lng: *loaded[i].Lng}
				legKM += geo.HaversineKM(current, point)
				current = point
				visited++
				eta := departure.Add(time.Duration(estimateMinutes(legKM, visited)) * time.Minute)
				updates["estimated_arrival"] = eta
			}
			if err := deliveries.Update(ctx, loaded[i].ID, updates); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "assigning delivery to route")
			}
		}

		route = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"route_id":  route.ID.String(),
			"driver_id": driverID.String(),
			"stops":     len(orderedIDs),
		})
		s.logg.Info(logCtx, "route.committed")
	}
	return route, nil
}

func (s *service) GetRoute(ctx context.Context, routeID uuid.UUID) (*models.Route, error) {
	route, err := s.routes.FindByID(ctx, routeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "route not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading route")
	}
	return route, nil
}

func (s *service) ListDriverRoutes(ctx context.Context, driverID uuid.UUID, limit int) ([]models.Route, error) {
	routes, err := s.routes.ListByDriver(ctx, driverID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing driver routes")
	}
	return routes, nil
}

// CloseCompletedRoutes advances open routes from the state of their stops:
// IN_PROGRESS once the first stop lands, COMPLETED when none remain open.
// Drivers report per-stop statuses only, so the sweep owns the tail of the
// route lifecycle. Safe to run repeatedly.
func (s *service) CloseCompletedRoutes(ctx context.Context) (int, error) {
	open, err := s.routes.ListOpen(ctx, 0)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing open routes")
	}

	closed := 0
	var errs error
	for i := range open {
		route := &open[i]
		deliveries, err := s.deliveries.ListByRoute(ctx, route.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("route %s: %w", route.ID, err))
			continue
		}
		if len(deliveries) == 0 {
			continue
		}

		landed := 0
		for j := range deliveries {
			if deliveries[j].Status.IsTerminal() {
				landed++
			}
		}

		switch {
		case landed == len(deliveries):
			if err := s.routes.UpdateStatus(ctx, route.ID, enums.RouteStatusCompleted); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("route %s: %w", route.ID, err))
				continue
			}
			closed++
			if s.logg != nil {
				logCtx := s.logg.WithFields(ctx, map[string]any{
					"route_id": route.ID.String(),
					"stops":    len(deliveries),
				})
				s.logg.Info(logCtx, "route.completed")
			}
		case landed > 0 && route.Status == enums.RouteStatusPlanned:
			if err := s.routes.UpdateStatus(ctx, route.ID, enums.RouteStatusInProgress); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("route %s: %w", route.ID, err))
			}
		}
	}
	return closed, errs
}

func (s *service) loadCandidates(ctx context.Context, deliveryIDs []uuid.UUID) ([]models.Delivery, error) {
	if len(deliveryIDs) == 0 {
		deliveries, err := s.deliveries.ListUnrouted(ctx, 0)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing unrouted deliveries")
		}
		return deliveries, nil
	}

	out := make([]models.Delivery, 0, len(deliveryIDs))
	for _, id := range deliveryIDs {
		delivery, err := s.deliveries.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound,
					fmt.Sprintf("delivery %s not found", id))
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading delivery")
		}
		out = append(out, *delivery)
	}
	return out, nil
}

// buildRoute stamps the route with distance and duration estimates for the
// committed visiting order. The optimized flag records whether that order
// matches what the planner would have produced.
func (s *service) buildRoute(driverID uuid.UUID, loaded []models.Delivery) *models.Route {
	stops := make([]Stop, 0, len(loaded))
	for i := range loaded {
		if !loaded[i].HasCoordinates() {
			continue
		}
		stops = append(stops, Stop{
			DeliveryID: loaded[i].ID,
			Point:      geo.Point{Lat: *loaded[i].Lat, Lng: *loaded[i].Lng},
		})
	}

	route := &models.Route{
		DriverID:  driverID,
		RouteDate: time.Now().UTC().Truncate(24 * time.Hour),
		Status:    enums.RouteStatusPlanned,
	}
	if len(stops) == 0 {
		return route
	}

	distance := RouteDistanceKM(s.depot, stops)
	duration := estimateMinutes(distance, len(stops))
	route.DistanceKM = &distance
	route.DurationMin = &duration

	planned := PlanStops(s.depot, stops)
	route.Optimized = sameOrder(stops, planned.OrderedIDs)
	return route
}

func sameOrder(stops []Stop, plannedIDs []uuid.UUID) bool {
	if len(stops) != len(plannedIDs) {
		return false
	}
	for i := range stops {
		if stops[i].DeliveryID != plannedIDs[i] {
			return false
		}
	}
	return true
}
