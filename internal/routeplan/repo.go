package routeplan

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/platterly/platterly-backend/pkg/db/models"
	"github.com/platterly/platterly-backend/pkg/enums"
)

type routeRepository struct {
	db *gorm.DB
}

// NewRouteRepository builds a route repository bound to the provided DB.
func NewRouteRepository(db *gorm.DB) RouteRepository {
	return &routeRepository{db: db}
}

func (r *routeRepository) WithTx(tx *gorm.DB) RouteRepository {
	if tx == nil {
		return r
	}
	return &routeRepository{db: tx}
}

func (r *routeRepository) Create(ctx context.Context, route *models.Route) (*models.Route, error) {
	if route.ID == uuid.Nil {
		route.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(route).Error; err != nil {
		return nil, err
	}
	return route, nil
}

func (r *routeRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Route, error) {
	var route models.Route
	err := r.db.WithContext(ctx).
		Preload("Deliveries", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Where("id = ?", id).
		First(&route).Error
	if err != nil {
		return nil, err
	}
	return &route, nil
}

func (r *routeRepository) ListByDriver(ctx context.Context, driverID uuid.UUID, limit int) ([]models.Route, error) {
	var routes []models.Route
	q := r.db.WithContext(ctx).
		Where("driver_id = ?", driverID).
		Order("route_date DESC, created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&routes).Error; err != nil {
		return nil, err
	}
	return routes, nil
}

func (r *routeRepository) ListOpen(ctx context.Context, limit int) ([]models.Route, error) {
	var routes []models.Route
	q := r.db.WithContext(ctx).
		Where("status IN ?", []enums.RouteStatus{enums.RouteStatusPlanned, enums.RouteStatusInProgress}).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&routes).Error; err != nil {
		return nil, err
	}
	return routes, nil
}

func (r *routeRepository) UpdateStatus(ctx context.Context, routeID uuid.UUID, status enums.RouteStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Route{}).
		Where("id = ?", routeID).
		Update("status", status).Error
}
