package routeplan

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/platterly/platterly-backend/pkg/db/models"
	"github.com/platterly/platterly-backend/pkg/enums"
)

// RouteRepository defines persistence operations for routes.
type RouteRepository interface {
	WithTx(tx *gorm.DB) RouteRepository
	Create(ctx context.Context, route *models.Route) (*models.Route, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Route, error)
	ListByDriver(ctx context.Context, driverID uuid.UUID, limit int) ([]models.Route, error)
	ListOpen(ctx context.Context, limit int) ([]models.Route, error)
	UpdateStatus(ctx context.Context, routeID uuid.UUID, status enums.RouteStatus) error
}
