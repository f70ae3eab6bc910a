package dispatch

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/platterly/platterly-backend/pkg/db/models"
	"github.com/platterly/platterly-backend/pkg/enums"
)

// Repository defines persistence operations for deliveries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, delivery *models.Delivery) (*models.Delivery, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Delivery, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Delivery, error)
	ListByStatus(ctx context.Context, status enums.DeliveryStatus, limit int) ([]models.Delivery, error)
	ListUnrouted(ctx context.Context, limit int) ([]models.Delivery, error)
	ListByRoute(ctx context.Context, routeID uuid.UUID) ([]models.Delivery, error)
	ListByDriver(ctx context.Context, driverID uuid.UUID) ([]models.Delivery, error)
	Update(ctx context.Context, deliveryID uuid.UUID, updates map[string]any) error
}
