package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/platterly/platterly-backend/pkg/db/models"
	"github.com/platterly/platterly-backend/pkg/enums"
)

// Repository defines persistence operations for the order ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	FindByPaymentRef(ctx context.Context, paymentRef string) (*models.Order, error)
	ListByStatus(ctx context.Context, status enums.OrderStatus, limit int) ([]models.Order, error)
	FindPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
	FindPaidWithoutDelivery(ctx context.Context, limit int) ([]models.Order, error)
	Update(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	// UpdateStatusIf performs the guarded transition: a single conditional
	// UPDATE keyed by id and expected prior status. The boolean reports
	// whether this call actually moved the row.
	UpdateStatusIf(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error)
}
