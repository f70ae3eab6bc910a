package dispatch

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/platterly/platterly-backend/pkg/db/models"
	"github.com/platterly/platterly-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a delivery repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, delivery *models.Delivery) (*models.Delivery, error) {
	if delivery.ID == uuid.Nil {
		delivery.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(delivery).Error; err != nil {
		return nil, err
	}
	return delivery, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	var delivery models.Delivery
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&delivery).Error
	if err != nil {
		return nil, err
	}
	return &delivery, nil
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Delivery, error) {
	var delivery models.Delivery
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&delivery).Error
	if err != nil {
		return nil, err
	}
	return &delivery, nil
}

func (r *repository) ListByStatus(ctx context.Context, status enums.DeliveryStatus, limit int) ([]models.Delivery, error) {
	var deliveries []models.Delivery
	q := r.db.WithContext(ctx).Order("created_at ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&deliveries).Error; err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (r *repository) ListUnrouted(ctx context.Context, limit int) ([]models.Delivery, error) {
	var deliveries []models.Delivery
	q := r.db.WithContext(ctx).
		Where("route_id IS NULL AND status = ?", enums.DeliveryStatusPending).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&deliveries).Error; err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (r *repository) ListByRoute(ctx context.Context, routeID uuid.UUID) ([]models.Delivery, error) {
	var deliveries []models.Delivery
	err := r.db.WithContext(ctx).
		Where("route_id = ?", routeID).
		Order("sequence ASC").
		Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (r *repository) ListByDriver(ctx context.Context, driverID uuid.UUID) ([]models.Delivery, error) {
	var deliveries []models.Delivery
	err := r.db.WithContext(ctx).
		Where("driver_id = ?", driverID).
		Order("sequence ASC, created_at ASC").
		Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (r *repository) Update(ctx context.Context, deliveryID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Delivery{}).
		Where("id = ?", deliveryID).
		Updates(updates).Error
}
