package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/platterly/platterly-backend/pkg/enums"
)

// Delivery is the physical-fulfillment record derived 1:1 from a paid order.
// The unique index on order_id is what makes delivery creation idempotent.
type Delivery struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID            `gorm:"column:order_id;type:uuid;uniqueIndex;not null"`
	Status           enums.DeliveryStatus `gorm:"column:status;not null;default:'pending'"`
	DriverID         *uuid.UUID           `gorm:"column:driver_id;type:uuid"`
	RouteID          *uuid.UUID           `gorm:"column:route_id;type:uuid"`
	Sequence         *int                 `gorm:"column:sequence"`
	Lat              *float64             `gorm:"column:lat"`
	Lng              *float64             `gorm:"column:lng"`
	SignedBy         *string              `gorm:"column:signed_by"`
	SignatureURL     *string              `gorm:"column:signature_url"`
	PhotoURL         *string              `gorm:"column:photo_url"`
	DeliveredAt      *time.Time           `gorm:"column:delivered_at"`
	EstimatedArrival *time.Time           `gorm:"column:estimated_arrival"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// HasCoordinates reports whether the delivery was successfully geocoded.
func (d Delivery) HasCoordinates() bool {
	return d.Lat != nil && d.Lng != nil
}
