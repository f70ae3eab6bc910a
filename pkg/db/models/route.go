package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/platterly/platterly-backend/pkg/enums"
)

// Route is a driver's ordered batch of deliveries for a day. Deliveries point
// at the route by foreign key; sequence numbers are dense 1..N once a route
// is committed.
type Route struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DriverID    uuid.UUID         `gorm:"column:driver_id;type:uuid;not null"`
	RouteDate   time.Time         `gorm:"column:route_date;not null"`
	Status      enums.RouteStatus `gorm:"column:status;not null;default:'planned'"`
	Optimized   bool              `gorm:"column:optimized;not null;default:false"`
	DistanceKM  *float64          `gorm:"column:distance_km"`
	DurationMin *int              `gorm:"column:duration_min"`
	Deliveries  []Delivery        `gorm:"foreignKey:RouteID"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
