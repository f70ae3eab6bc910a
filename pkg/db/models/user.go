package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/platterly/platterly-backend/pkg/enums"
)

// User is a storefront identity. Drivers and admins are roles on a user.
type User struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string         `gorm:"column:name;not null"`
	Email     string         `gorm:"column:email;uniqueIndex;not null"`
	Role      enums.UserRole `gorm:"column:role;not null;default:'customer'"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
