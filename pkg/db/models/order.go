package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/platterly/platterly-backend/pkg/enums"
)

// Order is a customer's purchase record. Line items are snapshotted at
// purchase time and immutable afterwards; only status, the payment
// correlation fields, and timestamps change over its life.
type Order struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber   string            `gorm:"column:order_number;uniqueIndex;not null"`
	UserID        *uuid.UUID        `gorm:"column:user_id;type:uuid"`
	CustomerName  string            `gorm:"column:customer_name;not null"`
	CustomerEmail string            `gorm:"column:customer_email;not null"`
	CustomerPhone string            `gorm:"column:customer_phone"`
	Street        string            `gorm:"column:street;not null"`
	City          string            `gorm:"column:city;not null"`
	State         string            `gorm:"column:state;not null"`
	Zip           string            `gorm:"column:zip;not null"`
	Status        enums.OrderStatus `gorm:"column:status;not null;default:'pending'"`
	SubtotalCents int               `gorm:"column:subtotal_cents;not null"`
	TaxCents      int               `gorm:"column:tax_cents;not null;default:0"`
	TotalCents    int               `gorm:"column:total_cents;not null"`
	PaymentRef    *string           `gorm:"column:payment_ref"`
	PaymentTxnID  *string           `gorm:"column:payment_txn_id"`
	Items         []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// ShippingAddress renders the customer address as a single geocodable line.
func (o Order) ShippingAddress() string {
	return o.Street + ", " + o.City + ", " + o.State + " " + o.Zip
}
