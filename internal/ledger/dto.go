package ledger

import (
	"github.com/google/uuid"
)

// OrderItemInput is one meal line supplied at order creation.
type OrderItemInput struct {
	MealID         uuid.UUID
	Name           string
	Qty            int
	UnitPriceCents int
}

// CreateOrderInput carries everything needed to open a PENDING order.
type CreateOrderInput struct {
	UserID        *uuid.UUID
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Street        string
	City          string
	State         string
	Zip           string
	Items         []OrderItemInput
}
