package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/platterly/platterly-backend/api/middleware"
	"github.com/platterly/platterly-backend/api/responses"
	"github.com/platterly/platterly-backend/api/validators"
	"github.com/platterly/platterly-backend/internal/ledger"
	"github.com/platterly/platterly-backend/pkg/db/models"
	"github.com/platterly/platterly-backend/pkg/enums"
	pkgerrors "github.com/platterly/platterly-backend/pkg/errors"
	"github.com/platterly/platterly-backend/pkg/logger"
)

type createOrderRequest struct {
	CustomerName  string                   `json:"customer_name" validate:"required,max=120"`
	CustomerEmail string                   `json:"customer_email" validate:"required,email"`
	CustomerPhone string                   `json:"customer_phone" validate:"omitempty,max=32"`
	Street        string                   `json:"street" validate:"required,max=200"`
	City          string                   `json:"city" validate:"required,max=100"`
	State         string                   `json:"state" validate:"required,max=40"`
	Zip           string                   `json:"zip" validate:"required,max=12"`
	Items         []createOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type createOrderItemRequest struct {
	MealID         uuid.UUID `json:"meal_id" validate:"required"`
	Name           string    `json:"name" validate:"required,max=160"`
	Qty            int       `json:"qty" validate:"required,min=1"`
	UnitPriceCents int       `json:"unit_price_cents" validate:"required,min=0"`
}

type orderItemResponse struct {
	MealID         uuid.UUID `json:"meal_id"`
	Name           string    `json:"name"`
	Qty            int       `json:"qty"`
	UnitPriceCents int       `json:"unit_price_cents"`
	TotalCents     int       `json:"total_cents"`
}

type orderResponse struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	Status        string              `json:"status"`
	CustomerName  string              `json:"customer_name"`
	CustomerEmail string              `json:"customer_email"`
	Street        string              `json:"street"`
	City          string              `json:"city"`
	State         string              `json:"state"`
	Zip           string              `json:"zip"`
	SubtotalCents int                 `json:"subtotal_cents"`
	TaxCents      int                 `json:"tax_cents"`
	TotalCents    int                 `json:"total_cents"`
	Items         []orderItemResponse `json:"items,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

func newOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        order.Status.String(),
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		Street:        order.Street,
		City:          order.City,
		State:         order.State,
		Zip:           order.Zip,
		SubtotalCents: order.SubtotalCents,
		TaxCents:      order.TaxCents,
		TotalCents:    order.TotalCents,
		CreatedAt:     order.CreatedAt,
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			MealID:         item.MealID,
			Name:           item.Name,
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
			TotalCents:     item.TotalCents,
		})
	}
	return resp
}

// CreateOrder opens a PENDING order for guest or signed-in checkout.
func CreateOrder(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := ledger.CreateOrderInput{
			CustomerName:  validators.SanitizeString(payload.CustomerName, 120),
			CustomerEmail: validators.SanitizeString(payload.CustomerEmail, 254),
			CustomerPhone: validators.SanitizeString(payload.CustomerPhone, 32),
			Street:        validators.SanitizeString(payload.Street, 200),
			City:          validators.SanitizeString(payload.City, 100),
			State:         validators.SanitizeString(payload.State, 40),
			Zip:           validators.SanitizeString(payload.Zip, 12),
		}
		if raw := middleware.UserIDFromContext(r.Context()); raw != "" {
			if userID, err := uuid.Parse(raw); err == nil {
				input.UserID = &userID
			}
		}
		for _, item := range payload.Items {
			input.Items = append(input.Items, ledger.OrderItemInput{
				MealID:         item.MealID,
				Name:           validators.SanitizeString(item.Name, 160),
				Qty:            item.Qty,
				UnitPriceCents: item.UnitPriceCents,
			})
		}

		order, err := svc.CreateOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

// GetOrder returns one order with its items.
func GetOrder(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// ListOrders is the staff view, optionally filtered by status.
func ListOrders(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status enums.OrderStatus
		if raw := r.URL.Query().Get("status"); raw != "" {
			parsed, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			status = parsed
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orders, err := svc.ListOrders(r.Context(), status, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]orderResponse, 0, len(orders))
		for i := range orders {
			out = append(out, newOrderResponse(&orders[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

type transitionOrderRequest struct {
	Status string `json:"status" validate:"required"`
}

// TransitionOrder is the privileged status edit used by staff screens.
func TransitionOrder(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := pathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload transitionOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status"))
			return
		}

		order, err := svc.Transition(r.Context(), orderID, target)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := chi.URLParam(r, param)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+param)
	}
	return id, nil
}
