package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/platterly/platterly-backend/api/middleware"
	"github.com/platterly/platterly-backend/api/responses"
	"github.com/platterly/platterly-backend/api/validators"
	"github.com/platterly/platterly-backend/internal/dispatch"
	"github.com/platterly/platterly-backend/pkg/db/models"
	"github.com/platterly/platterly-backend/pkg/enums"
	pkgerrors "github.com/platterly/platterly-backend/pkg/errors"
	"github.com/platterly/platterly-backend/pkg/logger"
)

type deliveryResponse struct {
	DeliveryID       uuid.UUID  `json:"delivery_id"`
	OrderID          uuid.UUID  `json:"order_id"`
	Status           string     `json:"status"`
	DriverID         *uuid.UUID `json:"driver_id,omitempty"`
	RouteID          *uuid.UUID `json:"route_id,omitempty"`
	Sequence         *int       `json:"sequence,omitempty"`
	Lat              *float64   `json:"lat,omitempty"`
	Lng              *float64   `json:"lng,omitempty"`
	SignedBy         *string    `json:"signed_by,omitempty"`
	SignatureURL     *string    `json:"signature_url,omitempty"`
	PhotoURL         *string    `json:"photo_url,omitempty"`
	EstimatedArrival *time.Time `json:"estimated_arrival,omitempty"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func newDeliveryResponse(d *models.Delivery) deliveryResponse {
	return deliveryResponse{
		DeliveryID:       d.ID,
		OrderID:          d.OrderID,
		Status:           d.Status.String(),
		DriverID:         d.DriverID,
		RouteID:          d.RouteID,
		Sequence:         d.Sequence,
		Lat:              d.Lat,
		Lng:              d.Lng,
		SignedBy:         d.SignedBy,
		SignatureURL:     d.SignatureURL,
		PhotoURL:         d.PhotoURL,
		EstimatedArrival: d.EstimatedArrival,
		DeliveredAt:      d.DeliveredAt,
		CreatedAt:        d.CreatedAt,
	}
}

func newDeliveryListResponse(deliveries []models.Delivery) []deliveryResponse {
	out := make([]deliveryResponse, 0, len(deliveries))
	for i := range deliveries {
		out = append(out, newDeliveryResponse(&deliveries[i]))
	}
	return out
}

// ListDeliveries is the staff view, optionally filtered by status.
func ListDeliveries(svc dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status enums.DeliveryStatus
		if raw := r.URL.Query().Get("status"); raw != "" {
			status = enums.DeliveryStatus(raw)
			if !status.IsKnown() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter"))
				return
			}
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		deliveries, err := svc.ListDeliveries(r.Context(), status, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newDeliveryListResponse(deliveries))
	}
}

// GetDelivery returns one delivery.
func GetDelivery(svc dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deliveryID, err := pathUUID(r, "deliveryID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		delivery, err := svc.GetDelivery(r.Context(), deliveryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newDeliveryResponse(delivery))
	}
}

// MyDeliveries lists the authenticated driver's active stops.
func MyDeliveries(svc dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driverID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing driver identity"))
			return
		}

		deliveries, err := svc.ListDriverDeliveries(r.Context(), driverID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newDeliveryListResponse(deliveries))
	}
}

type assignDriverRequest struct {
	DriverID uuid.UUID `json:"driver_id" validate:"required"`
}

// AssignDriver puts a delivery on a driver's plate and marks it in progress.
func AssignDriver(svc dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deliveryID, err := pathUUID(r, "deliveryID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload assignDriverRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		delivery, err := svc.AssignDriver(r.Context(), deliveryID, payload.DriverID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newDeliveryResponse(delivery))
	}
}

// UnassignDriver takes a delivery back off a driver and resets it to pending.
func UnassignDriver(svc dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deliveryID, err := pathUUID(r, "deliveryID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		delivery, err := svc.UnassignDriver(r.Context(), deliveryID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newDeliveryResponse(delivery))
	}
}

type updateDeliveryStatusRequest struct {
	Status       string  `json:"status" validate:"required"`
	SignedBy     *string `json:"signed_by" validate:"omitempty,max=120"`
	SignatureURL *string `json:"signature_url" validate:"omitempty,url,max=500"`
	PhotoURL     *string `json:"photo_url" validate:"omitempty,url,max=500"`
}

// UpdateDeliveryStatus is the driver-facing status update, with optional
// proof of delivery when marking delivered.
func UpdateDeliveryStatus(svc dispatch.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deliveryID, err := pathUUID(r, "deliveryID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateDeliveryStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := enums.DeliveryStatus(payload.Status)
		if !status.IsKnown() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid status"))
			return
		}

		var proof *dispatch.ProofInput
		if payload.SignedBy != nil || payload.SignatureURL != nil || payload.PhotoURL != nil {
			proof = &dispatch.ProofInput{
				SignedBy:     payload.SignedBy,
				SignatureURL: payload.SignatureURL,
				PhotoURL:     payload.PhotoURL,
			}
		}

		delivery, err := svc.UpdateStatus(r.Context(), deliveryID, status, proof)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newDeliveryResponse(delivery))
	}
}
