package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/platterly/platterly-backend/api/responses"
	"github.com/platterly/platterly-backend/api/validators"
	"github.com/platterly/platterly-backend/internal/payments"
	pkgerrors "github.com/platterly/platterly-backend/pkg/errors"
	"github.com/platterly/platterly-backend/pkg/logger"
)

type checkoutLinkRequest struct {
	RedirectURL string `json:"redirect_url" validate:"omitempty,url,max=500"`
}

type checkoutLinkResponse struct {
	LinkID         string `json:"link_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	URL            string `json:"url"`
}

// CreateCheckoutLink issues a hosted payment page URL for a pending order.
func CreateCheckoutLink(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		orderID, err := pathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutLinkRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		link, err := svc.CreateCheckoutLink(r.Context(), orderID, payload.RedirectURL)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutLinkResponse{
			LinkID:         link.LinkID,
			GatewayOrderID: link.GatewayOrderID,
			URL:            link.URL,
		})
	}
}

// CheckoutReturn handles the browser redirect back from the hosted payment
// page. The gateway appends the transaction id as a query parameter.
func CheckoutReturn(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawID := r.URL.Query().Get("order_id")
		orderID, err := uuid.Parse(rawID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order_id"))
			return
		}
		txnID := strings.TrimSpace(r.URL.Query().Get("transaction_id"))

		order, err := svc.HandleCheckoutReturn(r.Context(), orderID, txnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

type chargeCardRequest struct {
	SourceID string `json:"source_id" validate:"required,max=200"`
}

// ChargeCard runs a direct card payment using a tokenized card source.
func ChargeCard(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		orderID, err := pathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload chargeCardRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.ChargeCard(r.Context(), orderID, payload.SourceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order))
	}
}
