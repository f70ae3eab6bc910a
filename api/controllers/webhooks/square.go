package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/platterly/platterly-backend/api/responses"
	"github.com/platterly/platterly-backend/internal/payments"
	"github.com/platterly/platterly-backend/pkg/config"
	pkgerrors "github.com/platterly/platterly-backend/pkg/errors"
	"github.com/platterly/platterly-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

type PaymentEventService interface {
	HandleGatewayEvent(ctx context.Context, raw []byte) (string, error)
}

type squareClient interface {
	SigningSecret() string
	NotificationURL() string
}

// SquarePayment handles Square payment.updated notifications. Signature
// failures are fatal in production; in dev and staging sandbox events carry
// test signatures, so we log and keep going.
func SquarePayment(svc PaymentEventService, client squareClient, app config.AppConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "square client unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get("X-Square-Signature")
		if !payments.VerifyWebhookSignature(client.SigningSecret(), client.NotificationURL(), payload, signature) {
			if app.IsProd() {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignature, "invalid webhook signature"))
				return
			}
			if logg != nil {
				logg.Warn(ctx, "webhook.signature_mismatch_ignored")
			}
		}

		result, err := svc.HandleGatewayEvent(ctx, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"result": result})
	}
}
