package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	pkgerrors "github.com/platterly/platterly-backend/pkg/errors"
	"github.com/platterly/platterly-backend/pkg/metrics"
)

// Webhook handling outcomes, also used as the metric label.
const (
	WebhookAccepted  = "accepted"
	WebhookIgnored   = "ignored"
	WebhookUnmatched = "unmatched"
	WebhookDuplicate = "duplicate"
)

const (
	eventTypePaymentUpdated = "payment.updated"
	paymentStatusCompleted  = "COMPLETED"

	// Square retries undelivered events for up to 72 hours; dedupe keys
	// must outlive that window.
	eventDedupeTTL = 96 * time.Hour
)

// eventDeduper remembers webhook event ids so retries short-circuit before
// touching the ledger. The conditional status update stays the real guard.
type eventDeduper interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
}

// VerifyWebhookSignature checks the keyed digest Square sends with every
// event: base64(HMAC-SHA1(secret, notificationURL + rawBody)) against the
// X-Square-Signature header value.
func VerifyWebhookSignature(secret, notificationURL string, body []byte, signature string) bool {
	if strings.TrimSpace(secret) == "" {
		return false
	}
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

// GatewayEvent is the subset of Square's webhook envelope the reconciler
// reads.
type GatewayEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		Object struct {
			Payment struct {
				ID      string `json:"id"`
				Status  string `json:"status"`
				OrderID string `json:"order_id"`
			} `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

// HandleGatewayEvent processes one webhook delivery. Only completed-payment
// events act on the ledger; everything else is acknowledged and ignored, and
// an event whose correlation id matches no order is logged as an anomaly but
// still acknowledged so the gateway stops retrying it.
func (s *service) HandleGatewayEvent(ctx context.Context, raw []byte) (string, error) {
	var event GatewayEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook payload")
	}

	result, err := s.processEvent(ctx, &event)
	if s.metrics != nil && result != "" {
		s.metrics.IncWebhook(result)
	}
	return result, err
}

func (s *service) processEvent(ctx context.Context, event *GatewayEvent) (string, error) {
	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithFields(ctx, map[string]any{
			"event_id":   event.EventID,
			"event_type": event.Type,
		})
	}

	if event.Type != eventTypePaymentUpdated {
		if s.logg != nil {
			s.logg.Info(logCtx, "webhook.ignored_event_type")
		}
		return WebhookIgnored, nil
	}

	payment := event.Data.Object.Payment
	if payment.Status != paymentStatusCompleted {
		if s.logg != nil {
			s.logg.Info(logCtx, "webhook.ignored_payment_status")
		}
		return WebhookIgnored, nil
	}

	if s.events != nil && event.EventID != "" {
		key := s.events.IdempotencyKey("webhook_event", event.EventID)
		first, err := s.events.SetNX(ctx, key, payment.ID, eventDedupeTTL)
		if err != nil {
			// Dedupe is an optimization. CompleteOrder tolerates replays.
			if s.logg != nil {
				s.logg.Warn(logCtx, "webhook.dedupe_unavailable: "+err.Error())
			}
		} else if !first {
			return WebhookDuplicate, nil
		}
	}

	if payment.OrderID == "" || payment.ID == "" {
		if s.logg != nil {
			s.logg.Warn(logCtx, "webhook.missing_payment_fields")
		}
		return WebhookIgnored, nil
	}

	order, err := s.ledger.GetOrderByPaymentRef(ctx, payment.OrderID)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			if s.logg != nil {
				s.logg.Warn(logCtx, "webhook.unmatched_correlation_id")
			}
			return WebhookUnmatched, nil
		}
		return "", err
	}

	if _, err := s.CompleteOrder(ctx, order.ID, payment.ID, metrics.TriggerWebhook); err != nil {
		return "", err
	}
	return WebhookAccepted, nil
}
