package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"

	"github.com/platterly/platterly-backend/pkg/db/models"
	"github.com/platterly/platterly-backend/pkg/enums"
	pkgerrors "github.com/platterly/platterly-backend/pkg/errors"
	"github.com/platterly/platterly-backend/pkg/logger"
	"github.com/platterly/platterly-backend/pkg/metrics"
	"github.com/platterly/platterly-backend/pkg/square"
)

// gateway is the slice of the Square client the reconciler needs.
type gateway interface {
	CreatePaymentLink(ctx context.Context, params square.PaymentLinkCreateParams) (*sq.PaymentLink, error)
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	LocationID() string
}

// orderLedger is the slice of the order service the reconciler needs.
type orderLedger interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetOrderByPaymentRef(ctx context.Context, paymentRef string) (*models.Order, error)
	SetPaymentCorrelation(ctx context.Context, orderID uuid.UUID, paymentRef string) error
	CompleteIfPending(ctx context.Context, orderID uuid.UUID, txnID string) (bool, *models.Order, error)
}

// deliveryDispatcher materializes the delivery once an order is paid.
type deliveryDispatcher interface {
	EnsureDelivery(ctx context.Context, order *models.Order) (*models.Delivery, error)
}

// Mailer sends the payment confirmation email. Best effort.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order) error
}

// Exporter pushes the paid order to accounting. Best effort.
type Exporter interface {
	ExportPaidOrder(ctx context.Context, order *models.Order) error
}

// CheckoutLink is the hosted payment page handed back to the storefront.
type CheckoutLink struct {
	LinkID         string
	GatewayOrderID string
	URL            string
}

// Service is the payment reconciler. Three independent paths can observe a
// completed payment: the checkout redirect, a direct card charge, and the
// asynchronous gateway webhook. All of them funnel into CompleteOrder, which
// is safe to call any number of times concurrently per order.
type Service interface {
	CreateCheckoutLink(ctx context.Context, orderID uuid.UUID, redirectURL string) (*CheckoutLink, error)
	HandleCheckoutReturn(ctx context.Context, orderID uuid.UUID, transactionID string) (*models.Order, error)
	ChargeCard(ctx context.Context, orderID uuid.UUID, sourceToken string) (*models.Order, error)
	CompleteOrder(ctx context.Context, orderID uuid.UUID, txnID, trigger string) (*models.Order, error)
	HandleGatewayEvent(ctx context.Context, raw []byte) (string, error)
}

type service struct {
	gateway    gateway
	ledger     orderLedger
	dispatcher deliveryDispatcher
	mailer     Mailer
	exporter   Exporter
	events     eventDeduper
	metrics    *metrics.PaymentMetrics
	logg       *logger.Logger
}

// NewService wires the reconciler. Mailer, exporter, event deduper, and
// metrics may be nil; the matching side effects are then skipped.
func NewService(
	gw gateway,
	ledger orderLedger,
	dispatcher deliveryDispatcher,
	mailer Mailer,
	exporter Exporter,
	events eventDeduper,
	pm *metrics.PaymentMetrics,
	logg *logger.Logger,
) (Service, error) {
	if gw == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("order ledger required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("delivery dispatcher required")
	}
	return &service{
		gateway:    gw,
		ledger:     ledger,
		dispatcher: dispatcher,
		mailer:     mailer,
		exporter:   exporter,
		events:     events,
		metrics:    pm,
		logg:       logg,
	}, nil
}

// CreateCheckoutLink builds a hosted payment page for a pending order and
// records the gateway's own order id so the later webhook can be matched
// back.
func (s *service) CreateCheckoutLink(ctx context.Context, orderID uuid.UUID, redirectURL string) (*CheckoutLink, error) {
	order, err := s.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order %s is %s, checkout is closed", order.OrderNumber, order.Status))
	}

	lines, err := buildChargeLines(order)
	if err != nil {
		return nil, err
	}

	link, err := s.gateway.CreatePaymentLink(ctx, square.PaymentLinkCreateParams{
		LocationID:  s.gateway.LocationID(),
		ReferenceID: order.OrderNumber,
		LineItems:   lines,
		RedirectURL: redirectURL,
		Description: fmt.Sprintf("Platterly order %s", order.OrderNumber),
	})
	if err != nil {
		return nil, err
	}

	gatewayOrderID := stringValue(link.GetOrderID())
	if gatewayOrderID != "" {
		if err := s.ledger.SetPaymentCorrelation(ctx, orderID, gatewayOrderID); err != nil {
			// The link exists on the gateway either way. Without the
			// correlation the webhook cannot match, so fail loudly.
			return nil, err
		}
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, orderID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"payment_link_id": stringValue(link.GetID())})
		s.logg.Info(logCtx, "checkout.link_created")
	}
	return &CheckoutLink{
		LinkID:         stringValue(link.GetID()),
		GatewayOrderID: gatewayOrderID,
		URL:            stringValue(link.GetURL()),
	}, nil
}

// HandleCheckoutReturn is the redirect path: the customer lands back on the
// storefront carrying the gateway transaction reference.
func (s *service) HandleCheckoutReturn(ctx context.Context, orderID uuid.UUID, transactionID string) (*models.Order, error) {
	txn := strings.TrimSpace(transactionID)
	if txn == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	return s.CompleteOrder(ctx, orderID, txn, metrics.TriggerCheckoutReturn)
}

// ChargeCard runs a direct charge against a tokenized card. A decline leaves
// the order PENDING and surfaces only a generic message; gateway internals
// stay in the logs.
func (s *service) ChargeCard(ctx context.Context, orderID uuid.UUID, sourceToken string) (*models.Order, error) {
	token := strings.TrimSpace(sourceToken)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment source is required")
	}

	order, err := s.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order %s is %s, it cannot be charged", order.OrderNumber, order.Status))
	}
	if _, err := buildChargeLines(order); err != nil {
		return nil, err
	}

	payment, err := s.gateway.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents: int64(order.TotalCents),
		LocationID:  s.gateway.LocationID(),
		SourceID:    token,
		ReferenceID: order.OrderNumber,
		BuyerEmail:  order.CustomerEmail,
		Note:        fmt.Sprintf("Platterly order %s", order.OrderNumber),
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodePaymentDeclined {
			if s.metrics != nil {
				s.metrics.IncDecline()
			}
			if s.logg != nil {
				s.logg.Warn(s.logg.WithOrderID(ctx, orderID.String()), "charge.declined")
			}
		}
		return nil, err
	}

	txnID := stringValue(payment.GetID())
	if txnID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway returned no transaction id")
	}
	return s.CompleteOrder(ctx, orderID, txnID, metrics.TriggerDirectCharge)
}

// CompleteOrder is the idempotent convergence point. The PENDING→PAID
// conditional update inside the ledger is the only gate; a duplicate call is
// a success, and side effects fire only for the call that observed the
// transition actually happen.
func (s *service) CompleteOrder(ctx context.Context, orderID uuid.UUID, txnID, trigger string) (*models.Order, error) {
	moved, order, err := s.ledger.CompleteIfPending(ctx, orderID, txnID)
	if err != nil {
		return nil, err
	}

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithOrderID(ctx, orderID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"trigger": trigger, "txn_id": txnID})
	}

	if !moved {
		if s.metrics != nil {
			s.metrics.IncDuplicate(trigger)
		}
		if s.logg != nil {
			switch order.Status {
			case enums.OrderStatusCancelled, enums.OrderStatusFailed:
				// A captured payment on a dead order, e.g. the expiry sweep
				// won the race against a late webhook. The charge needs
				// manual follow-up.
				s.logg.Warn(s.logg.WithField(logCtx, "order_status", string(order.Status)),
					"payment.completed_on_dead_order")
			default:
				s.logg.Info(logCtx, "payment.duplicate_completion")
			}
		}
		return order, nil
	}

	if s.metrics != nil {
		s.metrics.IncCompletion(trigger)
	}
	if s.logg != nil {
		s.logg.Info(logCtx, "payment.completed")
	}

	s.fireSideEffects(logCtx, order)
	return order, nil
}

// fireSideEffects runs the post-payment work. Each effect is isolated: a
// failure is logged and the rest still run. Nothing here can undo the PAID
// transition.
func (s *service) fireSideEffects(ctx context.Context, order *models.Order) {
	if _, err := s.dispatcher.EnsureDelivery(ctx, order); err != nil {
		s.logSideEffectFailure(ctx, "delivery", err)
	}
	if s.mailer != nil {
		if err := s.mailer.SendOrderConfirmation(ctx, order); err != nil {
			s.logSideEffectFailure(ctx, "confirmation_email", err)
		}
	}
	if s.exporter != nil {
		if err := s.exporter.ExportPaidOrder(ctx, order); err != nil {
			s.logSideEffectFailure(ctx, "accounting_export", err)
		}
	}
}

func (s *service) logSideEffectFailure(ctx context.Context, effect string, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{"side_effect": effect})
	s.logg.Error(logCtx, "payment.side_effect_failed", err)
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
