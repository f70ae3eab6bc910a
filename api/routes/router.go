package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/platterly/platterly-backend/api/controllers"
	webhookcontrollers "github.com/platterly/platterly-backend/api/controllers/webhooks"
	"github.com/platterly/platterly-backend/api/middleware"
	"github.com/platterly/platterly-backend/internal/dispatch"
	"github.com/platterly/platterly-backend/internal/ledger"
	"github.com/platterly/platterly-backend/internal/payments"
	"github.com/platterly/platterly-backend/internal/routeplan"
	"github.com/platterly/platterly-backend/pkg/config"
	"github.com/platterly/platterly-backend/pkg/db"
	"github.com/platterly/platterly-backend/pkg/logger"
	"github.com/platterly/platterly-backend/pkg/redis"
	"github.com/platterly/platterly-backend/pkg/square"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	squareClient *square.Client,
	ledgerService ledger.Service,
	paymentService payments.Service,
	dispatchService dispatch.Service,
	routePlanService routeplan.Service,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.RateLimit.CheckoutWindow,
		cfg.RateLimit.CheckoutIPLimit,
	)
	webhookPolicy := middleware.NewRateLimitPolicy(
		"webhook",
		cfg.RateLimit.WebhookWindow,
		cfg.RateLimit.WebhookIPLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.RateLimit(webhookPolicy, redisClient, logg)).
			Post("/square", webhookcontrollers.SquarePayment(paymentService, squareClient, cfg.App, logg))
	})

	// Storefront checkout is unauthenticated; guests order by email.
	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.RateLimit(checkoutPolicy, redisClient, logg)).Group(func(r chi.Router) {
			r.Post("/orders", controllers.CreateOrder(ledgerService, logg))
			r.Post("/orders/{orderID}/checkout-link", controllers.CreateCheckoutLink(paymentService, logg))
			r.Post("/orders/{orderID}/charge", controllers.ChargeCard(paymentService, logg))
		})
		r.Get("/orders/{orderID}", controllers.GetOrder(ledgerService, logg))
		r.Get("/checkout/return", controllers.CheckoutReturn(paymentService, logg))
	})

	r.Route("/api/v1/driver", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, "driver", "admin"))
		r.Get("/deliveries", controllers.MyDeliveries(dispatchService, logg))
		r.Post("/deliveries/{deliveryID}/status", controllers.UpdateDeliveryStatus(dispatchService, logg))
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, "admin"))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(ledgerService, logg))
			r.Post("/{orderID}/transition", controllers.TransitionOrder(ledgerService, logg))
		})

		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/", controllers.ListDeliveries(dispatchService, logg))
			r.Get("/{deliveryID}", controllers.GetDelivery(dispatchService, logg))
			r.Post("/{deliveryID}/assign", controllers.AssignDriver(dispatchService, logg))
			r.Post("/{deliveryID}/unassign", controllers.UnassignDriver(dispatchService, logg))
		})

		r.Route("/routes", func(r chi.Router) {
			r.Post("/plan", controllers.PlanRoute(routePlanService, logg))
			r.Post("/", controllers.CommitRoute(routePlanService, logg))
			r.Get("/{routeID}", controllers.GetRoute(routePlanService, logg))
			r.Get("/drivers/{driverID}", controllers.ListDriverRoutes(routePlanService, logg))
		})
	})

	return r
}
