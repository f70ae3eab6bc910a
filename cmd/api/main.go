package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/platterly/platterly-backend/api/routes"
	"github.com/platterly/platterly-backend/internal/dispatch"
	"github.com/platterly/platterly-backend/internal/export"
	"github.com/platterly/platterly-backend/internal/ledger"
	"github.com/platterly/platterly-backend/internal/notify"
	"github.com/platterly/platterly-backend/internal/payments"
	"github.com/platterly/platterly-backend/internal/routeplan"
	"github.com/platterly/platterly-backend/pkg/config"
	"github.com/platterly/platterly-backend/pkg/db"
	"github.com/platterly/platterly-backend/pkg/logger"
	"github.com/platterly/platterly-backend/pkg/maps"
	"github.com/platterly/platterly-backend/pkg/metrics"
	"github.com/platterly/platterly-backend/pkg/migrate"
	"github.com/platterly/platterly-backend/pkg/redis"
	"github.com/platterly/platterly-backend/pkg/square"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	squareClient, err := square.NewClient(context.Background(), cfg.Square, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create square client", err)
		os.Exit(1)
	}

	var geocoder dispatch.Geocoder
	if cfg.Geocoding.APIKey != "" {
		var mapsOpts []maps.Option
		if cfg.Geocoding.BaseURL != "" {
			mapsOpts = append(mapsOpts, maps.WithBaseURL(cfg.Geocoding.BaseURL))
		}
		mapsClient, err := maps.NewClient(cfg.Geocoding.APIKey, mapsOpts...)
		if err != nil {
			logg.Error(context.Background(), "failed to create geocoding client", err)
			os.Exit(1)
		}
		geocoder = mapsClient
	}

	ledgerRepo := ledger.NewRepository(dbClient.DB())
	ledgerService, err := ledger.NewService(ledgerRepo, dbClient, cfg.Store, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	dispatchRepo := dispatch.NewRepository(dbClient.DB())
	dispatchService, err := dispatch.NewService(dispatchRepo, ledgerRepo, geocoder, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatch service", err)
		os.Exit(1)
	}

	var mailer notify.Mailer
	if cfg.Sendgrid.APIKey != "" {
		mailer, err = notify.NewClient(cfg.Sendgrid)
		if err != nil {
			logg.Error(context.Background(), "failed to create mail client", err)
			os.Exit(1)
		}
	}

	var exporter export.Exporter
	if cfg.Accounting.BaseURL != "" {
		exporter, err = export.NewClient(cfg.Accounting)
		if err != nil {
			logg.Error(context.Background(), "failed to create accounting client", err)
			os.Exit(1)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	paymentService, err := payments.NewService(
		squareClient,
		ledgerService,
		dispatchService,
		mailer,
		exporter,
		redisClient,
		paymentMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	routeRepo := routeplan.NewRouteRepository(dbClient.DB())
	routePlanService, err := routeplan.NewService(routeRepo, dispatchRepo, dbClient, cfg.Store, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create route service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			squareClient,
			ledgerService,
			paymentService,
			dispatchService,
			routePlanService,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
