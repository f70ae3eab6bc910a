package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platterly/platterly-backend/internal/cron"
	"github.com/platterly/platterly-backend/internal/dispatch"
	"github.com/platterly/platterly-backend/internal/ledger"
	"github.com/platterly/platterly-backend/internal/routeplan"
	"github.com/platterly/platterly-backend/pkg/config"
	"github.com/platterly/platterly-backend/pkg/db"
	"github.com/platterly/platterly-backend/pkg/logger"
	"github.com/platterly/platterly-backend/pkg/maps"
	"github.com/platterly/platterly-backend/pkg/metrics"
	"github.com/platterly/platterly-backend/pkg/migrate"
	"github.com/platterly/platterly-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "dispatch-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "dispatch-worker"

	logg = logger.New(logger.Options{
		ServiceName: "dispatch-worker",
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

	routePlanService, err := routeplan.NewService(routeplan.NewRouteRepository(dbClient.DB()), dispatchRepo, dbClient, cfg.Store, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create route planner", err)
		os.Exit(1)
	}

	backfillJob, err := cron.NewDeliveryBackfillJob(dispatchService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create backfill job", err)
		os.Exit(1)
	}
	expiryJob, err := cron.NewOrderExpiryJob(ledgerService, cfg.Cron.PendingOrderTTL, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create expiry job", err)
		os.Exit(1)
	}
	routeClosureJob, err := cron.NewRouteClosureJob(routePlanService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create route closure job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("dispatch-worker"), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(backfillJob, expiryJob, routeClosureJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting dispatch worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "dispatch worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "dispatch worker shutting down gracefully")
}
