package cron

import (
	"context"
	"fmt"

	"github.com/platterly/platterly-backend/pkg/logger"
)

// routeCloser advances open routes whose stops have landed.
type routeCloser interface {
	CloseCompletedRoutes(ctx context.Context) (int, error)
}

// NewRouteClosureJob builds the sweep that closes finished driver routes.
// Drivers report per-stop statuses only; nothing closes a route inline.
func NewRouteClosureJob(planner routeCloser, logg *logger.Logger) (Job, error) {
	if planner == nil {
		return nil, fmt.Errorf("route planner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &routeClosureJob{planner: planner, logg: logg}, nil
}

type routeClosureJob struct {
	planner routeCloser
	logg    *logger.Logger
}

func (j *routeClosureJob) Name() string { return "route-closure" }

func (j *routeClosureJob) Run(ctx context.Context) error {
	closed, err := j.planner.CloseCompletedRoutes(ctx)
	if closed > 0 {
		logCtx := j.logg.WithField(ctx, "closed", closed)
		j.logg.Info(logCtx, "finished routes closed")
	}
	if err != nil {
		return fmt.Errorf("close routes: %w", err)
	}
	return nil
}
