package cron

import (
	"context"
	"fmt"

	"github.com/platterly/platterly-backend/pkg/logger"
)

// deliveryBackfiller sweeps paid orders that are missing a delivery row.
type deliveryBackfiller interface {
	BackfillDeliveries(ctx context.Context) (int, error)
}

// NewDeliveryBackfillJob builds the reconciliation sweep. The transition
// handler normally creates deliveries inline; this job catches up orders
// whose side effects failed after the PAID commit.
func NewDeliveryBackfillJob(dispatcher deliveryBackfiller, logg *logger.Logger) (Job, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &deliveryBackfillJob{dispatcher: dispatcher, logg: logg}, nil
}

type deliveryBackfillJob struct {
	dispatcher deliveryBackfiller
	logg       *logger.Logger
}

func (j *deliveryBackfillJob) Name() string { return "delivery-backfill" }

func (j *deliveryBackfillJob) Run(ctx context.Context) error {
	ensured, err := j.dispatcher.BackfillDeliveries(ctx)
	if ensured > 0 {
		logCtx := j.logg.WithField(ctx, "ensured", ensured)
		j.logg.Info(logCtx, "deliveries backfilled")
	}
	if err != nil {
		return fmt.Errorf("backfill deliveries: %w", err)
	}
	return nil
}
