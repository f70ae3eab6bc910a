package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/platterly/platterly-backend/pkg/logger"
)

const defaultPendingOrderTTL = 10 * 24 * time.Hour

// pendingOrderExpirer moves stale pending orders to failed.
type pendingOrderExpirer interface {
	ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// NewOrderExpiryJob builds the job that fails pending orders whose payment
// never arrived within the configured TTL.
func NewOrderExpiryJob(ledger pendingOrderExpirer, ttl time.Duration, logg *logger.Logger) (Job, error) {
	if ledger == nil {
		return nil, fmt.Errorf("order ledger required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if ttl <= 0 {
		ttl = defaultPendingOrderTTL
	}
	return &orderExpiryJob{ledger: ledger, ttl: ttl, logg: logg, now: time.Now}, nil
}

type orderExpiryJob struct {
	ledger pendingOrderExpirer
	ttl    time.Duration
	logg   *logger.Logger
	now    func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	expired, err := j.ledger.ExpirePendingBefore(ctx, cutoff)
	if expired > 0 {
		logCtx := j.logg.WithField(ctx, "expired", expired)
		j.logg.Info(logCtx, "stale pending orders failed")
	}
	if err != nil {
		return fmt.Errorf("expire pending orders: %w", err)
	}
	return nil
}
