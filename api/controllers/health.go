package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/platterly/platterly-backend/api/responses"
	"github.com/platterly/platterly-backend/pkg/config"
	"github.com/platterly/platterly-backend/pkg/logger"
)

// Pinger is any dependency that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Platterly-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady checks the hard dependencies. A degraded dependency flips the
// status and the HTTP code so load balancers stop routing here.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP, redisP Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Platterly-Env", cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]string{}
		healthy := true
		for name, p := range map[string]Pinger{"database": dbP, "redis": redisP} {
			if p == nil {
				checks[name] = "not_configured"
				healthy = false
				continue
			}
			if err := p.Ping(ctx); err != nil {
				if logg != nil {
					logg.Error(ctx, "health check failed: "+name, err)
				}
				checks[name] = "down"
				healthy = false
				continue
			}
			checks[name] = "up"
		}

		status := "ready"
		code := http.StatusOK
		if !healthy {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		responses.WriteSuccessStatus(w, code, map[string]any{
			"status": status,
			"checks": checks,
		})
	}
}
