package controllers

import (
	"net/http"

	"github.com/reluxmarket/relux-backend/api/responses"
	"github.com/reluxmarket/relux-backend/pkg/config"
	"github.com/reluxmarket/relux-backend/pkg/db"
	pkgerrors "github.com/reluxmarket/relux-backend/pkg/errors"
	"github.com/reluxmarket/relux-backend/pkg/logger"
	"github.com/reluxmarket/relux-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Relux-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when the database and redis both answer.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Relux-Env", cfg.App.Env)

		checks := map[string]string{}
		healthy := true

		if dbP == nil {
			checks["db"] = "not configured"
			healthy = false
		} else if err := dbP.Ping(r.Context()); err != nil {
			checks["db"] = "unreachable"
			healthy = false
			if logg != nil {
				logg.Error(r.Context(), "health.db_ping_failed", err)
			}
		} else {
			checks["db"] = "ok"
		}

		if redisP == nil {
			checks["redis"] = "not configured"
			healthy = false
		} else if err := redisP.Ping(r.Context()); err != nil {
			checks["redis"] = "unreachable"
			healthy = false
			if logg != nil {
				logg.Error(r.Context(), "health.redis_ping_failed", err)
			}
		} else {
			checks["redis"] = "ok"
		}

		if !healthy {
			responses.WriteError(r.Context(), nil, w,
				pkgerrors.New(pkgerrors.CodeDependency, "service not ready").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
