package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/nmtruong/fulfillment-backend/api/responses"
	"github.com/nmtruong/fulfillment-backend/pkg/config"
	"github.com/nmtruong/fulfillment-backend/pkg/db"
	pkgerrors "github.com/nmtruong/fulfillment-backend/pkg/errors"
	"github.com/nmtruong/fulfillment-backend/pkg/logger"
	"github.com/nmtruong/fulfillment-backend/pkg/redis"
)

const (
	envHeader        = "X-Fulfillment-Env"
	readinessTimeout = 3 * time.Second
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		if dbP != nil {
			if err := dbP.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unreachable"))
				return
			}
		}
		if redisP != nil {
			if err := redisP.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unreachable"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
