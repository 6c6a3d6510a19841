package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/nmtruong/fulfillment-backend/api/routes"
	"github.com/nmtruong/fulfillment-backend/internal/auditlog"
	"github.com/nmtruong/fulfillment-backend/internal/cart"
	"github.com/nmtruong/fulfillment-backend/internal/inventory"
	"github.com/nmtruong/fulfillment-backend/internal/orders"
	"github.com/nmtruong/fulfillment-backend/internal/payments"
	"github.com/nmtruong/fulfillment-backend/pkg/config"
	"github.com/nmtruong/fulfillment-backend/pkg/db"
	"github.com/nmtruong/fulfillment-backend/pkg/logger"
	"github.com/nmtruong/fulfillment-backend/pkg/migrate"
	"github.com/nmtruong/fulfillment-backend/pkg/momo"
	"github.com/nmtruong/fulfillment-backend/pkg/redis"
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

	momoClient, err := momo.NewClient(context.Background(), cfg.MoMo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create momo client", err)
		os.Exit(1)
	}

	paymentsRepo := payments.NewRepository(dbClient.DB())
	auditRecorder := auditlog.NewRecorder()

	ordersService, err := orders.NewService(orders.ServiceParams{
		DB:           dbClient.DB(),
		Repo:         orders.NewRepository(dbClient.DB()),
		Payments:     paymentsRepo,
		Tx:           dbClient,
		Stock:        inventory.NewLedger(),
		Carts:        cart.NewVerifier(),
		Gateway:      momoClient,
		Audit:        auditRecorder,
		Logger:       logg,
		ReturnWindow: cfg.Orders.ReturnWindow,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	reconciler, err := payments.NewReconciler(paymentsRepo, dbClient, momoClient, auditRecorder, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment reconciler", err)
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
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, ordersService, reconciler),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
