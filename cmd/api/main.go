package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/reluxmarket/relux-backend/api/routes"
	"github.com/reluxmarket/relux-backend/internal/listings"
	"github.com/reluxmarket/relux-backend/internal/notifications"
	"github.com/reluxmarket/relux-backend/internal/orders"
	"github.com/reluxmarket/relux-backend/internal/payments"
	"github.com/reluxmarket/relux-backend/internal/payouts"
	"github.com/reluxmarket/relux-backend/internal/refunds"
	"github.com/reluxmarket/relux-backend/pkg/config"
	"github.com/reluxmarket/relux-backend/pkg/db"
	"github.com/reluxmarket/relux-backend/pkg/logger"
	"github.com/reluxmarket/relux-backend/pkg/metrics"
	"github.com/reluxmarket/relux-backend/pkg/migrate"
	"github.com/reluxmarket/relux-backend/pkg/redis"
	"github.com/reluxmarket/relux-backend/pkg/stripe"
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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}
	gateway, err := stripe.NewGateway(stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe gateway", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	settlementMetrics := metrics.NewSettlementMetrics(registry)

	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	listingsRepo := listings.NewRepository(dbClient.DB())

	paymentsService, err := payments.NewService(
		payments.NewRepository(dbClient.DB()),
		listingsRepo,
		gateway,
		redisClient,
		logg,
		settlementMetrics,
		cfg.Fees,
		cfg.PurchaseRate,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(
		orders.NewRepository(dbClient.DB()),
		listingsRepo,
		dbClient,
		notificationsService,
		logg,
		settlementMetrics,
		cfg.Payouts,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	refundsService, err := refunds.NewService(
		refunds.NewRepository(dbClient.DB()),
		gateway,
		dbClient,
		notificationsService,
		logg,
		settlementMetrics,
		cfg.Refunds,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create refunds service", err)
		os.Exit(1)
	}

	payoutsService, err := payouts.NewService(
		payouts.NewRepository(dbClient.DB()),
		dbClient,
		logg,
		settlementMetrics,
		cfg.Payouts,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payouts service", err)
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
			registry,
			paymentsService,
			ordersService,
			refundsService,
			payoutsService,
		),
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		logg.Info(logg.WithField(ctx, "signal", sig.String()), "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
