package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/dkemp/subcycle-backend/api/routes"
	"github.com/dkemp/subcycle-backend/internal/billing"
	"github.com/dkemp/subcycle-backend/internal/payments"
	"github.com/dkemp/subcycle-backend/internal/paymentmethods"
	"github.com/dkemp/subcycle-backend/internal/subscriptions"
	"github.com/dkemp/subcycle-backend/pkg/config"
	"github.com/dkemp/subcycle-backend/pkg/db"
	"github.com/dkemp/subcycle-backend/pkg/gateway"
	"github.com/dkemp/subcycle-backend/pkg/logger"
	"github.com/dkemp/subcycle-backend/pkg/migrate"
	"github.com/dkemp/subcycle-backend/pkg/outbox"
	"github.com/dkemp/subcycle-backend/pkg/redis"
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

	gatewayClient, err := gateway.NewClient(context.Background(), cfg.Gateway, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create gateway client", err)
		os.Exit(1)
	}

	billingRepo := billing.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	paymentsService, err := payments.NewService(payments.ServiceParams{
		BillingRepo:       billingRepo,
		GatewayClient:     gatewayClient,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Logger:            logg,
		DefaultName:       cfg.Gateway.DisplayName,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment submitter", err)
		os.Exit(1)
	}

	subscriptionsService, err := subscriptions.NewService(subscriptions.ServiceParams{
		BillingRepo: billingRepo,
		Submitter:   paymentsService,
		Cache:       redisClient,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscriptions service", err)
		os.Exit(1)
	}

	paymentMethodsService, err := paymentmethods.NewService(paymentmethods.ServiceParams{
		BillingRepo:       billingRepo,
		GatewayClient:     gatewayClient,
		Submitter:         paymentsService,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment methods service", err)
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
		Handler: routes.NewRouter(routes.RouterParams{
			Config:                cfg,
			Logger:                logg,
			DB:                    dbClient,
			Redis:                 redisClient,
			BillingRepo:           billingRepo,
			PaymentMethodsService: paymentMethodsService,
			SubscriptionsService:  subscriptionsService,
			ConfirmationQueue:     outboxService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
