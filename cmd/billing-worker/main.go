package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	internalbilling "github.com/dkemp/subcycle-backend/internal/billing"
	"github.com/dkemp/subcycle-backend/internal/payments"
	"github.com/dkemp/subcycle-backend/internal/reconcile"
	billingscheduler "github.com/dkemp/subcycle-backend/internal/schedulers/billing"
	"github.com/dkemp/subcycle-backend/internal/subscriptions"
	"github.com/dkemp/subcycle-backend/pkg/config"
	"github.com/dkemp/subcycle-backend/pkg/db"
	"github.com/dkemp/subcycle-backend/pkg/env"
	"github.com/dkemp/subcycle-backend/pkg/gateway"
	"github.com/dkemp/subcycle-backend/pkg/instance"
	"github.com/dkemp/subcycle-backend/pkg/logger"
	"github.com/dkemp/subcycle-backend/pkg/metrics"
	"github.com/dkemp/subcycle-backend/pkg/migrate"
	"github.com/dkemp/subcycle-backend/pkg/outbox"
	"github.com/dkemp/subcycle-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "billing-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "billing-worker"

	logg = logger.New(logger.Options{
		ServiceName: "billing-worker",
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

	location, err := cfg.Billing.Location()
	if err != nil {
		logg.Error(context.Background(), "failed to resolve billing timezone", err)
		os.Exit(1)
	}

	billingMetrics := metrics.NewBillingMetrics(prometheus.DefaultRegisterer)
	billingRepo := internalbilling.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)

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

	reconciler, err := reconcile.NewService(reconcile.ServiceParams{
		BillingRepo:       billingRepo,
		TransactionRunner: dbClient,
		Logger:            logg,
		Metrics:           billingMetrics,
		Activator:         subscriptionsService,
		Location:          location,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler", err)
		os.Exit(1)
	}

	dispatcher, err := reconcile.NewDispatcher(reconcile.DispatcherParams{
		Config:     cfg.Outbox,
		Repository: outboxRepo,
		Reconciler: reconciler,
		Logger:     logg,
		Metrics:    billingMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create confirmation dispatcher", err)
		os.Exit(1)
	}

	lock, err := billingscheduler.NewRedisLock(redisClient, redisClient.LockKey("daily-billing"), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create billing scan lock", err)
		os.Exit(1)
	}

	scheduler, err := billingscheduler.NewService(billingscheduler.ServiceParams{
		BillingRepo: billingRepo,
		Submitter:   paymentsService,
		Lock:        lock,
		Logger:      logg,
		Metrics:     billingMetrics,
		Location:    location,
		ScanHour:    cfg.Billing.ScanHour,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing scheduler", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instanceID":  instance.GetID(),
	})
	logg.Info(ctx, "starting billing worker")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return scheduler.Run(groupCtx)
	})
	group.Go(func() error {
		return dispatcher.Run(groupCtx)
	})
	group.Go(func() error {
		return serveMetrics(groupCtx, logg)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "billing worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "billing worker shutting down gracefully")
}

func serveMetrics(ctx context.Context, logg *logger.Logger) error {
	addr := env.Get("SUBCYCLE_METRICS_ADDR", ":9090")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	logg.Info(logg.WithField(ctx, "addr", addr), "metrics endpoint listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
