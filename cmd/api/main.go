package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/legalflow/billing-backend/api/routes"
	"github.com/legalflow/billing-backend/internal/billing"
	"github.com/legalflow/billing-backend/internal/conversations"
	"github.com/legalflow/billing-backend/internal/payments"
	"github.com/legalflow/billing-backend/internal/split"
	gatewaywebhook "github.com/legalflow/billing-backend/internal/webhooks/gateway"
	"github.com/legalflow/billing-backend/pkg/config"
	"github.com/legalflow/billing-backend/pkg/db"
	"github.com/legalflow/billing-backend/pkg/gateway"
	"github.com/legalflow/billing-backend/pkg/logger"
	"github.com/legalflow/billing-backend/pkg/metrics"
	"github.com/legalflow/billing-backend/pkg/migrate"
	"github.com/legalflow/billing-backend/pkg/outbox"
	"github.com/legalflow/billing-backend/pkg/redis"
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

	convRepo := conversations.NewRepository(dbClient.DB())
	convService, err := conversations.NewService(conversations.ServiceParams{Repo: convRepo})
	if err != nil {
		logg.Error(context.Background(), "failed to create conversation service", err)
		os.Exit(1)
	}

	splitCalculator, err := split.NewCalculator(cfg.Billing)
	if err != nil {
		logg.Error(context.Background(), "invalid split configuration", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	billingService, err := billing.NewService(billing.ServiceParams{
		DB:            dbClient,
		Repo:          billing.NewRepository(dbClient.DB()),
		Conversations: convService,
		ConvRepo:      convRepo,
		Split:         splitCalculator,
		Outbox:        outboxService,
		Logger:        logg,
		Config:        cfg.Billing,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing service", err)
		os.Exit(1)
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		DB:      dbClient,
		Repo:    payments.NewRepository(dbClient.DB()),
		Billing: billingService,
		Gateway: gatewayClient,
		Outbox:  outboxService,
		Logger:  logg,
		Config:  cfg.Gateway,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	webhookGuard, err := gatewaywebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "gateway")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	webhookService, err := gatewaywebhook.NewService(gatewaywebhook.ServiceParams{
		Payments: paymentService,
		Guard:    webhookGuard,
		Metrics:  metrics.NewWebhookMetrics(registry),
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Gateway:        gatewayClient,
			Charges:        billingService,
			Payments:       paymentService,
			GatewayWebhook: webhookService,
			Metrics:        registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
