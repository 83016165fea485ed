package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/legalflow/billing-backend/api/controllers"
	chargecontrollers "github.com/legalflow/billing-backend/api/controllers/charges"
	paymentcontrollers "github.com/legalflow/billing-backend/api/controllers/payments"
	webhookcontrollers "github.com/legalflow/billing-backend/api/controllers/webhooks"
	"github.com/legalflow/billing-backend/api/middleware"
	"github.com/legalflow/billing-backend/pkg/config"
	"github.com/legalflow/billing-backend/pkg/db"
	"github.com/legalflow/billing-backend/pkg/gateway"
	"github.com/legalflow/billing-backend/pkg/logger"
	"github.com/legalflow/billing-backend/pkg/redis"
)

// RouterParams groups everything the HTTP surface needs.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             *db.Client
	Redis          *redis.Client
	Gateway        *gateway.Client
	Charges        chargecontrollers.ChargeService
	Payments       paymentcontrollers.PaymentService
	GatewayWebhook webhookcontrollers.GatewayWebhookService
	Metrics        prometheus.Gatherer
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	var dbPinger, redisPinger controllers.Pinger
	if params.DB != nil {
		dbPinger = params.DB
	}
	if params.Redis != nil {
		redisPinger = params.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbPinger, redisPinger))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Metrics, promhttp.HandlerOpts{}))
	}

	webhookPolicy := middleware.NewRateLimitPolicy(
		"webhook",
		cfg.RateLimit.Window,
		cfg.RateLimit.IPLimit,
		0,
	)
	apiPolicy := middleware.NewRateLimitPolicy(
		"api",
		cfg.RateLimit.Window,
		cfg.RateLimit.IPLimit,
		cfg.RateLimit.UserLimit,
	)

	// Signed but unauthenticated: the gateway is the caller.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		if params.Redis != nil {
			r.Use(middleware.RateLimit(webhookPolicy, params.Redis, logg))
		}
		r.Post("/gateway", webhookcontrollers.GatewayWebhook(params.GatewayWebhook, params.Gateway, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if params.Redis != nil {
			r.Use(middleware.RateLimit(apiPolicy, params.Redis, logg))
			r.Use(middleware.Idempotency(params.Redis, logg))
		}

		r.Route("/charges", func(r chi.Router) {
			r.Post("/", chargecontrollers.Create(params.Charges, logg))
			r.Get("/{chargeId}", chargecontrollers.Get(params.Charges, logg))
			r.Post("/{chargeId}/accept", paymentcontrollers.AcceptAndPay(params.Payments, logg))
			r.Post("/{chargeId}/reject", chargecontrollers.Reject(params.Charges, logg))
			r.Post("/{chargeId}/cancel", chargecontrollers.Cancel(params.Charges, logg))
		})

		r.Route("/conversations/{conversationId}", func(r chi.Router) {
			r.Get("/charges", chargecontrollers.List(params.Charges, logg))
			r.Get("/payments", paymentcontrollers.List(params.Payments, logg))
		})

		r.Route("/providers/me", func(r chi.Router) {
			r.Use(middleware.RequireRole("provider", logg))
			r.Get("/charges", chargecontrollers.List(params.Charges, logg))
			r.Get("/payments", paymentcontrollers.List(params.Payments, logg))
		})

		r.Route("/clients/me", func(r chi.Router) {
			r.Use(middleware.RequireRole("client", logg))
			r.Get("/charges", chargecontrollers.List(params.Charges, logg))
			r.Get("/payments", paymentcontrollers.List(params.Payments, logg))
		})

		r.Get("/billing/stats", chargecontrollers.Stats(params.Charges, logg))

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", paymentcontrollers.Create(params.Payments, logg))
			r.Get("/{paymentId}", paymentcontrollers.Get(params.Payments, logg))
			r.Post("/{paymentId}/refund", paymentcontrollers.Refund(params.Payments, logg))
		})
	})

	return r
}
