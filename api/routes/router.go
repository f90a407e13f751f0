package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dkemp/subcycle-backend/api/controllers"
	billingcontrollers "github.com/dkemp/subcycle-backend/api/controllers/billing"
	webhookcontrollers "github.com/dkemp/subcycle-backend/api/controllers/webhooks"
	"github.com/dkemp/subcycle-backend/api/middleware"
	"github.com/dkemp/subcycle-backend/internal/billing"
	"github.com/dkemp/subcycle-backend/internal/paymentmethods"
	"github.com/dkemp/subcycle-backend/internal/subscriptions"
	"github.com/dkemp/subcycle-backend/pkg/config"
	"github.com/dkemp/subcycle-backend/pkg/db"
	"github.com/dkemp/subcycle-backend/pkg/logger"
	"github.com/dkemp/subcycle-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface needs.
type RouterParams struct {
	Config                *config.Config
	Logger                *logger.Logger
	DB                    db.Pinger
	Redis                 *redis.Client
	BillingRepo           billing.Repository
	PaymentMethodsService paymentmethods.Service
	SubscriptionsService  subscriptions.Service
	ConfirmationQueue     webhookcontrollers.ConfirmationQueue
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(nil),
	)

	var redisP redis.Pinger
	if params.Redis != nil {
		redisP = params.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DB, redisP))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/gateway", webhookcontrollers.GatewayWebhook(params.ConfirmationQueue, logg))
	})

	r.Route("/api/v1/businesses/{businessID}", func(r chi.Router) {
		r.Route("/payment-methods", func(r chi.Router) {
			r.Get("/", billingcontrollers.PaymentMethodList(params.PaymentMethodsService, logg))
			r.Post("/", billingcontrollers.PaymentMethodCreate(params.PaymentMethodsService, logg))
			r.Post("/default", billingcontrollers.PaymentMethodSetDefault(params.PaymentMethodsService, logg))
			r.Delete("/{methodID}", billingcontrollers.PaymentMethodDelete(params.PaymentMethodsService, logg))
		})

		r.Route("/subscription", func(r chi.Router) {
			r.Post("/", billingcontrollers.SubscriptionCreate(params.SubscriptionsService, logg))
			r.Patch("/", billingcontrollers.SubscriptionChange(params.SubscriptionsService, logg))
			r.Post("/pause", billingcontrollers.SubscriptionPause(params.SubscriptionsService, logg))
			r.Post("/resume", billingcontrollers.SubscriptionResume(params.SubscriptionsService, logg))
			r.Post("/refund/{gatewayTxID}", billingcontrollers.SubscriptionRefund(params.SubscriptionsService, logg))
		})

		r.Get("/transactions", billingcontrollers.TransactionList(params.BillingRepo, logg))
	})

	return r
}
