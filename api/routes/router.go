package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alphacut/alphacut-backend/api/controllers"
	webhookcontrollers "github.com/alphacut/alphacut-backend/api/controllers/webhooks"
	"github.com/alphacut/alphacut-backend/api/middleware"
	"github.com/alphacut/alphacut-backend/internal/auth"
	"github.com/alphacut/alphacut-backend/internal/checkout"
	"github.com/alphacut/alphacut-backend/pkg/auth/session"
	"github.com/alphacut/alphacut-backend/pkg/config"
	"github.com/alphacut/alphacut-backend/pkg/db"
	"github.com/alphacut/alphacut-backend/pkg/logger"
	"github.com/alphacut/alphacut-backend/pkg/metrics"
	"github.com/alphacut/alphacut-backend/pkg/stripe"
)

// RedisStore is the Redis surface the HTTP layer needs for idempotency,
// throttling and readiness.
type RedisStore interface {
	middleware.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	registry *prometheus.Registry,
	dbP db.Pinger,
	redisStore RedisStore,
	sessionManager session.AccessSessionChecker,
	authService auth.Service,
	entitlementService controllers.EntitlementService,
	snapshots controllers.SnapshotStore,
	catalog controllers.PlanCatalog,
	initiator controllers.DestinationResolver,
	checkoutService checkout.Service,
	stripeClient *stripe.Client,
	stripeWebhookService webhookcontrollers.StripeWebhookService,
	stripeWebhookGuard webhookcontrollers.StripeWebhookGuard,
) http.Handler {
	var reg prometheus.Registerer
	if registry != nil {
		reg = registry
	}
	httpMetrics := metrics.NewHTTPMetrics(reg)
	webhookMetrics := metrics.NewWebhookMetrics(reg)

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(cfg.CORS),
	)

	loginPolicy := middleware.NewRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.AuthRateLimit.CheckoutWindow,
		cfg.AuthRateLimit.CheckoutIPLimit,
		0,
	)

	var rateStore middleware.RateLimiterStore
	var idempotencyStore middleware.IdempotencyStore
	readyDeps := map[string]controllers.Pinger{"db": dbP}
	if redisStore != nil {
		rateStore = redisStore
		idempotencyStore = redisStore
		readyDeps["redis"] = redisStore
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, readyDeps, logg))
	})

	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.With(
			middleware.RateLimit(checkoutPolicy, rateStore, logg),
			middleware.Idempotency(idempotencyStore, logg),
		).HandleFunc("/create-checkout-session", controllers.CreateCheckoutSession(checkoutService, logg))
		r.HandleFunc("/stripe-webhook", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, webhookMetrics, logg))

		r.Route("/v1", func(r chi.Router) {
			r.Get("/plans", controllers.PlansList(catalog, logg))
			r.With(middleware.RateLimit(loginPolicy, rateStore, logg)).
				Post("/sessions", controllers.SessionLogin(authService, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(cfg.JWT, sessionManager, logg))
				r.Use(middleware.Idempotency(idempotencyStore, logg))

				r.Delete("/sessions", controllers.SessionLogout(authService, logg))
				r.Get("/sessions/me", controllers.SessionMe(authService, logg))

				r.Get("/checkout/{plan}", controllers.CheckoutRedirect(initiator, logg))

				r.Route("/entitlements/me", func(r chi.Router) {
					r.Get("/", controllers.EntitlementGet(entitlementService, logg))
					r.Get("/access", controllers.EntitlementAccess(entitlementService, logg))
					r.Post("/subscribe", controllers.EntitlementSubscribe(entitlementService, logg))
					r.Post("/cancel", controllers.EntitlementCancel(entitlementService, logg))
					r.Post("/analyses", controllers.EntitlementAnalyze(entitlementService, logg))
					r.Post("/sync", controllers.EntitlementSync(entitlementService, logg))
				})

				r.Get("/devices/me/{kind}", controllers.DeviceSnapshotGet(snapshots, logg))
				r.Put("/devices/me/{kind}", controllers.DeviceSnapshotPut(snapshots, logg))
			})
		})
	})

	return r
}
