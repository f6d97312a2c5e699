package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/alphacut/alphacut-backend/api/routes"
	"github.com/alphacut/alphacut-backend/internal/auth"
	"github.com/alphacut/alphacut-backend/internal/checkout"
	"github.com/alphacut/alphacut-backend/internal/devicestore"
	"github.com/alphacut/alphacut-backend/internal/entitlements"
	"github.com/alphacut/alphacut-backend/internal/plans"
	"github.com/alphacut/alphacut-backend/internal/subscriptions"
	stripewebhook "github.com/alphacut/alphacut-backend/internal/webhooks/stripe"
	"github.com/alphacut/alphacut-backend/pkg/auth/session"
	"github.com/alphacut/alphacut-backend/pkg/config"
	"github.com/alphacut/alphacut-backend/pkg/db"
	"github.com/alphacut/alphacut-backend/pkg/logger"
	"github.com/alphacut/alphacut-backend/pkg/migrate"
	"github.com/alphacut/alphacut-backend/pkg/redis"
	pkgstripe "github.com/alphacut/alphacut-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

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
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, redisClient.Close())
	}()

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return err
	}

	catalog, err := plans.NewCatalog(cfg.Stripe, cfg.Plans)
	if err != nil {
		return err
	}

	snapshots, err := devicestore.New(redisClient, cfg.JWT.TokenTTL())
	if err != nil {
		return err
	}

	subscriptionRepo := subscriptions.NewRepository(dbClient.DB())

	entitlementService, err := entitlements.NewService(entitlements.ServiceParams{
		Store:         snapshots,
		Subscriptions: subscriptionRepo,
		Logger:        logg,
	})
	if err != nil {
		return err
	}

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}

	authService, err := auth.NewService(auth.ServiceParams{
		Snapshots:      snapshots,
		Entitlements:   entitlementService,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
	})
	if err != nil {
		return err
	}

	checkoutService, err := checkout.NewService(checkout.NewStripeClient(stripeClient), logg)
	if err != nil {
		return err
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Repo:              subscriptionRepo,
		StripeClient:      subscriptions.NewStripeClient(stripeClient),
		Plans:             catalog,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		return err
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "stripe-webhook")
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"instance":   id,
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			registry,
			dbClient,
			redisClient,
			sessionManager,
			authService,
			entitlementService,
			snapshots,
			catalog,
			checkout.NewInitiator(catalog),
			checkoutService,
			stripeClient,
			webhookService,
			webhookGuard,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
