package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/swiftreader/swiftreader/internal/analytics"
	"github.com/swiftreader/swiftreader/internal/api"
	"github.com/swiftreader/swiftreader/internal/auth"
	"github.com/swiftreader/swiftreader/internal/billing"
	"github.com/swiftreader/swiftreader/internal/config"
	"github.com/swiftreader/swiftreader/internal/database"
	"github.com/swiftreader/swiftreader/internal/middleware"
	inats "github.com/swiftreader/swiftreader/internal/nats"
	"github.com/swiftreader/swiftreader/internal/quota"
	iredis "github.com/swiftreader/swiftreader/internal/redis"
	"github.com/swiftreader/swiftreader/internal/server"
	"github.com/swiftreader/swiftreader/internal/summarize"
	"github.com/swiftreader/swiftreader/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if cfg.Quota.Unrestricted {
		slog.Warn("beta mode is on: quota and payment gates are disabled")
	}

	ctx := context.Background()

	// Migrations
	if err := database.RunMigrations(cfg.DB.DSN(), "migrations"); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS is optional: without it the service runs, only analytics stop.
	var natsClient *inats.Client
	var publisher *inats.Publisher
	if cfg.NATS.URL != "" {
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to nats", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		publisher = inats.NewPublisher(natsClient.JetStream())
	} else {
		slog.Warn("NATS_URL not set, usage analytics disabled")
	}

	// Accounts + auth
	jwtManager := auth.NewJWTManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	authSvc := auth.NewService(jwtManager, redisClient)
	userRepo := users.NewRepository(pool)
	userSvc := users.NewService(userRepo)
	authHandler := auth.NewHandler(authSvc, userSvc, cfg.Quota.InviteCode)

	// Summarization pipeline
	engine := quota.NewEngine(userRepo, quota.DefaultLimits(), cfg.Quota.Unrestricted)
	anthropicClient := summarize.NewClient(cfg.Anthropic)
	summarySvc := summarize.NewService(engine, anthropicClient, publisher)
	summaryHandler := summarize.NewHandler(summarySvc)

	// Usage analytics
	analyticsRepo := analytics.NewRepository(pool)
	analyticsHandler := analytics.NewHandler(analyticsRepo)
	if natsClient != nil {
		consumer := analytics.NewConsumer(analyticsRepo, inats.NewConsumerManager(natsClient.JetStream()))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("usage consumer stopped", "error", err)
			}
		}()
	}

	// Billing
	var checkout, stripeWebhook http.HandlerFunc
	if cfg.Stripe.SecretKey != "" {
		billingSvc := billing.NewService(userRepo, cfg.Stripe)
		billingHandler := billing.NewHandler(billingSvc, cfg.Stripe.WebhookSecret)
		checkout = billingHandler.Checkout
		stripeWebhook = billingHandler.Webhook
	} else {
		slog.Warn("STRIPE_SECRET_KEY not set, billing disabled")
	}

	// Login rate limiter: 10 attempts per minute per IP
	rateLimiter := middleware.NewRateLimiter(redisClient, 10, 60)

	// Router
	router := api.NewRouter(pool, redisClient, natsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		AuthRateLimiter:    rateLimiter.Middleware,
	}, api.HandlerSet{
		Register:       authHandler.Register,
		Login:          authHandler.Login,
		Refresh:        authHandler.Refresh,
		ForgotPassword: authHandler.Forgot,
		ResetPassword:  authHandler.Reset,
		Logout:         authHandler.Logout,
		Me:             authHandler.Me,

		CreateSummary: summaryHandler.Create,
		Usage:         summaryHandler.Usage,
		UsageHistory:  analyticsHandler.History,

		Checkout:      checkout,
		StripeWebhook: stripeWebhook,

		AuthMiddleware: auth.Middleware(authSvc, userSvc),
	})

	// Start server
	srv := server.New(cfg.Server, cfg.Anthropic.Timeout, router)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
