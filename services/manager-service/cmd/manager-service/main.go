package main

import (
	"context"
	"net/http"
	"time"

	"github.com/barberflow/barberflow/libs/audit"
	"github.com/barberflow/barberflow/libs/config"
	"github.com/barberflow/barberflow/libs/db"
	"github.com/barberflow/barberflow/libs/grpcx"
	"github.com/barberflow/barberflow/libs/httpx"
	"github.com/barberflow/barberflow/libs/kafkax"
	otelx "github.com/barberflow/barberflow/libs/otel"
	"github.com/barberflow/barberflow/libs/outbox"
	"github.com/barberflow/barberflow/libs/runtime"
	"github.com/barberflow/barberflow/migrations"
	"github.com/barberflow/barberflow/services/manager-service/internal/handlers"
	"github.com/barberflow/barberflow/services/manager-service/internal/reconcile"
	"github.com/barberflow/barberflow/services/manager-service/internal/storage"
	"github.com/barberflow/barberflow/services/manager-service/internal/subscriptions"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "manager-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9084")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", false) {
		if _, err := db.Migrate(ctx, pool, migrations.FS, logger); err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
	}

	brokers := config.String("KAFKA_BROKERS", "")
	outboxRepo := outbox.NewRepository(service)
	repo := storage.NewRepository(pool, outboxRepo, audit.NewRepository(pool))
	subSvc := subscriptions.New(repo)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	stripeKey := config.String("STRIPE_SECRET_KEY", "")
	if config.Bool("BILLING_STRIPE_RECONCILE_ENABLED", false) {
		rec := reconcile.NewStripeReconciler(pool, repo, subSvc, logger, reconcile.StripeReconcilerConfig{
			StripeSecretKey: stripeKey,
			BatchSize:       config.Int("BILLING_STRIPE_RECONCILE_BATCH_SIZE", 50),
			AdvisoryLockKey: int64(config.Int("BILLING_STRIPE_RECONCILE_LOCK_KEY", 4242001)),
		})
		go rec.Run(ctx, config.Duration("BILLING_STRIPE_RECONCILE_INTERVAL", 5*time.Minute))
	}

	console := handlers.NewConsole(repo, subSvc, logger)
	billing := handlers.NewBilling(repo, subSvc, logger, handlers.BillingConfig{
		StripeSecretKey:               stripeKey,
		StripeWebhookSecret:           config.String("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookToleranceSeconds: config.Int("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300),
		CheckoutSuccessURL:            config.String("CHECKOUT_SUCCESS_URL", ""),
		CheckoutCancelURL:             config.String("CHECKOUT_CANCEL_URL", ""),
	})

	health := grpcx.NewHealthServer(service, logger)
	if err := health.Start(grpcPort); err != nil {
		logger.Error("grpc health start failed", "err", err)
	}
	defer health.Stop()

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	routes := []string{
		"/api/v1/manager/tenants",
		"/api/v1/manager/tenants/password",
		"/api/v1/manager/tenants/plan",
		"/api/v1/manager/plans",
		"/api/v1/manager/overview",
		"/api/v1/manager/billing/checkout",
		"/api/v1/manager/billing/cancel",
		"/api/v1/billing/webhooks/stripe",
	}
	mux.HandleFunc(routes[0], console.Tenants)
	mux.HandleFunc(routes[1], console.ResetPassword)
	mux.HandleFunc(routes[2], console.AssignPlan)
	mux.HandleFunc(routes[3], console.Plans)
	mux.HandleFunc(routes[4], console.Overview)
	mux.HandleFunc(routes[5], billing.Checkout)
	mux.HandleFunc(routes[6], billing.Cancel)
	mux.HandleFunc(routes[7], billing.StripeWebhook)

	httpMetrics := httpx.NewHTTPMetrics(service, nil)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpMetrics.Middleware(httpx.KnownRoutes(routes...)),
		httpx.WithBodyLimit(1<<20),
	)
	handler = otelhttp.NewHandler(handler, "manager")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	health.SetNotServing()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
