package main

import (
	"context"
	"net/http"
	"time"

	"github.com/barberflow/barberflow/libs/audit"
	"github.com/barberflow/barberflow/libs/blob"
	"github.com/barberflow/barberflow/libs/config"
	"github.com/barberflow/barberflow/libs/db"
	"github.com/barberflow/barberflow/libs/grpcx"
	"github.com/barberflow/barberflow/libs/httpx"
	"github.com/barberflow/barberflow/libs/kafkax"
	otelx "github.com/barberflow/barberflow/libs/otel"
	"github.com/barberflow/barberflow/libs/outbox"
	"github.com/barberflow/barberflow/libs/runtime"
	"github.com/barberflow/barberflow/services/business-service/internal/handlers"
	"github.com/barberflow/barberflow/services/business-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "business-service")
	port, err := config.Port("PORT", "8082")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9082")
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

	brokers := config.String("KAFKA_BROKERS", "")
	outboxRepo := outbox.NewRepository(service)
	repo := storage.NewRepository(pool, outboxRepo, audit.NewRepository(pool))

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	var blobs blob.Store
	if bucket := config.String("S3_BUCKET", ""); bucket != "" {
		s3Store, err := blob.NewS3(ctx, blob.S3Config{
			Bucket:    bucket,
			Region:    config.String("S3_REGION", "us-east-1"),
			Endpoint:  config.String("S3_ENDPOINT", ""),
			KeyPrefix: config.String("S3_KEY_PREFIX", ""),
			AccessID:  config.String("S3_ACCESS_KEY_ID", ""),
			AccessKey: config.String("S3_SECRET_ACCESS_KEY", ""),
		})
		if err != nil {
			logger.Error("s3 init failed; logo upload disabled", "err", err)
		} else {
			blobs = s3Store
			logger.Info("logo storage enabled", "bucket", bucket)
		}
	}
	httpHandler := handlers.New(repo, blobs, logger)

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
		"/api/v1/admin/services",
		"/api/v1/admin/staff",
		"/api/v1/admin/settings",
		"/api/v1/admin/settings/hours",
		"/api/v1/admin/settings/logo",
		"/api/v1/admin/dashboard",
		"/api/v1/admin/finance",
	}
	mux.HandleFunc(routes[0], httpHandler.Services)
	mux.HandleFunc(routes[1], httpHandler.Staff)
	mux.HandleFunc(routes[2], httpHandler.Settings)
	mux.HandleFunc(routes[3], httpHandler.Hours)
	mux.HandleFunc(routes[4], httpHandler.Logo)
	mux.HandleFunc(routes[5], httpHandler.Dashboard)
	mux.HandleFunc(routes[6], httpHandler.Finance)

	httpMetrics := httpx.NewHTTPMetrics(service, nil)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpMetrics.Middleware(httpx.KnownRoutes(routes...)),
		// logos are capped at 2 MiB by the handler
		httpx.WithBodyLimit(3<<20),
	)
	handler = otelhttp.NewHandler(handler, "business")
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
