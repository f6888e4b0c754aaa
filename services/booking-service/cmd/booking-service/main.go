package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/barberflow/barberflow/libs/blob"
	"github.com/barberflow/barberflow/libs/config"
	"github.com/barberflow/barberflow/libs/db"
	"github.com/barberflow/barberflow/libs/grpcx"
	"github.com/barberflow/barberflow/libs/httpx"
	"github.com/barberflow/barberflow/libs/inbox"
	"github.com/barberflow/barberflow/libs/kafkax"
	otelx "github.com/barberflow/barberflow/libs/otel"
	"github.com/barberflow/barberflow/libs/outbox"
	"github.com/barberflow/barberflow/libs/runtime"
	"github.com/barberflow/barberflow/services/booking-service/internal/cache"
	"github.com/barberflow/barberflow/services/booking-service/internal/events"
	"github.com/barberflow/barberflow/services/booking-service/internal/handlers"
	"github.com/barberflow/barberflow/services/booking-service/internal/realtime"
	"github.com/barberflow/barberflow/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9083")
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
	pool, err := db.OpenWithOptions(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 20)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	brokers := config.String("KAFKA_BROKERS", "")
	outboxRepo := outbox.NewRepository(service)
	repo := storage.NewRepository(pool, outboxRepo)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}

	hub := realtime.NewHub(logger)
	var (
		publisher    realtime.Publisher = hub
		profileCache *cache.ProfileCache
	)
	opts := handlers.Options{
		Metrics: handlers.NewMetrics(nil),
	}

	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		bridge := realtime.NewRedisBridge(rdb, logger)
		go bridge.Run(ctx, hub)
		publisher = bridge
		profileCache = cache.NewProfileCache(rdb, config.Duration("PROFILE_CACHE_TTL", time.Minute), logger)
		opts.Cache = profileCache
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info("redis enabled", "addr", addr)
	}

	if brokers != "" {
		realtimeConsumer := kafkax.NewConsumer(logger, inbox.NewRepository(pool, "booking-realtime"), kafkax.ConsumerConfig{
			Brokers: brokers,
			GroupID: config.String("KAFKA_REALTIME_GROUP_ID", "booking-realtime"),
			Topics:  events.Topics(),
		}, realtime.EventHandler(publisher, logger))
		go realtimeConsumer.Run(ctx)

		if profileCache != nil {
			cacheConsumer := kafkax.NewConsumer(logger, inbox.NewRepository(pool, "booking-cache"), kafkax.ConsumerConfig{
				Brokers: brokers,
				GroupID: config.String("KAFKA_CACHE_GROUP_ID", "booking-cache"),
				Topics:  cache.InvalidationTopics(),
			}, cache.InvalidationHandler(profileCache, logger))
			go cacheConsumer.Run(ctx)
		}
	}

	if bucket := config.String("S3_BUCKET", ""); bucket != "" {
		store, err := blob.NewS3(ctx, blob.S3Config{
			Bucket:    bucket,
			Region:    config.String("S3_REGION", "us-east-1"),
			Endpoint:  config.String("S3_ENDPOINT", ""),
			KeyPrefix: config.String("S3_KEY_PREFIX", ""),
			AccessID:  config.String("S3_ACCESS_KEY_ID", ""),
			AccessKey: config.String("S3_SECRET_ACCESS_KEY", ""),
		})
		if err != nil {
			logger.Error("s3 init failed; logos disabled", "err", err)
		} else {
			opts.Blobs = store
		}
	}

	bookingHandler := handlers.NewBookingHandler(repo, logger, opts)
	streamHandler := realtime.NewStreamHandler(hub, config.List("WS_ALLOWED_ORIGINS"))

	health := grpcx.NewHealthServer(service, logger)
	if err := health.Start(grpcPort); err != nil {
		logger.Error("grpc health start failed", "err", err)
	}
	defer health.Stop()

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	routes := []string{
		"/api/v1/public/tenant",
		"/api/v1/public/slots",
		"/api/v1/public/book",
		"/api/v1/public/book/payment",
		"/api/v1/admin/appointments",
		"/api/v1/admin/appointments/status",
		"/api/v1/admin/appointments/stream",
	}
	mux.HandleFunc(routes[0], bookingHandler.Tenant)
	mux.HandleFunc(routes[1], bookingHandler.Slots)
	mux.HandleFunc(routes[2], bookingHandler.Book)
	mux.HandleFunc(routes[3], bookingHandler.ReportPayment)
	mux.HandleFunc(routes[4], bookingHandler.Appointments)
	mux.HandleFunc(routes[5], bookingHandler.AppointmentStatus)
	mux.Handle(routes[6], streamHandler)

	httpMetrics := httpx.NewHTTPMetrics(service, nil)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpMetrics.Middleware(httpx.KnownRoutes(routes...)),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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
