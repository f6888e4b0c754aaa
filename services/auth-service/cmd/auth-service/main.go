package main

import (
	"context"
	"log/slog"
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
	"github.com/barberflow/barberflow/services/auth-service/internal/handlers"
	"github.com/barberflow/barberflow/services/auth-service/internal/sessions"
	"github.com/barberflow/barberflow/services/auth-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "auth-service")
	port, err := config.Port("PORT", "8081")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9081")
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
	creds := storage.NewCredentialRepository(pool, outboxRepo, audit.NewRepository(pool))
	refreshRepo := sessions.NewRefreshRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_EVERY", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	bootstrapOperator(ctx, creds, logger)

	signer, err := buildSigner()
	if err != nil {
		logger.Error("failed to init jwt signer", "err", err)
		panic(err)
	}

	refreshTTLHours := config.Int("REFRESH_TTL_HOURS", 720)
	if refreshTTLHours <= 0 {
		logger.Error("invalid refresh ttl hours", "value", refreshTTLHours)
		panic("REFRESH_TTL_HOURS must be positive")
	}
	refreshTTL := time.Duration(refreshTTLHours) * time.Hour

	health := grpcx.NewHealthServer(service, logger)
	if err := health.Start(grpcPort); err != nil {
		logger.Error("grpc health start failed", "err", err)
	}
	defer health.Stop()

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	authHandler := handlers.NewAuthHandler(signer, creds, refreshRepo, refreshTTL, handlers.NewMetrics(nil), logger)
	routes := []string{
		"/api/v1/auth/manager/login",
		"/api/v1/auth/admin/login",
		"/api/v1/auth/refresh",
		"/api/v1/auth/logout",
		"/api/v1/auth/me",
		"/api/v1/auth/admin/password",
		"/.well-known/jwks.json",
		"/api/v1/auth/rotate",
		"/api/v1/auth/audit",
	}
	mux.HandleFunc(routes[0], authHandler.ManagerLogin)
	mux.HandleFunc(routes[1], authHandler.AdminLogin)
	mux.HandleFunc(routes[2], authHandler.Refresh)
	mux.HandleFunc(routes[3], authHandler.Logout)
	mux.HandleFunc(routes[4], authHandler.Me)
	mux.HandleFunc(routes[5], authHandler.ChangeAdminPassword)
	mux.HandleFunc(routes[6], authHandler.JWKS)
	mux.HandleFunc(routes[7], authHandler.Rotate)
	mux.HandleFunc(routes[8], authHandler.Audit)

	httpMetrics := httpx.NewHTTPMetrics(service, nil)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpMetrics.Middleware(httpx.KnownRoutes(routes...)),
		httpx.WithBodyLimit(64<<10),
	)
	handler = otelhttp.NewHandler(handler, "auth")
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

// bootstrapOperator creates the first platform operator from env.
func bootstrapOperator(ctx context.Context, creds *storage.CredentialRepository, logger *slog.Logger) {
	email := config.String("MANAGER_BOOTSTRAP_EMAIL", "")
	password := config.String("MANAGER_BOOTSTRAP_PASSWORD", "")
	if email == "" || password == "" {
		return
	}
	hash, err := handlers.HashPassword(password)
	if err != nil {
		logger.Error("operator bootstrap failed", "err", err)
		return
	}
	created, err := creds.EnsureOperator(ctx, email, hash)
	if err != nil {
		logger.Error("operator bootstrap failed", "err", err)
		return
	}
	if created {
		logger.Info("platform operator created", "email", email)
	}
}

func buildSigner() (handlers.TokenSigner, error) {
	privatePEM := config.String("JWT_PRIVATE_KEY_PEM", "")
	privatePEMS := config.String("JWT_PRIVATE_KEYS_PEM", "")
	activeKID := config.String("JWT_ACTIVE_KID", "")

	if privatePEMS != "" {
		keySet, err := handlers.ParseRS256KeySet(privatePEMS)
		if err != nil {
			return nil, err
		}
		signer, err := handlers.NewRotatingRS256Signer(keySet, activeKID)
		if err != nil {
			return nil, err
		}
		if rk := config.String("JWT_ROTATE_KEY", ""); rk != "" {
			if rotator, ok := signer.(*handlers.RotatingSigner); ok {
				rotator.SetRotateKey(rk)
			}
		}
		return signer, nil
	}
	if privatePEM != "" {
		return handlers.NewRS256Signer([]byte(privatePEM), config.String("JWT_KID", ""))
	}
	return handlers.NewHS256Signer(config.String("JWT_SECRET", "dev-secret")), nil
}
