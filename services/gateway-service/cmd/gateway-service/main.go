package main

import (
	"context"
	"embed"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/barberflow/barberflow/libs/auth"
	"github.com/barberflow/barberflow/libs/config"
	"github.com/barberflow/barberflow/libs/grpcx"
	"github.com/barberflow/barberflow/libs/httpx"
	otelx "github.com/barberflow/barberflow/libs/otel"
	"github.com/barberflow/barberflow/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

//go:embed assets/gateway.v1.yaml assets/index.html
var assets embed.FS

func main() {
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
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

	mux := runtime.NewBaseMuxWithReady(upstreamChecks()...)
	verifier := newTokenVerifier(
		config.String("JWT_SECRET", "dev-secret"),
		config.String("JWKS_URL", ""),
		config.Duration("JWKS_CACHE_TTL", 5*time.Minute),
	)
	routes := registerRoutes(mux, upstreamsFromEnv(), verifier)

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var rateLimitMW httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"),
			logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute, time.Minute).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	httpMetrics := httpx.NewHTTPMetrics(service, nil)
	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS"),
			AllowedMethods:   listOr(config.List("CORS_ALLOWED_METHODS"), "GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"),
			AllowedHeaders:   listOr(config.List("CORS_ALLOWED_HEADERS"), "Authorization", "Content-Type", "X-Request-Id", "Idempotency-Key"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpMetrics.Middleware(httpx.PrefixRoutes(routes...)),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 3<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 10*time.Second)),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func listOr(values []string, fallback ...string) []string {
	if len(values) == 0 {
		return fallback
	}
	return values
}

type upstreams struct {
	auth, manager, business, booking *url.URL
}

func upstreamsFromEnv() upstreams {
	return upstreams{
		auth:     mustParseURL(config.String("AUTH_URL", "http://auth-service:8081")),
		business: mustParseURL(config.String("BUSINESS_URL", "http://business-service:8082")),
		booking:  mustParseURL(config.String("BOOKING_URL", "http://booking-service:8083")),
		manager:  mustParseURL(config.String("MANAGER_URL", "http://manager-service:8084")),
	}
}

// upstreamChecks probes the gRPC health endpoint of every backend.
func upstreamChecks() []runtime.ReadyCheck {
	var checks []runtime.ReadyCheck
	for _, u := range []struct{ name, env, addr string }{
		{"auth", "AUTH_GRPC_ADDR", "auth-service:9081"},
		{"business", "BUSINESS_GRPC_ADDR", "business-service:9082"},
		{"booking", "BOOKING_GRPC_ADDR", "booking-service:9083"},
		{"manager", "MANAGER_GRPC_ADDR", "manager-service:9084"},
	} {
		addr := config.String(u.env, u.addr)
		if addr == "" || addr == "off" {
			continue
		}
		checks = append(checks, runtime.ReadyCheck{Name: u.name, Check: grpcx.HealthReadyCheck(addr, "")})
	}
	return checks
}

// registerRoutes wires the proxies and returns the route prefixes used as
// metric labels.
func registerRoutes(mux *http.ServeMux, up upstreams, verifier *tokenVerifier) []string {
	authProxy := newProxy(up.auth)
	managerProxy := newProxy(up.manager)
	businessProxy := newProxy(up.business)
	bookingProxy := newProxy(up.booking)

	routes := []string{}
	proxy := func(prefix string, h http.Handler) {
		registerProxy(mux, prefix, h)
		routes = append(routes, prefix)
	}

	proxy("/api/v1/auth", authProxy)
	proxy("/.well-known/jwks.json", authProxy)
	proxy("/api/v1/public", bookingProxy)
	proxy("/api/v1/billing/webhooks/stripe", managerProxy)
	proxy("/api/v1/manager", requireAuth(requireRole(managerProxy, auth.RoleManager), verifier))
	proxy("/api/v1/admin/appointments", requireAuth(requireRole(bookingProxy, auth.RoleAdmin), verifier))
	proxy("/api/v1/admin", requireAuth(requireRole(businessProxy, auth.RoleAdmin), verifier))

	mux.HandleFunc("/openapi", func(w http.ResponseWriter, _ *http.Request) {
		serveAsset(w, "assets/gateway.v1.yaml", "application/yaml")
	})
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, _ *http.Request) {
		serveAsset(w, "assets/index.html", "text/html; charset=utf-8")
	})
	return append(routes, "/openapi", "/")
}

func serveAsset(w http.ResponseWriter, name, contentType string) {
	data, err := assets.ReadFile(name)
	if err != nil {
		http.Error(w, "asset not available", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func newProxy(target *url.URL) *httputil.ReverseProxy {
	p := httputil.NewSingleHostReverseProxy(target)
	p.Transport = otelhttp.NewTransport(http.DefaultTransport)
	return p
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
