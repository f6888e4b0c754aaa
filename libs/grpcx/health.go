package grpcx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer serves the standard gRPC health protocol for one service.
type HealthServer struct {
	name   string
	srv    *grpc.Server
	health *health.Server
	logger *slog.Logger
}

func NewHealthServer(name string, logger *slog.Logger) *HealthServer {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(UnaryServerRequestIDInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return &HealthServer{name: name, srv: srv, health: hs, logger: logger}
}

// Start listens on port in the background.
func (h *HealthServer) Start(port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}
	go func() {
		if h.logger != nil {
			h.logger.Info("grpc health listening", "port", port)
		}
		if err := h.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) && h.logger != nil {
			h.logger.Error("grpc server error", "err", err)
		}
	}()
	return nil
}

// SetNotServing flips the status so peers stop routing before shutdown.
func (h *HealthServer) SetNotServing() {
	h.health.SetServingStatus(h.name, healthpb.HealthCheckResponse_NOT_SERVING)
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
}

func (h *HealthServer) Stop() {
	h.SetNotServing()
	h.srv.GracefulStop()
}

// HealthReadyCheck probes a remote gRPC health endpoint. The client
// connection is created on first use and reused afterwards.
func HealthReadyCheck(addr, service string) func(context.Context) error {
	var (
		once    sync.Once
		client  healthpb.HealthClient
		dialErr error
	)
	return func(ctx context.Context) error {
		once.Do(func() {
			conn, err := NewClient(addr, DialOptions{})
			if err != nil {
				dialErr = err
				return
			}
			client = healthpb.NewHealthClient(conn)
		})
		if dialErr != nil {
			return dialErr
		}
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return err
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("%s is %s", addr, resp.GetStatus())
		}
		return nil
	}
}
