package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// RelayServiceName is the service name reported by the health endpoint.
const RelayServiceName = "care-chat.Relay"

// GRPCHealthWorker exposes the standard gRPC health service for orchestrators.
// It reports SERVING while running and NOT_SERVING once shutdown starts.
type GRPCHealthWorker struct {
	log     *slog.Logger
	address string
}

func NewGRPCHealthWorker(log *slog.Logger, address string) *GRPCHealthWorker {
	return &GRPCHealthWorker{log: log, address: address}
}

func (w *GRPCHealthWorker) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", w.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", w.address, err)
	}
	return w.Serve(ctx, listener)
}

func (w *GRPCHealthWorker) Serve(ctx context.Context, listener net.Listener) error {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(w.log)))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(RelayServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	errChan := make(chan error, 1)
	go func() {
		w.log.Info("Starting gRPC health server", "address", listener.Addr().String(), "at", time.Now().UTC())
		if err := s.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	healthServer.Shutdown()
	s.GracefulStop()
	w.log.Info("gRPC health server stopped")
	return nil
}
