// Package server provides the gRPC server implementation and related utilities.
// It handles server lifecycle management, graceful shutdown, and signal handling
// for the connector.
package server

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/warrant1/chain-xrpl-ilp/internal/api"
	"github.com/warrant1/chain-xrpl-ilp/internal/peer"
)

// Server represents the gRPC server and its associated components.
// It manages the server lifecycle, including startup, shutdown, and signal handling.
//
// The Server struct encapsulates the operational gRPC server, the peer TCP
// listener the payment-channel protocol runs over, and a logger for
// operational logging and debugging.
type Server struct {
	// grpcServer is the underlying gRPC server instance.
	// It handles all gRPC communication and request processing.
	grpcServer *grpc.Server

	// peerListener accepts inbound peer connections. Nil for a Server built
	// with NewServer/NewServerWithGRPC, which serve gRPC only.
	peerListener *peer.Listener

	// logger is used for operational logging and debugging.
	// It provides structured logging capabilities throughout the server lifecycle.
	logger *slog.Logger
}

// NewServer creates a new Server with its own gRPC server instance.
// This constructor is useful when you need a server with default gRPC configuration.
//
// Parameters:
// - logger: A configured logger instance for server operations
//
// Returns a new Server instance with a default gRPC server.
// The gRPC server will need to have services registered before use.
func NewServer(logger *slog.Logger) *Server {
	return &Server{
		grpcServer: grpc.NewServer(),
		logger:     logger,
	}
}

// NewServerWithGRPC creates a new Server using the provided gRPC server instance.
// This constructor is useful when you have a pre-configured gRPC server
// with services already registered.
//
// Parameters:
// - logger: A configured logger instance for server operations
// - grpcServer: A pre-configured gRPC server with services registered
//
// Returns a new Server instance using the provided gRPC server.
// This is typically used with dependency injection systems.
func NewServerWithGRPC(logger *slog.Logger, grpcServer *grpc.Server) *Server {
	return &Server{
		grpcServer: grpcServer,
		logger:     logger,
	}
}

// NewServerWithConnector creates a new Server registering connector on an
// internal gRPC server, alongside the standard gRPC health service, and
// pairs it with peerListener so both transports shut down together.
//
// Parameters:
// - logger: A configured logger instance for server operations
// - connector: The operational connector API implementation
// - peerListener: The peer transport accepting incoming payment-channel connections
//
// Returns a new Server instance with the connector registered on an internal gRPC server.
func NewServerWithConnector(logger *slog.Logger, connector api.ConnectorServer, peerListener *peer.Listener) *Server {
	grpcServer := grpc.NewServer()
	api.RegisterConnectorServer(grpcServer, connector)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	return &Server{
		grpcServer:   grpcServer,
		peerListener: peerListener,
		logger:       logger,
	}
}

// Run starts the gRPC server on the specified address.
// This is a simple blocking call that starts the server and waits for it to stop.
//
// The server will listen for incoming connections on the specified address.
// This method blocks until the server stops or encounters an error.
//
// Parameters:
// - addr: The network address to listen on (e.g., ":8080", "localhost:9090")
//
// Returns an error if the server fails to start or encounters a fatal error.
// The server will continue running until manually stopped or an error occurs.
func (s *Server) Run(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Info("gRPC server listening", "addr", addr)
	return s.grpcServer.Serve(lis)
}

// RunWithGracefulShutdown starts the gRPC server (and, if configured, the peer
// listener on peerAddr) and performs graceful shutdown on context
// cancellation or SIGINT/SIGTERM signal.
//
// This method provides production-ready server management with proper signal handling
// and graceful shutdown capabilities. It ensures that in-flight requests are completed
// before the server stops.
//
// The server listens for the following signals:
// - SIGINT: Interrupt signal (Ctrl+C)
// - SIGTERM: Termination signal (system shutdown)
//
// Graceful shutdown ensures that:
// - New connections are rejected
// - Existing connections are allowed to complete
// - The server stops cleanly after all requests finish
//
// Parameters:
// - ctx: Context for cancellation and timeout control
// - addr: The network address the gRPC server listens on (e.g., ":8080")
// - peerAddr: The network address the peer transport listens on. Ignored if
//   the Server was built without a peerListener.
//
// Returns an error if the server fails to start or encounters a fatal error.
// The server will automatically shut down when the context is cancelled or signals are received.
func (s *Server) RunWithGracefulShutdown(ctx context.Context, addr string, peerAddr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.logger.Info("gRPC server listening", "addr", addr)

	shutdownCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.grpcServer.Serve(lis)
	})

	if s.peerListener != nil {
		g.Go(func() error {
			return s.peerListener.Run(shutdownCtx, peerAddr)
		})
	}

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			s.logger.Info("Received signal, shutting down gracefully", "signal", sig.String())
		case <-gctx.Done():
			s.logger.Info("Context cancelled, shutting down gracefully")
		}
		// Graceful shutdown
		cancel()
		s.grpcServer.GracefulStop()
		return nil
	})

	return g.Wait()
}
