package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-cloud/internal/accessory"
	"github.com/nerrad567/gray-logic-cloud/internal/audit"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-cloud/internal/platform"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Platform is the device platform served by the API. *platform.Platform
// satisfies it.
type Platform interface {
	Accessory(deviceID string) (*accessory.Accessory, bool)
	Accessories() []*accessory.Accessory
	Counts() (managed, online, offline int)
	HandleCommand(ctx context.Context, deviceID string, cmd accessory.Command) error
	Discover(ctx context.Context) (platform.Result, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Platform Platform

	// Hub is optional. When set, the caller runs it and also feeds it
	// service values; otherwise the server creates and runs its own.
	Hub *Hub

	// Audit is optional. When set, GET /api/v1/audit serves the trail.
	Audit audit.Repository

	Version string
}

// Server is the local HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	logger      *logging.Logger
	platform    Platform
	version     string
	hub         *Hub
	externalHub bool
	audit       audit.Repository
	tickets     *ticketStore

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc

	// discovering guards against overlapping rediscovery runs.
	discoveryMu sync.Mutex
	discovering bool
	bgWG        sync.WaitGroup
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Platform == nil {
		return nil, fmt.Errorf("platform is required")
	}

	s := &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		platform: deps.Platform,
		version:  deps.Version,
		audit:    deps.Audit,
		tickets:  newTicketStore(),
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}
	return s, nil
}

// Start binds the listener and serves in a background goroutine.
//
// Parameters:
//   - ctx: Parent context for background goroutines (not the listener)
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.cfg.WebSocket, s.logger)
		go s.hub.Run(srvCtx)
	}
	go s.cleanTicketsLoop(srvCtx)

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:           s.buildRouter(srvCtx),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.listener = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)
	s.bgWG.Wait()
	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
