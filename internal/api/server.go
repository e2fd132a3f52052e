// Package api provides the HTTP REST API and WebSocket server for wizbind.
//
// It exposes the binding flow, the committed-entry registry, and
// home-config management, plus a WebSocket event stream for binding
// and discovery events.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/luxbind/wiz-core/internal/flow"
	"github.com/luxbind/wiz-core/internal/homeconfig"
	"github.com/luxbind/wiz-core/internal/identity"
	"github.com/luxbind/wiz-core/internal/infrastructure/config"
	"github.com/luxbind/wiz-core/internal/infrastructure/logging"
	"github.com/luxbind/wiz-core/internal/infrastructure/mqtt"
	"github.com/luxbind/wiz-core/internal/wizlan"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Flows    *flow.Manager
	Entries  *identity.Store
	Home     *homeconfig.Store
	MQTT     *mqtt.Client // optional; hint ingestion disabled when nil
	Version  string
}

// Server is the HTTP API server for wizbind.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	flows   *flow.Manager
	entries *identity.Store
	home    *homeconfig.Store
	mqtt    *mqtt.Client
	version string
	server  *http.Server
	hub     *Hub
	cancel  context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Flows == nil {
		return nil, fmt.Errorf("flow manager is required")
	}
	if deps.Entries == nil {
		return nil, fmt.Errorf("entry store is required")
	}

	return &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		secCfg:  deps.Security,
		logger:  deps.Logger,
		flows:   deps.Flows,
		entries: deps.Entries,
		home:    deps.Home,
		mqtt:    deps.MQTT,
		version: deps.Version,
	}, nil
}

// Hub returns the server's WebSocket hub, available after Start().
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, subscribes to the
// MQTT discovery-hint topic, and launches the HTTP listener in a
// background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Periodic ticket cleanup to prevent memory leaks.
	go s.cleanTicketsLoop(srvCtx)

	if err := s.subscribeHints(srvCtx); err != nil {
		s.logger.Warn("failed to subscribe to discovery hints", "error", err)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
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
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
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

// subscribeHints feeds MQTT discovery hints into the binding flow and
// broadcasts the outcome to WebSocket clients.
func (s *Server) subscribeHints(ctx context.Context) error {
	if s.mqtt == nil {
		return nil // MQTT not configured; hint ingestion disabled
	}

	topic := mqtt.Topics{}.DiscoveryHint()
	s.logger.Info("subscribing to discovery hints", "topic", topic)
	return s.mqtt.Subscribe(topic, 1, func(t string, payload []byte) error {
		var hint struct {
			IPAddress  string `json:"ip_address"`
			MACAddress string `json:"mac_address"`
		}
		if err := json.Unmarshal(payload, &hint); err != nil {
			s.logger.Warn("malformed discovery hint", "topic", t, "error", err)
			return nil
		}

		result, err := s.flows.StartHint(ctx, wizlan.DiscoveredBulb{
			IPAddress:  hint.IPAddress,
			MACAddress: hint.MACAddress,
		})
		if err != nil {
			s.logger.Warn("discovery hint rejected",
				"mac", hint.MACAddress,
				"error", err,
			)
			return nil
		}

		if s.hub != nil {
			s.hub.Broadcast(ChannelDiscoveryHint, result)
		}
		return nil
	})
}
