package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/calderlab/scopecore/internal/acquisition"
	"github.com/calderlab/scopecore/internal/actor"
	"github.com/calderlab/scopecore/internal/bus"
	"github.com/calderlab/scopecore/internal/channels"
	"github.com/calderlab/scopecore/internal/history"
	"github.com/calderlab/scopecore/internal/infrastructure/config"
	"github.com/calderlab/scopecore/internal/infrastructure/logging"
	"github.com/calderlab/scopecore/internal/infrastructure/mqtt"
	"github.com/calderlab/scopecore/internal/infrastructure/tsdb"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SinkStats reports save-pipeline counters for the system status endpoint.
// *acquisition.MemorySink satisfies it.
type SinkStats interface {
	Count() int
	Flushes() int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Bus        *bus.Bus
	Actor      *actor.Actor
	Controller *acquisition.Controller
	Channels   *channels.Registry
	History    history.Repository
	Recorder   *history.Recorder // optional: reports the active run ID in status
	Sink       SinkStats         // optional: save-pipeline counters in status
	TSDB       *tsdb.Client      // optional: enables the telemetry query endpoints
	MQTT       *mqtt.Client      // optional: connection state reported in status
	DB         *sql.DB           // optional: pool statistics reported in status
	Version    string
}

// Server is the HTTP API server for scopecore.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	b          *bus.Bus
	a          *actor.Actor
	controller *acquisition.Controller
	channels   *channels.Registry
	history    history.Repository
	recorder   *history.Recorder
	sink       SinkStats
	tsdb       *tsdb.Client
	mqtt       *mqtt.Client
	db         *sql.DB
	version    string
	startTime  time.Time
	server     *http.Server
	hub        *Hub
	busSubs    []bus.Subscription
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if deps.Actor == nil {
		return nil, fmt.Errorf("command actor is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("acquisition controller is required")
	}
	if deps.Channels == nil {
		return nil, fmt.Errorf("channel registry is required")
	}
	if deps.History == nil {
		return nil, fmt.Errorf("run history repository is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		b:          deps.Bus,
		a:          deps.Actor,
		controller: deps.Controller,
		channels:   deps.Channels,
		history:    deps.History,
		recorder:   deps.Recorder,
		sink:       deps.Sink,
		tsdb:       deps.TSDB,
		mqtt:       deps.MQTT,
		db:         deps.DB,
		version:    deps.Version,
		startTime:  time.Now(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, attaches the hub to the
// event bus for real-time broadcast, and launches the HTTP listener in a
// background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

	// Fan bus notifications out to WebSocket clients
	s.subscribeBusEvents()

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It detaches from the event bus, waits up to 10 seconds for in-flight
// requests to complete, then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Detach the WebSocket relay so broadcasts stop before the hub closes
	for _, sub := range s.busSubs {
		s.b.Unsubscribe(sub)
	}
	s.busSubs = nil

	// Cancel background goroutines (hub)
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
