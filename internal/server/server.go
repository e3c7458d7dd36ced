package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/2bv/prime-anonymizer/internal/anonymizer"
	"github.com/2bv/prime-anonymizer/internal/audit"
	"github.com/2bv/prime-anonymizer/internal/config"
	"github.com/2bv/prime-anonymizer/internal/logger"
	"github.com/2bv/prime-anonymizer/internal/websocket"
)

// Version is the service version reported by /info
const Version = "1.0.0"

// Server represents the anonymization HTTP server
type Server struct {
	config *config.Config
	logger *logger.Logger
	engine *anonymizer.Engine
	router *mux.Router
	server *http.Server
	wsHub  *websocket.Hub

	auditStore *audit.Store

	limiters   map[string]*rate.Limiter
	limitersMu sync.Mutex
}

// Option configures optional server dependencies
type Option func(*Server)

// WithAuditStore attaches an audit trail store
func WithAuditStore(store *audit.Store) Option {
	return func(s *Server) { s.auditStore = store }
}

// New creates a new anonymization server instance
func New(cfg *config.Config, log *logger.Logger, engine *anonymizer.Engine, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("anonymization engine is required")
	}

	var wsHub *websocket.Hub
	if cfg.WebSocket.Enabled {
		wsHub = websocket.NewHub(&websocket.HubConfig{
			BroadcastDetections: cfg.WebSocket.BroadcastDetections,
			BroadcastRequests:   cfg.WebSocket.BroadcastRequests,
			BroadcastConns:      true,
		}, log.WithComponent("websocket").Logger)
	}

	server := &Server{
		config:   cfg,
		logger:   log.WithComponent("server"),
		engine:   engine,
		router:   mux.NewRouter(),
		wsHub:    wsHub,
		limiters: make(map[string]*rate.Limiter),
	}

	for _, opt := range opts {
		opt(server)
	}

	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health and info endpoints bypass rate limiting and auditing
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")
	s.router.HandleFunc("/entities", s.handleEntities).Methods("GET")

	if s.wsHub != nil {
		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.wsHub.HandleWebSocket).Methods("GET")
	}

	// Anonymization endpoints share the full middleware chain
	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.Use(s.payloadLimitMiddleware)

	api.HandleFunc("/anonymize", s.handleAnonymize).Methods("POST")
	api.HandleFunc("/analyze", s.handleAnalyze).Methods("POST")
	api.HandleFunc("/anonymize-advanced", s.handleAnonymizeAdvanced).Methods("POST")
	api.HandleFunc("/annotate", s.handleAnnotate).Methods("POST")
}

// Router exposes the configured handler, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting anonymization server",
		zap.Int("port", s.config.Server.Port),
		zap.Int("entities", len(s.engine.Registry().Entities())),
		zap.Bool("audit_enabled", s.auditStore != nil),
		zap.Bool("websocket_enabled", s.wsHub != nil),
	)

	if s.wsHub != nil {
		go s.wsHub.Run()
	}

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping anonymization server")
	return s.server.Shutdown(ctx)
}

// limiterFor returns the rate limiter for a client IP, creating it on first use
func (s *Server) limiterFor(ip string) *rate.Limiter {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()

	limiter, ok := s.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(
			rate.Limit(s.config.RateLimit.RequestsPerSecond),
			s.config.RateLimit.Burst,
		)
		s.limiters[ip] = limiter
	}
	return limiter
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"name":"prime-anonymizer",
		"version":"%s",
		"entities_count":%d,
		"audit_enabled":%t,
		"cache_enabled":%t
	}`, Version, len(s.engine.Registry().Entities()), s.auditStore != nil, s.config.Cache.Enabled)
}
