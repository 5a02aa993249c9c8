package server

// Package server exposes the analytics and automation engines over HTTP and
// streams automation activity to WebSocket subscribers.

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tablewise/tablewise-insights/internal/analytics/churn"
	"github.com/tablewise/tablewise-insights/internal/analytics/forecast"
	"github.com/tablewise/tablewise-insights/internal/analytics/inventory"
	"github.com/tablewise/tablewise-insights/internal/automation"
	"github.com/tablewise/tablewise-insights/internal/cache"
	"github.com/tablewise/tablewise-insights/internal/config"
	"github.com/tablewise/tablewise-insights/internal/db"
	"github.com/tablewise/tablewise-insights/internal/metrics"
	"github.com/tablewise/tablewise-insights/internal/middleware"
)

// Components are the engines the server fronts. Store, Hub and
// ForecastCache are optional; without a store the history endpoint
// answers 503, and a nil hub is replaced by one that nothing publishes to.
type Components struct {
	Forecaster    *forecast.Forecaster
	Scorer        *churn.Scorer
	Optimizer     *inventory.Optimizer
	Engine        *automation.Engine
	Store         db.Store
	Hub           *Hub
	ForecastCache *cache.Cache[*forecast.Result]
}

// Server represents the tablewise-insights HTTP server
type Server struct {
	config *config.Config
	logger *zap.Logger

	// Core components
	forecaster *forecast.Forecaster
	scorer     *churn.Scorer
	optimizer  *inventory.Optimizer
	engine     *automation.Engine
	store      db.Store
	hub        *Hub
	forecasts  *cache.Cache[*forecast.Result]

	limiter *middleware.RateLimiter

	// HTTP server
	httpServer *http.Server
	listener   net.Listener

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	mu      sync.RWMutex
	running bool
}

// NewServer creates a new server. The forecaster, scorer, optimizer and
// engine are required.
func NewServer(cfg *config.Config, c Components, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if c.Forecaster == nil || c.Scorer == nil || c.Optimizer == nil || c.Engine == nil {
		return nil, fmt.Errorf("forecaster, scorer, optimizer and engine are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if c.Hub == nil {
		c.Hub = NewHub(cfg.Server.AllowedOrigins, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:     cfg,
		logger:     logger,
		forecaster: c.Forecaster,
		scorer:     c.Scorer,
		optimizer:  c.Optimizer,
		engine:     c.Engine,
		store:      c.Store,
		hub:        c.Hub,
		forecasts:  c.ForecastCache,
		limiter:    middleware.NewRateLimiter(cfg.Server.RequestsPerSecond, cfg.Server.Burst),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHandlers(mux)
	return instrument(s.limiter.Middleware(mux))
}

// Start binds the configured port and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server is already running")
	}

	addr := fmt.Sprintf(":%d", s.config.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	s.running = true
	s.logger.Info("tablewise-insights server started",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("history", s.store != nil),
		zap.Int("rules", len(s.engine.Rules().Rules())),
	)
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the server, disconnecting WebSocket clients first.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.hub.Close()

	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("tablewise-insights server stopped")
	return nil
}

// registerHandlers registers all HTTP handlers
func (s *Server) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Analytics
	mux.HandleFunc("POST /api/v1/forecast", s.handleForecast)
	mux.HandleFunc("POST /api/v1/forecast/batch", s.handleForecastBatch)
	mux.HandleFunc("POST /api/v1/churn/assess", s.handleChurnAssess)
	mux.HandleFunc("POST /api/v1/churn/cohorts", s.handleChurnCohorts)
	mux.HandleFunc("POST /api/v1/inventory/analyze", s.handleInventoryAnalyze)

	// Automation
	mux.HandleFunc("POST /api/v1/actions/execute", s.handleExecuteAction)
	mux.HandleFunc("GET /api/v1/actions/log", s.handleActionLog)
	mux.HandleFunc("GET /api/v1/actions/stats", s.handleActionStats)
	mux.HandleFunc("GET /api/v1/actions/history", s.handleActionHistory)
	mux.HandleFunc("GET /api/v1/actions/rules", s.handleRules)
	mux.HandleFunc("POST /api/v1/insights/process", s.handleProcessInsight)
	mux.HandleFunc("GET /api/v1/approvals", s.handleListApprovals)
	mux.HandleFunc("GET /api/v1/approvals/{id}", s.handleGetApproval)
	mux.HandleFunc("POST /api/v1/approvals/{id}/approve", s.handleApprove)
	mux.HandleFunc("POST /api/v1/approvals/{id}/reject", s.handleReject)

	mux.HandleFunc("GET /ws/actions", s.hub.ServeWS)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status":           "healthy",
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"pendingApprovals": len(s.engine.Approvals(automation.ApprovalPending)),
		"websocketClients": s.hub.Clients(),
		"forecastCache":    s.forecasts.Stats(),
	}
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = err.Error()
		} else {
			body["database"] = "ok"
		}
	}
	writeJSON(w, status, body)
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack is required by the WebSocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// instrument records request counts and latency labelled by route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
