// Package server provides the HTTP API for the resume optimizer.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonathan/resume-optimizer/internal/artifacts"
	"github.com/jonathan/resume-optimizer/internal/config"
	"github.com/jonathan/resume-optimizer/internal/knowledge"
	"github.com/jonathan/resume-optimizer/internal/llm"
	"github.com/jonathan/resume-optimizer/internal/observability"
	"github.com/jonathan/resume-optimizer/internal/pipeline"
	"github.com/jonathan/resume-optimizer/internal/pipeline/steps"
	"github.com/jonathan/resume-optimizer/internal/server/middleware"
	"github.com/jonathan/resume-optimizer/internal/server/ratelimit"
	"github.com/jonathan/resume-optimizer/internal/types"
)

// DefaultMaxUploadBytes caps the multipart body of a run request.
const DefaultMaxUploadBytes = 10 << 20

// Config holds server configuration
type Config struct {
	Port int
	// Store holds the artifacts of the latest run.
	Store artifacts.Store
	// IndexDir is the knowledge index directory.
	IndexDir    string
	ChunkTokens int
	Embedder    llm.Embedder
	// Runner builds the stage runner for each run.
	Runner pipeline.RunnerFactory
	// Credentials are used when a request does not supply its own keys.
	Credentials types.Credentials
	Tracker     pipeline.Tracker
	// JWT enables bearer auth on every endpoint except /health and /metrics.
	JWT            *config.JWTConfig
	RateLimit      *ratelimit.Config
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	store       artifacts.Store
	index       *knowledge.Index
	runner      pipeline.RunnerFactory
	creds       types.Credentials
	tracker     pipeline.Tracker
	metrics     *observability.Metrics
	registry    *prometheus.Registry
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	maxUpload   int64
	log         *slog.Logger

	// busy serializes runs; index and store are shared by all requests.
	busy    atomic.Bool
	mu      sync.Mutex
	current RunStatus
}

// RunStatus describes the run in progress, if any.
type RunStatus struct {
	Processing bool       `json:"processing"`
	RunID      string     `json:"run_id,omitempty"`
	Company    string     `json:"company,omitempty"`
	Stage      string     `json:"stage,omitempty"`
	Status     string     `json:"status,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("artifact store is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("runner factory is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	index, err := knowledge.New(knowledge.Options{
		Dir:         cfg.IndexDir,
		Embedder:    cfg.Embedder,
		ChunkTokens: cfg.ChunkTokens,
		Stages:      steps.KnowledgeStages(steps.Default()),
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create knowledge index: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}

	s := &Server{
		store:       cfg.Store,
		index:       index,
		runner:      cfg.Runner,
		creds:       cfg.Credentials,
		tracker:     cfg.Tracker,
		metrics:     observability.NewMetrics(registry),
		registry:    registry,
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
		maxUpload:   maxUpload,
		log:         logger.With("component", "server"),
	}
	if cfg.JWT != nil {
		s.jwtService = NewJWTService(cfg.JWT)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // a run makes five reasoning calls
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the server's HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /runs", s.handleRun)
	api.HandleFunc("POST /runs/stream", s.handleRunStream)
	api.HandleFunc("GET /runs/current", s.handleCurrentRun)
	api.HandleFunc("GET /artifacts", s.handleListArtifacts)
	api.HandleFunc("GET /artifacts/{name}", s.handleGetArtifact)
	api.HandleFunc("DELETE /artifacts", s.handleClearArtifacts)

	var protected http.Handler = api
	if s.jwtService != nil {
		protected = middleware.AuthMiddleware(s.jwtService.AsTokenValidator())(api)
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /health", s.handleHealth)
	root.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	root.Handle("/", protected)

	return s.withRateLimit(s.withLogging(s.withCORS(root)))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", "addr", s.httpServer.Addr, "auth", s.jwtService != nil)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.Close()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

// Close stops background work and tears down the knowledge index.
func (s *Server) Close() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if err := s.index.Dispose(); err != nil {
		s.log.Warn("knowledge index teardown incomplete", "error", err)
	}
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientID(r), r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path,
			"remote", r.RemoteAddr, "duration", time.Since(start))
	})
}

// clientID extracts the client identifier (IP address) from the request.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	s.log.Warn("rate limit exceeded", "limit", info.Limit, "reset", info.ResetTime.Format(time.RFC3339))
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("failed to encode JSON response", "error", err)
	}
}

// errorResponse writes err with the status HTTPStatus assigns to it.
func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	s.jsonResponse(w, HTTPStatus(err), errorBody(err))
}
