// Package api serves the conversion pipeline over HTTP. Single documents
// are converted synchronously; batches run as jobs whose progress is
// pushed to WebSocket clients on /ws.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/FocuswithJustin/LegacyBridge/core/pipeline"
	"github.com/FocuswithJustin/LegacyBridge/core/template"
	"github.com/FocuswithJustin/LegacyBridge/internal/logging"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 10 * time.Second

// Server is the HTTP host of one pipeline.
type Server struct {
	cfg       Config
	pipe      *pipeline.Pipeline
	store     *template.Store
	jobs      *JobStore
	hub       *Hub
	wsLimiter *WebSocketRateLimiter
	limiter   *RateLimiter
	started   time.Time
}

// NewServer validates cfg and creates a server for pipe. store, when not
// nil, persists templates created through the API. Call Close to release
// the background goroutines.
func NewServer(cfg Config, pipe *pipeline.Pipeline, store *template.Store) (*Server, error) {
	if err := ValidateAuthConfig(cfg.Auth); err != nil {
		return nil, fmt.Errorf("invalid auth config: %w", err)
	}
	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return nil, fmt.Errorf("TLS enabled but cert or key file not specified")
		}
		for _, f := range []string{cfg.TLS.CertFile, cfg.TLS.KeyFile} {
			if _, err := os.Stat(f); err != nil {
				return nil, fmt.Errorf("TLS file not found: %w", err)
			}
		}
	}

	s := &Server{
		cfg:       cfg,
		pipe:      pipe,
		store:     store,
		jobs:      NewJobStore(cfg.MaxJobs),
		hub:       NewHub(),
		wsLimiter: NewWebSocketRateLimiter(),
		started:   time.Now(),
	}
	if cfg.RateLimitRequests > 0 {
		s.limiter = NewRateLimiter(RateLimiterConfig{
			RequestsPerMinute: cfg.RateLimitRequests,
			BurstSize:         cfg.RateLimitBurst,
		})
	}
	go s.hub.Run()
	return s, nil
}

// Close cancels running jobs and stops the hub and the rate limiter.
func (s *Server) Close() {
	s.jobs.CancelAll()
	s.hub.Stop()
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// Routes returns the API routes without middleware.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/convert", s.handleConvert)
	mux.HandleFunc("/validate", s.handleValidate)
	for path, op := range operations {
		mux.HandleFunc(path, s.handleOperation(op))
	}
	mux.HandleFunc("/apply-template", s.handleApplyTemplate)
	mux.HandleFunc("/templates", s.handleTemplates)
	mux.HandleFunc("/templates/", s.handleTemplateByName)
	mux.HandleFunc("/jobs", s.handleJobs)
	mux.HandleFunc("/jobs/", s.handleJobByID)

	wsCfg := DefaultWebSocketSecurityConfig()
	if len(s.cfg.AllowedOrigins) > 0 {
		wsCfg.AllowedOrigins = s.cfg.AllowedOrigins
	}
	wsCfg.Auth = s.cfg.Auth
	mux.HandleFunc("/ws", SecureWebSocketHandler(s.hub, wsCfg, s.wsLimiter))
	return mux
}

// Handler returns the routes wrapped in the middleware chain: logging,
// CORS, rate limiting, authentication and security headers, outermost
// first.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = SecurityHeaders(s.Routes())

	if s.cfg.Auth.Enabled {
		handler = AuthMiddleware(s.cfg.Auth, handler)
		logging.SecurityEvent("authentication_configured", "api", "enabled", true)
	} else {
		logging.SecurityEvent("authentication_configured", "api",
			"enabled", false,
			"note", "all requests allowed")
	}

	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
		logging.Info("rate limiting enabled",
			"requests_per_minute", s.cfg.RateLimitRequests,
			"burst_size", s.limiter.config.BurstSize)
	}

	handler = CORSMiddleware(s.cfg.AllowedOrigins, handler)
	if len(s.cfg.AllowedOrigins) > 0 {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "restricted",
			"allowed_origins_count", len(s.cfg.AllowedOrigins))
	} else {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "permissive",
			"note", "allowing all origins (*)")
	}

	return logging.CombinedMiddleware(handler)
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	protocol, wsProtocol := "http", "ws"
	if s.cfg.TLS.Enabled {
		protocol, wsProtocol = "https", "wss"
	} else {
		logging.Warn("TLS disabled - using plain HTTP",
			"recommendation", "use TLS or a reverse proxy in production")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logging.GetLogger().Handler(), slog.LevelWarn),
	}
	logging.ServerStartup("rest_api", protocol, s.cfg.Port, "websocket_protocol", wsProtocol)

	errc := make(chan error, 1)
	go func() {
		if s.cfg.TLS.Enabled {
			errc <- srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			errc <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}

	logging.Info("shutting down", "reason", context.Cause(ctx))
	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != http.ErrServerClosed {
		return err
	}
	return nil
}
