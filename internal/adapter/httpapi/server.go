// Package httpapi serves the chat workflow over HTTP, Server-Sent Events and
// WebSocket.
package httpapi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"bizplan/internal/domain"
	"bizplan/internal/infra/config"
	"bizplan/internal/infra/metrics"
	"bizplan/internal/infra/middleware"
)

const maxBodyBytes = 1 << 20

// ChatService is the use case the API exposes.
type ChatService interface {
	Agents(ctx context.Context) []domain.AgentSpec
	Chat(ctx context.Context, message, agentName string) (domain.ChatResult, error)
	Stream(ctx context.Context, message, agentName string, emit func(domain.ChatEvent)) (domain.ChatResult, error)
}

// HealthInfo is reported by /api/health.
type HealthInfo struct {
	AzureEndpoint string `json:"azure_endpoint"`
	Deployment    string `json:"deployment"`
	Capacity      int    `json:"capacity"`
}

// Server is the HTTP API.
type Server struct {
	cfg     config.ServerConfig
	chat    ChatService
	health  HealthInfo
	metrics *metrics.Recorder
	logger  *slog.Logger

	server    *http.Server
	boundAddr string
	cancel    context.CancelFunc
}

// New creates a Server. rec may be nil, in which case /metrics is not mounted.
func New(cfg config.ServerConfig, chat ChatService, health HealthInfo, rec *metrics.Recorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		cfg:     cfg,
		chat:    chat,
		health:  health,
		metrics: rec,
		logger:  logger,
	}
}

// Handler returns the routed handler wrapped in the middleware chain. The
// rate limiter's cleanup goroutine exits with ctx.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/agents", s.handleAgents)
	mux.HandleFunc("GET /api/examples", s.handleExamples)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	mux.HandleFunc("GET /api/chat/stream", s.handleStream)
	mux.HandleFunc("GET /api/chat/ws", s.handleWS)
	if s.cfg.Metrics && s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.CORS(origins),
		middleware.SecurityHeaders,
		middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerMin: s.cfg.RateLimitRPM,
			BurstSize:      s.cfg.RateLimitBurst,
		}),
		s.accessLog,
	)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.boundAddr = ln.Addr().String()

	go func() {
		s.logger.Info("http api started", "addr", s.boundAddr)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// BoundAddr returns the address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the WebSocket upgrade reach the underlying connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", middleware.RequestIDFrom(r.Context()),
		)
	})
}
