// Package server implements the HTTP server that exposes the retrieval
// pipeline via a small JSON API. The server is started by the
// `ragcore serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sistc/ragcore/internal/logging"
	"github.com/sistc/ragcore/internal/pipeline"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives the server's Prometheus metrics. If nil, the
	// default registry is used.
	Registry *prometheus.Registry
}

// answerer is the interface handleAnswer calls to run a query through the
// pipeline. *pipeline.Engine satisfies it; tests inject a fake.
type answerer interface {
	Answer(ctx context.Context, query, userID, previousAnswer string) (pipeline.Result, error)
}

// Server is the HTTP server that wraps the retrieval pipeline.
type Server struct {
	// engine runs queries; set to a *pipeline.Engine in production,
	// overridden by a fake in tests.
	engine answerer
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the server's Prometheus instruments.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// answerRequest is the JSON body for POST /api/answer.
type answerRequest struct {
	// Query is the student's question.
	Query string `json:"query"`
	// UserID identifies the student for memory; optional.
	UserID string `json:"userId,omitempty"`
	// PreviousAnswer is the assistant's prior answer, for follow-ups; optional.
	PreviousAnswer string `json:"previousAnswer,omitempty"`
}

// answerResponse is the JSON response for POST /api/answer.
type answerResponse struct {
	// Answer is the generated answer or refusal text.
	Answer string `json:"answer"`
	// Confidence is the retrieval similarity backing the answer.
	Confidence float64 `json:"confidence"`
	// Category is the taxonomy bucket the query landed in.
	Category string `json:"category,omitempty"`
	// Blocked reports that the safety gate refused the query.
	Blocked bool `json:"blocked"`
	// Learned reports that new knowledge was stored while answering.
	Learned bool `json:"learned"`
}

// New constructs a Server from the provided engine and config.
func New(engine *pipeline.Engine, cfg *Config) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}

	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	metricsHandler := promhttp.Handler()
	if cfg.Registry != nil {
		reg = cfg.Registry
		metricsHandler = promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})
	}

	s := &Server{
		engine:  engine,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(reg),
	}

	rl, stopRL := newThrottle(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		log.Warn("server: API authentication disabled (no API key configured)")
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/answer",
		authMiddleware(cfg.APIKey, rl.middleware(s.instrument("answer", http.HandlerFunc(s.handleAnswer)))))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", metricsHandler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleAnswer handles POST /api/answer: decode, run the pipeline, encode.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	start := time.Now()

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.observeAnswer("invalid", time.Since(start))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.engine.Answer(r.Context(), req.Query, req.UserID, req.PreviousAnswer)
	if err != nil {
		outcome, status, msg := classifyAnswerError(err)
		s.metrics.observeAnswer(outcome, time.Since(start))
		if status >= http.StatusInternalServerError {
			log.Error("answer failed", slog.Any("error", err))
		}
		http.Error(w, msg, status)
		return
	}

	s.metrics.observeAnswer(resultOutcome(res), time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(answerResponse{
		Answer:     res.Text,
		Confidence: res.Confidence,
		Category:   res.Category,
		Blocked:    res.Blocked,
		Learned:    res.Learned,
	}); err != nil {
		log.Error("answer encode error", slog.Any("error", err))
	}
}

// classifyAnswerError maps pipeline errors to an outcome label, HTTP
// status, and client-safe message.
func classifyAnswerError(err error) (outcome string, status int, msg string) {
	switch {
	case errors.Is(err, pipeline.ErrEmptyInput):
		return "invalid", http.StatusBadRequest, "query is required"
	case errors.Is(err, pipeline.ErrQueryTooLong):
		return "invalid", http.StatusBadRequest, "query is too long"
	default:
		var ce *pipeline.CollaboratorError
		if errors.As(err, &ce) {
			return "error", http.StatusBadGateway, "answer generation is temporarily unavailable"
		}
		return "error", http.StatusInternalServerError, "internal error"
	}
}

// resultOutcome maps a successful pipeline result to its metric label.
func resultOutcome(res pipeline.Result) string {
	switch {
	case res.Blocked:
		return "blocked"
	case res.Learned:
		return "learned"
	default:
		return "ok"
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
