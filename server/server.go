// Package server exposes the relay and the fragment store over HTTP.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hubenschmidt/ultrarelay/monitor"
	"github.com/hubenschmidt/ultrarelay/rag"
	"github.com/hubenschmidt/ultrarelay/relay"
	"github.com/hubenschmidt/ultrarelay/static"
)

const (
	Version = "1.0"

	DefaultMaxBodyBytes = 2 << 20
	DefaultSearchTopK   = 4
)

// Config configures a new Server instance.
type Config struct {
	Index   *rag.Index
	Relay   *relay.Relay
	Metrics monitor.MetricsCollector
	Logger  *zap.Logger

	// Static serves everything outside /api. Defaults to the built-in page.
	Static http.Handler

	MaxBodyBytes   int64
	DefaultTopK    int
	AllowedOrigins []string
}

// Server is the HTTP front of the relay.
type Server struct {
	index   *rag.Index
	relay   *relay.Relay
	metrics monitor.MetricsCollector
	logger  *zap.Logger
	static  http.Handler

	maxBodyBytes   int64
	defaultTopK    int
	allowedOrigins []string
}

// New creates a new Server with the given configuration.
func New(cfg Config) *Server {
	s := &Server{
		index:          cfg.Index,
		relay:          cfg.Relay,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		static:         cfg.Static,
		maxBodyBytes:   cfg.MaxBodyBytes,
		defaultTopK:    cfg.DefaultTopK,
		allowedOrigins: cfg.AllowedOrigins,
	}

	if s.metrics == nil {
		s.metrics = monitor.NewNoOpCollector()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.static == nil {
		s.static = static.Default()
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = DefaultMaxBodyBytes
	}
	if s.defaultTopK <= 0 {
		s.defaultTopK = DefaultSearchTopK
	}
	if len(s.allowedOrigins) == 0 {
		s.allowedOrigins = []string{"*"}
	}
	return s
}

// Handler returns the router for the API and the static front end.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Post("/vector_search", s.handleVectorSearch)
		r.Post("/chat", s.handleChat)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics/summary", s.handleMetricsSummary)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found"})
		})
	})

	r.Handle("/*", s.static)

	return r
}
