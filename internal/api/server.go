// Package api serves entity resolution, fee calculation and letter
// preparation over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/fee-cli/internal/dataset"
	"github.com/sells-group/fee-cli/internal/letter"
	"github.com/sells-group/fee-cli/internal/metrics"
)

// Config holds the HTTP surface settings.
type Config struct {
	WorkbookPath   string
	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
}

// Server routes requests to the letter service.
type Server struct {
	cfg      Config
	letters  *letter.Service
	datasets *dataset.Cache
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	limiter  *RateLimiter
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records resolution metrics in m and exposes g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// NewServer creates a Server. Datasets are read from cfg.WorkbookPath
// through datasets.
func NewServer(cfg Config, letters *letter.Service, datasets *dataset.Cache, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		letters:  letters,
		datasets: datasets,
	}
	for _, o := range opts {
		o(s)
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	return s
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(requestLogger)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Post("/resolve/{entity}", s.handleResolve)
		r.Post("/calculate", s.handleCalculate)
		r.Post("/prepare", s.handlePrepare)
		r.Post("/dataset/refresh", s.handleRefresh)
	})

	return r
}
