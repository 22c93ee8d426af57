// Package server assembles the HTTP surface: the user API, health and
// Prometheus endpoints, CORS, and graceful shutdown.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"usergrid/internal/adapters/users"
	"usergrid/internal/config"
)

// PathHealth is the liveness endpoint.
const PathHealth = "/healthz"

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// Server wires the user handler into a router and runs it.
type Server struct {
	cfg      config.Config
	users    http.Handler
	logger   *zap.Logger
	gatherer prometheus.Gatherer
}

// New builds a Server around the user handler.
func New(cfg config.Config, handler *users.Handler, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		users:    handler,
		logger:   logger,
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router registers every route.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	for _, path := range []string{users.PathBulkUpsert, users.PathUsers, users.PathUsers + "/", users.PathDoc} {
		r.Handle(path, s.users)
	}
	r.HandleFunc(PathHealth, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
	}).Methods(http.MethodGet)
	metricsPath := s.cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	r.Handle(metricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

// Handler returns the router behind the CORS policy.
func (s *Server) Handler() http.Handler {
	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.Router())
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then drains in-flight
// requests for at most the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	s.logger.Info("http server shutting down", zap.Duration("timeout", timeout))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
