// Package api serves docket over HTTP.
//
// Every /v1 route requires a bearer token signed with HS256; the tenant is
// read from a configurable claim. Blob downloads, /metrics and /healthz are
// public.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/poiesic/docket"
	"github.com/poiesic/docket/config"
)

var (
	// ErrSystemRequired is returned when a nil System is provided.
	ErrSystemRequired = errors.New("docket system required")

	// ErrSecretRequired is returned when no JWT secret is configured.
	ErrSecretRequired = errors.New("JWT secret required")
)

// Server routes HTTP requests to a docket System.
type Server struct {
	sys    *docket.System
	cfg    config.ServerConfig
	router chi.Router
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New builds the router.
func New(sys *docket.System, cfg config.ServerConfig, opts ...Option) (*Server, error) {
	if sys == nil {
		return nil, ErrSystemRequired
	}
	if cfg.JWTSecret == "" {
		return nil, ErrSecretRequired
	}
	if cfg.TenantClaim == "" {
		cfg.TenantClaim = DefaultTenantClaim
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}

	s := &Server{sys: sys, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "api")
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", s.sys.Metrics().Handler())
	r.Get("/blobs/{handle}", s.getBlob)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(s.authenticate)

		v1.Route("/files", func(files chi.Router) {
			files.Post("/", s.uploadFile)
			files.Get("/", s.listFiles)
			files.Get("/{name}", s.getFile)
			files.Delete("/{name}", s.deleteFile)
			files.Post("/{name}/retry", s.retryFile)
		})
		v1.Post("/scrape", s.scrape)
		v1.Post("/search", s.search)

		v1.Route("/knowledge-bases", func(kbs chi.Router) {
			kbs.Post("/", s.createKnowledgeBase)
			kbs.Get("/", s.listKnowledgeBases)
			kbs.Get("/{id}", s.getKnowledgeBase)
			kbs.Patch("/{id}", s.updateKnowledgeBase)
			kbs.Delete("/{id}", s.deleteKnowledgeBase)
		})

		v1.Route("/notifications", func(n chi.Router) {
			n.Get("/", s.listNotifications)
			n.Delete("/", s.deleteAllNotifications)
			n.Get("/unread", s.unreadCount)
			n.Post("/read", s.markAllRead)
			n.Post("/{id}/read", s.markRead)
			n.Delete("/{id}", s.deleteNotification)
		})
	})

	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on cfg.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// requestLogger logs each request and records it in the HTTP metrics under
// its route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		s.sys.Metrics().HTTPRequest(r.Method, route, strconv.Itoa(status), elapsed)
		s.logger.Debug("request",
			"method", r.Method,
			"route", route,
			"status", status,
			"elapsed", elapsed,
			"requestId", middleware.GetReqID(r.Context()),
		)
	})
}
