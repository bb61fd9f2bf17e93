// Package server exposes the registry's pools over HTTP: health, stats,
// SQL queries, schema listing and object store reads.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/koustreak/querypool/internal/config"
	"github.com/koustreak/querypool/internal/errs"
	"github.com/koustreak/querypool/internal/logger"
	"github.com/koustreak/querypool/internal/registry"
)

// Server is the HTTP front of a Registry.
type Server struct {
	cfg  config.ServerConfig
	reg  *registry.Registry
	log  *logger.Logger
	http *http.Server
}

// New builds the router. Call ListenAndServe to start it.
func New(cfg config.ServerConfig, reg *registry.Registry, log *logger.Logger) (*Server, error) {
	if reg == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "registry is nil")
	}
	if log == nil {
		log = logger.Global()
	}
	s := &Server{cfg: cfg, reg: reg, log: log.Named("http")}
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Handler returns the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/pools", func(r chi.Router) {
		r.Get("/", s.handleListPools)
		r.Route("/{pool}", func(r chi.Router) {
			r.Get("/stats", s.handlePoolStats)
			r.Post("/query", s.handleQuery)
			r.Get("/tables", s.handleListTables)
			r.Get("/tables/{table}", s.handleDescribeTable)
			r.Post("/objects", s.handleObjects)
		})
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down within
// the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.cfg.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errs.Wrap(errs.ErrKindConnectionFailed, "http server failed", err)
	case <-ctx.Done():
	}

	shutdownCtx := context.Background()
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(shutdownCtx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	s.log.Info("shutting down http server")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return errs.Wrap(errs.ErrKindTimeout, "http shutdown did not finish", err)
	}
	return nil
}

// requestContext bounds a handler's wait for its query.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.cfg.QueryTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.cfg.QueryTimeout)
}
