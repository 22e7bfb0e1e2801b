// Package server exposes the funnel dashboard as a JSON request/response API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/KaramelBytes/funnelboard/internal/chart"
	"github.com/KaramelBytes/funnelboard/internal/parser"
	"github.com/KaramelBytes/funnelboard/internal/pipeline"
	"github.com/KaramelBytes/funnelboard/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Options configures a Server.
type Options struct {
	Addr           string
	MaxUploadBytes int64
	PruneEvery     time.Duration

	TargetColumn  string
	RangeColumn   string
	FunnelColumns []string
	ChartMode     chart.Mode
	SheetName     string

	Parse parser.Options
}

// Server wires the session store and pipeline to HTTP handlers.
type Server struct {
	opt      Options
	store    *session.Store
	pipe     *pipeline.Pipeline
	log      logrus.FieldLogger
	router   chi.Router
	shutdown time.Duration
}

// New builds a Server with its routes mounted.
func New(opt Options, store *session.Store, pipe *pipeline.Pipeline, log logrus.FieldLogger) *Server {
	if opt.MaxUploadBytes <= 0 {
		opt.MaxUploadBytes = 50 << 20
	}
	if opt.PruneEvery <= 0 {
		opt.PruneEvery = time.Minute
	}
	if opt.ChartMode == "" {
		opt.ChartMode = chart.Bar
	}
	s := &Server{
		opt:      opt,
		store:    store,
		pipe:     pipe,
		log:      log,
		router:   chi.NewRouter(),
		shutdown: 10 * time.Second,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.log))
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleUpload)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleSession)
			r.Delete("/", s.handleDelete)
			r.Post("/funnel", s.handleFunnel)
			r.Get("/chart", s.handleChart)
			r.Get("/export", s.handleExport)
		})
	})
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on Options.Addr until ctx is cancelled, pruning idle
// sessions in the background, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opt.Addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.prune(ctx)

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.opt.Addr).Info("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()
	s.log.Info("shutting down")
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) prune(ctx context.Context) {
	ticker := time.NewTicker(s.opt.PruneEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if gone := s.store.Prune(now); len(gone) > 0 {
				s.log.WithField("sessions", len(gone)).Info("pruned idle sessions")
			}
		}
	}
}

// requestLogger logs one line per request through logrus.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.WithFields(logrus.Fields{
					"request_id": middleware.GetReqID(r.Context()),
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     ww.Status(),
					"bytes":      ww.BytesWritten(),
					"duration":   time.Since(start).String(),
				}).Info("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
