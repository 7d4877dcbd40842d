package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seantiz/vexing/internal/bidder"
	"github.com/seantiz/vexing/internal/health"
	"github.com/seantiz/vexing/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
)

// Deps are the components the HTTP server exposes.
type Deps struct {
	// Auction serves POST /openrtb2/auction.
	Auction  http.Handler
	Store    store.Store
	Registry *bidder.Registry
	Checkers []health.Checker
}

// Server is the auction server's HTTP front end.
type Server struct {
	addr   string
	deps   Deps
	router *chi.Mux
	logger *slog.Logger
}

// NewServer builds the router for deps. Nothing listens until Run.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		addr:   addr,
		deps:   deps,
		router: chi.NewRouter(),
		logger: logger,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.logRequests)
	s.router.Use(instrument)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Referer", "User-Agent", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	s.mount()
	return s
}

func (s *Server) mount() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/status", s.handleStatus)
	s.router.Handle("/metrics", metricsHandler())

	if s.deps.Auction != nil {
		s.router.Method(http.MethodPost, "/openrtb2/auction", s.deps.Auction)
	}

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/bidders", s.handleListBidders)
		r.Route("/stored-requests", func(r chi.Router) {
			r.Get("/", s.handleListStoredRequests)
			r.Put("/{kind}/{id}", s.handlePutStoredRequest)
			r.Get("/{kind}/{id}", s.handleGetStoredRequest)
			r.Delete("/{kind}/{id}", s.handleDeleteStoredRequest)
		})
	})
}

// Router exposes the router so tests and callers can add routes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves until ctx is done, then drains in-flight requests for up to
// shutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down", "cause", context.Cause(ctx).Error())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// logRequests writes one structured line per request. Probe endpoints log at
// debug so they do not drown out auction traffic.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		switch r.URL.Path {
		case "/healthz", "/status", "/metrics":
			level = slog.LevelDebug
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
