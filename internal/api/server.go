// Package api serves the optional local control API: block status, refresh
// requests, injected signals, and a live event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/barline/internal/auth"
	"github.com/mattjoyce/barline/internal/config"
	"github.com/mattjoyce/barline/internal/dispatch"
	"github.com/mattjoyce/barline/internal/events"
	"github.com/mattjoyce/barline/internal/signals"
)

// BlockBoard is the read side of the dispatcher.
type BlockBoard interface {
	Slots() []dispatch.SlotStatus
	Slot(id int) (dispatch.SlotStatus, bool)
	Len() int
}

// UpdateRequester enqueues an out-of-band update for one block.
type UpdateRequester interface {
	Request(id int) error
}

// Info is static process metadata shown on /healthz.
type Info struct {
	RunID      string
	ConfigHash string
	Version    string
}

// signalBuffer bounds injected signals waiting for the dispatcher.
const signalBuffer = 8

// Server represents the HTTP API server
type Server struct {
	config    config.APIConfig
	board     BlockBoard
	requests  UpdateRequester
	hub       *events.Hub
	info      Info
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
	signals   chan signals.Signal
}

// New creates a new API server instance. hub may be nil, in which case
// /events is not served.
func New(cfg config.APIConfig, board BlockBoard, requests UpdateRequester, hub *events.Hub, info Info, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:    cfg,
		board:     board,
		requests:  requests,
		hub:       hub,
		info:      info,
		logger:    logger.With("component", "api"),
		startedAt: time.Now(),
		signals:   make(chan signals.Signal, signalBuffer),
	}
}

// Signals carries signals posted to /signal/{kind}. It is never closed.
func (s *Server) Signals() <-chan signals.Signal {
	return s.signals
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		// Cancelling ctx ends open event streams so Shutdown can finish.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	if auth.Open(s.config) {
		s.logger.Warn("API enabled without a token; every request is accepted")
	}
	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			_ = s.server.Close()
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes(auth.ScopeBlocksRO)).Get("/blocks", s.handleListBlocks)
		r.With(s.requireScopes(auth.ScopeBlocksRO)).Get("/blocks/{id}", s.handleGetBlock)
		r.With(s.requireScopes(auth.ScopeBlocksRW)).Post("/blocks/{id}/refresh", s.handleRefresh)
		r.With(s.requireScopes(auth.ScopeBlocksRW)).Post("/signal/{kind}", s.handleSignal)
		if s.hub != nil {
			r.With(s.requireScopes(auth.ScopeEventsRO)).Get("/events", s.handleEvents)
		}
	})

	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.Open(s.config) {
			p := auth.Principal{Scopes: map[string]struct{}{auth.ScopeAll: {}}}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
			return
		}

		token, err := auth.ExtractBearerToken(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		p, ok := auth.Authenticate(token, s.config)
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "invalid API token")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

func (s *Server) requireScopes(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := auth.PrincipalFromContext(r.Context())
			if !auth.HasAnyScope(p, required...) {
				s.writeError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
