// Package api is the witness's HTTP surface. Handlers translate between
// JSON or event streams on the wire and the resolver; they hold no state.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/kelwitness/internal/kel"
	"github.com/roach88/kelwitness/internal/registry"
	"github.com/roach88/kelwitness/internal/resolve"
)

// MaxBodyBytes caps every request body.
const MaxBodyBytes = 1 << 20

// ShutdownTimeout bounds how long Serve waits for in-flight requests.
const ShutdownTimeout = 10 * time.Second

// Backend is the resolver as seen by the handlers.
type Backend interface {
	KeyState(ctx context.Context, id string) (kel.KeyState, error)
	KeyLog(ctx context.Context, id string) ([]kel.SignedEvent, error)
	Submit(ctx context.Context, id string, stream []byte) (resolve.Outcome, error)
	WitnessAddress(ctx context.Context, wid string) (registry.Record, error)
	PutWitnessAddress(ctx context.Context, wid string, rec registry.Record) (resolve.Outcome, error)
	PutUnverifiedKeyState(ctx context.Context, id string, st kel.KeyState) (resolve.Outcome, error)
}

// Server serves the witness API.
type Server struct {
	backend Backend
	logger  *slog.Logger
	maxBody int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the access and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxBodyBytes overrides MaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// New returns a server backed by b.
func New(b Backend, opts ...Option) *Server {
	s := &Server{
		backend: b,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxBody: MaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(s.limitBody)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/key_states/{id}", s.getKeyState)
	r.Put("/key_states/{id}", s.putKeyState)
	r.Get("/key_logs/{id}", s.getKeyLog)
	r.Post("/messages/{id}", s.postMessages)
	r.Get("/witness_ips/{id}", s.getWitnessAddress)
	r.Put("/witness_ips/{id}", s.putWitnessAddress)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", r.Method+" not allowed")
	})
	return r
}

// Serve serves on lis until ctx is cancelled, then drains in-flight
// requests for up to ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(lis)
	}()
	s.logger.Info("api listening", "address", lis.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("api stopped")
	return nil
}
