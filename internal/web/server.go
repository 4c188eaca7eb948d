package web

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/cjeanneret/camctl/internal/debug"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
	log      zerolog.Logger
}

// NewServer creates a server configured for the given address and dependencies.
func NewServer(addr string, broadcaster *StatusBroadcaster, control Controller) (*Server, error) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, err
	}
	return &Server{
		addr:     addr,
		handlers: NewHandlers(broadcaster, control, subFS),
		log:      debug.Component("web"),
	}, nil
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/", s.handlers.ServeIndex)
	r.Get("/state", s.handlers.HandleState)
	r.Get("/status/stream", s.handlers.HandleStatusStream)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/shutter", func(r chi.Router) {
		r.Post("/", s.handlers.HandleShutter)
		r.Post("/remote", s.handlers.HandleRemoteShutter)
		r.Post("/cancel", s.handlers.HandleCancelCountdown)
	})
	r.Post("/focus", s.handlers.HandleFocus)
	r.Post("/camera", s.handlers.HandleCamera)
	r.Post("/hdr", s.handlers.HandleHDR)
	r.Post("/zoom", s.handlers.HandleZoom)
	r.Post("/pause", s.handlers.HandlePause)
	r.Post("/resume", s.handlers.HandleResume)

	return r
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Mux(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("web server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
