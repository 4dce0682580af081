// Package server provides the HTTP and WebSocket surface of the candle
// display.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/candlelight/internal/geometry"
	"github.com/ayusman/candlelight/internal/server/api"
	"github.com/ayusman/candlelight/internal/session"
	"github.com/ayusman/candlelight/internal/store"
)

// Controller is the session as seen by the display.
type Controller interface {
	Snapshot() session.Snapshot
	Relight() bool
	Mount()
	Report(rect geometry.Rect)
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Session   Controller
	Frames    FrameSource

	// PushInterval paces snapshot pushes and the MJPEG stream. Zero uses
	// DefaultPushInterval.
	PushInterval time.Duration

	Logger zerolog.Logger
}

// DefaultPushInterval is about 15 updates per second.
const DefaultPushInterval = 66 * time.Millisecond

// Server represents the HTTP server of the display.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	events *EventsHandler
	logger zerolog.Logger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.PushInterval <= 0 {
		config.PushInterval = DefaultPushInterval
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		logger: config.Logger.With().Str("component", "server").Logger(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Session != nil {
		s.mux.HandleFunc("/api/state", s.handleState)
		s.mux.HandleFunc("/api/relight", s.handleRelight)
		s.mux.HandleFunc("/api/layout", s.handleLayout)

		s.events = NewEventsHandler(s.config.Session, s.config.PushInterval, s.logger)
		s.mux.Handle("/api/events", s.events)
	}

	if s.config.Store != nil {
		s.mux.Handle("/api/settings", api.NewSettingsHandler(s.config.Store))
		s.mux.Handle("/api/history", api.NewHistoryHandler(s.config.Store))
	}

	if s.config.Frames != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Frames, s.config.PushInterval))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).Truncate(time.Second).String(),
	})
}

// ShutdownTimeout bounds the graceful shutdown before remaining connections
// are closed.
const ShutdownTimeout = 5 * time.Second

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled. Requests inherit ctx, so
// long-lived responses such as the MJPEG stream end with it.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Msg("Graceful shutdown timed out, closing connections")
		srv.Close()
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close disconnects WebSocket clients and stops pushing snapshots.
func (s *Server) Close() {
	if s.events != nil {
		s.events.Close()
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
