package services

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// BestLocationFunc returns the current best location, or nil.
type BestLocationFunc func() *location.Sample

// HTTPService serves the Prometheus metrics, the live location stream and
// the current best location.
type HTTPService struct {
	listen  string
	handler http.Handler
	logger  zerolog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// NewHTTPService creates an HTTPService for the given routes. best may be
// nil when the location service is disabled.
func NewHTTPService(listen string, metricsHandler, streamHandler http.Handler, best BestLocationFunc, logger zerolog.Logger) *HTTPService {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", metricsHandler)
	r.Method(http.MethodGet, "/ws", streamHandler)
	r.Get("/location", bestLocationHandler(best, logger))

	return &HTTPService{
		listen:  listen,
		handler: r,
		logger:  logger,
	}
}

// bestLocationHandler answers with the best fix as JSON, or 204 when no
// position is known yet.
func bestLocationHandler(best BestLocationFunc, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		var s *location.Sample
		if best != nil {
			s = best()
		}
		if s == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.ToFix()); err != nil {
			logger.Warn().Err(err).Msg("Failed to write best location")
		}
	}
}

// Start binds the listen address and serves in the background.
func (h *HTTPService) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.server != nil {
		h.logger.Warn().Msg("HTTPService is already running")
		return errors.New("http service is already running")
	}

	ln, err := net.Listen("tcp", h.listen)
	if err != nil {
		return err
	}

	h.listener = ln
	h.server = &http.Server{
		Handler:           h.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	h.done = make(chan struct{})

	go func(server *http.Server, done chan struct{}) {
		defer close(done)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error().Err(err).Msg("HTTP server failed")
		}
	}(h.server, h.done)

	h.logger.Info().Str("address", ln.Addr().String()).Msg("HTTPService started successfully")
	return nil
}

// Stop shuts the server down, waiting for in-flight requests.
func (h *HTTPService) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.server == nil {
		h.logger.Warn().Msg("HTTPService is not running")
		return errors.New("http service is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := h.server.Shutdown(ctx)
	<-h.done

	h.server = nil
	h.listener = nil
	h.logger.Info().Msg("HTTPService stopped successfully")
	return err
}

// Addr returns the bound address, or an empty string when stopped.
func (h *HTTPService) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}
