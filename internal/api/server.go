package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/umbra/umbrago/internal/auth"
	"github.com/umbra/umbrago/internal/catalog"
	"github.com/umbra/umbrago/internal/circumstances"
	"github.com/umbra/umbrago/internal/health"
	"github.com/umbra/umbrago/internal/metrics"
	"github.com/umbra/umbrago/internal/overlay"
)

// CatalogConfig holds catalog source configuration.
type CatalogConfig struct {
	EnableFetch  bool
	SourceURL    string
	SnapshotPath string
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger

	store      *catalog.Store
	catalogCfg CatalogConfig
	solverCfg  circumstances.Config
	overlays   *overlay.Cache
}

// StreamHandler is the SSE surface the server mounts; satisfied by
// stream.Handler.
type StreamHandler interface {
	HandleShadowFrames(w http.ResponseWriter, r *http.Request)
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, store *catalog.Store,
	catalogCfg CatalogConfig, solverCfg circumstances.Config, overlays *overlay.Cache,
	streamHandler StreamHandler) *Server {

	s := &Server{
		logger:     logger,
		store:      store,
		catalogCfg: catalogCfg,
		solverCfg:  solverCfg,
		overlays:   overlays,
	}

	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(func() bool { return store.Get() != nil }))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/eclipses", s.handleListEclipses)
	mux.HandleFunc("GET /api/v1/eclipses/{id}", s.handleGetEclipse)
	mux.HandleFunc("GET /api/v1/eclipses/{id}/circumstances", s.handleCircumstances)
	mux.HandleFunc("GET /api/v1/eclipses/{id}/overlays", s.handleOverlays)
	mux.HandleFunc("GET /api/v1/circumstances", s.handleBatchCircumstances)
	mux.HandleFunc("GET /api/v1/catalog/metadata", s.handleCatalogMetadata)
	mux.HandleFunc("POST /api/v1/catalog/fetch", s.handleCatalogFetch)
	mux.HandleFunc("GET /api/v1/cache/stats", s.handleCacheStats)
	if streamHandler != nil {
		mux.HandleFunc("GET /api/v1/stream/shadow", streamHandler.HandleShadowFrames)
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

// HTTPServer returns the underlying *http.Server for external control
// (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should
// not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
