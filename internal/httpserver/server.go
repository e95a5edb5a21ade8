package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/0x00K1/arcp/internal/embeddings"
	"github.com/0x00K1/arcp/internal/storage"
)

// Server bundles the chi router with the dependencies its health
// endpoints need to report on, adapted from the teacher's
// httpserver.Server (DB/Redis ping latencies generalized to the
// storage adapter and embedding provider).
type Server struct {
	Router *chi.Mux
	// API is the /api/v1-equivalent sub-router external packages
	// (authapi, agentsapi, publicapi, wsapi) mount their routes onto.
	API chi.Router

	logger    *slog.Logger
	store     storage.Adapter
	embedder  embeddings.Provider
	startedAt time.Time
}

// Options configures NewServer's CORS policy; a nil/zero value allows
// all origins, matching a permissive default for the public discovery
// surface.
type Options struct {
	AllowedOrigins []string
}

// NewServer wires the global middleware stack and mounts health
// endpoints, returning a Server whose API sub-router is ready for
// route registration by the caller.
func NewServer(logger *slog.Logger, store storage.Adapter, embedder embeddings.Provider, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Metrics)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{
		Router:    r,
		logger:    logger,
		store:     store,
		embedder:  embedder,
		startedAt: time.Now(),
	}

	r.Get("/health", s.handleHealth)

	// /health/detailed is admin-gated per spec.md, but that requires the
	// authapi.Service this package cannot import without a dependency
	// cycle; the caller mounts it via MountHealthDetailed once auth is
	// wired up.
	s.API = r

	return s
}

// MountHealthDetailed registers GET /health/detailed behind the supplied
// middleware chain, e.g. an admin-level authapi.Service.Require(...).
func (s *Server) MountHealthDetailed(mw ...func(http.Handler) http.Handler) {
	h := http.Handler(http.HandlerFunc(s.handleHealthDetailed))
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	s.Router.Method(http.MethodGet, "/health/detailed", h)
}

// version is the service's reported release; it is not a build-time
// ldflags value in this tree, matching the other static version strings
// already returned by internal/publicapi.
const version = "1.0.0"

type healthResponse struct {
	Status     string  `json:"status"`
	Version    string  `json:"version"`
	UptimeSec  float64 `json:"uptime"`
	Storage    string  `json:"storage"`
	AIServices string  `json:"ai_services"`
}

// handleHealth always returns 200: a core liveness probe never fails,
// it only reports "degraded" when a dependency is unreachable, per
// spec.md §6.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	configured := s.store != nil && s.store.Configured()
	storageHealthy := !configured || s.store.BackendAvailable()
	embeddingReady := s.embedder != nil && embeddingProviderName(s.embedder) != "none"

	status := "healthy"
	if !storageHealthy {
		status = "degraded"
	}

	aiStatus := "unavailable"
	if embeddingReady {
		aiStatus = "available"
	}

	Respond(w, http.StatusOK, healthResponse{
		Status:     status,
		Version:    version,
		UptimeSec:  time.Since(s.startedAt).Seconds(),
		Storage:    storageBackendName(configured),
		AIServices: aiStatus,
	})
}

type healthDetailedResponse struct {
	Status            string  `json:"status"`
	Version           string  `json:"version"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
	StorageBackend    string  `json:"storage_backend"`
	StorageAvailable  bool    `json:"storage_available"`
	EmbeddingProvider string  `json:"embedding_provider"`
	EmbeddingReady    bool    `json:"embedding_ready"`
}

// handleHealthDetailed reports dependency reachability the way the
// teacher's handleReadyz does for its database/Redis pings, generalized
// to the storage adapter and embedding provider this domain uses.
func (s *Server) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	_ = ctx

	storageAvailable := s.store != nil && s.store.BackendAvailable()
	embeddingReady := s.embedder != nil && embeddingProviderName(s.embedder) != "none"

	resp := healthDetailedResponse{
		Status:            "ok",
		Version:           version,
		UptimeSeconds:     time.Since(s.startedAt).Seconds(),
		StorageBackend:    storageBackendName(storageAvailable),
		StorageAvailable:  storageAvailable,
		EmbeddingProvider: embeddingProviderName(s.embedder),
		EmbeddingReady:    embeddingReady,
	}
	Respond(w, http.StatusOK, resp)
}

func storageBackendName(available bool) string {
	if available {
		return "redis"
	}
	return "in-memory"
}

func embeddingProviderName(p embeddings.Provider) string {
	if p == nil {
		return "none"
	}
	switch p.(type) {
	case embeddings.NullProvider:
		return "none"
	case *embeddings.AzureProvider:
		return "azure-openai"
	default:
		return "custom"
	}
}
