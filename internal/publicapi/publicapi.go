// Package publicapi implements the unauthenticated /public surface:
// discovery, search, agent lookup, connection forwarding, and service
// info/stats, all reachable without a token per spec.md §6. Grounded on
// the teacher's handler shape (a thin Service wrapping domain
// dependencies), generalized to the read-only, redacted view external
// developers are given.
package publicapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/0x00K1/arcp/internal/lifecycle"
	"github.com/0x00K1/arcp/internal/search"
)

// Service bundles the dependencies the public handlers need.
type Service struct {
	manager   *lifecycle.Manager
	search    *search.Engine
	logger    *slog.Logger
	startedAt time.Time

	httpClient *http.Client
}

// New constructs a Service. connectTimeout bounds how long HandleConnect
// waits on the target agent's endpoint before reporting a gateway error.
func New(manager *lifecycle.Manager, engine *search.Engine, logger *slog.Logger, connectTimeout time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	return &Service{
		manager:    manager,
		search:     engine,
		logger:     logger,
		startedAt:  time.Now(),
		httpClient: &http.Client{Timeout: connectTimeout},
	}
}
