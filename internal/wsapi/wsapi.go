// Package wsapi implements the public real-time surface (C9's WebSocket
// transport): a single /public/ws endpoint that streams registry
// lifecycle events as push frames and answers a small set of
// request-response frames (ping, get_discovery). Grounded on
// arkeep-io/arkeep/server/internal/websocket's Hub/Client split — that
// hub's single-writer event loop is internal/notify.Bus; this package is
// the per-connection Client half, generalized from the teacher's
// server-push-only protocol to also read and answer client frames.
package wsapi

import (
	"log/slog"
	"time"

	"github.com/0x00K1/arcp/internal/lifecycle"
	"github.com/0x00K1/arcp/internal/notify"
)

// Service bundles the dependencies the WebSocket handler needs.
type Service struct {
	bus     *notify.Bus
	manager *lifecycle.Manager
	logger  *slog.Logger
	timeout time.Duration
}

// New constructs a Service. timeout is WEBSOCKET_TIMEOUT from
// spec.md §6: how long a connection may sit idle (no pong) before the
// server closes it.
func New(bus *notify.Bus, manager *lifecycle.Manager, logger *slog.Logger, timeout time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Service{bus: bus, manager: manager, logger: logger, timeout: timeout}
}
