// Package agentsapi implements the agent/admin-facing agent-management
// surface: registration, listing, heartbeat, metrics, unregistration, and
// authenticated semantic search. Grounded on the teacher's handler shape
// (thin HTTP layer delegating to a domain service) generalized from
// wisbric's roster handlers to internal/lifecycle and internal/search.
package agentsapi

import (
	"log/slog"

	"github.com/0x00K1/arcp/internal/lifecycle"
	"github.com/0x00K1/arcp/internal/search"
)

// Service bundles the dependencies agent-management handlers need.
type Service struct {
	manager *lifecycle.Manager
	search  *search.Engine
	logger  *slog.Logger

	allowedAgentTypes map[string]struct{}
}

// New constructs a Service.
func New(manager *lifecycle.Manager, engine *search.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{manager: manager, search: engine, logger: logger}
}

// SetAllowedAgentTypes restricts HandleRegister to the given agent_type
// allow-list (ALLOWED_AGENT_TYPES). An empty list leaves registration
// unrestricted, matching the env var's unset default.
func (s *Service) SetAllowedAgentTypes(types []string) {
	if len(types) == 0 {
		s.allowedAgentTypes = nil
		return
	}
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	s.allowedAgentTypes = set
}

func (s *Service) agentTypeAllowed(agentType string) bool {
	if len(s.allowedAgentTypes) == 0 {
		return true
	}
	_, ok := s.allowedAgentTypes[agentType]
	return ok
}
