// Package authapi implements the authentication surface (C2/C3/C4):
// admin login, PIN elevation, agent temp-token issuance, and the
// token mint/validate/refresh endpoints. Grounded on the teacher's
// internal/auth handler shape (HandleLogin, middleware chain) adapted
// from OIDC/session-cookie auth to the specification's bearer-JWT model.
package authapi

import (
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/0x00K1/arcp/internal/arcperr"
	"github.com/0x00K1/arcp/internal/permissions"
	"github.com/0x00K1/arcp/internal/ratelimit"
	"github.com/0x00K1/arcp/internal/registry"
	"github.com/0x00K1/arcp/internal/session"
	"github.com/0x00K1/arcp/internal/tokens"
)

// Service bundles the dependencies auth handlers need.
type Service struct {
	tokens   *tokens.Service
	sessions *session.Manager
	limiter  *ratelimit.Limiter
	logger   *slog.Logger

	adminUsername     string
	adminPasswordHash string
	agentKeyHashes    map[string]struct{}
	sessionTimeout    time.Duration
}

// Config is the subset of internal/config.Config the auth surface needs.
type Config struct {
	AdminUsername    string
	AdminPassword    string
	AgentKeys        []string
	SessionTimeout   time.Duration
	JWTExpireMinutes int
}

// New constructs a Service. The admin password is bcrypt-hashed once at
// startup so comparisons always go through bcrypt.CompareHashAndPassword,
// the teacher's pattern, even though the source value is a plain
// environment variable rather than a stored hash.
func New(cfg Config, tok *tokens.Service, sessions *session.Manager, limiter *ratelimit.Limiter, logger *slog.Logger) (*Service, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, arcperr.Wrap(arcperr.KindConfigurationError, "failed to hash admin password", err)
	}
	keyHashes := make(map[string]struct{}, len(cfg.AgentKeys))
	for _, k := range cfg.AgentKeys {
		keyHashes[registry.HashAgentKey(k)] = struct{}{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tokens:            tok,
		sessions:          sessions,
		limiter:           limiter,
		logger:            logger,
		adminUsername:     cfg.AdminUsername,
		adminPasswordHash: string(hash),
		agentKeyHashes:    keyHashes,
		sessionTimeout:    cfg.SessionTimeout,
	}, nil
}

func (s *Service) checkAdminCredentials(username, password string) bool {
	if username != s.adminUsername {
		// Still run the bcrypt comparison against the real hash so a
		// wrong username takes the same time as a wrong password.
		_ = bcrypt.CompareHashAndPassword([]byte(s.adminPasswordHash), []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(s.adminPasswordHash), []byte(password)) == nil
}

func (s *Service) isKnownAgentKey(agentKeyHash string) bool {
	_, ok := s.agentKeyHashes[agentKeyHash]
	return ok
}

func principalFromClaims(c *tokens.Claims) permissions.Principal {
	return permissions.Principal{
		Role:             permissions.Role(c.Role),
		TempRegistration: c.TempRegistration,
	}
}
