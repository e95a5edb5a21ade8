package authapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/0x00K1/arcp/internal/arcperr"
	"github.com/0x00K1/arcp/internal/fingerprint"
	"github.com/0x00K1/arcp/internal/httpserver"
	"github.com/0x00K1/arcp/internal/permissions"
	"github.com/0x00K1/arcp/internal/session"
	"github.com/0x00K1/arcp/internal/tokens"
)

type contextKey string

const claimsKey contextKey = "authapi_claims"

// ClaimsFromContext returns the authenticated principal's claims, if any.
func ClaimsFromContext(ctx context.Context) (*tokens.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*tokens.Claims)
	return c, ok
}

// Require returns middleware that rejects requests failing to present a
// valid bearer token granting the required permission level, per spec.md
// §4.3's role hierarchy (public ⊂ agent ⊂ admin ⊂ admin_pin).
func (s *Service) Require(level permissions.Level) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if level == permissions.LevelPublic {
				next.ServeHTTP(w, r)
				return
			}

			claims, rawToken, err := s.authenticate(r)
			if err != nil {
				httpserver.RespondError(w, err)
				return
			}

			if !permissions.Allows(principalFromClaims(claims), level) {
				httpserver.RespondError(w, arcperr.New(arcperr.KindInsufficientPermissions, "insufficient permissions"))
				return
			}

			// A valid admin-role token alone is not proof of an active
			// session: spec.md §4.3 requires admin endpoints to reject a
			// tokenless/session-less caller with AuthenticationFailed, not
			// InsufficientPermissions.
			if level == permissions.LevelAdmin || level == permissions.LevelAdminPin {
				key := s.sessionKey(r, claims, rawToken)
				if _, ok := s.sessions.Get(key); !ok {
					httpserver.RespondError(w, arcperr.New(arcperr.KindAuthenticationFailed, "no active session"))
					return
				}
			}

			if level == permissions.LevelAdminPin {
				key := s.sessionKey(r, claims, rawToken)
				if err := s.sessions.RequirePinVerified(key); err != nil {
					httpserver.RespondError(w, err)
					return
				}
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Service) authenticate(r *http.Request) (*tokens.Claims, string, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, "", arcperr.New(arcperr.KindAuthenticationFailed, "missing bearer token")
	}
	token := strings.TrimPrefix(header, prefix)
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, "", err
	}
	return claims, token, nil
}

// sessionKey derives the admin session key for this request, binding the
// session to both the requesting client's fingerprint and the presented
// token, per spec.md §4.3: H(user_id ∥ client_fingerprint ∥ token_ref).
func (s *Service) sessionKey(r *http.Request, claims *tokens.Claims, rawToken string) session.Key {
	fp := fingerprint.Derive(r)
	return session.DeriveKey(claims.Subject, string(fp), session.TokenRef(rawToken))
}
