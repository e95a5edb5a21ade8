package authapi

import (
	"net/http"
	"strings"

	"github.com/0x00K1/arcp/internal/arcperr"
	"github.com/0x00K1/arcp/internal/fingerprint"
	"github.com/0x00K1/arcp/internal/httpserver"
	"github.com/0x00K1/arcp/internal/permissions"
	"github.com/0x00K1/arcp/internal/ratelimit"
	"github.com/0x00K1/arcp/internal/registry"
	"github.com/0x00K1/arcp/internal/sanitize"
	"github.com/0x00K1/arcp/internal/session"
	"github.com/0x00K1/arcp/internal/tokens"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
}

// HandleLogin authenticates an admin operator, rate-limited per
// spec.md §4.3's login bucket, and mints an admin-role token plus a
// fingerprint-bound session for later PIN elevation.
func (s *Service) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpserver.DecodeJSON(w, r, &req); err != nil {
		httpserver.RespondError(w, arcperr.New(arcperr.KindValidationError, "malformed request body"))
		return
	}

	identifiers := fingerprint.Identifiers(fingerprint.ClientIdentifier(r))
	if result := s.limiter.Check(r.Context(), identifiers, ratelimit.BucketLogin); !result.Allowed {
		httpserver.RespondError(w, ratelimit.ErrTooManyAttempts(result.RetryAfter))
		return
	}

	// req.Password is compared against a bcrypt hash, never echoed back to
	// the caller, so it must not go through the output sanitizer: sanitize.
	// String would corrupt a legitimate password containing "&", "<", ">",
	// quotes, or an "on...=" substring, locking the admin out.
	if !s.checkAdminCredentials(req.Username, req.Password) {
		s.limiter.RecordFailure(r.Context(), identifiers, ratelimit.BucketLogin)
		httpserver.RespondError(w, arcperr.New(arcperr.KindAuthenticationFailed, "invalid username or password"))
		return
	}
	s.limiter.RecordSuccess(r.Context(), identifiers, ratelimit.BucketLogin)

	token, err := s.tokens.Mint(tokens.MintOptions{
		Subject: req.Username,
		Role:    string(permissions.RoleAdmin),
	})
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	fp := fingerprint.Derive(r)
	s.sessions.Create(req.Username, string(fp), session.TokenRef(token))

	httpserver.Respond(w, http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: s.tokens.ExpireMinutes() * 60,
	})
}

type tempTokenRequest struct {
	AgentID   string `json:"agent_id"`
	AgentType string `json:"agent_type"`
	AgentKey  string `json:"agent_key"`
}

type tempTokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int     `json:"expires_in"`
}

// HandleRequestTempToken implements the first phase of two-phase agent
// enrollment: a caller presenting a valid pre-shared agent key receives a
// short-lived, registration-scoped token.
func (s *Service) HandleRequestTempToken(w http.ResponseWriter, r *http.Request) {
	var req tempTokenRequest
	if err := httpserver.DecodeJSON(w, r, &req); err != nil {
		httpserver.RespondError(w, arcperr.New(arcperr.KindValidationError, "malformed request body"))
		return
	}

	identifiers := fingerprint.Identifiers(fingerprint.ClientIdentifier(r))
	if result := s.limiter.Check(r.Context(), identifiers, ratelimit.BucketGlobal); !result.Allowed {
		httpserver.RespondError(w, ratelimit.ErrTooManyAttempts(result.RetryAfter))
		return
	}

	keyHash := registry.HashAgentKey(strings.TrimSpace(req.AgentKey))
	if !s.isKnownAgentKey(keyHash) {
		s.limiter.RecordFailure(r.Context(), identifiers, ratelimit.BucketGlobal)
		httpserver.RespondError(w, arcperr.New(arcperr.KindAuthenticationFailed, "unrecognized agent key"))
		return
	}
	s.limiter.RecordSuccess(r.Context(), identifiers, ratelimit.BucketGlobal)

	token, err := s.tokens.Mint(tokens.MintOptions{
		Subject:          keyHash,
		Role:             string(permissions.RoleAgent),
		TempRegistration: true,
		AgentID:          sanitize.String(req.AgentID),
		AgentType:        sanitize.String(req.AgentType),
		UsedKey:          keyHash,
	})
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, tempTokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: s.tokens.TempTokenMaxMinutes() * 60,
	})
}

// HandleLogout destroys the caller's admin session.
func (s *Service) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, arcperr.New(arcperr.KindAuthenticationFailed, "no active session"))
		return
	}
	_, rawToken, err := s.authenticate(r)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	key := s.sessionKey(r, claims, rawToken)
	s.sessions.Destroy(key)
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

type pinRequest struct {
	Pin string `json:"pin"`
}

// HandleSetPin assigns a new PIN to the caller's admin session.
func (s *Service) HandleSetPin(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, arcperr.New(arcperr.KindAuthenticationFailed, "no active session"))
		return
	}
	var req pinRequest
	if err := httpserver.DecodeJSON(w, r, &req); err != nil || len(req.Pin) < 4 {
		httpserver.RespondError(w, arcperr.New(arcperr.KindValidationError, "pin must be at least 4 characters"))
		return
	}
	_, rawToken, err := s.authenticate(r)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	key := s.sessionKey(r, claims, rawToken)
	if err := s.sessions.SetPin(key, req.Pin); err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "pin_set"})
}

// HandleVerifyPin elevates the caller's session to admin_pin for
// subsequent requests, rate-limited against brute-force PIN guessing.
func (s *Service) HandleVerifyPin(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, arcperr.New(arcperr.KindAuthenticationFailed, "no active session"))
		return
	}
	var req pinRequest
	if err := httpserver.DecodeJSON(w, r, &req); err != nil {
		httpserver.RespondError(w, arcperr.New(arcperr.KindValidationError, "malformed request body"))
		return
	}

	identifiers := fingerprint.Identifiers(fingerprint.ClientIdentifier(r))
	if result := s.limiter.Check(r.Context(), identifiers, ratelimit.BucketPin); !result.Allowed {
		httpserver.RespondError(w, ratelimit.ErrTooManyAttempts(result.RetryAfter))
		return
	}

	_, rawToken, err := s.authenticate(r)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	key := s.sessionKey(r, claims, rawToken)

	if err := s.sessions.VerifyPin(key, req.Pin); err != nil {
		s.limiter.RecordFailure(r.Context(), identifiers, ratelimit.BucketPin)
		httpserver.RespondError(w, err)
		return
	}
	s.limiter.RecordSuccess(r.Context(), identifiers, ratelimit.BucketPin)
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "pin_verified"})
}

type mintRequest struct {
	Subject       string   `json:"subject"`
	Role          string   `json:"role"`
	Scopes        []string `json:"scopes"`
	ExpireMinutes int      `json:"expire_minutes"`
}

// HandleMintToken lets an admin_pin-elevated caller mint an arbitrary
// token, e.g. for scripted integrations.
func (s *Service) HandleMintToken(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := httpserver.DecodeJSON(w, r, &req); err != nil || req.Subject == "" || req.Role == "" {
		httpserver.RespondError(w, arcperr.New(arcperr.KindValidationError, "subject and role are required"))
		return
	}
	token, err := s.tokens.Mint(tokens.MintOptions{
		Subject:       sanitize.String(req.Subject),
		Role:          req.Role,
		Scopes:        req.Scopes,
		ExpireMinutes: req.ExpireMinutes,
	})
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, loginResponse{Token: token, TokenType: "Bearer", ExpiresIn: s.tokens.ExpireMinutes() * 60})
}

type validateRequest struct {
	Token string `json:"token"`
}

// HandleValidateToken reports whether a token is currently valid and
// returns its claims; it never requires authentication itself, mirroring
// spec.md's public introspection endpoint.
func (s *Service) HandleValidateToken(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := httpserver.DecodeJSON(w, r, &req); err != nil || req.Token == "" {
		httpserver.RespondError(w, arcperr.New(arcperr.KindValidationError, "token is required"))
		return
	}
	claims, err := s.tokens.Validate(req.Token)
	if err != nil {
		httpserver.Respond(w, http.StatusOK, map[string]any{"valid": false})
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"valid":             true,
		"subject":           claims.Subject,
		"role":              claims.Role,
		"temp_registration": claims.TempRegistration,
		"expires_at":        claims.ExpiresAt,
	})
}

// HandleRefreshToken validates the bearer token and mints a fresh one
// carrying the same claims, used to extend a session without
// re-authenticating.
func (s *Service) HandleRefreshToken(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, arcperr.New(arcperr.KindAuthenticationFailed, "missing or invalid token"))
		return
	}
	token, err := s.tokens.Mint(tokens.MintOptions{
		Subject:          claims.Subject,
		Role:             claims.Role,
		Scopes:           claims.Scopes,
		TempRegistration: claims.TempRegistration,
		AgentID:          claims.AgentID,
		AgentType:        claims.AgentType,
		UsedKey:          claims.UsedKey,
	})
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, loginResponse{Token: token, TokenType: "Bearer", ExpiresIn: s.tokens.ExpireMinutes() * 60})
}
