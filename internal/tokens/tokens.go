// Package tokens implements the Session & Token Core (C3): minting and
// validating signed JWTs carrying role, scopes, and the temp-registration
// flag. Grounded on arkeep-io/arkeep's golang-jwt/jwt/v5 usage, chosen
// over the teacher's go-jose based internal/auth.SessionManager because
// the specification requires a configurable JWT_ALGORITHM.
package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/0x00K1/arcp/internal/arcperr"
)

const issuer = "arcp"

// Claims is the signed payload. TempRegistration tokens additionally
// carry AgentID/AgentType/UsedKey to bind a specific enrollment.
type Claims struct {
	Role             string   `json:"role"`
	Scopes           []string `json:"scopes,omitempty"`
	TempRegistration bool     `json:"temp_registration,omitempty"`
	AgentID          string   `json:"agent_id,omitempty"`
	AgentType        string   `json:"agent_type,omitempty"`
	UsedKey          string   `json:"used_key,omitempty"`

	jwt.RegisteredClaims
}

// Service mints and validates tokens with a configurable signing
// algorithm and expiry policy.
type Service struct {
	secret             []byte
	algorithm          jwt.SigningMethod
	expireMinutes      int
	tempTokenMaxMins   int
}

// New constructs a Service. algorithmName must name an HMAC algorithm
// golang-jwt supports (HS256/HS384/HS512); anything else falls back to
// HS256 so startup never fails over a typo'd value after config.Load
// already validated required keys.
func New(secret string, algorithmName string, expireMinutes, tempTokenMaxMins int) *Service {
	return &Service{
		secret:           []byte(secret),
		algorithm:        resolveAlgorithm(algorithmName),
		expireMinutes:    expireMinutes,
		tempTokenMaxMins: tempTokenMaxMins,
	}
}

// ExpireMinutes returns the service's default token lifetime in minutes.
func (s *Service) ExpireMinutes() int { return s.expireMinutes }

// TempTokenMaxMinutes returns the maximum lifetime temp-registration
// tokens are clamped to.
func (s *Service) TempTokenMaxMinutes() int { return s.tempTokenMaxMins }

func resolveAlgorithm(name string) jwt.SigningMethod {
	switch name {
	case "HS384":
		return jwt.SigningMethodHS384
	case "HS512":
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}

// MintOptions configures one token-minting call.
type MintOptions struct {
	Subject          string
	Role             string
	Scopes           []string
	TempRegistration bool
	AgentID          string
	AgentType        string
	UsedKey          string
	// ExpireMinutes overrides the service default when non-zero (a
	// negative value yields an already-expired token); temp registration
	// tokens are always clamped to at most tempTokenMaxMins.
	ExpireMinutes int
}

// Mint produces a signed token string.
func (s *Service) Mint(opts MintOptions) (string, error) {
	now := time.Now()
	minutes := s.expireMinutes
	if opts.ExpireMinutes != 0 {
		minutes = opts.ExpireMinutes
	}
	if opts.TempRegistration && (minutes <= 0 || minutes > s.tempTokenMaxMins) {
		minutes = s.tempTokenMaxMins
	}

	claims := Claims{
		Role:             opts.Role,
		Scopes:           opts.Scopes,
		TempRegistration: opts.TempRegistration,
		AgentID:          opts.AgentID,
		AgentType:        opts.AgentType,
		UsedKey:          opts.UsedKey,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   opts.Subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(minutes) * time.Minute)),
		},
	}

	tok := jwt.NewWithClaims(s.algorithm, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", arcperr.Wrap(arcperr.KindTokenValidationError, "failed to mint token", err)
	}
	return signed, nil
}

// Validate parses and verifies a token, returning its claims iff the
// signature is valid, it is not expired, and iss == arcp.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{s.algorithm.Alg()}), jwt.WithIssuer(issuer))
	if err != nil || !tok.Valid {
		return nil, arcperr.New(arcperr.KindTokenValidationError, "invalid or expired token")
	}
	return claims, nil
}
