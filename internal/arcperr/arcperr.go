// Package arcperr defines the error taxonomy shared by every ARCP component.
// Each sentinel kind maps 1:1 to a Problem Details type URI and HTTP status
// in internal/problem; components construct *Error values instead of ad-hoc
// strings so callers can branch with errors.Is/errors.As.
package arcperr

import "fmt"

// Kind identifies one of the error categories named in the specification's
// error taxonomy (authentication, not-found, conflict, rate-limit, ...).
type Kind string

const (
	KindAuthenticationFailed    Kind = "authentication-failed"
	KindInsufficientPermissions Kind = "insufficient-permissions"
	KindAgentNotFound           Kind = "agent-not-found"
	KindAgentRegistrationError  Kind = "agent-registration-error"
	KindAgentKeyInUse           Kind = "agent-key-in-use"
	KindTokenValidationError    Kind = "token-validation-error"
	KindValidationError         Kind = "validation-error"
	KindRateLimitExceeded       Kind = "rate-limit-exceeded"
	KindPinRequired             Kind = "pin-required"
	KindConfigurationError      Kind = "configuration-error"
	KindInternalError           Kind = "internal-error"
	KindGatewayError            Kind = "gateway-error"
)

// Error is the common error type returned across package boundaries. It
// never embeds caller-controlled strings without having passed through the
// sanitizer first (see internal/sanitize).
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int // seconds; only meaningful for KindRateLimitExceeded
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an *Error that wraps an underlying cause for logging while
// keeping the client-facing message generic.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NotFound builds a KindAgentNotFound error without leaking what was searched for.
func NotFound(message string) *Error {
	return New(KindAgentNotFound, message)
}

// RateLimited builds a KindRateLimitExceeded error carrying a retry-after hint.
func RateLimited(retryAfterSeconds int) *Error {
	return &Error{
		Kind:       KindRateLimitExceeded,
		Message:    "too many attempts",
		RetryAfter: retryAfterSeconds,
	}
}

// KeyInUse builds a KindAgentKeyInUse error. detail is never the raw key.
func KeyInUse(existingAgentID string) *Error {
	return &Error{
		Kind:    KindAgentKeyInUse,
		Message: "agent key is already bound to a live agent",
		Detail:  existingAgentID,
	}
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
