// Package problem encodes errors as RFC 7807 Problem Details documents,
// mapping internal/arcperr.Kind values to stable type URIs and HTTP
// statuses per the specification's error taxonomy.
package problem

import (
	"encoding/json"
	"net/http"

	"github.com/0x00K1/arcp/internal/arcperr"
)

// Details is the application/problem+json response body.
type Details struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

const typeBase = "https://arcp.dev/errors/"

var kindMeta = map[arcperr.Kind]struct {
	status int
	title  string
}{
	arcperr.KindAuthenticationFailed:    {http.StatusUnauthorized, "authentication failed"},
	arcperr.KindInsufficientPermissions: {http.StatusForbidden, "insufficient permissions"},
	arcperr.KindAgentNotFound:           {http.StatusNotFound, "agent not found"},
	arcperr.KindAgentRegistrationError:  {http.StatusBadRequest, "agent registration error"},
	arcperr.KindAgentKeyInUse:           {http.StatusConflict, "agent key in use"},
	arcperr.KindTokenValidationError:    {http.StatusUnauthorized, "token validation error"},
	arcperr.KindValidationError:         {http.StatusUnprocessableEntity, "validation error"},
	arcperr.KindRateLimitExceeded:       {http.StatusTooManyRequests, "rate limit exceeded"},
	arcperr.KindPinRequired:             {http.StatusBadRequest, "pin required"},
	arcperr.KindConfigurationError:      {http.StatusInternalServerError, "configuration error"},
	arcperr.KindInternalError:           {http.StatusInternalServerError, "internal error"},
	arcperr.KindGatewayError:            {http.StatusBadGateway, "gateway error"},
}

// FromError converts any error into a Details document. Errors that are
// not *arcperr.Error are mapped to a generic internal-error so internal
// detail never leaks to clients.
func FromError(err error) Details {
	ae, ok := err.(*arcperr.Error)
	if !ok {
		return Details{
			Type:   typeBase + string(arcperr.KindInternalError),
			Title:  kindMeta[arcperr.KindInternalError].title,
			Status: http.StatusInternalServerError,
		}
	}
	meta, ok := kindMeta[ae.Kind]
	if !ok {
		meta = kindMeta[arcperr.KindInternalError]
	}
	d := Details{
		Type:   typeBase + string(ae.Kind),
		Title:  meta.title,
		Status: meta.status,
	}
	if ae.Kind == arcperr.KindValidationError || ae.Kind == arcperr.KindAgentRegistrationError || ae.Kind == arcperr.KindGatewayError {
		d.Detail = ae.Message
	}
	if ae.Kind == arcperr.KindRateLimitExceeded {
		d.RetryAfter = ae.RetryAfter
	}
	return d
}

// Write serializes the Problem Details document with the RFC 7807
// content type and matching HTTP status code.
func Write(w http.ResponseWriter, err error) {
	d := FromError(err)
	w.Header().Set("Content-Type", "application/problem+json")
	if d.RetryAfter > 0 {
		w.Header().Set("Retry-After", jsonInt(d.RetryAfter))
	}
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d)
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
