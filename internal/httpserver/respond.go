package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/0x00K1/arcp/internal/problem"
)

var respondLogger = slog.Default()

// Respond writes data as a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		respondLogger.Error("failed to encode response", "error", err)
	}
}

// RespondError writes err as an RFC 7807 Problem Details document.
func RespondError(w http.ResponseWriter, err error) {
	problem.Write(w, err)
}

// DecodeJSON decodes a JSON request body into dst, capping the body size
// so a malicious or misbehaving client cannot exhaust memory.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
