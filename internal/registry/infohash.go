package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// infoHashFields is the frozen wire contract resolving Open Question (b):
// the canonical tuple used to decide whether a re-registration is
// semantically unchanged. owner, metadata, policy_tags, requirements, and
// numeric/soft fields are deliberately excluded — they can change without
// altering the agent's discoverable identity.
type infoHashFields struct {
	Name              string   `json:"name"`
	AgentType         string   `json:"agent_type"`
	Endpoint          string   `json:"endpoint"`
	ContextBrief      string   `json:"context_brief"`
	Capabilities      []string `json:"capabilities"`
	CommunicationMode string   `json:"communication_mode"`
	Version           string   `json:"version"`
}

// ComputeInfoHash hashes the canonical descriptive-field tuple with
// SHA-256 over its JSON encoding (keys in infoHashFields' declaration
// order, capabilities sorted), so the same agent always yields the same
// hash regardless of field ordering in the incoming request.
func ComputeInfoHash(r Registration) string {
	caps := append([]string(nil), r.Capabilities...)
	sort.Strings(caps)

	fields := infoHashFields{
		Name:              r.Name,
		AgentType:         r.AgentType,
		Endpoint:          r.Endpoint,
		ContextBrief:      r.ContextBrief,
		Capabilities:      caps,
		CommunicationMode: string(r.CommunicationMode),
		Version:           r.Version,
	}

	// encoding/json sorts map keys already; there are no maps in
	// infoHashFields, so marshaling is already deterministic.
	raw, _ := json.Marshal(fields)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
