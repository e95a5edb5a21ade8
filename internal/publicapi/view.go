package publicapi

import (
	"time"

	"github.com/0x00K1/arcp/internal/registry"
)

// View is the redacted AgentInfo shape returned to unauthenticated
// callers: spec.md §4.4 requires public search/discover responses to
// strip metadata and key material, so owner, public_key, requirements,
// policy_tags, metadata, rate_limit, and internal metrics never leave
// this package.
type View struct {
	AgentID           string                    `json:"agent_id"`
	Name              string                    `json:"name"`
	AgentType         string                    `json:"agent_type"`
	Endpoint          string                    `json:"endpoint"`
	ContextBrief      string                    `json:"context_brief,omitempty"`
	Capabilities      []string                  `json:"capabilities,omitempty"`
	Version           string                    `json:"version,omitempty"`
	CommunicationMode registry.CommunicationMode `json:"communication_mode,omitempty"`
	Features          []string                  `json:"features,omitempty"`
	MaxTokens         int                       `json:"max_tokens,omitempty"`
	LanguageSupport   []string                  `json:"language_support,omitempty"`
	RegisteredAt      time.Time                 `json:"registered_at"`
	LastSeen          time.Time                 `json:"last_seen"`
	Status            registry.Status           `json:"status"`
	Similarity        float64                   `json:"similarity,omitempty"`
}

// Redact builds the public View of info, computing its liveness status
// against heartbeatTimeout rather than trusting a stored value. Exported
// so internal/wsapi can push the same redacted shape over its
// agents_update/discovery_data frames.
func Redact(info *registry.Info, now time.Time, heartbeatTimeout time.Duration) View {
	return View{
		AgentID:           info.AgentID,
		Name:              info.Name,
		AgentType:         info.AgentType,
		Endpoint:          info.Endpoint,
		ContextBrief:      info.ContextBrief,
		Capabilities:      info.Capabilities,
		Version:           info.Version,
		CommunicationMode: info.CommunicationMode,
		Features:          info.Features,
		MaxTokens:         info.MaxTokens,
		LanguageSupport:   info.LanguageSupport,
		RegisteredAt:      info.RegisteredAt,
		LastSeen:          info.LastSeen,
		Status:            info.ComputedStatus(now, heartbeatTimeout),
		Similarity:        info.Similarity,
	}
}

// RedactAll applies Redact to every element of infos against a single
// "now" so a batch response reports a consistent liveness snapshot.
func RedactAll(infos []*registry.Info, heartbeatTimeout time.Duration) []View {
	now := time.Now()
	views := make([]View, 0, len(infos))
	for _, info := range infos {
		views = append(views, Redact(info, now, heartbeatTimeout))
	}
	return views
}
