// Package registry implements the Agent Registry Core (C6): in-memory
// authoritative state for all agents, with invariants across five
// coupled maps (records, embeddings, metrics, info hashes, key
// bindings), plus write-through to an optional durable backing store.
package registry

import "time"

// CommunicationMode is the transport an agent advertises.
type CommunicationMode string

const (
	ModeRemote CommunicationMode = "remote"
	ModeLocal  CommunicationMode = "local"
	ModeHybrid CommunicationMode = "hybrid"
)

// Registration is the input to Register: every descriptive field a new
// or re-registering agent supplies.
type Registration struct {
	AgentID           string             `json:"agent_id"`
	Name              string             `json:"name"`
	AgentType         string             `json:"agent_type"`
	Endpoint          string             `json:"endpoint"`
	ContextBrief      string             `json:"context_brief,omitempty"`
	Capabilities      []string           `json:"capabilities,omitempty"`
	Owner             string             `json:"owner,omitempty"`
	PublicKey         string             `json:"public_key,omitempty"`
	Version           string             `json:"version,omitempty"`
	CommunicationMode CommunicationMode  `json:"communication_mode,omitempty"`
	Features          []string           `json:"features,omitempty"`
	MaxTokens         int                `json:"max_tokens,omitempty"`
	LanguageSupport   []string           `json:"language_support,omitempty"`
	RateLimit         int                `json:"rate_limit,omitempty"`
	Requirements      map[string]any     `json:"requirements,omitempty"`
	PolicyTags        []string           `json:"policy_tags,omitempty"`
	Metadata          map[string]any     `json:"metadata,omitempty"`
}

// Status is the computed (never stored) liveness of an agent.
type Status string

const (
	StatusAlive Status = "alive"
	StatusDead  Status = "dead"
)

// Metrics is AgentMetrics from spec.md §3.
type Metrics struct {
	AgentID             string    `json:"agent_id"`
	SuccessRate         float64   `json:"success_rate"`
	AvgResponseTime     float64   `json:"avg_response_time"`
	TotalRequests       int64     `json:"total_requests"`
	ReputationScore     float64   `json:"reputation_score"`
	RequestsProcessed   int64     `json:"requests_processed"`
	AverageResponseTime float64   `json:"average_response_time"`
	ErrorRate           float64   `json:"error_rate"`
	LastActive          time.Time `json:"last_active"`
}

// Info is AgentInfo from spec.md §3: the full stored record plus a
// transient Similarity field populated only in search responses.
type Info struct {
	Registration
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen"`
	Metrics      *Metrics  `json:"metrics,omitempty"`
	Similarity   float64   `json:"-"`
}

// ComputedStatus derives alive/dead from LastSeen and the configured
// heartbeat timeout, per invariant 8 — status is never stored as ground
// truth.
func (i *Info) ComputedStatus(now time.Time, heartbeatTimeout time.Duration) Status {
	if now.Sub(i.LastSeen) <= heartbeatTimeout {
		return StatusAlive
	}
	return StatusDead
}

// WithStatus is the wire shape for authenticated agent responses: every
// field of Info plus the computed liveness status spec.md §3 lists on
// AgentInfo. Unlike publicapi.View it is not redacted — owner, metadata,
// requirements, and policy_tags are still visible to agent/admin callers.
type WithStatus struct {
	*Info
	Status Status `json:"status"`
}

// Annotate wraps info with its computed status against heartbeatTimeout.
func (i *Info) Annotate(now time.Time, heartbeatTimeout time.Duration) WithStatus {
	return WithStatus{Info: i, Status: i.ComputedStatus(now, heartbeatTimeout)}
}

// Filter narrows List results. Nil/empty fields are unconstrained.
type Filter struct {
	AgentType    string
	Status       Status
	Capabilities []string
}
