package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/0x00K1/arcp/internal/arcperr"
	"github.com/0x00K1/arcp/internal/embeddings"
	"github.com/0x00K1/arcp/internal/notify"
	"github.com/0x00K1/arcp/internal/storage"
	"github.com/0x00K1/arcp/internal/telemetry"
)

const shardCount = 16

const (
	bucketAgents     = "agents"
	bucketEmbeddings = "embeddings"
	bucketMetrics    = "metrics"
	bucketInfoHashes = "info_hashes"
	bucketKeyBind    = "key_bindings"
)

// Outcome is the sum type Register returns, per spec.md §9: callers
// pattern-match on Outcome.Kind rather than parsing a message string.
type OutcomeKind string

const (
	OutcomeCreated      OutcomeKind = "created"
	OutcomeAlreadyAlive OutcomeKind = "already_alive"
	OutcomeReplacedDead OutcomeKind = "replaced_dead"
)

type Outcome struct {
	Kind OutcomeKind
	Info *Info
}

// Registry owns the five coupled in-memory maps plus a write-through
// optional durable backing store. Per-agent-ID mutations are serialized
// through a 16-way sharded mutex (fnv32(agent_id) % 16) so unrelated
// agents can register/heartbeat concurrently.
type Registry struct {
	heartbeatTimeout time.Duration
	provider         embeddings.Provider
	embedTimeout     time.Duration
	bus              *notify.Bus
	store            storage.Adapter

	shards [shardCount]sync.Mutex

	mu         sync.RWMutex
	agents     map[string]*Info
	embeds     map[string][]float64
	metrics    map[string]*Metrics
	infoHashes map[string]string
	keyBinds   map[string]string // sha256(key) -> agent_id
}

// New constructs a Registry.
func New(heartbeatTimeout time.Duration, provider embeddings.Provider, embedTimeout time.Duration, bus *notify.Bus, store storage.Adapter) *Registry {
	if provider == nil {
		provider = embeddings.NullProvider{}
	}
	return &Registry{
		heartbeatTimeout: heartbeatTimeout,
		provider:         provider,
		embedTimeout:     embedTimeout,
		bus:              bus,
		store:            store,
		agents:           make(map[string]*Info),
		embeds:           make(map[string][]float64),
		metrics:          make(map[string]*Metrics),
		infoHashes:       make(map[string]string),
		keyBinds:         make(map[string]string),
	}
}

func shardFor(agentID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(agentID))
	return int(h.Sum32() % shardCount)
}

func (r *Registry) lock(agentID string) func() {
	s := &r.shards[shardFor(agentID)]
	s.Lock()
	return s.Unlock
}

func hashKey(agentKey string) string {
	sum := sha256.Sum256([]byte(agentKey))
	return hex.EncodeToString(sum[:])
}

// HashAgentKey exposes the key-hashing function so HTTP handlers never
// need to import crypto/sha256 themselves.
func HashAgentKey(agentKey string) string { return hashKey(agentKey) }

func (r *Registry) publish(kind notify.EventKind, agentID string, data any) {
	if r.bus == nil {
		return
	}
	topic := notify.TopicAgent
	if kind == notify.EventMetrics {
		topic = notify.TopicMetrics
	}
	r.bus.Publish(notify.Event{Topic: topic, Kind: kind, AgentID: agentID, Data: data})
}

// Register implements the algorithm in spec.md §4.2. agentKeyHash is the
// sha256 hex digest of the pre-shared key, or "" if none was presented.
func (r *Registry) Register(ctx context.Context, reg Registration, agentKeyHash string) (Outcome, error) {
	unlock := r.lock(reg.AgentID)
	defer unlock()

	now := time.Now()
	newHash := ComputeInfoHash(reg)

	r.mu.Lock()
	existing, hasExisting := r.agents[reg.AgentID]
	existingBoundAgent, keyBound := "", false
	agentBoundElsewhere := false
	if agentKeyHash != "" {
		existingBoundAgent, keyBound = r.keyBinds[agentKeyHash]
		for k, a := range r.keyBinds {
			if a == reg.AgentID && k != agentKeyHash {
				agentBoundElsewhere = true
				break
			}
		}
	}
	r.mu.Unlock()

	// Invariant 4: a key already bound to a different agent_id is a conflict.
	if keyBound && existingBoundAgent != reg.AgentID {
		telemetry.RegistrationsTotal.WithLabelValues("key_in_use").Inc()
		return Outcome{}, arcperr.KeyInUse(existingBoundAgent)
	}
	// An agent_id already bound under a different key is a conflict too,
	// so a second key is never bound alongside the first.
	if agentBoundElsewhere {
		telemetry.RegistrationsTotal.WithLabelValues("key_in_use").Inc()
		return Outcome{}, arcperr.KeyInUse(reg.AgentID)
	}

	wasAlive := false
	if hasExisting {
		wasAlive = existing.ComputedStatus(now, r.heartbeatTimeout) == StatusAlive
		if wasAlive {
			r.mu.RLock()
			oldHash := r.infoHashes[reg.AgentID]
			r.mu.RUnlock()
			if oldHash == newHash {
				telemetry.RegistrationsTotal.WithLabelValues("already_alive").Inc()
				return Outcome{Kind: OutcomeAlreadyAlive, Info: existing}, nil
			}
		}
		// dead, or alive-but-changed: fall through to replace.
	}

	embedCtx, cancel := context.WithTimeout(ctx, r.embedTimeoutOrDefault())
	vec, embedErr := r.provider.Embed(embedCtx, embedText(reg))
	cancel()
	if embedErr != nil {
		vec = nil
	}

	info := &Info{
		Registration: reg,
		RegisteredAt: now,
		LastSeen:     now,
	}
	if hasExisting && wasAlive {
		// the agent's identity persisted across this re-registration;
		// keep its original registration timestamp.
		info.RegisteredAt = existing.RegisteredAt
	}

	r.mu.Lock()
	r.agents[reg.AgentID] = info
	r.infoHashes[reg.AgentID] = newHash
	if vec != nil {
		r.embeds[reg.AgentID] = vec
	} else {
		delete(r.embeds, reg.AgentID)
	}
	if agentKeyHash != "" {
		r.keyBinds[agentKeyHash] = reg.AgentID
	}
	r.mu.Unlock()

	r.writeThrough(ctx, reg.AgentID, info, vec, newHash, agentKeyHash)

	kind := OutcomeCreated
	if hasExisting {
		kind = OutcomeReplacedDead
	}
	telemetry.RegisteredAgentsGauge.Set(float64(r.Count()))
	telemetry.RegistrationsTotal.WithLabelValues(string(kind)).Inc()
	r.publish(notify.EventRegistered, reg.AgentID, info)

	return Outcome{Kind: kind, Info: info}, nil
}

func (r *Registry) embedTimeoutOrDefault() time.Duration {
	if r.embedTimeout <= 0 {
		return 3 * time.Second
	}
	return r.embedTimeout
}

func embedText(reg Registration) string {
	return reg.Name + " " + reg.ContextBrief
}

func (r *Registry) writeThrough(ctx context.Context, agentID string, info *Info, vec []float64, infoHash, agentKeyHash string) {
	if r.store == nil {
		return
	}
	if raw, err := json.Marshal(info); err == nil {
		_ = r.store.HSet(ctx, bucketAgents, agentID, raw)
	}
	if vec != nil {
		if raw, err := json.Marshal(vec); err == nil {
			_ = r.store.HSet(ctx, bucketEmbeddings, agentID, raw)
		}
	}
	_ = r.store.HSet(ctx, bucketInfoHashes, agentID, []byte(infoHash))
	if agentKeyHash != "" {
		_ = r.store.HSet(ctx, bucketKeyBind, agentKeyHash, []byte(agentID))
	}
}

// Heartbeat updates last_seen to now. It never resurrects a record that
// was unregistered.
func (r *Registry) Heartbeat(ctx context.Context, agentID string) (*Info, error) {
	unlock := r.lock(agentID)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.agents[agentID]
	if !ok {
		return nil, arcperr.NotFound("agent not registered")
	}
	info.LastSeen = time.Now()
	r.publish(notify.EventHeartbeat, agentID, info)
	return info, nil
}

// UpdateMetrics merges partial into the agent's stored metrics. Unknown
// keys are ignored by construction (partial is already typed); per
// invariant 9, total_requests must never decrease within a single call.
func (r *Registry) UpdateMetrics(ctx context.Context, agentID string, partial Metrics) (*Metrics, error) {
	unlock := r.lock(agentID)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[agentID]; !ok {
		return nil, arcperr.NotFound("agent not registered")
	}

	cur, ok := r.metrics[agentID]
	if !ok {
		cur = &Metrics{AgentID: agentID}
	}
	merged := mergeMetrics(*cur, partial)
	r.metrics[agentID] = &merged
	r.agents[agentID].Metrics = &merged

	if raw, err := json.Marshal(merged); r.store != nil && err == nil {
		_ = r.store.HSet(ctx, bucketMetrics, agentID, raw)
	}
	r.publish(notify.EventMetrics, agentID, &merged)
	return &merged, nil
}

func mergeMetrics(cur, partial Metrics) Metrics {
	out := cur
	if partial.SuccessRate != 0 {
		out.SuccessRate = partial.SuccessRate
	}
	if partial.AvgResponseTime != 0 {
		out.AvgResponseTime = partial.AvgResponseTime
	}
	if partial.TotalRequests >= cur.TotalRequests {
		out.TotalRequests = partial.TotalRequests
	}
	if partial.ReputationScore != 0 {
		out.ReputationScore = partial.ReputationScore
	}
	if partial.RequestsProcessed != 0 {
		out.RequestsProcessed = partial.RequestsProcessed
	}
	if partial.AverageResponseTime != 0 {
		out.AverageResponseTime = partial.AverageResponseTime
	}
	if partial.ErrorRate != 0 {
		out.ErrorRate = partial.ErrorRate
	}
	if !partial.LastActive.IsZero() {
		out.LastActive = partial.LastActive
	}
	out.AgentID = cur.AgentID
	return out
}

// Unregister removes the agent record, embedding, metrics, info hash, and
// any key binding pointing to it.
func (r *Registry) Unregister(ctx context.Context, agentID string) error {
	unlock := r.lock(agentID)
	defer unlock()

	r.mu.Lock()
	if _, ok := r.agents[agentID]; !ok {
		r.mu.Unlock()
		return arcperr.NotFound("agent not registered")
	}
	delete(r.agents, agentID)
	delete(r.embeds, agentID)
	delete(r.metrics, agentID)
	delete(r.infoHashes, agentID)
	for k, v := range r.keyBinds {
		if v == agentID {
			delete(r.keyBinds, k)
		}
	}
	r.mu.Unlock()

	if r.store != nil {
		_ = r.store.HDel(ctx, bucketAgents, agentID)
		_ = r.store.HDel(ctx, bucketEmbeddings, agentID)
		_ = r.store.HDel(ctx, bucketMetrics, agentID)
		_ = r.store.HDel(ctx, bucketInfoHashes, agentID)
	}
	telemetry.RegisteredAgentsGauge.Set(float64(r.Count()))
	r.publish(notify.EventUnregistered, agentID, nil)
	return nil
}

// Get returns the stored AgentInfo or AgentNotFoundError.
func (r *Registry) Get(agentID string) (*Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.agents[agentID]
	if !ok {
		return nil, arcperr.NotFound("agent not registered")
	}
	return info, nil
}

// GetByKey resolves an agent by the sha256 hash of its pre-shared key.
func (r *Registry) GetByKey(agentKeyHash string) (*Info, error) {
	r.mu.RLock()
	agentID, ok := r.keyBinds[agentKeyHash]
	if !ok {
		r.mu.RUnlock()
		return nil, arcperr.NotFound("no agent bound to key")
	}
	info, ok := r.agents[agentID]
	r.mu.RUnlock()
	if !ok {
		return nil, arcperr.NotFound("no agent bound to key")
	}
	return info, nil
}

// List returns a filtered, consistent snapshot of agents. Reads never
// observe a partially written record (§5): the snapshot is copied under
// a single read lock.
func (r *Registry) List(filter Filter) []*Info {
	now := time.Now()
	r.mu.RLock()
	snapshot := make([]*Info, 0, len(r.agents))
	for _, info := range r.agents {
		snapshot = append(snapshot, info)
	}
	r.mu.RUnlock()

	out := make([]*Info, 0, len(snapshot))
	for _, info := range snapshot {
		if filter.AgentType != "" && info.AgentType != filter.AgentType {
			continue
		}
		if filter.Status != "" && info.ComputedStatus(now, r.heartbeatTimeout) != filter.Status {
			continue
		}
		if len(filter.Capabilities) > 0 && !hasAllCapabilities(info.Capabilities, filter.Capabilities) {
			continue
		}
		out = append(out, info)
	}
	return out
}

func hasAllCapabilities(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, c := range have {
		set[c] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

// Snapshot returns (agentID -> embedding) and (agentID -> *Info) for the
// currently alive agents, for use by the search engine. The maps are
// copies so the caller can read them without holding the registry lock.
func (r *Registry) Snapshot() (agents map[string]*Info, embeds map[string][]float64) {
	now := time.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	agents = make(map[string]*Info, len(r.agents))
	embeds = make(map[string][]float64, len(r.embeds))
	for id, info := range r.agents {
		if info.ComputedStatus(now, r.heartbeatTimeout) != StatusAlive {
			continue
		}
		agents[id] = info
		if v, ok := r.embeds[id]; ok {
			embeds[id] = v
		}
	}
	return agents, embeds
}

// Count returns the number of currently stored (not necessarily alive)
// agent records.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// AgentTypes returns the distinct set of registered agent_type values,
// sorted ascending, supplementing GET /public/agent_types.
func (r *Registry) AgentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := make(map[string]struct{})
	for _, info := range r.agents {
		set[info.AgentType] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
