package publicapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/0x00K1/arcp/internal/arcperr"
	"github.com/0x00K1/arcp/internal/httpserver"
	"github.com/0x00K1/arcp/internal/registry"
	"github.com/0x00K1/arcp/internal/sanitize"
	"github.com/0x00K1/arcp/internal/search"
)

// HandleDiscover returns a paginated, redacted list of alive agents,
// optionally narrowed by agent_type and capabilities.
func (s *Service) HandleDiscover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := registry.Filter{
		AgentType: q.Get("agent_type"),
		Status:    registry.StatusAlive,
	}
	if caps := q.Get("capabilities"); caps != "" {
		filter.Capabilities = strings.Split(caps, ",")
	}

	agents := s.manager.List(filter)
	page := httpserver.Slice(agents, httpserver.ParsePagination(r))
	httpserver.Respond(w, http.StatusOK, RedactAll(page, s.manager.HeartbeatTimeout()))
}

type publicSearchRequest struct {
	Query         string   `json:"query" validate:"required"`
	TopK          int      `json:"top_k"`
	MinSimilarity float64  `json:"min_similarity"`
	AgentType     string   `json:"agent_type"`
	Capabilities  []string `json:"capabilities"`
}

// HandleSearch runs a redacted semantic search for unauthenticated callers.
func (s *Service) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var req publicSearchRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	results, err := s.search.Search(r.Context(), search.Query{
		Text:          sanitize.String(req.Query),
		TopK:          req.TopK,
		MinSimilarity: req.MinSimilarity,
		AgentType:     req.AgentType,
		Capabilities:  req.Capabilities,
	})
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	heartbeatTimeout := s.manager.HeartbeatTimeout()
	now := time.Now()
	views := make([]View, 0, len(results))
	for _, res := range results {
		res.Info.Similarity = res.Similarity
		views = append(views, Redact(res.Info, now, heartbeatTimeout))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"results": views})
}

// HandleGetAgent returns the redacted public view of one agent.
func (s *Service) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, err := s.manager.Get(id)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, Redact(info, time.Now(), s.manager.HeartbeatTimeout()))
}

type connectRequest struct {
	UserID         string `json:"user_id" validate:"required"`
	UserEndpoint   string `json:"user_endpoint" validate:"required,url"`
	DisplayName    string `json:"display_name,omitempty"`
	AdditionalInfo any    `json:"additional_info,omitempty"`
}

// HandleConnect forwards a connection request to the target agent's
// registered endpoint and relays its response, or a gateway error if
// the agent cannot be reached.
func (s *Service) HandleConnect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req connectRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	info, err := s.manager.Get(id)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"user_id":         sanitize.String(req.UserID),
		"user_endpoint":   sanitize.String(req.UserEndpoint),
		"display_name":    sanitize.String(req.DisplayName),
		"additional_info": sanitize.Value(req.AdditionalInfo),
	})
	if err != nil {
		httpserver.RespondError(w, arcperr.Wrap(arcperr.KindInternalError, "failed to encode connection request", err))
		return
	}

	upstreamReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, info.Endpoint, bytes.NewReader(payload))
	if err != nil {
		httpserver.RespondError(w, arcperr.Wrap(arcperr.KindGatewayError, "could not build request to agent endpoint", err))
		return
	}
	upstreamReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(upstreamReq)
	if err != nil {
		httpserver.RespondError(w, arcperr.Wrap(arcperr.KindGatewayError, "agent endpoint unreachable", err))
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		httpserver.RespondError(w, arcperr.Wrap(arcperr.KindGatewayError, "failed to read agent response", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}

type infoResponse struct {
	Service      string   `json:"service"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}

// HandleInfo reports static service metadata.
func (s *Service) HandleInfo(w http.ResponseWriter, r *http.Request) {
	httpserver.Respond(w, http.StatusOK, infoResponse{
		Service: "arcp",
		Version: "1.0.0",
		Capabilities: []string{
			"agent_registration",
			"agent_discovery",
			"semantic_search",
			"agent_connect",
		},
	})
}

type statsResponse struct {
	TotalAgents int `json:"total_agents"`
	AliveAgents int `json:"alive_agents"`
	DeadAgents  int `json:"dead_agents"`
}

// HandleStats reports aggregate registry liveness counts.
func (s *Service) HandleStats(w http.ResponseWriter, r *http.Request) {
	all := s.manager.List(registry.Filter{})
	now := time.Now()
	heartbeatTimeout := s.manager.HeartbeatTimeout()

	stats := statsResponse{TotalAgents: len(all)}
	for _, info := range all {
		if info.ComputedStatus(now, heartbeatTimeout) == registry.StatusAlive {
			stats.AliveAgents++
		} else {
			stats.DeadAgents++
		}
	}
	httpserver.Respond(w, http.StatusOK, stats)
}

// HandleAgentTypes returns the distinct registered agent_type values.
func (s *Service) HandleAgentTypes(w http.ResponseWriter, r *http.Request) {
	types := s.manager.AgentTypes()
	sort.Strings(types)
	httpserver.Respond(w, http.StatusOK, map[string]any{"agent_types": types})
}
