package agentsapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/0x00K1/arcp/internal/arcperr"
	"github.com/0x00K1/arcp/internal/authapi"
	"github.com/0x00K1/arcp/internal/httpserver"
	"github.com/0x00K1/arcp/internal/registry"
	"github.com/0x00K1/arcp/internal/sanitize"
	"github.com/0x00K1/arcp/internal/search"
)

type registerRequest struct {
	AgentID           string            `json:"agent_id" validate:"required"`
	Name              string            `json:"name" validate:"required"`
	AgentType         string            `json:"agent_type" validate:"required"`
	Endpoint          string            `json:"endpoint" validate:"required,url"`
	ContextBrief      string            `json:"context_brief"`
	Capabilities      []string          `json:"capabilities"`
	Owner             string            `json:"owner"`
	PublicKey         string            `json:"public_key"`
	Version           string            `json:"version"`
	CommunicationMode string            `json:"communication_mode" validate:"omitempty,oneof=remote local hybrid"`
	Features          []string          `json:"features"`
	MaxTokens         int               `json:"max_tokens"`
	LanguageSupport   []string          `json:"language_support"`
	RateLimit         int               `json:"rate_limit"`
	Requirements      map[string]any    `json:"requirements"`
	PolicyTags        []string          `json:"policy_tags"`
	Metadata          map[string]any    `json:"metadata"`
}

func (req registerRequest) toRegistration() registry.Registration {
	mode := registry.ModeRemote
	if req.CommunicationMode != "" {
		mode = registry.CommunicationMode(req.CommunicationMode)
	}
	return registry.Registration{
		AgentID:           sanitize.String(req.AgentID),
		Name:              sanitize.String(req.Name),
		AgentType:         sanitize.String(req.AgentType),
		Endpoint:          sanitize.String(req.Endpoint),
		ContextBrief:      sanitize.String(req.ContextBrief),
		Capabilities:      req.Capabilities,
		Owner:             sanitize.String(req.Owner),
		PublicKey:         req.PublicKey,
		Version:           sanitize.String(req.Version),
		CommunicationMode: mode,
		Features:          req.Features,
		MaxTokens:         req.MaxTokens,
		LanguageSupport:   req.LanguageSupport,
		RateLimit:         req.RateLimit,
		Requirements:      sanitize.Value(req.Requirements).(map[string]any),
		PolicyTags:        req.PolicyTags,
		Metadata:          sanitize.Value(req.Metadata).(map[string]any),
	}
}

type registerResponse struct {
	Outcome string              `json:"outcome"`
	Agent   registry.WithStatus `json:"agent"`
	Token   string              `json:"token,omitempty"`
}

// HandleRegister implements the second phase of two-phase enrollment
// (and direct admin registration). A caller holding a temp-registration
// token must present a registration whose agent_id/agent_type match the
// token's bound values, per spec.md scenario S5.
func (s *Service) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	claims, ok := authapi.ClaimsFromContext(r.Context())
	if !ok {
		httpserver.RespondError(w, arcperr.New(arcperr.KindAuthenticationFailed, "missing or invalid token"))
		return
	}

	if claims.TempRegistration {
		if claims.AgentID != req.AgentID || claims.AgentType != req.AgentType {
			httpserver.RespondError(w, arcperr.New(arcperr.KindAuthenticationFailed, "registration does not match the bound temporary token"))
			return
		}
	}

	if !s.agentTypeAllowed(req.AgentType) {
		httpserver.RespondError(w, arcperr.New(arcperr.KindAgentRegistrationError, "agent_type is not in the allowed list"))
		return
	}

	agentKeyHash := claims.UsedKey
	outcome, err := s.manager.Register(r.Context(), req.toRegistration(), agentKeyHash)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}

	status := http.StatusOK
	if outcome.Kind == registry.OutcomeCreated {
		status = http.StatusCreated
	}
	agent := outcome.Info.Annotate(time.Now(), s.manager.HeartbeatTimeout())
	httpserver.Respond(w, status, registerResponse{Outcome: string(outcome.Kind), Agent: agent})
}

// HandleList returns a filtered, paginated view of registered agents.
func (s *Service) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := registry.Filter{
		AgentType: q.Get("agent_type"),
	}
	if status := q.Get("status"); status != "" {
		filter.Status = registry.Status(status)
	}
	if caps := q.Get("capabilities"); caps != "" {
		filter.Capabilities = strings.Split(caps, ",")
	}

	agents := s.manager.List(filter)
	page := httpserver.Slice(agents, httpserver.ParsePagination(r))
	now := time.Now()
	heartbeatTimeout := s.manager.HeartbeatTimeout()
	withStatus := make([]registry.WithStatus, 0, len(page))
	for _, info := range page {
		withStatus = append(withStatus, info.Annotate(now, heartbeatTimeout))
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"agents": withStatus,
		"total":  len(agents),
	})
}

// HandleGet returns full info for one agent.
func (s *Service) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, err := s.manager.Get(id)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, info.Annotate(time.Now(), s.manager.HeartbeatTimeout()))
}

// HandleUnregister removes an agent's record.
func (s *Service) HandleUnregister(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.manager.Unregister(r.Context(), id); err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "unregistered"})
}

type heartbeatResponse struct {
	Status   registry.Status `json:"status"`
	LastSeen time.Time       `json:"last_seen"`
}

// HandleHeartbeat updates an agent's last_seen timestamp and returns its
// computed liveness status, per spec.md §4.2's heartbeat(agent_id) ->
// {status, last_seen}.
func (s *Service) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, err := s.manager.Heartbeat(r.Context(), id)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	status := info.ComputedStatus(time.Now(), s.manager.HeartbeatTimeout())
	httpserver.Respond(w, http.StatusOK, heartbeatResponse{Status: status, LastSeen: info.LastSeen})
}

type metricsRequest struct {
	SuccessRate         float64 `json:"success_rate"`
	AvgResponseTime     float64 `json:"avg_response_time"`
	TotalRequests       int64   `json:"total_requests"`
	ReputationScore     float64 `json:"reputation_score"`
	RequestsProcessed   int64   `json:"requests_processed"`
	AverageResponseTime float64 `json:"average_response_time"`
	ErrorRate           float64 `json:"error_rate"`
}

// HandleMetrics updates (POST) or reads (GET) an agent's metrics record.
func (s *Service) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if r.Method == http.MethodGet {
		info, err := s.manager.Get(id)
		if err != nil {
			httpserver.RespondError(w, err)
			return
		}
		httpserver.Respond(w, http.StatusOK, info.Metrics)
		return
	}

	var req metricsRequest
	if err := httpserver.DecodeJSON(w, r, &req); err != nil {
		httpserver.RespondError(w, arcperr.New(arcperr.KindValidationError, "malformed request body"))
		return
	}
	partial := registry.Metrics{
		SuccessRate:         req.SuccessRate,
		AvgResponseTime:     req.AvgResponseTime,
		TotalRequests:       req.TotalRequests,
		ReputationScore:     req.ReputationScore,
		RequestsProcessed:   req.RequestsProcessed,
		AverageResponseTime: req.AverageResponseTime,
		ErrorRate:           req.ErrorRate,
	}
	merged, err := s.manager.UpdateMetrics(r.Context(), id, partial)
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, merged)
}

type searchRequest struct {
	Query         string   `json:"query" validate:"required"`
	TopK          int      `json:"top_k"`
	MinSimilarity float64  `json:"min_similarity"`
	AgentType     string   `json:"agent_type"`
	Capabilities  []string `json:"capabilities"`
	Weighted      bool     `json:"weighted"`
}

// HandleSearch runs a full-metadata semantic search (agent/admin view).
func (s *Service) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req.Query = q.Get("query")
		req.AgentType = q.Get("agent_type")
	} else if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		httpserver.RespondError(w, arcperr.New(arcperr.KindValidationError, "query is required"))
		return
	}

	results, err := s.search.Search(r.Context(), search.Query{
		Text:          sanitize.String(req.Query),
		TopK:          req.TopK,
		MinSimilarity: req.MinSimilarity,
		AgentType:     req.AgentType,
		Capabilities:  req.Capabilities,
		Weighted:      req.Weighted,
	})
	if err != nil {
		httpserver.RespondError(w, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"results": results})
}
