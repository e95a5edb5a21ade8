package agentsapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/0x00K1/arcp/internal/authapi"
	"github.com/0x00K1/arcp/internal/lifecycle"
	"github.com/0x00K1/arcp/internal/ratelimit"
	"github.com/0x00K1/arcp/internal/registry"
	"github.com/0x00K1/arcp/internal/search"
	"github.com/0x00K1/arcp/internal/session"
	"github.com/0x00K1/arcp/internal/storage"
	"github.com/0x00K1/arcp/internal/tokens"
)

func newTestSetup(t *testing.T) (*chi.Mux, *authapi.Service, *tokens.Service) {
	t.Helper()
	reg := registry.New(time.Minute, nil, time.Second, nil, nil)
	manager := lifecycle.New(reg, lifecycle.Config{HeartbeatTimeout: time.Minute, CleanupInterval: time.Minute, CleanupMinThresh: time.Minute}, nil)
	engine := search.New(reg, nil)
	svc := New(manager, engine, nil)

	tok := tokens.New("test-secret", "HS256", 60, 15)
	sessions := session.New(30 * time.Minute)
	limiter := ratelimit.New(ratelimit.DefaultConfig(), storage.New(nil, 0))
	auth, err := authapi.New(authapi.Config{
		AdminUsername:  "admin",
		AdminPassword:  "hunter2",
		AgentKeys:      []string{"preshared-key"},
		SessionTimeout: 30 * time.Minute,
	}, tok, sessions, limiter, nil)
	if err != nil {
		t.Fatalf("authapi.New: %v", err)
	}

	r := chi.NewRouter()
	auth.Mount(r)
	svc.Mount(r, auth)
	return r, auth, tok
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func adminToken(t *testing.T, r http.Handler) string {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/auth/login", map[string]string{"username": "admin", "password": "hunter2"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return body["token"].(string)
}

func tempToken(t *testing.T, r http.Handler, agentID, agentType string) string {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/auth/agent/request_temp_token",
		map[string]string{"agent_id": agentID, "agent_type": agentType, "agent_key": "preshared-key"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("request_temp_token status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return body["token"].(string)
}

func sampleRegistration(id string) registerRequest {
	return registerRequest{
		AgentID:   id,
		Name:      "Agent " + id,
		AgentType: "security",
		Endpoint:  "https://example.test/" + id,
	}
}

// TestTwoPhaseEnrollmentHappyPath covers scenario S5's success branch.
func TestTwoPhaseEnrollmentHappyPath(t *testing.T) {
	r, _, _ := newTestSetup(t)
	tok := tempToken(t, r, "agent-x", "security")

	rec := doJSON(t, r, http.MethodPost, "/agents/register", sampleRegistration("agent-x"), tok)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

// TestTwoPhaseEnrollmentAgentIDMismatchRejected covers scenario S5's
// mismatch branch: registering a different agent_id than the token was
// bound to must fail with 401.
func TestTwoPhaseEnrollmentAgentIDMismatchRejected(t *testing.T) {
	r, _, _ := newTestSetup(t)
	tok := tempToken(t, r, "agent-x", "security")

	rec := doJSON(t, r, http.MethodPost, "/agents/register", sampleRegistration("agent-y"), tok)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for agent_id mismatch", rec.Code)
	}
}

func TestRegisterRequiresAuthentication(t *testing.T) {
	r, _, _ := newTestSetup(t)
	rec := doJSON(t, r, http.MethodPost, "/agents/register", sampleRegistration("agent-z"), "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without a token", rec.Code)
	}
}

func TestAdminCanListAndGetAfterRegistration(t *testing.T) {
	r, _, _ := newTestSetup(t)
	admin := adminToken(t, r)
	tok := tempToken(t, r, "agent-x", "security")
	doJSON(t, r, http.MethodPost, "/agents/register", sampleRegistration("agent-x"), tok)

	listRec := doJSON(t, r, http.MethodGet, "/agents/", nil, admin)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list status = %d, body = %s", listRec.Code, listRec.Body.String())
	}

	getRec := doJSON(t, r, http.MethodGet, "/agents/agent-x", nil, admin)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", getRec.Code, getRec.Body.String())
	}
}

func TestAgentTokenCannotListAgents(t *testing.T) {
	r, _, _ := newTestSetup(t)
	tok := tempToken(t, r, "agent-x", "security")

	rec := doJSON(t, r, http.MethodGet, "/agents/", nil, tok)
	if rec.Code != http.StatusForbidden && rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401/403 for non-admin listing agents", rec.Code)
	}
}

func TestHeartbeatAndMetricsRoundTrip(t *testing.T) {
	r, _, _ := newTestSetup(t)
	admin := adminToken(t, r)
	tok := tempToken(t, r, "agent-x", "security")
	doJSON(t, r, http.MethodPost, "/agents/register", sampleRegistration("agent-x"), tok)

	hbRec := doJSON(t, r, http.MethodPost, "/agents/agent-x/heartbeat", nil, admin)
	if hbRec.Code != http.StatusOK {
		t.Fatalf("heartbeat status = %d, body = %s", hbRec.Code, hbRec.Body.String())
	}

	metricsRec := doJSON(t, r, http.MethodPost, "/agents/agent-x/metrics",
		metricsRequest{TotalRequests: 10, SuccessRate: 0.9}, admin)
	if metricsRec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, body = %s", metricsRec.Code, metricsRec.Body.String())
	}

	getRec := doJSON(t, r, http.MethodGet, "/agents/agent-x/metrics", nil, admin)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get metrics status = %d, body = %s", getRec.Code, getRec.Body.String())
	}
}

func TestUnregisterRemovesAgent(t *testing.T) {
	r, _, _ := newTestSetup(t)
	admin := adminToken(t, r)
	tok := tempToken(t, r, "agent-x", "security")
	doJSON(t, r, http.MethodPost, "/agents/register", sampleRegistration("agent-x"), tok)

	delRec := doJSON(t, r, http.MethodDelete, "/agents/agent-x", nil, admin)
	if delRec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body = %s", delRec.Code, delRec.Body.String())
	}

	getRec := doJSON(t, r, http.MethodGet, "/agents/agent-x", nil, admin)
	if getRec.Code != http.StatusNotFound {
		t.Fatalf("get status after delete = %d, want 404", getRec.Code)
	}
}

func TestSearchRequiresNonEmptyQuery(t *testing.T) {
	r, _, _ := newTestSetup(t)
	admin := adminToken(t, r)

	rec := doJSON(t, r, http.MethodPost, "/agents/search", searchRequest{Query: ""}, admin)
	if rec.Code != http.StatusUnprocessableEntity && rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want a validation error for empty query", rec.Code)
	}
}
