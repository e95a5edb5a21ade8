package authapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/0x00K1/arcp/internal/ratelimit"
	"github.com/0x00K1/arcp/internal/session"
	"github.com/0x00K1/arcp/internal/storage"
	"github.com/0x00K1/arcp/internal/tokens"
)

func newTestService(t *testing.T) (*Service, *chi.Mux) {
	t.Helper()
	tok := tokens.New("test-secret", "HS256", 60, 15)
	sessions := session.New(30 * time.Minute)
	limiter := ratelimit.New(ratelimit.DefaultConfig(), storage.New(nil, 0))

	svc, err := New(Config{
		AdminUsername:  "admin",
		AdminPassword:  "correct-horse",
		AgentKeys:      []string{"preshared-key-1"},
		SessionTimeout: 30 * time.Minute,
	}, tok, sessions, limiter, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r := chi.NewRouter()
	svc.Mount(r)
	return svc, r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
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

func TestLoginWithCorrectCredentialsReturnsToken(t *testing.T) {
	_, r := newTestService(t)

	rec := doJSON(t, r, http.MethodPost, "/auth/login", loginRequest{Username: "admin", Password: "correct-horse"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Token == "" {
		t.Error("expected a non-empty token")
	}
}

func TestLoginWithWrongPasswordFails(t *testing.T) {
	_, r := newTestService(t)

	rec := doJSON(t, r, http.MethodPost, "/auth/login", loginRequest{Username: "admin", Password: "wrong"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

// TestLoginLockoutAfterMaxAttempts covers the rate-limiter's progressive
// lockout applying to the login bucket end-to-end.
func TestLoginLockoutAfterMaxAttempts(t *testing.T) {
	_, r := newTestService(t)

	for i := 0; i < ratelimit.DefaultConfig().MaxAttempts; i++ {
		doJSON(t, r, http.MethodPost, "/auth/login", loginRequest{Username: "admin", Password: "wrong"}, "")
	}
	rec := doJSON(t, r, http.MethodPost, "/auth/login", loginRequest{Username: "admin", Password: "correct-horse"}, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 after lockout", rec.Code)
	}
}

func TestRequestTempTokenWithValidKey(t *testing.T) {
	_, r := newTestService(t)

	rec := doJSON(t, r, http.MethodPost, "/auth/agent/request_temp_token",
		tempTokenRequest{AgentKey: "preshared-key-1", AgentType: "security"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp tempTokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a token")
	}
}

func TestRequestTempTokenWithUnknownKeyFails(t *testing.T) {
	_, r := newTestService(t)

	rec := doJSON(t, r, http.MethodPost, "/auth/agent/request_temp_token",
		tempTokenRequest{AgentKey: "not-a-real-key"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

// TestTempRegistrationTokenRestrictedToAgentLevel covers permission
// restriction: a temp-registration token cannot mint admin tokens even
// though the underlying registry.HashAgentKey subject looks arbitrary.
func TestTempRegistrationTokenRestrictedToAgentLevel(t *testing.T) {
	svc, r := newTestService(t)

	rec := doJSON(t, r, http.MethodPost, "/auth/agent/request_temp_token", tempTokenRequest{AgentKey: "preshared-key-1"}, "")
	var resp tempTokenResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)

	mintRec := doJSON(t, r, http.MethodPost, "/tokens/mint", mintRequest{Subject: "x", Role: "admin"}, resp.Token)
	if mintRec.Code != http.StatusForbidden && mintRec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401/403 for temp-registration token minting admin token", mintRec.Code)
	}
	_ = svc
}

func TestFullPinElevationFlow(t *testing.T) {
	svc, r := newTestService(t)

	loginRec := doJSON(t, r, http.MethodPost, "/auth/login", loginRequest{Username: "admin", Password: "correct-horse"}, "")
	var login loginResponse
	_ = json.Unmarshal(loginRec.Body.Bytes(), &login)

	setPinRec := doJSON(t, r, http.MethodPost, "/auth/set_pin", pinRequest{Pin: "1234"}, login.Token)
	if setPinRec.Code != http.StatusOK {
		t.Fatalf("set_pin status = %d, body = %s", setPinRec.Code, setPinRec.Body.String())
	}

	verifyRec := doJSON(t, r, http.MethodPost, "/auth/verify_pin", pinRequest{Pin: "1234"}, login.Token)
	if verifyRec.Code != http.StatusOK {
		t.Fatalf("verify_pin status = %d, body = %s", verifyRec.Code, verifyRec.Body.String())
	}

	mintRec := doJSON(t, r, http.MethodPost, "/tokens/mint", mintRequest{Subject: "svc-1", Role: "agent"}, login.Token)
	if mintRec.Code != http.StatusCreated {
		t.Fatalf("mint status = %d, body = %s, want 201 after pin elevation", mintRec.Code, mintRec.Body.String())
	}
	_ = svc
}

func TestValidateTokenReportsClaims(t *testing.T) {
	_, r := newTestService(t)

	loginRec := doJSON(t, r, http.MethodPost, "/auth/login", loginRequest{Username: "admin", Password: "correct-horse"}, "")
	var login loginResponse
	_ = json.Unmarshal(loginRec.Body.Bytes(), &login)

	rec := doJSON(t, r, http.MethodPost, "/tokens/validate", validateRequest{Token: login.Token}, "")
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if valid, _ := body["valid"].(bool); !valid {
		t.Error("expected valid=true for a freshly minted token")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	_, r := newTestService(t)

	rec := doJSON(t, r, http.MethodPost, "/tokens/validate", validateRequest{Token: "not-a-jwt"}, "")
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if valid, _ := body["valid"].(bool); valid {
		t.Error("expected valid=false for a malformed token")
	}
}
