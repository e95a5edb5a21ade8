package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/0x00K1/arcp/internal/registry"
)

func newManager(t *testing.T, heartbeatTimeout, minThresh time.Duration) *Manager {
	t.Helper()
	reg := registry.New(heartbeatTimeout, nil, time.Second, nil, nil)
	cfg := Config{HeartbeatTimeout: heartbeatTimeout, CleanupInterval: time.Minute, CleanupMinThresh: minThresh}
	return New(reg, cfg, nil)
}

func sampleReg(id string) registry.Registration {
	return registry.Registration{
		AgentID:           id,
		Name:              "Agent " + id,
		AgentType:         "security",
		Endpoint:          "https://example.test/" + id,
		Capabilities:      []string{"vscan"},
		CommunicationMode: registry.ModeRemote,
	}
}

// TestCleanupSafety covers testable property 5: an agent with a valid
// last_seen within 2x heartbeat timeout is never cleaned; one with no
// parseable last_seen is never cleaned either.
func TestCleanupSafety(t *testing.T) {
	m := newManager(t, time.Minute, time.Second)
	ctx := context.Background()

	if _, err := m.Register(ctx, sampleReg("fresh"), ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := m.Register(ctx, sampleReg("zero-last-seen"), ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// simulate a malformed/zero last_seen without going through Register.
	info, _ := m.reg.Get("zero-last-seen")
	info.LastSeen = time.Time{}

	m.runCleanup(ctx)

	if _, err := m.Get("fresh"); err != nil {
		t.Error("fresh agent was cleaned up but should not have been")
	}
	if _, err := m.Get("zero-last-seen"); err != nil {
		t.Error("agent with zero last_seen was cleaned up but should be skipped")
	}
}

func TestCleanupRemovesStaleAgent(t *testing.T) {
	m := newManager(t, 10*time.Millisecond, time.Millisecond)
	ctx := context.Background()

	if _, err := m.Register(ctx, sampleReg("sec-1"), ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	info, _ := m.reg.Get("sec-1")
	info.LastSeen = time.Now().Add(-2 * time.Hour)

	m.runCleanup(ctx)

	if _, err := m.Get("sec-1"); err == nil {
		t.Fatal("expected stale agent to have been cleaned up")
	}
}

func TestStaleThresholdUsesLargerOfMinAndDoubleHeartbeat(t *testing.T) {
	cfg := Config{HeartbeatTimeout: time.Minute, CleanupMinThresh: 10 * time.Second}
	if got := cfg.staleThreshold(); got != 2*time.Minute {
		t.Errorf("staleThreshold() = %v, want 2m (2x heartbeat beats min)", got)
	}

	cfg2 := Config{HeartbeatTimeout: time.Second, CleanupMinThresh: time.Hour}
	if got := cfg2.staleThreshold(); got != time.Hour {
		t.Errorf("staleThreshold() = %v, want 1h (min beats 2x heartbeat)", got)
	}
}
