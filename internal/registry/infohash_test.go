package registry

import "testing"

func baseRegistration() Registration {
	return Registration{
		AgentID:           "a1",
		Name:              "Scanner",
		AgentType:         "security",
		Endpoint:          "https://s.example/api",
		ContextBrief:      "scans things",
		Capabilities:      []string{"vscan", "portscan"},
		Owner:             "team-a",
		Version:           "1.0.0",
		CommunicationMode: ModeRemote,
		Metadata:          map[string]any{"note": "v1"},
	}
}

func TestInfoHashStableAcrossCapabilityOrder(t *testing.T) {
	r1 := baseRegistration()
	r2 := baseRegistration()
	r2.Capabilities = []string{"portscan", "vscan"}

	if ComputeInfoHash(r1) != ComputeInfoHash(r2) {
		t.Error("InfoHash changed when only capability order differed")
	}
}

func TestInfoHashIgnoresExcludedFields(t *testing.T) {
	r1 := baseRegistration()
	r2 := baseRegistration()
	r2.Owner = "team-b"
	r2.Metadata = map[string]any{"note": "v2"}

	if ComputeInfoHash(r1) != ComputeInfoHash(r2) {
		t.Error("InfoHash changed when only owner/metadata differed")
	}
}

func TestInfoHashChangesOnDescriptiveFieldChange(t *testing.T) {
	r1 := baseRegistration()
	r2 := baseRegistration()
	r2.Endpoint = "https://different.example/api"

	if ComputeInfoHash(r1) == ComputeInfoHash(r2) {
		t.Error("InfoHash did not change when endpoint changed")
	}
}

func TestInfoHashIsHexSHA256AndDeterministic(t *testing.T) {
	r := baseRegistration()
	got := ComputeInfoHash(r)
	if len(got) != 64 {
		t.Fatalf("ComputeInfoHash length = %d, want 64 (sha256 hex)", len(got))
	}
	if got != ComputeInfoHash(r) {
		t.Error("ComputeInfoHash is not deterministic for identical input")
	}
}
