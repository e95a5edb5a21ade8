package session

import (
	"testing"
	"time"

	"github.com/0x00K1/arcp/internal/arcperr"
)

func TestDeriveKeyStableAndDistinct(t *testing.T) {
	k1 := DeriveKey("admin", "fp1", "ref1")
	k2 := DeriveKey("admin", "fp1", "ref1")
	if k1 != k2 {
		t.Error("DeriveKey is not deterministic")
	}
	k3 := DeriveKey("admin", "fp2", "ref1")
	if k1 == k3 {
		t.Error("DeriveKey did not change across differing fingerprint")
	}
}

func TestCreateGetDestroy(t *testing.T) {
	m := New(time.Minute)
	key := m.Create("admin", "fp", "ref")

	if _, ok := m.Get(key); !ok {
		t.Fatal("expected session to be retrievable immediately after creation")
	}

	m.Destroy(key)
	if _, ok := m.Get(key); ok {
		t.Fatal("session still present after Destroy")
	}
}

func TestSessionExpires(t *testing.T) {
	m := New(time.Millisecond)
	key := m.Create("admin", "fp", "ref")
	time.Sleep(5 * time.Millisecond)

	if _, ok := m.Get(key); ok {
		t.Fatal("expired session was still returned")
	}
}

func TestPinSetVerifyFlow(t *testing.T) {
	m := New(time.Minute)
	key := m.Create("admin", "fp", "ref")

	if err := m.RequirePinVerified(key); !arcperr.Is(err, arcperr.KindPinRequired) {
		t.Fatalf("expected PinRequired before pin set, got %v", err)
	}

	if err := m.SetPin(key, "1234"); err != nil {
		t.Fatalf("SetPin: %v", err)
	}

	if err := m.VerifyPin(key, "0000"); !arcperr.Is(err, arcperr.KindAuthenticationFailed) {
		t.Fatalf("expected AuthenticationFailed for wrong pin, got %v", err)
	}

	if err := m.VerifyPin(key, "1234"); err != nil {
		t.Fatalf("VerifyPin with correct pin: %v", err)
	}
	if err := m.RequirePinVerified(key); err != nil {
		t.Fatalf("RequirePinVerified after correct pin: %v", err)
	}
}
