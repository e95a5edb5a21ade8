package tokens

import (
	"testing"
	"time"
)

func TestMintAndValidateRoundTrip(t *testing.T) {
	svc := New("super-secret", "HS256", 60, 15)

	tok, err := svc.Mint(MintOptions{Subject: "admin", Role: "admin"})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	claims, err := svc.Validate(tok)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "admin" || claims.Role != "admin" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Issuer != issuer {
		t.Errorf("Issuer = %q, want %q", claims.Issuer, issuer)
	}
}

func TestTempRegistrationTokenClampedToMaxMinutes(t *testing.T) {
	svc := New("super-secret", "HS256", 60, 15)

	tok, err := svc.Mint(MintOptions{
		Subject:          "x",
		Role:             "agent",
		TempRegistration: true,
		AgentID:          "x",
		AgentType:        "testing",
		ExpireMinutes:    120,
	})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	claims, err := svc.Validate(tok)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	ttl := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time)
	if ttl > 15*time.Minute {
		t.Errorf("temp token ttl = %v, want <= 15m", ttl)
	}
	if !claims.TempRegistration {
		t.Error("TempRegistration flag lost")
	}
}

func TestValidateRejectsTamperedSignature(t *testing.T) {
	svc := New("secret-a", "HS256", 60, 15)
	other := New("secret-b", "HS256", 60, 15)

	tok, _ := svc.Mint(MintOptions{Subject: "a", Role: "admin"})
	if _, err := other.Validate(tok); err == nil {
		t.Fatal("expected validation failure against mismatched secret")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	svc := New("secret", "HS256", 60, 15)
	tok, _ := svc.Mint(MintOptions{Subject: "a", Role: "admin", ExpireMinutes: -1})

	if _, err := svc.Validate(tok); err == nil {
		t.Fatal("expected validation failure for expired token")
	}
}
