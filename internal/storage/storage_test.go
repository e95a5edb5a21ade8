package storage

import (
	"context"
	"testing"
	"time"
)

func newFallbackOnlyAdapter() *RedisAdapter {
	return New(nil, time.Second)
}

func TestFallbackSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	a := newFallbackOnlyAdapter()

	if err := a.Set(ctx, "k1", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := a.Get(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("Get: v=%s ok=%v err=%v", v, ok, err)
	}
	if string(v) != "v1" {
		t.Errorf("Get() = %q, want v1", v)
	}
}

func TestFallbackHashOperations(t *testing.T) {
	ctx := context.Background()
	a := newFallbackOnlyAdapter()

	_ = a.HSet(ctx, "agents", "a1", []byte("data1"))
	_ = a.HSet(ctx, "agents", "a2", []byte("data2"))

	keys, err := a.HKeys(ctx, "agents")
	if err != nil {
		t.Fatalf("HKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("HKeys() = %v, want 2 entries", keys)
	}

	ok, err := a.Exists(ctx, "agents", "a1")
	if err != nil || !ok {
		t.Fatalf("Exists(a1) = %v, %v", ok, err)
	}

	if err := a.HDel(ctx, "agents", "a1"); err != nil {
		t.Fatalf("HDel: %v", err)
	}
	ok, _ = a.Exists(ctx, "agents", "a1")
	if ok {
		t.Error("a1 still exists after HDel")
	}
}

func TestMissingKeyReturnsNotFoundNotError(t *testing.T) {
	ctx := context.Background()
	a := newFallbackOnlyAdapter()

	v, ok, err := a.Get(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("Get on missing key returned error: %v", err)
	}
	if ok || v != nil {
		t.Errorf("Get() = %v, %v, want nil, false", v, ok)
	}
}

func TestBackendAvailableFalseWithoutClient(t *testing.T) {
	a := newFallbackOnlyAdapter()
	if a.BackendAvailable() {
		t.Error("BackendAvailable() = true with nil client")
	}
}
