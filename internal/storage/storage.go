// Package storage implements the Storage Adapter (C1): bucketed hash and
// key/value operations backed by Redis when available, transparently
// falling back to an in-process map. Grounded on the teacher's
// internal/platform.NewRedisClient for backend construction and on the
// pack-wide sync.RWMutex-guarded map pattern (arkeep websocket Hub).
package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/0x00K1/arcp/internal/arcperr"
)

// Adapter exposes the capability set spec.md §9 names: bucketed hash
// operations plus single-key get/set/delete built atop the same bucket
// shape (bucket "__kv__" holds the flat namespace).
type Adapter interface {
	HSet(ctx context.Context, bucket, key string, value []byte) error
	HGet(ctx context.Context, bucket, key string) ([]byte, bool, error)
	HKeys(ctx context.Context, bucket string) ([]string, error)
	HDel(ctx context.Context, bucket, key string) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// BackendAvailable reports whether the remote backend answered the
	// last probe; used only for /health reporting.
	BackendAvailable() bool
	// Configured reports whether a remote backend was wired in at all
	// (REDIS_URL set), distinguishing "Redis down" from "Redis not used."
	Configured() bool
}

const flatBucket = "__kv__"

// RedisAdapter is the Adapter implementation. It holds an optional Redis
// client and an always-present in-process fallback map. Reads prefer the
// backend and fall through to the fallback; writes go to the backend when
// available and to the fallback otherwise. No reconciliation is performed
// when the backend recovers — callers own that.
type RedisAdapter struct {
	client *redis.Client

	mu       sync.RWMutex
	fallback map[string]map[string][]byte

	probeOK           atomic.Bool
	lastProbe         atomic.Int64 // unix nanos
	reconnectInterval time.Duration
}

// New constructs a RedisAdapter. client may be nil, in which case the
// adapter operates purely on the in-process fallback (no remote backend
// configured, per REDIS_URL being unset).
func New(client *redis.Client, reconnectInterval time.Duration) *RedisAdapter {
	if reconnectInterval <= 0 {
		reconnectInterval = 10 * time.Second
	}
	a := &RedisAdapter{
		client:            client,
		fallback:          make(map[string]map[string][]byte),
		reconnectInterval: reconnectInterval,
	}
	if client != nil {
		a.probeOK.Store(true)
	}
	return a
}

// available reports (and lazily re-probes) backend reachability, throttled
// to at most one probe per reconnectInterval so a down Redis is not
// hammered on every call.
func (a *RedisAdapter) available(ctx context.Context) bool {
	if a.client == nil {
		return false
	}
	now := time.Now().UnixNano()
	last := a.lastProbe.Load()
	if now-last < a.reconnectInterval.Nanoseconds() {
		return a.probeOK.Load()
	}
	if !a.lastProbe.CompareAndSwap(last, now) {
		return a.probeOK.Load()
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ok := a.client.Ping(pingCtx).Err() == nil
	a.probeOK.Store(ok)
	return ok
}

func (a *RedisAdapter) BackendAvailable() bool {
	return a.probeOK.Load()
}

func (a *RedisAdapter) Configured() bool {
	return a.client != nil
}

// HSet writes to the backend when available, else to the in-process
// fallback. A write that the fallback accepted but the backend rejected
// is reported as BackendTransient; callers treat this as success for
// availability purposes but may degrade durability guarantees.
func (a *RedisAdapter) HSet(ctx context.Context, bucket, key string, value []byte) error {
	if a.available(ctx) {
		if err := a.client.HSet(ctx, bucket, key, value).Err(); err != nil {
			a.probeOK.Store(false)
			a.writeFallback(bucket, key, value)
			return arcperr.New(arcperr.KindInternalError, "BackendTransient")
		}
		return nil
	}
	a.writeFallback(bucket, key, value)
	return nil
}

func (a *RedisAdapter) writeFallback(bucket, key string, value []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.fallback[bucket]
	if !ok {
		b = make(map[string][]byte)
		a.fallback[bucket] = b
	}
	b[key] = value
}

// HGet returns the stored value and whether it was found. When the
// backend is available it is consulted first; otherwise the method falls
// through to the in-process fallback.
func (a *RedisAdapter) HGet(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	if a.available(ctx) {
		v, err := a.client.HGet(ctx, bucket, key).Bytes()
		if err == nil {
			return v, true, nil
		}
		if err != redis.Nil {
			a.probeOK.Store(false)
		} else {
			return nil, false, nil
		}
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.fallback[bucket]
	if !ok {
		return nil, false, nil
	}
	v, ok := b[key]
	return v, ok, nil
}

func (a *RedisAdapter) HKeys(ctx context.Context, bucket string) ([]string, error) {
	if a.available(ctx) {
		keys, err := a.client.HKeys(ctx, bucket).Result()
		if err == nil {
			return keys, nil
		}
		a.probeOK.Store(false)
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	b := a.fallback[bucket]
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	return keys, nil
}

func (a *RedisAdapter) HDel(ctx context.Context, bucket, key string) error {
	if a.available(ctx) {
		if err := a.client.HDel(ctx, bucket, key).Err(); err != nil {
			a.probeOK.Store(false)
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := a.fallback[bucket]; ok {
		delete(b, key)
	}
	return nil
}

func (a *RedisAdapter) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if a.available(ctx) {
		n, err := a.client.HExists(ctx, bucket, key).Result()
		if err == nil {
			return n, nil
		}
		a.probeOK.Store(false)
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.fallback[bucket]
	if !ok {
		return false, nil
	}
	_, ok = b[key]
	return ok, nil
}

func (a *RedisAdapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return a.HGet(ctx, flatBucket, key)
}

func (a *RedisAdapter) Set(ctx context.Context, key string, value []byte) error {
	return a.HSet(ctx, flatBucket, key, value)
}

func (a *RedisAdapter) Delete(ctx context.Context, key string) error {
	return a.HDel(ctx, flatBucket, key)
}
