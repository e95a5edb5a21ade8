// Package ratelimit implements the anti-brute-force rate limiter (C2):
// per-(identifier,bucket) attempt counters with progressive delay and
// exponential lockout. Grounded on the teacher's internal/auth.RateLimiter
// (Redis INCR/EXPIRE login limiter), generalized to multiple attempt
// classes and persisted through internal/storage so state survives a
// restart when a Redis backend is configured (AttemptInfo shape recovered
// from original_source/tests/unit/utils/test_rate_limiter.py).
package ratelimit

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/0x00K1/arcp/internal/arcperr"
	"github.com/0x00K1/arcp/internal/storage"
	"github.com/0x00K1/arcp/internal/telemetry"
)

// Bucket names the attempt classes spec.md §4.3 defines.
type Bucket string

const (
	BucketLogin  Bucket = "login"
	BucketPin    Bucket = "pin"
	BucketGlobal Bucket = "global"
)

const storageBucket = "ratelimit"

// AttemptInfo mirrors the original implementation's per-(identifier,
// bucket) record exactly, so it round-trips through the storage adapter.
type AttemptInfo struct {
	Count        int       `json:"count"`
	FirstAttempt time.Time `json:"first_attempt"`
	LastAttempt  time.Time `json:"last_attempt"`
	LockedUntil  time.Time `json:"locked_until"`
	LockoutCount int       `json:"lockout_count"`
}

func (a *AttemptInfo) locked(now time.Time) bool {
	return !a.LockedUntil.IsZero() && now.Before(a.LockedUntil)
}

// Config holds the tunables named in spec.md §4.3.
type Config struct {
	Enabled            bool
	MaxAttempts        int
	BaseLockout        time.Duration
	MaxLockoutDuration time.Duration
	MaxPenalty         time.Duration
	Window             time.Duration // inactivity window for cleanup
}

// DefaultConfig matches the original implementation's defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		MaxAttempts:        5,
		BaseLockout:        60 * time.Second,
		MaxLockoutDuration: 30 * time.Minute,
		MaxPenalty:         5 * time.Minute,
		Window:             time.Hour,
	}
}

// Limiter evaluates and records attempts across buckets and identifiers.
type Limiter struct {
	cfg     Config
	adapter storage.Adapter

	mu      sync.Mutex
	records map[string]*AttemptInfo // key = identifier + "|" + bucket
}

// New constructs a Limiter backed by the given storage adapter.
func New(cfg Config, adapter storage.Adapter) *Limiter {
	return &Limiter{cfg: cfg, adapter: adapter, records: make(map[string]*AttemptInfo)}
}

func recordKey(identifier string, bucket Bucket) string {
	return identifier + "|" + string(bucket)
}

func (l *Limiter) load(ctx context.Context, key string) *AttemptInfo {
	l.mu.Lock()
	if rec, ok := l.records[key]; ok {
		l.mu.Unlock()
		return rec
	}
	l.mu.Unlock()

	raw, ok, err := l.adapter.HGet(ctx, storageBucket, key)
	rec := &AttemptInfo{}
	if err == nil && ok {
		_ = json.Unmarshal(raw, rec)
	}
	l.mu.Lock()
	l.records[key] = rec
	l.mu.Unlock()
	return rec
}

func (l *Limiter) save(ctx context.Context, key string, rec *AttemptInfo) {
	l.mu.Lock()
	l.records[key] = rec
	l.mu.Unlock()
	if raw, err := json.Marshal(rec); err == nil {
		_ = l.adapter.HSet(ctx, storageBucket, key, raw)
	}
}

// CheckResult reports whether a request may proceed and, if not, the
// delay the caller must wait before retrying.
type CheckResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Check evaluates every identifier in identifiers (the parts of a
// pipe-joined composite, see internal/fingerprint) against bucket. The request is blocked if any
// identifier is currently blocked; the worst (longest) delay is surfaced.
func (l *Limiter) Check(ctx context.Context, identifiers []string, bucket Bucket) CheckResult {
	if !l.cfg.Enabled {
		return CheckResult{Allowed: true}
	}

	now := time.Now()
	worst := time.Duration(0)
	blocked := false

	for _, id := range identifiers {
		key := recordKey(id, bucket)
		rec := l.load(ctx, key)

		if rec.locked(now) {
			blocked = true
			if d := rec.LockedUntil.Sub(now); d > worst {
				worst = d
			}
			continue
		}

		if rec.Count > 0 {
			required := progressiveDelay(rec.Count, rec.LockoutCount, l.cfg)
			elapsed := now.Sub(rec.LastAttempt)
			if elapsed < required {
				blocked = true
				if d := required - elapsed; d > worst {
					worst = d
				}
			}
		}
	}

	if blocked {
		return CheckResult{Allowed: false, RetryAfter: worst}
	}
	return CheckResult{Allowed: true}
}

// progressiveDelay implements min(2^(count-1) + 30*lockout_count, base+maxPenalty).
func progressiveDelay(count, lockoutCount int, cfg Config) time.Duration {
	exp := math.Pow(2, float64(count-1))
	delaySeconds := exp + 30*float64(lockoutCount)
	ceiling := (cfg.BaseLockout + cfg.MaxPenalty).Seconds()
	if delaySeconds > ceiling {
		delaySeconds = ceiling
	}
	return time.Duration(delaySeconds * float64(time.Second))
}

// RecordFailure increments the attempt count for every identifier and,
// once max_attempts is reached, enters an exponentially growing lockout.
func (l *Limiter) RecordFailure(ctx context.Context, identifiers []string, bucket Bucket) {
	if !l.cfg.Enabled {
		return
	}
	now := time.Now()
	for _, id := range identifiers {
		key := recordKey(id, bucket)
		rec := l.load(ctx, key)

		if rec.FirstAttempt.IsZero() {
			rec.FirstAttempt = now
		}
		rec.LastAttempt = now
		rec.Count++

		if rec.Count >= l.cfg.MaxAttempts {
			rec.LockoutCount++
			lockoutSeconds := l.cfg.BaseLockout.Seconds() * math.Pow(2, float64(rec.LockoutCount-1))
			if maxSec := l.cfg.MaxLockoutDuration.Seconds(); lockoutSeconds > maxSec {
				lockoutSeconds = maxSec
			}
			rec.LockedUntil = now.Add(time.Duration(lockoutSeconds * float64(time.Second)))
			rec.Count = 0
			telemetry.RateLimitLockoutsTotal.WithLabelValues(string(bucket)).Inc()
		}
		l.save(ctx, key, rec)
	}
}

// RecordSuccess clears the count and lockout state for every identifier.
func (l *Limiter) RecordSuccess(ctx context.Context, identifiers []string, bucket Bucket) {
	for _, id := range identifiers {
		key := recordKey(id, bucket)
		rec := l.load(ctx, key)
		rec.Count = 0
		rec.LockoutCount = 0
		rec.LockedUntil = time.Time{}
		l.save(ctx, key, rec)
	}
}

// Cleanup removes records whose last activity predates the inactivity
// window and that are not currently locked out.
func (l *Limiter) Cleanup(ctx context.Context) {
	now := time.Now()
	l.mu.Lock()
	keys := make([]string, 0, len(l.records))
	for k := range l.records {
		keys = append(keys, k)
	}
	l.mu.Unlock()

	for _, key := range keys {
		l.mu.Lock()
		rec, ok := l.records[key]
		l.mu.Unlock()
		if !ok {
			continue
		}
		if rec.locked(now) {
			continue
		}
		if now.Sub(rec.LastAttempt) > l.cfg.Window {
			l.mu.Lock()
			delete(l.records, key)
			l.mu.Unlock()
			_ = l.adapter.HDel(ctx, storageBucket, key)
		}
	}
}

// ErrTooManyAttempts is a convenience constructor for the Problem Details
// error a 429 response carries.
func ErrTooManyAttempts(retryAfter time.Duration) error {
	return arcperr.RateLimited(int(retryAfter.Seconds()))
}
