// Package session binds admin sessions to a client fingerprint and token
// reference, and manages PIN-elevated operation verification. Grounded on
// the teacher's internal/auth.SessionManager shape, generalized so the
// session key is derived exactly as spec.md §4.3 requires:
// H(user_id ∥ client_fingerprint ∥ token_ref).
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/0x00K1/arcp/internal/arcperr"
)

// Key identifies one session.
type Key string

// Record holds the server-side session state. PinHash is never embedded
// in the token itself — only in this record, bound to one session.
type Record struct {
	UserID      string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	PinHash     string
	PinVerified bool
}

// Manager is an in-process session store. It is safe for concurrent use.
type Manager struct {
	ttl time.Duration

	mu       sync.RWMutex
	sessions map[Key]*Record
}

// New constructs a Manager whose sessions expire after ttl.
func New(ttl time.Duration) *Manager {
	return &Manager{ttl: ttl, sessions: make(map[Key]*Record)}
}

// DeriveKey computes H(user_id ∥ fingerprint ∥ token_ref).
func DeriveKey(userID, fingerprint, tokenRef string) Key {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(tokenRef))
	return Key(hex.EncodeToString(h.Sum(nil)))
}

// TokenRef derives the short token reference used in DeriveKey, so the
// full token is never stored as part of the session key material.
func TokenRef(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

// Create starts a new session and returns its key.
func (m *Manager) Create(userID, fingerprint, tokenRef string) Key {
	key := DeriveKey(userID, fingerprint, tokenRef)
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[key] = &Record{
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	return key
}

// Get returns the live session for key, or (nil, false) if absent or
// expired. Expired sessions are evicted lazily on lookup.
func (m *Manager) Get(key Key) (*Record, bool) {
	m.mu.RLock()
	rec, ok := m.sessions[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(rec.ExpiresAt) {
		m.mu.Lock()
		delete(m.sessions, key)
		m.mu.Unlock()
		return nil, false
	}
	return rec, true
}

// Destroy invalidates a session (logout).
func (m *Manager) Destroy(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
}

// SetPin hashes and stores a PIN against the session, bcrypt-hashed so the
// raw PIN is never retained.
func (m *Manager) SetPin(key Key, pin string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return arcperr.Wrap(arcperr.KindInternalError, "failed to hash pin", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[key]
	if !ok {
		return arcperr.New(arcperr.KindAuthenticationFailed, "no active session")
	}
	rec.PinHash = string(hash)
	rec.PinVerified = false
	return nil
}

// VerifyPin checks pin against the session-bound hash. A verified PIN
// never changes the token; it sets PinVerified on the session record,
// which then holds for every later request on that session until SetPin
// or a failed VerifyPin clears it. The elevation is not limited to a
// single request.
func (m *Manager) VerifyPin(key Key, pin string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[key]
	if !ok {
		return arcperr.New(arcperr.KindAuthenticationFailed, "no active session")
	}
	if rec.PinHash == "" {
		return arcperr.New(arcperr.KindPinRequired, "no pin configured for session")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PinHash), []byte(pin)); err != nil {
		rec.PinVerified = false
		return arcperr.New(arcperr.KindAuthenticationFailed, "incorrect pin")
	}
	rec.PinVerified = true
	return nil
}

// RequirePinVerified reports whether the session currently carries a
// verified PIN.
func (m *Manager) RequirePinVerified(key Key) error {
	rec, ok := m.Get(key)
	if !ok {
		return arcperr.New(arcperr.KindAuthenticationFailed, "no active session")
	}
	m.mu.RLock()
	verified := rec.PinVerified
	m.mu.RUnlock()
	if !verified {
		return arcperr.New(arcperr.KindPinRequired, "pin verification required")
	}
	return nil
}
