// Package session implements the in-memory session layer: issuing and
// validating opaque tokens, an optional passphrase cache, and a
// background sweep that purges expired sessions. Sessions are never
// persisted and never survive a process restart.
package session

import (
	"time"

	"github.com/dpetrovs/passvault/internal/envelope"
)

// TokenBytes is the number of random bytes in a session token. Tokens are
// hex-encoded, so every token is exactly 2*TokenBytes characters.
const TokenBytes = 32

// Session is the in-memory state for one authenticated caller. Fields are
// mutated only while the manager's lock is held; callers must treat a
// returned session as read-only.
type Session struct {
	// ID is a stable non-secret identifier, safe to show in listings.
	ID string

	// Token is the opaque bearer secret. Never logged, never listed.
	Token string

	OwnerID int64
	Admin   bool

	// ClientContext is a caller-supplied label (hostname, UI name).
	ClientContext string

	CreatedAt     time.Time
	LastActivity  time.Time
	ExpiresAt     time.Time
	ActivityCount int

	// Engine is the per-session encryption engine.
	Engine *envelope.Engine

	// cachedPassphrase is an owned copy of the master passphrase, present
	// only when caching is enabled. Wiped on every exit path.
	cachedPassphrase []byte
	cachedAt         time.Time
}

// Summary is the redacted view of a session returned by ListActive.
// It carries no token and no passphrase material.
type Summary struct {
	ID            string
	OwnerID       int64
	ClientContext string
	CreatedAt     time.Time
	LastActivity  time.Time
	ExpiresAt     time.Time
	ActivityCount int
}

func (s *Session) summary() Summary {
	return Summary{
		ID:            s.ID,
		OwnerID:       s.OwnerID,
		ClientContext: s.ClientContext,
		CreatedAt:     s.CreatedAt,
		LastActivity:  s.LastActivity,
		ExpiresAt:     s.ExpiresAt,
		ActivityCount: s.ActivityCount,
	}
}
