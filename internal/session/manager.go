package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dpetrovs/passvault/internal/clockx"
	"github.com/dpetrovs/passvault/internal/common"
	"github.com/dpetrovs/passvault/internal/envelope"
	"github.com/dpetrovs/passvault/internal/logging"
	"github.com/dpetrovs/passvault/internal/models"
)

// CacheMode controls whether and for how long the raw master passphrase
// is kept in memory. Caching the plaintext passphrase is a deliberate
// convenience/risk trade-off and is off unless explicitly enabled.
type CacheMode int

const (
	// CacheNever keeps no passphrase material at all.
	CacheNever CacheMode = iota
	// CacheTTL keeps the passphrase for Config.CacheTTL after each issue.
	CacheTTL
	// CacheSession keeps the passphrase for the session's lifetime.
	CacheSession
)

// ParseCacheMode maps config strings to a CacheMode.
func ParseCacheMode(s string) (CacheMode, error) {
	switch s {
	case "", "never":
		return CacheNever, nil
	case "ttl":
		return CacheTTL, nil
	case "session":
		return CacheSession, nil
	default:
		return CacheNever, fmt.Errorf("%w: unknown passphrase cache mode %q", common.ErrInvalidInput, s)
	}
}

// Config carries the session manager's tunables.
type Config struct {
	// Timeout is the session lifetime from issue (default 8h).
	Timeout time.Duration

	// MaxPerIdentity caps concurrent active sessions per identity.
	MaxPerIdentity int

	// SweepInterval is the background purge period.
	SweepInterval time.Duration

	// CacheMode / CacheTTL configure the passphrase cache.
	CacheMode CacheMode
	CacheTTL  time.Duration

	// EnvelopeIterations is the PBKDF2 iteration count for the
	// per-session encryption engines.
	EnvelopeIterations int
}

// Authenticator is the slice of the credential store the manager needs.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*models.Identity, error)
}

// Manager owns the session map, the passphrase cache and the sweep
// worker. All public methods are safe for concurrent use; the sweep
// shares the same lock discipline.
type Manager struct {
	auth Authenticator
	log  logging.Logger
	now  clockx.Now
	cfg  Config

	mu       sync.Mutex
	sessions map[string]*Session

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewManager constructs a Manager. Call Start to launch the sweep worker
// and Stop on shutdown.
func NewManager(auth Authenticator, log logging.Logger, now clockx.Now, cfg Config) (*Manager, error) {
	if cfg.Timeout <= 0 || cfg.MaxPerIdentity <= 0 || cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("%w: session timeout, cap and sweep interval must be positive", common.ErrInvalidInput)
	}
	if cfg.CacheMode == CacheTTL && cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("%w: cache TTL must be positive in ttl mode", common.ErrInvalidInput)
	}
	if cfg.EnvelopeIterations == 0 {
		cfg.EnvelopeIterations = envelope.DefaultIterations
	}
	return &Manager{
		auth:     auth,
		log:      log,
		now:      now,
		cfg:      cfg,
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the background sweep worker.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.sweepLoop(ctx)
}

// Stop signals the sweep worker, waits for it to exit and wipes every
// cached passphrase. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for token, s := range m.sessions {
		common.WipeByteArray(s.cachedPassphrase)
		s.cachedPassphrase = nil
		delete(m.sessions, token)
	}
}

func (m *Manager) sweepLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.log.Debug(ctx, "expired sessions purged", "count", n)
			}
		}
	}
}

// Sweep purges every expired session and returns how many were removed.
// It is also called on the sweep interval by the background worker.
//
// In ttl mode it also wipes lapsed passphrase caches of sessions that
// are themselves still live, so stale passphrase bytes never wait for a
// CachedPassphrase call to be zeroed.
func (m *Manager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for token, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			m.dropLocked(token, s)
			removed++
			continue
		}
		if m.cfg.CacheMode == CacheTTL && s.cachedPassphrase != nil &&
			now.After(s.cachedAt.Add(m.cfg.CacheTTL)) {
			common.WipeByteArray(s.cachedPassphrase)
			s.cachedPassphrase = nil
		}
	}
	return removed
}

// dropLocked removes a session and wipes its cached passphrase.
// Caller holds m.mu.
func (m *Manager) dropLocked(token string, s *Session) {
	common.WipeByteArray(s.cachedPassphrase)
	s.cachedPassphrase = nil
	delete(m.sessions, token)
}

// Issue authenticates the caller and creates a session, returning the
// opaque token. Expired sessions for the identity are purged first; if
// the configured per-identity cap is still exceeded the call fails with
// ErrTooManySessions.
func (m *Manager) Issue(ctx context.Context, username, passphrase, clientContext string) (string, error) {
	identity, err := m.auth.Authenticate(ctx, username, passphrase)
	if err != nil {
		return "", err
	}

	engine, err := envelope.New(m.cfg.EnvelopeIterations)
	if err != nil {
		return "", err
	}

	token, err := common.MakeRandHexString(TokenBytes)
	if err != nil {
		return "", common.ErrorInternal
	}

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	active := 0
	for t, s := range m.sessions {
		if s.OwnerID != identity.ID {
			continue
		}
		if now.After(s.ExpiresAt) {
			m.dropLocked(t, s)
			continue
		}
		active++
	}
	if active >= m.cfg.MaxPerIdentity {
		return "", common.ErrTooManySessions
	}

	s := &Session{
		ID:            uuid.NewString(),
		Token:         token,
		OwnerID:       identity.ID,
		Admin:         identity.Admin,
		ClientContext: clientContext,
		CreatedAt:     now,
		LastActivity:  now,
		ExpiresAt:     now.Add(m.cfg.Timeout),
		Engine:        engine,
	}
	if m.cfg.CacheMode != CacheNever {
		s.cachedPassphrase = []byte(passphrase)
		s.cachedAt = now
	}
	m.sessions[token] = s

	m.log.Info(ctx, "session issued", "session_id", s.ID, "owner_id", s.OwnerID, "client", clientContext)
	return token, nil
}

// Validate looks the token up, lazily purging it if expired, and stamps
// activity on success.
func (m *Manager) Validate(token string) (*Session, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return nil, common.ErrInvalidSession
	}
	if now.After(s.ExpiresAt) {
		m.dropLocked(token, s)
		return nil, common.ErrSessionExpired
	}

	s.LastActivity = now
	s.ActivityCount++
	return s, nil
}

// Logout removes the session, wiping any cached passphrase material.
// Returns false if the token is unknown.
func (m *Manager) Logout(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return false
	}
	m.dropLocked(token, s)
	return true
}

// Extend pushes the session's expiry forward by the given number of
// hours, or by the configured timeout when hours <= 0.
func (m *Manager) Extend(token string, hours int) error {
	now := m.now()
	extension := m.cfg.Timeout
	if hours > 0 {
		extension = time.Duration(hours) * time.Hour
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return common.ErrInvalidSession
	}
	if now.After(s.ExpiresAt) {
		m.dropLocked(token, s)
		return common.ErrSessionExpired
	}
	s.ExpiresAt = now.Add(extension)
	return nil
}

// ListActive returns redacted summaries of all live sessions. The
// requester's session must be flagged admin.
func (m *Manager) ListActive(requesterToken string) ([]Summary, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	requester, ok := m.sessions[requesterToken]
	if !ok {
		return nil, common.ErrInvalidSession
	}
	if now.After(requester.ExpiresAt) {
		m.dropLocked(requesterToken, requester)
		return nil, common.ErrSessionExpired
	}
	if !requester.Admin {
		return nil, common.ErrOwnershipViolation
	}

	var result []Summary
	for _, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			continue
		}
		result = append(result, s.summary())
	}
	return result, nil
}

// CachedPassphrase returns an owned copy of the cached passphrase for the
// token, if caching is enabled and the cached value is still fresh. In
// ttl mode a stale value is wiped on access.
func (m *Manager) CachedPassphrase(token string) ([]byte, bool) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok || s.cachedPassphrase == nil {
		return nil, false
	}
	if m.cfg.CacheMode == CacheTTL && now.After(s.cachedAt.Add(m.cfg.CacheTTL)) {
		common.WipeByteArray(s.cachedPassphrase)
		s.cachedPassphrase = nil
		return nil, false
	}

	out := make([]byte, len(s.cachedPassphrase))
	copy(out, s.cachedPassphrase)
	return out, true
}

// ReplaceCachedPassphrase swaps the cached passphrase after a successful
// rotation. The old value is wiped; in never mode nothing is stored.
func (m *Manager) ReplaceCachedPassphrase(token string, passphrase []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[token]
	if !ok {
		return
	}
	common.WipeByteArray(s.cachedPassphrase)
	s.cachedPassphrase = nil
	if m.cfg.CacheMode == CacheNever {
		return
	}
	s.cachedPassphrase = make([]byte, len(passphrase))
	copy(s.cachedPassphrase, passphrase)
	s.cachedAt = m.now()
}
