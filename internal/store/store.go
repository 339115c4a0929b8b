// Package store implements the credential store: identity management with
// lockout-aware authentication, and owner-scoped CRUD over encrypted
// secret entries.
//
// All mutating operations are serialized by a store-wide write mutex
// around their full read-check-write sequence; reads go straight to the
// storage engine, which runs in WAL mode and supports concurrent readers.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dpetrovs/passvault/internal/clockx"
	"github.com/dpetrovs/passvault/internal/common"
	"github.com/dpetrovs/passvault/internal/dbx"
	"github.com/dpetrovs/passvault/internal/logging"
	"github.com/dpetrovs/passvault/internal/models"
	"github.com/dpetrovs/passvault/internal/repositories/entries"
	"github.com/dpetrovs/passvault/internal/repositories/identities"
)

const (
	// MinPasswordLength is the minimum master passphrase length.
	MinPasswordLength = 8

	// MinBcryptCost is the lowest acceptable slow-hash cost factor.
	MinBcryptCost = 10

	maxFieldLength = 512
	maxNotesLength = 4096
)

// Config carries the store's tunables.
type Config struct {
	// BcryptCost is the slow-hash cost factor. Values below
	// MinBcryptCost are rejected.
	BcryptCost int

	// LockoutThreshold is the number of consecutive failed
	// authentications that triggers a lockout.
	LockoutThreshold int

	// LockoutDuration is how long a triggered lockout lasts.
	LockoutDuration time.Duration
}

// Store is the credential store service.
type Store struct {
	db         *sql.DB
	identities identities.Repository
	entries    entries.Repository
	log        logging.Logger
	now        clockx.Now
	cfg        Config

	// writeMu serializes every mutating read-check-write sequence.
	writeMu       sync.Mutex
	identityLocks *keyedLocks
}

// New constructs a Store over the given database handle.
func New(db *sql.DB, log logging.Logger, now clockx.Now, cfg Config) (*Store, error) {
	if cfg.BcryptCost < MinBcryptCost {
		return nil, fmt.Errorf("%w: bcrypt cost %d below minimum %d",
			common.ErrInvalidInput, cfg.BcryptCost, MinBcryptCost)
	}
	if cfg.LockoutThreshold <= 0 || cfg.LockoutDuration <= 0 {
		return nil, fmt.Errorf("%w: lockout threshold and duration must be positive", common.ErrInvalidInput)
	}
	return &Store{
		db:            db,
		identities:    identities.NewSQLiteRepository(db),
		entries:       entries.NewSQLiteRepository(db),
		log:           log,
		now:           now,
		cfg:           cfg,
		identityLocks: newKeyedLocks(),
	}, nil
}

// DB exposes the underlying handle for components that need their own
// transactions (migration engine, rotation workflow).
func (s *Store) DB() *sql.DB {
	return s.db
}

// LockIdentity acquires the per-identity exclusive lock. The rotation
// workflow holds it across its whole fetch-reencrypt-persist sequence.
func (s *Store) LockIdentity(id int64) {
	s.identityLocks.Lock(id)
}

// UnlockIdentity releases the per-identity exclusive lock.
func (s *Store) UnlockIdentity(id int64) {
	s.identityLocks.Unlock(id)
}

// NormalizeUsername lowercases and trims a username for case-insensitive
// uniqueness.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// CreateIdentity registers a new identity and returns its ID.
func (s *Store) CreateIdentity(ctx context.Context, username, password string) (int64, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return 0, fmt.Errorf("%w: username is empty", common.ErrInvalidInput)
	}
	if len(password) < MinPasswordLength {
		return 0, fmt.Errorf("%w: password shorter than %d characters",
			common.ErrInvalidInput, MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return 0, fmt.Errorf("hashing password: %w", err)
	}

	identity := &models.Identity{
		Username:     username,
		PasswordHash: string(hash),
		Salt:         common.GenerateRandByteArray(32),
		Active:       true,
		CreatedAt:    s.now().UTC(),
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	identity, err = s.identities.Create(ctx, identity)
	if err != nil {
		return 0, err
	}

	s.log.Info(ctx, "identity created", "id", identity.ID, "username", username)
	return identity.ID, nil
}

// Authenticate verifies username/password and returns the identity.
//
// A lockout in effect fails with AccountLockedError (carrying the
// remaining duration) even for a correct password. Failed attempts are
// counted; reaching the threshold sets locked_until. The full
// read-modify-write is serialized by the store write lock, so concurrent
// attempts cannot bypass the counter.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*models.Identity, error) {
	username = NormalizeUsername(username)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	identity, err := s.identities.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrAuthenticationFailed
		}
		return nil, common.ErrorInternal
	}

	now := s.now().UTC()

	if identity.LockedUntil != nil && identity.LockedUntil.After(now) {
		return nil, &common.AccountLockedError{Remaining: identity.LockedUntil.Sub(now)}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		identity.FailedAttempts++
		if identity.FailedAttempts >= s.cfg.LockoutThreshold {
			lockedUntil := now.Add(s.cfg.LockoutDuration)
			identity.LockedUntil = &lockedUntil
			s.log.Warn(ctx, "identity locked out", "id", identity.ID, "until", lockedUntil)
		}
		if err := s.identities.UpdateAuthState(ctx, identity); err != nil {
			return nil, common.ErrorInternal
		}
		return nil, common.ErrAuthenticationFailed
	}

	identity.FailedAttempts = 0
	identity.LockedUntil = nil
	identity.LastLogin = &now
	if err := s.identities.UpdateAuthState(ctx, identity); err != nil {
		return nil, common.ErrorInternal
	}

	return identity, nil
}

// GetIdentity returns the identity by ID.
func (s *Store) GetIdentity(ctx context.Context, id int64) (*models.Identity, error) {
	return s.identities.GetByID(ctx, id)
}

// DeleteIdentity removes an identity; its entries cascade.
func (s *Store) DeleteIdentity(ctx context.Context, id int64) (bool, error) {
	s.identityLocks.Lock(id)
	defer s.identityLocks.Unlock(id)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.identities.Delete(ctx, id)
}

func validateField(name, value string, required bool) (string, error) {
	value = strings.TrimSpace(value)
	if required && value == "" {
		return "", fmt.Errorf("%w: %s is empty", common.ErrInvalidInput, name)
	}
	if len(value) > maxFieldLength {
		return "", fmt.Errorf("%w: %s exceeds %d characters", common.ErrInvalidInput, name, maxFieldLength)
	}
	return value, nil
}

// AddEntry stores a new encrypted entry for ownerID and returns its ID.
// The secret must already be an envelope blob; the store never sees
// plaintext secrets.
func (s *Store) AddEntry(ctx context.Context, ownerID int64, site, account string, secret []byte, label, notes *string) (int64, error) {
	site, err := validateField("site", site, true)
	if err != nil {
		return 0, err
	}
	account, err = validateField("account", account, true)
	if err != nil {
		return 0, err
	}
	if len(secret) == 0 {
		return 0, fmt.Errorf("%w: secret is empty", common.ErrInvalidInput)
	}
	if label != nil {
		v, err := validateField("label", *label, false)
		if err != nil {
			return 0, err
		}
		label = &v
	}
	if notes != nil && len(*notes) > maxNotesLength {
		return 0, fmt.Errorf("%w: notes exceed %d characters", common.ErrInvalidInput, maxNotesLength)
	}

	s.identityLocks.Lock(ownerID)
	defer s.identityLocks.Unlock(ownerID)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.identities.GetByID(ctx, ownerID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return 0, fmt.Errorf("%w: owner %d does not exist", common.ErrInvalidInput, ownerID)
		}
		return 0, err
	}

	now := s.now().UTC()
	entry := &models.SecretEntry{
		OwnerID:    ownerID,
		Label:      label,
		Site:       site,
		Account:    account,
		Secret:     secret,
		Notes:      notes,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	entry, err = s.entries.Create(ctx, entry)
	if err != nil {
		return 0, err
	}
	return entry.ID, nil
}

// GetEntries lists ownerID's entries, optionally filtered by a
// case-insensitive partial match on site or label.
func (s *Store) GetEntries(ctx context.Context, ownerID int64, text string) ([]*models.SecretEntry, error) {
	return s.entries.ListByOwner(ctx, ownerID, text)
}

// SearchEntries is the advanced listing: text, favorite and date-range
// filters with pagination, returning the page plus the total matching
// count in one call.
func (s *Store) SearchEntries(ctx context.Context, ownerID int64, filter *models.EntryFilter) (*models.EntryPage, error) {
	if filter == nil {
		filter = &models.EntryFilter{}
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("%w: negative limit or offset", common.ErrInvalidInput)
	}
	return s.entries.Search(ctx, ownerID, filter)
}

// UpdateEntry applies the patch to the entry. Only non-nil patch fields
// change; modified_at is stamped on any successful write. Returns false
// when the entry does not exist, and ErrOwnershipViolation when it exists
// but belongs to a different identity.
func (s *Store) UpdateEntry(ctx context.Context, entryID, ownerID int64, patch *models.EntryPatch) (bool, error) {
	if patch == nil {
		return false, fmt.Errorf("%w: empty patch", common.ErrInvalidInput)
	}

	s.identityLocks.Lock(ownerID)
	defer s.identityLocks.Unlock(ownerID)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, err
	}
	if entry.OwnerID != ownerID {
		return false, common.ErrOwnershipViolation
	}

	if patch.Site != nil {
		site, err := validateField("site", *patch.Site, true)
		if err != nil {
			return false, err
		}
		entry.Site = site
	}
	if patch.Account != nil {
		account, err := validateField("account", *patch.Account, true)
		if err != nil {
			return false, err
		}
		entry.Account = account
	}
	if patch.Label != nil {
		entry.Label = patch.Label
	}
	if patch.Secret != nil {
		entry.Secret = patch.Secret
	}
	if patch.Notes != nil {
		entry.Notes = patch.Notes
	}
	if patch.Favorite != nil {
		entry.Favorite = *patch.Favorite
	}
	entry.ModifiedAt = s.now().UTC()

	if err := s.entries.Update(ctx, entry); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteEntry removes the entry if it exists and belongs to ownerID.
// Returns false when not found, ErrOwnershipViolation when owned by
// someone else.
func (s *Store) DeleteEntry(ctx context.Context, entryID, ownerID int64) (bool, error) {
	s.identityLocks.Lock(ownerID)
	defer s.identityLocks.Unlock(ownerID)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, err
	}
	if entry.OwnerID != ownerID {
		return false, common.ErrOwnershipViolation
	}

	return s.entries.Delete(ctx, entryID, ownerID)
}

// ReplaceSecrets rewrites the encrypted blobs of the given entries and
// the identity's password hash in a single transaction. Either every row
// is updated or none is; a missing row aborts the whole batch. Callers
// must already hold the identity lock.
func (s *Store) ReplaceSecrets(ctx context.Context, ownerID int64, secrets map[int64][]byte, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return fmt.Errorf("%w: password shorter than %d characters",
			common.ErrInvalidInput, MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	now := s.now().UTC()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		entryRepo := entries.NewSQLiteRepository(tx)
		for id, secret := range secrets {
			if err := entryRepo.UpdateSecret(ctx, id, ownerID, secret, now); err != nil {
				return fmt.Errorf("entry %d: %w", id, err)
			}
		}
		return identities.NewSQLiteRepository(tx).UpdatePasswordHash(ctx, ownerID, string(hash))
	})
}
