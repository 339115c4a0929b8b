// Package rotation implements the master-passphrase rotation workflow:
// re-encrypting every secret an identity owns under a new passphrase,
// atomically.
package rotation

import (
	"context"
	"errors"
	"fmt"

	"github.com/dpetrovs/passvault/internal/common"
	"github.com/dpetrovs/passvault/internal/logging"
	"github.com/dpetrovs/passvault/internal/session"
	"github.com/dpetrovs/passvault/internal/store"
)

// Rotator orchestrates passphrase rotation over the store and the
// session manager.
type Rotator struct {
	store    *store.Store
	sessions *session.Manager
	log      logging.Logger
}

// NewRotator constructs a Rotator.
func NewRotator(st *store.Store, sessions *session.Manager, log logging.Logger) *Rotator {
	return &Rotator{store: st, sessions: sessions, log: log}
}

// Rotate re-encrypts all of the session identity's secrets under
// newPassphrase and returns how many entries were rotated.
//
// The current passphrase is re-verified against the store first. The
// identity's exclusive lock is held across the whole fetch-reencrypt-
// persist sequence, so no ordinary entry write can interleave. Every
// entry is re-encrypted in memory before anything is written; the first
// failure aborts the operation naming the entry. The updated blobs are
// then persisted in a single transaction together with the identity's
// new password hash: a mid-sequence failure leaves zero entries changed.
func (r *Rotator) Rotate(ctx context.Context, token, currentPassphrase, newPassphrase string) (int, error) {
	if len(newPassphrase) < store.MinPasswordLength {
		return 0, fmt.Errorf("%w: new passphrase shorter than %d characters",
			common.ErrInvalidInput, store.MinPasswordLength)
	}

	sess, err := r.sessions.Validate(token)
	if err != nil {
		return 0, err
	}

	identity, err := r.store.GetIdentity(ctx, sess.OwnerID)
	if err != nil {
		return 0, common.ErrorInternal
	}
	if _, err := r.store.Authenticate(ctx, identity.Username, currentPassphrase); err != nil {
		if errors.Is(err, common.ErrAccountLocked) {
			return 0, err
		}
		return 0, common.ErrAuthenticationFailed
	}

	r.store.LockIdentity(sess.OwnerID)
	defer r.store.UnlockIdentity(sess.OwnerID)

	entries, err := r.store.GetEntries(ctx, sess.OwnerID, "")
	if err != nil {
		return 0, err
	}

	oldPass := []byte(currentPassphrase)
	newPass := []byte(newPassphrase)
	defer common.WipeByteArray(oldPass)
	defer common.WipeByteArray(newPass)

	rotated := make(map[int64][]byte, len(entries))
	for _, entry := range entries {
		blob, err := sess.Engine.Rotate(entry.Secret, oldPass, newPass)
		if err != nil {
			// Surfaced as the generic decryption failure; the entry ID
			// tells the operator where to look without leaking why.
			return 0, fmt.Errorf("entry %d: %w", entry.ID, common.ErrDecryptionFailed)
		}
		rotated[entry.ID] = blob
	}

	if err := r.store.ReplaceSecrets(ctx, sess.OwnerID, rotated, newPassphrase); err != nil {
		return 0, err
	}

	r.sessions.ReplaceCachedPassphrase(token, newPass)

	r.log.Info(ctx, "passphrase rotated", "owner_id", sess.OwnerID, "entries", len(rotated))
	return len(rotated), nil
}
