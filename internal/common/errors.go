// Package common contains shared constants, sentinel errors and small
// helpers used across PassVault components. Callers should use errors.Is
// to match the sentinel values.
package common

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Validation errors, rejected before any I/O.
	ErrInvalidInput = errors.New("invalid input")

	// Identity errors.
	ErrIdentityConflict     = errors.New("username already taken")
	ErrAccountLocked        = errors.New("account locked")
	ErrAuthenticationFailed = errors.New("authentication failed")

	// Session lifecycle errors.
	ErrInvalidSession  = errors.New("invalid session")
	ErrSessionExpired  = errors.New("session expired")
	ErrTooManySessions = errors.New("too many active sessions")

	// Entry access errors.
	ErrOwnershipViolation = errors.New("entry belongs to another identity")

	// Cryptographic failures. ErrCorruptedEnvelope wraps ErrDecryptionFailed
	// so that untrusted callers matching with errors.Is see a single
	// "decryption failed" class and cannot use the split as a format oracle.
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrCorruptedEnvelope = fmt.Errorf("corrupted envelope: %w", ErrDecryptionFailed)

	// Migration errors are fatal: startup must not proceed past them.
	ErrMigrationFailure = errors.New("migration failed")
	ErrBackupIntegrity  = errors.New("backup integrity check failed")
)

// AccountLockedError reports a lockout together with the remaining
// duration. It matches ErrAccountLocked under errors.Is.
type AccountLockedError struct {
	Remaining time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked for another %s", e.Remaining.Round(time.Second))
}

func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}
