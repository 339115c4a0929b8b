// Package models defines the typed records persisted by the vault.
// Optional fields are pointers so that "absent" is explicit.
package models

import "time"

// Identity is an account that can authenticate and own secret entries.
type Identity struct {
	// ID is the stable integer key referenced by entries.
	ID int64

	// Username is stored case-normalized (lowercase) and unique.
	Username string

	// PasswordHash is the bcrypt hash of the master passphrase.
	PasswordHash string

	// Salt is per-identity random material for key-derivation use.
	Salt []byte

	// FailedAttempts counts consecutive failed authentications.
	// Reset to zero only on a successful authentication.
	FailedAttempts int

	// LockedUntil, when set and in the future, blocks authentication
	// regardless of password correctness.
	LockedUntil *time.Time

	// Active marks the identity as enabled.
	Active bool

	// Admin permits administrative calls such as session listing.
	Admin bool

	CreatedAt time.Time
	LastLogin *time.Time
}

// SecretEntry is one stored credential, encrypted at rest.
type SecretEntry struct {
	ID      int64
	OwnerID int64

	// Label is an optional human-friendly name.
	Label *string

	// Site identifies the website or service.
	Site string

	// Account is the username/login at the site.
	Account string

	// Secret is the encrypted envelope blob; never plaintext.
	Secret []byte

	Notes    *string
	Favorite bool

	CreatedAt time.Time
	// ModifiedAt is stamped automatically on every successful mutation.
	ModifiedAt time.Time
}

// SchemaMetadata is a key/value row in the metadata table. The key
// "schema_version" is the single source of truth for the current schema
// version.
type SchemaMetadata struct {
	Key       string
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MigrationAudit is an append-only record of one applied migration.
type MigrationAudit struct {
	ID          int64
	Version     int
	Description string
	AppliedAt   time.Time
}

// EntryFilter narrows GetEntries/SearchEntries results. Zero values mean
// "no constraint".
type EntryFilter struct {
	// Text matches site or label, case-insensitive, partial.
	Text string

	// FavoriteOnly keeps only favorite entries.
	FavoriteOnly bool

	// CreatedFrom/CreatedTo bound the creation timestamp (inclusive).
	CreatedFrom *time.Time
	CreatedTo   *time.Time

	// Limit/Offset paginate. Limit <= 0 means no limit.
	Limit  int
	Offset int
}

// EntryPatch carries only the fields to change; nil fields are left as-is.
type EntryPatch struct {
	Label    *string
	Site     *string
	Account  *string
	Secret   []byte
	Notes    *string
	Favorite *bool
}

// EntryPage is one page of search results together with the total number
// of matching rows, so callers need a single round trip.
type EntryPage struct {
	Entries []*SecretEntry
	Total   int
}
