package migrate

import (
	"context"
	"strings"

	"github.com/dpetrovs/passvault/internal/dbx"
)

// baseVersion is the schema version assumed when no metadata row exists.
const baseVersion = 1

// requiredTables must be present in any structurally valid vault file.
var requiredTables = []string{"metadata", "migration_audit", "identities", "entries"}

// baseSchema is the version-1 schema, created on first open.
var baseSchema = []string{
	`CREATE TABLE IF NOT EXISTS metadata (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS migration_audit (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		version     INTEGER NOT NULL,
		description TEXT NOT NULL,
		applied_at  TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS identities (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		username        TEXT NOT NULL UNIQUE,
		password_hash   TEXT NOT NULL,
		salt            BLOB NOT NULL,
		failed_attempts INTEGER NOT NULL DEFAULT 0,
		locked_until    TIMESTAMP,
		created_at      TIMESTAMP NOT NULL,
		last_login      TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS entries (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id    INTEGER NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
		site        TEXT NOT NULL,
		account     TEXT NOT NULL,
		secret      BLOB NOT NULL,
		notes       TEXT,
		created_at  TIMESTAMP NOT NULL,
		modified_at TIMESTAMP NOT NULL
	)`,
}

// Migration is one versioned schema transition. Apply must tolerate
// partial re-runs: "duplicate column name" and "already exists" are not
// failures on a second attempt.
type Migration struct {
	Version     int
	Description string
	Apply       func(ctx context.Context, tx dbx.DBTX) error
}

// Registered returns the built-in migration set in ascending version order.
func Registered() []Migration {
	return []Migration{
		{
			Version:     2,
			Description: "add entry labels and favorite flag, index owner lookups",
			Apply: func(ctx context.Context, tx dbx.DBTX) error {
				return execTolerant(ctx, tx,
					`ALTER TABLE entries ADD COLUMN label TEXT`,
					`ALTER TABLE entries ADD COLUMN favorite INTEGER NOT NULL DEFAULT 0`,
					`CREATE INDEX IF NOT EXISTS idx_entries_owner_site ON entries(owner_id, site)`,
				)
			},
		},
		{
			Version:     3,
			Description: "add identity active and admin flags",
			Apply: func(ctx context.Context, tx dbx.DBTX) error {
				return execTolerant(ctx, tx,
					`ALTER TABLE identities ADD COLUMN active INTEGER NOT NULL DEFAULT 1`,
					`ALTER TABLE identities ADD COLUMN admin INTEGER NOT NULL DEFAULT 0`,
				)
			},
		},
	}
}

// execTolerant runs each statement, ignoring errors that indicate the
// change was already applied by an earlier partial run.
func execTolerant(ctx context.Context, tx dbx.DBTX, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if isAlreadyApplied(err) {
				continue
			}
			return err
		}
	}
	return nil
}

func isAlreadyApplied(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "duplicate column name") ||
		strings.Contains(msg, "already exists")
}
