// Package migrate implements the vault's schema migration engine: a
// state machine over an integer schema version recorded in the metadata
// table, with mandatory verified file backups before any transition and
// an append-only audit trail of applied migrations.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"

	"github.com/dpetrovs/passvault/internal/clockx"
	"github.com/dpetrovs/passvault/internal/common"
	"github.com/dpetrovs/passvault/internal/dbx"
	"github.com/dpetrovs/passvault/internal/logging"
	"github.com/dpetrovs/passvault/internal/models"
	"github.com/dpetrovs/passvault/internal/repositories/audit"
	"github.com/dpetrovs/passvault/internal/repositories/metadata"
)

// SchemaVersionKey is the metadata key holding the current schema version.
const SchemaVersionKey = "schema_version"

// Engine evolves the vault schema. It runs once at startup, before any
// other component touches the store.
type Engine struct {
	db         *sql.DB
	path       string
	log        logging.Logger
	now        clockx.Now
	migrations []Migration
}

// NewEngine constructs an Engine for the database at path. An empty path
// means the database has no backing file (in-memory), which disables
// file backups.
func NewEngine(db *sql.DB, path string, log logging.Logger, now clockx.Now) *Engine {
	migrations := Registered()
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return &Engine{db: db, path: path, log: log, now: now, migrations: migrations}
}

// EnsureBaseSchema creates the version-1 tables if they do not exist yet.
func (e *Engine) EnsureBaseSchema(ctx context.Context) error {
	for _, stmt := range baseSchema {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: creating base schema: %v", common.ErrMigrationFailure, err)
		}
	}
	return nil
}

// CurrentVersion reads the schema version from metadata. A missing row
// means baseVersion.
func (e *Engine) CurrentVersion(ctx context.Context) (int, error) {
	value, ok, err := metadata.NewSQLiteRepository(e.db).Get(ctx, SchemaVersionKey)
	if err != nil {
		return 0, err
	}
	if !ok {
		return baseVersion, nil
	}
	version, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed schema version %q", common.ErrMigrationFailure, value)
	}
	return version, nil
}

func (e *Engine) targetVersion() int {
	if len(e.migrations) == 0 {
		return baseVersion
	}
	return e.migrations[len(e.migrations)-1].Version
}

// NeedsMigration reports whether any registered migration is newer than
// the current schema version.
func (e *Engine) NeedsMigration(ctx context.Context) (bool, error) {
	current, err := e.CurrentVersion(ctx)
	if err != nil {
		return false, err
	}
	return current < e.targetVersion(), nil
}

// Apply migrates the schema to the newest registered version and reports
// whether anything was done.
//
// If migration is needed, a file backup is created and verified first;
// a failed verification aborts with ErrBackupIntegrity before the live
// store is touched. Each migration then runs in its own transaction
// together with the metadata version bump and the audit record. The first
// failure rolls back that transaction and aborts the sequence, leaving
// the store at the last committed version. The backup stays on disk for
// manual recovery; the engine never auto-restores.
func (e *Engine) Apply(ctx context.Context) (bool, error) {
	current, err := e.CurrentVersion(ctx)
	if err != nil {
		return false, err
	}
	if current >= e.targetVersion() {
		return false, nil
	}

	if e.path != "" {
		backupPath, err := e.Backup(ctx)
		if err != nil {
			return false, fmt.Errorf("%w: %v", common.ErrBackupIntegrity, err)
		}
		if err := e.verifyBackup(ctx, backupPath); err != nil {
			return false, err
		}
		e.log.Info(ctx, "pre-migration backup verified", "path", backupPath)
	}

	for _, m := range e.migrations {
		if m.Version <= current {
			continue
		}
		if err := e.applyOne(ctx, m); err != nil {
			return false, fmt.Errorf("%w: version %d: %v", common.ErrMigrationFailure, m.Version, err)
		}
		e.log.Info(ctx, "migration applied", "version", m.Version, "description", m.Description)
	}
	return true, nil
}

// applyOne runs a single migration, the version bump and the audit record
// in one transaction.
func (e *Engine) applyOne(ctx context.Context, m Migration) error {
	return dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := m.Apply(ctx, tx); err != nil {
			return err
		}
		if err := metadata.NewSQLiteRepository(tx).Set(ctx, SchemaVersionKey, strconv.Itoa(m.Version)); err != nil {
			return err
		}
		return audit.NewSQLiteRepository(tx).Append(ctx, &models.MigrationAudit{
			Version:     m.Version,
			Description: m.Description,
			AppliedAt:   e.now().UTC(),
		})
	})
}
