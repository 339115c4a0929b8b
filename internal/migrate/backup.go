package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dpetrovs/passvault/internal/common"
)

// backupTimeLayout names backup files sortably, e.g.
// vault.db.bak-20250114T093005.
const (
	backupTimeLayout = "20060102T150405"
	backupInfix      = ".bak-"
)

// Backup writes a consistent snapshot of the live database to a
// timestamped file beside it and returns the backup path. VACUUM INTO
// produces a compact copy that is safe against concurrent readers.
func (e *Engine) Backup(ctx context.Context) (string, error) {
	if e.path == "" {
		return "", fmt.Errorf("database has no backing file")
	}
	backupPath := e.path + backupInfix + e.now().UTC().Format(backupTimeLayout)
	if _, err := os.Stat(backupPath); err == nil {
		return "", fmt.Errorf("backup file %s already exists", backupPath)
	}
	if _, err := e.db.ExecContext(ctx, `VACUUM INTO ?`, backupPath); err != nil {
		return "", fmt.Errorf("vacuum into backup: %w", err)
	}
	return backupPath, nil
}

// verifyBackup opens the backup read-only and checks that it is
// structurally sound and contains every required table. Any problem is
// ErrBackupIntegrity.
func (e *Engine) verifyBackup(ctx context.Context, backupPath string) error {
	db, err := sql.Open("sqlite", "file:"+backupPath+"?mode=ro")
	if err != nil {
		return fmt.Errorf("%w: opening backup: %v", common.ErrBackupIntegrity, err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil {
		return fmt.Errorf("%w: integrity check: %v", common.ErrBackupIntegrity, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: integrity check returned %q", common.ErrBackupIntegrity, result)
	}

	for _, table := range requiredTables {
		var name string
		err := db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			return fmt.Errorf("%w: required table %q missing from backup", common.ErrBackupIntegrity, table)
		}
	}
	return nil
}

// CleanupOldBackups deletes backup files for this database older than the
// retention window and returns how many were removed.
func (e *Engine) CleanupOldBackups(ctx context.Context, retentionDays int) (int, error) {
	if e.path == "" || retentionDays <= 0 {
		return 0, nil
	}
	matches, err := filepath.Glob(e.path + backupInfix + "*")
	if err != nil {
		return 0, err
	}

	cutoff := e.now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				return removed, fmt.Errorf("removing backup %s: %w", path, err)
			}
			removed++
			e.log.Info(ctx, "old backup removed", "path", path)
		}
	}
	return removed, nil
}
