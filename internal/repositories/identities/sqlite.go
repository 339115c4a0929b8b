package identities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dpetrovs/passvault/internal/common"
	"github.com/dpetrovs/passvault/internal/dbx"
	"github.com/dpetrovs/passvault/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const identityColumns = `id, username, password_hash, salt, failed_attempts, locked_until, active, admin, created_at, last_login`

func scanIdentity(row interface{ Scan(...any) error }) (*models.Identity, error) {
	var (
		identity    models.Identity
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
	)
	err := row.Scan(
		&identity.ID, &identity.Username, &identity.PasswordHash, &identity.Salt,
		&identity.FailedAttempts, &lockedUntil, &identity.Active, &identity.Admin,
		&identity.CreatedAt, &lastLogin,
	)
	if err != nil {
		return nil, err
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		identity.LockedUntil = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		identity.LastLogin = &t
	}
	return &identity, nil
}

// Create inserts a new identity and returns it with the generated ID.
// A unique-constraint violation on the username maps to ErrIdentityConflict.
func (r *SQLiteRepository) Create(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	query := `
		INSERT INTO identities (username, password_hash, salt, failed_attempts, active, admin, created_at)
		VALUES (?, ?, ?, 0, ?, ?, ?)
	`
	res, err := r.db.ExecContext(ctx, query,
		identity.Username, identity.PasswordHash, identity.Salt,
		identity.Active, identity.Admin, identity.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, common.ErrIdentityConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	identity.ID = id
	return identity, nil
}

func (r *SQLiteRepository) GetByUsername(ctx context.Context, username string) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE username = ?`
	identity, err := scanIdentity(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return identity, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE id = ?`
	identity, err := scanIdentity(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return identity, nil
}

// UpdateAuthState persists failed_attempts, locked_until and last_login.
func (r *SQLiteRepository) UpdateAuthState(ctx context.Context, identity *models.Identity) error {
	query := `
		UPDATE identities
		SET failed_attempts = ?, locked_until = ?, last_login = ?
		WHERE id = ?
	`
	var lockedUntil, lastLogin any
	if identity.LockedUntil != nil {
		lockedUntil = *identity.LockedUntil
	}
	if identity.LastLogin != nil {
		lastLogin = *identity.LastLogin
	}
	res, err := r.db.ExecContext(ctx, query, identity.FailedAttempts, lockedUntil, lastLogin, identity.ID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// UpdatePasswordHash replaces the stored slow hash.
func (r *SQLiteRepository) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE identities SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// Delete removes the identity; entries cascade at the schema level.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n > 0, nil
}

// isUniqueViolation detects SQLite unique-constraint failures without
// depending on driver-specific error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
