package entries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

const entryColumns = `id, owner_id, label, site, account, secret, notes, favorite, created_at, modified_at`

func scanEntry(row interface{ Scan(...any) error }) (*models.SecretEntry, error) {
	var (
		entry models.SecretEntry
		label sql.NullString
		notes sql.NullString
	)
	err := row.Scan(
		&entry.ID, &entry.OwnerID, &label, &entry.Site, &entry.Account,
		&entry.Secret, &notes, &entry.Favorite, &entry.CreatedAt, &entry.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	if label.Valid {
		s := label.String
		entry.Label = &s
	}
	if notes.Valid {
		s := notes.String
		entry.Notes = &s
	}
	return &entry, nil
}

// Create inserts a new entry and returns it with the generated ID.
func (r *SQLiteRepository) Create(ctx context.Context, entry *models.SecretEntry) (*models.SecretEntry, error) {
	query := `
		INSERT INTO entries (owner_id, label, site, account, secret, notes, favorite, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := r.db.ExecContext(ctx, query,
		entry.OwnerID, nullable(entry.Label), entry.Site, entry.Account,
		entry.Secret, nullable(entry.Notes), entry.Favorite, entry.CreatedAt, entry.ModifiedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	entry.ID = id
	return entry, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.SecretEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE id = ?`
	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select entry: %w", err)
	}
	return entry, nil
}

// ListByOwner returns the owner's entries, optionally filtered by a
// case-insensitive partial match on site or label.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID int64, text string) ([]*models.SecretEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE owner_id = ?`
	args := []any{ownerID}
	if text != "" {
		query += ` AND (site LIKE ? COLLATE NOCASE OR label LIKE ? COLLATE NOCASE)`
		pattern := "%" + text + "%"
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select entries: %w", err)
	}
	defer rows.Close()

	var result []*models.SecretEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Search applies the full filter and returns one page together with the
// total matching count, computed by a window function in the same query.
func (r *SQLiteRepository) Search(ctx context.Context, ownerID int64, filter *models.EntryFilter) (*models.EntryPage, error) {
	query := `SELECT ` + entryColumns + `, COUNT(*) OVER () AS total FROM entries WHERE owner_id = ?`
	args := []any{ownerID}

	if filter.Text != "" {
		query += ` AND (site LIKE ? COLLATE NOCASE OR label LIKE ? COLLATE NOCASE)`
		pattern := "%" + filter.Text + "%"
		args = append(args, pattern, pattern)
	}
	if filter.FavoriteOnly {
		query += ` AND favorite = 1`
	}
	if filter.CreatedFrom != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query += ` AND created_at <= ?`
		args = append(args, *filter.CreatedTo)
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search entries: %w", err)
	}
	defer rows.Close()

	page := &models.EntryPage{}
	for rows.Next() {
		var (
			entry models.SecretEntry
			label sql.NullString
			notes sql.NullString
		)
		if err := rows.Scan(
			&entry.ID, &entry.OwnerID, &label, &entry.Site, &entry.Account,
			&entry.Secret, &notes, &entry.Favorite, &entry.CreatedAt, &entry.ModifiedAt,
			&page.Total,
		); err != nil {
			return nil, err
		}
		if label.Valid {
			s := label.String
			entry.Label = &s
		}
		if notes.Valid {
			s := notes.String
			entry.Notes = &s
		}
		page.Entries = append(page.Entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return page, nil
}

// Update rewrites all mutable columns of the entry. The owner scope is part
// of the WHERE clause, so a row owned by someone else is never touched.
func (r *SQLiteRepository) Update(ctx context.Context, entry *models.SecretEntry) error {
	query := `
		UPDATE entries
		SET label = ?, site = ?, account = ?, secret = ?, notes = ?, favorite = ?, modified_at = ?
		WHERE id = ? AND owner_id = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		nullable(entry.Label), entry.Site, entry.Account, entry.Secret,
		nullable(entry.Notes), entry.Favorite, entry.ModifiedAt,
		entry.ID, entry.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
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

// UpdateSecret replaces the encrypted blob only. Used by the rotation
// workflow inside its wrapping transaction.
func (r *SQLiteRepository) UpdateSecret(ctx context.Context, id, ownerID int64, secret []byte, modifiedAt time.Time) error {
	query := `UPDATE entries SET secret = ?, modified_at = ? WHERE id = ? AND owner_id = ?`
	res, err := r.db.ExecContext(ctx, query, secret, modifiedAt, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to update entry secret: %w", err)
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

func (r *SQLiteRepository) Delete(ctx context.Context, id, ownerID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("failed to delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n > 0, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
