package audit

import (
	"context"
	"fmt"

	"github.com/dpetrovs/passvault/internal/dbx"
	"github.com/dpetrovs/passvault/internal/models"
)

// SQLiteRepository implements Repository over a DBTX.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Append(ctx context.Context, record *models.MigrationAudit) error {
	query := `INSERT INTO migration_audit (version, description, applied_at) VALUES (?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, record.Version, record.Description, record.AppliedAt)
	if err != nil {
		return fmt.Errorf("failed to append migration audit: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.MigrationAudit, error) {
	query := `SELECT id, version, description, applied_at FROM migration_audit ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list migration audit: %w", err)
	}
	defer rows.Close()

	var result []*models.MigrationAudit
	for rows.Next() {
		var item models.MigrationAudit
		if err := rows.Scan(&item.ID, &item.Version, &item.Description, &item.AppliedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
