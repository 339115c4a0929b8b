// Package audit provides the append-only migration audit table.
package audit

import (
	"context"

	"github.com/dpetrovs/passvault/internal/models"
)

// Repository records applied migrations for traceability. Records are
// never updated or deleted.
type Repository interface {
	Append(ctx context.Context, record *models.MigrationAudit) error
	List(ctx context.Context) ([]*models.MigrationAudit, error)
}
