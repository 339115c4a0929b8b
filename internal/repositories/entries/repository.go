// Package entries provides persistence for encrypted secret entries.
// Every operation is scoped by the owning identity: there is no way to
// read or mutate another identity's rows through this interface.
package entries

import (
	"context"
	"time"

	"github.com/dpetrovs/passvault/internal/models"
)

// Repository is the storage contract for secret entries.
type Repository interface {
	Create(ctx context.Context, entry *models.SecretEntry) (*models.SecretEntry, error)
	GetByID(ctx context.Context, id int64) (*models.SecretEntry, error)
	ListByOwner(ctx context.Context, ownerID int64, text string) ([]*models.SecretEntry, error)
	// Search applies the full filter (text, favorite, date range,
	// pagination) and returns the page plus the total matching count in
	// a single query.
	Search(ctx context.Context, ownerID int64, filter *models.EntryFilter) (*models.EntryPage, error)
	Update(ctx context.Context, entry *models.SecretEntry) error
	// UpdateSecret replaces only the encrypted blob and stamps modified_at.
	UpdateSecret(ctx context.Context, id, ownerID int64, secret []byte, modifiedAt time.Time) error
	Delete(ctx context.Context, id, ownerID int64) (bool, error)
}
