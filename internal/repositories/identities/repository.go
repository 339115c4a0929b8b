// Package identities provides persistence for vault identities.
package identities

import (
	"context"

	"github.com/dpetrovs/passvault/internal/models"
)

// Repository is the storage contract for identities. Implementations map
// "no such row" to common.ErrorNotFound.
type Repository interface {
	Create(ctx context.Context, identity *models.Identity) (*models.Identity, error)
	GetByUsername(ctx context.Context, username string) (*models.Identity, error)
	GetByID(ctx context.Context, id int64) (*models.Identity, error)
	// UpdateAuthState persists the mutable authentication fields:
	// failed attempt counter, lockout timestamp and last login.
	UpdateAuthState(ctx context.Context, identity *models.Identity) error
	// UpdatePasswordHash replaces the stored slow hash, used when the
	// master passphrase is rotated.
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	Delete(ctx context.Context, id int64) (bool, error)
}
