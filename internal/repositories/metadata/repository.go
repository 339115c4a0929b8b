// Package metadata provides the key/value metadata table, the single
// source of truth for the current schema version.
package metadata

import "context"

// Repository is the storage contract for schema metadata.
type Repository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
