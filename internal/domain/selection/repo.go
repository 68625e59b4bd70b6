// Package selection stores which grid rows a user has checked. Selections
// are keyed by owner and selection key and survive page reloads until the
// janitor expires them.
package selection

import (
	"context"
	"time"

	"querygrid/internal/domain/query"
)

// Repository persists selections. Every write refreshes the key's touch time.
type Repository interface {
	Get(ctx context.Context, owner, key string) ([]string, error)
	Count(ctx context.Context, owner, key string) (int, error)

	// Add inserts ids not yet selected and returns how many were new.
	Add(ctx context.Context, owner, key string, ids []string) (int, error)
	Remove(ctx context.Context, owner, key string, ids []string) (int, error)
	Clear(ctx context.Context, owner, key string) (int, error)

	// PurgeExpired drops selections untouched since before.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// KeySource lists the keys of every row a grid request matches.
type KeySource interface {
	SelectKeys(ctx context.Context, req query.Request) ([]string, error)
}
