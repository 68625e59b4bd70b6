// Package views manages saved custom views: named column sets with filters,
// sort and page size attached to a query.
package views

import (
	"context"

	"querygrid/internal/domain/query"
)

// SharedOwner owns views visible to every user.
const SharedOwner = ""

// Repository persists views per schema.query and owner.
type Repository interface {
	// List returns the views of owner and the shared views. Owner and Shared
	// are filled in on every returned view.
	List(ctx context.Context, schema, queryName, owner string) ([]query.ViewDef, error)

	// Save upserts views under owner.
	Save(ctx context.Context, schema, queryName, owner string, views []query.ViewDef) error

	// Delete removes one view and reports whether it existed.
	Delete(ctx context.Context, schema, queryName, owner, name string) (bool, error)
}
