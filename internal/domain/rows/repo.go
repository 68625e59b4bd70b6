package rows

import (
	"context"

	"querygrid/internal/domain/query"
)

// Repository runs resolved plans.
type Repository interface {
	// Select returns one page of rows. TotalCount is set for paged plans.
	Select(ctx context.Context, plan Plan) (query.Result, error)

	// SelectKeys returns the key of every row the plan matches, ignoring
	// paging and column choice.
	SelectKeys(ctx context.Context, plan Plan) ([]string, error)
}

// ViewResolver finds a saved view. An empty name asks for the caller's
// default view; ok is false when there is none.
type ViewResolver interface {
	ResolveView(ctx context.Context, schema, queryName, name string) (view query.ViewDef, ok bool, err error)
}
