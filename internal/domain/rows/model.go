// Package rows resolves grid row requests against query metadata and saved
// views before handing them to storage.
package rows

import (
	"querygrid/internal/domain/filter"
	"querygrid/internal/domain/query"
	"querygrid/internal/metadata"
)

// Plan is a validated request with the view merged in and every column name
// resolved to its declared spelling.
type Plan struct {
	Def     metadata.QueryDef
	Columns []metadata.ColumnDef
	Filters []filter.Clause
	Sort    []query.SortField

	// Limit 0 means unbounded.
	Offset int
	Limit  int

	ShowRows     query.ShowRows
	Owner        string
	SelectionKey string

	ContainerFilter query.ContainerFilter
	Container       string

	Parameters map[string]string
}

// Paged reports whether the plan fetches a window of a larger result, in which
// case the total row count is computed separately.
func (p Plan) Paged() bool {
	return p.Limit > 0
}
