// Package query defines the contract of the row-fetch, selection and view
// collaborators that grid regions talk to.
package query

import (
	"strings"

	"querygrid/internal/core/apperror"
	"querygrid/internal/domain/filter"
)

// ShowRows selects the presentation mode of a grid.
type ShowRows string

const (
	ShowPaginated  ShowRows = "paginated"
	ShowAll        ShowRows = "all"
	ShowSelected   ShowRows = "selected"
	ShowUnselected ShowRows = "unselected"
	ShowNone       ShowRows = "none"
)

// ParseShowRows resolves a URL value. Unknown or empty values mean paginated.
func ParseShowRows(s string) ShowRows {
	switch ShowRows(s) {
	case ShowAll, ShowSelected, ShowUnselected, ShowNone:
		return ShowRows(s)
	}
	return ShowPaginated
}

// ContainerFilter scopes a query to a part of the container tree.
type ContainerFilter string

const (
	ContainerCurrent              ContainerFilter = "Current"
	ContainerCurrentAndSubfolders ContainerFilter = "CurrentAndSubfolders"
	ContainerCurrentAndParents    ContainerFilter = "CurrentAndParents"
	ContainerAllFolders           ContainerFilter = "AllFolders"
)

// Valid reports whether cf is a known scope. Empty means the query default.
func (cf ContainerFilter) Valid() bool {
	switch cf {
	case "", ContainerCurrent, ContainerCurrentAndSubfolders, ContainerCurrentAndParents, ContainerAllFolders:
		return true
	}
	return false
}

// SortField is one entry of an ordered sort list.
type SortField struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending,omitempty"`
}

// String renders the entry; descending entries carry a "-" prefix.
func (s SortField) String() string {
	if s.Descending {
		return "-" + s.Field
	}
	return s.Field
}

// ParseSort reads a comma-joined sort list. A "+" prefix is accepted.
func ParseSort(s string) []SortField {
	if s == "" {
		return nil
	}
	var out []SortField
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
			continue
		case strings.HasPrefix(part, "-"):
			out = append(out, SortField{Field: part[1:], Descending: true})
		case strings.HasPrefix(part, "+"):
			out = append(out, SortField{Field: part[1:]})
		default:
			out = append(out, SortField{Field: part})
		}
	}
	return out
}

// FormatSort renders a sort list. Ascending entries never carry "+".
func FormatSort(fields []SortField) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, ",")
}

// Request is the input of a row fetch.
type Request struct {
	SchemaName      string            `json:"schemaName"`
	QueryName       string            `json:"queryName"`
	ViewName        string            `json:"viewName,omitempty"`
	Filters         []filter.Clause   `json:"filters,omitempty"`
	Sort            []SortField       `json:"sort,omitempty"`
	ContainerFilter ContainerFilter   `json:"containerFilter,omitempty"`
	Container       string            `json:"container,omitempty"`
	Columns         []string          `json:"columns,omitempty"`
	Offset          int               `json:"offset,omitempty"`
	MaxRows         int               `json:"maxRows,omitempty"`
	ShowRows        ShowRows          `json:"showRows,omitempty"`
	SelectionKey    string            `json:"selectionKey,omitempty"`
	Parameters      map[string]string `json:"parameters,omitempty"`
}

// Validate checks the identity fields and every filter.
func (r Request) Validate() error {
	if r.SchemaName == "" || r.QueryName == "" {
		return apperror.NewValidation("schemaName and queryName are required")
	}
	for _, f := range r.Filters {
		if err := f.Validate(); err != nil {
			return apperror.NewValidation(err.Error())
		}
	}
	if !r.ContainerFilter.Valid() {
		return apperror.NewValidation("unknown containerFilterName").
			WithDetail("containerFilterName", string(r.ContainerFilter))
	}
	return nil
}

// ColumnMeta describes one result column.
type ColumnMeta struct {
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
	Type  string `json:"type"`
	Key   bool   `json:"key,omitempty"`
}

// Result is the output of a row fetch.
type Result struct {
	Rows       []map[string]any `json:"rows"`
	RowCount   int              `json:"rowCount"`
	TotalCount *int64           `json:"totalCount,omitempty"`
	Columns    []ColumnMeta     `json:"columnMetadata"`
}

// ViewDef is a saved custom view of a query.
type ViewDef struct {
	Name    string          `json:"name"`
	Label   string          `json:"label,omitempty"`
	Owner   string          `json:"owner,omitempty"`
	Shared  bool            `json:"shared,omitempty"`
	Default bool            `json:"default,omitempty"`
	Columns []string        `json:"columns,omitempty"`
	Filters []filter.Clause `json:"filters,omitempty"`
	Sort    []SortField     `json:"sort,omitempty"`
	MaxRows int             `json:"maxRows,omitempty"`
}

// ViewsResponse is the output of getQueryViews.
type ViewsResponse struct {
	SchemaName string    `json:"schemaName"`
	QueryName  string    `json:"queryName"`
	Views      []ViewDef `json:"views"`
}
