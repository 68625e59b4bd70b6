package dto

import (
	"querygrid/internal/domain/query"
)

// --- Selection ---

// SelectionRequest addresses one selection set. IDs and Checked are used by
// setSelected; Query by selectAll.
type SelectionRequest struct {
	Key     string         `json:"key" binding:"required"`
	IDs     []string       `json:"ids,omitempty"`
	Checked bool           `json:"checked,omitempty"`
	Query   *query.Request `json:"query,omitempty"`
}

// SelectedResponse lists the selected row ids.
type SelectedResponse struct {
	Selected []string `json:"selected"`
}

// CountResponse carries the selection size after a mutation.
type CountResponse struct {
	Count int `json:"count"`
}

// --- Views ---

// ViewsQuery identifies the query whose views are listed or deleted.
type ViewsQuery struct {
	SchemaName string `form:"schemaName" binding:"required"`
	QueryName  string `form:"queryName" binding:"required"`
	ViewName   string `form:"viewName"`
	Shared     bool   `form:"shared"`
}

// SaveViewsRequest saves one or more views of a query.
type SaveViewsRequest struct {
	SchemaName string          `json:"schemaName" binding:"required"`
	QueryName  string          `json:"queryName" binding:"required"`
	Shared     bool            `json:"shared,omitempty"`
	Views      []query.ViewDef `json:"views" binding:"required"`
}

// --- Render ---

// RenderRequest asks for one region's content. Params is the full merged
// query string of the page, foreign regions and flags included.
type RenderRequest struct {
	Region     string `json:"region" binding:"required"`
	SchemaName string `json:"schemaName" binding:"required"`
	QueryName  string `json:"queryName" binding:"required"`
	Params     string `json:"params,omitempty"`
}
