package render

import (
	"context"
	"time"

	"querygrid/internal/grid/params"
)

// Mount is the element a region renders into.
type Mount interface {
	Replace(html string)
	ShowError(message string)
	SetLoading(loading bool)
}

// DomBinding resolves named mount points on the page.
type DomBinding interface {
	Mount(target string) (Mount, bool)
}

// Navigator performs a full-page navigation.
type Navigator interface {
	Navigate(url string) error
}

// Alerter surfaces structural page errors to the user.
type Alerter interface {
	Alert(message string)
}

// ContentRequest is what an asynchronous refresh posts to the content endpoint.
type ContentRequest struct {
	Region     string
	SchemaName string
	QueryName  string
	// Pairs is the full merged parameter set, mode flags included.
	Pairs params.Pairs
}

// Content is a rendered grid fragment.
type Content struct {
	HTML          string   `json:"html"`
	RowCount      int      `json:"rowCount"`
	TotalCount    *int64   `json:"totalCount,omitempty"`
	SelectedCount int      `json:"selectedCount"`
	RowIDs        []string `json:"rowIds,omitempty"`
	CheckedIDs    []string `json:"checkedIds,omitempty"`
}

// Fetcher retrieves rendered content.
type Fetcher interface {
	FetchContent(ctx context.Context, req ContentRequest) (Content, error)
}

// Form flags sent with every asynchronous refresh.
const (
	FlagAsync     = "async"
	FlagFrame     = "webpart.frame"
	FlagShowTitle = "webpart.showTitle"
	FlagBodyClass = "webpart.bodyClass"
)

// Defaults.
const (
	DefaultSpinnerDelay = 500 * time.Millisecond
	DefaultTimeout      = 30 * time.Second
)
