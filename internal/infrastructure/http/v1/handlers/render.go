package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/gin-gonic/gin"

	appctx "querygrid/internal/core/context"
	"querygrid/internal/domain/query"
	"querygrid/internal/grid/params"
	"querygrid/internal/grid/region"
	"querygrid/internal/grid/render"
	"querygrid/internal/grid/selection"
	"querygrid/internal/infrastructure/http/v1/dto"
	"querygrid/pkg/logger"
)

//go:embed templates/*.html
var templates embed.FS

// RenderHandler is the content-fetch endpoint behind asynchronous region
// refreshes. It decodes the region's state from the page parameters, fetches
// the page of rows and returns it as an HTML fragment.
type RenderHandler struct {
	*BaseHandler
	rows           RowService
	selection      selection.Store
	tmpl           *template.Template
	defaultMaxRows int
}

// NewRenderHandler parses the embedded grid template. sel may be nil when
// selection is disabled.
func NewRenderHandler(base *BaseHandler, rows RowService, sel selection.Store, defaultMaxRows int) (*RenderHandler, error) {
	tmpl, err := template.New("grid").ParseFS(templates, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse grid template: %w", err)
	}
	return &RenderHandler{
		BaseHandler:    base,
		rows:           rows,
		selection:      sel,
		tmpl:           tmpl,
		defaultMaxRows: defaultMaxRows,
	}, nil
}

type gridColumn struct {
	Name  string
	Label string
	Sort  string
}

type gridRow struct {
	Key     string
	Checked bool
	Cells   []string
}

type gridView struct {
	Region     string
	Title      string
	ShowTitle  bool
	BodyClass  string
	Selectable bool
	Header     string
	Columns    []gridColumn
	Rows       []gridRow
	Span       int
	Paging     string
}

// Render returns one region's content.
// POST /api/v1/grid/render
func (h *RenderHandler) Render(c *gin.Context) {
	var req dto.RenderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := appctx.WithRegion(c.Request.Context(), req.Region)
	pairs := params.ParseQuery(req.Params)
	state := region.StateFromPairs(req.Region, pairs, region.Defaults{MaxRows: h.defaultMaxRows})

	result, err := h.rows.SelectRows(ctx, state.Request(req.SchemaName, req.QueryName))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	keyColumn := ""
	for _, col := range result.Columns {
		if col.Key {
			keyColumn = col.Name
			break
		}
	}

	rowIDs := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		key, _ := params.FormatValue(row[keyColumn])
		rowIDs = append(rowIDs, key)
	}

	var selected []string
	selectable := state.SelectionKey != "" && h.selection != nil
	if selectable {
		if selected, err = h.selection.GetSelected(ctx, state.SelectionKey); err != nil {
			h.HandleError(c, err)
			return
		}
	}
	checked := intersect(rowIDs, selected)

	view := gridView{
		Region:     req.Region,
		Title:      req.SchemaName + "." + req.QueryName,
		Selectable: selectable,
		Header:     selection.ComputeHeader(len(checked), len(rowIDs), len(selected)).String(),
		Paging:     pagingText(state, result),
	}
	if v, ok := pairs.Get(render.FlagShowTitle); !ok || v != "false" {
		view.ShowTitle = true
	}
	view.BodyClass, _ = pairs.Get(render.FlagBodyClass)

	sortDir := make(map[string]string, len(state.Sort))
	for _, s := range state.Sort {
		dir := "asc"
		if s.Descending {
			dir = "desc"
		}
		sortDir[strings.ToLower(s.Field)] = dir
	}
	for _, col := range result.Columns {
		// The key is always fetched; show it only when asked for or when no
		// column list was given.
		if col.Key && len(state.Columns) > 0 && !requested(state.Columns, col.Name) {
			continue
		}
		label := col.Label
		if label == "" {
			label = col.Name
		}
		view.Columns = append(view.Columns, gridColumn{Name: col.Name, Label: label, Sort: sortDir[strings.ToLower(col.Name)]})
	}
	view.Span = len(view.Columns)
	if selectable {
		view.Span++
	}

	isChecked := make(map[string]bool, len(checked))
	for _, id := range checked {
		isChecked[id] = true
	}
	for i, row := range result.Rows {
		r := gridRow{Key: rowIDs[i], Checked: isChecked[rowIDs[i]]}
		for _, col := range view.Columns {
			text, _ := params.FormatValue(row[col.Name])
			r.Cells = append(r.Cells, text)
		}
		view.Rows = append(view.Rows, r)
	}

	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, "grid", view); err != nil {
		h.HandleError(c, fmt.Errorf("render grid: %w", err))
		return
	}

	logger.Debug(ctx, "region rendered",
		"schema", req.SchemaName,
		"query", req.QueryName,
		"rows", result.RowCount,
	)

	h.OK(c, render.Content{
		HTML:          buf.String(),
		RowCount:      result.RowCount,
		TotalCount:    result.TotalCount,
		SelectedCount: len(selected),
		RowIDs:        rowIDs,
		CheckedIDs:    checked,
	})
}

func intersect(ids, selected []string) []string {
	if len(selected) == 0 {
		return []string{}
	}
	in := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		in[id] = struct{}{}
	}
	out := []string{}
	for _, id := range ids {
		if _, ok := in[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func requested(columns []string, name string) bool {
	for _, c := range columns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// pagingText describes the visible window, e.g. "1 - 100 of 250".
func pagingText(state region.State, result query.Result) string {
	if result.RowCount == 0 || state.Paging.ShowRows != query.ShowPaginated {
		return ""
	}
	first := state.Paging.Offset + 1
	last := state.Paging.Offset + result.RowCount
	if result.TotalCount == nil {
		return fmt.Sprintf("%d - %d", first, last)
	}
	return fmt.Sprintf("%d - %d of %d", first, last, *result.TotalCount)
}
