package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"querygrid/internal/core/apperror"
	"querygrid/internal/domain/query"
	"querygrid/internal/grid/selection"
	"querygrid/internal/infrastructure/http/v1/dto"
)

// RowService fetches grid rows.
type RowService interface {
	SelectRows(ctx context.Context, req query.Request) (query.Result, error)
}

// ViewService manages saved views.
type ViewService interface {
	GetQueryViews(ctx context.Context, schema, queryName string) (query.ViewsResponse, error)
	SaveQueryViews(ctx context.Context, schema, queryName string, views []query.ViewDef, shared bool) error
	DeleteQueryView(ctx context.Context, schema, queryName, name string, shared bool) error
}

// QueryHandler serves the Query API: row fetch, selection and views.
type QueryHandler struct {
	*BaseHandler
	rows      RowService
	selection selection.Store
	views     ViewService
}

func NewQueryHandler(base *BaseHandler, rows RowService, sel selection.Store, views ViewService) *QueryHandler {
	return &QueryHandler{
		BaseHandler: base,
		rows:        rows,
		selection:   sel,
		views:       views,
	}
}

// RegisterRoutes mounts the handler on rg, usually /api/v1/query.
func (h *QueryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/selectRows", h.SelectRows)

	rg.POST("/getSelected", h.GetSelected)
	rg.POST("/setSelected", h.SetSelected)
	rg.POST("/clearSelected", h.ClearSelected)
	rg.POST("/selectAll", h.SelectAll)

	rg.GET("/views", h.GetViews)
	rg.POST("/views", h.SaveViews)
	rg.DELETE("/views", h.DeleteView)
}

// SelectRows returns one page of rows.
// POST /api/v1/query/selectRows
func (h *QueryHandler) SelectRows(c *gin.Context) {
	var req query.Request
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.rows.SelectRows(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, result)
}

// GetSelected lists the ids selected under a key.
// POST /api/v1/query/getSelected
func (h *QueryHandler) GetSelected(c *gin.Context) {
	var req dto.SelectionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ids, err := h.selection.GetSelected(c.Request.Context(), req.Key)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	h.OK(c, dto.SelectedResponse{Selected: ids})
}

// SetSelected checks or unchecks ids.
// POST /api/v1/query/setSelected
func (h *QueryHandler) SetSelected(c *gin.Context) {
	var req dto.SelectionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	count, err := h.selection.SetSelected(c.Request.Context(), req.Key, req.IDs, req.Checked)
	h.count(c, count, err)
}

// ClearSelected empties a selection set.
// POST /api/v1/query/clearSelected
func (h *QueryHandler) ClearSelected(c *gin.Context) {
	var req dto.SelectionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	count, err := h.selection.ClearSelected(c.Request.Context(), req.Key)
	h.count(c, count, err)
}

// SelectAll adds every row matching the query's filters.
// POST /api/v1/query/selectAll
func (h *QueryHandler) SelectAll(c *gin.Context) {
	var req dto.SelectionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if req.Query == nil {
		h.HandleError(c, apperror.NewValidation("query is required"))
		return
	}

	count, err := h.selection.SelectAll(c.Request.Context(), req.Key, *req.Query)
	h.count(c, count, err)
}

func (h *QueryHandler) count(c *gin.Context, count int, err error) {
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, dto.CountResponse{Count: count})
}

// GetViews lists the views visible to the caller.
// GET /api/v1/query/views?schemaName=&queryName=
func (h *QueryHandler) GetViews(c *gin.Context) {
	var q dto.ViewsQuery
	if !h.BindQuery(c, &q) {
		return
	}

	resp, err := h.views.GetQueryViews(c.Request.Context(), q.SchemaName, q.QueryName)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, resp)
}

// SaveViews saves personal or shared views.
// POST /api/v1/query/views
func (h *QueryHandler) SaveViews(c *gin.Context) {
	var req dto.SaveViewsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.views.SaveQueryViews(c.Request.Context(), req.SchemaName, req.QueryName, req.Views, req.Shared); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, "views saved")
}

// DeleteView removes one view.
// DELETE /api/v1/query/views?schemaName=&queryName=&viewName=&shared=
func (h *QueryHandler) DeleteView(c *gin.Context) {
	var q dto.ViewsQuery
	if !h.BindQuery(c, &q) {
		return
	}

	if err := h.views.DeleteQueryView(c.Request.Context(), q.SchemaName, q.QueryName, q.ViewName, q.Shared); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
