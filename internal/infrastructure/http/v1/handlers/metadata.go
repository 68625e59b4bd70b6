package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"querygrid/internal/core/apperror"
	"querygrid/internal/metadata"
)

type MetadataHandler struct {
	*BaseHandler
	registry *metadata.Registry
}

func NewMetadataHandler(base *BaseHandler, registry *metadata.Registry) *MetadataHandler {
	return &MetadataHandler{BaseHandler: base, registry: registry}
}

// ListQueries returns every registered query definition.
// GET /api/v1/meta
func (h *MetadataHandler) ListQueries(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.List())
}

// GetQuery returns one query definition.
// GET /api/v1/meta/:schema/:query
func (h *MetadataHandler) GetQuery(c *gin.Context) {
	schema, name := c.Param("schema"), c.Param("query")
	def, ok := h.registry.Get(schema, name)
	if !ok {
		h.HandleError(c, apperror.NewNotFound("query", schema+"."+name))
		return
	}
	c.JSON(http.StatusOK, def)
}
