// Package v1 provides HTTP API version 1.
package v1

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"

	"querygrid/internal/grid/selection"
	"querygrid/internal/infrastructure/http/v1/handlers"
	"querygrid/internal/infrastructure/http/v1/middleware"
	"querygrid/internal/metadata"
	"querygrid/pkg/logger"
)

// RouterConfig holds the router's collaborators.
type RouterConfig struct {
	// Mode is the gin mode; empty means release.
	Mode string

	// Logger for request logging
	Logger *logger.Logger

	// Database backs the readiness probe.
	Database handlers.Database
	Version  string

	// JWTValidator validates bearer tokens. Nil disables authentication and
	// every caller acts as the guest owner.
	JWTValidator middleware.JWTValidator
	// AuthRequired rejects anonymous callers when a validator is set.
	AuthRequired bool

	Registry  *metadata.Registry
	Rows      handlers.RowService
	Selection selection.Store
	Views     handlers.ViewService

	// DefaultMaxRows is the page size of rendered regions without one.
	DefaultMaxRows int

	// CORSOrigins lists origins allowed to call the API cross-site.
	CORSOrigins []string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)

	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	router := gin.New()

	// Order matters: errors are rendered after recovery and logging have run.
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	if len(cfg.CORSOrigins) > 0 {
		router.Use(middleware.CORS(cfg.CORSOrigins))
	}
	router.Use(middleware.Logger(log))
	router.Use(middleware.ErrorHandler())

	if cfg.Database != nil {
		health := handlers.NewHealthHandler(cfg.Database, cfg.Version)
		group := router.Group("/health")
		group.GET("/live", health.Live)
		group.GET("/ready", health.Ready)
		group.GET("/info", health.Info)
	}

	api := router.Group("/api/v1")
	switch {
	case cfg.JWTValidator != nil && cfg.AuthRequired:
		api.Use(middleware.Auth(cfg.JWTValidator))
	case cfg.JWTValidator != nil:
		api.Use(middleware.OptionalAuth(cfg.JWTValidator))
	}

	base := handlers.NewBaseHandler()

	if cfg.Registry != nil {
		meta := handlers.NewMetadataHandler(base, cfg.Registry)
		api.GET("/meta", meta.ListQueries)
		api.GET("/meta/:schema/:query", meta.GetQuery)
	}

	handlers.NewQueryHandler(base, cfg.Rows, cfg.Selection, cfg.Views).
		RegisterRoutes(api.Group("/query"))

	renderer, err := handlers.NewRenderHandler(base, cfg.Rows, cfg.Selection, cfg.DefaultMaxRows)
	if err != nil {
		return nil, fmt.Errorf("render handler: %w", err)
	}
	api.POST("/grid/render", renderer.Render)

	return router, nil
}

// NewHandler returns the router wrapped with gzip compression of responses
// larger than gzhttp.DefaultMinSize. Rendered grid fragments compress well.
func NewHandler(cfg RouterConfig) (http.Handler, error) {
	router, err := NewRouter(cfg)
	if err != nil {
		return nil, err
	}
	wrap, err := gzhttp.NewWrapper(gzhttp.MinSize(gzhttp.DefaultMinSize))
	if err != nil {
		return nil, fmt.Errorf("gzip wrapper: %w", err)
	}
	return wrap(router), nil
}
