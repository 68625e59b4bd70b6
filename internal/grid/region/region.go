// Package region holds the in-memory state of one grid region.
//
// A region's state is its list of URL pairs; the typed State is always derived
// from them. Every mutation goes through params.Serialize, so the pairs handed
// to the refresher are exactly what the URL would carry.
package region

import (
	"context"
	"strings"
	"sync"

	"querygrid/internal/core/apperror"
	"querygrid/internal/grid/params"
	"querygrid/pkg/logger"
)

// DefaultMaxRows is the page size used when neither the URL nor the config sets one.
const DefaultMaxRows = 100

// Config identifies a region and seeds its initial state.
type Config struct {
	Name       string `mapstructure:"name"`
	SchemaName string `mapstructure:"schema_name"`
	QueryName  string `mapstructure:"query_name"`

	// ViewName is applied when the initial query does not pick a view.
	ViewName string `mapstructure:"view_name"`
	// SelectionKey enables the server-side selection store.
	SelectionKey string `mapstructure:"selection_key"`
	// InitialQuery is the page's raw query string. Pairs owned by other
	// regions are kept aside and re-emitted with URLPairs.
	InitialQuery   string `mapstructure:"-"`
	DefaultMaxRows int    `mapstructure:"default_max_rows"`
}

// Validate checks the identity fields.
func (c Config) Validate() error {
	var missing []string
	if c.Name == "" {
		missing = append(missing, "name")
	}
	if c.SchemaName == "" {
		missing = append(missing, "schemaName")
	}
	if c.QueryName == "" {
		missing = append(missing, "queryName")
	}
	if len(missing) > 0 {
		return apperror.NewConfiguration("region requires " + strings.Join(missing, ", ")).
			WithDetail("missing", missing)
	}
	if strings.ContainsAny(c.Name, ".~&=") {
		return apperror.NewConfiguration("region name must not contain '.', '~', '&' or '='").
			WithDetail("name", c.Name)
	}
	return nil
}

// Refresher re-renders a region after its pairs changed.
type Refresher interface {
	Refresh(ctx context.Context, r *Region) error
}

// ColumnChecker reports whether a query exposes a column.
type ColumnChecker interface {
	HasColumn(schema, query, column string) bool
}

// Option configures a Region.
type Option func(*Region)

// WithRefresher sets the render controller.
func WithRefresher(refresher Refresher) Option {
	return func(r *Region) { r.refresher = refresher }
}

// WithColumnChecker enables column validation for sort, filter and column changes.
func WithColumnChecker(checker ColumnChecker) Option {
	return func(r *Region) { r.columns = checker }
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(r *Region) { r.log = log }
}

// WithHook registers a hook at construction time.
func WithHook(event EventType, hook Hook) Option {
	return func(r *Region) { r.hooks.On(event, hook) }
}

// Region is the authoritative state of one grid.
type Region struct {
	cfg       Config
	hooks     *HookRegistry
	refresher Refresher
	columns   ColumnChecker
	log       *logger.Logger

	// opMu serializes mutations; mu guards the fields below.
	opMu      sync.Mutex
	mu        sync.RWMutex
	pairs     params.Pairs
	foreign   params.Pairs
	destroyed bool
}

// New creates a region. A missing identity is a configuration error.
func New(cfg Config, opts ...Option) (*Region, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.DefaultMaxRows <= 0 {
		cfg.DefaultMaxRows = DefaultMaxRows
	}

	r := &Region{
		cfg:   cfg,
		hooks: NewHookRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Default()
	}
	r.log = r.log.ForRegion(cfg.Name)

	all := params.ParseQuery(cfg.InitialQuery)
	r.pairs = params.Owned(all, cfg.Name)
	r.foreign = params.Foreign(all, cfg.Name)

	if cfg.ViewName != "" &&
		!r.pairs.Has(params.Key(cfg.Name, params.ViewName)) &&
		!r.pairs.Has(params.Key(cfg.Name, params.ReportID)) {
		r.pairs = append(r.pairs, params.P(params.Key(cfg.Name, params.ViewName), cfg.ViewName))
	}
	return r, nil
}

// Name returns the region identity.
func (r *Region) Name() string { return r.cfg.Name }

// Config returns the construction config.
func (r *Region) Config() Config { return r.cfg }

// On registers a hook. Before-hooks must not mutate r; see Hook.
func (r *Region) On(event EventType, hook Hook) { r.hooks.On(event, hook) }

// Pairs returns a copy of the region's own pairs.
func (r *Region) Pairs() params.Pairs {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pairs.Clone()
}

// URLPairs returns the page-level pairs: other regions' state followed by ours.
func (r *Region) URLPairs() params.Pairs {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(params.Pairs, 0, len(r.foreign)+len(r.pairs))
	out = append(out, r.foreign...)
	return append(out, r.pairs...)
}

// QueryString encodes URLPairs.
func (r *Region) QueryString() string {
	return params.Encode(r.URLPairs())
}

// State returns the typed view of the current pairs.
func (r *Region) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stateLocked()
}

func (r *Region) stateLocked() State {
	return StateFromPairs(r.cfg.Name, r.pairs, Defaults{
		SelectionKey: r.cfg.SelectionKey,
		MaxRows:      r.cfg.DefaultMaxRows,
	})
}

// SelectionKey returns the selection-store address, if any.
func (r *Region) SelectionKey() string {
	return r.State().SelectionKey
}

// Destroyed reports whether Destroy has run.
func (r *Region) Destroyed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.destroyed
}

// Refresh re-renders without changing state.
func (r *Region) Refresh(ctx context.Context) error {
	if r.Destroyed() {
		return errDestroyed(r.cfg.Name)
	}
	e := &Event{Type: BeforeRefresh, Region: r.cfg.Name}
	if err := r.hooks.Run(ctx, e); err != nil {
		return apperror.NewCanceled(string(BeforeRefresh)).WithCause(err)
	}
	return r.refresh(ctx)
}

// Destroy tears the region down and runs destroy hooks once.
func (r *Region) Destroy(ctx context.Context) {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	r.destroyed = true
	r.mu.Unlock()

	for _, err := range r.hooks.RunAll(ctx, &Event{Type: Destroy, Region: r.cfg.Name}) {
		r.log.WithContext(ctx).Warnw("destroy hook failed", "error", err)
	}
	r.log.WithContext(ctx).Debug("region destroyed")
}

func (r *Region) refresh(ctx context.Context) error {
	if r.refresher == nil {
		return nil
	}
	return r.refresher.Refresh(ctx, r)
}

func errDestroyed(name string) error {
	return apperror.NewConflict("region is destroyed").WithDetail("region", name)
}
