// Package grid assembles the per-page pieces of an interactive grid: a region
// registry, one render controller and selection synchronizer per region, and
// optional header locks. A Page owns their lifecycle.
package grid

import (
	"context"
	"sync"

	"querygrid/internal/core/apperror"
	"querygrid/internal/grid/headerlock"
	"querygrid/internal/grid/region"
	"querygrid/internal/grid/render"
	"querygrid/internal/grid/selection"
	"querygrid/pkg/logger"
)

// Deps are the page's collaborators. Store and Fetcher are usually the same
// HTTP client.
type Deps struct {
	Store     selection.Store
	Fetcher   render.Fetcher
	Dom       render.DomBinding
	Navigator render.Navigator
	Alerter   render.Alerter
	Columns   region.ColumnChecker
	Logger    *logger.Logger
}

// Config describes one grid on the page. Region.InitialQuery is ignored; the
// page query is used.
type Config struct {
	Region region.Config
	Render render.Config
	Hooks  map[region.EventType][]region.Hook
}

// Grid is one wired region.
type Grid struct {
	Region    *region.Region
	Renderer  *render.Controller
	Selection *selection.Synchronizer

	mu     sync.Mutex
	header *headerlock.Tracker
}

// Page holds every grid rendered from one page query.
type Page struct {
	query   string
	deps    Deps
	regions *region.Registry
	log     *logger.Logger

	mu    sync.RWMutex
	grids map[string]*Grid
}

// NewPage creates an empty page for rawQuery.
func NewPage(rawQuery string, deps Deps) *Page {
	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}
	regionOpts := []region.Option{region.WithLogger(log)}
	if deps.Columns != nil {
		regionOpts = append(regionOpts, region.WithColumnChecker(deps.Columns))
	}
	return &Page{
		query:   rawQuery,
		deps:    deps,
		regions: region.NewRegistry(regionOpts...),
		log:     log.WithComponent(logger.ComponentPage),
		grids:   make(map[string]*Grid),
	}
}

// Add builds and registers a grid.
func (p *Page) Add(cfg Config) (*Grid, error) {
	g := &Grid{}

	ctrl, err := render.New(cfg.Render,
		render.WithDom(p.deps.Dom),
		render.WithFetcher(p.deps.Fetcher),
		render.WithNavigator(p.deps.Navigator),
		render.WithAlerter(p.deps.Alerter),
		render.WithLogger(p.log),
		render.WithRendered(func(ctx context.Context, _ *region.Region, c render.Content) {
			g.Selection.SetPage(ctx, selection.Page{
				IDs:           c.RowIDs,
				Checked:       c.CheckedIDs,
				SelectedCount: c.SelectedCount,
			})
		}),
	)
	if err != nil {
		return nil, err
	}

	rcfg := cfg.Region
	rcfg.InitialQuery = p.query
	opts := []region.Option{region.WithRefresher(ctrl)}
	for event, hooks := range cfg.Hooks {
		for _, h := range hooks {
			opts = append(opts, region.WithHook(event, h))
		}
	}
	r, err := p.regions.Create(rcfg, opts...)
	if err != nil {
		return nil, err
	}

	sel, err := selection.New(p.deps.Store, r.SelectionKey(), selection.WithLogger(p.log))
	if err != nil {
		p.regions.Remove(context.Background(), r.Name())
		return nil, err
	}
	selection.Bind(r, sel)

	g.Region, g.Renderer, g.Selection = r, ctrl, sel

	p.mu.Lock()
	p.grids[r.Name()] = g
	p.mu.Unlock()
	return g, nil
}

// Grid returns a grid by region name.
func (p *Page) Grid(name string) (*Grid, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	g, ok := p.grids[name]
	return g, ok
}

// Remove destroys one grid.
func (p *Page) Remove(ctx context.Context, name string) bool {
	p.mu.Lock()
	delete(p.grids, name)
	p.mu.Unlock()
	return p.regions.Remove(ctx, name)
}

// Close destroys every grid and waits for in-flight refreshes.
func (p *Page) Close(ctx context.Context) error {
	p.mu.Lock()
	grids := p.grids
	p.grids = make(map[string]*Grid)
	p.mu.Unlock()

	p.regions.Close(ctx)
	for name, g := range grids {
		if err := g.Renderer.Wait(ctx); err != nil {
			p.log.WithContext(ctx).Warnw("refresh still running at close", "region", name, "error", err)
			return err
		}
	}
	return nil
}

// LockHeader attaches a header-lock tracker to the grid.
func (g *Grid) LockHeader(geometry headerlock.Geometry, header headerlock.FloatingHeader, src headerlock.EventSource, opts ...headerlock.Option) (*headerlock.Tracker, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.header != nil {
		return nil, apperror.NewConflict("header lock already attached").WithDetail("region", g.Region.Name())
	}
	t, err := headerlock.Attach(g.Region, geometry, header, src, opts...)
	if err != nil {
		return nil, err
	}
	g.header = t
	return t, nil
}

// HeaderLock returns the attached tracker, or nil.
func (g *Grid) HeaderLock() *headerlock.Tracker {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.header
}
