package region

import (
	"context"
	"sort"
	"sync"

	"querygrid/internal/core/apperror"
	"querygrid/pkg/logger"
)

// Registry tracks the regions of one page or application context. Close
// destroys every region it still holds.
type Registry struct {
	mu      sync.RWMutex
	regions map[string]*Region
	opts    []Option
	closed  bool
}

// NewRegistry creates an empty registry. opts are applied to every region
// built with Create, before the per-call options.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		regions: make(map[string]*Region),
		opts:    opts,
	}
}

// Create builds a region and registers it.
func (g *Registry) Create(cfg Config, opts ...Option) (*Region, error) {
	all := make([]Option, 0, len(g.opts)+len(opts))
	all = append(all, g.opts...)
	all = append(all, opts...)

	r, err := New(cfg, all...)
	if err != nil {
		return nil, err
	}
	if err := g.Register(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds an existing region. Names are unique within a registry.
func (g *Registry) Register(r *Region) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return apperror.NewConflict("region registry is closed")
	}
	if _, exists := g.regions[r.Name()]; exists {
		return apperror.NewConflict("region already registered").WithDetail("region", r.Name())
	}
	g.regions[r.Name()] = r
	return nil
}

// Get returns a region by name.
func (g *Registry) Get(name string) (*Region, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.regions[name]
	return r, ok
}

// Remove destroys and forgets a region. It reports whether the name was known.
func (g *Registry) Remove(ctx context.Context, name string) bool {
	g.mu.Lock()
	r, ok := g.regions[name]
	delete(g.regions, name)
	g.mu.Unlock()

	if ok {
		r.Destroy(ctx)
	}
	return ok
}

// Names returns registered names in sorted order.
func (g *Registry) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.regions))
	for name := range g.regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close destroys every region. Later registrations fail.
func (g *Registry) Close(ctx context.Context) {
	g.mu.Lock()
	regions := g.regions
	g.regions = make(map[string]*Region)
	g.closed = true
	g.mu.Unlock()

	for _, r := range regions {
		r.Destroy(ctx)
	}
	logger.Debug(ctx, "region registry closed", "regions", len(regions))
}
