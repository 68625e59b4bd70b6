package region

import (
	"context"
	"sync"

	"querygrid/internal/grid/params"
)

// EventType names a region lifecycle point.
type EventType string

// Before* events are cancelable: a hook returning an error vetoes the change.
const (
	BeforeFilterChange          EventType = "beforefilterchange"
	BeforeSortChange            EventType = "beforesortchange"
	BeforeOffsetChange          EventType = "beforeoffsetchange"
	BeforeMaxRowsChange         EventType = "beforemaxrowschange"
	BeforeShowRowsChange        EventType = "beforeshowrowschange"
	BeforeChangeView            EventType = "beforechangeview"
	BeforeContainerFilterChange EventType = "beforecontainerfilterchange"
	BeforeColumnsChange         EventType = "beforecolumnschange"
	BeforeSetParametersChange   EventType = "beforesetparameterschange"
	BeforeClearAllParameters    EventType = "beforeclearallparameters"
	BeforeRefresh               EventType = "beforerefresh"

	// AfterChange fires once the new pairs are stored, before the refresh.
	AfterChange EventType = "change"
	// Destroy fires once when the region is torn down.
	Destroy EventType = "destroy"
)

// Event is passed to hooks. Before-hooks may rewrite NewPairs and Skips to
// augment the pending change.
type Event struct {
	Type     EventType
	Region   string
	NewPairs params.Pairs
	Skips    []string
	Detail   any

	// Previous holds the state before the change. Set for AfterChange only.
	Previous *State
}

// Hook runs at a lifecycle point. Returning an error from a before-hook
// cancels the mutation; errors from other hooks are logged and ignored.
//
// Before-hooks run while the region holds its mutation lock. They may rewrite
// the Event but must not mutate the same region: a mutator or
// FilterDraft.Commit called with the hook's ctx returns CONFLICT, and one
// called with an unrelated context blocks forever. After-hooks run unlocked
// and may mutate freely.
type Hook func(ctx context.Context, e *Event) error

// HookRegistry stores hooks per event type.
type HookRegistry struct {
	mu    sync.RWMutex
	hooks map[EventType][]Hook
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{
		hooks: make(map[EventType][]Hook),
	}
}

// On registers a hook for the specified event. See Hook for what before-hooks
// may not do.
func (r *HookRegistry) On(event EventType, hook Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[event] = append(r.hooks[event], hook)
}

// Run executes hooks for e.Type in registration order and stops at the first error.
func (r *HookRegistry) Run(ctx context.Context, e *Event) error {
	r.mu.RLock()
	hooks := append([]Hook(nil), r.hooks[e.Type]...)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// RunAll executes every hook for e.Type and collects errors instead of stopping.
func (r *HookRegistry) RunAll(ctx context.Context, e *Event) []error {
	r.mu.RLock()
	hooks := append([]Hook(nil), r.hooks[e.Type]...)
	r.mu.RUnlock()

	var errs []error
	for _, hook := range hooks {
		if err := hook(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
