// Package headerlock floats a grid's column header at the top of the viewport
// while the grid body is scrolled past it.
//
// The tracker only reads table geometry and writes header position. It never
// touches region state and can be left out where there is no viewport.
package headerlock

import (
	"context"
	"sync"

	"querygrid/internal/core/apperror"
	"querygrid/internal/grid/region"
	"querygrid/pkg/logger"
)

// DefaultLockMargin is kept between the floating header and the table bottom.
const DefaultLockMargin = 30.0

// State of the tracker.
type State int

const (
	Disabled State = iota
	Tracking
	Locked
)

func (s State) String() string {
	switch s {
	case Tracking:
		return "tracking"
	case Locked:
		return "locked"
	default:
		return "disabled"
	}
}

// Geometry reads table layout in document coordinates.
type Geometry interface {
	HeaderTop() float64
	TableBottom() float64
	TableLeft() float64
	ColumnWidths() []float64
	Scroll() (x, y float64)
}

// FloatingHeader is the cloned header row.
type FloatingHeader interface {
	ShowAt(left, top float64)
	MoveTo(left float64)
	Hide()
	SyncWidths(widths []float64)
}

// EventKind distinguishes viewport events.
type EventKind int

const (
	Scroll EventKind = iota
	Resize
	Mutation
)

// Event is a viewport notification. Scroll carries the new position.
type Event struct {
	Kind    EventKind
	ScrollX float64
	ScrollY float64
}

// EventSource delivers viewport events until the returned function is called.
type EventSource interface {
	Subscribe(handler func(Event)) (unsubscribe func())
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMargin overrides DefaultLockMargin.
func WithMargin(margin float64) Option {
	return func(t *Tracker) { t.margin = margin }
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(t *Tracker) { t.log = log }
}

// Tracker is the Disabled -> Tracking <-> Locked state machine. Once disabled
// after running it stays disabled.
type Tracker struct {
	geometry Geometry
	header   FloatingHeader
	margin   float64
	log      *logger.Logger

	mu          sync.Mutex
	state       State
	started     bool
	unsubscribe func()

	// cached bounds
	top, bottom, tableLeft float64
	left                   float64
}

// New creates a tracker in the Disabled state.
func New(g Geometry, h FloatingHeader, opts ...Option) *Tracker {
	t := &Tracker{geometry: g, header: h, margin: DefaultLockMargin}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = logger.Default()
	}
	t.log = t.log.WithComponent(logger.ComponentHeaderLock)
	return t
}

// Attach starts a tracker for r and disables it when r is destroyed.
func Attach(r *region.Region, g Geometry, h FloatingHeader, src EventSource, opts ...Option) (*Tracker, error) {
	t := New(g, h, opts...)
	t.log = t.log.With("region", r.Name())
	if err := t.Enable(src); err != nil {
		return nil, err
	}
	r.On(region.Destroy, func(context.Context, *region.Event) error {
		t.Disable()
		return nil
	})
	return t, nil
}

// Enable subscribes to src, caches bounds and evaluates the current scroll
// position. A tracker can be enabled once.
func (t *Tracker) Enable(src EventSource) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return apperror.NewConflict("header lock already started")
	}
	t.started = true
	t.state = Tracking
	t.measureLocked()
	x, y := t.geometry.Scroll()
	t.evaluateLocked(x, y)
	t.mu.Unlock()

	unsubscribe := src.Subscribe(t.handle)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Disabled {
		unsubscribe()
		return nil
	}
	t.unsubscribe = unsubscribe
	return nil
}

// Disable hides the header and removes every listener. It is terminal.
func (t *Tracker) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Disabled {
		return
	}
	if t.state == Locked {
		t.header.Hide()
	}
	t.state = Disabled
	if t.unsubscribe != nil {
		t.unsubscribe()
		t.unsubscribe = nil
	}
	t.log.Debug("header lock disabled")
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) handle(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Disabled {
		return
	}

	switch e.Kind {
	case Scroll:
		t.evaluateLocked(e.ScrollX, e.ScrollY)
	case Resize, Mutation:
		t.measureLocked()
		x, y := t.geometry.Scroll()
		t.evaluateLocked(x, y)
	}
}

func (t *Tracker) measureLocked() {
	t.top = t.geometry.HeaderTop()
	t.bottom = t.geometry.TableBottom() - t.margin
	t.tableLeft = t.geometry.TableLeft()
	t.header.SyncWidths(t.geometry.ColumnWidths())
}

// evaluateLocked is the scroll hot path: it only writes header position.
func (t *Tracker) evaluateLocked(x, y float64) {
	inRange := y >= t.top && y < t.bottom
	left := t.tableLeft - x

	switch {
	case t.state == Tracking && inRange:
		t.header.ShowAt(left, 0)
		t.left = left
		t.state = Locked
	case t.state == Locked && inRange:
		if left != t.left {
			t.header.MoveTo(left)
			t.left = left
		}
	case t.state == Locked:
		t.header.Hide()
		t.state = Tracking
	}
}
