// Package selection keeps a page's row checkboxes in step with the
// server-side selection set addressed by a selection key.
//
// Without a key every operation resolves locally against the current page and
// no store call is made.
package selection

import (
	"context"
	"sync"

	"querygrid/internal/core/apperror"
	"querygrid/internal/domain/query"
	"querygrid/pkg/logger"
)

// Store is the server-side selection set.
type Store interface {
	GetSelected(ctx context.Context, key string) ([]string, error)
	SetSelected(ctx context.Context, key string, ids []string, checked bool) (int, error)
	ClearSelected(ctx context.Context, key string) (int, error)
	SelectAll(ctx context.Context, key string, req query.Request) (int, error)
}

// HeaderState is the state of the page's "select all" checkbox.
type HeaderState int

const (
	Unchecked HeaderState = iota
	Indeterminate
	Checked
)

func (h HeaderState) String() string {
	switch h {
	case Checked:
		return "checked"
	case Indeterminate:
		return "indeterminate"
	default:
		return "unchecked"
	}
}

// ComputeHeader applies the tri-state rule: checked when the whole non-empty page is
// checked, indeterminate when anything is selected on or off the page.
func ComputeHeader(checkedOnPage, pageSize, selectedCount int) HeaderState {
	switch {
	case pageSize > 0 && checkedOnPage == pageSize:
		return Checked
	case checkedOnPage > 0 || selectedCount > 0:
		return Indeterminate
	default:
		return Unchecked
	}
}

// Change is delivered to listeners after every successful mutation.
type Change struct {
	Count  int
	Header HeaderState
}

// Listener receives selection changes.
type Listener func(ctx context.Context, c Change)

// Requirement gates an action on the selection size. Max 0 means unbounded.
type Requirement struct {
	Min int
	Max int
}

// Satisfied reports whether count is within bounds.
func (r Requirement) Satisfied(count int) bool {
	if count < r.Min {
		return false
	}
	return r.Max <= 0 || count <= r.Max
}

// Page is what a render produced: the row ids on the page, which of them are
// checked and the server's total.
type Page struct {
	IDs           []string
	Checked       []string
	SelectedCount int
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Synchronizer) { s.log = log }
}

// WithRequest supplies the row request used by SelectAll.
func WithRequest(fn func() query.Request) Option {
	return func(s *Synchronizer) { s.request = fn }
}

// Synchronizer reconciles one grid page with its selection store.
type Synchronizer struct {
	store   Store
	key     string
	request func() query.Request
	log     *logger.Logger

	mu        sync.Mutex
	page      []string
	checked   map[string]bool
	count     int
	listeners []Listener
}

// New creates a synchronizer. store may be nil when key is empty.
func New(store Store, key string, opts ...Option) (*Synchronizer, error) {
	if key != "" && store == nil {
		return nil, apperror.NewConfiguration("selection store is required when a selection key is set")
	}
	s := &Synchronizer{
		store:   store,
		key:     key,
		checked: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Default()
	}
	s.log = s.log.WithComponent(logger.ComponentSelection)
	return s, nil
}

// Key returns the selection key, empty when selection is page-local.
func (s *Synchronizer) Key() string { return s.key }

// OnChange registers a listener.
func (s *Synchronizer) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// SetPage replaces the current page after a render or navigation.
func (s *Synchronizer) SetPage(ctx context.Context, p Page) {
	s.mu.Lock()
	s.page = append([]string(nil), p.IDs...)
	s.checked = make(map[string]bool, len(p.Checked))
	onPage := make(map[string]bool, len(p.IDs))
	for _, id := range p.IDs {
		onPage[id] = true
	}
	for _, id := range p.Checked {
		if onPage[id] {
			s.checked[id] = true
		}
	}
	if s.key == "" {
		s.count = len(s.checked)
	} else {
		s.count = p.SelectedCount
	}
	s.mu.Unlock()

	s.notify(ctx)
}

// SetSelected checks or unchecks ids and returns the new total.
func (s *Synchronizer) SetSelected(ctx context.Context, ids []string, checked bool) (int, error) {
	if s.key == "" {
		s.mu.Lock()
		s.markLocked(ids, checked)
		s.count = len(s.checked)
		count := s.count
		s.mu.Unlock()
		s.notify(ctx)
		return count, nil
	}

	count, err := s.store.SetSelected(ctx, s.key, ids, checked)
	if err != nil {
		s.log.WithContext(ctx).Warnw("set selected failed", "key", s.key, "rows", len(ids), "error", err)
		return 0, err
	}
	s.mu.Lock()
	s.markLocked(ids, checked)
	s.count = count
	s.mu.Unlock()
	s.notify(ctx)
	return count, nil
}

// SelectPage checks or unchecks every row on the current page.
func (s *Synchronizer) SelectPage(ctx context.Context, checked bool) (int, error) {
	s.mu.Lock()
	ids := append([]string(nil), s.page...)
	s.mu.Unlock()
	if len(ids) == 0 {
		return s.SelectionCount(), nil
	}
	return s.SetSelected(ctx, ids, checked)
}

// GetSelected returns every selected id, including rows on other pages.
func (s *Synchronizer) GetSelected(ctx context.Context) ([]string, error) {
	if s.key == "" {
		s.mu.Lock()
		defer s.mu.Unlock()
		var ids []string
		for _, id := range s.page {
			if s.checked[id] {
				ids = append(ids, id)
			}
		}
		return ids, nil
	}
	return s.store.GetSelected(ctx, s.key)
}

// ClearSelected empties the selection.
func (s *Synchronizer) ClearSelected(ctx context.Context) (int, error) {
	if s.key != "" {
		if _, err := s.store.ClearSelected(ctx, s.key); err != nil {
			s.log.WithContext(ctx).Warnw("clear selected failed", "key", s.key, "error", err)
			return 0, err
		}
	}
	s.mu.Lock()
	s.checked = make(map[string]bool)
	s.count = 0
	s.mu.Unlock()
	s.notify(ctx)
	return 0, nil
}

// SelectAll selects every row the region's current request matches.
func (s *Synchronizer) SelectAll(ctx context.Context) (int, error) {
	count := 0
	if s.key != "" {
		var req query.Request
		if s.request != nil {
			req = s.request()
		}
		n, err := s.store.SelectAll(ctx, s.key, req)
		if err != nil {
			s.log.WithContext(ctx).Warnw("select all failed", "key", s.key, "error", err)
			return 0, err
		}
		count = n
	}

	s.mu.Lock()
	s.markLocked(s.page, true)
	if s.key == "" {
		count = len(s.checked)
	}
	s.count = count
	s.mu.Unlock()
	s.notify(ctx)
	return count, nil
}

// SelectionCount returns the last confirmed total.
func (s *Synchronizer) SelectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// IsChecked reports whether a row on the current page is checked.
func (s *Synchronizer) IsChecked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checked[id]
}

// HeaderState returns the "select all" checkbox state.
func (s *Synchronizer) HeaderState() HeaderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headerLocked()
}

func (s *Synchronizer) headerLocked() HeaderState {
	return ComputeHeader(len(s.checked), len(s.page), s.count)
}

func (s *Synchronizer) markLocked(ids []string, checked bool) {
	onPage := make(map[string]bool, len(s.page))
	for _, id := range s.page {
		onPage[id] = true
	}
	for _, id := range ids {
		if !onPage[id] {
			continue
		}
		if checked {
			s.checked[id] = true
		} else {
			delete(s.checked, id)
		}
	}
}

func (s *Synchronizer) notify(ctx context.Context) {
	s.mu.Lock()
	c := Change{Count: s.count, Header: s.headerLocked()}
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(ctx, c)
	}
}
