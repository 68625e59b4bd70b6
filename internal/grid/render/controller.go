// Package render decides how a region is redrawn after its state changed:
// by navigating the whole page, or by fetching a fragment and swapping it
// into the region's mount point.
package render

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"querygrid/internal/core/apperror"
	appctx "querygrid/internal/core/context"
	"querygrid/internal/grid/params"
	"querygrid/internal/grid/region"
	"querygrid/pkg/logger"
)

// Mode is fixed for the lifetime of a controller.
type Mode string

const (
	ModeFullPage Mode = "fullpage"
	ModeAsync    Mode = "async"
)

// Status of the controller.
type Status int

const (
	Idle Status = iota
	Requesting
)

// Config configures a controller.
type Config struct {
	Mode Mode `mapstructure:"mode"`
	// Target names the mount point. Required in async mode.
	Target string `mapstructure:"target"`
	// BasePath is the page path used for full-page navigation.
	BasePath  string `mapstructure:"base_path"`
	BodyClass string `mapstructure:"body_class"`

	// SuppressRenderErrors silences missing-target alerts.
	SuppressRenderErrors bool          `mapstructure:"suppress_render_errors"`
	SpinnerDelay         time.Duration `mapstructure:"spinner_delay"`
	Timeout              time.Duration `mapstructure:"timeout"`
}

// Callbacks receive the outcome of asynchronous refreshes. Without Failure,
// errors are rendered inline in the mount point.
type Callbacks struct {
	Success func(ctx context.Context, r *region.Region, c Content)
	Failure func(ctx context.Context, r *region.Region, err error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithDom sets the DOM binding used in async mode.
func WithDom(dom DomBinding) Option {
	return func(c *Controller) { c.dom = dom }
}

// WithFetcher sets the content fetcher used in async mode.
func WithFetcher(f Fetcher) Option {
	return func(c *Controller) { c.fetcher = f }
}

// WithNavigator sets the navigator used in full-page mode.
func WithNavigator(n Navigator) Option {
	return func(c *Controller) { c.navigator = n }
}

// WithAlerter sets where missing-target errors are surfaced.
func WithAlerter(a Alerter) Option {
	return func(c *Controller) { c.alerter = a }
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithCallbacks sets the success and failure handlers.
func WithCallbacks(cb Callbacks) Option {
	return func(c *Controller) { c.callbacks = cb }
}

// WithRendered adds a hook that runs after content was swapped in.
func WithRendered(fn RenderedFunc) Option {
	return func(c *Controller) { c.rendered = append(c.rendered, fn) }
}

// WithFlags appends extra form flags to every content request.
func WithFlags(extra ...params.Pair) Option {
	return func(c *Controller) { c.extraFlags = extra }
}

// RenderedFunc runs after fresh content was swapped in.
type RenderedFunc func(ctx context.Context, r *region.Region, c Content)

// Controller redraws one region.
type Controller struct {
	cfg        Config
	dom        DomBinding
	fetcher    Fetcher
	navigator  Navigator
	alerter    Alerter
	log        *logger.Logger
	callbacks  Callbacks
	rendered   []RenderedFunc
	extraFlags params.Pairs

	generation atomic.Uint64
	inflight   atomic.Int64
	wg         sync.WaitGroup
	applyMu    sync.Mutex

	mu   sync.Mutex
	last *Task
}

// New creates a controller. The mode's collaborators must be present.
func New(cfg Config, opts ...Option) (*Controller, error) {
	c := &Controller{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Default()
	}
	c.log = c.log.WithComponent(logger.ComponentRender)

	if c.cfg.SpinnerDelay <= 0 {
		c.cfg.SpinnerDelay = DefaultSpinnerDelay
	}
	if c.cfg.Timeout <= 0 {
		c.cfg.Timeout = DefaultTimeout
	}

	switch c.cfg.Mode {
	case ModeFullPage:
		if c.navigator == nil {
			return nil, apperror.NewConfiguration("full-page rendering requires a navigator")
		}
	case ModeAsync:
		if c.cfg.Target == "" || c.dom == nil || c.fetcher == nil {
			return nil, apperror.NewConfiguration("async rendering requires a target, a DOM binding and a fetcher").
				WithDetail("target", c.cfg.Target)
		}
	default:
		return nil, apperror.NewConfiguration("unknown render mode").WithDetail("mode", string(c.cfg.Mode))
	}
	return c, nil
}

// Mode returns the render mode.
func (c *Controller) Mode() Mode { return c.cfg.Mode }

// Status reports whether any request is in flight.
func (c *Controller) Status() Status {
	if c.inflight.Load() > 0 {
		return Requesting
	}
	return Idle
}

// Refresh redraws r. In async mode it returns once the request is issued;
// use Last or Wait to observe the outcome. Only structural and configuration
// problems are returned here.
func (c *Controller) Refresh(ctx context.Context, r *region.Region) error {
	if c.cfg.Mode == ModeFullPage {
		return c.navigate(ctx, r)
	}
	_, err := c.Start(ctx, r)
	return err
}

// URL returns the full-page URL for r.
func (c *Controller) URL(r *region.Region) string {
	qs := r.QueryString()
	if qs == "" {
		return c.cfg.BasePath
	}
	sep := "?"
	if strings.Contains(c.cfg.BasePath, "?") {
		sep = "&"
	}
	return c.cfg.BasePath + sep + qs
}

func (c *Controller) navigate(ctx context.Context, r *region.Region) error {
	url := c.URL(r)
	c.log.WithContext(ctx).Debugw("navigating", "region", r.Name(), "url", url)
	if err := c.navigator.Navigate(url); err != nil {
		return apperror.NewTransport("navigate", err)
	}
	return nil
}

// Start issues an asynchronous refresh and returns its task.
func (c *Controller) Start(ctx context.Context, r *region.Region) (*Task, error) {
	if c.cfg.Mode != ModeAsync {
		return nil, apperror.NewConfiguration("Start requires async mode")
	}
	ctx = appctx.WithRegion(ctx, r.Name())
	log := c.log.WithContext(ctx)

	mount, ok := c.dom.Mount(c.cfg.Target)
	if !ok {
		err := apperror.NewRenderTargetMissing(c.cfg.Target).WithDetail("region", r.Name())
		if c.cfg.SuppressRenderErrors {
			log.Debugw("render target missing, suppressed", "target", c.cfg.Target)
			return nil, nil
		}
		log.Errorw("render target missing", "target", c.cfg.Target, "error", err)
		if c.alerter != nil {
			c.alerter.Alert(err.Message)
		}
		return nil, err
	}

	t := &Task{Generation: c.generation.Add(1), done: make(chan struct{})}
	c.mu.Lock()
	c.last = t
	c.mu.Unlock()

	req := c.contentRequest(r)
	c.inflight.Add(1)
	c.wg.Add(1)
	go c.run(ctx, r, mount, req, t)
	return t, nil
}

func (c *Controller) contentRequest(r *region.Region) ContentRequest {
	cfg := r.Config()
	pairs := r.URLPairs()
	pairs = append(pairs,
		params.P(FlagAsync, "true"),
		params.P(FlagFrame, "none"),
		params.P(FlagShowTitle, "false"),
	)
	if c.cfg.BodyClass != "" {
		pairs = append(pairs, params.P(FlagBodyClass, c.cfg.BodyClass))
	}
	pairs = append(pairs, c.extraFlags...)
	return ContentRequest{
		Region:     r.Name(),
		SchemaName: cfg.SchemaName,
		QueryName:  cfg.QueryName,
		Pairs:      pairs,
	}
}

func (c *Controller) run(ctx context.Context, r *region.Region, mount Mount, req ContentRequest, t *Task) {
	defer c.wg.Done()
	defer c.inflight.Add(-1)
	defer close(t.done)

	log := c.log.WithContext(ctx)

	// The spinner only shows for slow responses.
	var (
		spinMu   sync.Mutex
		finished bool
	)
	timer := time.AfterFunc(c.cfg.SpinnerDelay, func() {
		spinMu.Lock()
		defer spinMu.Unlock()
		if !finished && c.current(t) {
			mount.SetLoading(true)
		}
	})

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	content, err := c.fetch(reqCtx, req)
	cancel()

	timer.Stop()
	spinMu.Lock()
	finished = true
	spinMu.Unlock()

	t.content, t.err = content, err

	// Check and swap under one lock so an older response can never land after
	// a newer one.
	c.applyMu.Lock()
	if !c.current(t) {
		c.applyMu.Unlock()
		t.stale = true
		log.Debugw("discarding stale response", "generation", t.Generation, "latest", c.generation.Load())
		return
	}
	mount.SetLoading(false)
	if err != nil {
		if c.callbacks.Failure == nil {
			mount.ShowError(errorMessage(r.Name(), err))
		}
	} else {
		mount.Replace(content.HTML)
		for _, fn := range c.rendered {
			fn(ctx, r, content)
		}
	}
	c.applyMu.Unlock()

	if err != nil {
		log.Warnw("refresh failed", "error", err)
		if c.callbacks.Failure != nil {
			c.callbacks.Failure(ctx, r, err)
		}
		return
	}
	if c.callbacks.Success != nil {
		c.callbacks.Success(ctx, r, content)
	}
}

func (c *Controller) fetch(ctx context.Context, req ContentRequest) (content Content, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = apperror.NewInternal(fmt.Errorf("fetch panicked: %v", rec))
		}
	}()

	content, err = c.fetcher.FetchContent(ctx, req)
	if err != nil && !apperror.IsAppError(err) {
		err = apperror.NewTransport("render", err)
	}
	return content, err
}

func (c *Controller) current(t *Task) bool {
	return c.generation.Load() == t.Generation
}

// Last returns the most recently started task, or nil.
func (c *Controller) Last() *Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Wait blocks until every in-flight request finished or ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func errorMessage(regionName string, err error) string {
	msg := err.Error()
	if appErr, ok := apperror.AsAppError(err); ok {
		msg = appErr.Message
		if appErr.Err != nil {
			msg += ": " + appErr.Err.Error()
		}
	}
	return fmt.Sprintf("Error loading %s: %s", regionName, msg)
}
