// Package cache provides caching infrastructure with PostgreSQL LISTEN/NOTIFY
// invalidation.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"querygrid/internal/domain/query"
	"querygrid/internal/domain/views"
	"querygrid/pkg/logger"
)

var _ views.Repository = (*ViewCache)(nil)

// ViewCache caches saved view lists per query and owner in front of a
// views.Repository. Every row fetch resolves a view, so without it each
// selectRows call reads and decodes grid_views.
//
// Writes through the cache drop the query's entries at once. Writes made by
// other server instances arrive as NOTIFY on the configured channel with a
// "schema.query" payload; an empty payload drops everything.
type ViewCache struct {
	repo    views.Repository
	pool    *pgxpool.Pool
	channel string

	mu      sync.RWMutex
	entries map[string]map[string][]query.ViewDef // query key -> owner -> views

	// Lifecycle
	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	log         *logger.Logger
	wg          sync.WaitGroup
	started     bool
}

// NewViewCache wraps repo. pool and channel may be empty, in which case
// Start is a no-op and only local writes invalidate.
func NewViewCache(repo views.Repository, pool *pgxpool.Pool, channel string) *ViewCache {
	return &ViewCache{
		repo:    repo,
		pool:    pool,
		channel: channel,
		entries: make(map[string]map[string][]query.ViewDef),
	}
}

func cacheKey(schema, queryName string) string {
	return strings.ToLower(schema + "." + queryName)
}

// List returns cached views, loading them on a miss.
func (c *ViewCache) List(ctx context.Context, schema, queryName, owner string) ([]query.ViewDef, error) {
	key := cacheKey(schema, queryName)

	c.mu.RLock()
	cached, ok := c.entries[key][owner]
	c.mu.RUnlock()
	if ok {
		return cloneViews(cached), nil
	}

	list, err := c.repo.List(ctx, schema, queryName, owner)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.entries[key] == nil {
		c.entries[key] = make(map[string][]query.ViewDef)
	}
	c.entries[key][owner] = cloneViews(list)
	c.mu.Unlock()

	return list, nil
}

// Save writes through and drops the query's entries. Shared views change
// every owner's list, so the whole query goes.
func (c *ViewCache) Save(ctx context.Context, schema, queryName, owner string, list []query.ViewDef) error {
	defer c.Invalidate(cacheKey(schema, queryName))
	return c.repo.Save(ctx, schema, queryName, owner, list)
}

func (c *ViewCache) Delete(ctx context.Context, schema, queryName, owner, name string) (bool, error) {
	defer c.Invalidate(cacheKey(schema, queryName))
	return c.repo.Delete(ctx, schema, queryName, owner, name)
}

// Invalidate drops the entries of one "schema.query", or all of them when
// key is blank.
func (c *ViewCache) Invalidate(key string) {
	key = strings.ToLower(strings.TrimSpace(key))

	c.mu.Lock()
	defer c.mu.Unlock()
	if key == "" {
		c.entries = make(map[string]map[string][]query.ViewDef)
		return
	}
	delete(c.entries, key)
}

// Len returns the number of cached (query, owner) lists.
func (c *ViewCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, owners := range c.entries {
		n += len(owners)
	}
	return n
}

// Start begins listening for invalidation notifications.
func (c *ViewCache) Start(ctx context.Context) error {
	if c.pool == nil || c.channel == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.started {
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.log = logger.FromContext(ctx).WithComponent(logger.ComponentViewCache)
	c.started = true

	c.wg.Add(1)
	go c.listenLoop()
	c.log.Infow("view cache started", "channel", c.channel)
	return nil
}

// Stop stops the listener and waits for it to exit.
func (c *ViewCache) Stop() {
	c.lifecycleMu.Lock()
	if !c.started {
		c.lifecycleMu.Unlock()
		return
	}
	cancel := c.cancel
	log := c.log
	c.started = false
	c.cancel = nil
	c.lifecycleMu.Unlock()

	cancel()
	c.wg.Wait()
	log.Info("view cache stopped")
}

// listenLoop holds a dedicated connection for LISTEN and reconnects after
// failures. Everything is dropped on reconnect since notifications sent
// while disconnected are lost.
func (c *ViewCache) listenLoop() {
	defer c.wg.Done()

	for c.ctx.Err() == nil {
		if err := c.listen(); err != nil && c.ctx.Err() == nil {
			c.log.Errorw("view cache listener failed", "error", err)
			select {
			case <-c.ctx.Done():
			case <-time.After(time.Second):
			}
		}
		c.Invalidate("")
	}
}

func (c *ViewCache) listen() error {
	conn, err := c.pool.Acquire(c.ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(c.ctx, "LISTEN "+quoteIdent(c.channel)); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	for {
		notification, err := conn.Conn().WaitForNotification(c.ctx)
		if err != nil {
			return err
		}
		c.log.Debugw("views changed", "payload", notification.Payload)
		c.Invalidate(notification.Payload)
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func cloneViews(list []query.ViewDef) []query.ViewDef {
	if list == nil {
		return nil
	}
	out := make([]query.ViewDef, len(list))
	copy(out, list)
	return out
}
