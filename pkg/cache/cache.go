// Package cache memoizes successful tool results for a bounded time.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/dossier/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is used when New receives a non-positive ttl
const DefaultTTL = 5 * time.Minute

type entry struct {
	result   *model.ToolResult
	storedAt time.Time
}

// Cache maps a (tool name, canonical args) key to a successful result.
// Failed results are never stored. Cached results are shared between callers
// and must not be mutated.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
	group   singleflight.Group

	janitor   time.Duration
	stop      chan struct{}
	closeOnce sync.Once
}

type Option func(*Cache)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithJanitor sets the expired-entry sweep interval. Zero disables the sweep;
// expired entries are then only dropped on access.
func WithJanitor(interval time.Duration) Option {
	return func(c *Cache) { c.janitor = interval }
}

// New creates a cache. Call Close to stop the background sweep.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
		janitor: ttl,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.janitor > 0 {
		go c.sweep()
	}
	return c
}

// Key derives the cache key. Object keys are ordered and surrounding
// whitespace of string values is ignored, so equivalent calls share a key.
func Key(name string, args map[string]any) (string, error) {
	raw, err := json.Marshal(normalize(args))
	if err != nil {
		return "", goerr.Wrap(err, "failed to encode tool arguments", goerr.V("tool", name))
	}
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalize(val)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = strings.TrimSpace(val)
		}
		return out
	default:
		return v
	}
}

// Get returns a live entry
func (c *Cache) Get(key string) (*model.ToolResult, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.expired(e) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.result, true
}

// Put stores result unless a live entry already exists, and returns the
// result callers should use: the existing entry when present, otherwise
// result itself. Failed results are returned without being stored.
func (c *Cache) Put(key string, result *model.ToolResult) *model.ToolResult {
	if result == nil || !result.OK() {
		return result
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.entries[key]; ok && !c.expired(cur) {
		return cur.result
	}
	c.entries[key] = &entry{result: result, storedAt: c.now()}
	return result
}

// Do returns the cached result for key or computes it with fn. Concurrent
// callers with the same key share one computation. hit reports whether the
// result came from a stored entry.
//
// fn runs on a context detached from the caller's cancellation, so one
// caller giving up does not fail the others sharing the call. fn must bound
// its own run time.
func (c *Cache) Do(ctx context.Context, key string, fn func(ctx context.Context) *model.ToolResult) (result *model.ToolResult, hit bool) {
	if r, ok := c.Get(key); ok {
		return r, true
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if r, ok := c.Get(key); ok {
			return r, nil
		}
		return c.Put(key, fn(shared)), nil
	})

	select {
	case res := <-ch:
		r, _ := res.Val.(*model.ToolResult)
		return r, false
	case <-ctx.Done():
		return model.Failure(model.ErrorKindTimeout, "gave up waiting for shared call: %s", ctx.Err().Error()), false
	}
}

// Len counts stored entries, including expired ones not yet swept
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge drops expired entries and returns how many were removed
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// Close stops the background sweep. Reads and writes keep working.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.stop) })
}

func (c *Cache) expired(e *entry) bool {
	return c.now().Sub(e.storedAt) >= c.ttl
}

func (c *Cache) sweep() {
	ticker := time.NewTicker(c.janitor)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Purge()
		case <-c.stop:
			return
		}
	}
}
