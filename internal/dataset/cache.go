// Package dataset holds the caller-owned cache of loaded reference
// workbooks.
package dataset

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/fee-cli/internal/model"
)

// Loader reads a reference workbook into a Dataset.
type Loader interface {
	Load(ctx context.Context, path string) (*model.Dataset, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, path string) (*model.Dataset, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, path string) (*model.Dataset, error) {
	return f(ctx, path)
}

// Cache keeps one Dataset snapshot per workbook path. Snapshots are replaced
// wholesale, so a caller holding one is unaffected by a later Refresh.
type Cache struct {
	loader  Loader
	mu      sync.RWMutex
	entries map[string]*model.Dataset
	// gens is bumped by Invalidate and Refresh; a load that started under an
	// older generation returns its snapshot but does not cache it.
	gens   map[string]uint64
	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
}

// Stats reports cache usage.
type Stats struct {
	Entries int   `json:"entries" yaml:"entries"`
	Hits    int64 `json:"hits" yaml:"hits"`
	Misses  int64 `json:"misses" yaml:"misses"`
}

// NewCache creates an empty Cache backed by loader.
func NewCache(loader Loader) *Cache {
	return &Cache{
		loader:  loader,
		entries: make(map[string]*model.Dataset),
		gens:    make(map[string]uint64),
	}
}

// Get returns the cached snapshot for path, loading it on a miss.
// Concurrent misses for the same path share a single load. Cancelling ctx
// abandons the wait; the shared load carries on for the other callers.
func (c *Cache) Get(ctx context.Context, path string) (*model.Dataset, error) {
	c.mu.RLock()
	ds, ok := c.entries[path]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return ds, nil
	}
	c.misses.Add(1)
	return c.load(ctx, path)
}

// Refresh reloads path and swaps in the new snapshot. On failure the
// previous snapshot, if any, stays in place.
func (c *Cache) Refresh(ctx context.Context, path string) (*model.Dataset, error) {
	c.mu.Lock()
	c.gens[path]++
	c.mu.Unlock()
	c.group.Forget(path)
	return c.load(ctx, path)
}

// Invalidate drops the snapshot for path. The next Get reloads it.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.gens[path]++
	c.mu.Unlock()
	c.group.Forget(path)
}

// Stats returns usage counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return Stats{Entries: n, Hits: c.hits.Load(), Misses: c.misses.Load()}
}

func (c *Cache) load(ctx context.Context, path string) (*model.Dataset, error) {
	// The shared load outlives any single waiter's cancellation.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(path, func() (any, error) {
		c.mu.RLock()
		gen := c.gens[path]
		c.mu.RUnlock()

		start := time.Now()
		ds, err := c.loader.Load(loadCtx, path)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		current := c.gens[path] == gen
		if current {
			c.entries[path] = ds
		}
		c.mu.Unlock()

		if current {
			zap.L().Debug("dataset: cached",
				zap.String("path", path),
				zap.Duration("elapsed", time.Since(start)),
			)
		} else {
			zap.L().Debug("dataset: invalidated during load, not cached", zap.String("path", path))
		}
		return ds, nil
	})

	select {
	case <-ctx.Done():
		return nil, eris.Wrapf(ctx.Err(), "dataset: load %s", path)
	case res := <-ch:
		if res.Err != nil {
			return nil, eris.Wrapf(res.Err, "dataset: load %s", path)
		}
		if res.Shared {
			zap.L().Debug("dataset: shared in-flight load", zap.String("path", path))
		}
		return res.Val.(*model.Dataset), nil
	}
}
