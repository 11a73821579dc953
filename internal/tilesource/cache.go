package tilesource

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	"github.com/Faultbox/midgard-terrain/pkg/tiling"
)

// Stats counts cache lookups.
type Stats struct {
	Hits   int64
	Misses int64
	// Shared counts misses whose fetch served more than one caller.
	Shared int64
}

// Cached keeps recently fetched payloads in a cost-bounded cache and
// collapses concurrent fetches of the same tile into one.
//
// Payloads are shared between callers and must not be modified.
type Cached struct {
	src   Source
	cache *ristretto.Cache
	group singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
	shared atomic.Int64
}

// NewCached wraps src with a cache holding about maxBytes of payload.
func NewCached(src Source, maxBytes int64) (*Cached, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("cache size %d must be positive", maxBytes)
	}
	// Ristretto recommends ten counters per expected item; tiles average
	// tens of kilobytes.
	items := maxBytes / (16 << 10)
	if items < 100 {
		items = 100
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: items * 10,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating tile cache: %w", err)
	}
	return &Cached{src: src, cache: cache}, nil
}

// Fetch implements Source. A caller whose ctx ends stops waiting, but a
// fetch shared with other callers keeps running for them.
func (c *Cached) Fetch(ctx context.Context, addr tiling.Address) ([]byte, error) {
	key := addr.String()
	if v, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return v.([]byte), nil
	}
	c.misses.Add(1)

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		data, err := c.src.Fetch(fetchCtx, addr)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, data, int64(len(data))+1)
		return data, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.shared.Add(1)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stats returns lookup counters.
func (c *Cached) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Shared: c.shared.Load(),
	}
}

// Wait blocks until pending cache writes are applied.
func (c *Cached) Wait() {
	c.cache.Wait()
}

// Clear drops every cached payload and resets the counters.
func (c *Cached) Clear() {
	c.cache.Clear()
	c.hits.Store(0)
	c.misses.Store(0)
	c.shared.Store(0)
}

// Close releases the cache.
func (c *Cached) Close() {
	c.cache.Close()
}
