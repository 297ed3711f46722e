// Package catalog holds the in-memory snapshot of bus records and a cache of
// their decoded route polylines.
package catalog

import (
	"context"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"golang.org/x/sync/singleflight"

	"trackly/internal/geo"
	"trackly/internal/polyline"
	"trackly/internal/source"
	"trackly/internal/transit"
)

// Metrics receives catalog events. The metrics package provides an adapter.
type Metrics interface {
	RefreshObserve(d time.Duration, err error)
	BusesSet(n int)
	RejectedAdd(n int)
}

// defaultFetchTimeout bounds a shared fetch once it no longer follows the
// context of the caller that started it.
const defaultFetchTimeout = time.Minute

type Catalog struct {
	src          source.Source
	metrics      Metrics
	lines        gcache.Cache
	group        singleflight.Group
	fetchTimeout time.Duration

	mu       sync.RWMutex
	buses    []transit.Bus
	index    map[string]int // vehicle number -> position in buses
	loadedAt time.Time
}

// New creates an empty catalog. lineCacheSize bounds the number of decoded
// polylines kept in memory.
func New(src source.Source, lineCacheSize int, m Metrics) *Catalog {
	if lineCacheSize <= 0 {
		lineCacheSize = 256
	}
	return &Catalog{
		src:          src,
		metrics:      m,
		fetchTimeout: defaultFetchTimeout,
		index:        map[string]int{},
		lines: gcache.New(lineCacheSize).
			LRU().
			LoaderFunc(func(key interface{}) (interface{}, error) {
				return polyline.Decode(key.(string))
			}).
			Build(),
	}
}

// Refresh fetches the full bus set from the source and swaps it in. Concurrent
// callers share one outstanding request, which runs detached from any single
// caller: a caller whose ctx ends stops waiting, the others still get the
// result. On error the previous snapshot stays.
func (c *Catalog) Refresh(ctx context.Context) (int, error) {
	ch := c.group.DoChan("refresh", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		start := time.Now()
		buses, err := c.src.FetchBuses(fetchCtx)
		if c.metrics != nil {
			c.metrics.RefreshObserve(time.Since(start), err)
		}
		if err != nil {
			return 0, err
		}

		kept, rejected := transit.Filter(buses)
		for _, r := range rejected {
			log.Printf("dropping bus record: %v", r)
		}

		index := make(map[string]int, len(kept))
		for i, b := range kept {
			index[b.VehicleNumber] = i
		}

		c.mu.Lock()
		c.buses = kept
		c.index = index
		c.loadedAt = time.Now()
		c.mu.Unlock()
		c.lines.Purge()

		if c.metrics != nil {
			c.metrics.BusesSet(len(kept))
			c.metrics.RejectedAdd(len(rejected))
		}
		log.Printf("loaded %d buses from %s source (%d rejected) in %s", len(kept), c.src.Name(), len(rejected), time.Since(start).Round(time.Millisecond))
		return len(kept), nil
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int), nil
	}
}

// Buses returns the current snapshot in source order.
func (c *Catalog) Buses() []transit.Bus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.buses)
}

// Bus looks up one bus by vehicle number.
func (c *Catalog) Bus(vehicle string) (transit.Bus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[vehicle]
	if !ok {
		return transit.Bus{}, false
	}
	return c.buses[i], true
}

// LoadedAt is the time of the last successful refresh, zero before the first.
func (c *Catalog) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// Decode returns the decoded points of an encoded route, caching the result.
// Decode errors are not cached.
func (c *Catalog) Decode(encoded string) ([]geo.Point, error) {
	v, err := c.lines.Get(encoded)
	if err != nil {
		return nil, err
	}
	return v.([]geo.Point), nil
}

// CachedLines is the number of decoded polylines currently cached.
func (c *Catalog) CachedLines() int {
	return c.lines.Len(false)
}
