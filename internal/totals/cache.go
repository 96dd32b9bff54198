// Package totals keeps per-day macro totals for one user session.
//
// Entries are filled by summing the meals of a day on a miss and are then kept
// current by signed deltas pushed from the meal service after each confirmed
// write. There is no TTL: an entry changes only through a forced refresh, a
// delta, Invalidate or Reset.
//
// Each day carries a version that moves on every write to that day. A fetch
// remembers the version it started under and its result is dropped if the
// version moved while the query was in flight, because the rows it read may
// predate a delta that has already been applied. The fetch is then re-issued.
//
// Writers bracket the store write and its delta with BeginWrite and EndWrite.
// While a write is pending on a day no fetch result is stored for it: the rows
// may already include a meal whose delta has not been applied yet.
//
// Fetches run under the cache's own context, not the caller's, so callers
// sharing one query do not inherit each other's cancellation.
package totals

import (
	"context"
	"fmt"
	"sync"
	"time"

	"macro-tracker/config"
	"macro-tracker/internal/models"
	"macro-tracker/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// MealSource answers the range query a cache miss is computed from.
type MealSource interface {
	MealsBetween(ctx context.Context, from, to time.Time) ([]models.Meal, error)
}

type Options struct {
	FetchTimeout    time.Duration
	PrefetchTimeout time.Duration
	// MaxAttempts bounds how often a fetch is re-issued after losing a race
	// with a delta.
	MaxAttempts int
}

func DefaultOptions() Options {
	return Options{
		FetchTimeout:    10 * time.Second,
		PrefetchTimeout: 15 * time.Second,
		MaxAttempts:     3,
	}
}

func OptionsFrom(cfg config.CacheConfig) Options {
	opts := DefaultOptions()
	if cfg.FetchTimeout > 0 {
		opts.FetchTimeout = cfg.FetchTimeout
	}
	if cfg.PrefetchTimeout > 0 {
		opts.PrefetchTimeout = cfg.PrefetchTimeout
	}
	if cfg.MaxAttempts > 0 {
		opts.MaxAttempts = cfg.MaxAttempts
	}
	return opts
}

type Cache struct {
	source MealSource
	log    *logger.Logger
	opts   Options

	mu       sync.Mutex
	entries  map[models.DayKey]models.Macros
	versions map[models.DayKey]uint64
	pending  map[models.DayKey]int
	gen      uint64

	group singleflight.Group

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCache(source MealSource, log *logger.Logger, opts Options) *Cache {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	base, cancel := context.WithCancel(context.Background())
	return &Cache{
		source:   source,
		log:      log,
		opts:     opts,
		entries:  make(map[models.DayKey]models.Macros),
		versions: make(map[models.DayKey]uint64),
		pending:  make(map[models.DayKey]int),
		base:     base,
		cancel:   cancel,
	}
}

// Get returns the total for day. A cached entry is returned without touching
// the store unless forceRefresh is set. On a failed fetch the zero total and
// the error are returned and nothing is cached, so the next call retries.
//
// Concurrent misses for one day share a single query. A caller whose ctx ends
// first returns ctx.Err() and leaves the query running for the others.
func (c *Cache) Get(ctx context.Context, day models.DayKey, forceRefresh bool) (models.DailyTotal, error) {
	if !forceRefresh {
		if total, ok := c.Peek(day); ok {
			return total, nil
		}
	}

	ch := c.group.DoChan(string(day), func() (interface{}, error) {
		return c.fetch(day)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return models.DailyTotal{Day: day}, res.Err
		}
		return models.DailyTotal{Day: day, Macros: res.Val.(models.Macros)}, nil
	case <-ctx.Done():
		return models.DailyTotal{Day: day}, fmt.Errorf("fetch totals for %s: %w", day, ctx.Err())
	}
}

func (c *Cache) fetch(day models.DayKey) (models.Macros, error) {
	from, to := day.Range()

	for attempt := 1; ; attempt++ {
		gen, ver := c.stamp(day)

		fctx, cancel := context.WithTimeout(c.base, c.opts.FetchTimeout)
		meals, err := c.source.MealsBetween(fctx, from, to)
		cancel()
		if err != nil {
			return models.Macros{}, fmt.Errorf("fetch totals for %s: %w", day, err)
		}
		sum := Sum(meals)

		c.mu.Lock()
		if c.gen == gen && c.versions[day] == ver && c.pending[day] == 0 {
			c.entries[day] = sum
			c.versions[day]++
			c.mu.Unlock()
			return sum, nil
		}
		current, cached := c.entries[day]
		c.mu.Unlock()

		c.log.Debugw("Discarding stale totals fetch", "day", day, "attempt", attempt)
		if attempt >= c.opts.MaxAttempts {
			if cached {
				return current, nil
			}
			return sum, nil
		}
	}
}

func (c *Cache) stamp(day models.DayKey) (uint64, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, c.versions[day]
}

// Prefetch warms the days either side of day in the background. It never
// blocks and failures are only logged.
func (c *Cache) Prefetch(day models.DayKey) {
	for _, d := range []models.DayKey{day.AddDays(-1), day.AddDays(1)} {
		if _, ok := c.Peek(d); ok {
			continue
		}
		c.wg.Add(1)
		go func(d models.DayKey) {
			defer c.wg.Done()
			ctx, cancel := context.WithTimeout(c.base, c.opts.PrefetchTimeout)
			defer cancel()
			if _, err := c.Get(ctx, d, false); err != nil {
				c.log.Warnw("Prefetch of daily totals failed", "day", d, "error", err)
			}
		}(d)
	}
}

// BeginWrite marks a store write on days as pending. Fetch results for those
// days are not stored until the matching EndWrite, and a fetch that started
// before BeginWrite is discarded.
func (c *Cache) BeginWrite(days ...models.DayKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range days {
		c.pending[d]++
		c.versions[d]++
	}
}

// EndWrite releases days taken by BeginWrite. The delta of a successful write
// must be applied before it.
func (c *Cache) EndWrite(days ...models.DayKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range days {
		if c.pending[d] <= 1 {
			delete(c.pending, d)
		} else {
			c.pending[d]--
		}
		c.versions[d]++
	}
}

// ApplyDelta adds delta to the entry for day, starting from zero when the day
// is not cached. Callers apply it only after the write it describes succeeded.
func (c *Cache) ApplyDelta(day models.DayKey, delta models.Macros) {
	c.mu.Lock()
	next := c.entries[day].Add(delta)
	c.entries[day] = next
	c.versions[day]++
	c.mu.Unlock()

	c.log.Debugw("Applied totals delta", "day", day, "delta", delta, "total", next)
}

// Invalidate drops the entry for day; the next Get fetches it again.
func (c *Cache) Invalidate(day models.DayKey) {
	c.mu.Lock()
	delete(c.entries, day)
	c.versions[day]++
	c.mu.Unlock()
}

// Peek returns the cached entry without fetching.
func (c *Cache) Peek(day models.DayKey) (models.DailyTotal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.entries[day]
	return models.DailyTotal{Day: day, Macros: m}, ok
}

// Snapshot copies every cached entry.
func (c *Cache) Snapshot() map[models.DayKey]models.Macros {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[models.DayKey]models.Macros, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Reset forgets every entry. Fetches in flight when Reset runs do not
// repopulate the cache. Pending writes stay pending.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[models.DayKey]models.Macros)
	c.versions = make(map[models.DayKey]uint64)
	c.gen++
	c.mu.Unlock()
}

// Wait blocks until outstanding prefetches have finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// Close cancels outstanding prefetches, waits for them and resets the cache.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
	c.Reset()
}

// Sum adds up the stored macros of meals. Calories are taken as stored.
func Sum(meals []models.Meal) models.Macros {
	var total models.Macros
	for _, m := range meals {
		total = total.Add(m.Macros)
	}
	return total
}
