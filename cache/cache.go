/*
Package cache maps (tenant, property, period) keys to computed summaries.

PURPOSE:
  Process-wide cache with an explicit lifecycle: created at startup,
  cleared through Invalidate, torn down at shutdown. All mutation goes
  through GetOrCompute/Invalidate; no caller touches entries directly.

SINGLE FLIGHT:
  Cache misses for the same key collapse into one execution of the compute
  function (per-key mutual exclusion via singleflight, not a global lock,
  so distinct keys never contend). All waiters receive the same result.
  This is the stampede guard for a popular property/period on a cold cache.

CANCELLATION:
  A waiter whose request is cancelled gets its context error immediately,
  but the shared computation keeps running on a detached context and
  populates the cache for other and future waiters.

FAILURES:
  A failed computation is surfaced to every waiter and NEVER stored; the
  next request recomputes. A failure is not a zero total.

SEE ALSO:
  - memory.go: in-process store (default)
  - redis.go: redis-backed store for multi-instance deployments
*/
package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/warp/revenue-engine/revenue"
)

// =============================================================================
// ENTRY
// =============================================================================

// Entry is one cached summary with its expiry metadata.
type Entry struct {
	Summary    revenue.Summary `json:"summary"`
	ComputedAt time.Time       `json:"computed_at"`
	TTL        time.Duration   `json:"ttl"`
}

// expired reports whether the entry is past its TTL at now.
func (e Entry) expired(now time.Time) bool {
	return e.TTL > 0 && now.After(e.ComputedAt.Add(e.TTL))
}

// =============================================================================
// STORE - Pluggable entry storage
// =============================================================================

// Store persists entries. Implementations are safe for concurrent use.
// Expiry is enforced by the Cache; stores may additionally expire entries
// on their own (redis TTL).
type Store interface {
	Get(ctx context.Context, key revenue.CacheKey) (Entry, bool, error)
	Set(ctx context.Context, key revenue.CacheKey, e Entry) error
	Delete(ctx context.Context, key revenue.CacheKey) error

	// Invalidate removes every period entry for the tenant/property pair.
	Invalidate(ctx context.Context, tenant revenue.TenantID, property revenue.PropertyID) error
}

// =============================================================================
// CACHE
// =============================================================================

// Cache implements revenue.SummaryCache over a Store.
type Cache struct {
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	now    func() time.Time
	logger *zap.Logger
}

// Option configures optional cache behavior.
type Option func(*Cache)

// WithNow injects the clock used for TTL checks.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger attaches a logger for store-failure diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// New builds a cache with the given store and TTL.
func New(store Store, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCompute returns the unexpired entry for key, or runs compute under
// per-key single flight and stores the successful result.
//
// A store read failure (e.g. redis briefly down) degrades to a cache miss:
// the summary is recomputed from the database rather than failing the
// request or fabricating data.
func (c *Cache) GetOrCompute(ctx context.Context, key revenue.CacheKey, compute func(context.Context) (revenue.Summary, error)) (revenue.Summary, error) {
	if summary, ok := c.lookup(ctx, key); ok {
		return summary, nil
	}

	// The computation runs detached from this caller's cancellation so
	// that one cancelled waiter cannot kill the shared flight.
	detached := context.WithoutCancel(ctx)

	ch := c.group.DoChan(key.String(), func() (any, error) {
		// Another caller may have populated the entry between our miss
		// and the flight starting.
		if summary, ok := c.lookup(detached, key); ok {
			return summary, nil
		}
		summary, err := compute(detached)
		if err != nil {
			return revenue.Summary{}, err
		}
		entry := Entry{Summary: summary, ComputedAt: c.now(), TTL: c.ttl}
		if storeErr := c.store.Set(detached, key, entry); storeErr != nil {
			c.logger.Warn("cache store write failed",
				zap.String("key", key.String()),
				zap.Error(storeErr))
		}
		return summary, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return revenue.Summary{}, res.Err
		}
		return res.Val.(revenue.Summary), nil
	case <-ctx.Done():
		return revenue.Summary{}, ctx.Err()
	}
}

// Invalidate clears all period entries for the pair.
func (c *Cache) Invalidate(ctx context.Context, tenant revenue.TenantID, property revenue.PropertyID) error {
	return c.store.Invalidate(ctx, tenant, property)
}

// lookup returns an unexpired entry, deleting expired ones lazily.
func (c *Cache) lookup(ctx context.Context, key revenue.CacheKey) (revenue.Summary, bool) {
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache store read failed",
			zap.String("key", key.String()),
			zap.Error(err))
		return revenue.Summary{}, false
	}
	if !ok {
		return revenue.Summary{}, false
	}
	if entry.expired(c.now()) {
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.Warn("cache store delete failed",
				zap.String("key", key.String()),
				zap.Error(err))
		}
		return revenue.Summary{}, false
	}
	return entry.Summary, true
}
