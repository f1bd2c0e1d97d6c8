/*
store.go - Interfaces between the revenue engine and its collaborators

PURPOSE:
  Defines the seams the service is wired through: property metadata,
  reservation reads, the range aggregation query, the session pool, and
  the summary cache. Concrete implementations live in store/sqlite,
  store/memory, and cache.

READ-ONLY CONTRACT:
  Persisted reservation data is read-only from this subsystem's
  perspective; the only writes here (RegisterProperty, AddReservation)
  exist for seeding and demo mutations, which trigger cache invalidation
  externally.

SEE ALSO:
  - store/sqlite/sqlite.go: production implementation
  - store/memory/memory.go: in-memory implementation for tests and demos
  - cache/cache.go: SummaryCache implementation
*/
package revenue

import (
	"context"
	"time"

	"github.com/warp/revenue-engine/session"
)

// =============================================================================
// STORAGE
// =============================================================================

// PropertyStore looks up and registers property metadata. GetProperty
// returns ErrPropertyNotFound for unknown IDs; only the guard may translate
// that into a caller-visible error.
type PropertyStore interface {
	GetProperty(ctx context.Context, id PropertyID) (Property, error)

	// ListByTenant returns only properties registered to the tenant.
	ListByTenant(ctx context.Context, tenant TenantID) ([]Property, error)

	RegisterProperty(ctx context.Context, p Property) error
}

// ReservationStore appends reservations and answers the latest-check-in
// lookup used for default period resolution.
type ReservationStore interface {
	AddReservation(ctx context.Context, r Reservation) error

	// LatestCheckIn returns the most recent check-in instant for the
	// tenant's property, or ok=false when it has no reservations.
	LatestCheckIn(ctx context.Context, sess *session.Session, tenant TenantID, property PropertyID) (time.Time, bool, error)
}

// =============================================================================
// AGGREGATION
// =============================================================================

// Aggregator issues the single range-filtered sum query. The sum is exact
// at StoredScale; quantization is the service's job and happens once.
// An empty range yields RawSum{Sum: 0, Count: 0} and no error.
type Aggregator interface {
	SumRange(ctx context.Context, sess *session.Session, tenant TenantID, property PropertyID, rng Range) (RawSum, error)
}

// =============================================================================
// SESSIONS
// =============================================================================

// SessionPool is the acquisition seam. The concrete pool lives in the
// session package; tests substitute stubs to simulate exhaustion.
type SessionPool interface {
	Acquire(ctx context.Context) (*session.Session, error)
}

// =============================================================================
// CACHE
// =============================================================================

// SummaryCache maps cache keys to previously computed summaries and
// coordinates at-most-one concurrent recomputation per key. Implementations
// must never cache a failed computation and must never return an entry
// stored under a different tenant.
type SummaryCache interface {
	// GetOrCompute returns the cached summary for key, or runs compute
	// under per-key single flight and stores the result.
	GetOrCompute(ctx context.Context, key CacheKey, compute func(context.Context) (Summary, error)) (Summary, error)

	// Invalidate clears all period entries for the tenant/property pair.
	Invalidate(ctx context.Context, tenant TenantID, property PropertyID) error
}
