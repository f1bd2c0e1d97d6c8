/*
errors.go - Centralized error taxonomy for the revenue engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Infrastructure packages return their own low-level errors; the service
  wraps them into this taxonomy before they reach callers.

ERROR CATEGORIES:
  1. NotOwned            - tenant isolation violations (authorization)
  2. InvalidPeriod       - malformed period/anchor/timezone (validation)
  3. PoolUnavailable     - session pool exhausted or database unreachable
  4. AggregationFailed   - underlying query failure after retry

PROPAGATION POLICY:
  Guard failures short-circuit before any cache or database work.
  Pool and aggregation failures are terminal for the in-flight request:
  they are NEVER replaced by fabricated or zero totals, and the cache
  never stores a failure as if it were a valid result.

SEE ALSO:
  - guard.go: produces NotOwnedError
  - service.go: wraps session and query failures
*/
package revenue

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotOwned is returned when a property does not belong to the
	// requesting tenant. A property that does not exist fails with the
	// same kind: callers cannot distinguish "wrong tenant" from
	// "no such property".
	ErrNotOwned = errors.New("property not accessible for tenant")

	// ErrInvalidPeriod is returned for a malformed period type, anchor,
	// or timezone. Not retried.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrPoolUnavailable is returned when no database session can be
	// acquired: the pool is exhausted or the database is unreachable.
	// This failure is terminal for the request; it never triggers a
	// fallback to synthetic data.
	ErrPoolUnavailable = errors.New("session pool unavailable")

	// ErrAggregationFailed is returned when the range sum query fails
	// after the single idempotent-safe retry.
	ErrAggregationFailed = errors.New("aggregation failed")

	// ErrPropertyNotFound is returned by property stores. The guard
	// collapses it into ErrNotOwned before it can reach a caller.
	ErrPropertyNotFound = errors.New("property not found")

	// ErrAmountPrecision is returned when a reservation amount does not
	// fit the stored fixed-point representation (10 integer digits,
	// 3 fraction digits).
	ErrAmountPrecision = errors.New("amount exceeds stored precision")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotOwnedError deliberately carries no detail that would distinguish a
// missing property from a foreign one.
type NotOwnedError struct {
	Tenant   TenantID
	Property PropertyID
}

func (e *NotOwnedError) Error() string {
	return fmt.Sprintf("property %s not accessible for tenant %s", e.Property, e.Tenant)
}

func (e *NotOwnedError) Unwrap() error { return ErrNotOwned }

// InvalidPeriodError reports which part of a period request was malformed.
type InvalidPeriodError struct {
	PeriodType string
	Anchor     string
	Reason     string
}

func (e *InvalidPeriodError) Error() string {
	return fmt.Sprintf("invalid period %q/%q: %s", e.PeriodType, e.Anchor, e.Reason)
}

func (e *InvalidPeriodError) Unwrap() error { return ErrInvalidPeriod }

// InvalidKeyError reports a cache key constructed with a missing segment.
type InvalidKeyError struct {
	Missing string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("cache key missing mandatory segment %s", e.Missing)
}

// PoolUnavailableError wraps the session-layer cause.
type PoolUnavailableError struct {
	Err error
}

func (e *PoolUnavailableError) Error() string {
	return fmt.Sprintf("session pool unavailable: %v", e.Err)
}

func (e *PoolUnavailableError) Unwrap() []error { return []error{ErrPoolUnavailable, e.Err} }

// AggregationError wraps the query-layer cause for one property.
type AggregationError struct {
	Property PropertyID
	Err      error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation failed for property %s: %v", e.Property, e.Err)
}

func (e *AggregationError) Unwrap() []error { return []error{ErrAggregationFailed, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// or an authorization failure, as opposed to a service-side failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotOwned) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrAmountPrecision)
}

// IsUnavailable returns true if the request failed because no database
// session could be obtained.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrPoolUnavailable)
}
