/*
Package revenue provides the core revenue aggregation engine.

PURPOSE:
  This package contains the domain types and algorithms for computing
  tenant-isolated, timezone-correct, decimal-exact revenue totals for a
  (tenant, property, period) triple. All tenant-isolation, precision, and
  period-boundary invariants live here; storage, caching backends, and
  transport are pluggable behind interfaces.

KEY CONCEPTS IN THIS FILE (types.go):
  - Tenant/Property/Reservation IDs: type-safe identifiers
  - Property: a revenue-bearing unit with exactly one owning tenant and
    its own IANA timezone
  - Reservation: an instant-stamped amount at 3 fractional digits of
    stored precision
  - Summary: the computed revenue figure, quantized to 2 fractional digits
  - CacheKey: the composite (tenant, property, period) key; cannot be
    constructed without a tenant

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never binary floating point
  2. Quantization happens exactly once, post-sum, round-half-up
  3. Type Safety: strong typing for IDs prevents mixing tenant/property IDs
  4. Isolation: no key, entry, or listing exists without a tenant ID

SEE ALSO:
  - period.go: Period resolution to half-open UTC ranges
  - guard.go: Tenant isolation chokepoint
  - service.go: GetRevenue orchestration
*/
package revenue

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type PropertyID string
type ReservationID string

// =============================================================================
// AMOUNT PRECISION
// =============================================================================

const (
	// StoredScale is the fixed-point precision of persisted reservation
	// amounts: 3 fractional digits (schema: 10 integer digits, 3 fraction).
	StoredScale = 3

	// TotalScale is the precision of every total returned to callers:
	// exactly 2 fractional digits.
	TotalScale = 2

	// DefaultCurrency is reported on every summary. Multi-currency
	// conversion is out of scope.
	DefaultCurrency = "USD"
)

// QuantizeTotal rounds a summed total to TotalScale fractional digits using
// round-half-up. It is applied exactly once, after summation; quantizing
// per-row or mid-sum changes the result under large reservation counts.
//
// Revenue totals are non-negative, so decimal's round-half-away-from-zero
// is the half-up rule here.
func QuantizeTotal(sum decimal.Decimal) decimal.Decimal {
	return sum.Round(TotalScale)
}

// =============================================================================
// PROPERTY - Revenue-bearing unit owned by exactly one tenant
// =============================================================================

// Property is immutable once registered: it is never silently re-owned to
// another tenant. Timezone is an IANA zone name (e.g. "Europe/Paris"), not
// a fixed offset, because the offset at a period boundary varies with
// daylight-saving transitions.
type Property struct {
	ID       PropertyID
	TenantID TenantID
	Name     string
	Timezone string
}

// Location resolves the property's named timezone.
func (p Property) Location() (*time.Location, error) {
	return time.LoadLocation(p.Timezone)
}

// =============================================================================
// RESERVATION - Instant-stamped amount read by the aggregator
// =============================================================================

// Reservation carries the fields the aggregator reads. CheckIn is a UTC
// instant; which local period it belongs to is decided by the property's
// timezone, never by UTC truncation.
type Reservation struct {
	ID         ReservationID
	PropertyID PropertyID
	TenantID   TenantID
	CheckIn    time.Time
	Amount     decimal.Decimal
}

// RawSum is the un-quantized result of a range aggregation: the exact
// fixed-point sum at StoredScale plus the number of rows summed.
type RawSum struct {
	Sum   decimal.Decimal
	Count int64
}

// =============================================================================
// SUMMARY - The computed revenue figure
// =============================================================================

// Summary is what GetRevenue returns and what the cache stores. Total is
// quantized to TotalScale before the summary is built.
type Summary struct {
	PropertyID PropertyID      `json:"property_id"`
	TenantID   TenantID        `json:"tenant_id"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency"`
	Count      int64           `json:"count"`
	Period     Period          `json:"period"`
	Timezone   string          `json:"timezone"`
}

// =============================================================================
// CACHE KEY - (tenant, property, period) composite, all fields mandatory
// =============================================================================

// CacheKey identifies one cached total. The fields are unexported and the
// only constructor rejects empty segments, so a key without a tenant cannot
// exist. Equality is structural on all four fields; there is no default or
// partial key.
type CacheKey struct {
	tenant     TenantID
	property   PropertyID
	periodType PeriodType
	anchor     string
}

// NewCacheKey builds a key from an authorized tenant/property pair and a
// parsed period. Every segment is mandatory.
func NewCacheKey(tenant TenantID, property PropertyID, period Period) (CacheKey, error) {
	if tenant == "" {
		return CacheKey{}, &InvalidKeyError{Missing: "tenant_id"}
	}
	if property == "" {
		return CacheKey{}, &InvalidKeyError{Missing: "property_id"}
	}
	if err := period.Validate(); err != nil {
		return CacheKey{}, err
	}
	return CacheKey{
		tenant:     tenant,
		property:   property,
		periodType: period.Type,
		anchor:     period.Anchor(),
	}, nil
}

func (k CacheKey) Tenant() TenantID       { return k.tenant }
func (k CacheKey) Property() PropertyID   { return k.property }
func (k CacheKey) PeriodType() PeriodType { return k.periodType }
func (k CacheKey) Anchor() string         { return k.anchor }

// String returns the external representation:
// tenant:{tenant}:property:{property}:period:{type}:{anchor}
func (k CacheKey) String() string {
	return "tenant:" + string(k.tenant) +
		":property:" + string(k.property) +
		":period:" + string(k.periodType) +
		":" + k.anchor
}
