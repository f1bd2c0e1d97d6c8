/*
service.go - GetRevenue orchestration

PURPOSE:
  Wires the guard, cache, period resolver, session pool, and aggregator
  into the one caller-facing operation:

    GetRevenue(tenant, property, period) ->
      Guard verifies ownership
      Cache lookup on (tenant, property, period)
      on miss (single flight per key):
        acquire session -> resolve local boundaries to UTC ->
        range sum -> quantize once -> store -> return

CONCURRENCY:
  Suspension happens only at session acquisition, the query itself, and
  waiting on another caller's in-flight computation for the same key.
  Period resolution and quantization are pure.

FAILURE POLICY:
  Pool failures surface as PoolUnavailable, query failures (after one
  idempotent-safe retry with backoff) as AggregationFailed. Failures are
  never cached and never replaced by fabricated totals.
*/
package revenue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warp/revenue-engine/session"
)

// =============================================================================
// SERVICE
// =============================================================================

// ServiceConfig lists the collaborators a Service is wired from.
type ServiceConfig struct {
	Guard        *Guard
	Cache        SummaryCache
	Aggregator   Aggregator
	Pool         SessionPool
	Reservations ReservationStore
	Logger       *zap.Logger

	// Now is the clock; defaults to time.Now. Injected for tests.
	Now func() time.Time

	// RetryBackoff is the wait before the single aggregation retry.
	RetryBackoff time.Duration
}

// Service computes tenant-isolated revenue summaries.
type Service struct {
	guard        *Guard
	cache        SummaryCache
	agg          Aggregator
	pool         SessionPool
	reservations ReservationStore
	logger       *zap.Logger
	now          func() time.Time
	retryBackoff time.Duration
}

var errMissingDependency = errors.New("service dependency is nil")

// NewService validates and wires a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Guard == nil || cfg.Cache == nil || cfg.Aggregator == nil || cfg.Pool == nil {
		return nil, errMissingDependency
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	return &Service{
		guard:        cfg.Guard,
		cache:        cfg.Cache,
		agg:          cfg.Aggregator,
		pool:         cfg.Pool,
		reservations: cfg.Reservations,
		logger:       cfg.Logger,
		now:          cfg.Now,
		retryBackoff: cfg.RetryBackoff,
	}, nil
}

// =============================================================================
// OPERATIONS
// =============================================================================

// GetRevenue returns the quantized revenue summary for the tenant's
// property over the given period. The guard runs before any cache or
// database work.
func (s *Service) GetRevenue(ctx context.Context, tenant TenantID, property PropertyID, periodType, anchor string) (Summary, error) {
	period, err := ParsePeriod(periodType, anchor)
	if err != nil {
		return Summary{}, err
	}
	return s.getRevenue(ctx, tenant, property, period)
}

// GetRevenueForPeriod is GetRevenue with an already-parsed period.
func (s *Service) GetRevenueForPeriod(ctx context.Context, tenant TenantID, property PropertyID, period Period) (Summary, error) {
	if err := period.Validate(); err != nil {
		return Summary{}, err
	}
	return s.getRevenue(ctx, tenant, property, period)
}

// GetLatestRevenue resolves the month containing the property's most
// recent check-in (in the property's zone) and reports that month. With no
// reservations, the current local month is used.
func (s *Service) GetLatestRevenue(ctx context.Context, tenant TenantID, property PropertyID) (Summary, error) {
	prop, err := s.guard.Authorize(ctx, tenant, property)
	if err != nil {
		return Summary{}, err
	}
	loc, err := prop.Location()
	if err != nil {
		return Summary{}, &InvalidPeriodError{PeriodType: string(PeriodMonth), Anchor: prop.Timezone, Reason: "unknown timezone"}
	}
	if s.reservations == nil {
		return Summary{}, fmt.Errorf("latest revenue: %w", errMissingDependency)
	}

	anchorInstant := s.now()
	err = s.withSession(ctx, func(sess *session.Session) error {
		latest, ok, lookupErr := s.reservations.LatestCheckIn(ctx, sess, tenant, property)
		if lookupErr != nil {
			return &AggregationError{Property: property, Err: lookupErr}
		}
		if ok {
			anchorInstant = latest
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	return s.getRevenue(ctx, tenant, property, PeriodOf(PeriodMonth, anchorInstant, loc))
}

// ListProperties returns the tenant's properties via the guard.
func (s *Service) ListProperties(ctx context.Context, tenant TenantID) ([]Property, error) {
	return s.guard.ListProperties(ctx, tenant)
}

// InvalidateProperty clears every cached period total for the pair. Called
// when a reservation affecting the property changes.
func (s *Service) InvalidateProperty(ctx context.Context, tenant TenantID, property PropertyID) error {
	return s.cache.Invalidate(ctx, tenant, property)
}

// =============================================================================
// COMPUTATION
// =============================================================================

func (s *Service) getRevenue(ctx context.Context, tenant TenantID, property PropertyID, period Period) (Summary, error) {
	prop, err := s.guard.Authorize(ctx, tenant, property)
	if err != nil {
		return Summary{}, err
	}
	loc, err := prop.Location()
	if err != nil {
		return Summary{}, &InvalidPeriodError{PeriodType: string(period.Type), Anchor: period.Anchor(), Reason: "unknown timezone " + prop.Timezone}
	}
	key, err := NewCacheKey(tenant, property, period)
	if err != nil {
		return Summary{}, err
	}

	return s.cache.GetOrCompute(ctx, key, func(computeCtx context.Context) (Summary, error) {
		return s.compute(computeCtx, prop, period, loc)
	})
}

// compute runs exactly once per in-flight key. Its context is detached
// from any single waiter's cancellation by the cache layer.
func (s *Service) compute(ctx context.Context, prop Property, period Period, loc *time.Location) (Summary, error) {
	sess, err := s.pool.Acquire(ctx)
	if err != nil {
		s.logger.Warn("session acquisition failed",
			zap.String("property_id", string(prop.ID)),
			zap.Error(err))
		return Summary{}, &PoolUnavailableError{Err: err}
	}
	defer sess.Release()

	rng := period.Resolve(loc)

	raw, err := s.agg.SumRange(ctx, sess, prop.TenantID, prop.ID, rng)
	if err != nil {
		// The range sum is a read; retrying once is idempotent-safe.
		s.logger.Warn("aggregation retry",
			zap.String("property_id", string(prop.ID)),
			zap.String("period", period.Anchor()),
			zap.Error(err))
		select {
		case <-time.After(s.retryBackoff):
		case <-ctx.Done():
			return Summary{}, &AggregationError{Property: prop.ID, Err: ctx.Err()}
		}
		raw, err = s.agg.SumRange(ctx, sess, prop.TenantID, prop.ID, rng)
		if err != nil {
			s.logger.Error("aggregation failed",
				zap.String("property_id", string(prop.ID)),
				zap.String("period", period.Anchor()),
				zap.Error(err))
			return Summary{}, &AggregationError{Property: prop.ID, Err: err}
		}
	}

	return Summary{
		PropertyID: prop.ID,
		TenantID:   prop.TenantID,
		Total:      QuantizeTotal(raw.Sum),
		Currency:   DefaultCurrency,
		Count:      raw.Count,
		Period:     period,
		Timezone:   prop.Timezone,
	}, nil
}

// withSession acquires a scoped session and guarantees release on every
// exit path, wrapping acquisition failures into the caller-facing taxonomy.
func (s *Service) withSession(ctx context.Context, fn func(*session.Session) error) error {
	sess, err := s.pool.Acquire(ctx)
	if err != nil {
		return &PoolUnavailableError{Err: err}
	}
	defer sess.Release()
	return fn(sess)
}
