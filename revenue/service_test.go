package revenue_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/revenue-engine/cache"
	"github.com/warp/revenue-engine/revenue"
	"github.com/warp/revenue-engine/session"
	"github.com/warp/revenue-engine/store/memory"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

// fakeConn satisfies session.Conn without a database. The stub aggregator
// never touches it.
type fakeConn struct{}

func (fakeConn) PingContext(context.Context) error { return nil }
func (fakeConn) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errors.New("fake connection")
}
func (fakeConn) QueryRowContext(context.Context, string, ...any) *sql.Row { return nil }
func (fakeConn) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errors.New("fake connection")
}
func (fakeConn) Close() error { return nil }

// stubPool hands out fake sessions, or fails when err is set.
type stubPool struct {
	mu  sync.Mutex
	err error
}

func (p *stubPool) Acquire(ctx context.Context) (*session.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return session.NewSession(fakeConn{}, nil), nil
}

func (p *stubPool) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// countingAgg returns a fixed raw sum and counts executions. The first
// `failures` calls fail.
type countingAgg struct {
	sum      decimal.Decimal
	count    int64
	calls    atomic.Int32
	failures atomic.Int32
}

func (a *countingAgg) SumRange(ctx context.Context, _ *session.Session, _ revenue.TenantID, _ revenue.PropertyID, _ revenue.Range) (revenue.RawSum, error) {
	a.calls.Add(1)
	if a.failures.Add(-1) >= 0 {
		return revenue.RawSum{}, errors.New("query failed")
	}
	return revenue.RawSum{Sum: a.sum, Count: a.count}, nil
}

type serviceFixture struct {
	service *revenue.Service
	store   *memory.Store
	pool    *stubPool
	agg     *countingAgg
	cache   *cache.Cache
}

func newServiceFixture(t *testing.T, agg revenue.Aggregator) serviceFixture {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()

	require.NoError(t, store.RegisterProperty(ctx, revenue.Property{
		ID: "prop-1", TenantID: "tenant-a", Name: "Villa", Timezone: "Europe/Paris",
	}))
	require.NoError(t, store.RegisterProperty(ctx, revenue.Property{
		ID: "prop-2", TenantID: "tenant-b", Name: "Flat", Timezone: "UTC",
	}))

	pool := &stubPool{}
	summaryCache := cache.New(cache.NewMemoryStore(), time.Minute)

	counting, _ := agg.(*countingAgg)
	service, err := revenue.NewService(revenue.ServiceConfig{
		Guard:        revenue.NewGuard(store),
		Cache:        summaryCache,
		Aggregator:   agg,
		Pool:         pool,
		Reservations: store,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)

	return serviceFixture{service: service, store: store, pool: pool, agg: counting, cache: summaryCache}
}

// =============================================================================
// QUANTIZATION AND SUMMARY SHAPE
// =============================================================================

func TestGetRevenue_QuantizesOnceAfterSum(t *testing.T) {
	// GIVEN: A raw sum of 30.015 over 3 reservations
	// WHEN: Fetching the March total
	// THEN: The total is 30.02 (half-up, applied once post-sum) with the
	//       property's timezone and the default currency

	agg := &countingAgg{sum: decimal.RequireFromString("30.015"), count: 3}
	f := newServiceFixture(t, agg)

	summary, err := f.service.GetRevenue(context.Background(), "tenant-a", "prop-1", "month", "2024-03")
	require.NoError(t, err)

	assert.Equal(t, "30.02", summary.Total.String())
	assert.Equal(t, int64(3), summary.Count)
	assert.Equal(t, revenue.DefaultCurrency, summary.Currency)
	assert.Equal(t, "Europe/Paris", summary.Timezone)
	assert.Equal(t, "2024-03", summary.Period.Anchor())
}

func TestGetRevenue_InvalidPeriodRejectedBeforeCompute(t *testing.T) {
	agg := &countingAgg{sum: decimal.Zero}
	f := newServiceFixture(t, agg)

	_, err := f.service.GetRevenue(context.Background(), "tenant-a", "prop-1", "week", "2024-03")
	assert.ErrorIs(t, err, revenue.ErrInvalidPeriod)
	assert.Equal(t, int32(0), agg.calls.Load())
}

// =============================================================================
// CACHING AND SINGLE FLIGHT
// =============================================================================

func TestGetRevenue_ConcurrentColdCacheComputesOnce(t *testing.T) {
	// GIVEN: A cold cache and 8 concurrent requests for the same key
	// WHEN: All requests complete
	// THEN: The aggregation ran exactly once and every caller got the
	//       same quantized total

	agg := &countingAgg{sum: decimal.RequireFromString("100.125"), count: 10}
	f := newServiceFixture(t, agg)

	const n = 8
	results := make([]revenue.Summary, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.service.GetRevenue(context.Background(), "tenant-a", "prop-1", "month", "2024-03")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), agg.calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "100.13", results[i].Total.String())
	}
}

func TestGetRevenue_RepeatRequestServedFromCache(t *testing.T) {
	agg := &countingAgg{sum: decimal.RequireFromString("50"), count: 2}
	f := newServiceFixture(t, agg)
	ctx := context.Background()

	_, err := f.service.GetRevenue(ctx, "tenant-a", "prop-1", "month", "2024-03")
	require.NoError(t, err)
	_, err = f.service.GetRevenue(ctx, "tenant-a", "prop-1", "month", "2024-03")
	require.NoError(t, err)

	assert.Equal(t, int32(1), agg.calls.Load())
}

func TestInvalidateProperty_ForcesRecompute(t *testing.T) {
	agg := &countingAgg{sum: decimal.RequireFromString("50"), count: 2}
	f := newServiceFixture(t, agg)
	ctx := context.Background()

	_, err := f.service.GetRevenue(ctx, "tenant-a", "prop-1", "month", "2024-03")
	require.NoError(t, err)

	require.NoError(t, f.service.InvalidateProperty(ctx, "tenant-a", "prop-1"))

	_, err = f.service.GetRevenue(ctx, "tenant-a", "prop-1", "month", "2024-03")
	require.NoError(t, err)
	assert.Equal(t, int32(2), agg.calls.Load())
}

// =============================================================================
// FAILURE POLICY
// =============================================================================

func TestGetRevenue_PoolDownSurfacesUnavailableAndCachesNothing(t *testing.T) {
	// GIVEN: A pool that cannot grant sessions
	// WHEN: Fetching a total, then restoring the pool and fetching again
	// THEN: The first request fails as unavailable without touching the
	//       aggregator; the second computes fresh - the failure was not
	//       cached

	agg := &countingAgg{sum: decimal.RequireFromString("75.50"), count: 1}
	f := newServiceFixture(t, agg)
	ctx := context.Background()

	f.pool.setErr(session.ErrPoolExhausted)
	_, err := f.service.GetRevenue(ctx, "tenant-a", "prop-1", "month", "2024-03")
	require.Error(t, err)
	assert.True(t, revenue.IsUnavailable(err))
	assert.Equal(t, int32(0), agg.calls.Load())

	f.pool.setErr(nil)
	summary, err := f.service.GetRevenue(ctx, "tenant-a", "prop-1", "month", "2024-03")
	require.NoError(t, err)
	assert.Equal(t, "75.5", summary.Total.String())
}

func TestGetRevenue_RetriesQueryOnce(t *testing.T) {
	// GIVEN: An aggregator that fails exactly once
	// WHEN: Fetching a total
	// THEN: The single retry succeeds and the caller sees no error

	agg := &countingAgg{sum: decimal.RequireFromString("20"), count: 1}
	agg.failures.Store(1)
	f := newServiceFixture(t, agg)

	summary, err := f.service.GetRevenue(context.Background(), "tenant-a", "prop-1", "month", "2024-03")
	require.NoError(t, err)
	assert.Equal(t, "20", summary.Total.String())
	assert.Equal(t, int32(2), agg.calls.Load())
}

func TestGetRevenue_FailureAfterRetryNotCached(t *testing.T) {
	agg := &countingAgg{sum: decimal.RequireFromString("20"), count: 1}
	agg.failures.Store(2)
	f := newServiceFixture(t, agg)
	ctx := context.Background()

	_, err := f.service.GetRevenue(ctx, "tenant-a", "prop-1", "month", "2024-03")
	assert.ErrorIs(t, err, revenue.ErrAggregationFailed)
	assert.Equal(t, int32(2), agg.calls.Load())

	// Next request recomputes instead of serving the failure.
	summary, err := f.service.GetRevenue(ctx, "tenant-a", "prop-1", "month", "2024-03")
	require.NoError(t, err)
	assert.Equal(t, "20", summary.Total.String())
	assert.Equal(t, int32(3), agg.calls.Load())
}

// =============================================================================
// TENANT ISOLATION
// =============================================================================

func TestGetRevenue_ForeignTenantBlockedEvenWhenCached(t *testing.T) {
	// GIVEN: tenant-a has a cached total for prop-1
	// WHEN: tenant-b requests the same property and period
	// THEN: The guard rejects before any cache lookup; the cached entry
	//       never leaks across tenants

	agg := &countingAgg{sum: decimal.RequireFromString("500"), count: 5}
	f := newServiceFixture(t, agg)
	ctx := context.Background()

	_, err := f.service.GetRevenue(ctx, "tenant-a", "prop-1", "month", "2024-03")
	require.NoError(t, err)

	_, err = f.service.GetRevenue(ctx, "tenant-b", "prop-1", "month", "2024-03")
	assert.ErrorIs(t, err, revenue.ErrNotOwned)
	assert.Equal(t, int32(1), agg.calls.Load())
}

// =============================================================================
// LATEST-PERIOD FALLBACK
// =============================================================================

func TestGetLatestRevenue_AnchorsOnLatestCheckIn(t *testing.T) {
	// GIVEN: A Paris property whose latest check-in is 23:30 UTC on Feb 29
	// WHEN: Fetching the latest revenue with no explicit period
	// THEN: The reported month is March 2024 (the check-in's local month)
	//       and the total includes that reservation

	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.RegisterProperty(ctx, revenue.Property{
		ID: "prop-1", TenantID: "tenant-a", Timezone: "Europe/Paris",
	}))
	require.NoError(t, store.AddReservation(ctx, revenue.Reservation{
		ID: "res-1", PropertyID: "prop-1", TenantID: "tenant-a",
		CheckIn: time.Date(2024, time.February, 29, 23, 30, 0, 0, time.UTC),
		Amount:  decimal.RequireFromString("140.00"),
	}))

	service, err := revenue.NewService(revenue.ServiceConfig{
		Guard:        revenue.NewGuard(store),
		Cache:        cache.New(cache.NewMemoryStore(), time.Minute),
		Aggregator:   store,
		Pool:         &stubPool{},
		Reservations: store,
	})
	require.NoError(t, err)

	summary, err := service.GetLatestRevenue(ctx, "tenant-a", "prop-1")
	require.NoError(t, err)
	assert.Equal(t, "2024-03", summary.Period.Anchor())
	assert.Equal(t, "140", summary.Total.String())
	assert.Equal(t, int64(1), summary.Count)
}

func TestGetLatestRevenue_NoReservationsUsesCurrentMonth(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.RegisterProperty(ctx, revenue.Property{
		ID: "prop-1", TenantID: "tenant-a", Timezone: "UTC",
	}))

	fixedNow := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	service, err := revenue.NewService(revenue.ServiceConfig{
		Guard:        revenue.NewGuard(store),
		Cache:        cache.New(cache.NewMemoryStore(), time.Minute),
		Aggregator:   store,
		Pool:         &stubPool{},
		Reservations: store,
		Now:          func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	summary, err := service.GetLatestRevenue(ctx, "tenant-a", "prop-1")
	require.NoError(t, err)
	assert.Equal(t, "2024-06", summary.Period.Anchor())
	assert.True(t, summary.Total.IsZero())
	assert.Equal(t, int64(0), summary.Count)
}
