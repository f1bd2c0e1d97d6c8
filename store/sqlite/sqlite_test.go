package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/revenue-engine/revenue"
	"github.com/warp/revenue-engine/session"
	"github.com/warp/revenue-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestStore(t *testing.T) (*sqlite.Store, *session.Pool) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "revenue_test.db")
	store, err := sqlite.New(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	pool := session.NewPool(store.DB(), session.Options{MaxSize: 2, ConnectTimeout: time.Second})
	t.Cleanup(pool.Close)
	return store, pool
}

func addReservation(t *testing.T, store *sqlite.Store, property revenue.PropertyID, tenant revenue.TenantID, id, checkIn, amount string) {
	t.Helper()
	instant, err := time.Parse(time.RFC3339, checkIn)
	if err != nil {
		t.Fatalf("parse check-in %q: %v", checkIn, err)
	}
	err = store.AddReservation(context.Background(), revenue.Reservation{
		ID:         revenue.ReservationID(id),
		PropertyID: property,
		TenantID:   tenant,
		CheckIn:    instant,
		Amount:     decimal.RequireFromString(amount),
	})
	if err != nil {
		t.Fatalf("add reservation %s: %v", id, err)
	}
}

func sumRange(t *testing.T, store *sqlite.Store, pool *session.Pool, tenant revenue.TenantID, property revenue.PropertyID, rng revenue.Range) revenue.RawSum {
	t.Helper()
	var raw revenue.RawSum
	err := pool.WithSession(context.Background(), func(sess *session.Session) error {
		var sumErr error
		raw, sumErr = store.SumRange(context.Background(), sess, tenant, property, rng)
		return sumErr
	})
	if err != nil {
		t.Fatalf("sum range: %v", err)
	}
	return raw
}

func registerTestProperty(t *testing.T, store *sqlite.Store, id revenue.PropertyID, tenant revenue.TenantID) {
	t.Helper()
	err := store.RegisterProperty(context.Background(), revenue.Property{
		ID: id, TenantID: tenant, Name: string(id), Timezone: "UTC",
	})
	if err != nil {
		t.Fatalf("register property %s: %v", id, err)
	}
}

// =============================================================================
// AGGREGATION
// =============================================================================

func TestSumRange_ExactFixedPointSum(t *testing.T) {
	// GIVEN: Three reservations of 10.005 each, stored as thousandths
	// WHEN: Summing the containing month
	// THEN: The raw sum is exactly 30.015 with a count of 3; no float
	//       artifacts, no premature rounding

	store, pool := newTestStore(t)
	registerTestProperty(t, store, "prop-1", "tenant-a")
	for i, checkIn := range []string{"2024-03-05T10:00:00Z", "2024-03-12T10:00:00Z", "2024-03-20T10:00:00Z"} {
		addReservation(t, store, "prop-1", "tenant-a", string(rune('a'+i)), checkIn, "10.005")
	}

	rng := revenue.MonthPeriod(2024, time.March).Resolve(time.UTC)
	raw := sumRange(t, store, pool, "tenant-a", "prop-1", rng)

	if raw.Sum.String() != "30.015" {
		t.Errorf("sum = %s, want 30.015", raw.Sum)
	}
	if raw.Count != 3 {
		t.Errorf("count = %d, want 3", raw.Count)
	}
}

func TestSumRange_HalfOpenBoundaries(t *testing.T) {
	// GIVEN: Reservations at the exact start and end instants of March UTC
	// WHEN: Summing March
	// THEN: The start instant is included, the end instant is not

	store, pool := newTestStore(t)
	registerTestProperty(t, store, "prop-1", "tenant-a")
	addReservation(t, store, "prop-1", "tenant-a", "at-start", "2024-03-01T00:00:00Z", "100")
	addReservation(t, store, "prop-1", "tenant-a", "at-end", "2024-04-01T00:00:00Z", "200")

	rng := revenue.MonthPeriod(2024, time.March).Resolve(time.UTC)
	raw := sumRange(t, store, pool, "tenant-a", "prop-1", rng)

	if raw.Sum.String() != "100" {
		t.Errorf("sum = %s, want 100 (end boundary must be excluded)", raw.Sum)
	}
	if raw.Count != 1 {
		t.Errorf("count = %d, want 1", raw.Count)
	}
}

func TestSumRange_EmptyRangeIsZeroNotError(t *testing.T) {
	store, pool := newTestStore(t)
	registerTestProperty(t, store, "prop-1", "tenant-a")

	rng := revenue.MonthPeriod(2024, time.March).Resolve(time.UTC)
	raw := sumRange(t, store, pool, "tenant-a", "prop-1", rng)

	if !raw.Sum.IsZero() {
		t.Errorf("sum = %s, want 0", raw.Sum)
	}
	if raw.Count != 0 {
		t.Errorf("count = %d, want 0", raw.Count)
	}
}

func TestSumRange_FiltersByTenant(t *testing.T) {
	// GIVEN: Reservations for the same property id under two tenant
	//        columns (hypothetical corruption or shared-id scenario)
	// WHEN: Summing as tenant-a
	// THEN: Rows stamped with another tenant are excluded

	store, pool := newTestStore(t)
	registerTestProperty(t, store, "prop-1", "tenant-a")
	addReservation(t, store, "prop-1", "tenant-a", "mine", "2024-03-05T10:00:00Z", "50")
	addReservation(t, store, "prop-1", "tenant-b", "theirs", "2024-03-06T10:00:00Z", "999")

	rng := revenue.MonthPeriod(2024, time.March).Resolve(time.UTC)
	raw := sumRange(t, store, pool, "tenant-a", "prop-1", rng)

	if raw.Sum.String() != "50" {
		t.Errorf("sum = %s, want 50", raw.Sum)
	}
}

// =============================================================================
// AMOUNT PRECISION
// =============================================================================

func TestAddReservation_RejectsExcessPrecision(t *testing.T) {
	store, _ := newTestStore(t)
	registerTestProperty(t, store, "prop-1", "tenant-a")

	err := store.AddReservation(context.Background(), revenue.Reservation{
		ID: "too-fine", PropertyID: "prop-1", TenantID: "tenant-a",
		CheckIn: time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC),
		Amount:  decimal.RequireFromString("10.0005"),
	})
	if !errors.Is(err, revenue.ErrAmountPrecision) {
		t.Errorf("error = %v, want ErrAmountPrecision", err)
	}
}

func TestAddReservation_RejectsOversizedAmount(t *testing.T) {
	store, _ := newTestStore(t)
	registerTestProperty(t, store, "prop-1", "tenant-a")

	err := store.AddReservation(context.Background(), revenue.Reservation{
		ID: "too-big", PropertyID: "prop-1", TenantID: "tenant-a",
		CheckIn: time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC),
		Amount:  decimal.RequireFromString("10000000000.000"),
	})
	if !errors.Is(err, revenue.ErrAmountPrecision) {
		t.Errorf("error = %v, want ErrAmountPrecision", err)
	}
}

// =============================================================================
// LATEST CHECK-IN
// =============================================================================

func TestLatestCheckIn(t *testing.T) {
	store, pool := newTestStore(t)
	registerTestProperty(t, store, "prop-1", "tenant-a")
	addReservation(t, store, "prop-1", "tenant-a", "old", "2024-01-10T08:00:00Z", "10")
	addReservation(t, store, "prop-1", "tenant-a", "new", "2024-03-15T09:30:00Z", "20")
	addReservation(t, store, "prop-1", "tenant-b", "foreign", "2024-05-01T00:00:00Z", "30")

	err := pool.WithSession(context.Background(), func(sess *session.Session) error {
		latest, found, err := store.LatestCheckIn(context.Background(), sess, "tenant-a", "prop-1")
		if err != nil {
			return err
		}
		if !found {
			t.Fatal("expected a latest check-in")
		}
		want := time.Date(2024, time.March, 15, 9, 30, 0, 0, time.UTC)
		if !latest.Equal(want) {
			t.Errorf("latest = %v, want %v", latest, want)
		}

		_, found, err = store.LatestCheckIn(context.Background(), sess, "tenant-a", "prop-empty")
		if err != nil {
			return err
		}
		if found {
			t.Error("empty property should report no latest check-in")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("latest check-in: %v", err)
	}
}

// =============================================================================
// PROPERTY OWNERSHIP
// =============================================================================

func TestRegisterProperty_OwnershipIsImmutable(t *testing.T) {
	// GIVEN: A property registered to tenant-a
	// WHEN: tenant-b tries to register the same id, and tenant-a updates it
	// THEN: The foreign registration fails; the owner's update succeeds

	store, _ := newTestStore(t)
	ctx := context.Background()
	registerTestProperty(t, store, "prop-1", "tenant-a")

	err := store.RegisterProperty(ctx, revenue.Property{
		ID: "prop-1", TenantID: "tenant-b", Timezone: "UTC",
	})
	if err == nil {
		t.Fatal("re-registration under another tenant should fail")
	}

	err = store.RegisterProperty(ctx, revenue.Property{
		ID: "prop-1", TenantID: "tenant-a", Name: "Renamed", Timezone: "Europe/Paris",
	})
	if err != nil {
		t.Fatalf("owner update: %v", err)
	}
	prop, err := store.GetProperty(ctx, "prop-1")
	if err != nil {
		t.Fatalf("get property: %v", err)
	}
	if prop.Name != "Renamed" || prop.Timezone != "Europe/Paris" || prop.TenantID != "tenant-a" {
		t.Errorf("unexpected property after update: %+v", prop)
	}
}

func TestGetProperty_NotFound(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.GetProperty(context.Background(), "prop-nope")
	if !errors.Is(err, revenue.ErrPropertyNotFound) {
		t.Errorf("error = %v, want ErrPropertyNotFound", err)
	}
}

func TestReset_ClearsAllData(t *testing.T) {
	store, pool := newTestStore(t)
	ctx := context.Background()
	registerTestProperty(t, store, "prop-1", "tenant-a")
	addReservation(t, store, "prop-1", "tenant-a", "r1", "2024-03-05T10:00:00Z", "10")

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if _, err := store.GetProperty(ctx, "prop-1"); !errors.Is(err, revenue.ErrPropertyNotFound) {
		t.Errorf("property survived reset: %v", err)
	}
	rng := revenue.MonthPeriod(2024, time.March).Resolve(time.UTC)
	raw := sumRange(t, store, pool, "tenant-a", "prop-1", rng)
	if raw.Count != 0 {
		t.Errorf("reservations survived reset: count = %d", raw.Count)
	}
}
