/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements revenue.PropertyStore, revenue.ReservationStore, and
  revenue.Aggregator using SQLite. The same patterns apply to PostgreSQL;
  only SQL dialect details differ.

FIXED-POINT AMOUNTS:
  Reservation amounts are persisted as INTEGER thousandths (3 fractional
  digits of stored precision, 10 integer digits), so the range SUM runs in
  exact integer arithmetic inside the database. The sum is rehydrated as a
  decimal with exponent -3. Binary floating point never touches an amount.

SESSIONS:
  Aggregation and the latest-check-in lookup run through a scoped
  session.Session from the bounded pool; property metadata lookups use the
  store's own handle. The *sql.DB is exposed so the pool and the store
  share one connection set.

KEY TABLES:
  properties:   {id, tenant_id, name, timezone} - one owning tenant each
  reservations: {id, property_id, tenant_id, check_in, amount_milli}

WAL MODE:
  SQLite is opened with WAL so concurrent readers do not block.

SEE ALSO:
  - revenue/store.go: interface definitions
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/revenue-engine/revenue"
	"github.com/warp/revenue-engine/session"
)

// checkInLayout keeps stored instants lexically ordered: UTC RFC 3339
// with fixed-width fields.
const checkInLayout = "2006-01-02T15:04:05Z"

// maxAmountMilli bounds stored amounts to 10 integer digits.
const maxAmountMilli = int64(1e13)

// Store implements the storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store, nil
}

// DB exposes the handle so the session pool bounds the same connections.
func (s *Store) DB() *sql.DB { return s.db }

// Reset clears all data. Used by demo scenario loading only.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reservations; DELETE FROM properties;`)
	if err != nil {
		return fmt.Errorf("reset database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS properties (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		timezone TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_properties_tenant
		ON properties(tenant_id);

	-- Reservations carry their owning tenant alongside the property so
	-- the aggregation query can filter on both (defense in depth beyond
	-- the guard). Amounts are integer thousandths.
	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		property_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		check_in TEXT NOT NULL,
		amount_milli INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Hot path: range-filtered sum per property.
	CREATE INDEX IF NOT EXISTS idx_reservations_property_checkin
		ON reservations(property_id, tenant_id, check_in);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PROPERTY STORE
// =============================================================================

// RegisterProperty inserts or updates a property record. Ownership is
// immutable: an update may change the name or timezone, never the tenant.
func (s *Store) RegisterProperty(ctx context.Context, p revenue.Property) error {
	if p.ID == "" || p.TenantID == "" || p.Timezone == "" {
		return fmt.Errorf("register property: id, tenant_id and timezone are required")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO properties (id, tenant_id, name, timezone, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			timezone = excluded.timezone
		WHERE properties.tenant_id = excluded.tenant_id`,
		string(p.ID), string(p.TenantID), p.Name, p.Timezone,
		time.Now().UTC().Format(checkInLayout))
	if err != nil {
		return fmt.Errorf("register property: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("register property %s: already owned by another tenant", p.ID)
	}
	return nil
}

// GetProperty returns the registered property or revenue.ErrPropertyNotFound.
func (s *Store) GetProperty(ctx context.Context, id revenue.PropertyID) (revenue.Property, error) {
	var p revenue.Property
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, timezone
		FROM properties
		WHERE id = ?`, string(id)).
		Scan(&p.ID, &p.TenantID, &p.Name, &p.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return revenue.Property{}, revenue.ErrPropertyNotFound
	}
	if err != nil {
		return revenue.Property{}, fmt.Errorf("get property: %w", err)
	}
	return p, nil
}

// ListByTenant returns the tenant's properties ordered by id.
func (s *Store) ListByTenant(ctx context.Context, tenant revenue.TenantID) ([]revenue.Property, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, timezone
		FROM properties
		WHERE tenant_id = ?
		ORDER BY id`, string(tenant))
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	var out []revenue.Property
	for rows.Next() {
		var p revenue.Property
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Timezone); err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// RESERVATION STORE
// =============================================================================

// AddReservation persists a reservation. The amount must fit the stored
// fixed-point representation exactly; anything finer than 3 fractional
// digits is rejected rather than silently rounded.
func (s *Store) AddReservation(ctx context.Context, r revenue.Reservation) error {
	milli, err := amountToMilli(r.Amount)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reservations (id, property_id, tenant_id, check_in, amount_milli, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(r.ID), string(r.PropertyID), string(r.TenantID),
		r.CheckIn.UTC().Format(checkInLayout), milli,
		time.Now().UTC().Format(checkInLayout))
	if err != nil {
		return fmt.Errorf("add reservation: %w", err)
	}
	return nil
}

// LatestCheckIn returns the most recent check-in instant for the tenant's
// property.
func (s *Store) LatestCheckIn(ctx context.Context, sess *session.Session, tenant revenue.TenantID, property revenue.PropertyID) (time.Time, bool, error) {
	var latest sql.NullString
	err := sess.QueryRowContext(ctx, `
		SELECT MAX(check_in)
		FROM reservations
		WHERE property_id = ? AND tenant_id = ?`,
		string(property), string(tenant)).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest check-in: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(checkInLayout, latest.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse check-in %q: %w", latest.String, err)
	}
	return t, true, nil
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// SumRange issues the single range-filtered sum over the half-open UTC
// range [rng.Start, rng.End). The sum stays in integer thousandths until
// it is rehydrated as a decimal; an empty range yields zero, not an error.
func (s *Store) SumRange(ctx context.Context, sess *session.Session, tenant revenue.TenantID, property revenue.PropertyID, rng revenue.Range) (revenue.RawSum, error) {
	var sumMilli int64
	var count int64
	err := sess.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_milli), 0), COUNT(*)
		FROM reservations
		WHERE property_id = ?
		  AND tenant_id = ?
		  AND check_in >= ?
		  AND check_in < ?`,
		string(property), string(tenant),
		rng.Start.UTC().Format(checkInLayout),
		rng.End.UTC().Format(checkInLayout)).
		Scan(&sumMilli, &count)
	if err != nil {
		return revenue.RawSum{}, fmt.Errorf("sum reservations: %w", err)
	}
	return revenue.RawSum{Sum: decimal.New(sumMilli, -revenue.StoredScale), Count: count}, nil
}

// amountToMilli converts a decimal amount into integer thousandths,
// rejecting values that do not fit DECIMAL(13,3).
func amountToMilli(amount decimal.Decimal) (int64, error) {
	shifted := amount.Shift(revenue.StoredScale)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: %s has more than %d fractional digits",
			revenue.ErrAmountPrecision, amount.String(), revenue.StoredScale)
	}
	milli := shifted.IntPart()
	if milli <= -maxAmountMilli || milli >= maxAmountMilli {
		return 0, fmt.Errorf("%w: %s exceeds 10 integer digits",
			revenue.ErrAmountPrecision, amount.String())
	}
	return milli, nil
}
