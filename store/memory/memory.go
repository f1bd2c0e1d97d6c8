// Package memory provides in-memory storage implementations for testing
// and demos. It mirrors the SQLite store's semantics, including the
// half-open range sum and fixed-point exactness.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/revenue-engine/revenue"
	"github.com/warp/revenue-engine/session"
)

// Store implements revenue.PropertyStore, revenue.ReservationStore, and
// revenue.Aggregator in memory.
type Store struct {
	mu           sync.RWMutex
	properties   map[revenue.PropertyID]revenue.Property
	reservations map[revenue.PropertyID][]revenue.Reservation
}

func NewStore() *Store {
	return &Store{
		properties:   make(map[revenue.PropertyID]revenue.Property),
		reservations: make(map[revenue.PropertyID][]revenue.Reservation),
	}
}

// Reset clears all data.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.properties = make(map[revenue.PropertyID]revenue.Property)
	s.reservations = make(map[revenue.PropertyID][]revenue.Reservation)
	return nil
}

// =============================================================================
// PROPERTY STORE
// =============================================================================

func (s *Store) RegisterProperty(_ context.Context, p revenue.Property) error {
	if p.ID == "" || p.TenantID == "" || p.Timezone == "" {
		return fmt.Errorf("register property: id, tenant_id and timezone are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.properties[p.ID]; ok && existing.TenantID != p.TenantID {
		return fmt.Errorf("register property %s: already owned by another tenant", p.ID)
	}
	s.properties[p.ID] = p
	return nil
}

func (s *Store) GetProperty(_ context.Context, id revenue.PropertyID) (revenue.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.properties[id]
	if !ok {
		return revenue.Property{}, revenue.ErrPropertyNotFound
	}
	return p, nil
}

func (s *Store) ListByTenant(_ context.Context, tenant revenue.TenantID) ([]revenue.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []revenue.Property
	for _, p := range s.properties {
		if p.TenantID == tenant {
			out = append(out, p)
		}
	}
	return out, nil
}

// =============================================================================
// RESERVATION STORE
// =============================================================================

func (s *Store) AddReservation(_ context.Context, r revenue.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reservations[r.PropertyID] = append(s.reservations[r.PropertyID], r)
	return nil
}

func (s *Store) LatestCheckIn(_ context.Context, _ *session.Session, tenant revenue.TenantID, property revenue.PropertyID) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest time.Time
	found := false
	for _, r := range s.reservations[property] {
		if r.TenantID != tenant {
			continue
		}
		if !found || r.CheckIn.After(latest) {
			latest = r.CheckIn
			found = true
		}
	}
	return latest, found, nil
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// SumRange sums reservations in the half-open range with decimal
// arithmetic. The session is unused; memory needs no connection.
func (s *Store) SumRange(_ context.Context, _ *session.Session, tenant revenue.TenantID, property revenue.PropertyID, rng revenue.Range) (revenue.RawSum, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := decimal.Zero
	var count int64
	for _, r := range s.reservations[property] {
		if r.TenantID != tenant {
			continue
		}
		if rng.Contains(r.CheckIn) {
			sum = sum.Add(r.Amount)
			count++
		}
	}
	return revenue.RawSum{Sum: sum, Count: count}, nil
}
