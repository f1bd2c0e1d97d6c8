// Package events carries reservation-change notifications between the
// write side and the revenue cache. A reservation mutation publishes a
// ReservationChanged event; the consumer invalidates every cached period
// total for the affected tenant/property pair.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// ReservationChanged announces that a reservation affecting a property
// was created, updated, or removed. Tenant and property are both
// mandatory: an invalidation without a tenant cannot be scoped and is
// rejected.
type ReservationChanged struct {
	EventID       string    `json:"event_id"`
	TenantID      string    `json:"tenant_id"`
	PropertyID    string    `json:"property_id"`
	ReservationID string    `json:"reservation_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Validate checks the mandatory scoping fields.
func (m ReservationChanged) Validate() error {
	if m.TenantID == "" {
		return fmt.Errorf("reservation changed event: tenant_id is required")
	}
	if m.PropertyID == "" {
		return fmt.Errorf("reservation changed event: property_id is required")
	}
	return nil
}

// Encode serializes the event for publishing.
func (m ReservationChanged) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeReservationChanged parses and validates an event payload.
func DecodeReservationChanged(body []byte) (ReservationChanged, error) {
	var m ReservationChanged
	if err := json.Unmarshal(body, &m); err != nil {
		return ReservationChanged{}, fmt.Errorf("decode reservation changed event: %w", err)
	}
	if err := m.Validate(); err != nil {
		return ReservationChanged{}, err
	}
	return m, nil
}
