/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the HTTP collaborator. Totals are serialized as
  decimal strings ("30.02"), never floats, so the 2-digit quantization
  survives the wire.

SEE ALSO:
  - handlers.go: uses these types
*/
package api

import (
	"github.com/warp/revenue-engine/revenue"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// SummaryDTO is the dashboard revenue figure for one property and period.
type SummaryDTO struct {
	PropertyID        string `json:"property_id"`
	TotalRevenue      string `json:"total_revenue"`
	Currency          string `json:"currency"`
	ReservationsCount int64  `json:"reservations_count"`
	PeriodType        string `json:"period_type"`
	PeriodAnchor      string `json:"period_anchor"`
	Timezone          string `json:"timezone"`
}

func toSummaryDTO(s revenue.Summary) SummaryDTO {
	return SummaryDTO{
		PropertyID:        string(s.PropertyID),
		TotalRevenue:      s.Total.StringFixed(revenue.TotalScale),
		Currency:          s.Currency,
		ReservationsCount: s.Count,
		PeriodType:        string(s.Period.Type),
		PeriodAnchor:      s.Period.Anchor(),
		Timezone:          s.Timezone,
	}
}

// PropertyDTO represents a property in listings.
type PropertyDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

func toPropertyDTOs(props []revenue.Property) []PropertyDTO {
	dtos := make([]PropertyDTO, 0, len(props))
	for _, p := range props {
		dtos = append(dtos, PropertyDTO{ID: string(p.ID), Name: p.Name, Timezone: p.Timezone})
	}
	return dtos
}

// ErrorResponse is the explicit error state for a failed fetch. A failed
// revenue lookup renders as this, never as a plausible-looking number.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ScenarioDTO describes an available demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreatePropertyRequest registers a property under the requesting tenant.
type CreatePropertyRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

// CreateReservationRequest appends a reservation to an owned property.
// CheckIn is RFC 3339; Amount is a decimal string with at most 3
// fractional digits.
type CreateReservationRequest struct {
	ID         string `json:"id"`
	PropertyID string `json:"property_id"`
	CheckIn    string `json:"check_in"`
	Amount     string `json:"amount"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}
