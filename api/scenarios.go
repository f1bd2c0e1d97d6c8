/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates tenants, properties,
	and reservations that demonstrate specific behaviors.

AVAILABLE SCENARIOS:

	two-tenants:  Two isolated tenants with properties in different zones
	dst-month:    Reservations hugging a month boundary in a UTC+1 zone

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Register properties under their tenants
 3. Append reservations
 4. Invalidate any cached totals for the seeded properties

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "two-tenants"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler struct, error helpers
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/revenue-engine/revenue"
)

// Resetter clears all stored data before a scenario load.
type Resetter interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "two-tenants",
		Name:        "Two Tenants",
		Description: "Two isolated tenants with properties in Los Angeles, Paris and Berlin",
	},
	{
		ID:          "dst-month",
		Name:        "Month Boundary in Paris",
		Description: "Reservations straddling the March 2024 local month boundary (UTC+1 zone)",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: h.currentScenario, Name: h.currentScenario})
}

// LoadScenario resets the database and seeds a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.Resetter == nil {
		writeError(w, http.StatusForbidden, "Scenario loading is disabled", nil)
		return
	}

	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Resetter.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "two-tenants":
		err = h.loadTwoTenantsScenario(ctx)
	case "dst-month":
		err = h.loadDSTMonthScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadTwoTenantsScenario(ctx context.Context) error {
	properties := []revenue.Property{
		{ID: "prop-ocean-view", TenantID: "tenant-pacific", Name: "Ocean View Villa", Timezone: "America/Los_Angeles"},
		{ID: "prop-rive-gauche", TenantID: "tenant-pacific", Name: "Rive Gauche Loft", Timezone: "Europe/Paris"},
		{ID: "prop-mitte-flat", TenantID: "tenant-alpine", Name: "Mitte Flat", Timezone: "Europe/Berlin"},
	}
	for _, p := range properties {
		if err := h.Properties.RegisterProperty(ctx, p); err != nil {
			return err
		}
	}

	seeds := []seedRow{
		// tenant-pacific, March 2024 in Los Angeles
		{"prop-ocean-view", "tenant-pacific", "2024-03-02T20:00:00Z", "250.00"},
		{"prop-ocean-view", "tenant-pacific", "2024-03-15T19:30:00Z", "312.50"},
		{"prop-ocean-view", "tenant-pacific", "2024-03-28T03:00:00Z", "189.995"},
		// tenant-pacific, Paris property; the first instant is Feb 29 23:30
		// UTC, which is already March 1 in Paris.
		{"prop-rive-gauche", "tenant-pacific", "2024-02-29T23:30:00Z", "140.00"},
		{"prop-rive-gauche", "tenant-pacific", "2024-03-10T12:00:00Z", "155.25"},
		// tenant-alpine must never appear in tenant-pacific's totals
		{"prop-mitte-flat", "tenant-alpine", "2024-03-05T10:00:00Z", "99.90"},
		{"prop-mitte-flat", "tenant-alpine", "2024-03-20T16:45:00Z", "120.10"},
	}
	return h.seedReservations(ctx, properties, seeds)
}

func (h *Handler) loadDSTMonthScenario(ctx context.Context) error {
	properties := []revenue.Property{
		{ID: "prop-marais", TenantID: "tenant-pacific", Name: "Marais Apartment", Timezone: "Europe/Paris"},
	}
	for _, p := range properties {
		if err := h.Properties.RegisterProperty(ctx, p); err != nil {
			return err
		}
	}

	seeds := []seedRow{
		// 22:59 UTC on Feb 29 is still February in Paris (UTC+1)
		{"prop-marais", "tenant-pacific", "2024-02-29T22:59:59Z", "80.00"},
		// 23:00 UTC on Feb 29 is exactly March 1 00:00 in Paris
		{"prop-marais", "tenant-pacific", "2024-02-29T23:00:00Z", "90.00"},
		// last instant of March in Paris: DST has shifted the offset to +2,
		// so local month end is 22:00 UTC on March 31
		{"prop-marais", "tenant-pacific", "2024-03-31T21:59:59Z", "110.00"},
		// first instant of April in Paris
		{"prop-marais", "tenant-pacific", "2024-03-31T22:00:00Z", "120.00"},
	}
	return h.seedReservations(ctx, properties, seeds)
}

// =============================================================================
// SEEDING HELPERS
// =============================================================================

// seedRow is one reservation literal: check-in as RFC 3339, amount as a
// decimal string.
type seedRow struct {
	property revenue.PropertyID
	tenant   revenue.TenantID
	checkIn  string
	amount   string
}

func (h *Handler) seedReservations(ctx context.Context, properties []revenue.Property, seeds []seedRow) error {
	for _, row := range seeds {
		checkIn, err := time.Parse(time.RFC3339, row.checkIn)
		if err != nil {
			return fmt.Errorf("seed check_in %q: %w", row.checkIn, err)
		}
		amount, err := decimal.NewFromString(row.amount)
		if err != nil {
			return fmt.Errorf("seed amount %q: %w", row.amount, err)
		}
		reservation := revenue.Reservation{
			ID:         revenue.ReservationID(uuid.NewString()),
			PropertyID: row.property,
			TenantID:   row.tenant,
			CheckIn:    checkIn.UTC(),
			Amount:     amount,
		}
		if err := h.Reservations.AddReservation(ctx, reservation); err != nil {
			return err
		}
	}
	// Caches may hold totals from a previously loaded scenario.
	for _, p := range properties {
		if err := h.Service.InvalidateProperty(ctx, p.TenantID, p.ID); err != nil {
			return err
		}
	}
	return nil
}
