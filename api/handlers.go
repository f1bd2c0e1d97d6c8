/*
handlers.go - HTTP handlers for the revenue dashboard API

PURPOSE:
  Exposes the revenue engine to the UI collaborator. Handles HTTP
  request/response and JSON serialization; every decision about
  ownership, periods, caching, and precision is delegated to the core.

ENDPOINTS:
  GET  /api/dashboard/summary   Revenue summary for one property/period
  GET  /api/properties          Tenant-scoped property listing
  POST /api/properties          Register a property (demo)
  POST /api/reservations        Append a reservation (demo, invalidates)
  POST /api/scenarios/load      Seed a demo scenario

TENANT RESOLUTION:
  The tenant comes from the X-Tenant-ID header. Session issuance and
  authentication are external collaborators; this layer only requires
  that SOME tenant is present and passes it to the guard, which is the
  actual isolation chokepoint.

ERROR HANDLING:
  400: missing tenant, malformed body, invalid period/anchor/timezone
  403: property not accessible (single generic message - a missing
       property and a foreign property are indistinguishable)
  502: aggregation failed after retry
  503: session pool exhausted or database unreachable
  A failed fetch is always an explicit error body, never a fabricated
  or zero total.

SEE ALSO:
  - dto.go: request/response types
  - server.go: router setup and middleware
  - scenarios.go: demo data seeding
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/revenue-engine/events"
	"github.com/warp/revenue-engine/revenue"
)

const tenantHeader = "X-Tenant-ID"

// EventPublisher is the slice of the events client the handlers use. Nil
// means no broker is configured and invalidation happens in-process.
type EventPublisher interface {
	PublishReservationChanged(ctx context.Context, msg events.ReservationChanged) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service      *revenue.Service
	Properties   revenue.PropertyStore
	Reservations revenue.ReservationStore
	Publisher    EventPublisher
	Logger       *zap.Logger

	// Resetter enables demo scenario loading; nil disables it.
	Resetter Resetter

	currentScenario string
}

// NewHandler wires a handler. Publisher may be nil.
func NewHandler(service *revenue.Service, properties revenue.PropertyStore, reservations revenue.ReservationStore, publisher EventPublisher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Service:      service,
		Properties:   properties,
		Reservations: reservations,
		Publisher:    publisher,
		Logger:       logger,
	}
}

// =============================================================================
// DASHBOARD
// =============================================================================

// GetDashboardSummary returns the revenue summary for one property.
// GET /api/dashboard/summary?property_id=...&period=month&anchor=2024-03
// Also accepts the legacy month=3&year=2024 pair. With no period at all,
// the month of the latest reservation is reported.
func (h *Handler) GetDashboardSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenant, ok := tenantFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Tenant not resolved for request", nil)
		return
	}
	propertyID := r.URL.Query().Get("property_id")
	if propertyID == "" {
		writeError(w, http.StatusBadRequest, "property_id is required", nil)
		return
	}

	period, hasPeriod, err := periodFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	var summary revenue.Summary
	if hasPeriod {
		summary, err = h.Service.GetRevenueForPeriod(ctx, tenant, revenue.PropertyID(propertyID), period)
	} else {
		summary, err = h.Service.GetLatestRevenue(ctx, tenant, revenue.PropertyID(propertyID))
	}
	if err != nil {
		h.writeRevenueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// =============================================================================
// PROPERTIES
// =============================================================================

// ListProperties returns the requesting tenant's properties.
// GET /api/properties
func (h *Handler) ListProperties(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Tenant not resolved for request", nil)
		return
	}
	props, err := h.Service.ListProperties(r.Context(), tenant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list properties", err)
		return
	}
	writeJSON(w, http.StatusOK, toPropertyDTOs(props))
}

// CreateProperty registers a property under the requesting tenant.
// POST /api/properties
func (h *Handler) CreateProperty(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Tenant not resolved for request", nil)
		return
	}
	var req CreatePropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Timezone == "" {
		writeError(w, http.StatusBadRequest, "id and timezone are required", nil)
		return
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		writeError(w, http.StatusBadRequest, "Unknown timezone (use an IANA zone name)", err)
		return
	}

	prop := revenue.Property{
		ID:       revenue.PropertyID(req.ID),
		TenantID: tenant,
		Name:     req.Name,
		Timezone: req.Timezone,
	}
	if err := h.Properties.RegisterProperty(r.Context(), prop); err != nil {
		writeError(w, http.StatusConflict, "Failed to register property", err)
		return
	}
	writeJSON(w, http.StatusCreated, PropertyDTO{ID: req.ID, Name: req.Name, Timezone: req.Timezone})
}

// =============================================================================
// RESERVATIONS
// =============================================================================

// CreateReservation appends a reservation to an owned property and
// invalidates the property's cached totals.
// POST /api/reservations
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenant, ok := tenantFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Tenant not resolved for request", nil)
		return
	}
	var req CreateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PropertyID == "" || req.CheckIn == "" || req.Amount == "" {
		writeError(w, http.StatusBadRequest, "property_id, check_in and amount are required", nil)
		return
	}

	checkIn, err := time.Parse(time.RFC3339, req.CheckIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid check_in (use RFC 3339)", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	reservation := revenue.Reservation{
		ID:         revenue.ReservationID(req.ID),
		PropertyID: revenue.PropertyID(req.PropertyID),
		TenantID:   tenant,
		CheckIn:    checkIn.UTC(),
		Amount:     amount,
	}
	if err := h.addReservation(ctx, tenant, reservation); err != nil {
		h.writeRevenueError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

// addReservation guards the mutation, persists it, and triggers
// invalidation through the broker when configured, in-process otherwise.
func (h *Handler) addReservation(ctx context.Context, tenant revenue.TenantID, reservation revenue.Reservation) error {
	prop, err := h.authorize(ctx, tenant, reservation.PropertyID)
	if err != nil {
		return err
	}
	reservation.TenantID = prop.TenantID
	if err := h.Reservations.AddReservation(ctx, reservation); err != nil {
		return err
	}

	if h.Publisher != nil {
		msg := events.ReservationChanged{
			TenantID:      string(tenant),
			PropertyID:    string(reservation.PropertyID),
			ReservationID: string(reservation.ID),
		}
		if err := h.Publisher.PublishReservationChanged(ctx, msg); err != nil {
			h.Logger.Warn("publish invalidation event failed; invalidating in-process",
				zap.String("property_id", string(reservation.PropertyID)),
				zap.Error(err))
			return h.Service.InvalidateProperty(ctx, tenant, reservation.PropertyID)
		}
		return nil
	}
	return h.Service.InvalidateProperty(ctx, tenant, reservation.PropertyID)
}

// authorize runs the ownership check for mutations via the service's
// guard path (a listing that contains the property is proof of ownership
// would be weaker; this asks the guard directly).
func (h *Handler) authorize(ctx context.Context, tenant revenue.TenantID, property revenue.PropertyID) (revenue.Property, error) {
	prop, err := h.Properties.GetProperty(ctx, property)
	if err != nil || prop.TenantID != tenant {
		return revenue.Property{}, &revenue.NotOwnedError{Tenant: tenant, Property: property}
	}
	return prop, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func tenantFrom(r *http.Request) (revenue.TenantID, bool) {
	tenant := r.Header.Get(tenantHeader)
	return revenue.TenantID(tenant), tenant != ""
}

// periodFromQuery parses ?period=&anchor= or the legacy ?month=&year=
// pair. Returns hasPeriod=false when neither is present.
func periodFromQuery(r *http.Request) (revenue.Period, bool, error) {
	q := r.URL.Query()

	periodType := q.Get("period")
	anchor := q.Get("anchor")
	if periodType != "" || anchor != "" {
		p, err := revenue.ParsePeriod(periodType, anchor)
		return p, true, err
	}

	monthStr := q.Get("month")
	yearStr := q.Get("year")
	if monthStr == "" && yearStr == "" {
		return revenue.Period{}, false, nil
	}
	if monthStr == "" || yearStr == "" {
		return revenue.Period{}, false, fmt.Errorf("month and year must be provided together")
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil {
		return revenue.Period{}, false, fmt.Errorf("month must be numeric")
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return revenue.Period{}, false, fmt.Errorf("year must be numeric")
	}
	p, err := revenue.ParsePeriod(string(revenue.PeriodMonth), fmt.Sprintf("%04d-%02d", year, month))
	return p, true, err
}

// writeRevenueError maps the core taxonomy to HTTP statuses. The NotOwned
// message is constant: it never distinguishes missing from foreign.
func (h *Handler) writeRevenueError(w http.ResponseWriter, err error) {
	switch {
	case revenue.IsUnavailable(err):
		h.Logger.Error("revenue fetch failed: pool unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Revenue data temporarily unavailable", nil)
	case errors.Is(err, revenue.ErrNotOwned):
		writeError(w, http.StatusForbidden, "Property not accessible", nil)
	case errors.Is(err, revenue.ErrInvalidPeriod):
		writeError(w, http.StatusBadRequest, "Invalid period", err)
	case errors.Is(err, revenue.ErrAmountPrecision):
		writeError(w, http.StatusBadRequest, "Invalid amount precision", err)
	case errors.Is(err, revenue.ErrAggregationFailed):
		h.Logger.Error("revenue fetch failed: aggregation", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Revenue aggregation failed", nil)
	default:
		h.Logger.Error("revenue fetch failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
