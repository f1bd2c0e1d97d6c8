/*
guard.go - Tenant isolation chokepoint

PURPOSE:
  The single place that decides whether a requested property belongs to
  the requesting tenant. Every revenue read, cache lookup, property
  listing, and demo mutation passes through here first, so a forged or
  stale cache key can never surface another tenant's total.

NO INFORMATION LEAK:
  A property that does not exist and a property owned by another tenant
  fail with the SAME NotOwned kind. Callers cannot probe for the existence
  of foreign properties.
*/
package revenue

import (
	"context"
	"errors"
	"fmt"
)

// Guard validates property ownership against the registered owner.
type Guard struct {
	props PropertyStore
}

func NewGuard(props PropertyStore) *Guard {
	return &Guard{props: props}
}

// Authorize returns the property when it is registered to tenant, and a
// NotOwnedError otherwise. Ownership is compared by value equality on the
// registered tenant ID.
func (g *Guard) Authorize(ctx context.Context, tenant TenantID, property PropertyID) (Property, error) {
	p, err := g.props.GetProperty(ctx, property)
	if err != nil {
		if errors.Is(err, ErrPropertyNotFound) {
			return Property{}, &NotOwnedError{Tenant: tenant, Property: property}
		}
		return Property{}, fmt.Errorf("lookup property: %w", err)
	}
	if p.TenantID != tenant {
		return Property{}, &NotOwnedError{Tenant: tenant, Property: property}
	}
	return p, nil
}

// ListProperties returns the tenant's properties and nothing else. The
// store query is already tenant-scoped; the ownership re-check is defense
// in depth against a store that forgets the scope.
func (g *Guard) ListProperties(ctx context.Context, tenant TenantID) ([]Property, error) {
	listed, err := g.props.ListByTenant(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	owned := make([]Property, 0, len(listed))
	for _, p := range listed {
		if p.TenantID == tenant {
			owned = append(owned, p)
		}
	}
	return owned, nil
}
