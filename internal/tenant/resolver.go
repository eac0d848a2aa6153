// Package tenant resolves which organization a signed-in user is acting in
// and provisions one on first contact.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"moneta/internal/datastore"
	"moneta/internal/logs"
)

// Orgs is the slice of the org store the resolver needs.
type Orgs interface {
	TenantsForUser(ctx context.Context, userID uuid.UUID) ([]datastore.Tenant, error)
	TenantByName(ctx context.Context, userID uuid.UUID, name string) (*datastore.Tenant, error)
	CreateWithOwner(ctx context.Context, name string, userID uuid.UUID) (uuid.UUID, error)
}

type Resolver struct {
	orgs Orgs
}

func NewResolver(orgs Orgs) *Resolver { return &Resolver{orgs: orgs} }

// ResolveOrProvision returns the organization id for (user, business name),
// creating the org with an owner membership when none exists yet. Safe to
// call repeatedly and concurrently: the lookup-then-create pair converges
// because membership inserts tolerate conflicts, so two racing calls both
// land on the same org.
func (r *Resolver) ResolveOrProvision(ctx context.Context, userID uuid.UUID, business string) (uuid.UUID, error) {
	business = strings.TrimSpace(business)
	if business == "" {
		return uuid.Nil, fmt.Errorf("resolve tenant: empty business name")
	}

	t, err := r.orgs.TenantByName(ctx, userID, business)
	if err == nil {
		return t.ID, nil
	}
	if !errors.Is(err, datastore.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("resolve tenant: %w", err)
	}

	id, err := r.orgs.CreateWithOwner(ctx, business, userID)
	if err != nil {
		// A concurrent provision may have won; look again before giving up.
		if t, lookupErr := r.orgs.TenantByName(ctx, userID, business); lookupErr == nil {
			return t.ID, nil
		}
		return uuid.Nil, fmt.Errorf("provision tenant: %w", err)
	}
	logs.Logger.Infof("provisioned organization %q (%s) for user %s", business, id, userID)
	return id, nil
}

// Tenants lists every organization the user belongs to.
func (r *Resolver) Tenants(ctx context.Context, userID uuid.UUID) ([]datastore.Tenant, error) {
	return r.orgs.TenantsForUser(ctx, userID)
}
