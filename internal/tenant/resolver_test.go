package tenant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneta/internal/datastore"
)

// fakeOrgs keys tenants by (user, name); CreateWithOwner converges like the
// real conflict-tolerant insert. onLookup, when set, runs before each
// TenantByName to stage concurrent interference.
type fakeOrgs struct {
	tenants     map[string]datastore.Tenant
	lookupErr   error
	createErr   error
	lookupCalls int
	createCalls int
	onLookup    func(call int)
}

func newFakeOrgs() *fakeOrgs {
	return &fakeOrgs{tenants: map[string]datastore.Tenant{}}
}

func key(userID uuid.UUID, name string) string { return userID.String() + "/" + name }

func (f *fakeOrgs) TenantsForUser(_ context.Context, userID uuid.UUID) ([]datastore.Tenant, error) {
	var out []datastore.Tenant
	for k, t := range f.tenants {
		if strings.HasPrefix(k, userID.String()+"/") {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeOrgs) TenantByName(_ context.Context, userID uuid.UUID, name string) (*datastore.Tenant, error) {
	f.lookupCalls++
	if f.onLookup != nil {
		f.onLookup(f.lookupCalls)
	}
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	t, ok := f.tenants[key(userID, name)]
	if !ok {
		return nil, datastore.ErrNotFound
	}
	return &t, nil
}

func (f *fakeOrgs) CreateWithOwner(_ context.Context, name string, userID uuid.UUID) (uuid.UUID, error) {
	f.createCalls++
	if f.createErr != nil {
		return uuid.Nil, f.createErr
	}
	if t, ok := f.tenants[key(userID, name)]; ok {
		return t.ID, nil
	}
	t := datastore.Tenant{ID: uuid.New(), Name: name, Role: "owner"}
	f.tenants[key(userID, name)] = t
	return t.ID, nil
}

func TestResolveProvisionsOnce(t *testing.T) {
	orgs := newFakeOrgs()
	r := NewResolver(orgs)
	ctx := context.Background()
	uid := uuid.New()

	first, err := r.ResolveOrProvision(ctx, uid, "Acme")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, first)

	second, err := r.ResolveOrProvision(ctx, uid, "Acme")
	require.NoError(t, err)
	assert.Equal(t, first, second, "same (user, name) must yield the same tenant")
	assert.Equal(t, 1, orgs.createCalls, "second call must take the lookup fast path")
	assert.Len(t, orgs.tenants, 1)
}

func TestResolveTrimsBusinessName(t *testing.T) {
	orgs := newFakeOrgs()
	r := NewResolver(orgs)
	ctx := context.Background()
	uid := uuid.New()

	first, err := r.ResolveOrProvision(ctx, uid, "Acme")
	require.NoError(t, err)
	second, err := r.ResolveOrProvision(ctx, uid, "  Acme  ")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveSurvivesLosingTheCreateRace(t *testing.T) {
	orgs := newFakeOrgs()
	r := NewResolver(orgs)
	ctx := context.Background()
	uid := uuid.New()
	winner := datastore.Tenant{ID: uuid.New(), Name: "Acme", Role: "owner"}

	// the competing provision wins between our first lookup miss and our
	// insert: the insert hits the unique constraint, and the row appears
	// before the retry lookup runs
	orgs.createErr = errors.New("duplicate key value violates unique constraint")
	orgs.onLookup = func(call int) {
		if call == 2 {
			orgs.tenants[key(uid, "Acme")] = winner
		}
	}

	got, err := r.ResolveOrProvision(ctx, uid, "Acme")
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got)
	assert.Equal(t, 2, orgs.lookupCalls)
}

func TestResolveCreateFailureWithoutWinnerIsFatal(t *testing.T) {
	orgs := newFakeOrgs()
	orgs.createErr = errors.New("connection reset by peer")
	r := NewResolver(orgs)

	_, err := r.ResolveOrProvision(context.Background(), uuid.New(), "Acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provision tenant")
}

func TestResolveRejectsEmptyName(t *testing.T) {
	r := NewResolver(newFakeOrgs())
	_, err := r.ResolveOrProvision(context.Background(), uuid.New(), "   ")
	assert.Error(t, err)
}

func TestResolvePropagatesLookupErrors(t *testing.T) {
	orgs := newFakeOrgs()
	orgs.lookupErr = errors.New("connection refused")
	r := NewResolver(orgs)
	_, err := r.ResolveOrProvision(context.Background(), uuid.New(), "Acme")
	assert.Error(t, err)
	assert.Zero(t, orgs.createCalls, "must not provision blind on a store error")
}

func TestTenantsListsMemberships(t *testing.T) {
	orgs := newFakeOrgs()
	r := NewResolver(orgs)
	ctx := context.Background()
	uid := uuid.New()

	_, err := r.ResolveOrProvision(ctx, uid, "Acme")
	require.NoError(t, err)
	_, err = r.ResolveOrProvision(ctx, uid, "Globex")
	require.NoError(t, err)

	tenants, err := r.Tenants(ctx, uid)
	require.NoError(t, err)
	assert.Len(t, tenants, 2)
}
