// Package enterprise serves the business area: organization selection, the
// per-business PIN gate and the gated bookkeeping pages.
package enterprise

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"moneta/internal/datastore"
	"moneta/internal/logs"
	"moneta/internal/session"
)

type orgKey struct{}

// orgContext is what the gate resolved for the request: the organization and
// the caller's role in it.
type orgContext struct {
	OrgID uuid.UUID
	Name  string
	Role  string
}

func orgFromContext(ctx context.Context) (orgContext, bool) {
	oc, ok := ctx.Value(orgKey{}).(orgContext)
	return oc, ok
}

// ungated enterprise paths: selecting a business and proving the PIN must be
// reachable while still locked.
var ungated = map[string]bool{
	"/enterprise/select_organization": true,
	"/enterprise/switch_organization": true,
	"/enterprise/pin_setup":           true,
	"/enterprise/pin_verify":          true,
	"/enterprise/pin_reset":           true,
	"/enterprise/business_logout":     true,
	"/enterprise/check_auth":          true,
}

// Gate enforces, in order: an authenticated session, an active business,
// membership in that business (re-validated on every request, not cached),
// the per-business unlock flag, and a healed curr_org_id. Anything that fails
// membership clears the business-scoped session keys so a later request
// cannot act on a stale tenant.
func (h *Handler) Gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ungated[strings.TrimSuffix(r.URL.Path, "/")] {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		s := session.FromContext(ctx)
		if s == nil || !s.Rec.Authenticated() {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		uid, err := uuid.Parse(s.Rec.UserID)
		if err != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		business := s.Rec.ActiveBusiness
		if business == "" {
			http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
			return
		}

		t, err := h.orgs.TenantByName(ctx, uid, business)
		if err != nil {
			if !errors.Is(err, datastore.ErrNotFound) {
				logs.Logger.Errorf("membership check for %q: %v", business, err)
			}
			s.Rec.ClearBusinessState()
			s.AddFlash("warning", "You no longer have access to that business.")
			http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
			return
		}

		if !s.Rec.IsUnlocked(business) {
			m, err := h.orgs.Membership(ctx, t.ID, uid)
			if err != nil {
				logs.Logger.Errorf("membership load for %q: %v", business, err)
				http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
				return
			}
			if m.PINHash == "" {
				http.Redirect(w, r, "/enterprise/pin_setup", http.StatusSeeOther)
			} else {
				http.Redirect(w, r, "/enterprise/pin_verify", http.StatusSeeOther)
			}
			return
		}

		// heal a missing or stale curr_org_id from the fresh resolution; only
		// an unlocked request earns the healed id
		if s.Rec.CurrOrgID != t.ID.String() {
			s.Rec.CurrOrgID = t.ID.String()
		}

		ctx = context.WithValue(ctx, orgKey{}, orgContext{OrgID: t.ID, Name: t.Name, Role: t.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
