// Package guard implements the per-request session lifecycle checks:
// suspension, inactivity timeout, silent credential refresh and activity
// stamping. It runs before every route that is not on the exempt list.
package guard

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"moneta/internal/credstore"
	"moneta/internal/logs"
	"moneta/internal/session"
)

// Suspensions is the slice of the profile store the guard reads.
type Suspensions interface {
	IsSuspended(ctx context.Context, id uuid.UUID) (bool, error)
}

// Refresher exchanges a refresh token for a new grant.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*credstore.Grant, error)
}

type Guard struct {
	mgr      *session.Manager
	profiles Suspensions
	creds    Refresher

	timeout       time.Duration
	refreshWindow time.Duration

	now func() time.Time
}

func New(mgr *session.Manager, profiles Suspensions, creds Refresher, timeout, refreshWindow time.Duration) *Guard {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if refreshWindow <= 0 {
		refreshWindow = 120 * time.Second
	}
	return &Guard{
		mgr:           mgr,
		profiles:      profiles,
		creds:         creds,
		timeout:       timeout,
		refreshWindow: refreshWindow,
		now:           time.Now,
	}
}

// SetClock overrides the guard's clock. Test hook only.
func (g *Guard) SetClock(now func() time.Time) { g.now = now }

// exempt routes: everything a logged-out user must be able to reach.
var exemptPaths = map[string]bool{
	"/login":            true,
	"/register":         true,
	"/login_with_code":  true,
	"/verify":           true,
	"/forgot_password":  true,
	"/reset_password":   true,
	"/auth/magic_login": true,
	"/healthz":          true,
	"/readyz":           true,
}

func exempt(path string) bool {
	if exemptPaths[path] {
		return true
	}
	return strings.HasPrefix(path, "/static/")
}

// Middleware applies the lifecycle checks in order: suspension, inactivity
// timeout, credential refresh, activity stamp. The first check that evicts
// the session wins; later checks do not run.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		s := session.FromContext(r.Context())
		if s == nil || !s.Rec.Authenticated() {
			// anonymous request; route handlers enforce their own auth
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		now := g.now()

		if g.evictIfSuspended(ctx, w, r, s) {
			return
		}

		if !s.Rec.LastActivity.IsZero() && now.Sub(s.Rec.LastActivity) > g.timeout {
			_ = s.Clear(ctx)
			s.AddFlash("info", "Your session expired due to inactivity. Please log in again.")
			_ = s.Save(ctx)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		if !g.refreshIfNeeded(ctx, s, now) {
			_ = s.Clear(ctx)
			s.AddFlash("warning", "Session expired. Please log in again.")
			_ = s.Save(ctx)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		s.Rec.LastActivity = now

		// passwordless first login must finish profile setup first
		if s.Rec.SetupRequired && r.URL.Path != "/complete_profile" && r.URL.Path != "/logout" {
			http.Redirect(w, r, "/complete_profile", http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// evictIfSuspended clears the session when the account is suspended. A store
// error is logged and the request proceeds: a transient outage here must not
// lock every user out.
func (g *Guard) evictIfSuspended(ctx context.Context, w http.ResponseWriter, r *http.Request, s *session.Session) bool {
	uid, err := uuid.Parse(s.Rec.UserID)
	if err != nil {
		return false
	}
	suspended, err := g.profiles.IsSuspended(ctx, uid)
	if err != nil {
		logs.Logger.Warnf("suspension check unavailable for %s: %v", uid, err)
		return false
	}
	if !suspended {
		return false
	}
	_ = s.Clear(ctx)
	s.AddFlash("danger", "Your account has been suspended. Contact support.")
	_ = s.Save(ctx)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
	return true
}

// refreshIfNeeded exchanges the refresh token once the access token is inside
// the refresh window. Returns false only when the session must be evicted.
//
// Two concurrent requests can both see an expiring token. The per-session
// lock serializes them and the re-check after Reload lets the loser observe
// the winner's new triple instead of burning the already-rotated refresh
// token.
func (g *Guard) refreshIfNeeded(ctx context.Context, s *session.Session, now time.Time) bool {
	if s.Rec.AccessExpiresAt.Sub(now) >= g.refreshWindow {
		return true
	}

	unlock := s.Lock()
	defer unlock()
	if err := s.Reload(ctx); err == nil {
		if !s.Rec.Authenticated() {
			return false
		}
		if s.Rec.AccessExpiresAt.Sub(now) >= g.refreshWindow {
			return true
		}
	}

	if s.Rec.RefreshToken == "" {
		return false
	}
	grant, err := g.creds.Refresh(ctx, s.Rec.RefreshToken)
	if err != nil {
		logs.Logger.Infof("credential refresh failed for %s: %v", s.Rec.UserID, err)
		return false
	}
	s.Rec.AccessToken = grant.AccessToken
	s.Rec.RefreshToken = grant.RefreshToken
	s.Rec.AccessExpiresAt = grant.ExpiresAt
	if err := s.Save(ctx); err != nil {
		logs.Logger.Errorf("session save after refresh: %v", err)
	}
	return true
}
