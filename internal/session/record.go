// Package session holds the per-browser-session state: identity, the token
// triple issued by the credential store, and the business-unlock flags. The
// cookie carries only an opaque random id; the record lives server-side.
package session

import "time"

// Flash is a one-shot user-visible message, drained on next render.
type Flash struct {
	Level   string `json:"level"` // success|info|warning|error
	Message string `json:"message"`
}

// Record is the session state. A zero Record means "not authenticated".
type Record struct {
	UserID          string    `json:"user_id,omitempty"`
	Email           string    `json:"email,omitempty"`
	IsAdmin         bool      `json:"is_admin,omitempty"`
	AccessToken     string    `json:"access_token,omitempty"`
	RefreshToken    string    `json:"refresh_token,omitempty"`
	AccessExpiresAt time.Time `json:"access_expires_at,omitempty"`
	LastActivity    time.Time `json:"last_activity,omitempty"`

	RecurringChecked bool `json:"recurring_checked,omitempty"`
	SetupRequired    bool `json:"setup_required,omitempty"`

	// Business-scoped state. Unlocked maps business name -> PIN verified this
	// session; one entry never implies another.
	ActiveBusiness string          `json:"active_business,omitempty"`
	CurrOrgID      string          `json:"curr_org_id,omitempty"`
	Unlocked       map[string]bool `json:"unlocked,omitempty"`

	Flashes []Flash `json:"flashes,omitempty"`

	// ForgotRequests rate-limits recovery mails per email address.
	ForgotRequests map[string]time.Time `json:"forgot_requests,omitempty"`
}

func (r *Record) Authenticated() bool { return r.UserID != "" }

func (r *Record) Unlock(business string) {
	if r.Unlocked == nil {
		r.Unlocked = make(map[string]bool)
	}
	r.Unlocked[business] = true
}

func (r *Record) IsUnlocked(business string) bool {
	return business != "" && r.Unlocked[business]
}

func (r *Record) Lock(business string) {
	delete(r.Unlocked, business)
}

// ClearBusinessState drops every business-scoped key in one operation.
func (r *Record) ClearBusinessState() {
	r.ActiveBusiness = ""
	r.CurrOrgID = ""
	r.Unlocked = nil
}
