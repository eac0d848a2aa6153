package authflow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneta/internal/credstore"
	"moneta/internal/datastore"
	"moneta/internal/models"
	"moneta/internal/session"
	"moneta/internal/web"
)

var testNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

type fakeCreds struct {
	grant       *credstore.Grant
	signInErr   error
	signInCalls int

	signUpIdent *credstore.Identity
	signUpErr   error

	recoverCalls  int
	recoverEmails []string

	resetErr   error
	resetCalls int

	updateGrant  *credstore.Grant
	updateErr    error
	updateCalls  int
	otpErr       error
	signOutCalls int
}

func (f *fakeCreds) SignIn(context.Context, string, string) (*credstore.Grant, error) {
	f.signInCalls++
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return f.grant, nil
}

func (f *fakeCreds) SignUp(context.Context, string, string, map[string]any) (*credstore.Identity, error) {
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	return f.signUpIdent, nil
}

func (f *fakeCreds) RequestOTP(context.Context, string, string) error { return f.otpErr }

func (f *fakeCreds) VerifyOTP(context.Context, string, string) (*credstore.Grant, error) {
	if f.otpErr != nil {
		return nil, f.otpErr
	}
	return f.grant, nil
}

func (f *fakeCreds) GetUser(context.Context, string) (*credstore.Identity, error) {
	if f.grant != nil && f.grant.User != nil {
		return f.grant.User, nil
	}
	return nil, credstore.ErrDenied
}

func (f *fakeCreds) UpdatePassword(context.Context, string, string, string) (*credstore.Grant, error) {
	f.updateCalls++
	return f.updateGrant, f.updateErr
}

func (f *fakeCreds) ResetPassword(context.Context, string, string) error {
	f.resetCalls++
	return f.resetErr
}

func (f *fakeCreds) Recover(_ context.Context, email, _ string) error {
	f.recoverCalls++
	f.recoverEmails = append(f.recoverEmails, email)
	return nil
}

func (f *fakeCreds) SignOut(context.Context, string) error {
	f.signOutCalls++
	return nil
}

type fakeProfiles struct {
	byUsername map[string]*models.Profile
	byEmail    map[string]*models.Profile
	byID       map[uuid.UUID]*models.Profile
	suspended  map[uuid.UUID]bool
	upserts    []*models.Profile
	updates    []map[string]any
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		byUsername: map[string]*models.Profile{},
		byEmail:    map[string]*models.Profile{},
		byID:       map[uuid.UUID]*models.Profile{},
		suspended:  map[uuid.UUID]bool{},
	}
}

func (f *fakeProfiles) add(p *models.Profile) {
	f.byUsername[p.Username] = p
	f.byEmail[p.Email] = p
	f.byID[p.ID] = p
}

func (f *fakeProfiles) ByID(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	if p, ok := f.byID[id]; ok {
		return p, nil
	}
	return nil, datastore.ErrNotFound
}

func (f *fakeProfiles) ByUsername(_ context.Context, u string) (*models.Profile, error) {
	if p, ok := f.byUsername[u]; ok {
		return p, nil
	}
	return nil, datastore.ErrNotFound
}

func (f *fakeProfiles) ByEmail(_ context.Context, e string) (*models.Profile, error) {
	if p, ok := f.byEmail[e]; ok {
		return p, nil
	}
	return nil, datastore.ErrNotFound
}

func (f *fakeProfiles) Upsert(_ context.Context, p *models.Profile) error {
	f.upserts = append(f.upserts, p)
	f.add(p)
	return nil
}

func (f *fakeProfiles) Update(_ context.Context, _ uuid.UUID, fields map[string]any) error {
	f.updates = append(f.updates, fields)
	return nil
}

func (f *fakeProfiles) IsSuspended(_ context.Context, id uuid.UUID) (bool, error) {
	return f.suspended[id], nil
}

type fixture struct {
	h        *Handler
	creds    *fakeCreds
	profiles *fakeProfiles
	mgr      *session.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		creds:    &fakeCreds{},
		profiles: newFakeProfiles(),
		mgr:      session.NewManager(session.NewMemStore(), session.Options{}),
	}
	f.h = NewHandler(f.creds, f.profiles, web.NewRenderer(), "http://app.test")
	f.h.now = func() time.Time { return testNow }
	return f
}

// seedUser registers a known account and returns its profile.
func (f *fixture) seedUser() *models.Profile {
	p := &models.Profile{
		ID:       uuid.New(),
		Username: "casey",
		Email:    "casey@example.com",
		FullName: "Casey Fox",
	}
	f.profiles.add(p)
	f.creds.grant = &credstore.Grant{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    testNow.Add(time.Hour),
	}
	return p
}

func (f *fixture) do(fn http.HandlerFunc, method, path string, rec *session.Record, form url.Values) (*httptest.ResponseRecorder, *session.Session) {
	rr := httptest.NewRecorder()
	body := ""
	if form != nil {
		body = form.Encode()
	}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if rec == nil {
		rec = &session.Record{}
	}
	s := session.NewForTest(f.mgr, rr, rec)
	req = req.WithContext(session.ContextWith(req.Context(), s))
	fn(rr, req)
	return rr, s
}

// ---------- password login ----------

func TestLoginEstablishesSession(t *testing.T) {
	f := newFixture(t)
	p := f.seedUser()

	rr, s := f.do(f.h.Login, http.MethodPost, "/login", nil,
		url.Values{"username": {"casey"}, "password": {"hunter22"}})

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
	assert.Equal(t, p.ID.String(), s.Rec.UserID)
	assert.Equal(t, "casey@example.com", s.Rec.Email)
	assert.Equal(t, "at-1", s.Rec.AccessToken)
	assert.Equal(t, "rt-1", s.Rec.RefreshToken)
	assert.Equal(t, testNow, s.Rec.LastActivity)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	// unknown username: no provider call at all
	f := newFixture(t)
	f.seedUser()
	rr1, _ := f.do(f.h.Login, http.MethodPost, "/login", nil,
		url.Values{"username": {"nobody"}, "password": {"whatever"}})
	assert.Zero(t, f.creds.signInCalls)

	// known username, wrong password
	f2 := newFixture(t)
	f2.seedUser()
	f2.creds.signInErr = credstore.ErrDenied
	rr2, s2 := f2.do(f2.h.Login, http.MethodPost, "/login", nil,
		url.Values{"username": {"casey"}, "password": {"wrong"}})

	assert.Equal(t, rr1.Code, rr2.Code)
	assert.Equal(t, rr1.Body.String(), rr2.Body.String(), "the page must not reveal which step failed")
	assert.Contains(t, rr2.Body.String(), "Invalid username or password.")
	assert.Empty(t, s2.Rec.UserID)
}

func TestLoginSuspendedAccountRejected(t *testing.T) {
	f := newFixture(t)
	p := f.seedUser()
	f.profiles.suspended[p.ID] = true

	rr, s := f.do(f.h.Login, http.MethodPost, "/login", nil,
		url.Values{"username": {"casey"}, "password": {"hunter22"}})

	assert.Empty(t, s.Rec.UserID, "no session for a suspended account")
	assert.Contains(t, rr.Body.String(), "suspended")
}

func TestLogoutClearsSessionAndRevokesToken(t *testing.T) {
	f := newFixture(t)
	p := f.seedUser()
	rec := &session.Record{UserID: p.ID.String(), Email: p.Email, AccessToken: "at-1"}

	rr, s := f.do(f.h.Logout, http.MethodPost, "/logout", rec, nil)

	assert.Equal(t, "/login", rr.Header().Get("Location"))
	assert.Equal(t, 1, f.creds.signOutCalls)
	assert.Empty(t, s.Rec.UserID)
	assert.Empty(t, s.Rec.AccessToken)
}

// ---------- registration ----------

func TestRegisterCreatesProfile(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.creds.signUpIdent = &credstore.Identity{ID: id.String(), Email: "new@example.com"}

	rr, _ := f.do(f.h.RegisterAccount, http.MethodPost, "/register", nil, url.Values{
		"username": {"newbie"}, "email": {"new@example.com"},
		"full_name": {"New Person"}, "password": {"longenough"},
	})

	assert.Equal(t, "/login", rr.Header().Get("Location"))
	require.Len(t, f.profiles.upserts, 1)
	assert.Equal(t, id, f.profiles.upserts[0].ID)
	assert.Equal(t, "newbie", f.profiles.upserts[0].Username)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	f := newFixture(t)
	rr, _ := f.do(f.h.RegisterAccount, http.MethodPost, "/register", nil, url.Values{
		"username": {"newbie"}, "email": {"new@example.com"}, "password": {"short"},
	})
	assert.Contains(t, rr.Body.String(), "at least 8 characters")
	assert.Empty(t, f.profiles.upserts)
}

func TestRegisterRejectsTakenUsername(t *testing.T) {
	f := newFixture(t)
	f.seedUser()
	rr, _ := f.do(f.h.RegisterAccount, http.MethodPost, "/register", nil, url.Values{
		"username": {"casey"}, "email": {"other@example.com"}, "password": {"longenough"},
	})
	assert.Contains(t, rr.Body.String(), "already taken")
	assert.Empty(t, f.profiles.upserts)
}

func TestRegisterSurfacesProviderRejection(t *testing.T) {
	f := newFixture(t)
	f.creds.signUpErr = &credstore.DeniedError{Msg: "User already registered"}

	rr, _ := f.do(f.h.RegisterAccount, http.MethodPost, "/register", nil, url.Values{
		"username": {"newbie"}, "email": {"new@example.com"}, "password": {"longenough"},
	})

	assert.Contains(t, rr.Body.String(), "Registration failed: User already registered")
	assert.Empty(t, f.profiles.upserts)
}

func TestRegisterFallsBackToGenericMessage(t *testing.T) {
	f := newFixture(t)
	f.creds.signUpErr = credstore.ErrUnavailable

	rr, _ := f.do(f.h.RegisterAccount, http.MethodPost, "/register", nil, url.Values{
		"username": {"newbie"}, "email": {"new@example.com"}, "password": {"longenough"},
	})

	assert.Contains(t, rr.Body.String(), "Registration failed. The email may already be in use.")
}

// ---------- forgot credentials ----------

type forgotResponse struct {
	code     int
	location string
	flash    session.Flash
}

func (f *fixture) forgot(t *testing.T, rec *session.Record, email string) (forgotResponse, *session.Session) {
	t.Helper()
	rr, s := f.do(f.h.Forgot, http.MethodPost, "/forgot_password", rec,
		url.Values{"email": {email}})
	require.NotEmpty(t, s.Rec.Flashes)
	return forgotResponse{
		code:     rr.Code,
		location: rr.Header().Get("Location"),
		flash:    s.Rec.Flashes[len(s.Rec.Flashes)-1],
	}, s
}

func TestForgotAnswersIdenticallyForUnknownEmail(t *testing.T) {
	f := newFixture(t)
	f.seedUser()

	known, _ := f.forgot(t, nil, "casey@example.com")
	unknown, _ := f.forgot(t, nil, "ghost@example.com")

	assert.Equal(t, known, unknown, "existing and unknown emails must answer identically")
	assert.Equal(t, 1, f.creds.recoverCalls, "only the real account gets an email")
	assert.Equal(t, []string{"casey@example.com"}, f.creds.recoverEmails)
}

func TestForgotCooldownSuppressesResend(t *testing.T) {
	f := newFixture(t)
	f.seedUser()

	first, s := f.forgot(t, nil, "casey@example.com")
	// same session, 30 seconds later
	f.h.now = func() time.Time { return testNow.Add(30 * time.Second) }
	second, _ := f.forgot(t, s.Rec, "casey@example.com")

	assert.Equal(t, first, second, "a rate-limited request must look like a served one")
	assert.Equal(t, 1, f.creds.recoverCalls)
}

func TestForgotCooldownExpires(t *testing.T) {
	f := newFixture(t)
	f.seedUser()

	_, s := f.forgot(t, nil, "casey@example.com")
	f.h.now = func() time.Time { return testNow.Add(61 * time.Second) }
	f.forgot(t, s.Rec, "casey@example.com")

	assert.Equal(t, 2, f.creds.recoverCalls)
}

func TestForgotCooldownIsPerEmail(t *testing.T) {
	f := newFixture(t)
	f.seedUser()
	other := &models.Profile{ID: uuid.New(), Username: "dana", Email: "dana@example.com"}
	f.profiles.add(other)

	_, s := f.forgot(t, nil, "casey@example.com")
	f.forgot(t, s.Rec, "dana@example.com")

	assert.Equal(t, 2, f.creds.recoverCalls, "the cooldown keys on the email, not the session")
}

func TestForgotUsernameRecoverySendsNoResetEmail(t *testing.T) {
	f := newFixture(t)
	f.seedUser()

	rr, s := f.do(f.h.Forgot, http.MethodPost, "/forgot_password", nil,
		url.Values{"email": {"casey@example.com"}, "action": {"recover_username"}})

	assert.Equal(t, "/login", rr.Header().Get("Location"))
	assert.Zero(t, f.creds.recoverCalls)
	require.NotEmpty(t, s.Rec.Flashes)
	assert.Equal(t, forgotMessage, s.Rec.Flashes[0].Message)
}

// ---------- password reset ----------

func TestResetRejectsShortOrMismatchedPassword(t *testing.T) {
	cases := []url.Values{
		{"token": {"tok"}, "password": {"short"}, "confirm": {"short"}},
		{"token": {"tok"}, "password": {"longenough"}, "confirm": {"different1"}},
	}
	for _, form := range cases {
		f := newFixture(t)
		rr, _ := f.do(f.h.Reset, http.MethodPost, "/reset_password", nil, form)
		assert.Zero(t, f.creds.resetCalls)
		assert.Equal(t, http.StatusOK, rr.Code, "stays on the form")
	}
}

func TestResetConsumesRecoveryToken(t *testing.T) {
	f := newFixture(t)
	rr, _ := f.do(f.h.Reset, http.MethodPost, "/reset_password", nil,
		url.Values{"token": {"tok"}, "password": {"longenough"}, "confirm": {"longenough"}})
	assert.Equal(t, "/login", rr.Header().Get("Location"))
	assert.Equal(t, 1, f.creds.resetCalls)
}

func TestResetExpiredTokenStaysOnPage(t *testing.T) {
	f := newFixture(t)
	f.creds.resetErr = credstore.ErrDenied
	rr, _ := f.do(f.h.Reset, http.MethodPost, "/reset_password", nil,
		url.Values{"token": {"tok"}, "password": {"longenough"}, "confirm": {"longenough"}})
	assert.Equal(t, http.StatusOK, rr.Code, "re-renders the form instead of redirecting")
	assert.Contains(t, rr.Body.String(), "invalid or has expired")
}

// ---------- passwordless ----------

func TestOTPVerifyRoutesFirstTimersToCompletion(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.creds.grant = &credstore.Grant{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    testNow.Add(time.Hour),
		User:         &credstore.Identity{ID: id.String(), Email: "fresh@example.com"},
	}

	rr, s := f.do(f.h.OTPVerify, http.MethodPost, "/verify", nil,
		url.Values{"email": {"fresh@example.com"}, "code": {"123456"}})

	assert.Equal(t, "/complete_profile", rr.Header().Get("Location"))
	assert.True(t, s.Rec.SetupRequired)
	assert.Equal(t, id.String(), s.Rec.UserID)
	require.Len(t, f.profiles.upserts, 1, "profile row created on first login")
}

func TestOTPVerifyExistingUserGoesHome(t *testing.T) {
	f := newFixture(t)
	p := f.seedUser()
	f.creds.grant.User = &credstore.Identity{ID: p.ID.String(), Email: p.Email}

	rr, s := f.do(f.h.OTPVerify, http.MethodPost, "/verify", nil,
		url.Values{"email": {p.Email}, "code": {"123456"}})

	assert.Equal(t, "/", rr.Header().Get("Location"))
	assert.False(t, s.Rec.SetupRequired)
	assert.Equal(t, p.ID.String(), s.Rec.UserID)
}

func TestCompleteProfileClearsSetupRequired(t *testing.T) {
	f := newFixture(t)
	p := f.seedUser()
	rec := &session.Record{UserID: p.ID.String(), Email: p.Email, SetupRequired: true}

	rr, s := f.do(f.h.CompleteProfile, http.MethodPost, "/complete_profile", rec,
		url.Values{"username": {"casey"}, "full_name": {"Casey Fox"}})

	assert.Equal(t, "/", rr.Header().Get("Location"))
	assert.False(t, s.Rec.SetupRequired)
	require.Len(t, f.profiles.updates, 1)
	assert.Equal(t, "casey", f.profiles.updates[0]["username"])
}

func TestCompleteProfileRejectsForeignUsername(t *testing.T) {
	f := newFixture(t)
	f.seedUser()
	rec := &session.Record{UserID: uuid.New().String(), Email: "me@example.com", SetupRequired: true}

	rr, s := f.do(f.h.CompleteProfile, http.MethodPost, "/complete_profile", rec,
		url.Values{"username": {"casey"}})

	assert.True(t, s.Rec.SetupRequired)
	assert.Contains(t, rr.Body.String(), "already taken")
	assert.Empty(t, f.profiles.updates)
}

func TestChangePasswordAdoptsRotatedTokens(t *testing.T) {
	f := newFixture(t)
	p := f.seedUser()
	f.creds.updateGrant = &credstore.Grant{
		AccessToken:  "at-2",
		RefreshToken: "rt-2",
		ExpiresAt:    testNow.Add(time.Hour),
	}
	rec := &session.Record{
		UserID: p.ID.String(), Email: p.Email,
		AccessToken: "at-1", RefreshToken: "rt-1",
	}

	rr, s := f.do(f.h.ChangePassword, http.MethodPost, "/change_password", rec,
		url.Values{"password": {"longenough"}, "confirm": {"longenough"}})

	assert.Equal(t, "/profile", rr.Header().Get("Location"))
	assert.Equal(t, 1, f.creds.updateCalls)
	assert.Equal(t, "at-2", s.Rec.AccessToken)
	assert.Equal(t, "rt-2", s.Rec.RefreshToken)
	assert.Equal(t, testNow.Add(time.Hour), s.Rec.AccessExpiresAt)
}

func TestChangePasswordRejectionStillAdoptsRotation(t *testing.T) {
	// the privileged refresh rotates the pair even when the update is denied
	f := newFixture(t)
	p := f.seedUser()
	f.creds.updateGrant = &credstore.Grant{AccessToken: "at-2", RefreshToken: "rt-2", ExpiresAt: testNow.Add(time.Hour)}
	f.creds.updateErr = credstore.ErrDenied
	rec := &session.Record{
		UserID: p.ID.String(), Email: p.Email,
		AccessToken: "at-1", RefreshToken: "rt-1",
	}

	rr, s := f.do(f.h.ChangePassword, http.MethodPost, "/change_password", rec,
		url.Values{"password": {"longenough"}, "confirm": {"longenough"}})

	assert.Equal(t, "/profile", rr.Header().Get("Location"))
	assert.Equal(t, "rt-2", s.Rec.RefreshToken)
}

func TestCompleteProfilePasswordSetAdoptsRotatedTokens(t *testing.T) {
	f := newFixture(t)
	p := f.seedUser()
	f.creds.updateGrant = &credstore.Grant{AccessToken: "at-2", RefreshToken: "rt-2", ExpiresAt: testNow.Add(time.Hour)}
	rec := &session.Record{
		UserID: p.ID.String(), Email: p.Email, SetupRequired: true,
		AccessToken: "at-1", RefreshToken: "rt-1",
	}

	_, s := f.do(f.h.CompleteProfile, http.MethodPost, "/complete_profile", rec,
		url.Values{"username": {"casey"}, "password": {"longenough"}})

	assert.Equal(t, 1, f.creds.updateCalls)
	assert.Equal(t, "at-2", s.Rec.AccessToken)
	assert.Equal(t, "rt-2", s.Rec.RefreshToken)
	assert.False(t, s.Rec.SetupRequired)
}

func TestMagicLoginAcceptsTokenPair(t *testing.T) {
	f := newFixture(t)
	p := f.seedUser()
	f.creds.grant.User = &credstore.Identity{ID: p.ID.String(), Email: p.Email}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/magic_login",
		strings.NewReader(`{"access_token":"at-m","refresh_token":"rt-m"}`))
	req.Header.Set("Content-Type", "application/json")
	s := session.NewForTest(f.mgr, rr, &session.Record{})
	req = req.WithContext(session.ContextWith(req.Context(), s))

	f.h.MagicLogin(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"redirect":"/"`)
	assert.Equal(t, p.ID.String(), s.Rec.UserID)
	assert.Equal(t, "at-m", s.Rec.AccessToken)
}

func TestMagicLoginRejectsMissingToken(t *testing.T) {
	f := newFixture(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/magic_login", strings.NewReader(`{}`))
	s := session.NewForTest(f.mgr, rr, &session.Record{})
	req = req.WithContext(session.ContextWith(req.Context(), s))

	f.h.MagicLogin(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
