// Package authflow implements account entry and exit: password login,
// registration, one-time-code login, profile completion, forgot-credentials
// and password reset. Each flow keeps its state in the session record only.
package authflow

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"moneta/internal/credstore"
	"moneta/internal/datastore"
	"moneta/internal/logs"
	"moneta/internal/models"
	"moneta/internal/session"
	"moneta/internal/web"
)

// Credentials is the Identity Provider surface these flows need.
type Credentials interface {
	SignIn(ctx context.Context, email, password string) (*credstore.Grant, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*credstore.Identity, error)
	RequestOTP(ctx context.Context, email, redirectTo string) error
	VerifyOTP(ctx context.Context, email, code string) (*credstore.Grant, error)
	GetUser(ctx context.Context, accessToken string) (*credstore.Identity, error)
	UpdatePassword(ctx context.Context, accessToken, refreshToken, newPassword string) (*credstore.Grant, error)
	ResetPassword(ctx context.Context, recoveryToken, newPassword string) error
	Recover(ctx context.Context, email, redirectTo string) error
	SignOut(ctx context.Context, accessToken string) error
}

// Profiles is the slice of the profile store these flows need.
type Profiles interface {
	ByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	ByUsername(ctx context.Context, username string) (*models.Profile, error)
	ByEmail(ctx context.Context, email string) (*models.Profile, error)
	Upsert(ctx context.Context, p *models.Profile) error
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
	IsSuspended(ctx context.Context, id uuid.UUID) (bool, error)
}

const minPasswordLen = 8

// forgotWindow is the per-email cooldown between recovery requests.
const forgotWindow = 60 * time.Second

// forgotMessage is shown for every forgot-credentials submission, existing
// email or not, so responses stay byte-identical.
const forgotMessage = "If that email is registered, instructions are on their way."

type Handler struct {
	creds    Credentials
	profiles Profiles
	render   *web.Renderer
	baseURL  string

	now func() time.Time
}

func NewHandler(creds Credentials, profiles Profiles, render *web.Renderer, baseURL string) *Handler {
	return &Handler{creds: creds, profiles: profiles, render: render, baseURL: baseURL, now: time.Now}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/login", h.LoginPage).Methods(http.MethodGet)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.Logout).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/register", h.RegisterPage).Methods(http.MethodGet)
	r.HandleFunc("/register", h.RegisterAccount).Methods(http.MethodPost)
	r.HandleFunc("/login_with_code", h.OTPRequestPage).Methods(http.MethodGet)
	r.HandleFunc("/login_with_code", h.OTPRequest).Methods(http.MethodPost)
	r.HandleFunc("/verify", h.OTPVerifyPage).Methods(http.MethodGet)
	r.HandleFunc("/verify", h.OTPVerify).Methods(http.MethodPost)
	r.HandleFunc("/auth/magic_login", h.MagicLogin).Methods(http.MethodPost)
	r.HandleFunc("/complete_profile", h.CompleteProfilePage).Methods(http.MethodGet)
	r.HandleFunc("/complete_profile", h.CompleteProfile).Methods(http.MethodPost)
	r.HandleFunc("/forgot_password", h.ForgotPage).Methods(http.MethodGet)
	r.HandleFunc("/forgot_password", h.Forgot).Methods(http.MethodPost)
	r.HandleFunc("/reset_password", h.ResetPage).Methods(http.MethodGet)
	r.HandleFunc("/reset_password", h.Reset).Methods(http.MethodPost)
	r.HandleFunc("/profile", h.ProfilePage).Methods(http.MethodGet)
	r.HandleFunc("/profile", h.ProfileUpdate).Methods(http.MethodPost)
	r.HandleFunc("/change_password", h.ChangePassword).Methods(http.MethodPost)
}

// adoptGrant writes a rotated token pair back into the session record so the
// next refresh does not run against a burned refresh token.
func adoptGrant(s *session.Session, g *credstore.Grant) {
	if g == nil {
		return
	}
	s.Rec.AccessToken = g.AccessToken
	s.Rec.RefreshToken = g.RefreshToken
	s.Rec.AccessExpiresAt = g.ExpiresAt
}

// establish replaces whatever session existed with a fresh authenticated one.
// The id is rotated so a pre-login cookie never names a logged-in session.
func (h *Handler) establish(ctx context.Context, s *session.Session, p *models.Profile, grant *credstore.Grant) error {
	_ = s.Clear(ctx)
	if err := s.Renew(ctx); err != nil {
		return err
	}
	s.Rec.UserID = p.ID.String()
	s.Rec.Email = p.Email
	s.Rec.IsAdmin = p.IsAdmin
	s.Rec.AccessToken = grant.AccessToken
	s.Rec.RefreshToken = grant.RefreshToken
	s.Rec.AccessExpiresAt = grant.ExpiresAt
	s.Rec.LastActivity = h.now()
	return s.Save(ctx)
}

// ---------- password login ----------

func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	if s != nil && s.Rec.Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render.Render(w, r, "login.tmpl", map[string]any{"Title": "Log in"})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := session.FromContext(ctx)
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	fail := func(why string, err error) {
		// internal detail for the log only; the page never says which step broke
		logs.Logger.Infof("login rejected for %q: %s: %v", username, why, err)
		s.AddFlash("danger", "Invalid username or password.")
		h.render.Render(w, r, "login.tmpl", map[string]any{"Title": "Log in"})
	}

	p, err := h.profiles.ByUsername(ctx, username)
	if err != nil {
		fail("username lookup", err)
		return
	}
	grant, err := h.creds.SignIn(ctx, p.Email, password)
	if err != nil {
		fail("sign-in", err)
		return
	}
	if suspended, err := h.profiles.IsSuspended(ctx, p.ID); err == nil && suspended {
		s.AddFlash("danger", "Your account has been suspended. Contact support.")
		h.render.Render(w, r, "login.tmpl", map[string]any{"Title": "Log in"})
		return
	}
	if err := h.establish(ctx, s, p, grant); err != nil {
		logs.Logger.Errorf("session establish: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := session.FromContext(ctx)
	if s.Rec.AccessToken != "" {
		if err := h.creds.SignOut(ctx, s.Rec.AccessToken); err != nil {
			logs.Logger.Infof("provider sign-out: %v", err)
		}
	}
	_ = s.Clear(ctx)
	s.AddFlash("info", "You have been logged out.")
	_ = s.Save(ctx)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// ---------- registration ----------

func (h *Handler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, r, "register.tmpl", map[string]any{"Title": "Register"})
}

func (h *Handler) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := session.FromContext(ctx)
	username := strings.TrimSpace(r.FormValue("username"))
	email := strings.TrimSpace(strings.ToLower(r.FormValue("email")))
	fullName := strings.TrimSpace(r.FormValue("full_name"))
	password := r.FormValue("password")

	data := map[string]any{"Title": "Register", "Username": username, "Email": email, "FullName": fullName}
	if username == "" || email == "" {
		s.AddFlash("danger", "Username and email are required.")
		h.render.Render(w, r, "register.tmpl", data)
		return
	}
	if len(password) < minPasswordLen {
		s.AddFlash("danger", "Password must be at least 8 characters.")
		h.render.Render(w, r, "register.tmpl", data)
		return
	}
	if _, err := h.profiles.ByUsername(ctx, username); err == nil {
		s.AddFlash("danger", "That username is already taken.")
		h.render.Render(w, r, "register.tmpl", data)
		return
	} else if !errors.Is(err, datastore.ErrNotFound) {
		logs.Logger.Errorf("register username check: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ident, err := h.creds.SignUp(ctx, email, password, map[string]any{
		"username":  username,
		"full_name": fullName,
	})
	if err != nil {
		logs.Logger.Infof("sign-up rejected for %q: %v", email, err)
		// unlike the login flows, the provider's own rejection text is shown
		msg := "Registration failed. The email may already be in use."
		var denied *credstore.DeniedError
		if errors.As(err, &denied) && denied.Msg != "" {
			msg = "Registration failed: " + denied.Msg
		}
		s.AddFlash("danger", msg)
		h.render.Render(w, r, "register.tmpl", data)
		return
	}

	id, err := uuid.Parse(ident.ID)
	if err != nil {
		logs.Logger.Errorf("sign-up returned bad id %q: %v", ident.ID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := h.profiles.Upsert(ctx, &models.Profile{
		ID:       id,
		Username: username,
		Email:    email,
		FullName: fullName,
	}); err != nil {
		logs.Logger.Errorf("profile upsert after sign-up: %v", err)
	}
	s.AddFlash("success", "Account created. Check your email to confirm, then log in.")
	_ = s.Save(ctx)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// ---------- one-time-code login ----------

func (h *Handler) OTPRequestPage(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, r, "login_with_code.tmpl", map[string]any{"Title": "One-time code"})
}

func (h *Handler) OTPRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := session.FromContext(ctx)
	email := strings.TrimSpace(strings.ToLower(r.FormValue("email")))
	if email == "" {
		s.AddFlash("danger", "Email is required.")
		h.render.Render(w, r, "login_with_code.tmpl", map[string]any{"Title": "One-time code"})
		return
	}
	if err := h.creds.RequestOTP(ctx, email, h.baseURL+"/auth/magic_login"); err != nil {
		logs.Logger.Infof("otp request for %q: %v", email, err)
		s.AddFlash("danger", "Could not send a code right now. Try again in a minute.")
		h.render.Render(w, r, "login_with_code.tmpl", map[string]any{"Title": "One-time code"})
		return
	}
	s.AddFlash("info", "Code sent. Check your inbox.")
	_ = s.Save(ctx)
	http.Redirect(w, r, "/verify?email="+email, http.StatusSeeOther)
}

func (h *Handler) OTPVerifyPage(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, r, "verify.tmpl", map[string]any{
		"Title": "Verify code",
		"Email": r.URL.Query().Get("email"),
	})
}

func (h *Handler) OTPVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := session.FromContext(ctx)
	email := strings.TrimSpace(strings.ToLower(r.FormValue("email")))
	code := strings.TrimSpace(r.FormValue("code"))

	grant, err := h.creds.VerifyOTP(ctx, email, code)
	if err != nil {
		logs.Logger.Infof("otp verify for %q: %v", email, err)
		s.AddFlash("danger", "Invalid or expired code.")
		h.render.Render(w, r, "verify.tmpl", map[string]any{"Title": "Verify code", "Email": email})
		return
	}
	h.finishPasswordless(ctx, w, r, s, grant, email)
}

// MagicLogin accepts the token pair a provider redirect leaves in the URL
// fragment; a small client script posts it here as JSON.
func (h *Handler) MagicLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := session.FromContext(ctx)

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := models.ReadJSON(r, &body); err != nil || body.AccessToken == "" {
		models.WriteProblem(w, http.StatusBadRequest, "bad request", "missing token pair", nil)
		return
	}
	ident, err := h.creds.GetUser(ctx, body.AccessToken)
	if err != nil {
		models.WriteProblem(w, http.StatusUnauthorized, "unauthorized", "token not accepted", nil)
		return
	}
	grant := &credstore.Grant{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    h.now().Add(time.Hour),
		User:         ident,
	}
	p, setup := h.ensureProfile(ctx, ident)
	if p == nil {
		models.WriteProblem(w, http.StatusInternalServerError, "internal error", "", nil)
		return
	}
	if err := h.establish(ctx, s, p, grant); err != nil {
		models.WriteProblem(w, http.StatusInternalServerError, "internal error", "", nil)
		return
	}
	target := "/"
	if setup {
		s.Rec.SetupRequired = true
		_ = s.Save(ctx)
		target = "/complete_profile"
	}
	models.WriteJSON(w, http.StatusOK, map[string]string{"redirect": target})
}

// finishPasswordless establishes the session after an OTP grant and routes
// first-time users into profile completion.
func (h *Handler) finishPasswordless(ctx context.Context, w http.ResponseWriter, r *http.Request, s *session.Session, grant *credstore.Grant, email string) {
	ident := grant.User
	if ident == nil {
		var err error
		ident, err = h.creds.GetUser(ctx, grant.AccessToken)
		if err != nil {
			logs.Logger.Errorf("get user after otp: %v", err)
			s.AddFlash("danger", "Login failed. Try again.")
			h.render.Render(w, r, "verify.tmpl", map[string]any{"Title": "Verify code", "Email": email})
			return
		}
	}
	p, setup := h.ensureProfile(ctx, ident)
	if p == nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if suspended, err := h.profiles.IsSuspended(ctx, p.ID); err == nil && suspended {
		s.AddFlash("danger", "Your account has been suspended. Contact support.")
		h.render.Render(w, r, "login.tmpl", map[string]any{"Title": "Log in"})
		return
	}
	if err := h.establish(ctx, s, p, grant); err != nil {
		logs.Logger.Errorf("session establish: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if setup {
		s.Rec.SetupRequired = true
		_ = s.Save(ctx)
		http.Redirect(w, r, "/complete_profile", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ensureProfile loads or creates the profile row for an identity and reports
// whether profile completion is still required (no username yet).
func (h *Handler) ensureProfile(ctx context.Context, ident *credstore.Identity) (*models.Profile, bool) {
	id, err := uuid.Parse(ident.ID)
	if err != nil {
		logs.Logger.Errorf("identity has bad id %q: %v", ident.ID, err)
		return nil, false
	}
	p, err := h.profiles.ByID(ctx, id)
	if err == nil {
		return p, p.Username == ""
	}
	if !errors.Is(err, datastore.ErrNotFound) {
		logs.Logger.Errorf("profile lookup: %v", err)
		return nil, false
	}
	p = &models.Profile{ID: id, Email: ident.Email}
	if v, ok := ident.Metadata["username"].(string); ok {
		p.Username = v
	}
	if v, ok := ident.Metadata["full_name"].(string); ok {
		p.FullName = v
	}
	if err := h.profiles.Upsert(ctx, p); err != nil {
		logs.Logger.Errorf("profile create: %v", err)
		return nil, false
	}
	return p, p.Username == ""
}

// ---------- profile completion ----------

func (h *Handler) CompleteProfilePage(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	if !s.Rec.Authenticated() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	h.render.Render(w, r, "complete_profile.tmpl", map[string]any{"Title": "Complete profile"})
}

func (h *Handler) CompleteProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := session.FromContext(ctx)
	if !s.Rec.Authenticated() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	uid, err := uuid.Parse(s.Rec.UserID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	username := strings.TrimSpace(r.FormValue("username"))
	fullName := strings.TrimSpace(r.FormValue("full_name"))
	password := r.FormValue("password")

	data := map[string]any{"Title": "Complete profile", "Username": username, "FullName": fullName}
	if username == "" {
		s.AddFlash("danger", "Username is required.")
		h.render.Render(w, r, "complete_profile.tmpl", data)
		return
	}
	if other, err := h.profiles.ByUsername(ctx, username); err == nil && other.ID != uid {
		s.AddFlash("danger", "That username is already taken.")
		h.render.Render(w, r, "complete_profile.tmpl", data)
		return
	}
	if password != "" && len(password) < minPasswordLen {
		s.AddFlash("danger", "Password must be at least 8 characters.")
		h.render.Render(w, r, "complete_profile.tmpl", data)
		return
	}
	if err := h.profiles.Update(ctx, uid, map[string]any{
		"username":  username,
		"full_name": fullName,
	}); err != nil {
		logs.Logger.Errorf("profile completion update: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if password != "" {
		g, err := h.creds.UpdatePassword(ctx, s.Rec.AccessToken, s.Rec.RefreshToken, password)
		adoptGrant(s, g)
		if err != nil {
			logs.Logger.Errorf("password set during completion: %v", err)
			s.AddFlash("warning", "Profile saved, but setting the password failed. You can set it later.")
		}
	}
	s.Rec.SetupRequired = false
	_ = s.Save(ctx)
	s.AddFlash("success", "Welcome! Your account is ready.")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ---------- forgot credentials ----------

func (h *Handler) ForgotPage(w http.ResponseWriter, r *http.Request) {
	h.render.Render(w, r, "forgot_password.tmpl", map[string]any{"Title": "Forgot credentials"})
}

// Forgot always answers with the same message regardless of whether the email
// exists, and enforces a per-email cooldown tracked in the session record.
func (h *Handler) Forgot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := session.FromContext(ctx)
	email := strings.TrimSpace(strings.ToLower(r.FormValue("email")))
	action := r.FormValue("action")

	done := func() {
		s.AddFlash("info", forgotMessage)
		_ = s.Save(ctx)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	}
	if email == "" {
		done()
		return
	}

	now := h.now()
	if s.Rec.ForgotRequests == nil {
		s.Rec.ForgotRequests = map[string]time.Time{}
	}
	if last, ok := s.Rec.ForgotRequests[email]; ok && now.Sub(last) < forgotWindow {
		// inside the cooldown: accept silently, deliver nothing
		done()
		return
	}
	s.Rec.ForgotRequests[email] = now

	// lookup outcome must not change anything the user can observe
	p, err := h.profiles.ByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, datastore.ErrNotFound) {
			logs.Logger.Errorf("forgot lookup: %v", err)
		}
		done()
		return
	}
	switch action {
	case "recover_username":
		logs.Logger.Infof("username recovery requested for profile %s", p.ID)
	default:
		if err := h.creds.Recover(ctx, email, h.baseURL+"/reset_password"); err != nil {
			logs.Logger.Errorf("recovery email for %s: %v", p.ID, err)
		}
	}
	done()
}

// ---------- password reset ----------

func (h *Handler) ResetPage(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.URL.Query().Get("access_token")
	}
	h.render.Render(w, r, "reset_password.tmpl", map[string]any{"Title": "Reset password", "Token": token})
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := session.FromContext(ctx)
	token := r.FormValue("token")
	password := r.FormValue("password")
	confirm := r.FormValue("confirm")

	data := map[string]any{"Title": "Reset password", "Token": token}
	if len(password) < minPasswordLen {
		s.AddFlash("danger", "Password must be at least 8 characters.")
		h.render.Render(w, r, "reset_password.tmpl", data)
		return
	}
	if password != confirm {
		s.AddFlash("danger", "Passwords do not match.")
		h.render.Render(w, r, "reset_password.tmpl", data)
		return
	}
	if err := h.creds.ResetPassword(ctx, token, password); err != nil {
		logs.Logger.Infof("password reset rejected: %v", err)
		s.AddFlash("danger", "This reset link is invalid or has expired. Request a new one.")
		h.render.Render(w, r, "reset_password.tmpl", data)
		return
	}
	s.AddFlash("success", "Password updated. Log in with your new password.")
	_ = s.Save(ctx)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// ---------- profile page ----------

func (h *Handler) ProfilePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := session.FromContext(ctx)
	if !s.Rec.Authenticated() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	uid, _ := uuid.Parse(s.Rec.UserID)
	p, err := h.profiles.ByID(ctx, uid)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.render.Render(w, r, "profile.tmpl", map[string]any{"Title": "Profile", "Profile": p})
}

func (h *Handler) ProfileUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := session.FromContext(ctx)
	if !s.Rec.Authenticated() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	uid, _ := uuid.Parse(s.Rec.UserID)
	fields := map[string]any{
		"full_name": strings.TrimSpace(r.FormValue("full_name")),
	}
	if c := strings.TrimSpace(r.FormValue("currency")); c != "" {
		fields["currency"] = c
	}
	if b := r.FormValue("budget"); b != "" {
		if v, err := strconv.ParseFloat(b, 64); err == nil && v >= 0 {
			fields["budget"] = v
		}
	}
	if err := h.profiles.Update(ctx, uid, fields); err != nil {
		logs.Logger.Errorf("profile update: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.AddFlash("success", "Profile saved.")
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := session.FromContext(ctx)
	if !s.Rec.Authenticated() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	password := r.FormValue("password")
	if len(password) < minPasswordLen || password != r.FormValue("confirm") {
		s.AddFlash("danger", "Passwords must match and be at least 8 characters.")
		http.Redirect(w, r, "/profile", http.StatusSeeOther)
		return
	}
	g, err := h.creds.UpdatePassword(ctx, s.Rec.AccessToken, s.Rec.RefreshToken, password)
	adoptGrant(s, g)
	if err != nil {
		logs.Logger.Infof("password change rejected: %v", err)
		s.AddFlash("danger", "Password change failed. Log out and back in, then retry.")
		http.Redirect(w, r, "/profile", http.StatusSeeOther)
		return
	}
	s.AddFlash("success", "Password changed.")
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}
