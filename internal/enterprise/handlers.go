package enterprise

import (
	"context"
	"encoding/csv"
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
	"moneta/internal/pin"
	"moneta/internal/session"
	"moneta/internal/web"
)

// Orgs is the membership/tenant surface the business area needs.
type Orgs interface {
	TenantsForUser(ctx context.Context, userID uuid.UUID) ([]datastore.Tenant, error)
	TenantByName(ctx context.Context, userID uuid.UUID, name string) (*datastore.Tenant, error)
	Membership(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error)
	SetPINHash(ctx context.Context, orgID, userID uuid.UUID, hash string) error
	AddMember(ctx context.Context, orgID, userID uuid.UUID, role string) error
	Members(ctx context.Context, orgID uuid.UUID) ([]datastore.MemberInfo, error)
}

// Resolver provisions or resolves a tenant for (user, business name).
type Resolver interface {
	ResolveOrProvision(ctx context.Context, userID uuid.UUID, business string) (uuid.UUID, error)
}

// Reauth re-proves the primary account password; the PIN reset path is the
// only caller.
type Reauth interface {
	SignIn(ctx context.Context, email, password string) (*credstore.Grant, error)
}

// Profiles resolves usernames when adding members.
type Profiles interface {
	ByUsername(ctx context.Context, username string) (*models.Profile, error)
}

type Handler struct {
	orgs     Orgs
	resolver Resolver
	ent      *datastore.EntStore
	profiles Profiles
	creds    Reauth
	render   *web.Renderer

	now func() time.Time
}

func NewHandler(orgs Orgs, resolver Resolver, ent *datastore.EntStore, profiles Profiles, creds Reauth, render *web.Renderer) *Handler {
	return &Handler{
		orgs: orgs, resolver: resolver, ent: ent,
		profiles: profiles, creds: creds, render: render,
		now: time.Now,
	}
}

// Register mounts the business area on its subrouter and installs the gate.
func (h *Handler) Register(r *mux.Router) {
	r.Use(h.Gate)
	r.HandleFunc("/select_organization", h.SelectOrganization).Methods(http.MethodGet)
	r.HandleFunc("/switch_organization", h.SwitchOrganization).Methods(http.MethodPost)
	r.HandleFunc("/pin_setup", h.PINSetupPage).Methods(http.MethodGet)
	r.HandleFunc("/pin_setup", h.PINSetup).Methods(http.MethodPost)
	r.HandleFunc("/pin_verify", h.PINVerifyPage).Methods(http.MethodGet)
	r.HandleFunc("/pin_verify", h.PINVerify).Methods(http.MethodPost)
	r.HandleFunc("/pin_reset", h.PINResetPage).Methods(http.MethodGet)
	r.HandleFunc("/pin_reset", h.PINReset).Methods(http.MethodPost)
	r.HandleFunc("/business_logout", h.BusinessLogout).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/check_auth", h.CheckAuth).Methods(http.MethodGet)

	r.HandleFunc("/dashboard", h.Dashboard).Methods(http.MethodGet)
	r.HandleFunc("/cashflow", h.Cashflow).Methods(http.MethodGet)
	r.HandleFunc("/add_transaction", h.AddEntryPage).Methods(http.MethodGet)
	r.HandleFunc("/add_transaction", h.AddEntry).Methods(http.MethodPost)
	r.HandleFunc("/revenue/{id}/received", h.RevenueReceived).Methods(http.MethodPost)
	r.HandleFunc("/revenue/{id}/delete", h.RevenueDelete).Methods(http.MethodPost)
	r.HandleFunc("/expense/{id}/delete", h.ExpenseDelete).Methods(http.MethodPost)
	r.HandleFunc("/investments", h.Investments).Methods(http.MethodGet)
	r.HandleFunc("/investments", h.AddInvestment).Methods(http.MethodPost)
	r.HandleFunc("/investment/{id}/delete", h.InvestmentDelete).Methods(http.MethodPost)
	r.HandleFunc("/holding_payments", h.HoldingPayments).Methods(http.MethodGet)
	r.HandleFunc("/holding_payments", h.AddHoldingPayment).Methods(http.MethodPost)
	r.HandleFunc("/holding_payment/{id}/settle", h.SettleHoldingPayment).Methods(http.MethodPost)
	r.HandleFunc("/holding_payment/{id}/delete", h.HoldingPaymentDelete).Methods(http.MethodPost)
	r.HandleFunc("/members", h.Members).Methods(http.MethodGet)
	r.HandleFunc("/members", h.AddMember).Methods(http.MethodPost)
	r.HandleFunc("/export", h.ExportCSV).Methods(http.MethodGet)
}

// requireUser mirrors the personal area's helper.
func requireUser(w http.ResponseWriter, r *http.Request) (*session.Session, uuid.UUID, bool) {
	s := session.FromContext(r.Context())
	if s == nil || !s.Rec.Authenticated() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return nil, uuid.Nil, false
	}
	uid, err := uuid.Parse(s.Rec.UserID)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return nil, uuid.Nil, false
	}
	return s, uid, true
}

// ---------- organization selection ----------

func (h *Handler) SelectOrganization(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	tenants, err := h.orgs.TenantsForUser(r.Context(), uid)
	if err != nil {
		logs.Logger.Errorf("list tenants: %v", err)
	}
	h.render.Render(w, r, "enterprise/select_organization.tmpl", map[string]any{
		"Title":   "Businesses",
		"Tenants": tenants,
	})
}

// SwitchOrganization activates (provisioning if needed) the named business.
// The unlock flag is per business and survives switching away and back.
func (h *Handler) SwitchOrganization(w http.ResponseWriter, r *http.Request) {
	s, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	business := strings.TrimSpace(r.FormValue("business"))
	if business == "" {
		s.AddFlash("danger", "Business name is required.")
		http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
		return
	}
	orgID, err := h.resolver.ResolveOrProvision(ctx, uid, business)
	if err != nil {
		logs.Logger.Errorf("resolve business %q: %v", business, err)
		s.AddFlash("danger", "Could not open that business right now.")
		http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
		return
	}
	s.Rec.ActiveBusiness = business
	s.Rec.CurrOrgID = orgID.String()
	http.Redirect(w, r, "/enterprise/dashboard", http.StatusSeeOther)
}

// ---------- PIN gate flows ----------

// activeMembership loads the membership for the session's active business.
func (h *Handler) activeMembership(ctx context.Context, s *session.Session, uid uuid.UUID) (*datastore.Tenant, *models.Membership, error) {
	business := s.Rec.ActiveBusiness
	if business == "" {
		return nil, nil, datastore.ErrNotFound
	}
	t, err := h.orgs.TenantByName(ctx, uid, business)
	if err != nil {
		return nil, nil, err
	}
	m, err := h.orgs.Membership(ctx, t.ID, uid)
	if err != nil {
		return nil, nil, err
	}
	return t, m, nil
}

func (h *Handler) PINSetupPage(w http.ResponseWriter, r *http.Request) {
	s, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	_, m, err := h.activeMembership(r.Context(), s, uid)
	if err != nil {
		http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
		return
	}
	if m.PINHash != "" {
		http.Redirect(w, r, "/enterprise/pin_verify", http.StatusSeeOther)
		return
	}
	h.render.Render(w, r, "enterprise/pin_setup.tmpl", map[string]any{
		"Title":    "Set PIN",
		"Business": s.Rec.ActiveBusiness,
	})
}

func (h *Handler) PINSetup(w http.ResponseWriter, r *http.Request) {
	s, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	t, m, err := h.activeMembership(ctx, s, uid)
	if err != nil {
		http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
		return
	}
	if m.PINHash != "" {
		// a PIN already exists; setting a new one requires the reset flow
		http.Redirect(w, r, "/enterprise/pin_verify", http.StatusSeeOther)
		return
	}
	code := r.FormValue("pin")
	if !pin.ValidFormat(code) {
		s.AddFlash("danger", "PIN must be at least 4 digits.")
		http.Redirect(w, r, "/enterprise/pin_setup", http.StatusSeeOther)
		return
	}
	if code != r.FormValue("confirm") {
		s.AddFlash("danger", "PINs do not match.")
		http.Redirect(w, r, "/enterprise/pin_setup", http.StatusSeeOther)
		return
	}
	hash, err := pin.Hash(code)
	if err != nil {
		logs.Logger.Errorf("pin hash: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := h.orgs.SetPINHash(ctx, t.ID, uid, hash); err != nil {
		logs.Logger.Errorf("pin store: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.Rec.Unlock(s.Rec.ActiveBusiness)
	s.Rec.CurrOrgID = t.ID.String()
	s.AddFlash("success", "PIN set. Business unlocked.")
	http.Redirect(w, r, "/enterprise/dashboard", http.StatusSeeOther)
}

func (h *Handler) PINVerifyPage(w http.ResponseWriter, r *http.Request) {
	s, _, ok := requireUser(w, r)
	if !ok {
		return
	}
	if s.Rec.ActiveBusiness == "" {
		http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
		return
	}
	h.render.Render(w, r, "enterprise/pin_verify.tmpl", map[string]any{
		"Title":    "Unlock",
		"Business": s.Rec.ActiveBusiness,
	})
}

// PINVerify answers "Invalid PIN." for a wrong PIN and for a missing one, so
// a non-member probing a business name learns nothing.
func (h *Handler) PINVerify(w http.ResponseWriter, r *http.Request) {
	s, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	t, m, err := h.activeMembership(ctx, s, uid)
	if err != nil {
		if !errors.Is(err, datastore.ErrNotFound) {
			logs.Logger.Errorf("pin verify membership: %v", err)
		}
		s.Rec.ClearBusinessState()
		http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
		return
	}
	if m.PINHash == "" || !verifyPIN(r.FormValue("pin"), m.PINHash) {
		s.AddFlash("danger", "Invalid PIN.")
		http.Redirect(w, r, "/enterprise/pin_verify", http.StatusSeeOther)
		return
	}
	s.Rec.Unlock(s.Rec.ActiveBusiness)
	s.Rec.CurrOrgID = t.ID.String()
	http.Redirect(w, r, "/enterprise/dashboard", http.StatusSeeOther)
}

func verifyPIN(code, hash string) bool {
	ok, err := pin.Verify(code, hash)
	if err != nil {
		logs.Logger.Errorf("pin verify: %v", err)
		return false
	}
	return ok
}

func (h *Handler) PINResetPage(w http.ResponseWriter, r *http.Request) {
	s, _, ok := requireUser(w, r)
	if !ok {
		return
	}
	if s.Rec.ActiveBusiness == "" {
		http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
		return
	}
	h.render.Render(w, r, "enterprise/pin_reset.tmpl", map[string]any{
		"Title":    "Reset PIN",
		"Business": s.Rec.ActiveBusiness,
	})
}

// PINReset requires a full account-password re-authentication before any PIN
// is written. On success the current unlock flag is dropped: the new PIN must
// be proven before the business opens again.
func (h *Handler) PINReset(w http.ResponseWriter, r *http.Request) {
	s, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	t, _, err := h.activeMembership(ctx, s, uid)
	if err != nil {
		http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
		return
	}
	if _, err := h.creds.SignIn(ctx, s.Rec.Email, r.FormValue("password")); err != nil {
		logs.Logger.Infof("pin reset re-auth failed for %s: %v", uid, err)
		s.AddFlash("danger", "Account password is incorrect.")
		http.Redirect(w, r, "/enterprise/pin_reset", http.StatusSeeOther)
		return
	}
	code := r.FormValue("pin")
	if !pin.ValidFormat(code) || code != r.FormValue("confirm") {
		s.AddFlash("danger", "PINs must match and be at least 4 digits.")
		http.Redirect(w, r, "/enterprise/pin_reset", http.StatusSeeOther)
		return
	}
	hash, err := pin.Hash(code)
	if err != nil {
		logs.Logger.Errorf("pin hash: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := h.orgs.SetPINHash(ctx, t.ID, uid, hash); err != nil {
		logs.Logger.Errorf("pin store: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.Rec.Lock(s.Rec.ActiveBusiness)
	s.AddFlash("success", "PIN reset. Unlock with your new PIN.")
	http.Redirect(w, r, "/enterprise/pin_verify", http.StatusSeeOther)
}

// BusinessLogout closes the active business but keeps the account session.
func (h *Handler) BusinessLogout(w http.ResponseWriter, r *http.Request) {
	s, _, ok := requireUser(w, r)
	if !ok {
		return
	}
	if b := s.Rec.ActiveBusiness; b != "" {
		s.Rec.Lock(b)
	}
	s.Rec.ActiveBusiness = ""
	s.Rec.CurrOrgID = ""
	s.AddFlash("info", "Business closed.")
	http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
}

// CheckAuth reports session/gate status as JSON for client-side polling.
func (h *Handler) CheckAuth(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	authed := s != nil && s.Rec.Authenticated()
	unlocked := false
	if authed {
		unlocked = s.Rec.IsUnlocked(s.Rec.ActiveBusiness)
	}
	models.WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated":     authed,
		"business_unlocked": unlocked,
	})
}

// ---------- gated pages ----------

// monthTotals is one bucket of the dashboard trend.
type monthTotals struct {
	Label   string
	Revenue float64
	Expense float64
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	oc, ok := orgFromContext(ctx)
	if !ok {
		http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
		return
	}
	revenue, expense, err := h.ent.Totals(ctx, oc.OrgID)
	if err != nil {
		logs.Logger.Errorf("enterprise totals: %v", err)
	}
	netInvestment, err := h.ent.NetInvestment(ctx, oc.OrgID)
	if err != nil {
		logs.Logger.Errorf("net investment: %v", err)
	}
	var receivable, payable float64
	if open, err := h.ent.HoldingPayments(ctx, oc.OrgID, "open"); err == nil {
		for _, hp := range open {
			if hp.Type == "receivable" {
				receivable += hp.Amount
			} else {
				payable += hp.Amount
			}
		}
	}

	nowT := h.now()
	monthStart := time.Date(nowT.Year(), nowT.Month(), 1, 0, 0, 0, 0, time.UTC)
	trendStart := monthStart.AddDate(0, -5, 0)

	revenues, err := h.ent.Revenues(ctx, oc.OrgID, datastore.DateRange{})
	if err != nil {
		logs.Logger.Errorf("dashboard revenues: %v", err)
	}
	recentExpenses, err := h.ent.Expenses(ctx, oc.OrgID, datastore.DateRange{Start: &trendStart})
	if err != nil {
		logs.Logger.Errorf("dashboard expenses: %v", err)
	}

	var pending float64
	for _, rev := range revenues {
		if rev.Status == "pending" {
			pending += rev.Amount
		}
	}

	trend := make([]monthTotals, 6)
	for i := range trend {
		trend[i].Label = trendStart.AddDate(0, i, 0).Format("Jan 2006")
	}
	bucket := func(d time.Time) int {
		if d.Before(trendStart) {
			return -1
		}
		return (d.Year()-trendStart.Year())*12 + int(d.Month()) - int(trendStart.Month())
	}
	for _, rev := range revenues {
		if rev.Status != "received" {
			continue
		}
		if i := bucket(rev.Date); i >= 0 && i < len(trend) {
			trend[i].Revenue += rev.Amount
		}
	}
	for _, exp := range recentExpenses {
		if i := bucket(exp.Date); i >= 0 && i < len(trend) {
			trend[i].Expense += exp.Amount
		}
	}

	// monthly burn averaged over the last three months
	burnStart := nowT.AddDate(0, -3, 0)
	var burn float64
	for _, exp := range recentExpenses {
		if !exp.Date.Before(burnStart) {
			burn += exp.Amount
		}
	}
	burn /= 3

	var margin float64
	if revenue > 0 {
		margin = (revenue - expense) / revenue * 100
	}

	h.render.Render(w, r, "enterprise/dashboard.tmpl", map[string]any{
		"Title":         oc.Name,
		"Business":      oc.Name,
		"Revenue":       revenue,
		"Expense":       expense,
		"Net":           revenue - expense,
		"Pending":       pending,
		"Margin":        margin,
		"Burn":          burn,
		"Trend":         trend,
		"NetInvestment": netInvestment,
		"Receivable":    receivable,
		"Payable":       payable,
	})
}

func parseDate(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil
	}
	return &t
}

func (h *Handler) Cashflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	oc, ok := orgFromContext(ctx)
	if !ok {
		http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
		return
	}
	q := r.URL.Query()
	rng := datastore.DateRange{Start: parseDate(q.Get("start_date")), End: parseDate(q.Get("end_date"))}
	// preset links override explicit dates
	if days, ok := map[string]int{"7d": 7, "30d": 30, "90d": 90}[q.Get("period")]; ok {
		start := h.now().AddDate(0, 0, -days)
		rng = datastore.DateRange{Start: &start}
	}
	revenues, err := h.ent.Revenues(ctx, oc.OrgID, rng)
	if err != nil {
		logs.Logger.Errorf("cashflow revenues: %v", err)
	}
	expenses, err := h.ent.Expenses(ctx, oc.OrgID, rng)
	if err != nil {
		logs.Logger.Errorf("cashflow expenses: %v", err)
	}
	h.render.Render(w, r, "enterprise/cashflow.tmpl", map[string]any{
		"Title":     oc.Name + " cashflow",
		"Business":  oc.Name,
		"Revenues":  revenues,
		"Expenses":  expenses,
		"StartDate": q.Get("start_date"),
		"EndDate":   q.Get("end_date"),
	})
}

func (h *Handler) AddEntryPage(w http.ResponseWriter, r *http.Request) {
	oc, ok := orgFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
		return
	}
	h.render.Render(w, r, "enterprise/add_transaction.tmpl", map[string]any{
		"Title":    "Record entry",
		"Business": oc.Name,
		"Today":    h.now().Format("2006-01-02"),
	})
}

func (h *Handler) AddEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	oc, ok := orgFromContext(ctx)
	if !ok {
		http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
		return
	}
	s := session.FromContext(ctx)
	date := parseDate(r.FormValue("date"))
	amount, err := strconv.ParseFloat(r.FormValue("amount"), 64)
	if date == nil || err != nil || amount <= 0 {
		s.AddFlash("danger", "A valid date and positive amount are required.")
		http.Redirect(w, r, "/enterprise/add_transaction", http.StatusSeeOther)
		return
	}
	method := r.FormValue("method")
	if method != "Bank" {
		method = "Cash"
	}
	takenBy := strings.TrimSpace(r.FormValue("taken_by"))
	narrative := strings.TrimSpace(r.FormValue("narrative"))

	switch r.FormValue("kind") {
	case "expense":
		err = h.ent.AddExpense(ctx, &models.EntExpense{
			OrganizationID: oc.OrgID,
			Date:           *date,
			Amount:         amount,
			Method:         method,
			Category:       strings.TrimSpace(r.FormValue("category")),
			Narrative:      narrative,
			TakenBy:        takenBy,
			CreatedAt:      time.Now().UTC(),
		})
	default:
		status := r.FormValue("status")
		if status != "pending" {
			status = "received"
		}
		err = h.ent.AddRevenue(ctx, &models.EntRevenue{
			OrganizationID: oc.OrgID,
			Date:           *date,
			Amount:         amount,
			Method:         method,
			Narrative:      narrative,
			TakenBy:        takenBy,
			Status:         status,
			CreatedAt:      time.Now().UTC(),
		})
	}
	if err != nil {
		logs.Logger.Errorf("add enterprise entry: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.AddFlash("success", "Entry recorded.")
	http.Redirect(w, r, "/enterprise/cashflow", http.StatusSeeOther)
}

func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	return id, err == nil
}

func (h *Handler) RevenueReceived(w http.ResponseWriter, r *http.Request) {
	oc, ok := orgFromContext(r.Context())
	if !ok {
		http.NotFound(w, r)
		return
	}
	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := h.ent.MarkRevenueReceived(r.Context(), id, oc.OrgID); err != nil {
		logs.Logger.Errorf("mark revenue received: %v", err)
	}
	http.Redirect(w, r, "/enterprise/cashflow", http.StatusSeeOther)
}

func (h *Handler) RevenueDelete(w http.ResponseWriter, r *http.Request) {
	oc, ok := orgFromContext(r.Context())
	if !ok {
		http.NotFound(w, r)
		return
	}
	if id, ok := pathID(r); ok {
		if err := h.ent.DeleteRevenue(r.Context(), id, oc.OrgID); err != nil {
			logs.Logger.Errorf("delete revenue: %v", err)
		}
	}
	http.Redirect(w, r, "/enterprise/cashflow", http.StatusSeeOther)
}

func (h *Handler) ExpenseDelete(w http.ResponseWriter, r *http.Request) {
	oc, ok := orgFromContext(r.Context())
	if !ok {
		http.NotFound(w, r)
		return
	}
	if id, ok := pathID(r); ok {
		if err := h.ent.DeleteExpense(r.Context(), id, oc.OrgID); err != nil {
			logs.Logger.Errorf("delete expense: %v", err)
		}
	}
	http.Redirect(w, r, "/enterprise/cashflow", http.StatusSeeOther)
}

func (h *Handler) Investments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	oc, ok := orgFromContext(ctx)
	if !ok {
		http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
		return
	}
	invs, err := h.ent.Investments(ctx, oc.OrgID)
	if err != nil {
		logs.Logger.Errorf("list investments: %v", err)
	}
	net, _ := h.ent.NetInvestment(ctx, oc.OrgID)
	h.render.Render(w, r, "enterprise/investments.tmpl", map[string]any{
		"Title":         oc.Name + " investments",
		"Business":      oc.Name,
		"Investments":   invs,
		"NetInvestment": net,
		"Today":         h.now().Format("2006-01-02"),
	})
}

func (h *Handler) AddInvestment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	oc, ok := orgFromContext(ctx)
	if !ok {
		http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
		return
	}
	s := session.FromContext(ctx)
	date := parseDate(r.FormValue("date"))
	amount, err := strconv.ParseFloat(r.FormValue("amount"), 64)
	if date == nil || err != nil || amount <= 0 {
		s.AddFlash("danger", "A valid date and positive amount are required.")
		http.Redirect(w, r, "/enterprise/investments", http.StatusSeeOther)
		return
	}
	typ := r.FormValue("type")
	if typ != "withdraw" {
		typ = "investment"
	}
	inv := &models.EntInvestment{
		OrganizationID: oc.OrgID,
		Date:           *date,
		Type:           typ,
		TakenBy:        strings.TrimSpace(r.FormValue("taken_by")),
		Narrative:      strings.TrimSpace(r.FormValue("narrative")),
		Amount:         amount,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.ent.AddInvestment(ctx, inv); err != nil {
		logs.Logger.Errorf("add investment: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/enterprise/investments", http.StatusSeeOther)
}

func (h *Handler) InvestmentDelete(w http.ResponseWriter, r *http.Request) {
	oc, ok := orgFromContext(r.Context())
	if !ok {
		http.NotFound(w, r)
		return
	}
	if id, ok := pathID(r); ok {
		if err := h.ent.DeleteInvestment(r.Context(), id, oc.OrgID); err != nil {
			logs.Logger.Errorf("delete investment: %v", err)
		}
	}
	http.Redirect(w, r, "/enterprise/investments", http.StatusSeeOther)
}

func (h *Handler) HoldingPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	oc, ok := orgFromContext(ctx)
	if !ok {
		http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
		return
	}
	status := r.URL.Query().Get("status")
	if status == "" {
		status = "open"
	}
	payments, err := h.ent.HoldingPayments(ctx, oc.OrgID, status)
	if err != nil {
		logs.Logger.Errorf("list holding payments: %v", err)
	}
	h.render.Render(w, r, "enterprise/holding_payments.tmpl", map[string]any{
		"Title":    oc.Name + " holding payments",
		"Business": oc.Name,
		"Payments": payments,
	})
}

func (h *Handler) AddHoldingPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	oc, ok := orgFromContext(ctx)
	if !ok {
		http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
		return
	}
	s := session.FromContext(ctx)
	uid, _ := uuid.Parse(s.Rec.UserID)
	name := strings.TrimSpace(r.FormValue("name"))
	amount, err := strconv.ParseFloat(r.FormValue("amount"), 64)
	if name == "" || err != nil || amount <= 0 {
		s.AddFlash("danger", "Name and a positive amount are required.")
		http.Redirect(w, r, "/enterprise/holding_payments", http.StatusSeeOther)
		return
	}
	typ := r.FormValue("type")
	if typ != "payable" {
		typ = "receivable"
	}
	hp := &models.EntHoldingPayment{
		OrganizationID: oc.OrgID,
		UserID:         uid,
		Name:           name,
		Type:           typ,
		Amount:         amount,
		ExpectedDate:   parseDate(r.FormValue("expected_date")),
		MobileNo:       strings.TrimSpace(r.FormValue("mobile_no")),
		Narrative:      strings.TrimSpace(r.FormValue("narrative")),
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.ent.AddHoldingPayment(ctx, hp); err != nil {
		logs.Logger.Errorf("add holding payment: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/enterprise/holding_payments", http.StatusSeeOther)
}

func (h *Handler) SettleHoldingPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	oc, ok := orgFromContext(ctx)
	if !ok {
		http.NotFound(w, r)
		return
	}
	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	amount, _ := strconv.ParseFloat(r.FormValue("amount"), 64)
	if err := h.ent.SettleHoldingPayment(ctx, id, oc.OrgID, amount); err != nil {
		logs.Logger.Errorf("settle holding payment: %v", err)
	}
	http.Redirect(w, r, "/enterprise/holding_payments", http.StatusSeeOther)
}

func (h *Handler) HoldingPaymentDelete(w http.ResponseWriter, r *http.Request) {
	oc, ok := orgFromContext(r.Context())
	if !ok {
		http.NotFound(w, r)
		return
	}
	if id, ok := pathID(r); ok {
		if err := h.ent.DeleteHoldingPayment(r.Context(), id, oc.OrgID); err != nil {
			logs.Logger.Errorf("delete holding payment: %v", err)
		}
	}
	http.Redirect(w, r, "/enterprise/holding_payments", http.StatusSeeOther)
}

// ---------- members ----------

func (h *Handler) Members(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	oc, ok := orgFromContext(ctx)
	if !ok {
		http.Redirect(w, r, "/enterprise/select_organization", http.StatusSeeOther)
		return
	}
	members, err := h.orgs.Members(ctx, oc.OrgID)
	if err != nil {
		logs.Logger.Errorf("list members: %v", err)
	}
	h.render.Render(w, r, "enterprise/members.tmpl", map[string]any{
		"Title":     oc.Name + " members",
		"Business":  oc.Name,
		"Members":   members,
		"CanInvite": oc.Role == "owner" || oc.Role == "admin",
	})
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	oc, ok := orgFromContext(ctx)
	if !ok {
		http.NotFound(w, r)
		return
	}
	s := session.FromContext(ctx)
	if oc.Role != "owner" && oc.Role != "admin" {
		s.AddFlash("danger", "Only owners and admins can add members.")
		http.Redirect(w, r, "/enterprise/members", http.StatusSeeOther)
		return
	}
	username := strings.TrimSpace(r.FormValue("username"))
	p, err := h.profiles.ByUsername(ctx, username)
	if err != nil {
		s.AddFlash("danger", "No account with that username.")
		http.Redirect(w, r, "/enterprise/members", http.StatusSeeOther)
		return
	}
	role := r.FormValue("role")
	if role != "admin" {
		role = "member"
	}
	if err := h.orgs.AddMember(ctx, oc.OrgID, p.ID, role); err != nil {
		logs.Logger.Errorf("add member: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.AddFlash("success", username+" added.")
	http.Redirect(w, r, "/enterprise/members", http.StatusSeeOther)
}

// ---------- export ----------

// ExportCSV streams the org's revenues and expenses as one CSV.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	oc, ok := orgFromContext(ctx)
	if !ok {
		http.NotFound(w, r)
		return
	}
	revenues, err := h.ent.Revenues(ctx, oc.OrgID, datastore.DateRange{})
	if err != nil {
		logs.Logger.Errorf("export revenues: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	expenses, err := h.ent.Expenses(ctx, oc.OrgID, datastore.DateRange{})
	if err != nil {
		logs.Logger.Errorf("export expenses: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+oc.Name+`-cashflow.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"kind", "date", "amount", "method", "category", "status", "taken_by", "narrative"})
	for _, rev := range revenues {
		_ = cw.Write([]string{
			"revenue", rev.Date.Format("2006-01-02"),
			strconv.FormatFloat(rev.Amount, 'f', 2, 64),
			rev.Method, "", rev.Status, rev.TakenBy, rev.Narrative,
		})
	}
	for _, exp := range expenses {
		_ = cw.Write([]string{
			"expense", exp.Date.Format("2006-01-02"),
			strconv.FormatFloat(exp.Amount, 'f', 2, 64),
			exp.Method, exp.Category, "", exp.TakenBy, exp.Narrative,
		})
	}
	cw.Flush()
}
