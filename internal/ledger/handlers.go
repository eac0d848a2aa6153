// Package ledger serves the personal finance area: dashboard, transactions,
// bank accounts, debts, categories and reports.
package ledger

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"moneta/internal/datastore"
	"moneta/internal/logs"
	"moneta/internal/models"
	"moneta/internal/session"
	"moneta/internal/web"
)

// builtinCategories are always offered; user categories extend them.
var builtinCategories = []string{
	"Food", "Groceries", "Transport", "Rent", "Utilities", "Health",
	"Entertainment", "Shopping", "Education", "Travel", "Debt", "Salary", "Other",
}

type Handler struct {
	store    *datastore.LedgerStore
	profiles *datastore.ProfileStore
	render   *web.Renderer

	now func() time.Time
}

func NewHandler(store *datastore.LedgerStore, profiles *datastore.ProfileStore, render *web.Renderer) *Handler {
	return &Handler{store: store, profiles: profiles, render: render, now: time.Now}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/", h.Dashboard).Methods(http.MethodGet)
	r.HandleFunc("/expenses", h.Expenses).Methods(http.MethodGet)
	r.HandleFunc("/add_transaction", h.AddPage).Methods(http.MethodGet)
	r.HandleFunc("/add_transaction", h.Add).Methods(http.MethodPost)
	r.HandleFunc("/edit_transaction/{id}", h.EditPage).Methods(http.MethodGet)
	r.HandleFunc("/edit_transaction/{id}", h.Edit).Methods(http.MethodPost)
	r.HandleFunc("/delete_transaction/{id}", h.Delete).Methods(http.MethodPost)
	r.HandleFunc("/bulk_add", h.BulkAddPage).Methods(http.MethodGet)
	r.HandleFunc("/bulk_add", h.BulkAdd).Methods(http.MethodPost)
	r.HandleFunc("/banks", h.Banks).Methods(http.MethodGet)
	r.HandleFunc("/add_bank", h.AddBank).Methods(http.MethodPost)
	r.HandleFunc("/delete_bank/{id}", h.DeleteBank).Methods(http.MethodPost)
	r.HandleFunc("/debts", h.Debts).Methods(http.MethodGet)
	r.HandleFunc("/add_debt", h.AddDebt).Methods(http.MethodPost)
	r.HandleFunc("/settle_debt/{id}", h.SettleDebt).Methods(http.MethodPost)
	r.HandleFunc("/categories", h.Categories).Methods(http.MethodGet)
	r.HandleFunc("/add_category", h.AddCategory).Methods(http.MethodPost)
	r.HandleFunc("/delete_category/{id}", h.DeleteCategory).Methods(http.MethodPost)
	r.HandleFunc("/reports", h.Reports).Methods(http.MethodGet)
}

// requireUser redirects anonymous requests to login and returns the user id.
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

func (h *Handler) categoriesFor(ctx context.Context, uid uuid.UUID) []string {
	out := append([]string(nil), builtinCategories...)
	custom, err := h.store.CustomCategories(ctx, uid)
	if err != nil {
		logs.Logger.Errorf("load categories: %v", err)
		return out
	}
	for _, c := range custom {
		out = append(out, c.Name)
	}
	return out
}

// ---------- dashboard ----------

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	s, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	// recurring charges are materialized once per session, on first dashboard hit
	if !s.Rec.RecurringChecked {
		if n, err := h.store.MaterializeDue(ctx, uid, h.now()); err != nil {
			logs.Logger.Errorf("recurring check: %v", err)
		} else if n > 0 {
			s.AddFlash("info", "Added "+strconv.Itoa(n)+" recurring transaction(s).")
		}
		s.Rec.RecurringChecked = true
	}

	income, expense, err := h.store.Totals(ctx, uid)
	if err != nil {
		logs.Logger.Errorf("dashboard totals: %v", err)
	}
	recent, err := h.store.Transactions(ctx, uid, datastore.TxFilter{Limit: 10})
	if err != nil {
		logs.Logger.Errorf("dashboard recent: %v", err)
	}

	currency := "₹"
	var budget, monthSpent float64
	if p, err := h.profiles.ByID(ctx, uid); err == nil {
		if p.Currency != "" {
			currency = p.Currency
		}
		budget = p.Budget
		if budget > 0 {
			monthStart := time.Date(h.now().Year(), h.now().Month(), 1, 0, 0, 0, 0, time.UTC)
			_, monthSpent, _ = h.store.RangeTotals(ctx, uid, &monthStart, nil)
		}
	}

	h.render.Render(w, r, "dashboard.tmpl", map[string]any{
		"Title":      "Dashboard",
		"Income":     income,
		"Expense":    expense,
		"Balance":    income - expense,
		"Recent":     recent,
		"Currency":   currency,
		"Budget":     budget,
		"MonthSpent": monthSpent,
	})
}

// ---------- transactions ----------

func (h *Handler) Expenses(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	q := r.URL.Query()
	f := datastore.TxFilter{
		Start:    parseDate(q.Get("start_date")),
		End:      parseDate(q.Get("end_date")),
		Category: q.Get("category"),
		BankID:   q.Get("bank_id"),
	}
	txs, err := h.store.Transactions(ctx, uid, f)
	if err != nil {
		logs.Logger.Errorf("list transactions: %v", err)
	}
	banks, _ := h.store.Banks(ctx, uid)
	h.render.Render(w, r, "expenses.tmpl", map[string]any{
		"Title":        "Transactions",
		"Transactions": txs,
		"Banks":        banks,
		"Categories":   h.categoriesFor(ctx, uid),
		"StartDate":    q.Get("start_date"),
		"EndDate":      q.Get("end_date"),
		"Category":     q.Get("category"),
		"BankID":       q.Get("bank_id"),
	})
}

func (h *Handler) AddPage(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	banks, _ := h.store.Banks(ctx, uid)
	h.render.Render(w, r, "add_transaction.tmpl", map[string]any{
		"Title":      "Add transaction",
		"Action":     "/add_transaction",
		"Categories": h.categoriesFor(ctx, uid),
		"Banks":      banks,
		"Today":      h.now().Format("2006-01-02"),
	})
}

// parseTxForm builds a transaction from form input; returns a user-facing
// error message when invalid.
func parseTxForm(r *http.Request, uid uuid.UUID) (*models.Transaction, string) {
	typ := r.FormValue("type")
	if typ != "income" && typ != "expense" {
		typ = "expense"
	}
	date := parseDate(r.FormValue("date"))
	if date == nil {
		return nil, "A valid date is required."
	}
	amount, err := strconv.ParseFloat(r.FormValue("amount"), 64)
	if err != nil || amount <= 0 {
		return nil, "Amount must be a positive number."
	}
	tx := &models.Transaction{
		UserID:      uid,
		Date:        *date,
		Category:    strings.TrimSpace(r.FormValue("category")),
		Amount:      amount,
		Description: strings.TrimSpace(r.FormValue("description")),
		Type:        typ,
		CreatedAt:   time.Now().UTC(),
	}
	if v := r.FormValue("bank_id"); v != "" && v != "Cash" {
		if id, err := uuid.Parse(v); err == nil {
			tx.BankAccountID = &id
		}
	}
	return tx, ""
}

func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	s, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	tx, msg := parseTxForm(r, uid)
	if msg != "" {
		s.AddFlash("danger", msg)
		http.Redirect(w, r, "/add_transaction", http.StatusSeeOther)
		return
	}
	if err := h.store.CreateTransaction(ctx, tx); err != nil {
		logs.Logger.Errorf("create transaction: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if r.FormValue("recurring") == "1" && tx.Type == "expense" {
		rule := &models.RecurringRule{
			UserID:      uid,
			Category:    tx.Category,
			Amount:      tx.Amount,
			Description: tx.Description,
			NextDueDate: tx.Date.AddDate(0, 0, 30),
			CreatedAt:   time.Now().UTC(),
		}
		if err := h.store.CreateRecurringRule(ctx, rule); err != nil {
			logs.Logger.Errorf("create recurring rule: %v", err)
		}
	}
	s.AddFlash("success", "Transaction added.")
	http.Redirect(w, r, "/expenses", http.StatusSeeOther)
}

func (h *Handler) EditPage(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	tx, err := h.store.TransactionByID(ctx, id)
	if err != nil || tx.UserID != uid {
		http.NotFound(w, r)
		return
	}
	banks, _ := h.store.Banks(ctx, uid)
	h.render.Render(w, r, "add_transaction.tmpl", map[string]any{
		"Title":      "Edit transaction",
		"Action":     "/edit_transaction/" + id.String(),
		"Tx":         tx,
		"Categories": h.categoriesFor(ctx, uid),
		"Banks":      banks,
	})
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	s, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	tx, msg := parseTxForm(r, uid)
	if msg != "" {
		s.AddFlash("danger", msg)
		http.Redirect(w, r, "/edit_transaction/"+id.String(), http.StatusSeeOther)
		return
	}
	fields := map[string]any{
		"type":        tx.Type,
		"date":        tx.Date,
		"category":    tx.Category,
		"amount":      tx.Amount,
		"description": tx.Description,
	}
	if tx.BankAccountID != nil {
		fields["bank_account_id"] = *tx.BankAccountID
	} else {
		fields["bank_account_id"] = nil
	}
	if err := h.store.UpdateTransaction(r.Context(), id, uid, fields); err != nil {
		logs.Logger.Errorf("update transaction: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.AddFlash("success", "Transaction updated.")
	http.Redirect(w, r, "/expenses", http.StatusSeeOther)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	s, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := h.store.DeleteTransaction(r.Context(), id, uid); err != nil {
		logs.Logger.Errorf("delete transaction: %v", err)
	}
	s.AddFlash("success", "Transaction deleted.")
	http.Redirect(w, r, "/expenses", http.StatusSeeOther)
}

// ---------- bulk add ----------

func (h *Handler) BulkAddPage(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := requireUser(w, r); !ok {
		return
	}
	h.render.Render(w, r, "bulk_add.tmpl", map[string]any{"Title": "Bulk add"})
}

// BulkAdd parses "date, category, amount, description" lines. Bad lines are
// skipped and reported; good lines are inserted.
func (h *Handler) BulkAdd(w http.ResponseWriter, r *http.Request) {
	s, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	added, skipped := 0, 0
	for _, line := range strings.Split(r.FormValue("lines"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ",", 4)
		if len(parts) < 3 {
			skipped++
			continue
		}
		date := parseDate(strings.TrimSpace(parts[0]))
		amount, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if date == nil || err != nil || amount == 0 {
			skipped++
			continue
		}
		typ := "expense"
		if amount < 0 {
			typ = "income"
			amount = -amount
		}
		tx := &models.Transaction{
			UserID:    uid,
			Date:      *date,
			Category:  strings.TrimSpace(parts[1]),
			Amount:    amount,
			Type:      typ,
			CreatedAt: time.Now().UTC(),
		}
		if len(parts) == 4 {
			tx.Description = strings.TrimSpace(parts[3])
		}
		if err := h.store.CreateTransaction(ctx, tx); err != nil {
			logs.Logger.Errorf("bulk add: %v", err)
			skipped++
			continue
		}
		added++
	}
	s.AddFlash("success", "Added "+strconv.Itoa(added)+" transaction(s), skipped "+strconv.Itoa(skipped)+".")
	http.Redirect(w, r, "/expenses", http.StatusSeeOther)
}

// ---------- banks ----------

// bankRow pairs an account with its running balance.
type bankRow struct {
	Account models.BankAccount
	Balance float64
}

func (h *Handler) Banks(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	banks, err := h.store.Banks(ctx, uid)
	if err != nil {
		logs.Logger.Errorf("list banks: %v", err)
	}
	txs, _ := h.store.Transactions(ctx, uid, datastore.TxFilter{})

	rows := make([]bankRow, 0, len(banks))
	for _, b := range banks {
		balance := b.OpeningBalance
		for _, tx := range txs {
			if tx.BankAccountID == nil || *tx.BankAccountID != b.ID {
				continue
			}
			if tx.Type == "income" {
				balance += tx.Amount
			} else {
				balance -= tx.Amount
			}
		}
		rows = append(rows, bankRow{Account: b, Balance: balance})
	}
	h.render.Render(w, r, "banks.tmpl", map[string]any{"Title": "Banks", "Banks": rows})
}

func (h *Handler) AddBank(w http.ResponseWriter, r *http.Request) {
	s, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	name := strings.TrimSpace(r.FormValue("bank_name"))
	if name == "" {
		s.AddFlash("danger", "Bank name is required.")
		http.Redirect(w, r, "/banks", http.StatusSeeOther)
		return
	}
	opening, _ := strconv.ParseFloat(r.FormValue("opening_balance"), 64)
	b := &models.BankAccount{
		UserID:         uid,
		BankName:       name,
		AccountNumber:  strings.TrimSpace(r.FormValue("account_number")),
		IFSCCode:       strings.TrimSpace(r.FormValue("ifsc_code")),
		OpeningBalance: opening,
		CreatedAt:      time.Now().UTC(),
	}
	if err := h.store.CreateBank(r.Context(), b); err != nil {
		logs.Logger.Errorf("create bank: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.AddFlash("success", "Account added.")
	http.Redirect(w, r, "/banks", http.StatusSeeOther)
}

func (h *Handler) DeleteBank(w http.ResponseWriter, r *http.Request) {
	s, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := h.store.DeleteBank(r.Context(), id, uid); err != nil {
		logs.Logger.Errorf("delete bank: %v", err)
	}
	s.AddFlash("success", "Account removed.")
	http.Redirect(w, r, "/banks", http.StatusSeeOther)
}

// ---------- debts ----------

func (h *Handler) Debts(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	debts, err := h.store.ActiveDebts(r.Context(), uid)
	if err != nil {
		logs.Logger.Errorf("list debts: %v", err)
	}
	h.render.Render(w, r, "debts.tmpl", map[string]any{
		"Title": "Debts",
		"Debts": debts,
		"Today": h.now().Format("2006-01-02"),
	})
}

func (h *Handler) AddDebt(w http.ResponseWriter, r *http.Request) {
	s, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	person := strings.TrimSpace(r.FormValue("person_name"))
	amount, err := strconv.ParseFloat(r.FormValue("amount"), 64)
	date := parseDate(r.FormValue("transaction_date"))
	typ := r.FormValue("type")
	if typ != "lend" && typ != "borrow" {
		typ = "lend"
	}
	if person == "" || err != nil || amount <= 0 || date == nil {
		s.AddFlash("danger", "Person, a positive amount and a date are required.")
		http.Redirect(w, r, "/debts", http.StatusSeeOther)
		return
	}
	d := &models.Debt{
		UserID:          uid,
		PersonName:      person,
		Amount:          amount,
		Type:            typ,
		TransactionDate: *date,
		DueDate:         parseDate(r.FormValue("due_date")),
		Description:     strings.TrimSpace(r.FormValue("description")),
		CreatedAt:       time.Now().UTC(),
	}
	if err := h.store.CreateDebt(ctx, d); err != nil {
		logs.Logger.Errorf("create debt: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	// a lend is money out now, a borrow is money in now
	txType := "expense"
	if typ == "borrow" {
		txType = "income"
	}
	mirror := &models.Transaction{
		UserID:      uid,
		Date:        *date,
		Category:    "Debt",
		Amount:      amount,
		Description: debtNarrative(typ, person, false),
		Type:        txType,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.store.CreateTransaction(ctx, mirror); err != nil {
		logs.Logger.Errorf("debt mirror transaction: %v", err)
	}
	s.AddFlash("success", "Debt recorded.")
	http.Redirect(w, r, "/debts", http.StatusSeeOther)
}

func debtNarrative(typ, person string, settling bool) string {
	switch {
	case typ == "lend" && !settling:
		return "Lent to " + person
	case typ == "lend":
		return "Repaid by " + person
	case !settling:
		return "Borrowed from " + person
	default:
		return "Repaid to " + person
	}
}

// SettleDebt marks the debt settled and records the counter-movement of money.
func (h *Handler) SettleDebt(w http.ResponseWriter, r *http.Request) {
	s, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	d, err := h.store.DebtByID(ctx, id, uid)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := h.store.SettleDebt(ctx, id, uid); err != nil {
		logs.Logger.Errorf("settle debt: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	txType := "income"
	if d.Type == "borrow" {
		txType = "expense"
	}
	mirror := &models.Transaction{
		UserID:      uid,
		Date:        h.now(),
		Category:    "Debt",
		Amount:      d.Amount,
		Description: debtNarrative(d.Type, d.PersonName, true),
		Type:        txType,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.store.CreateTransaction(ctx, mirror); err != nil {
		logs.Logger.Errorf("settle mirror transaction: %v", err)
	}
	s.AddFlash("success", "Debt settled.")
	http.Redirect(w, r, "/debts", http.StatusSeeOther)
}

// ---------- categories ----------

func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	custom, err := h.store.CustomCategories(r.Context(), uid)
	if err != nil {
		logs.Logger.Errorf("list categories: %v", err)
	}
	h.render.Render(w, r, "categories.tmpl", map[string]any{
		"Title":   "Categories",
		"Builtin": builtinCategories,
		"Custom":  custom,
	})
}

func (h *Handler) AddCategory(w http.ResponseWriter, r *http.Request) {
	s, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		s.AddFlash("danger", "Category name is required.")
		http.Redirect(w, r, "/categories", http.StatusSeeOther)
		return
	}
	if err := h.store.CreateCategory(r.Context(), uid, name); err != nil {
		logs.Logger.Errorf("create category: %v", err)
	}
	http.Redirect(w, r, "/categories", http.StatusSeeOther)
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := h.store.DeleteCategory(r.Context(), id, uid); err != nil {
		logs.Logger.Errorf("delete category: %v", err)
	}
	http.Redirect(w, r, "/categories", http.StatusSeeOther)
}

// ---------- reports ----------

func (h *Handler) Reports(w http.ResponseWriter, r *http.Request) {
	_, uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	q := r.URL.Query()
	start := parseDate(q.Get("start_date"))
	end := parseDate(q.Get("end_date"))

	income, expense, err := h.store.RangeTotals(ctx, uid, start, end)
	if err != nil {
		logs.Logger.Errorf("report totals: %v", err)
	}
	byCat, err := h.store.SpendByCategory(ctx, uid, start, end)
	if err != nil {
		logs.Logger.Errorf("report by category: %v", err)
	}
	h.render.Render(w, r, "reports.tmpl", map[string]any{
		"Title":      "Reports",
		"StartDate":  q.Get("start_date"),
		"EndDate":    q.Get("end_date"),
		"Income":     income,
		"Expense":    expense,
		"Net":        income - expense,
		"ByCategory": byCat,
	})
}
