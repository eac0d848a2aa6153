package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"moneta/internal/logs"
	"moneta/internal/models"
)

type LedgerStore struct{ db *gorm.DB }

func NewLedgerStore(db *gorm.DB) *LedgerStore { return &LedgerStore{db: db} }

// TxFilter narrows the personal transaction listing.
type TxFilter struct {
	Start    *time.Time
	End      *time.Time
	Category string // empty or "All" = any
	BankID   string // "", "All" = any; "Cash" = no bank; else bank uuid
	Limit    int
}

func (s *LedgerStore) Transactions(ctx context.Context, userID uuid.UUID, f TxFilter) ([]models.Transaction, error) {
	q := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("date desc").Order("created_at desc")
	if f.Start != nil {
		q = q.Where("date >= ?", *f.Start)
	}
	if f.End != nil {
		q = q.Where("date <= ?", *f.End)
	}
	if f.Category != "" && f.Category != "All" {
		q = q.Where("category = ?", f.Category)
	}
	switch f.BankID {
	case "", "All":
	case "Cash":
		q = q.Where("bank_account_id IS NULL")
	default:
		q = q.Where("bank_account_id = ?", f.BankID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []models.Transaction
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("transactions: %w", err)
	}
	return out, nil
}

func (s *LedgerStore) TransactionByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("transaction by id: %w", err)
	}
	return &tx, nil
}

func (s *LedgerStore) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (s *LedgerStore) UpdateTransaction(ctx context.Context, id, userID uuid.UUID, fields map[string]any) error {
	err := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND user_id = ?", id, userID).Updates(fields).Error
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return nil
}

func (s *LedgerStore) DeleteTransaction(ctx context.Context, id, userID uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).Delete(&models.Transaction{}).Error
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

// Totals folds all transactions into income and expense sums.
func (s *LedgerStore) Totals(ctx context.Context, userID uuid.UUID) (income, expense float64, err error) {
	rows := []struct {
		Type  string
		Total float64
	}{}
	err = s.db.WithContext(ctx).Model(&models.Transaction{}).
		Select("type, COALESCE(SUM(amount),0) as total").
		Where("user_id = ?", userID).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, fmt.Errorf("totals: %w", err)
	}
	for _, r := range rows {
		switch r.Type {
		case "income":
			income = r.Total
		case "expense":
			expense = r.Total
		}
	}
	return income, expense, nil
}

// CategoryTotal is one row of the spend-by-category report.
type CategoryTotal struct {
	Category string
	Total    float64
}

func (s *LedgerStore) SpendByCategory(ctx context.Context, userID uuid.UUID, start, end *time.Time) ([]CategoryTotal, error) {
	q := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Select("category, COALESCE(SUM(amount),0) as total").
		Where("user_id = ? AND type = ?", userID, "expense")
	if start != nil {
		q = q.Where("date >= ?", *start)
	}
	if end != nil {
		q = q.Where("date <= ?", *end)
	}
	var out []CategoryTotal
	if err := q.Group("category").Order("total desc").Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("spend by category: %w", err)
	}
	return out, nil
}

// RangeTotals sums income and expense inside a date range.
func (s *LedgerStore) RangeTotals(ctx context.Context, userID uuid.UUID, start, end *time.Time) (income, expense float64, err error) {
	rows := []struct {
		Type  string
		Total float64
	}{}
	q := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Select("type, COALESCE(SUM(amount),0) as total").
		Where("user_id = ?", userID)
	if start != nil {
		q = q.Where("date >= ?", *start)
	}
	if end != nil {
		q = q.Where("date <= ?", *end)
	}
	if err = q.Group("type").Scan(&rows).Error; err != nil {
		return 0, 0, fmt.Errorf("range totals: %w", err)
	}
	for _, r := range rows {
		switch r.Type {
		case "income":
			income = r.Total
		case "expense":
			expense = r.Total
		}
	}
	return income, expense, nil
}

// ---- banks ----

func (s *LedgerStore) Banks(ctx context.Context, userID uuid.UUID) ([]models.BankAccount, error) {
	var out []models.BankAccount
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at asc").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("banks: %w", err)
	}
	return out, nil
}

func (s *LedgerStore) CreateBank(ctx context.Context, b *models.BankAccount) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return fmt.Errorf("create bank: %w", err)
	}
	return nil
}

func (s *LedgerStore) UpdateBank(ctx context.Context, id, userID uuid.UUID, fields map[string]any) error {
	err := s.db.WithContext(ctx).Model(&models.BankAccount{}).
		Where("id = ? AND user_id = ?", id, userID).Updates(fields).Error
	if err != nil {
		return fmt.Errorf("update bank: %w", err)
	}
	return nil
}

func (s *LedgerStore) DeleteBank(ctx context.Context, id, userID uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).Delete(&models.BankAccount{}).Error
	if err != nil {
		return fmt.Errorf("delete bank: %w", err)
	}
	return nil
}

// ---- debts ----

func (s *LedgerStore) ActiveDebts(ctx context.Context, userID uuid.UUID) ([]models.Debt, error) {
	var out []models.Debt
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, "active").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("debts: %w", err)
	}
	return out, nil
}

func (s *LedgerStore) CreateDebt(ctx context.Context, d *models.Debt) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = "active"
	}
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		return fmt.Errorf("create debt: %w", err)
	}
	return nil
}

func (s *LedgerStore) DebtByID(ctx context.Context, id, userID uuid.UUID) (*models.Debt, error) {
	var d models.Debt
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("debt by id: %w", err)
	}
	return &d, nil
}

func (s *LedgerStore) SettleDebt(ctx context.Context, id, userID uuid.UUID) error {
	err := s.db.WithContext(ctx).Model(&models.Debt{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("status", "settled").Error
	if err != nil {
		return fmt.Errorf("settle debt: %w", err)
	}
	return nil
}

// ---- categories ----

func (s *LedgerStore) CustomCategories(ctx context.Context, userID uuid.UUID) ([]models.UserCategory, error) {
	var out []models.UserCategory
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("name asc").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("categories: %w", err)
	}
	return out, nil
}

func (s *LedgerStore) CreateCategory(ctx context.Context, userID uuid.UUID, name string) error {
	c := models.UserCategory{ID: uuid.New(), UserID: userID, Name: name, CreatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

func (s *LedgerStore) DeleteCategory(ctx context.Context, id, userID uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).Delete(&models.UserCategory{}).Error
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

// ---- recurring ----

func (s *LedgerStore) CreateRecurringRule(ctx context.Context, r *models.RecurringRule) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("create recurring rule: %w", err)
	}
	return nil
}

func (s *LedgerStore) DeleteRecurringRule(ctx context.Context, id, userID uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).Delete(&models.RecurringRule{}).Error
	if err != nil {
		return fmt.Errorf("delete recurring rule: %w", err)
	}
	return nil
}

// MaterializeDue inserts a ledger expense for every due recurring rule and
// advances the rule 30 days. Returns how many rows were added. Errors on a
// single rule are logged and skipped so one bad rule cannot wedge the rest.
func (s *LedgerStore) MaterializeDue(ctx context.Context, userID uuid.UUID, asOf time.Time) (int, error) {
	var due []models.RecurringRule
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND next_due_date <= ?", userID, asOf).Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("due recurring rules: %w", err)
	}

	count := 0
	for _, rule := range due {
		desc := "(Auto-Recurring)"
		if rule.Description != "" {
			desc = rule.Description + " (Auto-Recurring)"
		}
		ruleID := rule.ID
		tx := models.Transaction{
			ID:              uuid.New(),
			UserID:          userID,
			Date:            rule.NextDueDate,
			Category:        rule.Category,
			Amount:          rule.Amount,
			Description:     desc,
			Type:            "expense",
			RecurringRuleID: &ruleID,
			CreatedAt:       time.Now().UTC(),
		}
		if err := s.db.WithContext(ctx).Create(&tx).Error; err != nil {
			logs.Logger.Errorf("recurring materialize failed for rule %s: %v", rule.ID, err)
			continue
		}
		next := rule.NextDueDate.AddDate(0, 0, 30)
		if err := s.db.WithContext(ctx).Model(&models.RecurringRule{}).
			Where("id = ?", rule.ID).Update("next_due_date", next).Error; err != nil {
			logs.Logger.Errorf("recurring advance failed for rule %s: %v", rule.ID, err)
			continue
		}
		count++
	}
	return count, nil
}
