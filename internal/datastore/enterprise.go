package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"moneta/internal/models"
)

// EntStore covers organization-scoped bookkeeping: revenues, expenses,
// investments and holding payments. Every query is keyed by the org id the
// gate resolved, never by anything the client sent.
type EntStore struct{ db *gorm.DB }

func NewEntStore(db *gorm.DB) *EntStore { return &EntStore{db: db} }

// DateRange bounds a listing; a nil edge is open.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

func rangeScope(r DateRange) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		if r.Start != nil {
			q = q.Where("date >= ?", *r.Start)
		}
		if r.End != nil {
			q = q.Where("date <= ?", *r.End)
		}
		return q
	}
}

// ---- revenues ----

func (s *EntStore) Revenues(ctx context.Context, orgID uuid.UUID, r DateRange) ([]models.EntRevenue, error) {
	var out []models.EntRevenue
	err := s.db.WithContext(ctx).Scopes(rangeScope(r)).
		Where("organization_id = ?", orgID).
		Order("date desc").Order("created_at desc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("revenues: %w", err)
	}
	return out, nil
}

func (s *EntStore) AddRevenue(ctx context.Context, rev *models.EntRevenue) error {
	if rev.ID == uuid.Nil {
		rev.ID = uuid.New()
	}
	if rev.Status == "" {
		rev.Status = "received"
	}
	if err := s.db.WithContext(ctx).Create(rev).Error; err != nil {
		return fmt.Errorf("add revenue: %w", err)
	}
	return nil
}

func (s *EntStore) DeleteRevenue(ctx context.Context, id, orgID uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, orgID).Delete(&models.EntRevenue{}).Error
	if err != nil {
		return fmt.Errorf("delete revenue: %w", err)
	}
	return nil
}

// MarkRevenueReceived flips a pending revenue once the money lands.
func (s *EntStore) MarkRevenueReceived(ctx context.Context, id, orgID uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.EntRevenue{}).
		Where("id = ? AND organization_id = ? AND status = ?", id, orgID, "pending").
		Update("status", "received")
	if res.Error != nil {
		return fmt.Errorf("mark revenue received: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- expenses ----

func (s *EntStore) Expenses(ctx context.Context, orgID uuid.UUID, r DateRange) ([]models.EntExpense, error) {
	var out []models.EntExpense
	err := s.db.WithContext(ctx).Scopes(rangeScope(r)).
		Where("organization_id = ?", orgID).
		Order("date desc").Order("created_at desc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("expenses: %w", err)
	}
	return out, nil
}

func (s *EntStore) AddExpense(ctx context.Context, exp *models.EntExpense) error {
	if exp.ID == uuid.Nil {
		exp.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(exp).Error; err != nil {
		return fmt.Errorf("add expense: %w", err)
	}
	return nil
}

func (s *EntStore) DeleteExpense(ctx context.Context, id, orgID uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, orgID).Delete(&models.EntExpense{}).Error
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}

// Totals returns org-wide received revenue and expense sums.
func (s *EntStore) Totals(ctx context.Context, orgID uuid.UUID) (revenue, expense float64, err error) {
	err = s.db.WithContext(ctx).Model(&models.EntRevenue{}).
		Where("organization_id = ? AND status = ?", orgID, "received").
		Select("COALESCE(SUM(amount),0)").Scan(&revenue).Error
	if err != nil {
		return 0, 0, fmt.Errorf("revenue total: %w", err)
	}
	err = s.db.WithContext(ctx).Model(&models.EntExpense{}).
		Where("organization_id = ?", orgID).
		Select("COALESCE(SUM(amount),0)").Scan(&expense).Error
	if err != nil {
		return 0, 0, fmt.Errorf("expense total: %w", err)
	}
	return revenue, expense, nil
}

// ---- investments ----

func (s *EntStore) Investments(ctx context.Context, orgID uuid.UUID) ([]models.EntInvestment, error) {
	var out []models.EntInvestment
	err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("date desc").Order("created_at desc").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("investments: %w", err)
	}
	return out, nil
}

func (s *EntStore) AddInvestment(ctx context.Context, inv *models.EntInvestment) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.Type == "" {
		inv.Type = "investment"
	}
	if err := s.db.WithContext(ctx).Create(inv).Error; err != nil {
		return fmt.Errorf("add investment: %w", err)
	}
	return nil
}

func (s *EntStore) DeleteInvestment(ctx context.Context, id, orgID uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, orgID).Delete(&models.EntInvestment{}).Error
	if err != nil {
		return fmt.Errorf("delete investment: %w", err)
	}
	return nil
}

// NetInvestment is invested minus withdrawn.
func (s *EntStore) NetInvestment(ctx context.Context, orgID uuid.UUID) (float64, error) {
	var net float64
	err := s.db.WithContext(ctx).Model(&models.EntInvestment{}).
		Where("organization_id = ?", orgID).
		Select("COALESCE(SUM(CASE WHEN type = 'withdraw' THEN -amount ELSE amount END),0)").
		Scan(&net).Error
	if err != nil {
		return 0, fmt.Errorf("net investment: %w", err)
	}
	return net, nil
}

// ---- holding payments ----

func (s *EntStore) HoldingPayments(ctx context.Context, orgID uuid.UUID, status string) ([]models.EntHoldingPayment, error) {
	q := s.db.WithContext(ctx).Where("organization_id = ?", orgID)
	if status != "" && status != "all" {
		q = q.Where("status = ?", status)
	}
	var out []models.EntHoldingPayment
	if err := q.Order("created_at desc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("holding payments: %w", err)
	}
	return out, nil
}

func (s *EntStore) AddHoldingPayment(ctx context.Context, hp *models.EntHoldingPayment) error {
	if hp.ID == uuid.Nil {
		hp.ID = uuid.New()
	}
	if hp.Status == "" {
		hp.Status = "open"
	}
	if err := s.db.WithContext(ctx).Create(hp).Error; err != nil {
		return fmt.Errorf("add holding payment: %w", err)
	}
	return nil
}

func (s *EntStore) HoldingPaymentByID(ctx context.Context, id, orgID uuid.UUID) (*models.EntHoldingPayment, error) {
	var hp models.EntHoldingPayment
	err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, orgID).First(&hp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("holding payment by id: %w", err)
	}
	return &hp, nil
}

// SettleHoldingPayment settles an open entry. A partial amount shrinks the
// outstanding balance and leaves it open; amount <= 0 or >= outstanding
// settles in full.
func (s *EntStore) SettleHoldingPayment(ctx context.Context, id, orgID uuid.UUID, amount float64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var hp models.EntHoldingPayment
		err := tx.Where("id = ? AND organization_id = ? AND status = ?", id, orgID, "open").
			First(&hp).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("settle holding payment: %w", err)
		}
		if amount > 0 && amount < hp.Amount {
			return tx.Model(&hp).Update("amount", hp.Amount-amount).Error
		}
		return tx.Model(&hp).Update("status", "settled").Error
	})
}

func (s *EntStore) DeleteHoldingPayment(ctx context.Context, id, orgID uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", id, orgID).Delete(&models.EntHoldingPayment{}).Error
	if err != nil {
		return fmt.Errorf("delete holding payment: %w", err)
	}
	return nil
}
