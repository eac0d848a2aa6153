package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile mirrors the identity provider's user and carries app-level flags.
// ID equals the user id issued by the credential store.
type Profile struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username    string    `gorm:"uniqueIndex;size:64"`
	Email       string    `gorm:"index;size:255"`
	FullName    string    `gorm:"size:255"`
	AvatarURL   string
	Currency    string `gorm:"size:8;default:'₹'"`
	Budget      float64
	IsAdmin     bool
	IsSuspended bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Organization is an isolated business entity (tenant).
type Organization struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"index;size:255"`
	CreatedAt time.Time
}

// Membership joins a user to an organization. PINHash, when set, is the
// argon2id hash of the member's business PIN for that organization.
type Membership struct {
	ID             uint      `gorm:"primaryKey"`
	OrganizationID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_member_org_user"`
	UserID         uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_member_org_user"`
	Role           string    `gorm:"size:16"` // owner|admin|member
	PINHash        string
	CreatedAt      time.Time
}

type BankAccount struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID `gorm:"type:uuid;index"`
	BankName       string    `gorm:"size:255"`
	AccountNumber  string    `gorm:"size:64"`
	IFSCCode       string    `gorm:"size:32"`
	OpeningBalance float64
	CreatedAt      time.Time
}

// Transaction is a personal ledger row, income or expense.
type Transaction struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID          uuid.UUID `gorm:"type:uuid;index"`
	Date            time.Time `gorm:"type:date;index"`
	Category        string    `gorm:"size:64"`
	Amount          float64
	Description     string
	Type            string     `gorm:"size:8;index"` // income|expense
	BankAccountID   *uuid.UUID `gorm:"type:uuid"`
	ReceiptURL      string
	RecurringRuleID *uuid.UUID `gorm:"type:uuid"`
	CreatedAt       time.Time
}

type RecurringRule struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID `gorm:"type:uuid;index"`
	Category    string    `gorm:"size:64"`
	Amount      float64
	Description string
	NextDueDate time.Time `gorm:"type:date"`
	CreatedAt   time.Time
}

type UserCategory struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;index"`
	Name      string    `gorm:"size:64"`
	CreatedAt time.Time
}

type Debt struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID          uuid.UUID `gorm:"type:uuid;index"`
	PersonName      string    `gorm:"size:255"`
	Amount          float64
	Type            string `gorm:"size:8"`                  // lend|borrow
	Status          string `gorm:"size:8;default:'active'"` // active|settled
	TransactionDate time.Time `gorm:"type:date"`
	DueDate         *time.Time `gorm:"type:date"`
	Description     string
	CreatedAt       time.Time
}

// Enterprise bookkeeping rows, scoped by organization.

type EntRevenue struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID `gorm:"type:uuid;index"`
	Date           time.Time `gorm:"type:date;index"`
	Amount         float64
	Method         string `gorm:"size:16"` // Cash|Bank
	Narrative      string
	TakenBy        string     `gorm:"size:255"`
	BankAccountID  *uuid.UUID `gorm:"type:uuid"`
	Status         string     `gorm:"size:16;default:'received'"` // received|pending
	CreatedAt      time.Time
}

type EntExpense struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID `gorm:"type:uuid;index"`
	Date           time.Time `gorm:"type:date;index"`
	Amount         float64
	Method         string `gorm:"size:16"`
	Category       string `gorm:"size:64"`
	Narrative      string
	TakenBy        string     `gorm:"size:255"`
	BankAccountID  *uuid.UUID `gorm:"type:uuid"`
	CreatedAt      time.Time
}

type EntInvestment struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID `gorm:"type:uuid;index"`
	Date           time.Time `gorm:"type:date"`
	Type           string    `gorm:"size:16;default:'investment'"` // investment|withdraw
	TakenBy        string    `gorm:"size:255"`
	Narrative      string
	Amount         float64
	CreatedAt      time.Time
}

type EntHoldingPayment struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID `gorm:"type:uuid;index"`
	UserID         uuid.UUID `gorm:"type:uuid"`
	Name           string    `gorm:"size:255"`
	Type           string    `gorm:"size:16"` // receivable|payable
	Amount         float64
	ExpectedDate   *time.Time `gorm:"type:date"`
	MobileNo       string     `gorm:"size:32"`
	Narrative      string
	Status         string `gorm:"size:16;default:'open'"` // open|settled
	CreatedAt      time.Time
}

// All returns every model for AutoMigrate.
func All() []any {
	return []any{
		&Profile{}, &Organization{}, &Membership{},
		&BankAccount{}, &Transaction{}, &RecurringRule{}, &UserCategory{}, &Debt{},
		&EntRevenue{}, &EntExpense{}, &EntInvestment{}, &EntHoldingPayment{},
	}
}
