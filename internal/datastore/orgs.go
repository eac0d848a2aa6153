package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"moneta/internal/models"
)

// Tenant is the membership view handed to the resolver and the PIN gate.
type Tenant struct {
	ID   uuid.UUID
	Name string
	Role string
}

type OrgStore struct{ db *gorm.DB }

func NewOrgStore(db *gorm.DB) *OrgStore { return &OrgStore{db: db} }

// TenantsForUser lists every organization the user is a member of.
func (s *OrgStore) TenantsForUser(ctx context.Context, userID uuid.UUID) ([]Tenant, error) {
	var out []Tenant
	err := s.db.WithContext(ctx).
		Table("memberships").
		Select("organizations.id as id, organizations.name as name, memberships.role as role").
		Joins("JOIN organizations ON organizations.id = memberships.organization_id").
		Where("memberships.user_id = ?", userID).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("tenants for user: %w", err)
	}
	return out, nil
}

// TenantByName returns the user's tenant with exactly this name, or ErrNotFound.
func (s *OrgStore) TenantByName(ctx context.Context, userID uuid.UUID, name string) (*Tenant, error) {
	var t Tenant
	err := s.db.WithContext(ctx).
		Table("memberships").
		Select("organizations.id as id, organizations.name as name, memberships.role as role").
		Joins("JOIN organizations ON organizations.id = memberships.organization_id").
		Where("memberships.user_id = ? AND organizations.name = ?", userID, name).
		Limit(1).
		Scan(&t).Error
	if err != nil {
		return nil, fmt.Errorf("tenant by name: %w", err)
	}
	if t.ID == uuid.Nil {
		return nil, ErrNotFound
	}
	return &t, nil
}

// CreateWithOwner provisions a new organization and enrolls the user as owner
// in one transaction. The membership insert is conflict-tolerant so a racing
// sibling that already enrolled the user does not fail the provisioning.
func (s *OrgStore) CreateWithOwner(ctx context.Context, name string, userID uuid.UUID) (uuid.UUID, error) {
	org := models.Organization{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&org).Error; err != nil {
			return err
		}
		m := models.Membership{
			OrganizationID: org.ID,
			UserID:         userID,
			Role:           "owner",
			CreatedAt:      time.Now().UTC(),
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "organization_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).Create(&m).Error
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("provision organization: %w", err)
	}
	return org.ID, nil
}

func (s *OrgStore) Name(ctx context.Context, orgID uuid.UUID) (string, error) {
	var org models.Organization
	err := s.db.WithContext(ctx).Where("id = ?", orgID).First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("organization name: %w", err)
	}
	return org.Name, nil
}

// Membership fetches the join row, including the PIN hash.
func (s *OrgStore) Membership(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error) {
	var m models.Membership
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("membership: %w", err)
	}
	return &m, nil
}

// AddMember enrolls a user; duplicate enrollment is success, not error.
func (s *OrgStore) AddMember(ctx context.Context, orgID, userID uuid.UUID, role string) error {
	if role == "" {
		role = "member"
	}
	m := models.Membership{
		OrganizationID: orgID,
		UserID:         userID,
		Role:           role,
		CreatedAt:      time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// SetPINHash writes the argon2id hash for a (user, organization) membership.
func (s *OrgStore) SetPINHash(ctx context.Context, orgID, userID uuid.UUID, hash string) error {
	res := s.db.WithContext(ctx).Model(&models.Membership{}).
		Where("organization_id = ? AND user_id = ?", orgID, userID).
		Update("pin_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("set pin hash: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Members lists the organization's members joined with their profiles.
type MemberInfo struct {
	UserID   uuid.UUID
	FullName string
	Email    string
	Role     string
}

func (s *OrgStore) Members(ctx context.Context, orgID uuid.UUID) ([]MemberInfo, error) {
	var out []MemberInfo
	err := s.db.WithContext(ctx).
		Table("memberships").
		Select("profiles.id as user_id, profiles.full_name as full_name, profiles.email as email, memberships.role as role").
		Joins("JOIN profiles ON profiles.id = memberships.user_id").
		Where("memberships.organization_id = ?", orgID).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("members: %w", err)
	}
	return out, nil
}
