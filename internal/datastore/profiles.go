// Package datastore is the gorm-backed Data Store collaborator: table-like
// CRUD behind small concrete stores, one per area. Row scoping is enforced by
// the stores filtering on the ids the caller proved ownership of.
package datastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"moneta/internal/models"
)

var ErrNotFound = errors.New("record not found")

type ProfileStore struct{ db *gorm.DB }

func NewProfileStore(db *gorm.DB) *ProfileStore { return &ProfileStore{db: db} }

func (s *ProfileStore) ByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile by id: %w", err)
	}
	return &p, nil
}

func (s *ProfileStore) ByUsername(ctx context.Context, username string) (*models.Profile, error) {
	var p models.Profile
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile by username: %w", err)
	}
	return &p, nil
}

func (s *ProfileStore) ByEmail(ctx context.Context, email string) (*models.Profile, error) {
	var p models.Profile
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile by email: %w", err)
	}
	return &p, nil
}

// Upsert tolerates a backing trigger having created the row already: conflict
// on the primary key is not an error.
func (s *ProfileStore) Upsert(ctx context.Context, p *models.Profile) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "email", "full_name"}),
	}).Create(p).Error
	if err != nil {
		return fmt.Errorf("profile upsert: %w", err)
	}
	return nil
}

func (s *ProfileStore) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	err := s.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).Updates(fields).Error
	if err != nil {
		return fmt.Errorf("profile update: %w", err)
	}
	return nil
}

// IsSuspended is the lifecycle guard's hot query; it returns the bare flag.
func (s *ProfileStore) IsSuspended(ctx context.Context, id uuid.UUID) (bool, error) {
	var p models.Profile
	err := s.db.WithContext(ctx).Select("is_suspended").Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// unknown profile is not a suspension; flows downstream decide
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("suspension check: %w", err)
	}
	return p.IsSuspended, nil
}

func (s *ProfileStore) SetSuspended(ctx context.Context, id uuid.UUID, suspended bool) error {
	return s.Update(ctx, id, map[string]any{"is_suspended": suspended})
}
