package repository

import (
	"context"
	"errors"
	"time"

	"github.com/aman-churiwal/leetquery/internal/models"
	"github.com/aman-churiwal/leetquery/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RoleRepository struct {
	db *storage.Postgres
}

func NewRoleRepository(db *storage.Postgres) *RoleRepository {
	return &RoleRepository{db: db}
}

// FindRole returns "" when the subject has no grant
func (r *RoleRepository) FindRole(ctx context.Context, subject string) (string, error) {
	var grant models.UserRole
	err := r.db.DB.WithContext(ctx).
		Select("role").
		Where("user_id = ?", subject).
		Take(&grant).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	return grant.Role, nil
}

// Upserts the grant for subject
func (r *RoleRepository) SetRole(ctx context.Context, subject, role string) error {
	grant := models.UserRole{
		UserID:    subject,
		Role:      role,
		UpdatedAt: time.Now().UTC(),
	}

	return r.db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role", "updated_at"}),
		}).
		Create(&grant).Error
}
