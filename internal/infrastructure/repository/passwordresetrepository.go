package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"glimpse/internal/infrastructure/persistence/models"
	apperrors "glimpse/internal/shared/errors"
	"glimpse/internal/shared/biztime"
)

// PasswordResetRepository stores one-time password reset codes.
type PasswordResetRepository struct {
	db *gorm.DB
}

func NewPasswordResetRepository(db *gorm.DB) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

func (r *PasswordResetRepository) Create(ctx context.Context, userID uint, code string, expiresAt time.Time) error {
	row := models.PasswordResetModel{
		UserID:    userID,
		Code:      code,
		ExpiresAt: expiresAt,
		CreatedAt: biztime.NowUTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create password reset: %w", err)
	}
	return nil
}

// Consume verifies the code for the user and deletes it. A used or expired
// code is indistinguishable from a wrong one.
func (r *PasswordResetRepository) Consume(ctx context.Context, userID uint, code string) error {
	var row models.PasswordResetModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND code = ? AND expires_at > ?", userID, code, biztime.NowUTC()).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewUnauthorizedError("invalid or expired reset code")
		}
		return fmt.Errorf("failed to look up password reset: %w", err)
	}

	if err := r.db.WithContext(ctx).Delete(&models.PasswordResetModel{}, row.ID).Error; err != nil {
		return fmt.Errorf("failed to consume password reset: %w", err)
	}
	return nil
}
