package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"glimpse/internal/domain/user"
	"glimpse/internal/infrastructure/persistence/models"
	apperrors "glimpse/internal/shared/errors"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.Repository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	model := userToModel(u)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	u.ID = model.ID
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uint) (*user.User, error) {
	var model models.UserModel
	err := r.db.WithContext(ctx).First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("user not found")
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return userToDomain(&model), nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*user.User, error) {
	var model models.UserModel
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("user not found")
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return userToDomain(&model), nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var model models.UserModel
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("user not found")
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return userToDomain(&model), nil
}

func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	result := r.db.WithContext(ctx).Save(userToModel(u))
	if result.Error != nil {
		return fmt.Errorf("failed to update user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("user not found")
	}
	return nil
}

func (r *UserRepository) ListIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.UserModel{}).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	return ids, nil
}

func (r *UserRepository) IncrementTotalOnlineSeconds(ctx context.Context, id uint, seconds int64) error {
	result := r.db.WithContext(ctx).Model(&models.UserModel{}).
		Where("id = ?", id).
		UpdateColumn("total_online_seconds", gorm.Expr("total_online_seconds + ?", seconds))
	if result.Error != nil {
		return fmt.Errorf("failed to increment total online seconds: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("user not found")
	}
	return nil
}

func (r *UserRepository) TouchLastOnlineAt(ctx context.Context, id uint, at time.Time) error {
	if err := r.db.WithContext(ctx).Model(&models.UserModel{}).
		Where("id = ?", id).
		UpdateColumn("last_online_at", at).Error; err != nil {
		return fmt.Errorf("failed to update last online at: %w", err)
	}
	return nil
}

func userToModel(u *user.User) *models.UserModel {
	return &models.UserModel{
		ID:                 u.ID,
		Username:           u.Username,
		Email:              u.Email,
		DisplayName:        u.DisplayName,
		PasswordHash:       u.PasswordHash,
		TabPrivacy:         string(u.TabPrivacy),
		OnlinePrivacy:      string(u.OnlinePrivacy),
		TotalOnlineSeconds: u.TotalOnlineSeconds,
		LastOnlineAt:       u.LastOnlineAt,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

func userToDomain(m *models.UserModel) *user.User {
	return &user.User{
		ID:                 m.ID,
		Username:           m.Username,
		Email:              m.Email,
		DisplayName:        m.DisplayName,
		PasswordHash:       m.PasswordHash,
		TabPrivacy:         user.TabPrivacy(m.TabPrivacy),
		OnlinePrivacy:      user.OnlinePrivacy(m.OnlinePrivacy),
		TotalOnlineSeconds: m.TotalOnlineSeconds,
		LastOnlineAt:       m.LastOnlineAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}
