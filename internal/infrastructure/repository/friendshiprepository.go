package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"glimpse/internal/domain/friendship"
	"glimpse/internal/infrastructure/persistence/models"
	apperrors "glimpse/internal/shared/errors"
)

type FriendshipRepository struct {
	db *gorm.DB
}

func NewFriendshipRepository(db *gorm.DB) friendship.Repository {
	return &FriendshipRepository{db: db}
}

func (r *FriendshipRepository) Create(ctx context.Context, f *friendship.Friendship) error {
	model := friendshipToModel(f)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create friendship: %w", err)
	}
	f.ID = model.ID
	return nil
}

func (r *FriendshipRepository) GetByID(ctx context.Context, id uint) (*friendship.Friendship, error) {
	var model models.FriendshipModel
	err := r.db.WithContext(ctx).First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("friendship not found")
		}
		return nil, fmt.Errorf("failed to get friendship: %w", err)
	}
	return friendshipToDomain(&model), nil
}

func (r *FriendshipRepository) Get(ctx context.Context, userID, friendID uint) (*friendship.Friendship, error) {
	var model models.FriendshipModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND friend_id = ?", userID, friendID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("friendship not found")
		}
		return nil, fmt.Errorf("failed to get friendship: %w", err)
	}
	return friendshipToDomain(&model), nil
}

func (r *FriendshipRepository) Update(ctx context.Context, f *friendship.Friendship) error {
	result := r.db.WithContext(ctx).Save(friendshipToModel(f))
	if result.Error != nil {
		return fmt.Errorf("failed to update friendship: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("friendship not found")
	}
	return nil
}

func (r *FriendshipRepository) ListAccepted(ctx context.Context, userID uint) ([]friendship.Friend, error) {
	var friends []friendship.Friend
	err := r.db.WithContext(ctx).
		Table("friendships").
		Select("friendships.friend_id, users.username, users.display_name, users.tab_privacy, users.online_privacy, friendships.close_friend").
		Joins("JOIN users ON users.id = friendships.friend_id").
		Where("friendships.user_id = ? AND friendships.status = ?", userID, string(friendship.StatusAccepted)).
		Scan(&friends).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	return friends, nil
}

func (r *FriendshipRepository) ListPending(ctx context.Context, userID uint) ([]*friendship.Friendship, error) {
	var rows []models.FriendshipModel
	err := r.db.WithContext(ctx).
		Where("friend_id = ? AND status = ?", userID, string(friendship.StatusPending)).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}

	result := make([]*friendship.Friendship, len(rows))
	for i := range rows {
		result[i] = friendshipToDomain(&rows[i])
	}
	return result, nil
}

func friendshipToModel(f *friendship.Friendship) *models.FriendshipModel {
	return &models.FriendshipModel{
		ID:          f.ID,
		UserID:      f.UserID,
		FriendID:    f.FriendID,
		Status:      string(f.Status),
		CloseFriend: f.CloseFriend,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

func friendshipToDomain(m *models.FriendshipModel) *friendship.Friendship {
	return &friendship.Friendship{
		ID:          m.ID,
		UserID:      m.UserID,
		FriendID:    m.FriendID,
		Status:      friendship.Status(m.Status),
		CloseFriend: m.CloseFriend,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
