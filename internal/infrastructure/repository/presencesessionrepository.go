package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"glimpse/internal/domain/analytics"
	"glimpse/internal/infrastructure/persistence/models"
	apperrors "glimpse/internal/shared/errors"
)

type PresenceSessionRepository struct {
	db *gorm.DB
}

func NewPresenceSessionRepository(db *gorm.DB) analytics.PresenceSessionRepository {
	return &PresenceSessionRepository{db: db}
}

func (r *PresenceSessionRepository) Create(ctx context.Context, s *analytics.PresenceSession) error {
	model := presenceSessionToModel(s)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create presence session: %w", err)
	}
	s.ID = model.ID
	return nil
}

func (r *PresenceSessionRepository) GetByID(ctx context.Context, id uint) (*analytics.PresenceSession, error) {
	var model models.PresenceSessionModel
	err := r.db.WithContext(ctx).First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("presence session not found")
		}
		return nil, fmt.Errorf("failed to get presence session: %w", err)
	}
	return presenceSessionToDomain(&model), nil
}

func (r *PresenceSessionRepository) Update(ctx context.Context, s *analytics.PresenceSession) error {
	result := r.db.WithContext(ctx).Save(presenceSessionToModel(s))
	if result.Error != nil {
		return fmt.Errorf("failed to update presence session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("presence session not found")
	}
	return nil
}

func (r *PresenceSessionRepository) ListByUserBetween(ctx context.Context, userID uint, from, to time.Time) ([]*analytics.PresenceSession, error) {
	var rows []models.PresenceSessionModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND start_time >= ? AND start_time <= ?", userID, from, to).
		Order("start_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list presence sessions: %w", err)
	}

	sessions := make([]*analytics.PresenceSession, len(rows))
	for i := range rows {
		sessions[i] = presenceSessionToDomain(&rows[i])
	}
	return sessions, nil
}

func presenceSessionToModel(s *analytics.PresenceSession) *models.PresenceSessionModel {
	return &models.PresenceSessionModel{
		ID:        s.ID,
		UserID:    s.UserID,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Duration:  s.Duration,
	}
}

func presenceSessionToDomain(m *models.PresenceSessionModel) *analytics.PresenceSession {
	return &analytics.PresenceSession{
		ID:        m.ID,
		UserID:    m.UserID,
		StartTime: m.StartTime,
		EndTime:   m.EndTime,
		Duration:  m.Duration,
	}
}
