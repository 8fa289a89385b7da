package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"glimpse/internal/domain/conversation"
	"glimpse/internal/infrastructure/persistence/models"
	apperrors "glimpse/internal/shared/errors"
)

type ConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) conversation.Repository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) Create(ctx context.Context, c *conversation.Conversation) error {
	model := &models.ConversationModel{
		UserAID:   c.UserAID,
		UserBID:   c.UserBID,
		CreatedAt: c.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	c.ID = model.ID
	return nil
}

func (r *ConversationRepository) GetByID(ctx context.Context, id uint) (*conversation.Conversation, error) {
	var model models.ConversationModel
	err := r.db.WithContext(ctx).First(&model, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("conversation not found")
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conversationToDomain(&model), nil
}

func (r *ConversationRepository) GetByPair(ctx context.Context, a, b uint) (*conversation.Conversation, error) {
	if a > b {
		a, b = b, a
	}
	var model models.ConversationModel
	err := r.db.WithContext(ctx).
		Where("user_a_id = ? AND user_b_id = ?", a, b).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("conversation not found")
		}
		return nil, fmt.Errorf("failed to get conversation by pair: %w", err)
	}
	return conversationToDomain(&model), nil
}

func (r *ConversationRepository) ListByUser(ctx context.Context, userID uint) ([]*conversation.Conversation, error) {
	var rows []models.ConversationModel
	err := r.db.WithContext(ctx).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	result := make([]*conversation.Conversation, len(rows))
	for i := range rows {
		result[i] = conversationToDomain(&rows[i])
	}
	return result, nil
}

func conversationToDomain(m *models.ConversationModel) *conversation.Conversation {
	return &conversation.Conversation{
		ID:        m.ID,
		UserAID:   m.UserAID,
		UserBID:   m.UserBID,
		CreatedAt: m.CreatedAt,
	}
}

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) conversation.MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, m *conversation.Message) error {
	model := &models.MessageModel{
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	m.ID = model.ID
	return nil
}

func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uint, limit int) ([]*conversation.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []models.MessageModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	result := make([]*conversation.Message, len(rows))
	for i := range rows {
		result[i] = &conversation.Message{
			ID:             rows[i].ID,
			ConversationID: rows[i].ConversationID,
			SenderID:       rows[i].SenderID,
			Body:           rows[i].Body,
			CreatedAt:      rows[i].CreatedAt,
		}
	}
	return result, nil
}
