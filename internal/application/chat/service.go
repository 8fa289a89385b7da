// Package chat implements direct-message conversations between friends.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	domainConversation "glimpse/internal/domain/conversation"
	domainFriendship "glimpse/internal/domain/friendship"
	apperrors "glimpse/internal/shared/errors"
	"glimpse/internal/shared/logger"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
	maxMessageLength    = 4000
)

// Service orchestrates conversations and messages. Message bodies are
// sanitized on write, so readers can trust stored content.
type Service struct {
	conversations domainConversation.Repository
	messages      domainConversation.MessageRepository
	friendships   domainFriendship.Repository
	sanitizer     *bluemonday.Policy
	logger        logger.Interface
}

func NewService(
	conversations domainConversation.Repository,
	messages domainConversation.MessageRepository,
	friendships domainFriendship.Repository,
	log logger.Interface,
) *Service {
	return &Service{
		conversations: conversations,
		messages:      messages,
		friendships:   friendships,
		sanitizer:     bluemonday.StrictPolicy(),
		logger:        log.Named("chat.service"),
	}
}

// Start opens (or returns the existing) conversation between userID and an
// accepted friend.
func (s *Service) Start(ctx context.Context, userID, friendID uint) (*domainConversation.Conversation, error) {
	edge, err := s.friendships.Get(ctx, userID, friendID)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return nil, apperrors.NewForbiddenError("can only message friends")
		}
		return nil, err
	}
	if edge.Status != domainFriendship.StatusAccepted {
		return nil, apperrors.NewForbiddenError("can only message friends")
	}

	existing, err := s.conversations.GetByPair(ctx, userID, friendID)
	if err == nil {
		return existing, nil
	}
	if !apperrors.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}

	conv, err := domainConversation.New(userID, friendID)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	s.logger.Infow("conversation started", "conversation_id", conv.ID, "user_a", conv.UserAID, "user_b", conv.UserBID)
	return conv, nil
}

// List returns userID's conversations.
func (s *Service) List(ctx context.Context, userID uint) ([]*domainConversation.Conversation, error) {
	return s.conversations.ListByUser(ctx, userID)
}

// Send sanitizes and stores a message from userID in the conversation.
func (s *Service) Send(ctx context.Context, userID, conversationID uint, body string) (*domainConversation.Message, error) {
	conv, err := s.authorized(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(body))
	if clean == "" {
		return nil, apperrors.NewValidationError("message body is empty after sanitization")
	}
	if len(clean) > maxMessageLength {
		return nil, apperrors.NewValidationError("message body is too long")
	}

	msg, err := domainConversation.NewMessage(conv.ID, userID, clean)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}
	return msg, nil
}

// History returns the most recent messages of a conversation.
func (s *Service) History(ctx context.Context, userID, conversationID uint, limit int) ([]*domainConversation.Message, error) {
	if _, err := s.authorized(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxMessageLimit {
		limit = defaultMessageLimit
	}
	return s.messages.ListByConversation(ctx, conversationID, limit)
}

func (s *Service) authorized(ctx context.Context, userID, conversationID uint) (*domainConversation.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Includes(userID) {
		return nil, apperrors.NewForbiddenError("not a participant of this conversation")
	}
	return conv, nil
}
