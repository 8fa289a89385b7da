package conversation

import (
	"context"
	"fmt"
	"time"

	"glimpse/internal/shared/biztime"
)

// Conversation is a direct-message thread between two users. The pair is
// normalized so UserAID < UserBID, giving a single row per pair.
type Conversation struct {
	ID        uint
	UserAID   uint
	UserBID   uint
	CreatedAt time.Time
}

// New creates a conversation with the pair normalized.
func New(a, b uint) (*Conversation, error) {
	if a == 0 || b == 0 {
		return nil, fmt.Errorf("both participants are required")
	}
	if a == b {
		return nil, fmt.Errorf("cannot start a conversation with yourself")
	}
	if a > b {
		a, b = b, a
	}
	return &Conversation{UserAID: a, UserBID: b, CreatedAt: biztime.NowUTC()}, nil
}

// Includes reports whether userID participates in the conversation.
func (c *Conversation) Includes(userID uint) bool {
	return c.UserAID == userID || c.UserBID == userID
}

// Message is a single message inside a conversation. Body is stored
// sanitized.
type Message struct {
	ID             uint
	ConversationID uint
	SenderID       uint
	Body           string
	CreatedAt      time.Time
}

// NewMessage creates a message; the body must already be sanitized.
func NewMessage(conversationID, senderID uint, body string) (*Message, error) {
	if body == "" {
		return nil, fmt.Errorf("message body is required")
	}
	return &Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      biztime.NowUTC(),
	}, nil
}

// Repository is the durable store surface for conversations.
type Repository interface {
	Create(ctx context.Context, c *Conversation) error
	GetByID(ctx context.Context, id uint) (*Conversation, error)
	GetByPair(ctx context.Context, a, b uint) (*Conversation, error)
	ListByUser(ctx context.Context, userID uint) ([]*Conversation, error)
}

// MessageRepository is the durable store surface for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	ListByConversation(ctx context.Context, conversationID uint, limit int) ([]*Message, error)
}
