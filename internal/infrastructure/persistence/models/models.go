// Package models contains the GORM models backing the durable store.
package models

import (
	"time"

	"gorm.io/datatypes"
)

type UserModel struct {
	ID                 uint   `gorm:"primaryKey"`
	Username           string `gorm:"size:64;uniqueIndex;not null"`
	Email              string `gorm:"size:255;uniqueIndex;not null"`
	DisplayName        string `gorm:"size:128;not null"`
	PasswordHash       string `gorm:"size:255;not null"`
	TabPrivacy         string `gorm:"size:32;not null;default:friends_only"`
	OnlinePrivacy      string `gorm:"size:16;not null;default:public"`
	TotalOnlineSeconds int64  `gorm:"not null;default:0"`
	LastOnlineAt       *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (UserModel) TableName() string { return "users" }

type FriendshipModel struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      uint   `gorm:"not null;uniqueIndex:idx_friendships_pair"`
	FriendID    uint   `gorm:"not null;uniqueIndex:idx_friendships_pair"`
	Status      string `gorm:"size:16;not null;default:pending"`
	CloseFriend bool   `gorm:"not null;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (FriendshipModel) TableName() string { return "friendships" }

type PresenceSessionModel struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null;index"`
	StartTime time.Time `gorm:"not null;index"`
	EndTime   *time.Time
	Duration  *int64
}

func (PresenceSessionModel) TableName() string { return "presence_sessions" }

type TabUsageModel struct {
	ID      uint           `gorm:"primaryKey"`
	UserID  uint           `gorm:"not null;uniqueIndex:idx_tab_usages_user_date_domain"`
	Date    datatypes.Date `gorm:"not null;uniqueIndex:idx_tab_usages_user_date_domain"`
	Domain  string         `gorm:"size:255;not null;uniqueIndex:idx_tab_usages_user_date_domain"`
	Seconds int64          `gorm:"not null;default:0"`
}

func (TabUsageModel) TableName() string { return "tab_usages" }

type MonthlyLeaderboardModel struct {
	ID      uint   `gorm:"primaryKey"`
	UserID  uint   `gorm:"not null;uniqueIndex:idx_monthly_leaderboards_user_month"`
	Month   string `gorm:"size:7;not null;uniqueIndex:idx_monthly_leaderboards_user_month"`
	Seconds int64  `gorm:"not null;default:0"`
}

func (MonthlyLeaderboardModel) TableName() string { return "monthly_leaderboards" }

type PasswordResetModel struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"not null;index"`
	Code      string    `gorm:"size:16;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time
}

func (PasswordResetModel) TableName() string { return "password_resets" }

type ConversationModel struct {
	ID        uint `gorm:"primaryKey"`
	UserAID   uint `gorm:"not null;uniqueIndex:idx_conversations_pair"`
	UserBID   uint `gorm:"not null;uniqueIndex:idx_conversations_pair"`
	CreatedAt time.Time
}

func (ConversationModel) TableName() string { return "conversations" }

type MessageModel struct {
	ID             uint   `gorm:"primaryKey"`
	ConversationID uint   `gorm:"not null;index"`
	SenderID       uint   `gorm:"not null"`
	Body           string `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"index"`
}

func (MessageModel) TableName() string { return "messages" }

// All returns every model for auto-migration in tests and dev tooling.
func All() []any {
	return []any{
		&UserModel{},
		&FriendshipModel{},
		&PresenceSessionModel{},
		&TabUsageModel{},
		&MonthlyLeaderboardModel{},
		&PasswordResetModel{},
		&ConversationModel{},
		&MessageModel{},
	}
}
