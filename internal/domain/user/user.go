package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"glimpse/internal/shared/biztime"
)

// TabPrivacy controls who may see a user's live tab activity.
type TabPrivacy string

const (
	TabPrivacyEveryone         TabPrivacy = "everyone"
	TabPrivacyFriendsOnly      TabPrivacy = "friends_only"
	TabPrivacyCloseFriendsOnly TabPrivacy = "close_friends_only"
	TabPrivacyPrivate          TabPrivacy = "private"
)

// OnlinePrivacy controls whether online/offline transitions are broadcast.
type OnlinePrivacy string

const (
	OnlinePrivacyPublic  OnlinePrivacy = "public"
	OnlinePrivacyPrivate OnlinePrivacy = "private"
)

// User is the account aggregate. TotalOnlineSeconds is fed exclusively from
// committed presence aggregates and never decremented.
type User struct {
	ID                 uint
	Username           string
	Email              string
	DisplayName        string
	PasswordHash       string
	TabPrivacy         TabPrivacy
	OnlinePrivacy      OnlinePrivacy
	TotalOnlineSeconds int64
	LastOnlineAt       *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PasswordHasher abstracts password hashing for the user aggregate.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) error
}

// New creates a user with defaults applied and basic invariants checked.
func New(username, email, displayName, passwordHash string) (*User, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if passwordHash == "" {
		return nil, fmt.Errorf("password hash is required")
	}
	if displayName == "" {
		displayName = username
	}

	now := biztime.NowUTC()
	return &User{
		Username:      username,
		Email:         email,
		DisplayName:   displayName,
		PasswordHash:  passwordHash,
		TabPrivacy:    TabPrivacyFriendsOnly,
		OnlinePrivacy: OnlinePrivacyPublic,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// UpdatePrivacy validates and applies new privacy settings.
func (u *User) UpdatePrivacy(tab TabPrivacy, online OnlinePrivacy) error {
	switch tab {
	case TabPrivacyEveryone, TabPrivacyFriendsOnly, TabPrivacyCloseFriendsOnly, TabPrivacyPrivate:
	default:
		return fmt.Errorf("invalid tab privacy %q", tab)
	}
	switch online {
	case OnlinePrivacyPublic, OnlinePrivacyPrivate:
	default:
		return fmt.Errorf("invalid online privacy %q", online)
	}
	u.TabPrivacy = tab
	u.OnlinePrivacy = online
	u.UpdatedAt = biztime.NowUTC()
	return nil
}

// Repository is the durable store surface for users.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uint) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	// ListIDs returns the ids of every registered account. The periodic flush
	// walks all users, not just the connected ones, so stale ephemeral state
	// from crashed connections still gets drained.
	ListIDs(ctx context.Context) ([]uint, error)
	// IncrementTotalOnlineSeconds atomically adds committed presence seconds.
	IncrementTotalOnlineSeconds(ctx context.Context, id uint, seconds int64) error
	// TouchLastOnlineAt records the most recent disconnect time.
	TouchLastOnlineAt(ctx context.Context, id uint, at time.Time) error
}
