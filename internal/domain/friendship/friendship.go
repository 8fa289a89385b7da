package friendship

import (
	"context"
	"fmt"
	"time"

	"glimpse/internal/shared/biztime"
)

// Status is the lifecycle state of a friendship edge.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
)

// Friendship is a directed edge from UserID to FriendID. An accepted
// friendship is stored in both directions; CloseFriend is a per-direction
// attribute (A may mark B close without B reciprocating).
type Friendship struct {
	ID          uint
	UserID      uint
	FriendID    uint
	Status      Status
	CloseFriend bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewRequest creates a pending friendship request edge.
func NewRequest(userID, friendID uint) (*Friendship, error) {
	if userID == 0 || friendID == 0 {
		return nil, fmt.Errorf("user and friend ids are required")
	}
	if userID == friendID {
		return nil, fmt.Errorf("cannot befriend yourself")
	}
	now := biztime.NowUTC()
	return &Friendship{
		UserID:    userID,
		FriendID:  friendID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Accept marks the request accepted.
func (f *Friendship) Accept() error {
	if f.Status != StatusPending {
		return fmt.Errorf("friendship is not pending")
	}
	f.Status = StatusAccepted
	f.UpdatedAt = biztime.NowUTC()
	return nil
}

// SetCloseFriend marks or unmarks the friend as close. Only accepted
// friendships carry the flag.
func (f *Friendship) SetCloseFriend(close bool) error {
	if f.Status != StatusAccepted {
		return fmt.Errorf("friendship is not accepted")
	}
	f.CloseFriend = close
	f.UpdatedAt = biztime.NowUTC()
	return nil
}

// Friend is a friendship edge joined with the friend's public profile,
// as needed by fan-out subscription filtering.
type Friend struct {
	FriendID      uint
	Username      string
	DisplayName   string
	TabPrivacy    string
	OnlinePrivacy string
	CloseFriend   bool
}

// Repository is the durable store surface for friendship edges.
type Repository interface {
	Create(ctx context.Context, f *Friendship) error
	GetByID(ctx context.Context, id uint) (*Friendship, error)
	Get(ctx context.Context, userID, friendID uint) (*Friendship, error)
	Update(ctx context.Context, f *Friendship) error
	// ListAccepted returns userID's accepted friends joined with their
	// profiles.
	ListAccepted(ctx context.Context, userID uint) ([]Friend, error)
	ListPending(ctx context.Context, userID uint) ([]*Friendship, error)
}
