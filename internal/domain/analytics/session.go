// Package analytics holds the durable side of the presence and tab-usage
// pipeline: finalized presence session rows and per-day aggregate rows.
package analytics

import (
	"context"
	"fmt"
	"time"

	"glimpse/internal/shared/biztime"
)

// PresenceSession is one row per continuous connection lifetime. EndTime and
// Duration stay nil while the session is open. At most one open row per user
// is expected in the steady state; violations are logged, not corrected.
type PresenceSession struct {
	ID        uint
	UserID    uint
	StartTime time.Time
	EndTime   *time.Time
	Duration  *int64
}

// NewPresenceSession opens a session starting now.
func NewPresenceSession(userID uint) (*PresenceSession, error) {
	if userID == 0 {
		return nil, fmt.Errorf("user id is required")
	}
	return &PresenceSession{
		UserID:    userID,
		StartTime: biztime.NowUTC(),
	}, nil
}

// IsOpen reports whether the session has not been closed yet.
func (s *PresenceSession) IsOpen() bool {
	return s.EndTime == nil
}

// Close finalizes the row: end time now, duration measured from StartTime.
func (s *PresenceSession) Close(endTime time.Time) {
	total := int64(endTime.Sub(s.StartTime).Seconds())
	s.EndTime = &endTime
	s.Duration = &total
}

// TabUsage is the committed per-user/day/domain seconds row. Rows are only
// ever upserted with increment semantics, never overwritten wholesale.
type TabUsage struct {
	UserID  uint
	Date    time.Time
	Domain  string
	Seconds int64
}

// LeaderboardEntry is a user's committed seconds for one calendar month.
type LeaderboardEntry struct {
	UserID      uint
	Username    string
	DisplayName string
	Month       string
	Seconds     int64
}

// PresenceSessionRepository stores finalized and in-flight session rows.
type PresenceSessionRepository interface {
	Create(ctx context.Context, s *PresenceSession) error
	GetByID(ctx context.Context, id uint) (*PresenceSession, error)
	Update(ctx context.Context, s *PresenceSession) error
	// ListByUserBetween returns sessions whose start time falls in [from, to].
	ListByUserBetween(ctx context.Context, userID uint, from, to time.Time) ([]*PresenceSession, error)
}

// TabUsageRepository stores per-day/domain usage with increment upserts.
type TabUsageRepository interface {
	// IncrementUsage upserts (userID, date, domain) adding seconds.
	IncrementUsage(ctx context.Context, userID uint, date time.Time, domain string, seconds int64) error
	ListByUserBetween(ctx context.Context, userID uint, from, to time.Time) ([]TabUsage, error)
}

// LeaderboardRepository stores monthly presence totals.
type LeaderboardRepository interface {
	// IncrementSeconds upserts (userID, month) adding seconds.
	IncrementSeconds(ctx context.Context, userID uint, month string, seconds int64) error
	TopForMonth(ctx context.Context, month string, limit int) ([]LeaderboardEntry, error)
}
