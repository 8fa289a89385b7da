package presence

import "context"

// NoSessions is the locator for processes without a connection registry,
// such as the standalone flush worker. Every user flushes without a live
// durable session row.
var NoSessions SessionLocator = noSessions{}

type noSessions struct{}

func (noSessions) SessionID(userID uint) uint { return 0 }

// FlushService exposes the flush cycle to its two callers: the periodic
// scheduler job (all users) and the manual trigger endpoint (one user).
type FlushService struct {
	tracker *Tracker
	locator SessionLocator
}

func NewFlushService(tracker *Tracker, locator SessionLocator) *FlushService {
	return &FlushService{tracker: tracker, locator: locator}
}

// FlushAllUsers runs one flush cycle over every registered user.
func (s *FlushService) FlushAllUsers(ctx context.Context) error {
	return s.tracker.FlushAll(ctx, s.locator)
}

// FlushUser flushes a single user's ephemeral state on demand.
func (s *FlushService) FlushUser(ctx context.Context, userID uint) error {
	return s.tracker.Flush(ctx, userID, s.locator.SessionID(userID))
}
