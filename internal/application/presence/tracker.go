// Package presence owns the lifecycle of a user's presence session and tab
// session: opening on connect, refreshing on heartbeat, rolling elapsed time
// into the running aggregates, and committing those aggregates to the
// durable store on flush.
package presence

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"glimpse/internal/domain/analytics"
	"glimpse/internal/domain/user"
	"glimpse/internal/infrastructure/cache"
	"glimpse/internal/infrastructure/pubsub"
	"glimpse/internal/shared/biztime"
	"glimpse/internal/shared/config"
	"glimpse/internal/shared/errors"
	"glimpse/internal/shared/logger"
)

// SessionLocator reports the live durable session id for a connected user.
// Returns 0 when the user has no connection on this instance.
type SessionLocator interface {
	SessionID(userID uint) uint
}

// Tracker converts the stream of connect/heartbeat/tab events into ephemeral
// state and drains that state into the durable store on flush. All drains for
// one user run under a cross-process lock so a disconnect flush and a
// scheduler tick can never double-commit the same aggregate.
type Tracker struct {
	users       user.Repository
	sessions    analytics.PresenceSessionRepository
	tabUsage    analytics.TabUsageRepository
	leaderboard analytics.LeaderboardRepository
	presence    cache.PresenceStore
	tabs        cache.TabStore
	lock        cache.FlushLock
	events      pubsub.EventPublisher
	cfg         *config.PresenceConfig
	logger      logger.Interface
}

// NewTracker creates a new presence Tracker.
func NewTracker(
	users user.Repository,
	sessions analytics.PresenceSessionRepository,
	tabUsage analytics.TabUsageRepository,
	leaderboard analytics.LeaderboardRepository,
	presence cache.PresenceStore,
	tabs cache.TabStore,
	lock cache.FlushLock,
	events pubsub.EventPublisher,
	cfg *config.PresenceConfig,
	log logger.Interface,
) *Tracker {
	return &Tracker{
		users:       users,
		sessions:    sessions,
		tabUsage:    tabUsage,
		leaderboard: leaderboard,
		presence:    presence,
		tabs:        tabs,
		lock:        lock,
		events:      events,
		cfg:         cfg,
		logger:      log.Named("presence.tracker"),
	}
}

// OpenSession starts a presence session for a newly authenticated
// connection: a durable row, the ephemeral session marker, and the online
// flag with the longer connect TTL. Returns the durable row id, which the
// connection must retain and pass back to Flush on disconnect.
func (t *Tracker) OpenSession(ctx context.Context, userID uint) (uint, error) {
	session, err := analytics.NewPresenceSession(userID)
	if err != nil {
		return 0, errors.NewValidationError(err.Error())
	}

	if err := t.sessions.Create(ctx, session); err != nil {
		t.logger.Errorw("failed to create presence session row", "user_id", userID, "error", err)
		return 0, err
	}

	if err := t.presence.ArmSessionMarker(ctx, userID, session.StartTime); err != nil {
		return 0, err
	}
	if err := t.presence.MarkOnline(ctx, userID, t.cfg.ConnectTTL()); err != nil {
		return 0, err
	}

	t.publishPresence(ctx, userID, pubsub.StatusOnline)

	t.logger.Infow("presence session opened", "user_id", userID, "session_id", session.ID)
	return session.ID, nil
}

// RecordHeartbeat refreshes the online flag with the short heartbeat TTL and
// republishes the online event. Heartbeats never move time into the
// aggregate; that happens only at flush and tab-switch boundaries.
func (t *Tracker) RecordHeartbeat(ctx context.Context, userID uint) error {
	if err := t.presence.MarkOnline(ctx, userID, t.cfg.HeartbeatTTL()); err != nil {
		return err
	}
	t.publishPresence(ctx, userID, pubsub.StatusOnline)
	return nil
}

// SwitchActiveTab records an active-tab change. The elapsed time of the
// previous domain is rolled into the tab aggregate only when the domain
// actually changed; the session itself is rewritten to {domain, now}
// unconditionally, so heartbeating the same tab is last write wins.
func (t *Tracker) SwitchActiveTab(ctx context.Context, userID uint, tab cache.TabInfo) error {
	domain := tabDomain(tab)
	if domain == "" {
		t.logger.Warnw("active tab without usable domain", "user_id", userID, "url", tab.URL)
		return errors.NewValidationError("tab url is required")
	}

	now := biztime.NowUTC()

	current, err := t.tabs.GetSession(ctx, userID)
	if err != nil {
		return err
	}

	if current != nil && current.Domain != domain {
		elapsed := int64(now.Sub(current.StartTime).Seconds())
		if elapsed > 0 {
			if err := t.tabs.IncrementAggregate(ctx, userID, biztime.DayKey(now), current.Domain, elapsed); err != nil {
				return err
			}
		}
	}
	if err := t.tabs.SetSession(ctx, userID, domain, now); err != nil {
		return err
	}

	if err := t.tabs.SetActiveTab(ctx, userID, tab); err != nil {
		return err
	}

	if err := t.events.PublishActiveTab(ctx, userID, tab); err != nil {
		t.logger.Warnw("failed to publish active tab event", "user_id", userID, "error", err)
	}
	return nil
}

// UpdateAllTabs stores the full tab-list snapshot and fans it out.
func (t *Tracker) UpdateAllTabs(ctx context.Context, userID uint, tabs []cache.TabInfo) error {
	if err := t.tabs.SetLatestTabs(ctx, userID, tabs); err != nil {
		return err
	}
	if err := t.events.PublishAllTabs(ctx, userID, tabs); err != nil {
		t.logger.Warnw("failed to publish all tabs event", "user_id", userID, "error", err)
	}
	return nil
}

// Disconnect tears down a connection's presence: offline flag, offline
// event, last-online timestamp, then the normal flush path with the
// connection's own durable session id.
func (t *Tracker) Disconnect(ctx context.Context, userID uint, sessionID uint) error {
	if err := t.presence.MarkOffline(ctx, userID); err != nil {
		t.logger.Warnw("failed to clear presence flag on disconnect", "user_id", userID, "error", err)
	}
	t.publishPresence(ctx, userID, pubsub.StatusOffline)

	if err := t.users.TouchLastOnlineAt(ctx, userID, biztime.NowUTC()); err != nil {
		t.logger.Warnw("failed to record last online time", "user_id", userID, "error", err)
	}

	return t.Flush(ctx, userID, sessionID)
}

// Flush is the single idempotent commit operation, shared by the disconnect
// path, the periodic scheduler and the on-demand endpoint. sessionID is the
// durable row to close, 0 when the caller has no live connection.
//
// A flush already running for the same user elsewhere makes this call a
// no-op; whatever it would have drained is picked up by the next cycle.
func (t *Tracker) Flush(ctx context.Context, userID uint, sessionID uint) error {
	token, acquired, err := t.lock.TryAcquire(ctx, userID)
	if err != nil {
		return err
	}
	if !acquired {
		t.logger.Debugw("flush already in progress, skipping", "user_id", userID)
		return nil
	}
	defer func() {
		if err := t.lock.Release(ctx, userID, token); err != nil {
			t.logger.Warnw("failed to release flush lock", "user_id", userID, "error", err)
		}
	}()

	now := biztime.NowUTC()
	day := biztime.DayKey(now)
	month := biztime.MonthKey(now)

	if err := t.flushPresence(ctx, userID, sessionID, now, day, month); err != nil {
		return err
	}
	return t.flushTabs(ctx, userID, now, day)
}

// flushPresence rolls the presence marker into the aggregate, closes the
// durable session row, and drains the aggregate into the durable counters.
func (t *Tracker) flushPresence(ctx context.Context, userID uint, sessionID uint, now time.Time, day, month string) error {
	maxValid := t.cfg.MaxValidSessionSeconds()

	start, ok, err := t.presence.GetSessionMarker(ctx, userID)
	if err != nil {
		return err
	}
	if ok {
		elapsed := int64(now.Sub(start).Seconds())
		if elapsed > 0 && elapsed <= maxValid {
			// The marker is cleared only after the increment lands; a
			// failure here leaves it armed so the interval is retried on
			// the next cycle. The flush lock serializes the read-clear pair.
			if err := t.presence.IncrementAggregate(ctx, userID, day, elapsed); err != nil {
				return err
			}
		} else {
			// Clock skew or a marker that outlived its flush window.
			t.logger.Warnw("skipped invalid presence session",
				"user_id", userID,
				"elapsed", elapsed,
				"max_valid", maxValid,
			)
		}
		if err := t.presence.ClearSessionMarker(ctx, userID); err != nil {
			return err
		}
	}

	if sessionID != 0 {
		if err := t.closeSessionRow(ctx, userID, sessionID, now, maxValid); err != nil {
			return err
		}
	}

	seconds, err := t.presence.GetAggregate(ctx, userID, day)
	if err != nil {
		return err
	}
	if seconds > 0 {
		// Commit before clearing: a durable-store failure leaves the
		// aggregate in place for the next cycle instead of losing it.
		if err := t.users.IncrementTotalOnlineSeconds(ctx, userID, seconds); err != nil {
			t.logger.Errorw("failed to commit presence seconds", "user_id", userID, "seconds", seconds, "error", err)
			return err
		}
		if err := t.leaderboard.IncrementSeconds(ctx, userID, month, seconds); err != nil {
			t.logger.Errorw("failed to commit leaderboard seconds", "user_id", userID, "month", month, "error", err)
			return err
		}
		t.logger.Infow("presence seconds committed", "user_id", userID, "day", day, "seconds", seconds)
	}
	if err := t.presence.ClearAggregate(ctx, userID, day); err != nil {
		return err
	}

	online, err := t.presence.IsOnline(ctx, userID)
	if err != nil {
		return err
	}
	if online {
		// Still connected: re-arm so the next interval is measured from now.
		if err := t.presence.ArmSessionMarker(ctx, userID, now); err != nil {
			return err
		}
	}
	return nil
}

// closeSessionRow finalizes the durable presence session. The validity gate
// applies to the delta since the row was last touched, so a row already
// closed by an earlier periodic flush keeps extending while the connection
// lives; the stored duration is always the total from the row's start.
func (t *Tracker) closeSessionRow(ctx context.Context, userID uint, sessionID uint, now time.Time, maxValid int64) error {
	session, err := t.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.IsNotFoundError(err) {
			t.logger.Warnw("presence session row not found", "user_id", userID, "session_id", sessionID)
			return nil
		}
		return err
	}
	if session.UserID != userID {
		t.logger.Warnw("presence session row belongs to another user",
			"user_id", userID,
			"session_id", sessionID,
			"owner_id", session.UserID,
		)
		return nil
	}

	var delta int64
	if session.EndTime != nil {
		delta = int64(now.Sub(*session.EndTime).Seconds())
	} else {
		delta = int64(now.Sub(session.StartTime).Seconds())
	}

	if delta <= 0 || delta > maxValid {
		// Left as an anomaly rather than corrupted with a bogus duration.
		t.logger.Warnw("skipped invalid presence session row",
			"user_id", userID,
			"session_id", sessionID,
			"delta", delta,
			"max_valid", maxValid,
		)
		return nil
	}

	session.Close(now)
	if err := t.sessions.Update(ctx, session); err != nil {
		t.logger.Errorw("failed to close presence session row", "user_id", userID, "session_id", sessionID, "error", err)
		return err
	}
	t.logger.Debugw("presence session row closed",
		"user_id", userID,
		"session_id", sessionID,
		"duration", *session.Duration,
	)
	return nil
}

// flushTabs rolls the live tab session into the aggregate, drains the
// aggregate into durable per-day/domain rows, and re-arms or tears down the
// tab state depending on whether the user is still online.
func (t *Tracker) flushTabs(ctx context.Context, userID uint, now time.Time, day string) error {
	maxValid := t.cfg.MaxValidSessionSeconds()

	session, err := t.tabs.GetSession(ctx, userID)
	if err != nil {
		return err
	}
	if session != nil {
		elapsed := int64(now.Sub(session.StartTime).Seconds())
		if elapsed > 0 && elapsed <= maxValid {
			if err := t.tabs.IncrementAggregate(ctx, userID, day, session.Domain, elapsed); err != nil {
				return err
			}
		} else {
			t.logger.Warnw("skipped invalid tab session",
				"user_id", userID,
				"domain", session.Domain,
				"elapsed", elapsed,
				"max_valid", maxValid,
			)
		}
	}

	aggregates, err := t.tabs.GetAggregate(ctx, userID, day)
	if err != nil {
		return err
	}
	if len(aggregates) > 0 {
		date := biztime.StartOfDayUTC(now)
		for domain, seconds := range aggregates {
			if err := t.tabUsage.IncrementUsage(ctx, userID, date, domain, seconds); err != nil {
				t.logger.Errorw("failed to commit tab usage",
					"user_id", userID,
					"day", day,
					"domain", domain,
					"seconds", seconds,
					"error", err,
				)
				return err
			}
		}
		t.logger.Infow("tab usage committed", "user_id", userID, "day", day, "domains_count", len(aggregates))
	}

	if err := t.tabs.ClearAggregate(ctx, userID, day); err != nil {
		return err
	}
	if err := t.tabs.ClearSession(ctx, userID); err != nil {
		return err
	}

	activeTab, err := t.tabs.GetActiveTab(ctx, userID)
	if err != nil {
		return err
	}
	if activeTab == nil {
		return nil
	}

	online, err := t.presence.IsOnline(ctx, userID)
	if err != nil {
		return err
	}
	if online {
		// Tab tracking is continuous: keep measuring the active domain from
		// now rather than ending it at every periodic flush.
		if domain := tabDomain(*activeTab); domain != "" {
			if err := t.tabs.SetSession(ctx, userID, domain, now); err != nil {
				return err
			}
		}
		return nil
	}

	// Offline with leftover snapshots, typically after a crashed connection.
	if err := t.tabs.ClearActiveTab(ctx, userID); err != nil {
		return err
	}
	return t.tabs.ClearLatestTabs(ctx, userID)
}

// FlushAll drains every registered account, not just connected ones: stale
// ephemeral state from a crashed connection still needs committing. One
// user's failure never aborts the rest.
func (t *Tracker) FlushAll(ctx context.Context, locator SessionLocator) error {
	userIDs, err := t.users.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users for flush: %w", err)
	}

	var failures int
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var sessionID uint
		if locator != nil {
			sessionID = locator.SessionID(userID)
		}

		if err := t.Flush(ctx, userID, sessionID); err != nil {
			failures++
			t.logger.Errorw("flush failed for user", "user_id", userID, "error", err)
		}
	}

	t.logger.Infow("flushed analytics for all users",
		"users_count", len(userIDs),
		"failures", failures,
	)
	return nil
}

func (t *Tracker) publishPresence(ctx context.Context, userID uint, status pubsub.PresenceStatus) {
	if err := t.events.PublishPresence(ctx, userID, status); err != nil {
		t.logger.Warnw("failed to publish presence event", "user_id", userID, "status", status, "error", err)
	}
}

// tabDomain prefers the client-reported domain and falls back to the URL
// host. Returns "" when neither yields one.
func tabDomain(tab cache.TabInfo) string {
	if tab.Domain != "" {
		return tab.Domain
	}
	u, err := url.Parse(tab.URL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
