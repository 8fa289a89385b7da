package presence

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"glimpse/internal/domain/analytics"
	"glimpse/internal/domain/user"
	"glimpse/internal/infrastructure/cache"
	"glimpse/internal/infrastructure/persistence/models"
	"glimpse/internal/infrastructure/pubsub"
	"glimpse/internal/infrastructure/repository"
	"glimpse/internal/shared/biztime"
	"glimpse/internal/shared/config"
	"glimpse/internal/shared/logger"
)

// recordingPublisher captures published events instead of hitting Redis.
type recordingPublisher struct {
	mu       sync.Mutex
	presence []pubsub.PresenceStatus
	active   []cache.TabInfo
	allTabs  [][]cache.TabInfo
}

func (p *recordingPublisher) PublishPresence(_ context.Context, _ uint, status pubsub.PresenceStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presence = append(p.presence, status)
	return nil
}

func (p *recordingPublisher) PublishActiveTab(_ context.Context, _ uint, tab cache.TabInfo) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = append(p.active, tab)
	return nil
}

func (p *recordingPublisher) PublishAllTabs(_ context.Context, _ uint, tabs []cache.TabInfo) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allTabs = append(p.allTabs, tabs)
	return nil
}

func (p *recordingPublisher) lastPresence() pubsub.PresenceStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.presence) == 0 {
		return ""
	}
	return p.presence[len(p.presence)-1]
}

type staticLocator map[uint]uint

func (l staticLocator) SessionID(userID uint) uint { return l[userID] }

type trackerFixture struct {
	tracker     *Tracker
	users       user.Repository
	sessions    analytics.PresenceSessionRepository
	tabUsage    analytics.TabUsageRepository
	leaderboard analytics.LeaderboardRepository
	presence    cache.PresenceStore
	tabs        cache.TabStore
	events      *recordingPublisher
	cfg         *config.PresenceConfig
	db          *gorm.DB
	client      *redis.Client
}

func setupTracker(t *testing.T) *trackerFixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	cfg := &config.PresenceConfig{
		FlushIntervalSeconds:     900,
		HeartbeatTTLSeconds:      15,
		HeartbeatExpectedSeconds: 10,
		HeartbeatGraceSeconds:    5,
		ConnectTTLSeconds:        60,
		GracePeriodSeconds:       300,
	}

	log := logger.NewNop()
	f := &trackerFixture{
		users:       repository.NewUserRepository(db),
		sessions:    repository.NewPresenceSessionRepository(db),
		tabUsage:    repository.NewTabUsageRepository(db),
		leaderboard: repository.NewLeaderboardRepository(db),
		presence:    cache.NewRedisPresenceStore(client, log),
		tabs:        cache.NewRedisTabStore(client, log),
		events:      &recordingPublisher{},
		cfg:         cfg,
		db:          db,
		client:      client,
	}
	f.tracker = NewTracker(
		f.users, f.sessions, f.tabUsage, f.leaderboard,
		f.presence, f.tabs, cache.NewRedisFlushLock(client, log),
		f.events, cfg, log,
	)
	return f
}

func (f *trackerFixture) createUser(t *testing.T, username string) *user.User {
	t.Helper()
	u, err := user.New(username, username+"@example.com", username, "hash")
	require.NoError(t, err)
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func (f *trackerFixture) totalOnlineSeconds(t *testing.T, userID uint) int64 {
	t.Helper()
	u, err := f.users.GetByID(context.Background(), userID)
	require.NoError(t, err)
	return u.TotalOnlineSeconds
}

func TestOpenSessionCreatesRowMarkerAndFlag(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()
	u := f.createUser(t, "alice")

	sessionID, err := f.tracker.OpenSession(ctx, u.ID)
	require.NoError(t, err)
	require.NotZero(t, sessionID)

	session, err := f.sessions.GetByID(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, session.UserID)
	assert.True(t, session.IsOpen())

	online, err := f.presence.IsOnline(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, online)

	assert.Equal(t, pubsub.StatusOnline, f.events.lastPresence())
}

func TestFlushCommitsElapsedExactlyOnce(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()
	u := f.createUser(t, "alice")

	sessionID, err := f.tracker.OpenSession(ctx, u.ID)
	require.NoError(t, err)

	// Backdate the marker and the row so the connection looks 100s old.
	start := biztime.NowUTC().Add(-100 * time.Second)
	require.NoError(t, f.presence.ArmSessionMarker(ctx, u.ID, start))
	require.NoError(t, f.db.Model(&models.PresenceSessionModel{}).
		Where("id = ?", sessionID).Update("start_time", start).Error)

	require.NoError(t, f.tracker.Flush(ctx, u.ID, sessionID))
	first := f.totalOnlineSeconds(t, u.ID)
	assert.InDelta(t, 100, first, 1)

	// Repeated flushes with no new activity must not commit the same
	// interval again; the re-armed marker contributes at most ~1s.
	require.NoError(t, f.tracker.Flush(ctx, u.ID, sessionID))
	require.NoError(t, f.tracker.Flush(ctx, u.ID, 0))
	assert.InDelta(t, first, f.totalOnlineSeconds(t, u.ID), 2)

	month := biztime.MonthKey(biztime.NowUTC())
	top, err := f.leaderboard.TopForMonth(ctx, month, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.InDelta(t, first, top[0].Seconds, 2)
}

func TestFlushValidityGateBoundary(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()
	maxValid := f.cfg.MaxValidSessionSeconds()

	t.Run("exactly flush interval plus grace is accepted", func(t *testing.T) {
		u := f.createUser(t, "edge")
		require.NoError(t, f.presence.ArmSessionMarker(ctx, u.ID,
			biztime.NowUTC().Add(-time.Duration(maxValid)*time.Second)))

		require.NoError(t, f.tracker.Flush(ctx, u.ID, 0))
		assert.InDelta(t, maxValid, f.totalOnlineSeconds(t, u.ID), 1)
	})

	t.Run("one second past the window is rejected", func(t *testing.T) {
		u := f.createUser(t, "stale")
		require.NoError(t, f.presence.ArmSessionMarker(ctx, u.ID,
			biztime.NowUTC().Add(-time.Duration(maxValid+2)*time.Second)))

		require.NoError(t, f.tracker.Flush(ctx, u.ID, 0))
		assert.Zero(t, f.totalOnlineSeconds(t, u.ID))

		// The stale marker is cleared, not left to poison later flushes.
		_, ok, err := f.presence.GetSessionMarker(ctx, u.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("negative elapsed is rejected", func(t *testing.T) {
		u := f.createUser(t, "skewed")
		require.NoError(t, f.presence.ArmSessionMarker(ctx, u.ID,
			biztime.NowUTC().Add(30*time.Second)))

		require.NoError(t, f.tracker.Flush(ctx, u.ID, 0))
		assert.Zero(t, f.totalOnlineSeconds(t, u.ID))
	})
}

func TestTabSwitchAccounting(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()
	u := f.createUser(t, "alice")
	day := biztime.DayKey(biztime.NowUTC())

	// A -> B rolls A's 0..30 interval once.
	require.NoError(t, f.tabs.SetSession(ctx, u.ID, "a.com", biztime.NowUTC().Add(-30*time.Second)))
	require.NoError(t, f.tracker.SwitchActiveTab(ctx, u.ID, cache.TabInfo{URL: "https://b.com/x", Domain: "b.com"}))

	agg, err := f.tabs.GetAggregate(ctx, u.ID, day)
	require.NoError(t, err)
	assert.InDelta(t, 30, agg["a.com"], 1)
	assert.Zero(t, agg["b.com"])

	// B -> A rolls B's interval; A's earlier time is not recounted.
	require.NoError(t, f.tabs.SetSession(ctx, u.ID, "b.com", biztime.NowUTC().Add(-20*time.Second)))
	require.NoError(t, f.tracker.SwitchActiveTab(ctx, u.ID, cache.TabInfo{URL: "https://a.com/y", Domain: "a.com"}))

	agg, err = f.tabs.GetAggregate(ctx, u.ID, day)
	require.NoError(t, err)
	assert.InDelta(t, 30, agg["a.com"], 1)
	assert.InDelta(t, 20, agg["b.com"], 1)

	// Same-domain update is last write wins: no roll, session rewritten.
	require.NoError(t, f.tracker.SwitchActiveTab(ctx, u.ID, cache.TabInfo{URL: "https://a.com/z", Domain: "a.com"}))
	agg, err = f.tabs.GetAggregate(ctx, u.ID, day)
	require.NoError(t, err)
	assert.InDelta(t, 30, agg["a.com"], 1)

	session, err := f.tabs.GetSession(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "a.com", session.Domain)
}

func TestFlushDrainsTabAggregateIntoDurableRows(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()
	u := f.createUser(t, "alice")
	now := biztime.NowUTC()
	day := biztime.DayKey(now)

	require.NoError(t, f.tabs.IncrementAggregate(ctx, u.ID, day, "a.com", 120))
	require.NoError(t, f.tabs.IncrementAggregate(ctx, u.ID, day, "b.com", 45))
	// Live tab session rolls its elapsed time in as part of the same flush.
	require.NoError(t, f.tabs.SetSession(ctx, u.ID, "b.com", now.Add(-15*time.Second)))

	require.NoError(t, f.tracker.Flush(ctx, u.ID, 0))

	usages, err := f.tabUsage.ListByUserBetween(ctx, u.ID, biztime.StartOfDayUTC(now), biztime.EndOfDayUTC(now))
	require.NoError(t, err)
	require.Len(t, usages, 2)

	byDomain := make(map[string]int64, len(usages))
	for _, usage := range usages {
		byDomain[usage.Domain] = usage.Seconds
	}
	assert.Equal(t, int64(120), byDomain["a.com"])
	assert.InDelta(t, 60, byDomain["b.com"], 1)

	// Drained: a second flush commits nothing further.
	require.NoError(t, f.tracker.Flush(ctx, u.ID, 0))
	usages, err = f.tabUsage.ListByUserBetween(ctx, u.ID, biztime.StartOfDayUTC(now), biztime.EndOfDayUTC(now))
	require.NoError(t, err)
	byDomain = make(map[string]int64, len(usages))
	for _, usage := range usages {
		byDomain[usage.Domain] = usage.Seconds
	}
	assert.Equal(t, int64(120), byDomain["a.com"])
	assert.InDelta(t, 60, byDomain["b.com"], 1)
}

func TestPeriodicFlushReArmsWhileOnline(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()
	u := f.createUser(t, "alice")
	now := biztime.NowUTC()

	_, err := f.tracker.OpenSession(ctx, u.ID)
	require.NoError(t, err)
	require.NoError(t, f.tabs.SetActiveTab(ctx, u.ID, cache.TabInfo{URL: "https://a.com", Domain: "a.com"}))
	require.NoError(t, f.tabs.SetSession(ctx, u.ID, "a.com", now.Add(-60*time.Second)))

	require.NoError(t, f.tracker.Flush(ctx, u.ID, 0))

	// Still online: both the presence marker and the tab session are re-armed
	// so the next interval is measured from the flush.
	start, ok, err := f.presence.GetSessionMarker(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.WithinDuration(t, biztime.NowUTC(), start, 2*time.Second)

	session, err := f.tabs.GetSession(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "a.com", session.Domain)
	assert.WithinDuration(t, biztime.NowUTC(), session.StartTime, 2*time.Second)
}

func TestFlushTearsDownSnapshotsWhenOffline(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()
	u := f.createUser(t, "alice")
	now := biztime.NowUTC()

	require.NoError(t, f.tabs.SetActiveTab(ctx, u.ID, cache.TabInfo{URL: "https://a.com", Domain: "a.com"}))
	require.NoError(t, f.tabs.SetLatestTabs(ctx, u.ID, []cache.TabInfo{{URL: "https://a.com", Domain: "a.com"}}))
	require.NoError(t, f.tabs.SetSession(ctx, u.ID, "a.com", now.Add(-30*time.Second)))

	require.NoError(t, f.tracker.Flush(ctx, u.ID, 0))

	tab, err := f.tabs.GetActiveTab(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, tab)
	tabs, err := f.tabs.GetLatestTabs(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, tabs)
	session, err := f.tabs.GetSession(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, session)

	_, ok, err := f.presence.GetSessionMarker(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDisconnectClosesExactlyOneSessionRow(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()
	u := f.createUser(t, "alice")

	sessionID, err := f.tracker.OpenSession(ctx, u.ID)
	require.NoError(t, err)

	// Make the connection 40s old.
	start := biztime.NowUTC().Add(-40 * time.Second)
	require.NoError(t, f.presence.ArmSessionMarker(ctx, u.ID, start))
	require.NoError(t, f.db.Model(&models.PresenceSessionModel{}).
		Where("id = ?", sessionID).Update("start_time", start).Error)

	require.NoError(t, f.tracker.Disconnect(ctx, u.ID, sessionID))

	var rows []models.PresenceSessionModel
	require.NoError(t, f.db.Where("user_id = ?", u.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].EndTime)
	require.NotNil(t, rows[0].Duration)
	assert.InDelta(t, 40, *rows[0].Duration, 1)

	assert.Equal(t, pubsub.StatusOffline, f.events.lastPresence())

	online, err := f.presence.IsOnline(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, online)

	updated, err := f.users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastOnlineAt)
}

func TestConcurrentFlushesCommitOnce(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()
	u := f.createUser(t, "alice")

	_, err := f.tracker.OpenSession(ctx, u.ID)
	require.NoError(t, err)
	require.NoError(t, f.presence.ArmSessionMarker(ctx, u.ID, biztime.NowUTC().Add(-200*time.Second)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.tracker.Flush(ctx, u.ID, 0)
		}()
	}
	wg.Wait()

	// However many flushes raced, the 200s interval lands at most once. A
	// racer that lost the lock simply skipped; whoever won committed it.
	total := f.totalOnlineSeconds(t, u.ID)
	assert.InDelta(t, 200, total, 2)
}

// failingPresenceStore makes aggregate increments fail on demand while
// delegating everything else to the real store.
type failingPresenceStore struct {
	cache.PresenceStore
	fail bool
}

func (s *failingPresenceStore) IncrementAggregate(ctx context.Context, userID uint, day string, seconds int64) error {
	if s.fail {
		return fmt.Errorf("redis unavailable")
	}
	return s.PresenceStore.IncrementAggregate(ctx, userID, day, seconds)
}

func TestFlushKeepsMarkerWhenAggregateWriteFails(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()
	u := f.createUser(t, "alice")

	log := logger.NewNop()
	store := &failingPresenceStore{PresenceStore: f.presence, fail: true}
	tracker := NewTracker(
		f.users, f.sessions, f.tabUsage, f.leaderboard,
		store, f.tabs, cache.NewRedisFlushLock(f.client, log),
		f.events, f.cfg, log,
	)

	require.NoError(t, f.presence.ArmSessionMarker(ctx, u.ID, biztime.NowUTC().Add(-120*time.Second)))

	require.Error(t, tracker.Flush(ctx, u.ID, 0))

	// The failed write must not consume the interval: the marker survives.
	_, ok, err := f.presence.GetSessionMarker(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, f.totalOnlineSeconds(t, u.ID))

	// Next cycle picks it up.
	store.fail = false
	require.NoError(t, tracker.Flush(ctx, u.ID, 0))
	assert.InDelta(t, 120, f.totalOnlineSeconds(t, u.ID), 2)
}

func TestFlushAllIsolatesPerUserFailures(t *testing.T) {
	f := setupTracker(t)
	ctx := context.Background()

	a := f.createUser(t, "alice")
	b := f.createUser(t, "bob")
	c := f.createUser(t, "carol")

	for _, u := range []*user.User{a, b, c} {
		require.NoError(t, f.presence.ArmSessionMarker(ctx, u.ID, biztime.NowUTC().Add(-60*time.Second)))
	}

	// Sabotage alice's flush: another process holds her lock the whole tick.
	// Her drain is skipped, the others still commit.
	lock := cache.NewRedisFlushLock(f.client, logger.NewNop())
	_, acquired, err := lock.TryAcquire(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, f.tracker.FlushAll(ctx, staticLocator{}))

	assert.Zero(t, f.totalOnlineSeconds(t, a.ID))
	assert.InDelta(t, 60, f.totalOnlineSeconds(t, b.ID), 1)
	assert.InDelta(t, 60, f.totalOnlineSeconds(t, c.ID), 1)
}
