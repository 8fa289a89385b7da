package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	domainAnalytics "glimpse/internal/domain/analytics"
	domainUser "glimpse/internal/domain/user"
	"glimpse/internal/infrastructure/persistence/models"
	"glimpse/internal/infrastructure/repository"
	"glimpse/internal/shared/biztime"
	apperrors "glimpse/internal/shared/errors"
	"glimpse/internal/shared/logger"
)

type analyticsFixture struct {
	service     *Service
	users       domainUser.Repository
	sessions    domainAnalytics.PresenceSessionRepository
	tabUsage    domainAnalytics.TabUsageRepository
	leaderboard domainAnalytics.LeaderboardRepository
	db          *gorm.DB
}

func setupAnalytics(t *testing.T) *analyticsFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	log := logger.NewNop()
	f := &analyticsFixture{
		users:       repository.NewUserRepository(db),
		sessions:    repository.NewPresenceSessionRepository(db),
		tabUsage:    repository.NewTabUsageRepository(db),
		leaderboard: repository.NewLeaderboardRepository(db),
		db:          db,
	}
	f.service = NewService(f.sessions, f.tabUsage, f.leaderboard, log)
	return f
}

func seedUser(t *testing.T, f *analyticsFixture, username string) *domainUser.User {
	t.Helper()
	u, err := domainUser.New(username, username+"@example.com", username, "hash")
	require.NoError(t, err)
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func seedClosedSession(t *testing.T, f *analyticsFixture, userID uint, start time.Time, seconds int64) {
	t.Helper()
	ctx := context.Background()

	session, err := domainAnalytics.NewPresenceSession(userID)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Create(ctx, session))

	require.NoError(t, f.db.Model(&models.PresenceSessionModel{}).
		Where("id = ?", session.ID).
		Update("start_time", start).Error)

	stored, err := f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	stored.Close(start.Add(time.Duration(seconds) * time.Second))
	require.NoError(t, f.sessions.Update(ctx, stored))
}

func TestPresenceTodaySumsClosedAndOpenSessions(t *testing.T) {
	f := setupAnalytics(t)
	ctx := context.Background()
	u := seedUser(t, f, "alice")
	now := biztime.NowUTC()

	seedClosedSession(t, f, u.ID, now.Add(-2*time.Hour), 600)

	// An open session contributes its elapsed time.
	open, err := domainAnalytics.NewPresenceSession(u.ID)
	require.NoError(t, err)
	require.NoError(t, f.sessions.Create(ctx, open))
	require.NoError(t, f.db.Model(&models.PresenceSessionModel{}).
		Where("id = ?", open.ID).
		Update("start_time", now.Add(-100*time.Second)).Error)

	summary, err := f.service.PresenceToday(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, biztime.DayKey(now), summary.Date)
	assert.Equal(t, 2, summary.Sessions)
	assert.InDelta(t, 700, summary.Seconds, 2)
}

func TestPresenceWeeklyBucketsByDay(t *testing.T) {
	f := setupAnalytics(t)
	ctx := context.Background()
	u := seedUser(t, f, "alice")
	now := biztime.NowUTC()

	// Guard against the two seeds straddling midnight.
	base := biztime.StartOfDayUTC(now).Add(2 * time.Hour)
	if now.Before(base) {
		base = biztime.StartOfDayUTC(now)
	}
	seedClosedSession(t, f, u.ID, base, 300)
	seedClosedSession(t, f, u.ID, base.AddDate(0, 0, -2), 120)
	// Outside the window, must not appear.
	seedClosedSession(t, f, u.ID, base.AddDate(0, 0, -10), 999)

	week, err := f.service.PresenceWeekly(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, week, 7)

	total := int64(0)
	byDay := make(map[string]PresenceSummary)
	for _, day := range week {
		byDay[day.Date] = day
		total += day.Seconds
	}
	assert.Equal(t, int64(420), total)
	assert.Equal(t, int64(300), byDay[biztime.DayKey(base)].Seconds)
	assert.Equal(t, int64(120), byDay[biztime.DayKey(base.AddDate(0, 0, -2))].Seconds)
}

func TestTabUsageTodayOrdersByWeight(t *testing.T) {
	f := setupAnalytics(t)
	ctx := context.Background()
	u := seedUser(t, f, "alice")
	today := biztime.StartOfDayUTC(biztime.NowUTC())

	require.NoError(t, f.tabUsage.IncrementUsage(ctx, u.ID, today, "example.com", 120))
	require.NoError(t, f.tabUsage.IncrementUsage(ctx, u.ID, today, "news.ycombinator.com", 300))
	require.NoError(t, f.tabUsage.IncrementUsage(ctx, u.ID, today, "example.com", 30))

	usage, err := f.service.TabUsageToday(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, DomainUsage{Domain: "news.ycombinator.com", Seconds: 300}, usage[0])
	assert.Equal(t, DomainUsage{Domain: "example.com", Seconds: 150}, usage[1])
}

func TestTabUsageWeeklyGroupsByDay(t *testing.T) {
	f := setupAnalytics(t)
	ctx := context.Background()
	u := seedUser(t, f, "alice")
	today := biztime.StartOfDayUTC(biztime.NowUTC())
	twoDaysAgo := today.AddDate(0, 0, -2)

	require.NoError(t, f.tabUsage.IncrementUsage(ctx, u.ID, today, "example.com", 60))
	require.NoError(t, f.tabUsage.IncrementUsage(ctx, u.ID, twoDaysAgo, "example.com", 90))

	weekly, err := f.service.TabUsageWeekly(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, weekly, 2)
	assert.Equal(t, biztime.DayKey(twoDaysAgo), weekly[0].Date)
	assert.Equal(t, int64(90), weekly[0].Domains[0].Seconds)
	assert.Equal(t, biztime.DayKey(today), weekly[1].Date)
	assert.Equal(t, int64(60), weekly[1].Domains[0].Seconds)
}

func TestLeaderboardValidatesMonthKey(t *testing.T) {
	f := setupAnalytics(t)
	ctx := context.Background()

	_, err := f.service.Leaderboard(ctx, "March", 10)
	assert.True(t, apperrors.IsValidationError(err))

	_, err = f.service.Leaderboard(ctx, "2026-08-01", 10)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestLeaderboardRanksCommittedSeconds(t *testing.T) {
	f := setupAnalytics(t)
	ctx := context.Background()
	alice := seedUser(t, f, "alice")
	bob := seedUser(t, f, "bob")
	month := biztime.MonthKey(biztime.NowUTC())

	require.NoError(t, f.leaderboard.IncrementSeconds(ctx, alice.ID, month, 300))
	require.NoError(t, f.leaderboard.IncrementSeconds(ctx, bob.ID, month, 500))
	require.NoError(t, f.leaderboard.IncrementSeconds(ctx, alice.ID, month, 100))

	entries, err := f.service.Leaderboard(ctx, month, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, bob.ID, entries[0].UserID)
	assert.Equal(t, int64(500), entries[0].Seconds)
	assert.Equal(t, alice.ID, entries[1].UserID)
	assert.Equal(t, int64(400), entries[1].Seconds)
}
