package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"glimpse/internal/shared/logger"
)

const (
	// Key format: glimpse:tab:sess:{userID}
	// Hash {domain, start_time} for the actively-viewed domain. At most one
	// per user; replaced on tab switch, cleared or re-armed on flush.
	tabSessionKeyPrefix = "glimpse:tab:sess:"

	// Key format: glimpse:tab:agg:{userID}:{day}
	// Hash domain -> accumulated seconds not yet committed.
	tabAggKeyPrefix = "glimpse:tab:agg:"

	// Key format: glimpse:tab:active:{userID} / glimpse:tab:latest:{userID}
	// JSON snapshots of the active tab and the full tab list, served to
	// friends and used to re-arm the tab session after a periodic flush.
	tabActiveKeyPrefix = "glimpse:tab:active:"
	tabLatestKeyPrefix = "glimpse:tab:latest:"

	tabSessionFieldDomain    = "domain"
	tabSessionFieldStartTime = "start_time"

	tabAggTTL      = 48 * time.Hour
	tabSessionTTL  = 48 * time.Hour
	tabSnapshotTTL = 24 * time.Hour
)

// TabInfo is a client-reported browser tab snapshot. The client decides what
// to send; these are the fields the server actually reads.
type TabInfo struct {
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	Domain     string `json:"domain,omitempty"`
	FavIconURL string `json:"favIconUrl,omitempty"`
}

// TabSession is the current {domain, startTime} pair for a user.
type TabSession struct {
	Domain    string
	StartTime time.Time
}

// TabStore holds the ephemeral tab state for a user: the in-progress domain
// session, the per-day aggregate and the live snapshots shown to friends.
type TabStore interface {
	// SetSession overwrites the tab session with {domain, startTime}.
	SetSession(ctx context.Context, userID uint, domain string, startTime time.Time) error

	// GetSession returns the current tab session, nil when none is armed.
	GetSession(ctx context.Context, userID uint) (*TabSession, error)

	// ClearSession deletes the tab session.
	ClearSession(ctx context.Context, userID uint) error

	// IncrementAggregate adds seconds to the user's per-domain total for day.
	IncrementAggregate(ctx context.Context, userID uint, day string, domain string, seconds int64) error

	// GetAggregate returns the full domain->seconds map for the given day.
	GetAggregate(ctx context.Context, userID uint, day string) (map[string]int64, error)

	// ClearAggregate deletes the aggregate hash for the given day.
	ClearAggregate(ctx context.Context, userID uint, day string) error

	// SetActiveTab stores the active-tab snapshot.
	SetActiveTab(ctx context.Context, userID uint, tab TabInfo) error

	// GetActiveTab returns the active-tab snapshot, nil when absent.
	GetActiveTab(ctx context.Context, userID uint) (*TabInfo, error)

	// ClearActiveTab deletes the active-tab snapshot.
	ClearActiveTab(ctx context.Context, userID uint) error

	// SetLatestTabs stores the full tab-list snapshot.
	SetLatestTabs(ctx context.Context, userID uint, tabs []TabInfo) error

	// GetLatestTabs returns the full tab-list snapshot, nil when absent.
	GetLatestTabs(ctx context.Context, userID uint) ([]TabInfo, error)

	// ClearLatestTabs deletes the tab-list snapshot.
	ClearLatestTabs(ctx context.Context, userID uint) error
}

// RedisTabStore implements TabStore using Redis.
type RedisTabStore struct {
	client *redis.Client
	logger logger.Interface
}

// NewRedisTabStore creates a new RedisTabStore instance.
func NewRedisTabStore(client *redis.Client, logger logger.Interface) TabStore {
	return &RedisTabStore{
		client: client,
		logger: logger,
	}
}

func tabSessionKey(userID uint) string {
	return fmt.Sprintf("%s%d", tabSessionKeyPrefix, userID)
}

func tabAggKey(userID uint, day string) string {
	return fmt.Sprintf("%s%d:%s", tabAggKeyPrefix, userID, day)
}

func tabActiveKey(userID uint) string {
	return fmt.Sprintf("%s%d", tabActiveKeyPrefix, userID)
}

func tabLatestKey(userID uint) string {
	return fmt.Sprintf("%s%d", tabLatestKeyPrefix, userID)
}

// SetSession overwrites the tab session with {domain, startTime}.
func (s *RedisTabStore) SetSession(ctx context.Context, userID uint, domain string, startTime time.Time) error {
	key := tabSessionKey(userID)
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key,
		tabSessionFieldDomain, domain,
		tabSessionFieldStartTime, strconv.FormatInt(startTime.Unix(), 10),
	)
	pipe.Expire(ctx, key, tabSessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Errorw("failed to set tab session", "user_id", userID, "domain", domain, "error", err)
		return fmt.Errorf("failed to set tab session: %w", err)
	}
	return nil
}

// GetSession returns the current tab session, nil when none is armed.
func (s *RedisTabStore) GetSession(ctx context.Context, userID uint) (*TabSession, error) {
	values, err := s.client.HGetAll(ctx, tabSessionKey(userID)).Result()
	if err != nil && err != redis.Nil {
		s.logger.Errorw("failed to get tab session", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get tab session: %w", err)
	}

	domain := values[tabSessionFieldDomain]
	startStr := values[tabSessionFieldStartTime]
	if domain == "" || startStr == "" {
		return nil, nil
	}

	unix, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		s.logger.Warnw("invalid tab session start time", "user_id", userID, "value", startStr)
		return nil, nil
	}

	return &TabSession{
		Domain:    domain,
		StartTime: time.Unix(unix, 0).UTC(),
	}, nil
}

// ClearSession deletes the tab session.
func (s *RedisTabStore) ClearSession(ctx context.Context, userID uint) error {
	if err := s.client.Del(ctx, tabSessionKey(userID)).Err(); err != nil {
		s.logger.Errorw("failed to clear tab session", "user_id", userID, "error", err)
		return fmt.Errorf("failed to clear tab session: %w", err)
	}
	return nil
}

// IncrementAggregate adds seconds to the user's per-domain total for day.
func (s *RedisTabStore) IncrementAggregate(ctx context.Context, userID uint, day string, domain string, seconds int64) error {
	if seconds <= 0 || domain == "" {
		return nil
	}

	key := tabAggKey(userID, day)
	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, key, domain, seconds)
	pipe.Expire(ctx, key, tabAggTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Errorw("failed to increment tab aggregate",
			"user_id", userID,
			"day", day,
			"domain", domain,
			"seconds", seconds,
			"error", err,
		)
		return fmt.Errorf("failed to increment tab aggregate: %w", err)
	}

	s.logger.Debugw("tab aggregate incremented",
		"user_id", userID,
		"day", day,
		"domain", domain,
		"seconds", seconds,
	)
	return nil
}

// GetAggregate returns the full domain->seconds map for the given day.
func (s *RedisTabStore) GetAggregate(ctx context.Context, userID uint, day string) (map[string]int64, error) {
	values, err := s.client.HGetAll(ctx, tabAggKey(userID, day)).Result()
	if err != nil && err != redis.Nil {
		s.logger.Errorw("failed to get tab aggregate", "user_id", userID, "day", day, "error", err)
		return nil, fmt.Errorf("failed to get tab aggregate: %w", err)
	}

	if len(values) == 0 {
		return nil, nil
	}

	result := make(map[string]int64, len(values))
	for domain, secStr := range values {
		seconds, err := strconv.ParseInt(secStr, 10, 64)
		if err != nil {
			s.logger.Warnw("invalid tab aggregate value",
				"user_id", userID,
				"day", day,
				"domain", domain,
				"value", secStr,
			)
			continue
		}
		if seconds > 0 {
			result[domain] = seconds
		}
	}
	return result, nil
}

// ClearAggregate deletes the aggregate hash for the given day.
func (s *RedisTabStore) ClearAggregate(ctx context.Context, userID uint, day string) error {
	if err := s.client.Del(ctx, tabAggKey(userID, day)).Err(); err != nil {
		s.logger.Errorw("failed to clear tab aggregate", "user_id", userID, "day", day, "error", err)
		return fmt.Errorf("failed to clear tab aggregate: %w", err)
	}
	return nil
}

// SetActiveTab stores the active-tab snapshot.
func (s *RedisTabStore) SetActiveTab(ctx context.Context, userID uint, tab TabInfo) error {
	data, err := json.Marshal(tab)
	if err != nil {
		return fmt.Errorf("failed to marshal active tab: %w", err)
	}
	if err := s.client.Set(ctx, tabActiveKey(userID), data, tabSnapshotTTL).Err(); err != nil {
		s.logger.Errorw("failed to set active tab", "user_id", userID, "error", err)
		return fmt.Errorf("failed to set active tab: %w", err)
	}
	return nil
}

// GetActiveTab returns the active-tab snapshot, nil when absent.
func (s *RedisTabStore) GetActiveTab(ctx context.Context, userID uint) (*TabInfo, error) {
	data, err := s.client.Get(ctx, tabActiveKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		s.logger.Errorw("failed to get active tab", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get active tab: %w", err)
	}

	var tab TabInfo
	if err := json.Unmarshal(data, &tab); err != nil {
		s.logger.Warnw("invalid active tab snapshot", "user_id", userID, "error", err)
		return nil, nil
	}
	return &tab, nil
}

// ClearActiveTab deletes the active-tab snapshot.
func (s *RedisTabStore) ClearActiveTab(ctx context.Context, userID uint) error {
	if err := s.client.Del(ctx, tabActiveKey(userID)).Err(); err != nil {
		s.logger.Errorw("failed to clear active tab", "user_id", userID, "error", err)
		return fmt.Errorf("failed to clear active tab: %w", err)
	}
	return nil
}

// SetLatestTabs stores the full tab-list snapshot.
func (s *RedisTabStore) SetLatestTabs(ctx context.Context, userID uint, tabs []TabInfo) error {
	data, err := json.Marshal(tabs)
	if err != nil {
		return fmt.Errorf("failed to marshal latest tabs: %w", err)
	}
	if err := s.client.Set(ctx, tabLatestKey(userID), data, tabSnapshotTTL).Err(); err != nil {
		s.logger.Errorw("failed to set latest tabs", "user_id", userID, "error", err)
		return fmt.Errorf("failed to set latest tabs: %w", err)
	}
	return nil
}

// GetLatestTabs returns the full tab-list snapshot, nil when absent.
func (s *RedisTabStore) GetLatestTabs(ctx context.Context, userID uint) ([]TabInfo, error) {
	data, err := s.client.Get(ctx, tabLatestKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		s.logger.Errorw("failed to get latest tabs", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get latest tabs: %w", err)
	}

	var tabs []TabInfo
	if err := json.Unmarshal(data, &tabs); err != nil {
		s.logger.Warnw("invalid latest tabs snapshot", "user_id", userID, "error", err)
		return nil, nil
	}
	return tabs, nil
}

// ClearLatestTabs deletes the tab-list snapshot.
func (s *RedisTabStore) ClearLatestTabs(ctx context.Context, userID uint) error {
	if err := s.client.Del(ctx, tabLatestKey(userID)).Err(); err != nil {
		s.logger.Errorw("failed to clear latest tabs", "user_id", userID, "error", err)
		return fmt.Errorf("failed to clear latest tabs: %w", err)
	}
	return nil
}
