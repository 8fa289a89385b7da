// Package analytics serves read queries over the committed presence and
// tab-usage data. All figures come from the durable store; ephemeral
// aggregates not yet flushed are invisible here.
package analytics

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	domainAnalytics "glimpse/internal/domain/analytics"
	"glimpse/internal/shared/biztime"
	apperrors "glimpse/internal/shared/errors"
	"glimpse/internal/shared/logger"
)

const defaultLeaderboardLimit = 50

var monthKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// PresenceSummary is the committed online time for one day.
type PresenceSummary struct {
	Date     string `json:"date"`
	Seconds  int64  `json:"seconds"`
	Sessions int    `json:"sessions"`
}

// DomainUsage is committed seconds for one domain.
type DomainUsage struct {
	Domain  string `json:"domain"`
	Seconds int64  `json:"seconds"`
}

// DailyTabUsage groups domain usage under its day.
type DailyTabUsage struct {
	Date    string        `json:"date"`
	Domains []DomainUsage `json:"domains"`
}

// Service answers analytics queries.
type Service struct {
	sessions    domainAnalytics.PresenceSessionRepository
	tabUsage    domainAnalytics.TabUsageRepository
	leaderboard domainAnalytics.LeaderboardRepository
	logger      logger.Interface
}

func NewService(
	sessions domainAnalytics.PresenceSessionRepository,
	tabUsage domainAnalytics.TabUsageRepository,
	leaderboard domainAnalytics.LeaderboardRepository,
	log logger.Interface,
) *Service {
	return &Service{
		sessions:    sessions,
		tabUsage:    tabUsage,
		leaderboard: leaderboard,
		logger:      log.Named("analytics.service"),
	}
}

// PresenceToday reports today's committed session time. Open sessions
// contribute their elapsed time so the figure tracks the live day.
func (s *Service) PresenceToday(ctx context.Context, userID uint) (*PresenceSummary, error) {
	now := biztime.NowUTC()
	summaries, err := s.presenceRange(ctx, userID, biztime.StartOfDayUTC(now), biztime.EndOfDayUTC(now))
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return &PresenceSummary{Date: biztime.DayKey(now)}, nil
	}
	return &summaries[0], nil
}

// PresenceWeekly reports the last seven days, oldest first. Days without
// sessions appear with zero seconds.
func (s *Service) PresenceWeekly(ctx context.Context, userID uint) ([]PresenceSummary, error) {
	now := biztime.NowUTC()
	from := biztime.StartOfDayUTC(now.AddDate(0, 0, -6))

	summaries, err := s.presenceRange(ctx, userID, from, biztime.EndOfDayUTC(now))
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]PresenceSummary, len(summaries))
	for _, sum := range summaries {
		byDay[sum.Date] = sum
	}

	week := make([]PresenceSummary, 0, 7)
	for d := 0; d < 7; d++ {
		day := biztime.DayKey(from.AddDate(0, 0, d))
		if sum, ok := byDay[day]; ok {
			week = append(week, sum)
		} else {
			week = append(week, PresenceSummary{Date: day})
		}
	}
	return week, nil
}

func (s *Service) presenceRange(ctx context.Context, userID uint, from, to time.Time) ([]PresenceSummary, error) {
	sessions, err := s.sessions.ListByUserBetween(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	now := biztime.NowUTC()
	byDay := make(map[string]*PresenceSummary)
	for _, session := range sessions {
		day := biztime.DayKey(session.StartTime)
		sum, ok := byDay[day]
		if !ok {
			sum = &PresenceSummary{Date: day}
			byDay[day] = sum
		}
		sum.Sessions++
		if session.Duration != nil {
			sum.Seconds += *session.Duration
		} else if elapsed := int64(now.Sub(session.StartTime).Seconds()); elapsed > 0 {
			sum.Seconds += elapsed
		}
	}

	summaries := make([]PresenceSummary, 0, len(byDay))
	for _, sum := range byDay {
		summaries = append(summaries, *sum)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Date < summaries[j].Date })
	return summaries, nil
}

// TabUsageToday reports today's committed per-domain seconds, heaviest
// domain first.
func (s *Service) TabUsageToday(ctx context.Context, userID uint) ([]DomainUsage, error) {
	now := biztime.NowUTC()
	rows, err := s.tabUsage.ListByUserBetween(ctx, userID, biztime.StartOfDayUTC(now), biztime.EndOfDayUTC(now))
	if err != nil {
		return nil, fmt.Errorf("failed to list tab usage: %w", err)
	}
	return sortedUsage(rows), nil
}

// TabUsageWeekly reports the last seven days of per-domain usage grouped by
// day, oldest first. Only days with usage are returned.
func (s *Service) TabUsageWeekly(ctx context.Context, userID uint) ([]DailyTabUsage, error) {
	now := biztime.NowUTC()
	from := biztime.StartOfDayUTC(now.AddDate(0, 0, -6))

	rows, err := s.tabUsage.ListByUserBetween(ctx, userID, from, biztime.EndOfDayUTC(now))
	if err != nil {
		return nil, fmt.Errorf("failed to list tab usage: %w", err)
	}

	byDay := make(map[string][]domainAnalytics.TabUsage)
	for _, row := range rows {
		day := biztime.DayKey(row.Date)
		byDay[day] = append(byDay[day], row)
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	result := make([]DailyTabUsage, 0, len(days))
	for _, day := range days {
		result = append(result, DailyTabUsage{Date: day, Domains: sortedUsage(byDay[day])})
	}
	return result, nil
}

// Leaderboard returns the month's top users by committed presence seconds.
func (s *Service) Leaderboard(ctx context.Context, month string, limit int) ([]domainAnalytics.LeaderboardEntry, error) {
	if !monthKeyPattern.MatchString(month) {
		return nil, apperrors.NewValidationError("month must be formatted YYYY-MM")
	}
	if limit <= 0 || limit > defaultLeaderboardLimit {
		limit = defaultLeaderboardLimit
	}
	return s.leaderboard.TopForMonth(ctx, month, limit)
}

func sortedUsage(rows []domainAnalytics.TabUsage) []DomainUsage {
	totals := make(map[string]int64, len(rows))
	for _, row := range rows {
		totals[row.Domain] += row.Seconds
	}

	usage := make([]DomainUsage, 0, len(totals))
	for domain, seconds := range totals {
		usage = append(usage, DomainUsage{Domain: domain, Seconds: seconds})
	}
	sort.Slice(usage, func(i, j int) bool {
		if usage[i].Seconds != usage[j].Seconds {
			return usage[i].Seconds > usage[j].Seconds
		}
		return usage[i].Domain < usage[j].Domain
	})
	return usage
}
