package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"glimpse/internal/domain/analytics"
	"glimpse/internal/infrastructure/persistence/models"
)

type LeaderboardRepository struct {
	db *gorm.DB
}

func NewLeaderboardRepository(db *gorm.DB) analytics.LeaderboardRepository {
	return &LeaderboardRepository{db: db}
}

// IncrementSeconds upserts the (user, month) row, adding committed presence
// seconds. Totals are monotonically increasing.
func (r *LeaderboardRepository) IncrementSeconds(ctx context.Context, userID uint, month string, seconds int64) error {
	row := models.MonthlyLeaderboardModel{
		UserID:  userID,
		Month:   month,
		Seconds: seconds,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "month"}},
		DoUpdates: clause.Assignments(map[string]any{
			"seconds": gorm.Expr("seconds + ?", seconds),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert leaderboard entry: %w", err)
	}
	return nil
}

func (r *LeaderboardRepository) TopForMonth(ctx context.Context, month string, limit int) ([]analytics.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []analytics.LeaderboardEntry
	err := r.db.WithContext(ctx).
		Table("monthly_leaderboards").
		Select("monthly_leaderboards.user_id, users.username, users.display_name, monthly_leaderboards.month, monthly_leaderboards.seconds").
		Joins("JOIN users ON users.id = monthly_leaderboards.user_id").
		Where("monthly_leaderboards.month = ?", month).
		Order("monthly_leaderboards.seconds DESC").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	return entries, nil
}
