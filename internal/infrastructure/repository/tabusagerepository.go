package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"glimpse/internal/domain/analytics"
	"glimpse/internal/infrastructure/persistence/models"
)

type TabUsageRepository struct {
	db *gorm.DB
}

func NewTabUsageRepository(db *gorm.DB) analytics.TabUsageRepository {
	return &TabUsageRepository{db: db}
}

// IncrementUsage upserts the (user, date, domain) row, adding seconds to any
// existing value. Rows are never overwritten wholesale.
func (r *TabUsageRepository) IncrementUsage(ctx context.Context, userID uint, date time.Time, domain string, seconds int64) error {
	row := models.TabUsageModel{
		UserID:  userID,
		Date:    datatypes.Date(date),
		Domain:  domain,
		Seconds: seconds,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}, {Name: "domain"}},
		DoUpdates: clause.Assignments(map[string]any{
			"seconds": gorm.Expr("seconds + ?", seconds),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert tab usage: %w", err)
	}
	return nil
}

func (r *TabUsageRepository) ListByUserBetween(ctx context.Context, userID uint, from, to time.Time) ([]analytics.TabUsage, error) {
	var rows []models.TabUsageModel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND date >= ? AND date <= ?", userID, datatypes.Date(from), datatypes.Date(to)).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tab usage: %w", err)
	}

	usages := make([]analytics.TabUsage, len(rows))
	for i, row := range rows {
		usages[i] = analytics.TabUsage{
			UserID:  row.UserID,
			Date:    time.Time(row.Date),
			Domain:  row.Domain,
			Seconds: row.Seconds,
		}
	}
	return usages, nil
}
