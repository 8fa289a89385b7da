package migration

import (
	"fmt"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"glimpse/internal/shared/logger"
)

// Manager picks and runs a migration strategy.
type Manager struct {
	strategy Strategy
	logger   logger.Interface
}

// NewManager chooses a strategy for the given environment: development runs
// GORM AutoMigrate, everything else runs versioned goose scripts.
func NewManager(environment string) *Manager {
	var strategy Strategy

	switch strings.ToLower(environment) {
	case "development", "debug", "":
		strategy = NewGormAutoMigrateStrategy()
	default:
		scriptsPath, _ := filepath.Abs("./internal/infrastructure/migration/scripts")
		strategy = NewGooseStrategy(scriptsPath)
	}

	return &Manager{
		strategy: strategy,
		logger:   logger.NewLogger().Named("migration.manager"),
	}
}

// NewManagerWithStrategy creates a manager with an explicit strategy.
func NewManagerWithStrategy(strategy Strategy) *Manager {
	return &Manager{
		strategy: strategy,
		logger:   logger.NewLogger().Named("migration.manager"),
	}
}

// Migrate executes the configured migration strategy.
func (m *Manager) Migrate(db *gorm.DB, models ...interface{}) error {
	m.logger.Infow("starting database migration",
		"strategy", m.strategy.GetName(),
		"models_count", len(models),
	)

	if err := m.strategy.Migrate(db, models...); err != nil {
		m.logger.Errorw("migration failed",
			"strategy", m.strategy.GetName(),
			"error", err,
		)
		return fmt.Errorf("migration failed with strategy %s: %w", m.strategy.GetName(), err)
	}

	m.logger.Infow("database migration completed successfully",
		"strategy", m.strategy.GetName(),
	)
	return nil
}

// GetStrategy returns the current migration strategy.
func (m *Manager) GetStrategy() Strategy {
	return m.strategy
}
