// Package migrate implements the `glimpse migrate` command group for
// versioned schema management.
package migrate

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"glimpse/internal/infrastructure/config"
	"glimpse/internal/infrastructure/database"
	"glimpse/internal/infrastructure/migration"
	"glimpse/internal/shared/biztime"
	"glimpse/internal/shared/logger"
)

var (
	env   string
	name  string
	steps int
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
		Long:  `Run, roll back, inspect and create versioned database migrations.`,
	}

	cmd.PersistentFlags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")

	cmd.AddCommand(
		newUpCommand(),
		newDownCommand(),
		newStatusCommand(),
		newCreateCommand(),
	)

	return cmd
}

func newUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Run all pending migrations",
		RunE:  runUp,
	}
}

func newDownCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE:  runDown,
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to rollback")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE:  runStatus,
	}
}

func newCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new migration",
		RunE:  runCreate,
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Name of the migration (required)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func initEnv(withDatabase bool) (*migration.GooseStrategy, logger.Interface, error) {
	cfg, err := config.Load(env)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := biztime.Init(cfg.Server.Timezone); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize business timezone: %w", err)
	}
	if err := logger.Init(&cfg.Logger); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.NewLogger()

	if withDatabase {
		if err := database.Init(&cfg.Database); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	scriptsPath, err := filepath.Abs("./internal/infrastructure/migration/scripts")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve scripts path: %w", err)
	}
	return migration.NewGooseStrategy(scriptsPath), log, nil
}

func runUp(cmd *cobra.Command, args []string) error {
	strategy, log, err := initEnv(true)
	if err != nil {
		return err
	}
	defer database.Close()

	log.Infow("running up migrations", "environment", env)
	return strategy.Migrate(database.Get())
}

func runDown(cmd *cobra.Command, args []string) error {
	strategy, log, err := initEnv(true)
	if err != nil {
		return err
	}
	defer database.Close()

	log.Infow("rolling back migrations", "environment", env, "steps", steps)
	return strategy.MigrateDown(database.Get(), steps)
}

func runStatus(cmd *cobra.Command, args []string) error {
	strategy, _, err := initEnv(true)
	if err != nil {
		return err
	}
	defer database.Close()

	return strategy.Status(database.Get())
}

func runCreate(cmd *cobra.Command, args []string) error {
	strategy, log, err := initEnv(false)
	if err != nil {
		return err
	}

	log.Infow("creating migration", "name", name)
	return strategy.Create(name)
}
