// Package server implements the `glimpse server` command: the full node
// with HTTP API, websocket gateway and the periodic flush scheduler.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"glimpse/internal/infrastructure/cache"
	"glimpse/internal/infrastructure/config"
	"glimpse/internal/infrastructure/database"
	"glimpse/internal/infrastructure/migration"
	"glimpse/internal/infrastructure/persistence/models"
	"glimpse/internal/infrastructure/scheduler"
	httpRouter "glimpse/internal/interfaces/http"
	"glimpse/internal/shared/biztime"
	"glimpse/internal/shared/logger"
)

var (
	env         string
	autoMigrate bool
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the glimpse server",
		Long:  `Start the HTTP API, the websocket presence gateway and the periodic flush scheduler.`,
		RunE:  run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "development", "Environment (development, test, production)")
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "Run database migrations on startup")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	cfg, err := config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := biztime.Init(cfg.Server.Timezone); err != nil {
		return fmt.Errorf("failed to initialize business timezone: %w", err)
	}
	if err := logger.Init(&cfg.Logger); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.NewLogger()

	log.Infow("starting glimpse server", "environment", env)

	gin.DefaultWriter = io.Discard

	if err := database.Init(&cfg.Database); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Errorw("failed to close database", "error", err)
		}
	}()

	if autoMigrate {
		if env == "production" {
			return fmt.Errorf("refusing to auto-migrate in production, run `glimpse migrate up` instead")
		}
		if err := migration.NewManager(env).Migrate(database.Get(), models.All()...); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	redisClient, err := cache.NewClient(&cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Errorw("failed to close redis client", "error", err)
		}
	}()

	container := httpRouter.NewContainer(cfg, database.Get(), redisClient, log)
	engine := httpRouter.NewRouter(container, log)

	// Periodic flush: every interval plus once immediately at start, so
	// state stranded by a crash is drained as soon as the node is back.
	sched, err := scheduler.NewSchedulerManager(log)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := sched.RegisterAnalyticsFlushJob(container.FlushService, cfg.Presence.FlushInterval()); err != nil {
		return fmt.Errorf("failed to register flush job: %w", err)
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Errorw("failed to stop scheduler", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server listening", "address", cfg.Server.GetAddr(), "mode", cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("server stopped unexpectedly", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	log.Infow("server exited gracefully")
	return nil
}
