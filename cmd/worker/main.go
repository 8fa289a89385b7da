// The worker is a standalone flush node: it runs the periodic analytics
// flush without serving HTTP or websocket traffic. Useful when the gateway
// nodes are scaled independently from the drain schedule.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"glimpse/internal/application/presence"
	"glimpse/internal/infrastructure/cache"
	"glimpse/internal/infrastructure/config"
	"glimpse/internal/infrastructure/database"
	"glimpse/internal/infrastructure/pubsub"
	"glimpse/internal/infrastructure/repository"
	"glimpse/internal/infrastructure/scheduler"
	"glimpse/internal/shared/biztime"
	"glimpse/internal/shared/logger"
)

func main() {
	env := "development"
	if len(os.Args) > 1 {
		env = os.Args[1]
	}
	if envVar := os.Getenv("ENV"); envVar != "" {
		env = envVar
	}

	cfg, err := config.Load(env)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := biztime.Init(cfg.Server.Timezone); err != nil {
		fmt.Printf("failed to initialize business timezone: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(&cfg.Logger); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewLogger()
	log.Infow("starting flush worker", "environment", env)

	if err := database.Init(&cfg.Database); err != nil {
		log.Errorw("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	redisClient, err := cache.NewClient(&cfg.Redis)
	if err != nil {
		log.Errorw("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	log.Infow("redis connection established", "address", cfg.Redis.GetAddr())

	db := database.Get()
	tracker := presence.NewTracker(
		repository.NewUserRepository(db),
		repository.NewPresenceSessionRepository(db),
		repository.NewTabUsageRepository(db),
		repository.NewLeaderboardRepository(db),
		cache.NewRedisPresenceStore(redisClient, log),
		cache.NewRedisTabStore(redisClient, log),
		cache.NewRedisFlushLock(redisClient, log),
		pubsub.NewRedisEventBus(redisClient, log),
		&cfg.Presence, log,
	)
	// No connection registry here: durable rows are closed by the gateway
	// nodes that own the connections.
	flushService := presence.NewFlushService(tracker, presence.NoSessions)

	sched, err := scheduler.NewSchedulerManager(log)
	if err != nil {
		log.Errorw("failed to create scheduler", "error", err)
		os.Exit(1)
	}
	if err := sched.RegisterAnalyticsFlushJob(flushService, cfg.Presence.FlushInterval()); err != nil {
		log.Errorw("failed to register flush job", "error", err)
		os.Exit(1)
	}
	sched.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Infow("shutting down flush worker")
	if err := sched.Stop(); err != nil {
		log.Errorw("failed to stop scheduler", "error", err)
	}
}
