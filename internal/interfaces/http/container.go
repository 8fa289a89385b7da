// Package http wires the application together and exposes the REST and
// websocket endpoints.
package http

import (
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"glimpse/internal/application/account"
	"glimpse/internal/application/analytics"
	"glimpse/internal/application/chat"
	"glimpse/internal/application/presence"
	"glimpse/internal/application/social"
	"glimpse/internal/infrastructure/auth"
	"glimpse/internal/infrastructure/cache"
	"glimpse/internal/infrastructure/config"
	"glimpse/internal/infrastructure/email"
	"glimpse/internal/infrastructure/pubsub"
	"glimpse/internal/infrastructure/repository"
	"glimpse/internal/interfaces/http/handlers"
	"glimpse/internal/interfaces/http/middleware"
	"glimpse/internal/interfaces/ws"
	"glimpse/internal/shared/logger"
)

// Container holds the wired object graph. The server command uses Router
// for serving and FlushService/Registry for scheduler registration.
type Container struct {
	Config       *config.Config
	Tracker      *presence.Tracker
	FlushService *presence.FlushService
	Registry     *ws.Registry

	AccountHandler   *handlers.AccountHandler
	FriendHandler    *handlers.FriendHandler
	AnalyticsHandler *handlers.AnalyticsHandler
	ChatHandler      *handlers.ChatHandler
	Gateway          *ws.Gateway
	AuthMiddleware   *middleware.AuthMiddleware

	logger logger.Interface
}

// NewContainer wires repositories, stores, services and handlers.
func NewContainer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, log logger.Interface) *Container {
	// durable stores
	users := repository.NewUserRepository(db)
	friendships := repository.NewFriendshipRepository(db)
	sessions := repository.NewPresenceSessionRepository(db)
	tabUsage := repository.NewTabUsageRepository(db)
	leaderboard := repository.NewLeaderboardRepository(db)
	resets := repository.NewPasswordResetRepository(db)
	conversations := repository.NewConversationRepository(db)
	messages := repository.NewMessageRepository(db)

	// ephemeral stores and the event bus
	presenceStore := cache.NewRedisPresenceStore(redisClient, log)
	tabStore := cache.NewRedisTabStore(redisClient, log)
	flushLock := cache.NewRedisFlushLock(redisClient, log)
	eventBus := pubsub.NewRedisEventBus(redisClient, log)

	jwtService := auth.NewJWTService(cfg.Auth.JWT.Secret, cfg.Auth.JWT.AccessExpMinutes)
	hasher := auth.NewBcryptPasswordHasher(cfg.Auth.Password.BcryptCost)
	mailer := email.NewSMTPEmailService(cfg.Email)

	tracker := presence.NewTracker(
		users, sessions, tabUsage, leaderboard,
		presenceStore, tabStore, flushLock, eventBus,
		&cfg.Presence, log,
	)

	registry := ws.NewRegistry()
	flushService := presence.NewFlushService(tracker, registry)
	notifier := ws.NewNotifier(registry)
	fanout := ws.NewFanout(friendships, eventBus, log)
	gateway := ws.NewGateway(tracker, jwtService, fanout, registry, &cfg.Presence, log)

	accounts := account.NewService(users, resets, hasher, jwtService, mailer, log)
	socialService := social.NewService(friendships, users, presenceStore, notifier, log)
	analyticsService := analytics.NewService(sessions, tabUsage, leaderboard, log)
	chatService := chat.NewService(conversations, messages, friendships, log)

	return &Container{
		Config:       cfg,
		Tracker:      tracker,
		FlushService: flushService,
		Registry:     registry,

		AccountHandler:   handlers.NewAccountHandler(accounts, log),
		FriendHandler:    handlers.NewFriendHandler(socialService, log),
		AnalyticsHandler: handlers.NewAnalyticsHandler(analyticsService, flushService, log),
		ChatHandler:      handlers.NewChatHandler(chatService, log),
		Gateway:          gateway,
		AuthMiddleware:   middleware.NewAuthMiddleware(jwtService, log),

		logger: log,
	}
}
