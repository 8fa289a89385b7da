package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"glimpse/internal/interfaces/http/middleware"
	"glimpse/internal/shared/logger"
)

// NewRouter builds the gin engine with the full route table.
func NewRouter(c *Container, log logger.Interface) *gin.Engine {
	gin.SetMode(ginMode(c.Config.Server.Mode))

	router := gin.New()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logger(log))
	router.Use(middleware.CORS(c.Config.Server.AllowedOrigins))

	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Realtime gateway; auth happens in-band on the first message.
	router.GET("/ws", c.Gateway.Handle)

	api := router.Group("/api")
	{
		api.POST("/users/signup", c.AccountHandler.Signup)
		api.POST("/users/login", c.AccountHandler.Login)
		api.POST("/password/forgot", c.AccountHandler.ForgotPassword)
		api.POST("/password/reset", c.AccountHandler.ResetPassword)

		authed := api.Group("")
		authed.Use(c.AuthMiddleware.RequireAuth())
		{
			authed.GET("/users/me", c.AccountHandler.Me)
			authed.GET("/profile/privacy", c.AccountHandler.GetPrivacy)
			authed.PUT("/profile/privacy", c.AccountHandler.UpdatePrivacy)

			authed.POST("/friends/requests", c.FriendHandler.CreateRequest)
			authed.GET("/friends/requests", c.FriendHandler.ListPending)
			authed.POST("/friends/requests/:id/accept", c.FriendHandler.AcceptRequest)
			authed.GET("/friends", c.FriendHandler.List)
			authed.PUT("/friends/:id/close", c.FriendHandler.SetCloseFriend)

			authed.POST("/analytics/flush", c.AnalyticsHandler.Flush)
			authed.GET("/analytics/presence/today", c.AnalyticsHandler.PresenceToday)
			authed.GET("/analytics/presence/weekly", c.AnalyticsHandler.PresenceWeekly)
			authed.GET("/analytics/tab-usage/today", c.AnalyticsHandler.TabUsageToday)
			authed.GET("/analytics/tab-usage/weekly", c.AnalyticsHandler.TabUsageWeekly)
			authed.GET("/leaderboard/:month", c.AnalyticsHandler.Leaderboard)

			authed.POST("/conversations", c.ChatHandler.Start)
			authed.GET("/conversations", c.ChatHandler.List)
			authed.POST("/conversations/:id/messages", c.ChatHandler.SendMessage)
			authed.GET("/conversations/:id/messages", c.ChatHandler.History)
		}
	}

	return router
}

func ginMode(mode string) string {
	switch mode {
	case "release", "production":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
