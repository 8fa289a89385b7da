package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"glimpse/internal/application/analytics"
	"glimpse/internal/application/presence"
	"glimpse/internal/shared/logger"
	"glimpse/internal/shared/utils"
)

type AnalyticsHandler struct {
	analytics *analytics.Service
	flusher   *presence.FlushService
	logger    logger.Interface
}

func NewAnalyticsHandler(analyticsService *analytics.Service, flusher *presence.FlushService, log logger.Interface) *AnalyticsHandler {
	return &AnalyticsHandler{
		analytics: analyticsService,
		flusher:   flusher,
		logger:    log.Named("http.analytics"),
	}
}

// Flush drains the caller's ephemeral state into the durable store on
// demand, without waiting for the next scheduler tick.
func (h *AnalyticsHandler) Flush(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	if err := h.flusher.FlushUser(c.Request.Context(), userID); err != nil {
		h.logger.Errorw("manual flush failed", "user_id", userID, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.OKResponse(c, gin.H{"flushed": true})
}

func (h *AnalyticsHandler) PresenceToday(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	summary, err := h.analytics.PresenceToday(c.Request.Context(), userID)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.OKResponse(c, summary)
}

func (h *AnalyticsHandler) PresenceWeekly(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	week, err := h.analytics.PresenceWeekly(c.Request.Context(), userID)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.OKResponse(c, week)
}

func (h *AnalyticsHandler) TabUsageToday(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	usage, err := h.analytics.TabUsageToday(c.Request.Context(), userID)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.OKResponse(c, usage)
}

func (h *AnalyticsHandler) TabUsageWeekly(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	usage, err := h.analytics.TabUsageWeekly(c.Request.Context(), userID)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.OKResponse(c, usage)
}

func (h *AnalyticsHandler) Leaderboard(c *gin.Context) {
	month := c.Param("month")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	entries, err := h.analytics.Leaderboard(c.Request.Context(), month, limit)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.OKResponse(c, entries)
}
