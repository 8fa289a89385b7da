package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"glimpse/internal/application/chat"
	domainConversation "glimpse/internal/domain/conversation"
	"glimpse/internal/shared/logger"
	"glimpse/internal/shared/utils"
)

type StartConversationRequest struct {
	FriendID uint `json:"friendId" validate:"required,min=1"`
}

type SendMessageRequest struct {
	Body string `json:"body" validate:"required"`
}

type ConversationResponse struct {
	ID        uint      `json:"id"`
	UserAID   uint      `json:"userAId"`
	UserBID   uint      `json:"userBId"`
	CreatedAt time.Time `json:"createdAt"`
}

type MessageResponse struct {
	ID             uint      `json:"id"`
	ConversationID uint      `json:"conversationId"`
	SenderID       uint      `json:"senderId"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toConversationResponse(conv *domainConversation.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:        conv.ID,
		UserAID:   conv.UserAID,
		UserBID:   conv.UserBID,
		CreatedAt: conv.CreatedAt,
	}
}

func toMessageResponse(m *domainConversation.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
	}
}

type ChatHandler struct {
	chat   *chat.Service
	logger logger.Interface
}

func NewChatHandler(chatService *chat.Service, log logger.Interface) *ChatHandler {
	return &ChatHandler{chat: chatService, logger: log.Named("http.chat")}
}

func (h *ChatHandler) Start(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	var req StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	conv, err := h.chat.Start(c.Request.Context(), userID, req.FriendID)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.CreatedResponse(c, toConversationResponse(conv))
}

func (h *ChatHandler) List(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	conversations, err := h.chat.List(c.Request.Context(), userID)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	responses := make([]ConversationResponse, 0, len(conversations))
	for _, conv := range conversations {
		responses = append(responses, toConversationResponse(conv))
	}
	utils.OKResponse(c, responses)
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	msg, err := h.chat.Send(c.Request.Context(), userID, conversationID, req.Body)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.CreatedResponse(c, toMessageResponse(msg))
}

func (h *ChatHandler) History(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	conversationID, err := parseIDParam(c, "id")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	messages, err := h.chat.History(c.Request.Context(), userID, conversationID, limit)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	responses := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		responses = append(responses, toMessageResponse(m))
	}
	utils.OKResponse(c, responses)
}
