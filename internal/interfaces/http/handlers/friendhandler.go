package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"glimpse/internal/application/social"
	domainFriendship "glimpse/internal/domain/friendship"
	apperrors "glimpse/internal/shared/errors"
	"glimpse/internal/shared/logger"
	"glimpse/internal/shared/utils"
)

type FriendRequestRequest struct {
	Username string `json:"username" validate:"required"`
}

type CloseFriendRequest struct {
	Close bool `json:"close"`
}

// FriendshipResponse is the API projection of a friendship edge.
type FriendshipResponse struct {
	ID          uint   `json:"id"`
	UserID      uint   `json:"userId"`
	FriendID    uint   `json:"friendId"`
	Status      string `json:"status"`
	CloseFriend bool   `json:"closeFriend"`
}

func toFriendshipResponse(f *domainFriendship.Friendship) FriendshipResponse {
	return FriendshipResponse{
		ID:          f.ID,
		UserID:      f.UserID,
		FriendID:    f.FriendID,
		Status:      string(f.Status),
		CloseFriend: f.CloseFriend,
	}
}

type FriendHandler struct {
	social *social.Service
	logger logger.Interface
}

func NewFriendHandler(socialService *social.Service, log logger.Interface) *FriendHandler {
	return &FriendHandler{social: socialService, logger: log.Named("http.friend")}
}

func (h *FriendHandler) CreateRequest(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	var req FriendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	request, err := h.social.Request(c.Request.Context(), userID, req.Username)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.CreatedResponse(c, toFriendshipResponse(request))
}

func (h *FriendHandler) AcceptRequest(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	requestID, err := parseIDParam(c, "id")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	request, err := h.social.Accept(c.Request.Context(), userID, requestID)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.OKResponse(c, toFriendshipResponse(request))
}

func (h *FriendHandler) List(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	friends, err := h.social.List(c.Request.Context(), userID)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.OKResponse(c, friends)
}

func (h *FriendHandler) ListPending(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	pending, err := h.social.ListPending(c.Request.Context(), userID)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	responses := make([]FriendshipResponse, 0, len(pending))
	for _, p := range pending {
		responses = append(responses, toFriendshipResponse(p))
	}
	utils.OKResponse(c, responses)
}

func (h *FriendHandler) SetCloseFriend(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	friendID, err := parseIDParam(c, "id")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	var req CloseFriendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}

	edge, err := h.social.SetCloseFriend(c.Request.Context(), userID, friendID, req.Close)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.OKResponse(c, toFriendshipResponse(edge))
}

func parseIDParam(c *gin.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, apperrors.NewValidationError("invalid " + name + " parameter")
	}
	return uint(id), nil
}
