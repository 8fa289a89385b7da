// Package handlers holds the gin HTTP handlers for the REST API.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"glimpse/internal/application/account"
	domainUser "glimpse/internal/domain/user"
	"glimpse/internal/shared/logger"
	"glimpse/internal/shared/utils"
)

type SignupRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"displayName" validate:"max=64"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type UpdatePrivacyRequest struct {
	TabPrivacy    string `json:"tabPrivacy" validate:"required,oneof=everyone friends_only close_friends_only private"`
	OnlinePrivacy string `json:"onlinePrivacy" validate:"required,oneof=public private"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=128"`
}

// UserResponse is the public projection of a user.
type UserResponse struct {
	ID                 uint       `json:"id"`
	Username           string     `json:"username"`
	Email              string     `json:"email"`
	DisplayName        string     `json:"displayName"`
	TabPrivacy         string     `json:"tabPrivacy"`
	OnlinePrivacy      string     `json:"onlinePrivacy"`
	TotalOnlineSeconds int64      `json:"totalOnlineSeconds"`
	LastOnlineAt       *time.Time `json:"lastOnlineAt,omitempty"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

func toUserResponse(u *domainUser.User) UserResponse {
	return UserResponse{
		ID:                 u.ID,
		Username:           u.Username,
		Email:              u.Email,
		DisplayName:        u.DisplayName,
		TabPrivacy:         string(u.TabPrivacy),
		OnlinePrivacy:      string(u.OnlinePrivacy),
		TotalOnlineSeconds: u.TotalOnlineSeconds,
		LastOnlineAt:       u.LastOnlineAt,
	}
}

type AccountHandler struct {
	accounts *account.Service
	logger   logger.Interface
}

func NewAccountHandler(accounts *account.Service, log logger.Interface) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: log.Named("http.account")}
}

func (h *AccountHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	result, err := h.accounts.Signup(c.Request.Context(), req.Username, req.Email, req.DisplayName, req.Password)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.CreatedResponse(c, authResponse{Token: result.Token, User: toUserResponse(result.User)})
}

func (h *AccountHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	result, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.OKResponse(c, authResponse{Token: result.Token, User: toUserResponse(result.User)})
}

func (h *AccountHandler) Me(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	u, err := h.accounts.Get(c.Request.Context(), userID)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.OKResponse(c, toUserResponse(u))
}

func (h *AccountHandler) GetPrivacy(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	u, err := h.accounts.Get(c.Request.Context(), userID)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.OKResponse(c, gin.H{
		"tabPrivacy":    u.TabPrivacy,
		"onlinePrivacy": u.OnlinePrivacy,
	})
}

func (h *AccountHandler) UpdatePrivacy(c *gin.Context) {
	userID, err := utils.CurrentUserID(c)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	var req UpdatePrivacyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	u, err := h.accounts.UpdatePrivacy(c.Request.Context(), userID, req.TabPrivacy, req.OnlinePrivacy)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.OKResponse(c, toUserResponse(u))
}

func (h *AccountHandler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	if err := h.accounts.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "if the email is registered, a reset code has been sent", nil)
}

func (h *AccountHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	if err := h.accounts.ResetPassword(c.Request.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "password updated", nil)
}
