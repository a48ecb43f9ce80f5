package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"vehicle-auction/internal/biddingerrors"
	users "vehicle-auction/internal/userService"
	"vehicle-auction/services/bidding/helpers"
	"vehicle-auction/utils"
)

const userNotFound = "User not found"

type UserHandler struct {
	service UserServiceInterface
}

func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// RegisterHandler handles POST /auth/register
func (h *UserHandler) RegisterHandler(c *gin.Context) {
	var req helpers.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RegisterHandler", err)
		return
	}

	user, err := h.service.Register(c.Request.Context(), users.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		helpers.RespondError(c, "RegisterHandler", err, map[string]any{"username": req.Username})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewRegisteredResponse(user), "user registered successfully")
	helpers.LogSuccess("RegisterHandler", "user registered successfully", map[string]any{
		"user_id": user.ID.String(),
		"role":    string(user.Role),
	})
}

// LoginHandler handles POST /auth/login
func (h *UserHandler) LoginHandler(c *gin.Context) {
	var req helpers.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "LoginHandler", err)
		return
	}

	session, err := h.service.Login(c.Request.Context(), req.Identifier(), req.Password)
	if err != nil {
		helpers.RespondError(c, "LoginHandler", err, nil)
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewSessionResponse(session.Access, session.Refresh, session.User), "login successful")
	helpers.LogSuccess("LoginHandler", "login successful", map[string]any{"user_id": session.User.ID.String()})
}

// RefreshHandler handles POST /auth/refresh
func (h *UserHandler) RefreshHandler(c *gin.Context) {
	var req helpers.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RefreshHandler", err)
		return
	}

	access, err := h.service.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		helpers.RespondError(c, "RefreshHandler", err, nil)
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.TokenResponse{Access: access}, "token refreshed")
}

// RegisterDeviceHandler handles POST /notifications/devices
func (h *UserHandler) RegisterDeviceHandler(c *gin.Context) {
	user, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondUnauthenticated(c)
		return
	}

	var req helpers.DeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RegisterDeviceHandler", err)
		return
	}

	device, err := h.service.RegisterDevice(c.Request.Context(), user, req.ExpoPushToken)
	if err != nil {
		helpers.RespondError(c, "RegisterDeviceHandler", err, map[string]any{"user_id": user.ID.String()})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.DeviceResponse{DeviceID: device.ID.String()}, "device registered")
	helpers.LogSuccess("RegisterDeviceHandler", "device registered", map[string]any{
		"user_id":   user.ID.String(),
		"device_id": device.ID.String(),
	})
}

// ListUsersHandler handles GET /admin/users
func (h *UserHandler) ListUsersHandler(c *gin.Context) {
	admin, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondUnauthenticated(c)
		return
	}

	list, err := h.service.ListUsers(c.Request.Context(), admin)
	if err != nil {
		helpers.RespondError(c, "ListUsersHandler", err, nil)
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewUserResponses(list), "users retrieved successfully")
}

// CreateUserHandler handles POST /admin/users
func (h *UserHandler) CreateUserHandler(c *gin.Context) {
	admin, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondUnauthenticated(c)
		return
	}

	var req helpers.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateUserHandler", err)
		return
	}

	user, err := h.service.CreateUser(c.Request.Context(), admin, users.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		helpers.RespondError(c, "CreateUserHandler", err, map[string]any{"admin_id": admin.ID.String()})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewUserResponse(user), "user created successfully")
	helpers.LogSuccess("CreateUserHandler", "user created successfully", map[string]any{
		"admin_id": admin.ID.String(),
		"user_id":  user.ID.String(),
	})
}

// UpdateUserHandler handles PATCH /admin/users/:id
func (h *UserHandler) UpdateUserHandler(c *gin.Context) {
	admin, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondUnauthenticated(c)
		return
	}
	id, ok := helpers.PathID(c, "id", userNotFound)
	if !ok {
		return
	}

	var req helpers.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "UpdateUserHandler", err)
		return
	}

	user, err := h.service.UpdateUser(c.Request.Context(), admin, id, users.UpdateUserInput{Role: req.Role, Status: req.Status})
	if err != nil {
		helpers.RespondError(c, "UpdateUserHandler", err, map[string]any{"admin_id": admin.ID.String(), "user_id": id.String()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.NewUserResponse(user), "user updated successfully")
	helpers.LogSuccess("UpdateUserHandler", "user updated successfully", map[string]any{
		"admin_id": admin.ID.String(),
		"user_id":  id.String(),
	})
}

// InviteHandler handles POST /auth/invite
func (h *UserHandler) InviteHandler(c *gin.Context) {
	admin, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondUnauthenticated(c)
		return
	}

	var req helpers.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "InviteHandler", err)
		return
	}

	if err := h.service.Invite(c.Request.Context(), admin, strings.TrimSpace(req.Email), req.Role); err != nil {
		helpers.RespondError(c, "InviteHandler", err, map[string]any{"admin_id": admin.ID.String()})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, nil, "Invitation recorded")
}

// ResetPasswordHandler handles POST /auth/reset
func (h *UserHandler) ResetPasswordHandler(c *gin.Context) {
	admin, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondUnauthenticated(c)
		return
	}

	var req helpers.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "ResetPasswordHandler", err)
		return
	}
	id, err := uuid.Parse(req.UserID)
	if err != nil {
		helpers.RespondError(c, "ResetPasswordHandler", biddingerrors.NotFound(userNotFound), map[string]any{"user_id": req.UserID})
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), admin, id); err != nil {
		helpers.RespondError(c, "ResetPasswordHandler", err, map[string]any{"admin_id": admin.ID.String(), "user_id": id.String()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, nil, "Password reset dispatched")
	helpers.LogSuccess("ResetPasswordHandler", "password reset dispatched", map[string]any{
		"admin_id": admin.ID.String(),
		"user_id":  id.String(),
	})
}
