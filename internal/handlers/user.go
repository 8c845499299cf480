package handlers

import (
	"net/http"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/services"
	"github.com/labstack/echo/v4"
)

// UserHandler handles HTTP requests related to users
type UserHandler struct {
	users *services.UserService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// RegisterProfileRoutes registers user profile-related routes
func (h *UserHandler) RegisterProfileRoutes(g *echo.Group) {
	g.GET("/profile", h.GetProfile)
	g.PUT("/profile", h.UpdateProfile)
	g.DELETE("/profile", h.DeleteUser)
	g.PUT("/profile/device-token", h.SetDeviceToken)
	g.GET("/users/search", h.SearchUsers)
	g.GET("/users/:username", h.GetUser)
}

// GetUser returns another user's profile with the caller's follow status towards them
func (h *UserHandler) GetUser(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	profile, err := h.users.GetProfile(c.Request().Context(), userID, c.Param("username"))
	if err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusOK, profile)
}

// GetProfile retrieves the authenticated user's profile
func (h *UserHandler) GetProfile(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	user, err := h.users.GetByID(c.Request().Context(), userID)
	if err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusOK, user)
}

// UpdateProfile updates the authenticated user's profile
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req models.UpdateUserRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.users.UpdateProfile(c.Request().Context(), userID, req)
	if err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusOK, user)
}

// SetDeviceToken stores the FCM token pushes are sent to
func (h *UserHandler) SetDeviceToken(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req models.DeviceTokenRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.users.SetDeviceToken(c.Request().Context(), userID, req.Token); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteUser deletes the authenticated user's account
func (h *UserHandler) DeleteUser(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	if err := h.users.DeleteAccount(c.Request().Context(), userID); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SearchUsers searches users by username or name
func (h *UserHandler) SearchUsers(c echo.Context) error {
	page, limit := pageParams(c, 20)
	users, total, err := h.users.Search(c.Request().Context(), c.QueryParam("q"), page, limit)
	if err != nil {
		return httpError(c, err)
	}
	return paged(c, "users", users, page, limit, total)
}
