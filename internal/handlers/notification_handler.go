package handlers

import (
	"net/http"
	"strconv"

	"github.com/anonto42/nano-midea/socialgraph/internal/services"
	"github.com/labstack/echo/v4"
)

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	notifications *services.NotificationService
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.GET("/notifications/grouped", h.GetGroupedNotifications)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.PUT("/notifications/:id/read", h.MarkAsRead)
	g.PUT("/notifications/read-all", h.MarkAllAsRead)
}

// GetNotifications returns a page of the caller's notifications and marks them read.
// With peek=true the page is returned without acknowledging it.
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	page, limit := pageParams(c, 20)
	peek, _ := strconv.ParseBool(c.QueryParam("peek"))

	fetch := h.notifications.FetchAndAcknowledge
	if peek {
		fetch = h.notifications.List
	}
	items, total, err := fetch(c.Request().Context(), userID, page, limit)
	if err != nil {
		return httpError(c, err)
	}
	return paged(c, "notifications", items, page, limit, total)
}

// GetGroupedNotifications returns notifications bucketed by age
func (h *NotificationHandler) GetGroupedNotifications(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	grouped, err := h.notifications.Grouped(ctx, userID)
	if err != nil {
		return httpError(c, err)
	}
	unread, err := h.notifications.UnreadCount(ctx, userID)
	if err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{
		"notifications": grouped,
		"unreadCount":   unread,
	})
}

// GetUnreadCount returns the number of unread notifications
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	count, err := h.notifications.UnreadCount(c.Request().Context(), userID)
	if err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"count": count})
}

// MarkAsRead marks a single notification as read
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	id, err := parseUintParam(c, "id", "notification")
	if err != nil {
		return err
	}
	if err := h.notifications.MarkRead(c.Request().Context(), userID, id); err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"message": "Notification marked as read"})
}

// MarkAllAsRead marks all notifications as read
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	n, err := h.notifications.MarkAllRead(c.Request().Context(), userID)
	if err != nil {
		return httpError(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"updated": n})
}
