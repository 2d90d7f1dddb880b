package handlers

import (
	"net/http"

	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	notificationRepository repositories.NotificationRepository
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notifRepo repositories.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{notificationRepository: notifRepo}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.GET("/notifications/grouped", h.GetGroupedNotifications)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.PUT("/notifications/read-all", h.MarkAllAsRead)
	g.PUT("/notifications/:id/read", h.MarkAsRead)
	g.GET("/notifications/preferences", h.GetPreferences)
	g.PUT("/notifications/preferences", h.SetPreferences)
}

// GetNotifications returns the caller's newest notifications
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	notifications, err := h.notificationRepository.List(c.Request().Context(), id.UID, limitParam(c, 20, 100))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, notifications)
}

// GetGroupedNotifications returns the inbox grouped by age
func (h *NotificationHandler) GetGroupedNotifications(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	grouped, err := h.notificationRepository.GetGrouped(c.Request().Context(), id.UID)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, grouped)
}

// GetUnreadCount returns the number of unread notifications
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	count, err := h.notificationRepository.GetUnreadCount(c.Request().Context(), id.UID)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"unread_count": count})
}

// MarkAsRead marks one notification as read
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	if err := h.notificationRepository.MarkAsRead(c.Request().Context(), id.UID, c.Param("id")); err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Notification marked as read"})
}

// MarkAllAsRead marks every unread notification as read
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	marked, err := h.notificationRepository.MarkAllAsRead(c.Request().Context(), id.UID)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "All notifications marked as read", "marked": marked})
}

// GetPreferences returns the caller's notification preferences. Keys that are
// absent are enabled.
func (h *NotificationHandler) GetPreferences(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	prefs, err := h.notificationRepository.GetPreferences(c.Request().Context(), id.UID)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, prefs)
}

// SetPreferences replaces the caller's notification preferences
func (h *NotificationHandler) SetPreferences(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	var prefs models.NotificationPreferences
	if err := c.Bind(&prefs); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := h.notificationRepository.SetPreferences(c.Request().Context(), id.UID, prefs); err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, prefs)
}
