package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/notifications"
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleListNotifications(c *gin.Context) {
	limit, beforeID, ok := parseListQuery(c)
	if !ok {
		return
	}
	listed, err := h.services.Notifications.List(c.Request.Context(), currentUser(c).ID, notifications.ListOptions{
		UnreadOnly: c.Query("unread") == "true",
		Limit:      limit,
		BeforeID:   beforeID,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if listed == nil {
		listed = []notifications.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": listed})
}

func (h *httpHandler) handleUnreadCount(c *gin.Context) {
	count, err := h.services.Notifications.UnreadCount(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

func (h *httpHandler) handleMarkRead(c *gin.Context) {
	notificationID, ok := parseIDParam(c)
	if !ok {
		return
	}
	notification, err := h.services.Notifications.MarkRead(c.Request.Context(), currentUser(c).ID, notificationID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, notification)
}

func (h *httpHandler) handleMarkAllRead(c *gin.Context) {
	updated, err := h.services.Notifications.MarkAllRead(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}
