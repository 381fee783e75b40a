package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// authorizeChannel allows a user's own notifications channel, and the reports channel for moderators.
func authorizeChannel(user users.User, channel string) bool {
	switch {
	case channel == realtime.NotificationsChannel(user.ID):
		return true
	case channel == realtime.ChannelReports:
		return user.CanModerate()
	default:
		return false
	}
}

func (h *httpHandler) handleStream(c *gin.Context) {
	user := currentUser(c)
	channel := strings.TrimSpace(c.Query("channel"))
	if channel == "" {
		channel = realtime.NotificationsChannel(user.ID)
	}
	if !authorizeChannel(user, channel) {
		c.JSON(http.StatusForbidden, gin.H{"error": "channel_forbidden"})
		return
	}

	ctx := c.Request.Context()
	stream, unsubscribe := h.realtime.Subscribe(ctx, channel)
	defer unsubscribe()

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	if current, err := h.currentCounter(ctx, user, channel); err != nil {
		h.logger.Warn("initial counter unavailable", zap.String("channel", channel), zap.Error(err))
	} else if err := writeEvent(c.Writer, current); err != nil {
		return
	}
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-stream:
			if !ok {
				return
			}
			if err := writeEvent(c.Writer, message); err != nil {
				return
			}
			c.Writer.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(c.Writer, ": heartbeat\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

// currentCounter renders the counter a new subscriber would otherwise wait for until the next change.
func (h *httpHandler) currentCounter(ctx context.Context, user users.User, channel string) (realtime.Message, error) {
	var event realtime.Event
	if channel == realtime.ChannelReports {
		count, err := h.services.Moderation.PendingCount(ctx)
		if err != nil {
			return realtime.Message{}, err
		}
		event = realtime.PendingReportsCountUpdated{PendingCount: count}
	} else {
		count, err := h.services.Notifications.UnreadCount(ctx, user.ID)
		if err != nil {
			return realtime.Message{}, err
		}
		event = realtime.UnreadCountUpdated{RecipientID: user.ID, UnreadCount: count}
	}
	return realtime.NewMessage(event, time.Now())
}

func writeEvent(w io.Writer, message realtime.Message) error {
	_, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", message.ID, message.Event, message.Data)
	return err
}
