// Package realtime publishes live counter updates to subscribers of named channels.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	// EventUnreadCountUpdated is emitted on a recipient's private channel.
	EventUnreadCountUpdated = "unread-count-updated"

	// EventPendingReportsCountUpdated is emitted on the shared moderation channel.
	EventPendingReportsCountUpdated = "pending-reports-count-updated"

	// ChannelReports is the shared channel watched by moderators.
	ChannelReports = "reports"

	notificationsChannelPrefix = "notifications."
)

var errInvalidMessage = errors.New("realtime: invalid message")

// NotificationsChannel names the private channel of a recipient.
func NotificationsChannel(recipientID uint64) string {
	return fmt.Sprintf("%s%d", notificationsChannelPrefix, recipientID)
}

// IsNotificationsChannel reports whether channel is a private notifications channel.
func IsNotificationsChannel(channel string) bool {
	return strings.HasPrefix(channel, notificationsChannelPrefix)
}

// Event is a live update addressed to a channel.
type Event interface {
	Channel() string
	Name() string
}

// UnreadCountUpdated carries a recipient's recomputed unread notification count.
type UnreadCountUpdated struct {
	RecipientID uint64 `json:"recipient_id"`
	UnreadCount int64  `json:"unread_count"`
}

func (e UnreadCountUpdated) Channel() string { return NotificationsChannel(e.RecipientID) }
func (e UnreadCountUpdated) Name() string    { return EventUnreadCountUpdated }

// PendingReportsCountUpdated carries the global number of open reports.
type PendingReportsCountUpdated struct {
	PendingCount int64 `json:"pending_count"`
}

func (e PendingReportsCountUpdated) Channel() string { return ChannelReports }
func (e PendingReportsCountUpdated) Name() string    { return EventPendingReportsCountUpdated }

// Broadcaster delivers events. Implementations must be safe for concurrent use.
type Broadcaster interface {
	Broadcast(ctx context.Context, event Event) error
}

// Message is the serialized form of an event as it travels to subscribers and brokers.
type Message struct {
	ID        string          `json:"id"`
	Channel   string          `json:"channel"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage serializes event into a Message stamped with now.
func NewMessage(event Event, now time.Time) (Message, error) {
	if event == nil || event.Channel() == "" || event.Name() == "" {
		return Message{}, errInvalidMessage
	}
	data, err := json.Marshal(event)
	if err != nil {
		return Message{}, err
	}
	return Message{
		ID:        uuid.NewString(),
		Channel:   event.Channel(),
		Event:     event.Name(),
		Data:      data,
		Timestamp: now.UTC(),
	}, nil
}

// Encode renders the message as its JSON wire envelope.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses a wire envelope produced by Encode.
func DecodeMessage(raw []byte) (Message, error) {
	var message Message
	if err := json.Unmarshal(raw, &message); err != nil {
		return Message{}, fmt.Errorf("%w: %v", errInvalidMessage, err)
	}
	if message.Channel == "" || message.Event == "" {
		return Message{}, errInvalidMessage
	}
	return message, nil
}
