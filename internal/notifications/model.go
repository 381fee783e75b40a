package notifications

import (
	"time"

	"gorm.io/datatypes"
)

// Type discriminates notification payloads.
type Type string

const (
	TypeMention Type = "mention"
	TypeComment Type = "comment"
	TypeFollow  Type = "follow"
)

// ContextType names the kind of content item a notification refers to.
type ContextType string

const (
	ContextPost    ContextType = "post"
	ContextComment ContextType = "comment"
)

// Sender identifies the user whose action produced a notification.
type Sender struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
}

// Context references the content item a notification is about.
type Context struct {
	Type     ContextType `json:"type"`
	ID       uint64      `json:"id"`
	AuthorID *uint64     `json:"author_id,omitempty"`
}

// Data is the persisted display payload.
type Data struct {
	Sender  Sender   `json:"sender"`
	Context *Context `json:"context,omitempty"`
}

// Notification is a durable record addressed to exactly one recipient. ContextType and ContextID
// mirror Data.Context so cascades can match on indexed columns.
type Notification struct {
	ID          uint64                   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RecipientID uint64                   `gorm:"column:recipient_id;not null;index:idx_notifications_recipient_read,priority:1" json:"recipient_id"`
	Type        Type                     `gorm:"column:type;size:16;not null" json:"type"`
	Data        datatypes.JSONType[Data] `gorm:"column:data;not null" json:"data"`
	ContextType ContextType              `gorm:"column:context_type;size:16;not null;default:'';index:idx_notifications_context,priority:1" json:"-"`
	ContextID   uint64                   `gorm:"column:context_id;not null;default:0;index:idx_notifications_context,priority:2" json:"-"`
	ReadAt      *time.Time               `gorm:"column:read_at;index:idx_notifications_recipient_read,priority:2" json:"read_at"`
	CreatedAt   time.Time                `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Notification) TableName() string {
	return "notifications"
}

// Unread reports whether the notification has not been read yet.
func (n Notification) Unread() bool {
	return n.ReadAt == nil
}

// Payload returns the decoded display payload.
func (n Notification) Payload() Data {
	return n.Data.Data()
}

func newNotification(recipientID uint64, kind Type, data Data) Notification {
	notification := Notification{
		RecipientID: recipientID,
		Type:        kind,
		Data:        datatypes.NewJSONType(data),
	}
	if data.Context != nil {
		notification.ContextType = data.Context.Type
		notification.ContextID = data.Context.ID
	}
	return notification
}
