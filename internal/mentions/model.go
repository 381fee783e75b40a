package mentions

import (
	"time"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/notifications"
)

// ContentRef is a tagged reference to a post or comment.
type ContentRef struct {
	Type notifications.ContextType
	ID   uint64
}

// PostRef references a post.
func PostRef(id uint64) ContentRef {
	return ContentRef{Type: notifications.ContextPost, ID: id}
}

// CommentRef references a comment.
func CommentRef(id uint64) ContentRef {
	return ContentRef{Type: notifications.ContextComment, ID: id}
}

// Context converts the reference into a notification context.
func (r ContentRef) Context() notifications.Context {
	return notifications.Context{Type: r.Type, ID: r.ID}
}

// Mention records that a content item mentions a user. At most one row exists per
// (content item, user) pair.
type Mention struct {
	ID          uint64                    `gorm:"column:id;primaryKey;autoIncrement"`
	ContentType notifications.ContextType `gorm:"column:content_type;size:16;not null;uniqueIndex:idx_mentions_content_user,priority:1"`
	ContentID   uint64                    `gorm:"column:content_id;not null;uniqueIndex:idx_mentions_content_user,priority:2"`
	UserID      uint64                    `gorm:"column:user_id;not null;uniqueIndex:idx_mentions_content_user,priority:3;index:idx_mentions_user"`
	CreatedAt   time.Time                 `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Mention) TableName() string {
	return "mentions"
}
