package content

import (
	"time"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/mentions"
)

// Post is a short text entry authored by a user.
type Post struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	AuthorID  uint64    `gorm:"column:author_id;not null;index" json:"author_id"`
	Body      string    `gorm:"column:body;type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Post) TableName() string {
	return "posts"
}

// Ref returns the tagged reference used by mentions and notifications.
func (p Post) Ref() mentions.ContentRef {
	return mentions.PostRef(p.ID)
}

// Comment is a reply to a post.
type Comment struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	PostID    uint64    `gorm:"column:post_id;not null;index" json:"post_id"`
	AuthorID  uint64    `gorm:"column:author_id;not null;index" json:"author_id"`
	Body      string    `gorm:"column:body;type:text;not null" json:"body"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "comments"
}

// Ref returns the tagged reference used by mentions and notifications.
func (c Comment) Ref() mentions.ContentRef {
	return mentions.CommentRef(c.ID)
}
