package users

import (
	"time"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/notifications"
)

// Role grants moderation capabilities.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// User is the canonical account that authors content and receives notifications.
type User struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Username    string    `gorm:"column:username;size:32;not null;uniqueIndex" json:"username"`
	DisplayName string    `gorm:"column:display_name;size:320" json:"display_name"`
	Role        Role      `gorm:"column:role;size:16;not null;default:user" json:"role"`
	CreatedAt   time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// CanModerate reports whether the user may act on reports and other users' content.
func (u User) CanModerate() bool {
	return u.Role == RoleModerator || u.Role == RoleAdmin
}

// Sender returns the identity embedded in notifications the user triggers.
func (u User) Sender() notifications.Sender {
	return notifications.Sender{ID: u.ID, Username: u.Username}
}

// Identity maps a provider-specific login onto a canonical user.
type Identity struct {
	Provider   string    `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject    string    `gorm:"column:subject;primaryKey;size:190;not null"`
	UserID     uint64    `gorm:"column:user_id;not null;index"`
	Email      string    `gorm:"column:user_email;size:320"`
	LastSeenAt time.Time `gorm:"column:last_seen_at"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing user identities.
func (Identity) TableName() string {
	return "user_identities"
}

// Block records that BlockerID blocked BlockedID.
type Block struct {
	BlockerID uint64    `gorm:"column:blocker_id;primaryKey"`
	BlockedID uint64    `gorm:"column:blocked_id;primaryKey;index:idx_user_blocks_blocked"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Block) TableName() string {
	return "user_blocks"
}

// Follow records that FollowerID follows FolloweeID.
type Follow struct {
	FollowerID uint64    `gorm:"column:follower_id;primaryKey"`
	FolloweeID uint64    `gorm:"column:followee_id;primaryKey;index:idx_user_follows_followee"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Follow) TableName() string {
	return "user_follows"
}
