package hashtags

import "time"

// Hashtag is a normalized lowercase tag shared by every post that uses it.
type Hashtag struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"column:name;size:100;not null;uniqueIndex:idx_hashtags_name" json:"name"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Hashtag) TableName() string {
	return "hashtags"
}

// PostHashtag associates a post with a hashtag.
type PostHashtag struct {
	PostID    uint64 `gorm:"column:post_id;primaryKey"`
	HashtagID uint64 `gorm:"column:hashtag_id;primaryKey;index:idx_post_hashtags_hashtag"`
}

// TableName provides the explicit table binding for GORM.
func (PostHashtag) TableName() string {
	return "post_hashtags"
}
