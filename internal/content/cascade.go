package content

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/mentions"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/svcerr"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/txn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingMentions      = errors.New("mention detacher is required")
	errMissingNotifications = errors.New("notification purger is required")
	errMissingHashtags      = errors.New("hashtag detacher is required")
)

// MentionDetacher removes the Mention rows of a content item.
type MentionDetacher interface {
	Detach(ctx context.Context, item mentions.ContentRef) (int64, error)
}

// NotificationPurger removes notifications that reference a content item.
type NotificationPurger interface {
	DeleteByContext(ctx context.Context, contextType notifications.ContextType, contextID uint64, types ...notifications.Type) (int64, error)
}

// HashtagDetacher removes the tags of a post and deletes tags left unused.
type HashtagDetacher interface {
	DetachAndClean(ctx context.Context, postID uint64) error
}

// CascaderConfig describes the dependencies of the Cascader.
type CascaderConfig struct {
	Database      *gorm.DB
	Mentions      MentionDetacher
	Notifications NotificationPurger
	Hashtags      HashtagDetacher
	Logger        *zap.Logger
}

// Cascader removes the dependent rows of a post or comment. It must run inside the transaction
// that deletes the content row and before that delete; any error aborts the transaction.
type Cascader struct {
	db            *gorm.DB
	mentions      MentionDetacher
	notifications NotificationPurger
	hashtags      HashtagDetacher
	logger        *zap.Logger
}

// NewCascader constructs a Cascader.
func NewCascader(cfg CascaderConfig) (*Cascader, error) {
	const operation = "content.cascader.new"
	switch {
	case cfg.Database == nil:
		return nil, svcerr.New(operation, "missing_database", errMissingDatabase)
	case cfg.Mentions == nil:
		return nil, svcerr.New(operation, "missing_mentions", errMissingMentions)
	case cfg.Notifications == nil:
		return nil, svcerr.New(operation, "missing_notifications", errMissingNotifications)
	case cfg.Hashtags == nil:
		return nil, svcerr.New(operation, "missing_hashtags", errMissingHashtags)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Cascader{
		db:            cfg.Database,
		mentions:      cfg.Mentions,
		notifications: cfg.Notifications,
		hashtags:      cfg.Hashtags,
		logger:        logger,
	}, nil
}

// DeleteComment removes the comment's mentions and the mention notifications that point at it.
// Comment notifications sent to the post author reference the post and are left in place.
func (c *Cascader) DeleteComment(ctx context.Context, comment Comment) error {
	const operation = "content.cascade_comment"
	if _, err := c.mentions.Detach(ctx, comment.Ref()); err != nil {
		return c.fail(operation, "mentions", err, comment.ID)
	}
	if _, err := c.notifications.DeleteByContext(ctx, notifications.ContextComment, comment.ID, notifications.TypeMention); err != nil {
		return c.fail(operation, "notifications", err, comment.ID)
	}
	return nil
}

// DeletePost removes the post's mentions, cascades into and deletes every child comment, removes
// every notification whose context is the post and detaches its hashtags.
func (c *Cascader) DeletePost(ctx context.Context, post Post) error {
	const operation = "content.cascade_post"
	if _, err := c.mentions.Detach(ctx, post.Ref()); err != nil {
		return c.fail(operation, "mentions", err, post.ID)
	}

	var comments []Comment
	if err := txn.From(ctx, c.db).Where("post_id = ?", post.ID).Order("id").Find(&comments).Error; err != nil {
		return c.fail(operation, "load_comments", err, post.ID)
	}
	for _, comment := range comments {
		if err := c.DeleteComment(ctx, comment); err != nil {
			return err
		}
	}
	if len(comments) > 0 {
		if err := txn.From(ctx, c.db).Where("post_id = ?", post.ID).Delete(&Comment{}).Error; err != nil {
			return c.fail(operation, "delete_comments", err, post.ID)
		}
	}

	if _, err := c.notifications.DeleteByContext(ctx, notifications.ContextPost, post.ID); err != nil {
		return c.fail(operation, "notifications", err, post.ID)
	}
	// Mention-only pass over the same context. The broad pass above already covers it.
	if _, err := c.notifications.DeleteByContext(ctx, notifications.ContextPost, post.ID, notifications.TypeMention); err != nil {
		return c.fail(operation, "mention_notifications", err, post.ID)
	}

	if err := c.hashtags.DetachAndClean(ctx, post.ID); err != nil {
		return c.fail(operation, "hashtags", err, post.ID)
	}
	return nil
}

func (c *Cascader) fail(operation, reason string, err error, contentID uint64) error {
	c.logger.Error("content cascade failed",
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Uint64("content_id", contentID),
		zap.Error(err))
	return svcerr.New(operation, reason+"_failed", err)
}
