package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/hashtags"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/mentions"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/svcerr"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/txn"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/users"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxBodyLength is the longest accepted post or comment body, in characters.
const MaxBodyLength = 5000

var (
	// ErrPostNotFound indicates the post does not exist.
	ErrPostNotFound = errors.New("content: post not found")
	// ErrCommentNotFound indicates the comment does not exist.
	ErrCommentNotFound = errors.New("content: comment not found")
	// ErrForbidden indicates the actor may not change the content item.
	ErrForbidden = errors.New("content: forbidden")
	// ErrInvalidContent indicates the body failed validation.
	ErrInvalidContent = errors.New("content: invalid content")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingReconciler = errors.New("mention reconciler is required")
	errMissingFilter     = errors.New("interaction filter is required")
	errMissingNotifier   = errors.New("comment notifier is required")
	errMissingCascader   = errors.New("cascader is required")
	noOpLogger           = zap.NewNop()
)

// MentionReconciler keeps Mention rows in step with content bodies.
type MentionReconciler interface {
	Reconcile(ctx context.Context, item mentions.ContentRef, body string, actor users.User, mode mentions.Mode) (mentions.Result, error)
}

// HashtagSyncer keeps post tags in step with post bodies.
type HashtagSyncer interface {
	Sync(ctx context.Context, postID uint64, body string) ([]hashtags.Hashtag, error)
}

// InteractionFilter decides whether an actor may notify a target.
type InteractionFilter interface {
	CanInteract(ctx context.Context, actorID, targetID uint64) (bool, error)
}

// CommentNotifier records comment notifications.
type CommentNotifier interface {
	NotifyComment(ctx context.Context, recipientID uint64, sender notifications.Sender, postID, postAuthorID uint64) (notifications.Notification, error)
}

// ServiceConfig describes the dependencies of the content service.
type ServiceConfig struct {
	Database *gorm.DB
	Mentions MentionReconciler
	Hashtags HashtagSyncer
	Filter   InteractionFilter
	Notifier CommentNotifier
	Cascader *Cascader
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns the post and comment lifecycle and its side effects.
type Service struct {
	db       *gorm.DB
	mentions MentionReconciler
	hashtags HashtagSyncer
	filter   InteractionFilter
	notifier CommentNotifier
	cascader *Cascader
	clock    func() time.Time
	logger   *zap.Logger
	validate *validator.Validate
}

// NewService constructs the content service.
func NewService(cfg ServiceConfig) (*Service, error) {
	const operation = "content.service.new"
	switch {
	case cfg.Database == nil:
		return nil, svcerr.New(operation, "missing_database", errMissingDatabase)
	case cfg.Mentions == nil:
		return nil, svcerr.New(operation, "missing_reconciler", errMissingReconciler)
	case cfg.Hashtags == nil:
		return nil, svcerr.New(operation, "missing_hashtags", errMissingHashtags)
	case cfg.Filter == nil:
		return nil, svcerr.New(operation, "missing_filter", errMissingFilter)
	case cfg.Notifier == nil:
		return nil, svcerr.New(operation, "missing_notifier", errMissingNotifier)
	case cfg.Cascader == nil:
		return nil, svcerr.New(operation, "missing_cascader", errMissingCascader)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:       cfg.Database,
		mentions: cfg.Mentions,
		hashtags: cfg.Hashtags,
		filter:   cfg.Filter,
		notifier: cfg.Notifier,
		cascader: cfg.Cascader,
		clock:    clock,
		logger:   logger,
		validate: validator.New(),
	}, nil
}

type bodyInput struct {
	Body string `validate:"required,max=5000"`
}

// CreatePost stores a post and notifies the users it mentions.
func (s *Service) CreatePost(ctx context.Context, actor users.User, body string) (Post, error) {
	const operation = "content.create_post"
	if err := s.validateBody(operation, body); err != nil {
		return Post{}, err
	}
	now := s.clock().UTC()
	post := Post{AuthorID: actor.ID, Body: body, CreatedAt: now, UpdatedAt: now}
	err := txn.Run(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Create(&post).Error; err != nil {
			return svcerr.New(operation, "insert_failed", err)
		}
		s.syncPostSideEffects(ctx, post, actor, mentions.ModeNotify)
		return nil
	})
	if err != nil {
		s.logError(operation, err, zap.Uint64("author_id", actor.ID))
		return Post{}, err
	}
	return post, nil
}

// UpdatePost replaces the body of a post owned by actor. Mentions and tags follow the new body;
// newly mentioned users are not notified.
func (s *Service) UpdatePost(ctx context.Context, actor users.User, postID uint64, body string) (Post, error) {
	const operation = "content.update_post"
	if err := s.validateBody(operation, body); err != nil {
		return Post{}, err
	}
	var post Post
	err := txn.Run(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		post, err = s.GetPost(ctx, postID)
		if err != nil {
			return err
		}
		if post.AuthorID != actor.ID {
			return svcerr.New(operation, "forbidden", ErrForbidden)
		}
		post.Body = body
		post.UpdatedAt = s.clock().UTC()
		if err := tx.Model(&Post{}).Where("id = ?", post.ID).
			Updates(map[string]interface{}{"body": post.Body, "updated_at": post.UpdatedAt}).Error; err != nil {
			return svcerr.New(operation, "update_failed", err)
		}
		s.syncPostSideEffects(ctx, post, actor, mentions.ModeSyncOnly)
		return nil
	})
	if err != nil {
		s.logError(operation, err, zap.Uint64("post_id", postID))
		return Post{}, err
	}
	return post, nil
}

// DeletePost removes a post, its comments and every dependent row. Authors and moderators may
// delete.
func (s *Service) DeletePost(ctx context.Context, actor users.User, postID uint64) error {
	const operation = "content.delete_post"
	err := txn.Run(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		post, err := s.GetPost(ctx, postID)
		if err != nil {
			return err
		}
		if post.AuthorID != actor.ID && !actor.CanModerate() {
			return svcerr.New(operation, "forbidden", ErrForbidden)
		}
		if err := s.cascader.DeletePost(ctx, post); err != nil {
			return err
		}
		if err := tx.Delete(&Post{}, post.ID).Error; err != nil {
			return svcerr.New(operation, "delete_failed", err)
		}
		return nil
	})
	if err != nil {
		s.logError(operation, err, zap.Uint64("post_id", postID))
	}
	return err
}

// GetPost loads a post.
func (s *Service) GetPost(ctx context.Context, postID uint64) (Post, error) {
	var post Post
	err := txn.From(ctx, s.db).Where("id = ?", postID).Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Post{}, svcerr.New("content.get_post", "not_found", ErrPostNotFound)
	}
	if err != nil {
		return Post{}, svcerr.New("content.get_post", "query_failed", err)
	}
	return post, nil
}

// CreateComment stores a comment, notifies the post author and the users it mentions.
func (s *Service) CreateComment(ctx context.Context, actor users.User, postID uint64, body string) (Comment, error) {
	const operation = "content.create_comment"
	if err := s.validateBody(operation, body); err != nil {
		return Comment{}, err
	}
	var comment Comment
	err := txn.Run(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		post, err := s.GetPost(ctx, postID)
		if err != nil {
			return err
		}
		now := s.clock().UTC()
		comment = Comment{PostID: post.ID, AuthorID: actor.ID, Body: body, CreatedAt: now, UpdatedAt: now}
		if err := tx.Create(&comment).Error; err != nil {
			return svcerr.New(operation, "insert_failed", err)
		}
		s.sideEffect(ctx, "comment_notification", comment.Ref(), func(ctx context.Context) error {
			return s.notifyPostAuthor(ctx, actor, post)
		})
		s.sideEffect(ctx, "mentions", comment.Ref(), func(ctx context.Context) error {
			_, err := s.mentions.Reconcile(ctx, comment.Ref(), comment.Body, actor, mentions.ModeNotify)
			return err
		})
		return nil
	})
	if err != nil {
		s.logError(operation, err, zap.Uint64("post_id", postID))
		return Comment{}, err
	}
	return comment, nil
}

// UpdateComment replaces the body of a comment owned by actor.
func (s *Service) UpdateComment(ctx context.Context, actor users.User, commentID uint64, body string) (Comment, error) {
	const operation = "content.update_comment"
	if err := s.validateBody(operation, body); err != nil {
		return Comment{}, err
	}
	var comment Comment
	err := txn.Run(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		var err error
		comment, err = s.GetComment(ctx, commentID)
		if err != nil {
			return err
		}
		if comment.AuthorID != actor.ID {
			return svcerr.New(operation, "forbidden", ErrForbidden)
		}
		comment.Body = body
		comment.UpdatedAt = s.clock().UTC()
		if err := tx.Model(&Comment{}).Where("id = ?", comment.ID).
			Updates(map[string]interface{}{"body": comment.Body, "updated_at": comment.UpdatedAt}).Error; err != nil {
			return svcerr.New(operation, "update_failed", err)
		}
		s.sideEffect(ctx, "mentions", comment.Ref(), func(ctx context.Context) error {
			_, err := s.mentions.Reconcile(ctx, comment.Ref(), comment.Body, actor, mentions.ModeSyncOnly)
			return err
		})
		return nil
	})
	if err != nil {
		s.logError(operation, err, zap.Uint64("comment_id", commentID))
		return Comment{}, err
	}
	return comment, nil
}

// DeleteComment removes a comment and its dependent rows. Authors and moderators may delete.
func (s *Service) DeleteComment(ctx context.Context, actor users.User, commentID uint64) error {
	const operation = "content.delete_comment"
	err := txn.Run(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		comment, err := s.GetComment(ctx, commentID)
		if err != nil {
			return err
		}
		if comment.AuthorID != actor.ID && !actor.CanModerate() {
			return svcerr.New(operation, "forbidden", ErrForbidden)
		}
		if err := s.cascader.DeleteComment(ctx, comment); err != nil {
			return err
		}
		if err := tx.Delete(&Comment{}, comment.ID).Error; err != nil {
			return svcerr.New(operation, "delete_failed", err)
		}
		return nil
	})
	if err != nil {
		s.logError(operation, err, zap.Uint64("comment_id", commentID))
	}
	return err
}

// GetComment loads a comment.
func (s *Service) GetComment(ctx context.Context, commentID uint64) (Comment, error) {
	var comment Comment
	err := txn.From(ctx, s.db).Where("id = ?", commentID).Take(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Comment{}, svcerr.New("content.get_comment", "not_found", ErrCommentNotFound)
	}
	if err != nil {
		return Comment{}, svcerr.New("content.get_comment", "query_failed", err)
	}
	return comment, nil
}

// ListComments returns the comments of postID, oldest first.
func (s *Service) ListComments(ctx context.Context, postID uint64) ([]Comment, error) {
	if _, err := s.GetPost(ctx, postID); err != nil {
		return nil, err
	}
	var comments []Comment
	if err := txn.From(ctx, s.db).Where("post_id = ?", postID).Order("id").Find(&comments).Error; err != nil {
		return nil, svcerr.New("content.list_comments", "query_failed", err)
	}
	return comments, nil
}

func (s *Service) syncPostSideEffects(ctx context.Context, post Post, actor users.User, mode mentions.Mode) {
	s.sideEffect(ctx, "mentions", post.Ref(), func(ctx context.Context) error {
		_, err := s.mentions.Reconcile(ctx, post.Ref(), post.Body, actor, mode)
		return err
	})
	s.sideEffect(ctx, "hashtags", post.Ref(), func(ctx context.Context) error {
		_, err := s.hashtags.Sync(ctx, post.ID, post.Body)
		return err
	})
}

func (s *Service) notifyPostAuthor(ctx context.Context, actor users.User, post Post) error {
	allowed, err := s.filter.CanInteract(ctx, actor.ID, post.AuthorID)
	if err != nil || !allowed {
		return err
	}
	_, err = s.notifier.NotifyComment(ctx, post.AuthorID, actor.Sender(), post.ID, post.AuthorID)
	return err
}

// sideEffect runs fn in a savepoint. A failure rolls back only fn's writes and is logged; the
// surrounding save proceeds.
func (s *Service) sideEffect(ctx context.Context, name string, item mentions.ContentRef, fn func(ctx context.Context) error) {
	err := txn.Run(ctx, s.db, func(ctx context.Context, _ *gorm.DB) error {
		return fn(ctx)
	})
	if err != nil {
		s.logger.Warn("content side effect failed",
			zap.String("side_effect", name),
			zap.String("content_type", string(item.Type)),
			zap.Uint64("content_id", item.ID),
			zap.Error(err))
	}
}

func (s *Service) validateBody(operation, body string) error {
	if err := s.validate.Struct(bodyInput{Body: body}); err != nil {
		return svcerr.New(operation, "invalid_body", fmt.Errorf("%w: %v", ErrInvalidContent, err))
	}
	return nil
}

func (s *Service) logError(operation string, err error, fields ...zap.Field) {
	if errors.Is(err, ErrPostNotFound) || errors.Is(err, ErrCommentNotFound) || errors.Is(err, ErrForbidden) {
		return
	}
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("code", svcerr.Code(err)),
		zap.Error(err),
	}
	attrs = append(attrs, fields...)
	s.logger.Error("content service error", attrs...)
}
