package moderation

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/content"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/svcerr"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/users"
)

// ErrReportableNotFound indicates the reported entity does not exist or its type is unknown.
var ErrReportableNotFound = errors.New("moderation: reportable not found")

// SnapshotLoader captures the current state of one reportable entity.
type SnapshotLoader func(ctx context.Context, id uint64) (Snapshot, error)

// SnapshotLoaders maps each reportable type to its loader.
type SnapshotLoaders map[ReportableType]SnapshotLoader

// ContentReader reads posts and comments.
type ContentReader interface {
	GetPost(ctx context.Context, postID uint64) (content.Post, error)
	GetComment(ctx context.Context, commentID uint64) (content.Comment, error)
}

// UserReader reads users.
type UserReader interface {
	GetByID(ctx context.Context, userID uint64) (users.User, error)
}

// DefaultSnapshotLoaders builds the loaders for posts, comments and users.
func DefaultSnapshotLoaders(posts ContentReader, accounts UserReader) SnapshotLoaders {
	return SnapshotLoaders{
		ReportablePost: func(ctx context.Context, id uint64) (Snapshot, error) {
			post, err := posts.GetPost(ctx, id)
			if err != nil {
				return Snapshot{}, notFoundAs(err, content.ErrPostNotFound)
			}
			return Snapshot{Type: ReportablePost, ID: post.ID, AuthorID: post.AuthorID, Body: post.Body}, nil
		},
		ReportableComment: func(ctx context.Context, id uint64) (Snapshot, error) {
			comment, err := posts.GetComment(ctx, id)
			if err != nil {
				return Snapshot{}, notFoundAs(err, content.ErrCommentNotFound)
			}
			return Snapshot{
				Type:     ReportableComment,
				ID:       comment.ID,
				AuthorID: comment.AuthorID,
				PostID:   comment.PostID,
				Body:     comment.Body,
			}, nil
		},
		ReportableUser: func(ctx context.Context, id uint64) (Snapshot, error) {
			user, err := accounts.GetByID(ctx, id)
			if err != nil {
				return Snapshot{}, notFoundAs(err, users.ErrUserNotFound)
			}
			return Snapshot{Type: ReportableUser, ID: user.ID, Username: user.Username, Body: user.DisplayName}, nil
		},
	}
}

// Load captures the snapshot of the entity (reportableType, id).
func (l SnapshotLoaders) Load(ctx context.Context, reportableType ReportableType, id uint64) (Snapshot, error) {
	loader, ok := l[reportableType]
	if !ok {
		return Snapshot{}, svcerr.New("moderation.snapshot", "unknown_type", ErrReportableNotFound)
	}
	return loader(ctx, id)
}

func notFoundAs(err, missing error) error {
	if errors.Is(err, missing) {
		return svcerr.New("moderation.snapshot", "not_found", ErrReportableNotFound)
	}
	return err
}
