package mentions

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/svcerr"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/txn"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Mode selects whether reconciliation notifies newly mentioned users.
type Mode int

const (
	// ModeSyncOnly updates Mention rows without notifying anyone. Used on edits.
	ModeSyncOnly Mode = iota
	// ModeNotify also sends a mention notification to every newly added user. Used on create.
	ModeNotify
)

const opReconcile = "mentions.reconcile"

var (
	errMissingDatabase  = errors.New("database handle is required")
	errMissingDirectory = errors.New("user directory is required")
	errMissingFilter    = errors.New("mention filter is required")
	errMissingNotifier  = errors.New("mention notifier is required")
	noOpLogger          = zap.NewNop()
)

// UserDirectory resolves usernames to accounts.
type UserDirectory interface {
	FindByUsernames(ctx context.Context, names []string) ([]users.User, error)
}

// MentionNotifier records mention notifications.
type MentionNotifier interface {
	NotifyMention(ctx context.Context, recipientID uint64, sender notifications.Sender, target notifications.Context) (notifications.Notification, error)
}

// ReconcilerConfig describes the dependencies of the Reconciler.
type ReconcilerConfig struct {
	Database  *gorm.DB
	Directory UserDirectory
	Filter    *Filter
	Notifier  MentionNotifier
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Reconciler keeps the Mention rows of a content item equal to the mentionable users of its body.
type Reconciler struct {
	db        *gorm.DB
	directory UserDirectory
	filter    *Filter
	notifier  MentionNotifier
	clock     func() time.Time
	logger    *zap.Logger
}

// Result lists the users whose Mention rows were added and removed.
type Result struct {
	Added   []uint64
	Removed []uint64
}

// Changed reports whether reconciliation wrote anything.
func (r Result) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// NewReconciler constructs a Reconciler.
func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	const operation = "mentions.reconciler.new"
	switch {
	case cfg.Database == nil:
		return nil, svcerr.New(operation, "missing_database", errMissingDatabase)
	case cfg.Directory == nil:
		return nil, svcerr.New(operation, "missing_directory", errMissingDirectory)
	case cfg.Filter == nil:
		return nil, svcerr.New(operation, "missing_filter", errMissingFilter)
	case cfg.Notifier == nil:
		return nil, svcerr.New(operation, "missing_notifier", errMissingNotifier)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Reconciler{
		db:        cfg.Database,
		directory: cfg.Directory,
		filter:    cfg.Filter,
		notifier:  cfg.Notifier,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Reconcile diffs the stored mentions of item against the mentionable users of body and applies
// the minimal inserts and deletes. In ModeNotify each newly added user is notified once all row
// writes are done. Removing a mention never retracts a notification already sent. Running it
// twice with the same body writes nothing the second time.
func (r *Reconciler) Reconcile(ctx context.Context, item ContentRef, body string, actor users.User, mode Mode) (Result, error) {
	var result Result
	err := txn.Run(ctx, r.db, func(ctx context.Context, tx *gorm.DB) error {
		final, err := r.mentionable(ctx, body, actor)
		if err != nil {
			return err
		}
		existing, err := r.MentionedUserIDs(ctx, item)
		if err != nil {
			return err
		}

		existingSet := make(map[uint64]struct{}, len(existing))
		for _, userID := range existing {
			existingSet[userID] = struct{}{}
		}
		finalSet := make(map[uint64]struct{}, len(final))
		var toAdd []users.User
		for _, user := range final {
			finalSet[user.ID] = struct{}{}
			if _, ok := existingSet[user.ID]; !ok {
				toAdd = append(toAdd, user)
			}
		}
		var toRemove []uint64
		for _, userID := range existing {
			if _, ok := finalSet[userID]; !ok {
				toRemove = append(toRemove, userID)
			}
		}

		var added []users.User
		now := r.clock().UTC()
		for _, user := range toAdd {
			mention := Mention{ContentType: item.Type, ContentID: item.ID, UserID: user.ID, CreatedAt: now}
			insert := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&mention)
			if insert.Error != nil {
				r.logError("insert_failed", insert.Error, item, zap.Uint64("user_id", user.ID))
				return svcerr.New(opReconcile, "insert_failed", insert.Error)
			}
			if insert.RowsAffected == 1 {
				added = append(added, user)
				result.Added = append(result.Added, user.ID)
			}
		}
		if len(toRemove) > 0 {
			remove := tx.Where("content_type = ? AND content_id = ? AND user_id IN ?", item.Type, item.ID, toRemove).
				Delete(&Mention{})
			if remove.Error != nil {
				r.logError("delete_failed", remove.Error, item)
				return svcerr.New(opReconcile, "delete_failed", remove.Error)
			}
			result.Removed = toRemove
		}

		if mode != ModeNotify {
			return nil
		}
		for _, user := range added {
			if _, err := r.notifier.NotifyMention(ctx, user.ID, actor.Sender(), item.Context()); err != nil {
				r.logError("notify_failed", err, item, zap.Uint64("user_id", user.ID))
				return svcerr.New(opReconcile, "notify_failed", err)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// MentionedUserIDs returns the users currently mentioned by item in ascending id order.
func (r *Reconciler) MentionedUserIDs(ctx context.Context, item ContentRef) ([]uint64, error) {
	var userIDs []uint64
	err := txn.From(ctx, r.db).Model(&Mention{}).
		Where("content_type = ? AND content_id = ?", item.Type, item.ID).
		Order("user_id").
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, svcerr.New("mentions.list", "query_failed", err)
	}
	return userIDs, nil
}

// Detach deletes every Mention row owned by item.
func (r *Reconciler) Detach(ctx context.Context, item ContentRef) (int64, error) {
	result := txn.From(ctx, r.db).
		Where("content_type = ? AND content_id = ?", item.Type, item.ID).
		Delete(&Mention{})
	if result.Error != nil {
		r.logError("detach_failed", result.Error, item)
		return 0, svcerr.New("mentions.detach", "delete_failed", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *Reconciler) mentionable(ctx context.Context, body string, actor users.User) ([]users.User, error) {
	usernames := ExtractMentions(body)
	if len(usernames) == 0 {
		return nil, nil
	}
	candidates, err := r.directory.FindByUsernames(ctx, usernames)
	if err != nil {
		return nil, err
	}
	final, err := r.filter.Mentionable(ctx, actor, candidates)
	if err != nil {
		return nil, err
	}
	return final, nil
}

func (r *Reconciler) logError(reason string, err error, item ContentRef, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", opReconcile),
		zap.String("reason", reason),
		zap.String("content_type", string(item.Type)),
		zap.Uint64("content_id", item.ID),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	r.logger.Error("mention reconciliation error", attrs...)
}
