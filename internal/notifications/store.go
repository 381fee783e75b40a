package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/svcerr"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/txn"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrNotificationNotFound indicates the notification does not exist for the recipient.
	ErrNotificationNotFound = errors.New("notifications: notification not found")
	// ErrInvalidRecipient indicates a zero recipient identifier.
	ErrInvalidRecipient = errors.New("notifications: invalid recipient")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opStoreNew        = "notifications.store.new"
	opCreate          = "notifications.create"
	opMarkRead        = "notifications.mark_read"
	opMarkAllRead     = "notifications.mark_all_read"
	opUpdateData      = "notifications.update_data"
	opList            = "notifications.list"
	opUnreadCount     = "notifications.unread_count"
	opDeleteByContext = "notifications.delete_by_context"

	defaultListLimit = 20
	maxListLimit     = 100
)

// Observer reacts to notification lifecycle changes. Deletions are not observed.
type Observer interface {
	NotificationCreated(ctx context.Context, notification Notification)
	NotificationReadStateChanged(ctx context.Context, notification Notification)
}

// StoreConfig describes the dependencies of the Store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store persists notifications and announces creations and read-state transitions to observers.
// Every method joins the transaction carried by ctx, if any.
type Store struct {
	db        *gorm.DB
	clock     func() time.Time
	logger    *zap.Logger
	observers []Observer
}

// NewStore constructs a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, svcerr.New(opStoreNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Observe registers an observer. It is not safe to call concurrently with writes.
func (s *Store) Observe(observer Observer) {
	if observer != nil {
		s.observers = append(s.observers, observer)
	}
}

// Create inserts notification and notifies observers.
func (s *Store) Create(ctx context.Context, notification *Notification) error {
	if notification.RecipientID == 0 {
		return svcerr.New(opCreate, "invalid_recipient", ErrInvalidRecipient)
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = s.clock().UTC()
	}
	if err := txn.From(ctx, s.db).Create(notification).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.Uint64("recipient_id", notification.RecipientID))
		return svcerr.New(opCreate, "insert_failed", err)
	}
	for _, observer := range s.observers {
		observer.NotificationCreated(ctx, *notification)
	}
	return nil
}

// MarkRead stamps read_at on an unread notification owned by recipientID. Already read
// notifications are returned unchanged and produce no read-state event.
func (s *Store) MarkRead(ctx context.Context, recipientID, notificationID uint64) (Notification, error) {
	var result Notification
	err := txn.Run(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		var notification Notification
		err := tx.Where("id = ? AND recipient_id = ?", notificationID, recipientID).Take(&notification).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return svcerr.New(opMarkRead, "not_found", ErrNotificationNotFound)
		}
		if err != nil {
			s.logError(opMarkRead, "select_failed", err, zap.Uint64("notification_id", notificationID))
			return svcerr.New(opMarkRead, "select_failed", err)
		}
		if !notification.Unread() {
			result = notification
			return nil
		}

		readAt := s.clock().UTC()
		update := tx.Model(&Notification{}).
			Where("id = ? AND read_at IS NULL", notification.ID).
			Update("read_at", readAt)
		if update.Error != nil {
			s.logError(opMarkRead, "update_failed", update.Error, zap.Uint64("notification_id", notificationID))
			return svcerr.New(opMarkRead, "update_failed", update.Error)
		}
		if update.RowsAffected == 1 {
			notification.ReadAt = &readAt
			s.announceReadState(ctx, notification)
		}
		result = notification
		return nil
	})
	return result, err
}

// MarkAllRead stamps read_at on every unread notification of recipientID and returns how many
// changed.
func (s *Store) MarkAllRead(ctx context.Context, recipientID uint64) (int64, error) {
	if recipientID == 0 {
		return 0, svcerr.New(opMarkAllRead, "invalid_recipient", ErrInvalidRecipient)
	}
	var changed int64
	err := txn.Run(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		var unread []Notification
		if err := tx.Where("recipient_id = ? AND read_at IS NULL", recipientID).Find(&unread).Error; err != nil {
			s.logError(opMarkAllRead, "select_failed", err, zap.Uint64("recipient_id", recipientID))
			return svcerr.New(opMarkAllRead, "select_failed", err)
		}
		if len(unread) == 0 {
			return nil
		}
		ids := make([]uint64, 0, len(unread))
		for _, notification := range unread {
			ids = append(ids, notification.ID)
		}
		readAt := s.clock().UTC()
		update := tx.Model(&Notification{}).
			Where("id IN ? AND read_at IS NULL", ids).
			Update("read_at", readAt)
		if update.Error != nil {
			s.logError(opMarkAllRead, "update_failed", update.Error, zap.Uint64("recipient_id", recipientID))
			return svcerr.New(opMarkAllRead, "update_failed", update.Error)
		}
		changed = update.RowsAffected
		for _, notification := range unread {
			notification.ReadAt = &readAt
			s.announceReadState(ctx, notification)
		}
		return nil
	})
	return changed, err
}

// UpdateData replaces the display payload. It does not touch read_at, so no observer fires.
func (s *Store) UpdateData(ctx context.Context, notificationID uint64, data Data) error {
	update := txn.From(ctx, s.db).Model(&Notification{}).
		Where("id = ?", notificationID).
		Update("data", datatypes.NewJSONType(data))
	if update.Error != nil {
		s.logError(opUpdateData, "update_failed", update.Error, zap.Uint64("notification_id", notificationID))
		return svcerr.New(opUpdateData, "update_failed", update.Error)
	}
	if update.RowsAffected == 0 {
		return svcerr.New(opUpdateData, "not_found", ErrNotificationNotFound)
	}
	return nil
}

// ListOptions narrows a notification listing.
type ListOptions struct {
	UnreadOnly bool
	Limit      int
	BeforeID   uint64
}

// List returns notifications of recipientID, newest first.
func (s *Store) List(ctx context.Context, recipientID uint64, options ListOptions) ([]Notification, error) {
	limit := options.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query := txn.From(ctx, s.db).Where("recipient_id = ?", recipientID)
	if options.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}
	if options.BeforeID > 0 {
		query = query.Where("id < ?", options.BeforeID)
	}
	var notifications []Notification
	if err := query.Order("id DESC").Limit(limit).Find(&notifications).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.Uint64("recipient_id", recipientID))
		return nil, svcerr.New(opList, "query_failed", err)
	}
	return notifications, nil
}

// UnreadCount counts the notifications of recipientID with no read timestamp.
func (s *Store) UnreadCount(ctx context.Context, recipientID uint64) (int64, error) {
	var count int64
	err := txn.From(ctx, s.db).Model(&Notification{}).
		Where("recipient_id = ? AND read_at IS NULL", recipientID).
		Count(&count).Error
	if err != nil {
		return 0, svcerr.New(opUnreadCount, "query_failed", err)
	}
	return count, nil
}

// DeleteByContext removes notifications whose context is (contextType, contextID), restricted to
// types when any are given. Deletions do not notify observers.
func (s *Store) DeleteByContext(ctx context.Context, contextType ContextType, contextID uint64, types ...Type) (int64, error) {
	query := txn.From(ctx, s.db).Where("context_type = ? AND context_id = ?", contextType, contextID)
	if len(types) > 0 {
		query = query.Where("type IN ?", types)
	}
	result := query.Delete(&Notification{})
	if result.Error != nil {
		s.logError(opDeleteByContext, "delete_failed", result.Error,
			zap.String("context_type", string(contextType)),
			zap.Uint64("context_id", contextID))
		return 0, svcerr.New(opDeleteByContext, "delete_failed", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *Store) announceReadState(ctx context.Context, notification Notification) {
	for _, observer := range s.observers {
		observer.NotificationReadStateChanged(ctx, notification)
	}
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("notifications store error", attrs...)
}
