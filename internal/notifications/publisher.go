package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/svcerr"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/txn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errMissingBroadcaster = errors.New("broadcaster is required")

// UnreadCounterPublisherConfig describes the dependencies of the UnreadCounterPublisher.
type UnreadCounterPublisherConfig struct {
	Database    *gorm.DB
	Broadcaster realtime.Broadcaster
	Logger      *zap.Logger
}

// UnreadCounterPublisher recomputes a recipient's unread count once the write that changed it has
// committed and broadcasts it on the recipient's private channel.
type UnreadCounterPublisher struct {
	db          *gorm.DB
	broadcaster realtime.Broadcaster
	logger      *zap.Logger
}

// NewUnreadCounterPublisher constructs the publisher.
func NewUnreadCounterPublisher(cfg UnreadCounterPublisherConfig) (*UnreadCounterPublisher, error) {
	const operation = "notifications.unread_publisher.new"
	if cfg.Database == nil {
		return nil, svcerr.New(operation, "missing_database", errMissingDatabase)
	}
	if cfg.Broadcaster == nil {
		return nil, svcerr.New(operation, "missing_broadcaster", errMissingBroadcaster)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &UnreadCounterPublisher{db: cfg.Database, broadcaster: cfg.Broadcaster, logger: logger}, nil
}

// NotificationCreated implements Observer.
func (p *UnreadCounterPublisher) NotificationCreated(ctx context.Context, notification Notification) {
	p.schedule(ctx, notification.RecipientID)
}

// NotificationReadStateChanged implements Observer.
func (p *UnreadCounterPublisher) NotificationReadStateChanged(ctx context.Context, notification Notification) {
	p.schedule(ctx, notification.RecipientID)
}

func (p *UnreadCounterPublisher) schedule(ctx context.Context, recipientID uint64) {
	txn.AfterCommit(ctx, fmt.Sprintf("unread:%d", recipientID), func(ctx context.Context) {
		p.Publish(ctx, recipientID)
	})
}

// Publish counts the unread notifications of recipientID and broadcasts the result. Failures are
// logged and swallowed.
func (p *UnreadCounterPublisher) Publish(ctx context.Context, recipientID uint64) {
	var count int64
	err := p.db.WithContext(ctx).Model(&Notification{}).
		Where("recipient_id = ? AND read_at IS NULL", recipientID).
		Count(&count).Error
	if err != nil {
		p.logger.Error("unread count failed",
			zap.Uint64("recipient_id", recipientID),
			zap.Error(err))
		return
	}
	event := realtime.UnreadCountUpdated{RecipientID: recipientID, UnreadCount: count}
	if err := p.broadcaster.Broadcast(ctx, event); err != nil {
		p.logger.Warn("unread count broadcast failed",
			zap.Uint64("recipient_id", recipientID),
			zap.Int64("unread_count", count),
			zap.Error(err))
	}
}
