package moderation

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/svcerr"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/txn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const pendingCountHookKey = "reports:pending"

var errMissingBroadcaster = errors.New("broadcaster is required")

// PendingCounterPublisherConfig describes the dependencies of the PendingCounterPublisher.
type PendingCounterPublisherConfig struct {
	Database    *gorm.DB
	Broadcaster realtime.Broadcaster
	Logger      *zap.Logger
}

// PendingCounterPublisher broadcasts the global pending report count on the reports channel after
// every committed report change.
type PendingCounterPublisher struct {
	db          *gorm.DB
	broadcaster realtime.Broadcaster
	logger      *zap.Logger
}

// NewPendingCounterPublisher constructs the publisher.
func NewPendingCounterPublisher(cfg PendingCounterPublisherConfig) (*PendingCounterPublisher, error) {
	const operation = "moderation.pending_publisher.new"
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
	return &PendingCounterPublisher{db: cfg.Database, broadcaster: cfg.Broadcaster, logger: logger}, nil
}

// ReportChanged implements Observer.
func (p *PendingCounterPublisher) ReportChanged(ctx context.Context, _ Report) {
	txn.AfterCommit(ctx, pendingCountHookKey, p.Publish)
}

// Publish counts pending reports and broadcasts the result. Failures are logged and swallowed.
func (p *PendingCounterPublisher) Publish(ctx context.Context) {
	count, err := countPending(p.db.WithContext(ctx))
	if err != nil {
		p.logger.Error("pending report count failed", zap.Error(err))
		return
	}
	if err := p.broadcaster.Broadcast(ctx, realtime.PendingReportsCountUpdated{PendingCount: count}); err != nil {
		p.logger.Warn("pending report count broadcast failed", zap.Int64("pending_count", count), zap.Error(err))
	}
}
