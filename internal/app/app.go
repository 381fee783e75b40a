// Package app assembles the domain services and their observers around one database handle.
package app

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/content"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/hashtags"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/mentions"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/moderation"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase    = errors.New("database handle is required")
	errMissingBroadcaster = errors.New("broadcaster is required")
)

// Config describes the shared dependencies of every service.
type Config struct {
	Database    *gorm.DB
	Broadcaster realtime.Broadcaster
	Clock       func() time.Time
	Logger      *zap.Logger
}

// Services holds the wired domain services.
type Services struct {
	Users          *users.Service
	Notifications  *notifications.Store
	Dispatcher     *notifications.Dispatcher
	Filter         *mentions.Filter
	Mentions       *mentions.Reconciler
	Hashtags       *hashtags.Synchronizer
	Content        *content.Service
	Moderation     *moderation.Service
	UnreadCounter  *notifications.UnreadCounterPublisher
	PendingReports *moderation.PendingCounterPublisher
}

// New wires every service and registers the counter publishers as observers.
func New(cfg Config) (*Services, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Broadcaster == nil {
		return nil, errMissingBroadcaster
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	db := cfg.Database

	store, err := notifications.NewStore(notifications.StoreConfig{
		Database: db,
		Clock:    clock,
		Logger:   logger.Named("notifications"),
	})
	if err != nil {
		return nil, err
	}
	dispatcher, err := notifications.NewDispatcher(store)
	if err != nil {
		return nil, err
	}
	userService, err := users.NewService(users.ServiceConfig{
		Database:       db,
		FollowNotifier: dispatcher,
		Clock:          clock,
		Logger:         logger.Named("users"),
	})
	if err != nil {
		return nil, err
	}
	filter, err := mentions.NewFilter(userService)
	if err != nil {
		return nil, err
	}
	reconciler, err := mentions.NewReconciler(mentions.ReconcilerConfig{
		Database:  db,
		Directory: userService,
		Filter:    filter,
		Notifier:  dispatcher,
		Clock:     clock,
		Logger:    logger.Named("mentions"),
	})
	if err != nil {
		return nil, err
	}
	synchronizer, err := hashtags.NewSynchronizer(hashtags.SynchronizerConfig{
		Database: db,
		Clock:    clock,
		Logger:   logger.Named("hashtags"),
	})
	if err != nil {
		return nil, err
	}
	cascader, err := content.NewCascader(content.CascaderConfig{
		Database:      db,
		Mentions:      reconciler,
		Notifications: store,
		Hashtags:      synchronizer,
		Logger:        logger.Named("cascade"),
	})
	if err != nil {
		return nil, err
	}
	contentService, err := content.NewService(content.ServiceConfig{
		Database: db,
		Mentions: reconciler,
		Hashtags: synchronizer,
		Filter:   filter,
		Notifier: dispatcher,
		Cascader: cascader,
		Clock:    clock,
		Logger:   logger.Named("content"),
	})
	if err != nil {
		return nil, err
	}
	moderationService, err := moderation.NewService(moderation.ServiceConfig{
		Database: db,
		Loaders:  moderation.DefaultSnapshotLoaders(contentService, userService),
		Clock:    clock,
		Logger:   logger.Named("moderation"),
	})
	if err != nil {
		return nil, err
	}

	unreadCounter, err := notifications.NewUnreadCounterPublisher(notifications.UnreadCounterPublisherConfig{
		Database:    db,
		Broadcaster: cfg.Broadcaster,
		Logger:      logger.Named("unread_counter"),
	})
	if err != nil {
		return nil, err
	}
	store.Observe(unreadCounter)

	pendingReports, err := moderation.NewPendingCounterPublisher(moderation.PendingCounterPublisherConfig{
		Database:    db,
		Broadcaster: cfg.Broadcaster,
		Logger:      logger.Named("pending_reports"),
	})
	if err != nil {
		return nil, err
	}
	moderationService.Observe(pendingReports)

	return &Services{
		Users:          userService,
		Notifications:  store,
		Dispatcher:     dispatcher,
		Filter:         filter,
		Mentions:       reconciler,
		Hashtags:       synchronizer,
		Content:        contentService,
		Moderation:     moderationService,
		UnreadCounter:  unreadCounter,
		PendingReports: pendingReports,
	}, nil
}
