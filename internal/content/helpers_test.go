package content

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/hashtags"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/mentions"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var databaseSequence atomic.Int64

type harness struct {
	db         *gorm.DB
	users      *users.Service
	store      *notifications.Store
	dispatcher *notifications.Dispatcher
	filter     *mentions.Filter
	reconciler *mentions.Reconciler
	hashtags   *hashtags.Synchronizer
	cascader   *Cascader
	service    *Service
}

func testClock() time.Time {
	return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dsn := fmt.Sprintf("file:content_%d?mode=memory&cache=shared", databaseSequence.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&users.User{}, &users.Block{}, &users.Follow{},
		&Post{}, &Comment{},
		&mentions.Mention{},
		&hashtags.Hashtag{}, &hashtags.PostHashtag{},
		&notifications.Notification{},
	); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	h := &harness{db: db}
	if h.users, err = users.NewService(users.ServiceConfig{Database: db, Clock: testClock}); err != nil {
		t.Fatalf("users: %v", err)
	}
	if h.store, err = notifications.NewStore(notifications.StoreConfig{Database: db, Clock: testClock}); err != nil {
		t.Fatalf("store: %v", err)
	}
	if h.dispatcher, err = notifications.NewDispatcher(h.store); err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	if h.filter, err = mentions.NewFilter(h.users); err != nil {
		t.Fatalf("filter: %v", err)
	}
	if h.reconciler, err = mentions.NewReconciler(mentions.ReconcilerConfig{
		Database:  db,
		Directory: h.users,
		Filter:    h.filter,
		Notifier:  h.dispatcher,
		Clock:     testClock,
	}); err != nil {
		t.Fatalf("reconciler: %v", err)
	}
	if h.hashtags, err = hashtags.NewSynchronizer(hashtags.SynchronizerConfig{Database: db, Clock: testClock}); err != nil {
		t.Fatalf("hashtags: %v", err)
	}
	if h.cascader, err = NewCascader(CascaderConfig{
		Database:      db,
		Mentions:      h.reconciler,
		Notifications: h.store,
		Hashtags:      h.hashtags,
	}); err != nil {
		t.Fatalf("cascader: %v", err)
	}
	h.service = h.newService(t, h.reconciler, h.cascader)
	return h
}

func (h *harness) newService(t *testing.T, reconciler MentionReconciler, cascader *Cascader) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Database: h.db,
		Mentions: reconciler,
		Hashtags: h.hashtags,
		Filter:   h.filter,
		Notifier: h.dispatcher,
		Cascader: cascader,
		Clock:    testClock,
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return service
}

func (h *harness) user(t *testing.T, username string) users.User {
	t.Helper()
	user, err := h.users.CreateUser(context.Background(), users.CreateUserInput{Username: username})
	if err != nil {
		t.Fatalf("failed to create %s: %v", username, err)
	}
	return user
}

func (h *harness) notificationsFor(t *testing.T, recipientID uint64) []notifications.Notification {
	t.Helper()
	listed, err := h.store.List(context.Background(), recipientID, notifications.ListOptions{Limit: 100})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	return listed
}

func (h *harness) count(t *testing.T, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var count int64
	statement := h.db.Model(model)
	if query != "" {
		statement = statement.Where(query, args...)
	}
	if err := statement.Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return count
}

func countByType(listed []notifications.Notification, kind notifications.Type) int {
	total := 0
	for _, notification := range listed {
		if notification.Type == kind {
			total++
		}
	}
	return total
}
