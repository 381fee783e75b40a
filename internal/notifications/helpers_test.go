package notifications

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/realtime"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var databaseSequence atomic.Int64

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:notifications_%d?mode=memory&cache=shared", databaseSequence.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Notification{}); err != nil {
		t.Fatalf("failed to migrate notifications: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

func testClock() time.Time {
	return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
}

func newTestStore(t *testing.T, db *gorm.DB) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{Database: db, Clock: testClock})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []realtime.Event
	err    error
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, event realtime.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return b.err
}

func (b *recordingBroadcaster) unreadCounts() []realtime.UnreadCountUpdated {
	b.mu.Lock()
	defer b.mu.Unlock()
	var counts []realtime.UnreadCountUpdated
	for _, event := range b.events {
		if update, ok := event.(realtime.UnreadCountUpdated); ok {
			counts = append(counts, update)
		}
	}
	return counts
}

type recordingObserver struct {
	created     []Notification
	readChanged []Notification
}

func (o *recordingObserver) NotificationCreated(_ context.Context, notification Notification) {
	o.created = append(o.created, notification)
}

func (o *recordingObserver) NotificationReadStateChanged(_ context.Context, notification Notification) {
	o.readChanged = append(o.readChanged, notification)
}
