package mentions

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var databaseSequence atomic.Int64

type reconcilerHarness struct {
	db         *gorm.DB
	users      *users.Service
	store      *notifications.Store
	reconciler *Reconciler
}

func newReconcilerHarness(t *testing.T) reconcilerHarness {
	t.Helper()
	dsn := fmt.Sprintf("file:mentions_%d?mode=memory&cache=shared", databaseSequence.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}, &users.Block{}, &users.Follow{}, &Mention{}, &notifications.Notification{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	clock := func() time.Time {
		return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to create user service: %v", err)
	}
	store, err := notifications.NewStore(notifications.StoreConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	dispatcher, err := notifications.NewDispatcher(store)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	filter, err := NewFilter(userService)
	if err != nil {
		t.Fatalf("failed to create filter: %v", err)
	}
	reconciler, err := NewReconciler(ReconcilerConfig{
		Database:  db,
		Directory: userService,
		Filter:    filter,
		Notifier:  dispatcher,
		Clock:     clock,
	})
	if err != nil {
		t.Fatalf("failed to create reconciler: %v", err)
	}
	return reconcilerHarness{db: db, users: userService, store: store, reconciler: reconciler}
}

func (h reconcilerHarness) user(t *testing.T, username string) users.User {
	t.Helper()
	user, err := h.users.CreateUser(context.Background(), users.CreateUserInput{Username: username})
	if err != nil {
		t.Fatalf("failed to create %s: %v", username, err)
	}
	return user
}

func (h reconcilerHarness) mentionNotifications(t *testing.T, recipientID uint64) int {
	t.Helper()
	listed, err := h.store.List(context.Background(), recipientID, notifications.ListOptions{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	count := 0
	for _, notification := range listed {
		if notification.Type == notifications.TypeMention {
			count++
		}
	}
	return count
}

func (h reconcilerHarness) mentionRows(t *testing.T) int64 {
	t.Helper()
	var count int64
	if err := h.db.Model(&Mention{}).Count(&count).Error; err != nil {
		t.Fatalf("count mentions: %v", err)
	}
	return count
}

func TestReconcileNotifyCreatesRowsAndNotifications(t *testing.T) {
	harness := newReconcilerHarness(t)
	author := harness.user(t, "author")
	bobby := harness.user(t, "bobby")
	carol := harness.user(t, "carol")
	item := PostRef(10)

	result, err := harness.reconciler.Reconcile(context.Background(), item, "hi @bobby and @carol and @ghost and @author", author, ModeNotify)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(result.Added) != 2 || result.Added[0] != bobby.ID || result.Added[1] != carol.ID {
		t.Fatalf("unexpected added set %v", result.Added)
	}
	if harness.mentionNotifications(t, bobby.ID) != 1 || harness.mentionNotifications(t, carol.ID) != 1 {
		t.Fatalf("expected one mention notification per mentioned user")
	}
	if harness.mentionNotifications(t, author.ID) != 0 {
		t.Fatalf("self mentions must not notify")
	}

	listed, err := harness.store.List(context.Background(), bobby.ID, notifications.ListOptions{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	payload := listed[0].Payload()
	if payload.Sender.ID != author.ID || payload.Context == nil || payload.Context.Type != notifications.ContextPost || payload.Context.ID != 10 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestReconcileSyncOnlyIsIdempotent(t *testing.T) {
	harness := newReconcilerHarness(t)
	author := harness.user(t, "author")
	bobby := harness.user(t, "bobby")
	item := CommentRef(5)
	body := "thanks @bobby"

	first, err := harness.reconciler.Reconcile(context.Background(), item, body, author, ModeSyncOnly)
	if err != nil {
		t.Fatalf("first reconcile failed: %v", err)
	}
	if len(first.Added) != 1 {
		t.Fatalf("expected one added mention, got %v", first.Added)
	}
	second, err := harness.reconciler.Reconcile(context.Background(), item, body, author, ModeSyncOnly)
	if err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	if second.Changed() {
		t.Fatalf("expected no writes on unchanged text, got %+v", second)
	}
	if harness.mentionRows(t) != 1 {
		t.Fatalf("expected exactly one mention row")
	}
	if harness.mentionNotifications(t, bobby.ID) != 0 {
		t.Fatalf("sync-only mode must not notify")
	}
}

func TestReconcileNotifiesOnlyGenuinelyNewMentions(t *testing.T) {
	harness := newReconcilerHarness(t)
	author := harness.user(t, "author")
	bobby := harness.user(t, "bobby")
	item := PostRef(11)
	ctx := context.Background()

	for attempt := 0; attempt < 3; attempt++ {
		if _, err := harness.reconciler.Reconcile(ctx, item, "hey @bobby", author, ModeNotify); err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
	}
	if got := harness.mentionNotifications(t, bobby.ID); got != 1 {
		t.Fatalf("repeated saves must not re-notify, got %d notifications", got)
	}

	removed, err := harness.reconciler.Reconcile(ctx, item, "hey nobody", author, ModeNotify)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(removed.Removed) != 1 || removed.Removed[0] != bobby.ID {
		t.Fatalf("expected bobby removed, got %+v", removed)
	}
	if harness.mentionNotifications(t, bobby.ID) != 1 {
		t.Fatalf("removing a mention must not retract the sent notification")
	}

	if _, err := harness.reconciler.Reconcile(ctx, item, "hey again @bobby", author, ModeNotify); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if got := harness.mentionNotifications(t, bobby.ID); got != 2 {
		t.Fatalf("re-adding a removed mention must notify again, got %d", got)
	}
}

func TestReconcileSkipsBlockedUsers(t *testing.T) {
	harness := newReconcilerHarness(t)
	author := harness.user(t, "author")
	bobby := harness.user(t, "bobby")
	if err := harness.users.Block(context.Background(), bobby.ID, author.ID); err != nil {
		t.Fatalf("block failed: %v", err)
	}

	result, err := harness.reconciler.Reconcile(context.Background(), PostRef(12), "@bobby", author, ModeNotify)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if len(result.Added) != 0 || harness.mentionRows(t) != 0 {
		t.Fatalf("blocked users must not be mentioned, got %+v", result)
	}
}

func TestDetachRemovesAllMentionsOfItem(t *testing.T) {
	harness := newReconcilerHarness(t)
	author := harness.user(t, "author")
	harness.user(t, "bobby")
	harness.user(t, "carol")

	if _, err := harness.reconciler.Reconcile(context.Background(), CommentRef(1), "@bobby @carol", author, ModeSyncOnly); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if _, err := harness.reconciler.Reconcile(context.Background(), CommentRef(2), "@bobby", author, ModeSyncOnly); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	detached, err := harness.reconciler.Detach(context.Background(), CommentRef(1))
	if err != nil || detached != 2 {
		t.Fatalf("expected two mentions detached, got %d (%v)", detached, err)
	}
	if harness.mentionRows(t) != 1 {
		t.Fatalf("expected other comment's mention to survive")
	}
}
