package seed

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/app"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/content"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/database"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/hashtags"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/users"
	"github.com/brianvoe/gofakeit/v6"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var databaseSequence atomic.Int64

func newServices(t *testing.T) (*gorm.DB, *app.Services) {
	t.Helper()
	dsn := fmt.Sprintf("file:seed_%d?mode=memory&cache=shared", databaseSequence.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := database.Migrate(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	services, err := app.New(app.Config{Database: db, Broadcaster: realtime.NewDispatcher(1)})
	if err != nil {
		t.Fatalf("failed to wire services: %v", err)
	}
	return db, services
}

func TestRunCreatesRequestedData(t *testing.T) {
	db, services := newServices(t)

	summary, err := Run(context.Background(), services, Options{Users: 4, PostsPerUser: 2, CommentsPerPost: 1, Seed: 7}, nil)
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if summary.Users != 4 || summary.Posts != 8 || summary.Comments != 8 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	var posts, comments, accounts, tags int64
	db.Model(&content.Post{}).Count(&posts)
	db.Model(&content.Comment{}).Count(&comments)
	db.Model(&users.User{}).Count(&accounts)
	db.Model(&hashtags.Hashtag{}).Count(&tags)
	if posts != 8 || comments != 8 || accounts != 4 {
		t.Fatalf("unexpected row counts posts=%d comments=%d users=%d", posts, comments, accounts)
	}
	if tags == 0 {
		t.Fatalf("expected seeded posts to carry hashtags")
	}
}

func TestRunWithoutUsersIsEmpty(t *testing.T) {
	_, services := newServices(t)
	summary, err := Run(context.Background(), services, Options{PostsPerUser: 3}, nil)
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if summary != (Summary{}) {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
}

func TestFakeUsernameIsMentionable(t *testing.T) {
	faker := gofakeit.New(11)
	for i := 0; i < 50; i++ {
		name := fakeUsername(faker)
		if len(name) < 4 || len(name) > 15 || usernameDisallowed.MatchString(name) {
			t.Fatalf("generated username %q is not mentionable", name)
		}
	}
}
