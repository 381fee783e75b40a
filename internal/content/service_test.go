package content

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/hashtags"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/mentions"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/users"
)

type failingReconciler struct{}

func (failingReconciler) Reconcile(context.Context, mentions.ContentRef, string, users.User, mentions.Mode) (mentions.Result, error) {
	return mentions.Result{}, errors.New("reconcile exploded")
}

func TestCreatePostNotifiesMentionsAndSyncsTags(t *testing.T) {
	h := newHarness(t)
	author := h.user(t, "author")
	bobby := h.user(t, "bobby")

	post, err := h.service.CreatePost(context.Background(), author, "hello @bobby #Launch")
	if err != nil {
		t.Fatalf("create post failed: %v", err)
	}
	listed := h.notificationsFor(t, bobby.ID)
	if len(listed) != 1 || listed[0].Type != notifications.TypeMention {
		t.Fatalf("expected one mention notification, got %+v", listed)
	}
	if target := listed[0].Payload().Context; target == nil || target.Type != notifications.ContextPost || target.ID != post.ID {
		t.Fatalf("unexpected notification context %+v", target)
	}
	tags, err := h.hashtags.TagsForPost(context.Background(), post.ID)
	if err != nil || len(tags) != 1 || tags[0] != "launch" {
		t.Fatalf("unexpected tags %v (%v)", tags, err)
	}
}

func TestCreatePostSurvivesMentionFailure(t *testing.T) {
	h := newHarness(t)
	author := h.user(t, "author")
	h.user(t, "bobby")
	service := h.newService(t, failingReconciler{}, h.cascader)

	post, err := service.CreatePost(context.Background(), author, "hello @bobby #still")
	if err != nil {
		t.Fatalf("mention failures must not block the save: %v", err)
	}
	if h.count(t, &Post{}, "id = ?", post.ID) != 1 {
		t.Fatalf("expected post to be stored")
	}
	if h.count(t, &hashtags.PostHashtag{}, "post_id = ?", post.ID) != 1 {
		t.Fatalf("expected hashtag sync to proceed")
	}
}

func TestCreatePostValidatesBody(t *testing.T) {
	h := newHarness(t)
	author := h.user(t, "author")
	for _, body := range []string{"", strings.Repeat("x", MaxBodyLength+1)} {
		if _, err := h.service.CreatePost(context.Background(), author, body); !errors.Is(err, ErrInvalidContent) {
			t.Fatalf("expected invalid content for body of length %d, got %v", len(body), err)
		}
	}
}

func TestUpdatePostSyncsWithoutNotifying(t *testing.T) {
	h := newHarness(t)
	author := h.user(t, "author")
	bobby := h.user(t, "bobby")
	carol := h.user(t, "carol")
	ctx := context.Background()

	post, err := h.service.CreatePost(ctx, author, "hi @bobby")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := h.service.UpdatePost(ctx, author, post.ID, "hi @carol"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if len(h.notificationsFor(t, carol.ID)) != 0 {
		t.Fatalf("edits must not notify newly mentioned users")
	}
	if len(h.notificationsFor(t, bobby.ID)) != 1 {
		t.Fatalf("edits must not retract earlier notifications")
	}
	ids, err := h.reconciler.MentionedUserIDs(ctx, post.Ref())
	if err != nil || len(ids) != 1 || ids[0] != carol.ID {
		t.Fatalf("expected mention rows to follow the body, got %v (%v)", ids, err)
	}

	if _, err := h.service.UpdatePost(ctx, bobby, post.ID, "hijack"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non-author, got %v", err)
	}
}

func TestCreateCommentNotifiesPostAuthor(t *testing.T) {
	h := newHarness(t)
	author := h.user(t, "author")
	bobby := h.user(t, "bobby")
	ctx := context.Background()

	post, err := h.service.CreatePost(ctx, author, "a post")
	if err != nil {
		t.Fatalf("create post failed: %v", err)
	}
	if _, err := h.service.CreateComment(ctx, bobby, post.ID, "nice"); err != nil {
		t.Fatalf("create comment failed: %v", err)
	}
	if _, err := h.service.CreateComment(ctx, author, post.ID, "thanks"); err != nil {
		t.Fatalf("self comment failed: %v", err)
	}

	listed := h.notificationsFor(t, author.ID)
	if len(listed) != 1 || listed[0].Type != notifications.TypeComment {
		t.Fatalf("expected exactly one comment notification, got %+v", listed)
	}
	payload := listed[0].Payload()
	if payload.Sender.ID != bobby.ID || payload.Context == nil || payload.Context.AuthorID == nil || *payload.Context.AuthorID != author.ID {
		t.Fatalf("unexpected comment payload %+v", payload)
	}
}

func TestCreateCommentSkipsBlockedPostAuthor(t *testing.T) {
	h := newHarness(t)
	author := h.user(t, "author")
	bobby := h.user(t, "bobby")
	ctx := context.Background()

	post, err := h.service.CreatePost(ctx, author, "a post")
	if err != nil {
		t.Fatalf("create post failed: %v", err)
	}
	if err := h.users.Block(ctx, author.ID, bobby.ID); err != nil {
		t.Fatalf("block failed: %v", err)
	}
	if _, err := h.service.CreateComment(ctx, bobby, post.ID, "nice"); err != nil {
		t.Fatalf("create comment failed: %v", err)
	}
	if len(h.notificationsFor(t, author.ID)) != 0 {
		t.Fatalf("blocked commenters must not notify the post author")
	}
}

func TestCreateCommentOnMissingPost(t *testing.T) {
	h := newHarness(t)
	author := h.user(t, "author")
	if _, err := h.service.CreateComment(context.Background(), author, 404, "hello"); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("expected post not found, got %v", err)
	}
}

func TestListCommentsOldestFirst(t *testing.T) {
	h := newHarness(t)
	author := h.user(t, "author")
	ctx := context.Background()
	post, err := h.service.CreatePost(ctx, author, "a post")
	if err != nil {
		t.Fatalf("create post failed: %v", err)
	}
	for _, body := range []string{"first", "second"} {
		if _, err := h.service.CreateComment(ctx, author, post.ID, body); err != nil {
			t.Fatalf("create comment failed: %v", err)
		}
	}
	comments, err := h.service.ListComments(ctx, post.ID)
	if err != nil || len(comments) != 2 || comments[0].Body != "first" {
		t.Fatalf("unexpected comments %+v (%v)", comments, err)
	}
}
