// Package seed fills a database with fake users, posts, comments and follows for local development.
package seed

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/app"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/users"
	"github.com/brianvoe/gofakeit/v6"
	"go.uber.org/zap"
)

const maxUsernameAttempts = 5

var (
	usernameDisallowed = regexp.MustCompile(`[^a-zA-Z0-9._]`)
	hashtagDisallowed  = regexp.MustCompile(`[^\p{L}\p{N}_]`)
)

// Options sizes the generated data set. Seed makes runs reproducible.
type Options struct {
	Users           int
	PostsPerUser    int
	CommentsPerPost int
	Seed            int64
}

// Summary counts what was created.
type Summary struct {
	Users    int
	Posts    int
	Comments int
	Follows  int
}

// Run generates the data set through the domain services so mentions, hashtags and notifications
// are produced the same way live traffic produces them.
func Run(ctx context.Context, services *app.Services, options Options, logger *zap.Logger) (Summary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	faker := gofakeit.New(options.Seed)
	var summary Summary

	accounts := make([]users.User, 0, options.Users)
	for i := 0; i < options.Users; i++ {
		user, err := createUser(ctx, services.Users, faker)
		if err != nil {
			return summary, err
		}
		accounts = append(accounts, user)
	}
	summary.Users = len(accounts)
	if len(accounts) == 0 {
		return summary, nil
	}

	for _, author := range accounts {
		for i := 0; i < options.PostsPerUser; i++ {
			post, err := services.Content.CreatePost(ctx, author, postBody(faker, accounts))
			if err != nil {
				return summary, err
			}
			summary.Posts++
			for j := 0; j < options.CommentsPerPost; j++ {
				commenter := accounts[faker.Number(0, len(accounts)-1)]
				if _, err := services.Content.CreateComment(ctx, commenter, post.ID, commentBody(faker, accounts)); err != nil {
					return summary, err
				}
				summary.Comments++
			}
		}
		followee := accounts[faker.Number(0, len(accounts)-1)]
		if followee.ID == author.ID {
			continue
		}
		created, err := services.Users.Follow(ctx, author.ID, followee.ID)
		if err != nil {
			return summary, err
		}
		if created {
			summary.Follows++
		}
	}

	logger.Info("seed data created",
		zap.Int("users", summary.Users),
		zap.Int("posts", summary.Posts),
		zap.Int("comments", summary.Comments),
		zap.Int("follows", summary.Follows),
	)
	return summary, nil
}

func createUser(ctx context.Context, accounts *users.Service, faker *gofakeit.Faker) (users.User, error) {
	var lastErr error
	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		user, err := accounts.CreateUser(ctx, users.CreateUserInput{
			Username:    fakeUsername(faker),
			DisplayName: faker.Name(),
		})
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, users.ErrUsernameTaken) {
			return users.User{}, err
		}
		lastErr = err
	}
	return users.User{}, lastErr
}

func fakeUsername(faker *gofakeit.Faker) string {
	name := usernameDisallowed.ReplaceAllString(faker.Username(), "")
	if name == "" {
		name = "user"
	}
	if len(name) > 12 {
		name = name[:12]
	}
	return fmt.Sprintf("%s%03d", name, faker.Number(0, 999))
}

func postBody(faker *gofakeit.Faker, accounts []users.User) string {
	var body strings.Builder
	body.WriteString(faker.Sentence(faker.Number(6, 14)))
	body.WriteString(" @")
	body.WriteString(accounts[faker.Number(0, len(accounts)-1)].Username)
	body.WriteString(" #")
	body.WriteString(fakeHashtag(faker))
	return body.String()
}

func fakeHashtag(faker *gofakeit.Faker) string {
	tag := hashtagDisallowed.ReplaceAllString(strings.ToLower(faker.HipsterWord()), "")
	if tag == "" {
		return "pulse"
	}
	return tag
}

func commentBody(faker *gofakeit.Faker, accounts []users.User) string {
	if faker.Bool() {
		return faker.Sentence(faker.Number(3, 10))
	}
	return fmt.Sprintf("@%s %s", accounts[faker.Number(0, len(accounts)-1)].Username, faker.Sentence(faker.Number(3, 8)))
}
