package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/svcerr"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/txn"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrInvalidUser indicates user input failed validation.
	ErrInvalidUser = errors.New("users: invalid user")
	// ErrUsernameTaken indicates another account already owns the username.
	ErrUsernameTaken = errors.New("users: username taken")
	// ErrSelfRelation indicates a user tried to follow or block themselves.
	ErrSelfRelation = errors.New("users: cannot relate to self")
	// ErrBlocked indicates a block relationship forbids the interaction.
	ErrBlocked = errors.New("users: interaction blocked")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
	usernamePattern    = regexp.MustCompile(`^[a-zA-Z0-9._]{4,15}$`)
	usernameStrip      = regexp.MustCompile(`[^a-zA-Z0-9._]+`)
)

const (
	maxUsernameLength   = 15
	minUsernameLength   = 4
	usernameSuffixTries = 50
)

// FollowNotifier records follow notifications.
type FollowNotifier interface {
	NotifyFollow(ctx context.Context, recipientID uint64, sender notifications.Sender) (notifications.Notification, error)
}

// ServiceConfig describes the dependencies of the user service.
type ServiceConfig struct {
	Database       *gorm.DB
	FollowNotifier FollowNotifier
	Clock          func() time.Time
	Logger         *zap.Logger
}

// Service owns canonical users, their provider identities and the block and follow relations
// between them.
type Service struct {
	db       *gorm.DB
	notifier FollowNotifier
	now      func() time.Time
	logger   *zap.Logger
	validate *validator.Validate
	cache    sync.Map
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, svcerr.New("users.service.new", "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	validate := validator.New()
	if err := validate.RegisterValidation("username", func(field validator.FieldLevel) bool {
		return usernamePattern.MatchString(field.Field().String())
	}); err != nil {
		return nil, svcerr.New("users.service.new", "validator_setup_failed", err)
	}
	return &Service{
		db:       cfg.Database,
		notifier: cfg.FollowNotifier,
		now:      clock,
		logger:   logger,
		validate: validate,
	}, nil
}

// CreateUserInput describes an account created outside the session flow.
type CreateUserInput struct {
	Username    string `validate:"required,username"`
	DisplayName string `validate:"max=320"`
	Role        Role   `validate:"omitempty,oneof=user moderator admin"`
}

// CreateUser inserts a user with an explicit username.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (User, error) {
	const operation = "users.create"
	if err := s.validate.Struct(input); err != nil {
		return User{}, svcerr.New(operation, "invalid_input", fmt.Errorf("%w: %v", ErrInvalidUser, err))
	}
	role := input.Role
	if role == "" {
		role = RoleUser
	}
	now := s.now().UTC()
	user := User{
		Username:    input.Username,
		DisplayName: normalize(input.DisplayName),
		Role:        role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := txn.Run(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		taken, err := s.usernameTaken(tx, user.Username)
		if err != nil {
			return err
		}
		if taken {
			return ErrUsernameTaken
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return User{}, svcerr.New(operation, "username_taken", err)
		}
		s.logError(operation, "insert_failed", err, zap.String("username", input.Username))
		return User{}, svcerr.New(operation, "insert_failed", err)
	}
	return user, nil
}

// SetRole changes the role of userID.
func (s *Service) SetRole(ctx context.Context, userID uint64, role Role) (User, error) {
	const operation = "users.set_role"
	switch role {
	case RoleUser, RoleModerator, RoleAdmin:
	default:
		return User{}, svcerr.New(operation, "invalid_role", ErrInvalidUser)
	}
	result := txn.From(ctx, s.db).Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"role": role, "updated_at": s.now().UTC()})
	if result.Error != nil {
		s.logError(operation, "update_failed", result.Error, zap.Uint64("user_id", userID))
		return User{}, svcerr.New(operation, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return User{}, svcerr.New(operation, "not_found", ErrUserNotFound)
	}
	return s.GetByID(ctx, userID)
}

// SetRoleByUsername changes the role of the user with the exact username.
func (s *Service) SetRoleByUsername(ctx context.Context, username string, role Role) (User, error) {
	found, err := s.FindByUsernames(ctx, []string{username})
	if err != nil {
		return User{}, err
	}
	if len(found) == 0 {
		return User{}, svcerr.New("users.set_role", "not_found", ErrUserNotFound)
	}
	return s.SetRole(ctx, found[0].ID, role)
}

// GetByID loads a user.
func (s *Service) GetByID(ctx context.Context, userID uint64) (User, error) {
	var user User
	err := txn.From(ctx, s.db).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, svcerr.New("users.get", "not_found", ErrUserNotFound)
	}
	if err != nil {
		return User{}, svcerr.New("users.get", "query_failed", err)
	}
	return user, nil
}

// FindByUsernames returns the users whose username exactly matches one of names, in the order
// of names. Unknown names are absent from the result.
func (s *Service) FindByUsernames(ctx context.Context, names []string) ([]User, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var found []User
	if err := txn.From(ctx, s.db).Where("username IN ?", names).Find(&found).Error; err != nil {
		s.logError("users.find_by_usernames", "query_failed", err)
		return nil, svcerr.New("users.find_by_usernames", "query_failed", err)
	}
	byName := make(map[string]User, len(found))
	for _, user := range found {
		byName[user.Username] = user
	}
	ordered := make([]User, 0, len(found))
	for _, name := range names {
		if user, ok := byName[name]; ok {
			ordered = append(ordered, user)
			delete(byName, name)
		}
	}
	return ordered, nil
}

// ResolveUser returns the canonical user for the provided session claims. It creates the user
// and its identity mapping when the provider+subject pair has not been seen before.
func (s *Service) ResolveUser(ctx context.Context, claims auth.SessionClaims) (User, error) {
	const operation = "users.resolve"
	provider, subject := deriveProviderSubject(claims)
	if subject == "" {
		return User{}, svcerr.New(operation, "invalid_identity", ErrInvalidIdentity)
	}

	cacheKey := provider + ":" + subject
	if cached, ok := s.cache.Load(cacheKey); ok {
		if userID, ok := cached.(uint64); ok {
			return s.syncRole(ctx, userID, claims)
		}
	}

	db := txn.From(ctx, s.db)
	var identity Identity
	err := db.Where("provider = ? AND subject = ?", provider, subject).Take(&identity).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		identity, err = s.createIdentity(ctx, provider, subject, claims)
		if err != nil {
			return User{}, err
		}
	case err != nil:
		s.logError(operation, "identity_query_failed", err, zap.String("provider", provider))
		return User{}, svcerr.New(operation, "identity_query_failed", err)
	default:
		updates := map[string]interface{}{"last_seen_at": s.now().UTC()}
		if email := normalize(claims.UserEmail); email != "" && email != identity.Email {
			updates["user_email"] = email
		}
		if err := db.Model(&Identity{}).
			Where("provider = ? AND subject = ?", provider, subject).
			Updates(updates).Error; err != nil {
			s.logger.Warn("identity touch failed", zap.String("provider", provider), zap.Error(err))
		}
	}

	s.cache.Store(cacheKey, identity.UserID)
	return s.syncRole(ctx, identity.UserID, claims)
}

// syncRole loads userID and applies the role asserted by claims. Sessions that carry no roles
// leave the stored role alone so promotions made through SetRole survive.
func (s *Service) syncRole(ctx context.Context, userID uint64, claims auth.SessionClaims) (User, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil || len(claims.UserRoles) == 0 {
		return user, err
	}
	role := roleFromClaims(claims)
	if role == user.Role {
		return user, nil
	}
	s.logger.Info("user role changed by session",
		zap.Uint64("user_id", userID),
		zap.String("from", string(user.Role)),
		zap.String("to", string(role)))
	return s.SetRole(ctx, userID, role)
}

func (s *Service) createIdentity(ctx context.Context, provider, subject string, claims auth.SessionClaims) (Identity, error) {
	const operation = "users.resolve"
	now := s.now().UTC()
	var identity Identity
	err := txn.Run(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		username, err := s.availableUsername(tx, usernameCandidates(claims, subject))
		if err != nil {
			return err
		}
		user := User{
			Username:    username,
			DisplayName: normalize(claims.UserDisplayName),
			Role:        roleFromClaims(claims),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		identity = Identity{
			Provider:   provider,
			Subject:    subject,
			UserID:     user.ID,
			Email:      normalize(claims.UserEmail),
			LastSeenAt: now,
		}
		return tx.Create(&identity).Error
	})
	if err == nil {
		return identity, nil
	}

	// A concurrent first sight of the same identity may have won the insert.
	var existing Identity
	if lookupErr := txn.From(ctx, s.db).
		Where("provider = ? AND subject = ?", provider, subject).
		Take(&existing).Error; lookupErr == nil {
		return existing, nil
	}
	s.logError(operation, "identity_create_failed", err, zap.String("provider", provider))
	return Identity{}, svcerr.New(operation, "identity_create_failed", err)
}

func (s *Service) availableUsername(tx *gorm.DB, candidates []string) (string, error) {
	for _, candidate := range candidates {
		taken, err := s.usernameTaken(tx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	base := candidates[0]
	for attempt := 1; attempt <= usernameSuffixTries; attempt++ {
		suffix := fmt.Sprintf("%d", attempt)
		candidate := truncate(base, maxUsernameLength-len(suffix)) + suffix
		taken, err := s.usernameTaken(tx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "u" + strings.ReplaceAll(uuid.NewString(), "-", "")[:maxUsernameLength-1], nil
}

func (s *Service) usernameTaken(tx *gorm.DB, username string) (bool, error) {
	var count int64
	if err := tx.Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("user service error", attrs...)
}

// usernameCandidates lists mentionable usernames derived from the claims, best first. The list is
// never empty.
func usernameCandidates(claims auth.SessionClaims, subject string) []string {
	var candidates []string
	seen := make(map[string]struct{})
	add := func(raw string) {
		candidate := truncate(usernameStrip.ReplaceAllString(normalize(raw), ""), maxUsernameLength)
		if len(candidate) < minUsernameLength {
			return
		}
		if _, dup := seen[candidate]; dup {
			return
		}
		seen[candidate] = struct{}{}
		candidates = append(candidates, candidate)
	}
	add(claims.UserName)
	if local, _, found := strings.Cut(normalize(claims.UserEmail), "@"); found {
		add(local)
	}
	add(claims.UserDisplayName)
	add("user" + subject)
	if len(candidates) == 0 {
		candidates = append(candidates, "user")
	}
	return candidates
}

func roleFromClaims(claims auth.SessionClaims) Role {
	switch {
	case claims.HasRole(string(RoleAdmin)):
		return RoleAdmin
	case claims.HasRole(string(RoleModerator)):
		return RoleModerator
	default:
		return RoleUser
	}
}

func deriveProviderSubject(claims auth.SessionClaims) (string, string) {
	provider := "default"
	subject := normalize(claims.Subject)

	raw := normalize(claims.UserID)
	if raw != "" {
		if strings.Contains(raw, ":") {
			segments := strings.SplitN(raw, ":", 2)
			if normalize(segments[0]) != "" && normalize(segments[1]) != "" {
				provider = normalize(segments[0])
				subject = normalize(segments[1])
			}
		} else if subject == "" {
			subject = raw
		}
	}

	if subject == "" {
		subject = normalize(claims.UserEmail)
	}

	return provider, subject
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
