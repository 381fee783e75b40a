package hashtags

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/svcerr"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/txn"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	orphanCondition = "NOT EXISTS (SELECT 1 FROM post_hashtags WHERE post_hashtags.hashtag_id = hashtags.id)"
	claimAttempts   = 3
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errTagsVanished    = errors.New("hashtags removed while being linked")
	noOpLogger         = zap.NewNop()
)

// SynchronizerConfig describes the dependencies of the Synchronizer.
type SynchronizerConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Synchronizer keeps post/hashtag associations equal to the tags in post bodies and removes tags
// that no post uses anymore.
type Synchronizer struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewSynchronizer constructs a Synchronizer.
func NewSynchronizer(cfg SynchronizerConfig) (*Synchronizer, error) {
	if cfg.Database == nil {
		return nil, svcerr.New("hashtags.synchronizer.new", "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Synchronizer{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Sync replaces the tags of postID with exactly the tags in body. Tags left without posts by the
// replacement are deleted.
func (s *Synchronizer) Sync(ctx context.Context, postID uint64, body string) ([]Hashtag, error) {
	const operation = "hashtags.sync"
	names := ExtractHashtags(body)
	var tags []Hashtag
	err := txn.Run(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		previous, err := s.tagIDs(tx, postID)
		if err != nil {
			return err
		}
		tags, err = s.getOrCreate(tx, names)
		if err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", postID).Delete(&PostHashtag{}).Error; err != nil {
			return err
		}
		if len(tags) > 0 {
			links := make([]PostHashtag, 0, len(tags))
			for _, tag := range tags {
				links = append(links, PostHashtag{PostID: postID, HashtagID: tag.ID})
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error; err != nil {
				return err
			}
		}
		_, err = s.deleteOrphans(tx, previous)
		return err
	})
	if err != nil {
		s.logError(operation, "write_failed", err, zap.Uint64("post_id", postID))
		return nil, svcerr.New(operation, "write_failed", err)
	}
	return tags, nil
}

// DetachAndClean removes every tag of postID and deletes the ones no other post uses.
func (s *Synchronizer) DetachAndClean(ctx context.Context, postID uint64) error {
	const operation = "hashtags.detach"
	err := txn.Run(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		previous, err := s.tagIDs(tx, postID)
		if err != nil {
			return err
		}
		if len(previous) == 0 {
			return nil
		}
		if err := tx.Where("post_id = ?", postID).Delete(&PostHashtag{}).Error; err != nil {
			return err
		}
		_, err = s.deleteOrphans(tx, previous)
		return err
	})
	if err != nil {
		s.logError(operation, "write_failed", err, zap.Uint64("post_id", postID))
		return svcerr.New(operation, "write_failed", err)
	}
	return nil
}

// SweepOrphans deletes every tag without posts and returns how many were removed.
func (s *Synchronizer) SweepOrphans(ctx context.Context) (int64, error) {
	var removed int64
	err := txn.Run(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		var candidates []uint64
		if err := tx.Model(&Hashtag{}).Where(orphanCondition).Pluck("id", &candidates).Error; err != nil {
			return err
		}
		var err error
		removed, err = s.deleteOrphans(tx, candidates)
		return err
	})
	if err != nil {
		s.logError("hashtags.sweep", "delete_failed", err)
		return 0, svcerr.New("hashtags.sweep", "delete_failed", err)
	}
	return removed, nil
}

// TagsForPost returns the tag names of postID in alphabetical order.
func (s *Synchronizer) TagsForPost(ctx context.Context, postID uint64) ([]string, error) {
	var names []string
	err := txn.From(ctx, s.db).Model(&Hashtag{}).
		Joins("JOIN post_hashtags ON post_hashtags.hashtag_id = hashtags.id").
		Where("post_hashtags.post_id = ?", postID).
		Order("hashtags.name").
		Pluck("hashtags.name", &names).Error
	if err != nil {
		return nil, svcerr.New("hashtags.list", "query_failed", err)
	}
	return names, nil
}

func (s *Synchronizer) getOrCreate(tx *gorm.DB, names []string) ([]Hashtag, error) {
	if len(names) == 0 {
		return nil, nil
	}
	for attempt := 0; attempt < claimAttempts; attempt++ {
		now := s.clock().UTC()
		for _, name := range names {
			tag := Hashtag{Name: name, CreatedAt: now}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&tag).Error; err != nil {
				return nil, err
			}
		}
		// Locked tags cannot be removed as orphans until the new links commit. A tag deleted
		// between the insert and the lock is missing here and gets recreated on the next pass.
		var tags []Hashtag
		if err := forUpdate(tx).Where("name IN ?", names).Order("id").Find(&tags).Error; err != nil {
			return nil, err
		}
		if len(tags) == len(names) {
			return tags, nil
		}
	}
	return nil, errTagsVanished
}

func (s *Synchronizer) tagIDs(tx *gorm.DB, postID uint64) ([]uint64, error) {
	var ids []uint64
	err := tx.Model(&PostHashtag{}).Where("post_id = ?", postID).Pluck("hashtag_id", &ids).Error
	return ids, err
}

func (s *Synchronizer) deleteOrphans(tx *gorm.DB, candidateIDs []uint64) (int64, error) {
	if len(candidateIDs) == 0 {
		return 0, nil
	}
	// The orphan check runs as a separate statement after the lock so it sees links committed
	// by writers that held the tag.
	var locked []uint64
	if err := forUpdate(tx.Model(&Hashtag{})).Where("id IN ?", candidateIDs).Order("id").Pluck("id", &locked).Error; err != nil {
		return 0, err
	}
	if len(locked) == 0 {
		return 0, nil
	}
	result := tx.Where("id IN ?", locked).Where(orphanCondition).Delete(&Hashtag{})
	return result.RowsAffected, result.Error
}

// forUpdate row-locks the selected tags. SQLite has no row locks and serializes writers on its
// single connection.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (s *Synchronizer) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("hashtag synchronizer error", attrs...)
}
