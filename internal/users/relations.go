package users

import (
	"context"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/svcerr"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/txn"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HasBlocked reports whether blockerID has blocked blockedID. The relation is directional.
func (s *Service) HasBlocked(ctx context.Context, blockerID, blockedID uint64) (bool, error) {
	var count int64
	err := txn.From(ctx, s.db).Model(&Block{}).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Count(&count).Error
	if err != nil {
		return false, svcerr.New("users.has_blocked", "query_failed", err)
	}
	return count > 0, nil
}

// Block records that blockerID blocks blockedID and severs follows in both directions.
// Blocking twice is a no-op.
func (s *Service) Block(ctx context.Context, blockerID, blockedID uint64) error {
	const operation = "users.block"
	if blockerID == blockedID {
		return svcerr.New(operation, "self", ErrSelfRelation)
	}
	if _, err := s.GetByID(ctx, blockedID); err != nil {
		return err
	}
	err := txn.Run(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		block := Block{BlockerID: blockerID, BlockedID: blockedID, CreatedAt: s.now().UTC()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&block).Error; err != nil {
			return err
		}
		return tx.Where("(follower_id = ? AND followee_id = ?) OR (follower_id = ? AND followee_id = ?)",
			blockerID, blockedID, blockedID, blockerID).
			Delete(&Follow{}).Error
	})
	if err != nil {
		s.logError(operation, "write_failed", err, zap.Uint64("blocker_id", blockerID), zap.Uint64("blocked_id", blockedID))
		return svcerr.New(operation, "write_failed", err)
	}
	return nil
}

// Unblock removes the block of blockedID by blockerID, if any.
func (s *Service) Unblock(ctx context.Context, blockerID, blockedID uint64) error {
	err := txn.From(ctx, s.db).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&Block{}).Error
	if err != nil {
		s.logError("users.unblock", "delete_failed", err, zap.Uint64("blocker_id", blockerID))
		return svcerr.New("users.unblock", "delete_failed", err)
	}
	return nil
}

// Follow makes followerID follow followeeID. It reports whether a new relation was created; only
// then is the followee notified.
func (s *Service) Follow(ctx context.Context, followerID, followeeID uint64) (bool, error) {
	const operation = "users.follow"
	if followerID == followeeID {
		return false, svcerr.New(operation, "self", ErrSelfRelation)
	}
	var created bool
	err := txn.Run(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		follower, err := s.GetByID(ctx, followerID)
		if err != nil {
			return err
		}
		if _, err := s.GetByID(ctx, followeeID); err != nil {
			return err
		}
		blocked, err := s.blockedEitherWay(ctx, followerID, followeeID)
		if err != nil {
			return err
		}
		if blocked {
			return svcerr.New(operation, "blocked", ErrBlocked)
		}

		follow := Follow{FollowerID: followerID, FolloweeID: followeeID, CreatedAt: s.now().UTC()}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&follow)
		if result.Error != nil {
			s.logError(operation, "insert_failed", result.Error, zap.Uint64("follower_id", followerID))
			return svcerr.New(operation, "insert_failed", result.Error)
		}
		created = result.RowsAffected == 1
		if created && s.notifier != nil {
			if _, err := s.notifier.NotifyFollow(ctx, followeeID, follower.Sender()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// Unfollow removes the relation, if any.
func (s *Service) Unfollow(ctx context.Context, followerID, followeeID uint64) error {
	err := txn.From(ctx, s.db).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Delete(&Follow{}).Error
	if err != nil {
		s.logError("users.unfollow", "delete_failed", err, zap.Uint64("follower_id", followerID))
		return svcerr.New("users.unfollow", "delete_failed", err)
	}
	return nil
}

func (s *Service) blockedEitherWay(ctx context.Context, first, second uint64) (bool, error) {
	blocked, err := s.HasBlocked(ctx, first, second)
	if err != nil || blocked {
		return blocked, err
	}
	return s.HasBlocked(ctx, second, first)
}
