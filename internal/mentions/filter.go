package mentions

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/svcerr"
	"github.com/MarcoPoloResearchLab/pulse/backend/internal/users"
)

var errMissingBlockChecker = errors.New("block checker is required")

// BlockChecker answers whether blockerID has blocked blockedID.
type BlockChecker interface {
	HasBlocked(ctx context.Context, blockerID, blockedID uint64) (bool, error)
}

// Filter decides which users an actor may interact with: never themselves, and never anyone on
// either side of a block.
type Filter struct {
	blocks BlockChecker
}

// NewFilter constructs a Filter.
func NewFilter(blocks BlockChecker) (*Filter, error) {
	if blocks == nil {
		return nil, svcerr.New("mentions.filter.new", "missing_block_checker", errMissingBlockChecker)
	}
	return &Filter{blocks: blocks}, nil
}

// CanInteract reports whether actorID may mention or notify targetID.
func (f *Filter) CanInteract(ctx context.Context, actorID, targetID uint64) (bool, error) {
	if actorID == targetID {
		return false, nil
	}
	blocked, err := f.blocks.HasBlocked(ctx, actorID, targetID)
	if err != nil || blocked {
		return false, err
	}
	blocked, err = f.blocks.HasBlocked(ctx, targetID, actorID)
	if err != nil {
		return false, err
	}
	return !blocked, nil
}

// Mentionable returns the candidates actor may mention, preserving their order.
func (f *Filter) Mentionable(ctx context.Context, actor users.User, candidates []users.User) ([]users.User, error) {
	mentionable := make([]users.User, 0, len(candidates))
	for _, candidate := range candidates {
		allowed, err := f.CanInteract(ctx, actor.ID, candidate.ID)
		if err != nil {
			return nil, svcerr.New("mentions.filter", "block_lookup_failed", err)
		}
		if allowed {
			mentionable = append(mentionable, candidate)
		}
	}
	return mentionable, nil
}
