package realtime

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Fanout broadcasts every event to all members concurrently and reports the first failure.
type Fanout []Broadcaster

func (f Fanout) Broadcast(ctx context.Context, event Event) error {
	var group errgroup.Group
	for _, broadcaster := range f {
		if broadcaster == nil {
			continue
		}
		group.Go(func() error {
			return broadcaster.Broadcast(ctx, event)
		})
	}
	return group.Wait()
}
