// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const defaultRunTimeout = 2 * time.Minute

var errMissingSweeper = errors.New("orphan sweeper is required")

// OrphanSweeper deletes hashtags no post uses anymore.
type OrphanSweeper interface {
	SweepOrphans(ctx context.Context) (int64, error)
}

// Config describes the scheduled jobs.
type Config struct {
	HashtagSweepSchedule string
	Sweeper              OrphanSweeper
	RunTimeout           time.Duration
	Logger               *zap.Logger
}

// Scheduler owns the cron engine and the jobs registered on it.
type Scheduler struct {
	engine  *cron.Cron
	sweeper OrphanSweeper
	timeout time.Duration
	logger  *zap.Logger
}

// NewScheduler registers the configured jobs. An empty schedule disables the sweep.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Sweeper == nil {
		return nil, errMissingSweeper
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.RunTimeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	scheduler := &Scheduler{
		engine:  cron.New(),
		sweeper: cfg.Sweeper,
		timeout: timeout,
		logger:  logger,
	}
	if schedule := strings.TrimSpace(cfg.HashtagSweepSchedule); schedule != "" {
		if _, err := scheduler.engine.AddFunc(schedule, scheduler.sweepHashtags); err != nil {
			return nil, err
		}
		logger.Info("hashtag sweep scheduled", zap.String("schedule", schedule))
	}
	return scheduler, nil
}

// Run starts the engine and blocks until ctx ends, then waits for running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.engine.Start()
	<-ctx.Done()
	<-s.engine.Stop().Done()
	return nil
}

// entries reports the number of registered jobs.
func (s *Scheduler) entries() int {
	return len(s.engine.Entries())
}

func (s *Scheduler) sweepHashtags() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.SweepHashtags(ctx)
}

// SweepHashtags runs one orphan sweep and logs its outcome.
func (s *Scheduler) SweepHashtags(ctx context.Context) {
	logger := s.logger.With(zap.String("job", "hashtag_sweep"), zap.String("trace_id", uuid.NewString()))
	started := time.Now()
	removed, err := s.sweeper.SweepOrphans(ctx)
	if err != nil {
		logger.Error("hashtag sweep failed", zap.Error(err))
		return
	}
	logger.Info("hashtag sweep finished", zap.Int64("removed", removed), zap.Duration("duration", time.Since(started)))
}
