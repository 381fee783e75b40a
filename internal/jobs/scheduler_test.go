package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubSweeper struct {
	removed int64
	err     error
	calls   int
}

func (s *stubSweeper) SweepOrphans(context.Context) (int64, error) {
	s.calls++
	return s.removed, s.err
}

func TestNewSchedulerRegistersSweep(t *testing.T) {
	scheduler, err := NewScheduler(Config{HashtagSweepSchedule: "@hourly", Sweeper: &stubSweeper{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scheduler.entries() != 1 {
		t.Fatalf("expected one registered job, got %d", scheduler.entries())
	}
}

func TestNewSchedulerEmptyScheduleDisablesSweep(t *testing.T) {
	scheduler, err := NewScheduler(Config{Sweeper: &stubSweeper{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scheduler.entries() != 0 {
		t.Fatalf("expected no registered jobs, got %d", scheduler.entries())
	}
}

func TestNewSchedulerRejectsInvalidSchedule(t *testing.T) {
	if _, err := NewScheduler(Config{HashtagSweepSchedule: "every tuesday", Sweeper: &stubSweeper{}}); err == nil {
		t.Fatalf("expected invalid schedule error")
	}
	if _, err := NewScheduler(Config{HashtagSweepSchedule: "@hourly"}); err == nil {
		t.Fatalf("expected missing sweeper error")
	}
}

func TestSweepHashtagsLogsOutcome(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sweeper := &stubSweeper{removed: 3}
	scheduler, err := NewScheduler(Config{Sweeper: sweeper, Logger: zap.New(core)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	scheduler.SweepHashtags(context.Background())
	sweeper.err = errors.New("database locked")
	scheduler.SweepHashtags(context.Background())

	if sweeper.calls != 2 {
		t.Fatalf("expected two sweeps, got %d", sweeper.calls)
	}
	finished := logs.FilterMessage("hashtag sweep finished").All()
	if len(finished) != 1 || finished[0].ContextMap()["removed"] != int64(3) {
		t.Fatalf("unexpected success logs: %v", finished)
	}
	failed := logs.FilterMessage("hashtag sweep failed").All()
	if len(failed) != 1 || failed[0].Level != zapcore.ErrorLevel {
		t.Fatalf("unexpected failure logs: %v", failed)
	}
	if failed[0].ContextMap()["trace_id"] == finished[0].ContextMap()["trace_id"] {
		t.Fatalf("expected a fresh trace id per run")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	scheduler, err := NewScheduler(Config{HashtagSweepSchedule: "@hourly", Sweeper: &stubSweeper{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- scheduler.Run(ctx)
	}()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected run error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not stop")
	}
}
