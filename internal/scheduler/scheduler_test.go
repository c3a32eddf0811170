package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubJobs struct {
	swept    chan struct{}
	released int64
	finished int
	err      error
}

func (jobs *stubJobs) SweepExpiredClaims(ctx context.Context) (int64, error) {
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("expected job deadline")
	}
	if jobs.swept != nil {
		select {
		case jobs.swept <- struct{}{}:
		default:
		}
	}
	return jobs.released, jobs.err
}

func (jobs *stubJobs) PollCardJobs(context.Context) (int, error) {
	return jobs.finished, jobs.err
}

func TestSweepClaimsLogsReleasedCount(test *testing.T) {
	test.Parallel()
	core, recorded := observer.New(zapcore.InfoLevel)
	scheduler := New(&stubJobs{released: 2}, zap.New(core), Config{})
	scheduler.SweepClaims()

	entries := recorded.FilterMessage("released expired claims").All()
	if len(entries) != 1 || entries[0].ContextMap()["count"] != int64(2) {
		test.Fatalf("expected released count log, got %+v", recorded.All())
	}
}

func TestPollCardsLogsFailures(test *testing.T) {
	test.Parallel()
	core, recorded := observer.New(zapcore.InfoLevel)
	scheduler := New(&stubJobs{finished: 1, err: errors.New("status source down")}, zap.New(core), Config{})
	scheduler.PollCards()

	entries := recorded.FilterMessage("card poll failed").All()
	if len(entries) != 1 || entries[0].Level != zapcore.ErrorLevel {
		test.Fatalf("expected error log, got %+v", recorded.All())
	}
}

func TestStartRejectsInvalidSchedule(test *testing.T) {
	test.Parallel()
	scheduler := New(&stubJobs{}, zap.NewNop(), Config{SweepSchedule: "every now and then"})
	if err := scheduler.Start(context.Background()); err == nil {
		test.Fatalf("expected invalid schedule error")
	}
}

func TestStartRunsScheduledSweep(test *testing.T) {
	test.Parallel()
	jobs := &stubJobs{swept: make(chan struct{}, 1)}
	scheduler := New(jobs, zap.NewNop(), Config{SweepSchedule: "@every 1s"})
	if err := scheduler.Start(context.Background()); err != nil {
		test.Fatalf("start: %v", err)
	}
	defer scheduler.Stop()

	select {
	case <-jobs.swept:
	case <-time.After(5 * time.Second):
		test.Fatalf("expected sweep to run")
	}
}
