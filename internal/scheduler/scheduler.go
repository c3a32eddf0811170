package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	DefaultSweepSchedule    = "@every 1m"
	DefaultCardPollSchedule = "@every 30s"
	defaultJobTimeout       = 20 * time.Second
)

// Jobs is the maintenance surface of the gifting service.
type Jobs interface {
	SweepExpiredClaims(ctx context.Context) (int64, error)
	PollCardJobs(ctx context.Context) (int, error)
}

// Config holds cron specs for each job. An empty spec disables that job.
type Config struct {
	SweepSchedule    string
	CardPollSchedule string
	JobTimeout       time.Duration
}

// Scheduler runs the periodic claim sweep and card job poll.
type Scheduler struct {
	cron   *cron.Cron
	jobs   Jobs
	logger *zap.Logger
	config Config
	ctx    context.Context
}

// New creates a scheduler. Panicking jobs are recovered and overlapping runs are skipped.
func New(jobs Jobs, logger *zap.Logger, config Config) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaultJobTimeout
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		jobs:   jobs,
		logger: logger,
		config: config,
		ctx:    context.Background(),
	}
}

// Start registers the jobs and starts the cron loop. Jobs run with contexts derived from ctx.
func (scheduler *Scheduler) Start(ctx context.Context) error {
	scheduler.ctx = ctx
	if scheduler.config.SweepSchedule != "" {
		if _, err := scheduler.cron.AddFunc(scheduler.config.SweepSchedule, scheduler.SweepClaims); err != nil {
			return fmt.Errorf("schedule claim sweep %q: %w", scheduler.config.SweepSchedule, err)
		}
		scheduler.logger.Info("scheduled claim sweep", zap.String("schedule", scheduler.config.SweepSchedule))
	}
	if scheduler.config.CardPollSchedule != "" {
		if _, err := scheduler.cron.AddFunc(scheduler.config.CardPollSchedule, scheduler.PollCards); err != nil {
			return fmt.Errorf("schedule card poll %q: %w", scheduler.config.CardPollSchedule, err)
		}
		scheduler.logger.Info("scheduled card poll", zap.String("schedule", scheduler.config.CardPollSchedule))
	}
	scheduler.cron.Start()
	return nil
}

// Stop stops the cron loop; the returned context is done once running jobs finish.
func (scheduler *Scheduler) Stop() context.Context {
	return scheduler.cron.Stop()
}

// SweepClaims releases claims whose lease expired.
func (scheduler *Scheduler) SweepClaims() {
	ctx, cancel := context.WithTimeout(scheduler.ctx, scheduler.config.JobTimeout)
	defer cancel()
	released, err := scheduler.jobs.SweepExpiredClaims(ctx)
	if err != nil {
		scheduler.logger.Error("claim sweep failed", zap.Error(err))
		return
	}
	if released > 0 {
		scheduler.logger.Info("released expired claims", zap.Int64("count", released))
	}
}

// PollCards asks the rendering collaborator about pending card jobs.
func (scheduler *Scheduler) PollCards() {
	ctx, cancel := context.WithTimeout(scheduler.ctx, scheduler.config.JobTimeout)
	defer cancel()
	finished, err := scheduler.jobs.PollCardJobs(ctx)
	if err != nil {
		scheduler.logger.Error("card poll failed", zap.Int("finished", finished), zap.Error(err))
		return
	}
	if finished > 0 {
		scheduler.logger.Info("card jobs finished", zap.Int("count", finished))
	}
}
