package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"FinSite/internal/logger"
	"FinSite/internal/model"
	"FinSite/internal/notifier"
	"FinSite/internal/recorder"
)

// Runner is the part of the reconciler the scheduler drives.
type Runner interface {
	Today() time.Time
	ReconcileAll(ctx context.Context, start, end time.Time) (*model.RunSummary, error)
	DailyClose(ctx context.Context, tickers []string, day time.Time) (*model.RunSummary, error)
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Cron       *cron.Cron
	Runner     Runner
	Recorder   recorder.Recorder
	Notifier   notifier.Notifier
	Lookback   int
	RunTimeout time.Duration
	Ctx        context.Context
	logger     *logger.Logger
}

// NewScheduler creates a new Scheduler. Cron specs are evaluated in loc.
func NewScheduler(ctx context.Context, run Runner, rec recorder.Recorder, n notifier.Notifier, loc *time.Location, log *logger.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if n == nil {
		n = notifier.NoopNotifier{}
	}
	if log == nil {
		log = logger.NewSilent()
	}
	return &Scheduler{
		Cron:       cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		Runner:     run,
		Recorder:   rec,
		Notifier:   n,
		Lookback:   7,
		RunTimeout: 30 * time.Minute,
		Ctx:        ctx,
		logger:     log,
	}
}

// RegisterAll registers the gap backfill and the daily close tasks.
// An empty cron expression leaves that task unscheduled.
func (s *Scheduler) RegisterAll(backfillCron, dailyCron string) error {
	if backfillCron != "" {
		if _, err := s.Cron.AddFunc(backfillCron, s.backfillTask); err != nil {
			return fmt.Errorf("register backfill task: %w", err)
		}
	}
	if dailyCron != "" {
		if _, err := s.Cron.AddFunc(dailyCron, s.dailyTask); err != nil {
			return fmt.Errorf("register daily task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info().Int("entries", len(s.Cron.Entries())).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running tasks.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// RunBackfillNow executes the backfill task immediately (for RUN_ON_START).
func (s *Scheduler) RunBackfillNow() *model.RunSummary {
	return s.backfill()
}

func (s *Scheduler) backfillTask() { s.backfill() }

func (s *Scheduler) backfill() *model.RunSummary {
	end := s.Runner.Today()
	start := end.AddDate(0, 0, -s.Lookback)
	s.logger.Info().Time("start", start).Time("end", end).Msg("running backfill task")

	ctx, cancel := s.runContext()
	defer cancel()
	sum, err := s.Runner.ReconcileAll(ctx, start, end)
	return s.finish("backfill", sum, err)
}

func (s *Scheduler) dailyTask() {
	s.logger.Info().Msg("running daily close task")
	ctx, cancel := s.runContext()
	defer cancel()
	sum, err := s.Runner.DailyClose(ctx, nil, s.Runner.Today())
	s.finish("daily", sum, err)
}

func (s *Scheduler) runContext() (context.Context, context.CancelFunc) {
	if s.RunTimeout > 0 {
		return context.WithTimeout(s.Ctx, s.RunTimeout)
	}
	return context.WithCancel(s.Ctx)
}

func (s *Scheduler) finish(task string, sum *model.RunSummary, err error) *model.RunSummary {
	if err != nil {
		s.logger.Error().Err(err).Str("task", task).Msg("run failed")
	}
	if sum == nil {
		return nil
	}
	s.logger.Info().
		Str("task", task).
		Str("run_id", sum.RunID).
		Int("tickers", len(sum.Results)).
		Int("filled", sum.Filled()).
		Int("skipped", sum.Skipped()).
		Strs("failed", sum.FailedTickers()).
		Bool("aborted", sum.Aborted).
		Msg("run finished")

	if err := s.Recorder.RecordRun(sum); err != nil {
		s.logger.Error().Err(err).Msg("record run")
	}
	if err := s.Notifier.NotifyRun(s.Ctx, sum); err != nil {
		s.logger.Error().Err(err).Msg("send revalidation")
	}
	return sum
}
