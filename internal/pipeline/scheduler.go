package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/claimsiq/claimsiq/internal/platform/logging"
)

var ErrSchedulerRunning = errors.New("scheduler already running")

// Executor runs a pipeline once.
type Executor interface {
	Run(ctx context.Context, trigger string) (*Run, error)
}

// Scheduler fires the pipeline on a cron schedule. A tick that arrives while
// the previous run is still going is dropped.
type Scheduler struct {
	exec     Executor
	schedule string
	logger   zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running atomic.Bool
	skipped atomic.Int64
}

func NewScheduler(exec Executor, schedule string, logger zerolog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return &Scheduler{
		exec:     exec,
		schedule: schedule,
		logger:   logging.Component(logger, "scheduler"),
	}, nil
}

// Start registers the job and starts the cron loop. Runs use a context
// derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return ErrSchedulerRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{s.logger})))
	if _, err := c.AddFunc(s.schedule, func() { s.trigger(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("add cron job: %w", err)
	}
	c.Start()
	s.cron, s.cancel = c, cancel

	s.logger.Info().Str("schedule", s.schedule).Time("next_run", c.Entries()[0].Next).Msg("scheduler started")
	return nil
}

// Stop halts new ticks and waits for a running pipeline to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	<-c.Stop().Done()
	cancel()
	s.logger.Info().Int64("skipped_runs", s.skipped.Load()).Msg("scheduler stopped")
}

// Skipped reports how many ticks were dropped because a run was in progress.
func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }

func (s *Scheduler) trigger(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Warn().Msg("previous pipeline run still in progress, skipping tick")
		return
	}
	defer s.running.Store(false)

	run, err := s.exec.Run(ctx, TriggerSchedule)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduled pipeline run failed")
		return
	}
	s.logger.Info().Str("run_id", run.ID.String()).Msg("scheduled pipeline run completed")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
