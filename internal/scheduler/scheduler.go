// Package scheduler repeats the balance check on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"DormWatch/internal/monitor"
)

// Runner performs one balance check.
type Runner interface {
	Run(ctx context.Context) (monitor.Outcome, error)
}

// parser accepts standard five-field expressions, an optional leading
// seconds field and descriptors such as @hourly.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler owns the cron loop with the single check job.
type Scheduler struct {
	Cron   *cron.Cron
	Runner Runner
	Ctx    context.Context

	// job is RunNow behind the recover and skip-if-running chain shared
	// by cron ticks and Trigger.
	job       cron.Job
	triggered sync.WaitGroup
	log       zerolog.Logger
}

// NewScheduler creates a Scheduler. A tick or Trigger that fires while a
// check is still going is skipped.
func NewScheduler(ctx context.Context, runner Runner, log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: log}
	s := &Scheduler{
		Cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
		),
		Runner: runner,
		Ctx:    ctx,
		log:    log,
	}
	s.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(s.RunNow))
	return s
}

// Validate reports whether spec is an accepted cron expression.
func Validate(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// Register adds the check job on spec.
func (s *Scheduler) Register(spec string) error {
	sched, err := parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("register check task: %w", err)
	}
	s.Cron.Schedule(sched, s.job)
	s.log.Info().Str("cron", spec).Msg("check task registered")
	return nil
}

// Start starts the cron loop in the background.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop stops scheduling and waits for a running check to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.triggered.Wait()
	s.log.Info().Msg("scheduler stopped")
}

// Trigger runs the check outside the schedule. It is skipped when a check is
// already running.
func (s *Scheduler) Trigger() {
	s.triggered.Add(1)
	defer s.triggered.Done()
	s.job.Run()
}

// RunNow executes the check immediately, bypassing the skip-if-running
// guard.
func (s *Scheduler) RunNow() {
	if err := s.Ctx.Err(); err != nil {
		s.log.Debug().Err(err).Msg("context done, skipping check")
		return
	}
	out, err := s.Runner.Run(s.Ctx)
	if err != nil {
		s.log.Warn().Err(err).Str("run_id", out.RunID).Str("state", string(out.State)).Msg("check aborted")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
