// Package jobs runs the periodic booking sweep.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/example/autoescola/internal/application"
)

// DefaultSchedule runs the sweep every fifteen minutes.
const DefaultSchedule = "@every 15m"

// Sweeper auto-cancels and completes bookings.
type Sweeper interface {
	Sweep(ctx context.Context) (application.SweepResult, error)
}

// Config configures a Scheduler.
type Config struct {
	// Schedule is a standard cron expression or descriptor such as "@every 15m".
	Schedule string
	// Timeout bounds a single sweep. Zero means one minute.
	Timeout  time.Duration
	Location *time.Location
	Logger   zerolog.Logger
}

// Scheduler runs a Sweeper on a cron schedule. A sweep still running when
// the next one is due is skipped.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	timeout time.Duration
	logger  zerolog.Logger
	entry   cron.EntryID
}

// NewScheduler validates cfg.Schedule and registers the sweep. Call Start to run it.
func NewScheduler(sweeper Sweeper, cfg Config) (*Scheduler, error) {
	if sweeper == nil {
		return nil, errors.New("jobs: sweeper is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	logger := cfg.Logger.With().Str("component", "sweep_scheduler").Logger()
	cronLogger := cronLog{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		sweeper: sweeper,
		timeout: cfg.Timeout,
		logger:  logger,
	}

	id, err := s.cron.AddFunc(cfg.Schedule, s.run)
	if err != nil {
		return nil, fmt.Errorf("jobs: invalid sweep schedule %q: %w", cfg.Schedule, err)
	}
	s.entry = id
	return s, nil
}

// Start begins running sweeps in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Time("next_run", s.cron.Entry(s.entry).Next).Msg("sweep scheduler started")
}

// Stop prevents further sweeps and waits for a running one, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info().Msg("sweep scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one sweep immediately.
func (s *Scheduler) RunOnce(ctx context.Context) (application.SweepResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sweeper.Sweep(ctx)
}

func (s *Scheduler) run() {
	if _, err := s.RunOnce(context.Background()); err != nil {
		s.logger.Error().Err(err).Msg("scheduled sweep failed")
	}
}

// cronLog adapts zerolog to cron.Logger.
type cronLog struct {
	logger zerolog.Logger
}

func (l cronLog) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLog) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
