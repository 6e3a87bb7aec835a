package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/example/autoescola/internal/application"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingSweeper struct {
	calls  atomic.Int32
	result application.SweepResult
	err    error
	block  chan struct{}
}

func (s *countingSweeper) Sweep(ctx context.Context) (application.SweepResult, error) {
	s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return application.SweepResult{}, ctx.Err()
		}
	}
	return s.result, s.err
}

func TestNewScheduler(t *testing.T) {
	t.Parallel()

	t.Run("rejects invalid schedules", func(t *testing.T) {
		t.Parallel()
		_, err := NewScheduler(&countingSweeper{}, Config{Schedule: "every now and then"})
		assert.Error(t, err)
	})

	t.Run("requires a sweeper", func(t *testing.T) {
		t.Parallel()
		_, err := NewScheduler(nil, Config{})
		assert.Error(t, err)
	})

	t.Run("defaults to the fifteen minute schedule", func(t *testing.T) {
		t.Parallel()
		s, err := NewScheduler(&countingSweeper{}, Config{Logger: zerolog.Nop()})
		require.NoError(t, err)
		entry := s.cron.Entry(s.entry)
		now := time.Now()
		assert.WithinDuration(t, now.Add(15*time.Minute), entry.Schedule.Next(now), time.Second)
	})
}

func TestSchedulerRunsSweeps(t *testing.T) {
	t.Parallel()

	sweeper := &countingSweeper{result: application.SweepResult{Cancelled: 1}}
	s, err := NewScheduler(sweeper, Config{Schedule: "@every 1s", Logger: zerolog.Nop()})
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestSchedulerRunOnce(t *testing.T) {
	t.Parallel()

	t.Run("returns the sweep result", func(t *testing.T) {
		t.Parallel()
		sweeper := &countingSweeper{result: application.SweepResult{Cancelled: 2, Completed: 1}}
		s, err := NewScheduler(sweeper, Config{Logger: zerolog.Nop()})
		require.NoError(t, err)

		result, err := s.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, application.SweepResult{Cancelled: 2, Completed: 1}, result)
		assert.EqualValues(t, 1, sweeper.calls.Load())
	})

	t.Run("propagates failures", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("storage unavailable")
		s, err := NewScheduler(&countingSweeper{err: boom}, Config{Logger: zerolog.Nop()})
		require.NoError(t, err)

		_, err = s.RunOnce(context.Background())
		assert.ErrorIs(t, err, boom)
	})

	t.Run("bounds a sweep with the timeout", func(t *testing.T) {
		t.Parallel()
		sweeper := &countingSweeper{block: make(chan struct{})}
		s, err := NewScheduler(sweeper, Config{Timeout: 20 * time.Millisecond, Logger: zerolog.Nop()})
		require.NoError(t, err)

		_, err = s.RunOnce(context.Background())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
