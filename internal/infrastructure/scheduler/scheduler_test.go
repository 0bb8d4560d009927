package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestScheduler(t *testing.T, cfg SchedulerConfig, fn ExecutorFunc) *Scheduler {
	t.Helper()
	s, err := NewScheduler(cfg, fn, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func TestDefaultSchedulerConfig(t *testing.T) {
	cfg := DefaultSchedulerConfig()

	assert.Zero(t, cfg.Interval)
	assert.Equal(t, 2*time.Minute, cfg.JobTimeout)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 30*time.Second, cfg.RetryDelay)
}

func TestNewScheduler_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SchedulerConfig)
	}{
		{"negative interval", func(c *SchedulerConfig) { c.Interval = -time.Second }},
		{"zero timeout", func(c *SchedulerConfig) { c.JobTimeout = 0 }},
		{"negative retries", func(c *SchedulerConfig) { c.RetryAttempts = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSchedulerConfig()
			tt.mutate(&cfg)
			_, err := NewScheduler(cfg, ExecutorFunc(func(context.Context, *Job) error { return nil }), zap.NewNop())
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestJobLifecycle(t *testing.T) {
	job := NewJob(TriggerManual, 1)
	assert.Equal(t, JobStatusPending, job.Status)

	job.Start()
	assert.Equal(t, JobStatusRunning, job.Status)
	require.NotNil(t, job.StartedAt)

	job.Fail("backend down")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.True(t, job.ShouldRetry())

	job.RetryCount = 1
	assert.False(t, job.ShouldRetry())

	job.Start()
	job.Complete()
	assert.Equal(t, JobStatusSuccess, job.Status)
	assert.Empty(t, job.Error)
}

func TestScheduler_SubmitRunsJob(t *testing.T) {
	done := make(chan *Job, 1)
	s := newTestScheduler(t, DefaultSchedulerConfig(), func(_ context.Context, job *Job) error {
		done <- job
		return nil
	})

	require.NoError(t, s.Submit(TriggerStartup))

	select {
	case job := <-done:
		assert.Equal(t, TriggerStartup, job.Trigger)
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
}

func TestScheduler_QueueHoldsOneJob(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	s := newTestScheduler(t, DefaultSchedulerConfig(), func(ctx context.Context, _ *Job) error {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})

	require.NoError(t, s.Submit(TriggerManual))
	<-started // worker busy

	require.NoError(t, s.Submit(TriggerManual))
	assert.ErrorIs(t, s.Submit(TriggerManual), ErrJobQueueFull)
	close(release)
}

func TestScheduler_RetriesFailedJob(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{})
	cfg := DefaultSchedulerConfig()
	cfg.RetryAttempts = 2
	cfg.RetryDelay = time.Millisecond

	s := newTestScheduler(t, cfg, func(context.Context, *Job) error {
		if calls.Add(1) < 3 {
			return errors.New("backend unavailable")
		}
		close(done)
		return nil
	})
	require.NoError(t, s.Submit(TriggerManual))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job was not retried to success")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestScheduler_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	cfg := DefaultSchedulerConfig()
	cfg.RetryAttempts = 1
	cfg.RetryDelay = time.Millisecond

	s := newTestScheduler(t, cfg, func(context.Context, *Job) error {
		calls.Add(1)
		return errors.New("backend unavailable")
	})
	require.NoError(t, s.Submit(TriggerManual))

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestScheduler_IntervalTicks(t *testing.T) {
	var mu sync.Mutex
	var triggers []Trigger
	cfg := DefaultSchedulerConfig()
	cfg.Interval = 10 * time.Millisecond

	newTestScheduler(t, cfg, func(_ context.Context, job *Job) error {
		mu.Lock()
		triggers = append(triggers, job.Trigger)
		mu.Unlock()
		return nil
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(triggers) >= 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, TriggerInterval, triggers[0])
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	s, err := NewScheduler(DefaultSchedulerConfig(), ExecutorFunc(func(ctx context.Context, _ *Job) error {
		<-ctx.Done()
		return ctx.Err()
	}), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Submit(TriggerManual))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	assert.ErrorIs(t, s.Submit(TriggerManual), ErrSchedulerNotRunning)
}
