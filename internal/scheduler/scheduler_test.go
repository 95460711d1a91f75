package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ABHIRAMSHIBU/internetradio/internal/observability"
)

func quietScheduler() *Scheduler {
	return New(slog.New(slog.DiscardHandler))
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		spec  string
		valid bool
	}{
		{"@every 5m", true},
		{"@hourly", true},
		{"*/5 * * * *", true},
		{"0 3 * * 1", true},
		{"", false},
		{"every five minutes", false},
		{"* * *", false},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			err := ValidateSchedule(tt.spec)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestScheduler_Register(t *testing.T) {
	s := quietScheduler()
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Register("rescan", "@every 5m", noop))
	require.NoError(t, s.Register("manual", "", noop))
	assert.ErrorIs(t, s.Register("rescan", "@every 1m", noop), ErrDuplicateJob)
	assert.Error(t, s.Register("bad", "nope", noop))

	status := s.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "manual", status[0].Name)
	assert.Equal(t, "rescan", status[1].Name)
	assert.Equal(t, "@every 5m", status[1].Schedule)
}

func TestScheduler_Trigger(t *testing.T) {
	s := quietScheduler()
	ctx := context.Background()

	var runs atomic.Int32
	boom := errors.New("boom")
	require.NoError(t, s.Register("count", "", func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, s.Register("fail", "", func(context.Context) error { return boom }))

	require.NoError(t, s.Trigger(ctx, "count"))
	require.NoError(t, s.Trigger(ctx, "count"))
	assert.ErrorIs(t, s.Trigger(ctx, "fail"), boom)
	assert.ErrorIs(t, s.Trigger(ctx, "missing"), ErrUnknownJob)
	assert.Equal(t, int32(2), runs.Load())

	status := s.Status()
	require.Len(t, status, 2)
	assert.Equal(t, int64(2), status[0].Runs)
	assert.Zero(t, status[0].Failures)
	assert.False(t, status[0].LastRun.IsZero())
	assert.Equal(t, int64(1), status[1].Failures)
	assert.Equal(t, "boom", status[1].LastError)
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	s := quietScheduler()

	var runs atomic.Int32
	require.NoError(t, s.Register("tick", "@every 1s", func(context.Context) error {
		runs.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	status := s.Status()
	require.Len(t, status, 1)
	assert.False(t, status[0].NextRun.IsZero())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_StopCancelsRunningJob(t *testing.T) {
	s := quietScheduler()

	started := make(chan struct{})
	var sawCancel atomic.Bool
	require.NoError(t, s.Register("slow", "@every 1s", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never started")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.True(t, sawCancel.Load())
}

func TestScheduler_TriggerAfterStop(t *testing.T) {
	s := quietScheduler()
	require.NoError(t, s.Register("job", "", func(context.Context) error { return nil }))
	s.Stop()

	assert.ErrorIs(t, s.Trigger(context.Background(), "job"), context.Canceled)
}

func TestScheduler_JobLoggerInContext(t *testing.T) {
	s := quietScheduler()
	var got *slog.Logger
	require.NoError(t, s.Register("job", "", func(ctx context.Context) error {
		got = observability.LoggerFromContext(ctx)
		return nil
	}))
	require.NoError(t, s.Trigger(context.Background(), "job"))
	require.NotNil(t, got)
	assert.NotSame(t, slog.Default(), got)
}
