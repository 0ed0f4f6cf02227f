package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLocker struct {
	held     bool
	released int
	err      error
}

func (l *fakeLocker) Acquire(context.Context, string) (func(), bool, error) {
	if l.err != nil {
		return func() {}, false, l.err
	}
	if l.held {
		return func() {}, false, nil
	}
	return func() { l.released++ }, true, nil
}

func TestRegisterValidatesSchedule(t *testing.T) {
	s := NewScheduler(discard(), nil, 0)

	require.NoError(t, s.Register("waste", "0 0 * * * *", func(context.Context) error { return nil }))
	require.NoError(t, s.Register("manual", "", func(context.Context) error { return nil }))
	assert.Error(t, s.Register("bad", "every hour", func(context.Context) error { return nil }))
	assert.Error(t, s.Register("waste", "", func(context.Context) error { return nil }), "duplicate name")

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "manual", jobs[0].Name)
	assert.Equal(t, "waste", jobs[1].Name)
}

func TestRunRecordsOutcome(t *testing.T) {
	s := NewScheduler(discard(), nil, time.Minute)
	boom := errors.New("store down")
	require.NoError(t, s.Register("forecast", "", func(context.Context) error { return boom }))

	err := s.Run(context.Background(), "forecast")

	assert.ErrorIs(t, err, boom)
	jobs := s.ListJobs()
	assert.ErrorIs(t, jobs[0].LastErr, boom)
	assert.False(t, jobs[0].LastRun.IsZero())

	assert.ErrorIs(t, s.Run(context.Background(), "missing"), ErrUnknownJob)
}

func TestRunSkipsOverlappingRun(t *testing.T) {
	s := NewScheduler(discard(), nil, time.Minute)
	started := make(chan struct{})
	finish := make(chan struct{})
	require.NoError(t, s.Register("idle", "", func(context.Context) error {
		close(started)
		<-finish
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), "idle") }()
	<-started

	assert.ErrorIs(t, s.Run(context.Background(), "idle"), ErrAlreadyRunning)
	close(finish)
	assert.NoError(t, <-done)
}

func TestRunHonoursLocker(t *testing.T) {
	locker := &fakeLocker{held: true}
	s := NewScheduler(discard(), locker, time.Minute)
	calls := 0
	require.NoError(t, s.Register("waste", "", func(context.Context) error { calls++; return nil }))

	assert.ErrorIs(t, s.Run(context.Background(), "waste"), ErrAlreadyRunning)
	assert.Zero(t, calls)

	locker.held = false
	require.NoError(t, s.Run(context.Background(), "waste"))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, locker.released)

	locker.err = errors.New("redis unreachable")
	assert.ErrorContains(t, s.Run(context.Background(), "waste"), "redis unreachable")
	assert.Equal(t, 1, calls)
}
