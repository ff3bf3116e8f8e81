package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_RejectsBadSpecAndDuplicates(t *testing.T) {
	s := New()
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add("whales", "@every 10m", noop))
	assert.Error(t, s.Add("whales", "@every 1h", noop))
	assert.Error(t, s.Add("broken", "not a cron spec", noop))

	next := s.Next()
	assert.Len(t, next, 1)
	assert.Contains(t, next, "whales")
}

func TestTrigger(t *testing.T) {
	s := New()
	var calls int32
	require.NoError(t, s.Add("insight", "@every 1h", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("no provider")
	}))

	err := s.Trigger(context.Background(), "insight")
	assert.EqualError(t, err, "no provider")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	assert.ErrorIs(t, s.Trigger(context.Background(), "missing"), ErrUnknownJob)
}

func TestRun_FiresJobsUntilCancelled(t *testing.T) {
	s := New()
	fired := make(chan struct{}, 10)
	require.NoError(t, s.Add("tick", "@every 1s", func(ctx context.Context) error {
		fired <- struct{}{}
		return nil
	}))
	require.NoError(t, s.Add("boom", "@every 1s", func(ctx context.Context) error {
		panic("job panicked")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("job never fired")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
