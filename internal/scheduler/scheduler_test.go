package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	_, err := New(0, func(context.Context) error { return nil }, nil)
	assert.Error(t, err)
}

func TestRunRepeatsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	s, err := New(10*time.Millisecond, func(context.Context) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return nil
	}, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}

	assert.Equal(t, 3, s.Runs())
}

func TestRunContinuesAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	boom := errors.New("sf not on PATH")
	calls := 0
	s, err := New(time.Millisecond, func(context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return boom
	}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 2, s.Runs())
	assert.ErrorIs(t, s.LastError(), boom)
}
