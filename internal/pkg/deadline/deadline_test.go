package deadline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunReturnsResult(t *testing.T) {
	got, err := Run(context.Background(), time.Second, "fast_op", func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, got)
}

func TestRunPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	_, err := Run(context.Background(), time.Second, "failing_op", func(context.Context) (int, error) {
		return 0, wantErr
	})
	require.ErrorIs(t, err, wantErr)
}

func TestRunTimesOut(t *testing.T) {
	started := time.Now()
	_, err := Run(context.Background(), 20*time.Millisecond, "slow_op", func(context.Context) (int, error) {
		time.Sleep(500 * time.Millisecond)
		return 1, nil
	})
	require.True(t, IsTimeout(err))

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	require.Equal(t, "slow_op", te.Label)
	require.Less(t, time.Since(started), 400*time.Millisecond)
}

func TestRunZeroLimitRunsInline(t *testing.T) {
	got, err := Run(context.Background(), 0, "unbounded_op", func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", got)
}

func TestRunContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, time.Second, "cancelled_op", func(context.Context) (int, error) {
		time.Sleep(200 * time.Millisecond)
		return 1, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, IsTimeout(err))
}
