package httpx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowLimiter_AllowsUpToCap(t *testing.T) {
	l := newSlidingWindowLimiter(3, time.Minute)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond, "first cap requests should not block")
}

func TestSlidingWindowLimiter_BlocksOverCap(t *testing.T) {
	l := newSlidingWindowLimiter(2, 100*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx))
	require.NoError(t, l.Wait(ctx))

	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond, "third request should wait for the window to free up")
}

func TestSlidingWindowLimiter_CtxCancel(t *testing.T) {
	l := newSlidingWindowLimiter(1, time.Hour)
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx))

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Wait(cancelCtx)
	assert.Error(t, err)
}
