package verification

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestThrottle(t *testing.T, interval time.Duration) (*ResendThrottle, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewResendThrottle(client, interval), mr
}

func TestThrottleAllowsFirstAndBlocksSecond(t *testing.T) {
	throttle, _ := newTestThrottle(t, time.Minute)

	allowed, err := throttle.Allow(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = throttle.Allow(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestThrottleAllowsAfterInterval(t *testing.T) {
	throttle, mr := newTestThrottle(t, time.Minute)

	allowed, err := throttle.Allow(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, allowed)

	mr.FastForward(time.Minute + time.Second)

	allowed, err = throttle.Allow(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestThrottleIsPerUser(t *testing.T) {
	throttle, _ := newTestThrottle(t, time.Minute)

	allowed, err := throttle.Allow(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = throttle.Allow(context.Background(), "user-2")
	require.NoError(t, err)
	assert.True(t, allowed, "throttle for one user must not affect another")
}
