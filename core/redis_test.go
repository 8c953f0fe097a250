package core

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedisState(t *testing.T) (*miniredis.Miniredis, *RedisState) {
	t.Helper()

	mr := miniredis.RunT(t)
	state := NewRedisState(mr.Addr(), "", 0, 5, time.Hour, zap.NewNop().Sugar())
	t.Cleanup(func() {
		_ = state.Close()
	})

	return mr, state
}

func TestRedisState_Ping(t *testing.T) {
	_, state := newTestRedisState(t)
	assert.NoError(t, state.Ping(context.Background()))
}

func TestRedisState_IncrementAndResetFailures(t *testing.T) {
	_, state := newTestRedisState(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		count, err := state.IncrementFailures(ctx, "deploy-bot")
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}

	// Counters are per identity
	count, err := state.IncrementFailures(ctx, "other-user")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, state.ResetFailures(ctx, "deploy-bot"))

	count, err = state.IncrementFailures(ctx, "deploy-bot")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "counter restarts after reset")
}

func TestRedisState_FailureCounterTTL(t *testing.T) {
	mr, state := newTestRedisState(t)
	ctx := context.Background()

	_, err := state.IncrementFailures(ctx, "deploy-bot")
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	count, err := state.IncrementFailures(ctx, "deploy-bot")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "streak expires after the counter TTL")
}

func TestRedisState_KnownSources(t *testing.T) {
	_, state := newTestRedisState(t)
	ctx := context.Background()

	known, err := state.IsKnownSource(ctx, "10.1.2.3")
	require.NoError(t, err)
	assert.False(t, known)

	require.NoError(t, state.AddKnownSource(ctx, "10.1.2.3"))

	known, err = state.IsKnownSource(ctx, "10.1.2.3")
	require.NoError(t, err)
	assert.True(t, known)

	known, err = state.IsKnownSource(ctx, "10.9.9.9")
	require.NoError(t, err)
	assert.False(t, known)
}
