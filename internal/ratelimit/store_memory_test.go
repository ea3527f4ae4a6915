package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllowWithinLimitSucceeds(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := store.Allow(ctx, "k1", 3, time.Minute)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}
}

func TestAllowRejectsOverLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Allow(ctx, "k2", 3, time.Minute)
		require.NoError(t, err)
	}

	result, err := store.Allow(ctx, "k2", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, result.Allowed)
	require.Equal(t, 0, result.Remaining)
}

func TestAllowResetsAfterWindow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	result, err := store.Allow(ctx, "k3", 1, 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, result.Allowed)

	_, err = store.Allow(ctx, "k3", 1, 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	result, err = store.Allow(ctx, "k3", 1, 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, result.Allowed, "a new window should reset the counter")
}

func TestCapsLimitForMapsRiskLevels(t *testing.T) {
	caps := Caps{Low: 1000, Medium: 200, High: 20, DefaultLimit: 10}
	require.Equal(t, 1000, caps.LimitFor("LOW"))
	require.Equal(t, 200, caps.LimitFor("MEDIUM"))
	require.Equal(t, 20, caps.LimitFor("HIGH"))
	require.Equal(t, 0, caps.LimitFor("CRITICAL"))
	require.Equal(t, 10, caps.LimitFor("UNKNOWN"))
}

func TestCapsLimitForCriticalRejectsOutright(t *testing.T) {
	caps := Caps{Low: 1000, Medium: 200, High: 20, DefaultLimit: 10}
	store := NewMemoryStore()

	result, err := store.Allow(context.Background(), "rate:critical-probe:0", caps.LimitFor("CRITICAL"), time.Minute)
	require.NoError(t, err)
	require.False(t, result.Allowed)
}
