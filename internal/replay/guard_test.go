//go:build integration

package replay_test

import (
	"context"
	"testing"
	"time"

	"credo/internal/replay"
	"credo/pkg/testutil/containers"

	"github.com/stretchr/testify/require"
)

func TestCheckAndRecordDetectsReplay(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	mgr := containers.GetManager()
	redisContainer := mgr.GetRedis(t)
	require.NoError(t, redisContainer.FlushAll(context.Background()))

	guard := replay.NewGuard(redisContainer.Client)
	ctx := context.Background()

	fresh, err := guard.CheckAndRecord(ctx, "nonce-1", time.Minute)
	require.NoError(t, err)
	require.True(t, fresh)

	fresh, err = guard.CheckAndRecord(ctx, "nonce-1", time.Minute)
	require.NoError(t, err)
	require.False(t, fresh)

	fresh, err = guard.CheckAndRecord(ctx, "nonce-2", time.Minute)
	require.NoError(t, err)
	require.True(t, fresh)
}
