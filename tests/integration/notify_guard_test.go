package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfex/internal/archive"
)

func TestNotifyGuard_FirstClaimWins(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	ctx := context.Background()
	guard := archive.NewRedisNotifyGuard(infra.RedisClient, 60)

	claimed, err := guard.Claim(ctx, "corr-200")
	require.NoError(t, err)
	assert.True(t, claimed)

	// Redelivery of the same file must not trigger a second email.
	claimed, err = guard.Claim(ctx, "corr-200")
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestNotifyGuard_IndependentCorrelationIDs(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	ctx := context.Background()
	guard := archive.NewRedisNotifyGuard(infra.RedisClient, 60)

	for _, id := range []string{"corr-201", "corr-202", "corr-203"} {
		claimed, err := guard.Claim(ctx, id)
		require.NoError(t, err)
		assert.True(t, claimed, "correlation id %s should claim independently", id)
	}
}

func TestNotifyGuard_ReleaseReopensClaim(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	ctx := context.Background()
	guard := archive.NewRedisNotifyGuard(infra.RedisClient, 60)

	claimed, err := guard.Claim(ctx, "corr-210")
	require.NoError(t, err)
	require.True(t, claimed)

	// A publish failure hands the claim back for the redelivery.
	require.NoError(t, guard.Release(ctx, "corr-210"))

	claimed, err = guard.Claim(ctx, "corr-210")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestNotifyGuard_ClaimExpires(t *testing.T) {
	infra := SetupTestInfraWithOptions(t, false, false, true)

	ctx := context.Background()
	guard := archive.NewRedisNotifyGuard(infra.RedisClient, 1)

	claimed, err := guard.Claim(ctx, "corr-204")
	require.NoError(t, err)
	assert.True(t, claimed)

	time.Sleep(2 * time.Second)

	claimed, err = guard.Claim(ctx, "corr-204")
	require.NoError(t, err)
	assert.True(t, claimed)
}
