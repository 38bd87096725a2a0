package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPriorityRank(t *testing.T) {
	require.Less(t, PriorityHigh.Rank(), PriorityNormal.Rank())
	require.Less(t, PriorityNormal.Rank(), PriorityLow.Rank())
	require.Equal(t, PriorityNormal.Rank(), Priority("mystery").Rank())
}

func TestPriorityValid(t *testing.T) {
	require.True(t, PriorityHigh.Valid())
	require.True(t, PriorityNormal.Valid())
	require.True(t, PriorityLow.Valid())
	require.False(t, Priority("").Valid())
	require.False(t, Priority("urgent").Valid())
}

func TestSnapshotStale(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	snapshot := RateLimitSnapshot{Reset: now.Add(time.Minute)}

	require.False(t, snapshot.Stale(now))
	require.True(t, snapshot.Stale(now.Add(time.Minute)), "the reset instant itself is stale")
	require.True(t, snapshot.Stale(now.Add(2*time.Minute)))
}

func TestSnapshotPercentRemaining(t *testing.T) {
	require.InDelta(t, 42.0, RateLimitSnapshot{Limit: 100, Remaining: 42}.PercentRemaining(), 0.001)
	require.InDelta(t, 50.0, RateLimitSnapshot{Limit: 10, Remaining: 5}.PercentRemaining(), 0.001)
	require.Zero(t, RateLimitSnapshot{Limit: 0, Remaining: 5}.PercentRemaining())
}

func TestSchedulerConfigNormalize(t *testing.T) {
	def := DefaultSchedulerConfig()

	normalized := SchedulerConfig{}.Normalize()
	require.Equal(t, def.MaxConcurrent, normalized.MaxConcurrent)
	require.Equal(t, def.MinCooldown, normalized.MinCooldown)
	require.Equal(t, def.BaseRetryDelay, normalized.BaseRetryDelay)

	// Zero retries is a deliberate setting, not an omission.
	require.Equal(t, 0, normalized.MaxRetries)
	require.Equal(t, def.MaxRetries, SchedulerConfig{MaxRetries: -1}.Normalize().MaxRetries)

	custom := SchedulerConfig{MaxConcurrent: 7, MinCooldown: time.Second}.Normalize()
	require.Equal(t, 7, custom.MaxConcurrent)
	require.Equal(t, time.Second, custom.MinCooldown)
}
