package store

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRedisKeyRoundTrip(t *testing.T) {
	s := &redisStore{prefix: defaultRedisPrefix}

	key := s.key("/users")
	require.Equal(t, "quotaflow:ratelimit:/users", key)
	require.Equal(t, "/users", s.endpointFromKey(key))
}

func TestSnapshotFromFields(t *testing.T) {
	reset := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	observed := reset.Add(-30 * time.Second)

	snapshot, ok := snapshotFromFields("/users", map[string]string{
		"limit":       "100",
		"remaining":   "42",
		"reset_at":    strconv.FormatInt(reset.Unix(), 10),
		"observed_at": strconv.FormatInt(observed.Unix(), 10),
	})
	require.True(t, ok)
	require.Equal(t, "/users", snapshot.Endpoint)
	require.Equal(t, 100, snapshot.Limit)
	require.Equal(t, 42, snapshot.Remaining)
	require.Equal(t, reset, snapshot.Reset)
	require.Equal(t, observed, snapshot.ObservedAt)
}

func TestSnapshotFromFieldsRejectsMalformed(t *testing.T) {
	_, ok := snapshotFromFields("/users", map[string]string{
		"limit":     "lots",
		"remaining": "42",
	})
	require.False(t, ok)

	_, ok = snapshotFromFields("/users", map[string]string{})
	require.False(t, ok)
}
