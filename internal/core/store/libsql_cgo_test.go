//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quotaflow/quotaflow/internal/config"
	"github.com/quotaflow/quotaflow/internal/core"
)

func openMemoryStore(t *testing.T) SnapshotStore {
	t.Helper()

	db, err := Open(context.Background(), config.StoreConfig{
		Driver: "libsql",
		Path:   ":memory:",
	})
	require.NoError(t, err)
	require.NotNil(t, db)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

func snapshotFixture(endpoint string, remaining int, reset time.Time) core.RateLimitSnapshot {
	return core.RateLimitSnapshot{
		Endpoint:   endpoint,
		Limit:      100,
		Remaining:  remaining,
		Reset:      reset,
		ObservedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestLibsqlSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	db := openMemoryStore(t)

	reset := time.Now().Add(time.Minute).UTC().Truncate(time.Second)
	require.NoError(t, db.SaveSnapshot(ctx, snapshotFixture("/users", 42, reset)))

	snapshots, err := db.LoadSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	require.Equal(t, "/users", snapshots[0].Endpoint)
	require.Equal(t, 42, snapshots[0].Remaining)
	require.Equal(t, reset, snapshots[0].Reset)
}

func TestLibsqlSaveUpserts(t *testing.T) {
	ctx := context.Background()
	db := openMemoryStore(t)

	reset := time.Now().Add(time.Minute).UTC().Truncate(time.Second)
	require.NoError(t, db.SaveSnapshot(ctx, snapshotFixture("/users", 42, reset)))
	require.NoError(t, db.SaveSnapshot(ctx, snapshotFixture("/users", 7, reset)))

	snapshots, err := db.LoadSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	require.Equal(t, 7, snapshots[0].Remaining)
}

func TestLibsqlLoadSkipsExpired(t *testing.T) {
	ctx := context.Background()
	db := openMemoryStore(t)

	require.NoError(t, db.SaveSnapshot(ctx, snapshotFixture("/stale", 1, time.Now().Add(-time.Minute))))
	require.NoError(t, db.SaveSnapshot(ctx, snapshotFixture("/live", 9, time.Now().Add(time.Minute))))

	snapshots, err := db.LoadSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	require.Equal(t, "/live", snapshots[0].Endpoint)
}

func TestLibsqlSaveRequiresEndpoint(t *testing.T) {
	db := openMemoryStore(t)
	err := db.SaveSnapshot(context.Background(), snapshotFixture("  ", 1, time.Now().Add(time.Minute)))
	require.ErrorContains(t, err, "endpoint is required")
}

func TestLibsqlListCountReset(t *testing.T) {
	ctx := context.Background()
	db := openMemoryStore(t)

	reset := time.Now().Add(time.Minute).UTC()
	for _, endpoint := range []string{"/users", "/users/groups", "/apps"} {
		require.NoError(t, db.SaveSnapshot(ctx, snapshotFixture(endpoint, 10, reset)))
	}

	entries, err := db.ListSnapshots(ctx, Query{All: true})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "/apps", entries[0].Endpoint, "listing is sorted by endpoint")

	count, err := db.CountSnapshots(ctx, Query{Prefix: "/users"})
	require.NoError(t, err)
	require.Equal(t, 2, count)

	deleted, err := db.ResetSnapshots(ctx, Query{Endpoint: "/apps"})
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	count, err = db.CountSnapshots(ctx, Query{All: true})
	require.NoError(t, err)
	require.Equal(t, 2, count)

	deleted, err = db.ResetSnapshots(ctx, Query{All: true})
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)
}

func TestLibsqlPrefixEscapesWildcards(t *testing.T) {
	ctx := context.Background()
	db := openMemoryStore(t)

	reset := time.Now().Add(time.Minute).UTC()
	require.NoError(t, db.SaveSnapshot(ctx, snapshotFixture("/users_all", 10, reset)))
	require.NoError(t, db.SaveSnapshot(ctx, snapshotFixture("/usersXall", 10, reset)))

	count, err := db.CountSnapshots(ctx, Query{Prefix: "/users_"})
	require.NoError(t, err)
	require.Equal(t, 1, count, "underscore must match literally, not as a wildcard")
}

func TestLibsqlQueryValidation(t *testing.T) {
	db := openMemoryStore(t)

	_, err := db.ListSnapshots(context.Background(), Query{})
	require.Error(t, err)

	_, err = db.CountSnapshots(context.Background(), Query{All: true, Endpoint: "/users"})
	require.Error(t, err)
}
