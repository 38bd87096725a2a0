package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quotaflow/quotaflow/internal/config"
)

func TestBuildLibsqlDSN(t *testing.T) {
	t.Run("URLUsesRawValue", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=token123", dsn)
	})

	t.Run("URLWithExistingQuery", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io?foo=bar",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=token123&foo=bar", dsn)
	})

	t.Run("URLKeepsExistingToken", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io?authToken=original",
			AuthToken: "token123",
		}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=original", dsn)
	})

	t.Run("PathWithFilePrefix", func(t *testing.T) {
		cfg := config.StoreConfig{Path: "file:./quotaflow.db"}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "file:./quotaflow.db", dsn)
	})

	t.Run("MemoryPath", func(t *testing.T) {
		cfg := config.StoreConfig{Path: ":memory:"}

		dsn, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, ":memory:", dsn)
	})

	t.Run("PathMissing", func(t *testing.T) {
		cfg := config.StoreConfig{}

		_, err := buildLibsqlDSN(cfg)
		require.Error(t, err)
	})
}

func TestQueryValidate(t *testing.T) {
	require.NoError(t, Query{All: true}.Validate())
	require.NoError(t, Query{Endpoint: "/users"}.Validate())
	require.NoError(t, Query{Prefix: "/users/"}.Validate())

	require.Error(t, Query{}.Validate())
	require.Error(t, Query{All: true, Endpoint: "/users"}.Validate())
	require.Error(t, Query{Endpoint: "/users", Prefix: "/users/"}.Validate())
}

func TestQueryMatches(t *testing.T) {
	require.True(t, Query{All: true}.matches("/anything"))

	require.True(t, Query{Endpoint: "/users"}.matches("/users"))
	require.False(t, Query{Endpoint: "/users"}.matches("/users/42"))

	require.True(t, Query{Prefix: "/users"}.matches("/users/42"))
	require.False(t, Query{Prefix: "/users"}.matches("/groups"))
}

func TestEscapeLike(t *testing.T) {
	require.Equal(t, `/users/\%`, escapeLike("/users/%"))
	require.Equal(t, `/a\_b`, escapeLike("/a_b"))
	require.Equal(t, `c:\\data`, escapeLike(`c:\data`))
}

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none"} {
		db, err := Open(context.Background(), config.StoreConfig{Driver: driver})
		require.NoError(t, err)
		require.Nil(t, db)
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "postgres"})
	require.ErrorContains(t, err, "unsupported store driver")
}
