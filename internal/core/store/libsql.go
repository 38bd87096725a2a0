package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/quotaflow/quotaflow/internal/config"
	"github.com/quotaflow/quotaflow/internal/core"
)

var libsqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS rate_snapshots (
		endpoint TEXT PRIMARY KEY,
		max_limit INTEGER NOT NULL,
		remaining INTEGER NOT NULL,
		reset_at INTEGER NOT NULL,
		observed_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_rate_snapshots_reset ON rate_snapshots(reset_at);`,
}

// libsqlStore keeps snapshots in a local (or remote Turso) libsql database.
type libsqlStore struct {
	db *sql.DB
}

func openLibsql(ctx context.Context, cfg config.StoreConfig) (*libsqlStore, error) {
	dsn, err := buildLibsqlDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverLibsql, dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping libsql store: %w", err)
	}

	s := &libsqlStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *libsqlStore) migrate(ctx context.Context) error {
	for _, stmt := range libsqlSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}
	return nil
}

func (s *libsqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LoadSnapshots returns every stored snapshot whose window has not yet
// rolled over. Expired rows are left for the next reset to overwrite.
func (s *libsqlStore) LoadSnapshots(ctx context.Context) ([]core.RateLimitSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT endpoint, max_limit, remaining, reset_at, observed_at
		FROM rate_snapshots
		WHERE reset_at > ?
	`, time.Now().UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []core.RateLimitSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}

func (s *libsqlStore) SaveSnapshot(ctx context.Context, snapshot core.RateLimitSnapshot) error {
	endpoint := strings.TrimSpace(snapshot.Endpoint)
	if endpoint == "" {
		return errors.New("endpoint is required")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_snapshots (endpoint, max_limit, remaining, reset_at, observed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			max_limit = excluded.max_limit,
			remaining = excluded.remaining,
			reset_at = excluded.reset_at,
			observed_at = excluded.observed_at
	`, endpoint, snapshot.Limit, snapshot.Remaining, snapshot.Reset.UTC().Unix(), snapshot.ObservedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

func (s *libsqlStore) ListSnapshots(ctx context.Context, query Query) ([]Entry, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	where, args := snapshotWhere(query)
	rows, err := s.db.QueryContext(ctx, `
		SELECT endpoint, max_limit, remaining, reset_at, observed_at
		FROM rate_snapshots `+where+` ORDER BY endpoint`, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Endpoint: snapshot.Endpoint, Snapshot: snapshot})
	}
	return entries, rows.Err()
}

func (s *libsqlStore) CountSnapshots(ctx context.Context, query Query) (int, error) {
	if err := query.Validate(); err != nil {
		return 0, err
	}

	where, args := snapshotWhere(query)
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rate_snapshots `+where, args...)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return count, nil
}

func (s *libsqlStore) ResetSnapshots(ctx context.Context, query Query) (int64, error) {
	if err := query.Validate(); err != nil {
		return 0, err
	}

	where, args := snapshotWhere(query)
	result, err := s.db.ExecContext(ctx, `DELETE FROM rate_snapshots `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("reset snapshots: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset snapshots: %w", err)
	}
	return deleted, nil
}

func snapshotWhere(query Query) (string, []any) {
	switch {
	case query.Endpoint != "":
		return "WHERE endpoint = ?", []any{query.Endpoint}
	case query.Prefix != "":
		return `WHERE endpoint LIKE ? ESCAPE '\'`, []any{escapeLike(query.Prefix) + "%"}
	default:
		return "", nil
	}
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

func scanSnapshot(rows *sql.Rows) (core.RateLimitSnapshot, error) {
	var (
		endpoint   string
		limit      int
		remaining  int
		resetAt    int64
		observedAt int64
	)
	if err := rows.Scan(&endpoint, &limit, &remaining, &resetAt, &observedAt); err != nil {
		return core.RateLimitSnapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	return core.RateLimitSnapshot{
		Endpoint:   endpoint,
		Limit:      limit,
		Remaining:  remaining,
		Reset:      time.Unix(resetAt, 0).UTC(),
		ObservedAt: time.Unix(observedAt, 0).UTC(),
	}, nil
}

func buildLibsqlDSN(cfg config.StoreConfig) (string, error) {
	if dsn := strings.TrimSpace(cfg.URL); dsn != "" {
		return addAuthToken(dsn, cfg.AuthToken)
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", errors.New("store path or url is required")
	}

	if path == ":memory:" {
		return path, nil
	}

	if strings.HasPrefix(path, "file:") || strings.HasPrefix(path, "libsql:") {
		return path, nil
	}

	if err := ensureStoreDir(path); err != nil {
		return "", err
	}
	return "file:" + filepath.Clean(path), nil
}

func addAuthToken(dsn string, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}

	query := parsed.Query()
	if query.Get("authToken") == "" {
		query.Set("authToken", token)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}

func ensureStoreDir(path string) error {
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}

var _ SnapshotStore = (*libsqlStore)(nil)
