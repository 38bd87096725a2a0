// Package store persists rate-limit snapshots so a restarted scheduler does
// not have to re-learn provider budgets the hard way. Two backends: a local
// libsql database and redis for sharing observations across replicas.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quotaflow/quotaflow/internal/config"
	"github.com/quotaflow/quotaflow/internal/core"
)

const (
	driverLibsql = "libsql"
	driverRedis  = "redis"
)

// Entry pairs an endpoint with its stored snapshot, for listings.
type Entry struct {
	Endpoint string                 `json:"endpoint"`
	Snapshot core.RateLimitSnapshot `json:"snapshot"`
}

// Query selects stored snapshots for list/count/reset operations. Exactly
// one of All, Endpoint, or Prefix must be set.
type Query struct {
	All      bool
	Endpoint string
	Prefix   string
}

// Validate rejects ambiguous or empty queries.
func (q Query) Validate() error {
	set := 0
	if q.All {
		set++
	}
	if strings.TrimSpace(q.Endpoint) != "" {
		set++
	}
	if strings.TrimSpace(q.Prefix) != "" {
		set++
	}
	if set == 0 {
		return errors.New("query requires one of: all, endpoint, prefix")
	}
	if set > 1 {
		return errors.New("query selectors are mutually exclusive")
	}
	return nil
}

// matches reports whether an endpoint satisfies the query.
func (q Query) matches(endpoint string) bool {
	switch {
	case q.All:
		return true
	case q.Endpoint != "":
		return endpoint == q.Endpoint
	case q.Prefix != "":
		return strings.HasPrefix(endpoint, q.Prefix)
	}
	return false
}

// SnapshotStore is the persistence surface for rate-limit snapshots. The
// Load/Save half feeds the tracker; the rest serves operator tooling.
type SnapshotStore interface {
	LoadSnapshots(ctx context.Context) ([]core.RateLimitSnapshot, error)
	SaveSnapshot(ctx context.Context, snapshot core.RateLimitSnapshot) error
	ListSnapshots(ctx context.Context, query Query) ([]Entry, error)
	CountSnapshots(ctx context.Context, query Query) (int, error)
	ResetSnapshots(ctx context.Context, query Query) (int64, error)
	Close() error
}

// Open initializes the snapshot store selected by the configuration.
// Returns nil without error when persistence is disabled.
func Open(ctx context.Context, cfg config.StoreConfig) (SnapshotStore, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	driver := strings.TrimSpace(cfg.Driver)
	switch driver {
	case "", "none":
		return nil, nil
	case driverLibsql:
		return openLibsql(ctx, cfg)
	case driverRedis:
		return openRedis(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
}
