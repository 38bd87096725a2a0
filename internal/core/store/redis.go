package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quotaflow/quotaflow/internal/config"
	"github.com/quotaflow/quotaflow/internal/core"
)

const defaultRedisPrefix = "quotaflow:ratelimit"

// redisStore shares snapshots across scheduler replicas. Each endpoint maps
// to a hash that expires at the window's reset boundary, so stale
// observations vanish on their own.
type redisStore struct {
	rdb    *redis.Client
	prefix string
}

func openRedis(ctx context.Context, cfg config.StoreConfig) (*redisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis store: %w", err)
	}

	prefix := strings.Trim(cfg.RedisPrefix, ":")
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &redisStore{rdb: rdb, prefix: prefix}, nil
}

func (s *redisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *redisStore) key(endpoint string) string {
	return s.prefix + ":" + endpoint
}

func (s *redisStore) endpointFromKey(key string) string {
	return strings.TrimPrefix(key, s.prefix+":")
}

func (s *redisStore) SaveSnapshot(ctx context.Context, snapshot core.RateLimitSnapshot) error {
	endpoint := strings.TrimSpace(snapshot.Endpoint)
	if endpoint == "" {
		return errors.New("endpoint is required")
	}

	key := s.key(endpoint)
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, map[string]any{
		"limit":       snapshot.Limit,
		"remaining":   snapshot.Remaining,
		"reset_at":    snapshot.Reset.UTC().Unix(),
		"observed_at": snapshot.ObservedAt.UTC().Unix(),
	})
	pipe.ExpireAt(ctx, key, snapshot.Reset.UTC())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

func (s *redisStore) LoadSnapshots(ctx context.Context) ([]core.RateLimitSnapshot, error) {
	entries, err := s.ListSnapshots(ctx, Query{All: true})
	if err != nil {
		return nil, err
	}

	snapshots := make([]core.RateLimitSnapshot, 0, len(entries))
	for _, entry := range entries {
		snapshots = append(snapshots, entry.Snapshot)
	}
	return snapshots, nil
}

func (s *redisStore) ListSnapshots(ctx context.Context, query Query) ([]Entry, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	keys, err := s.scanKeys(ctx, query)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, key := range keys {
		fields, err := s.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("read snapshot %s: %w", key, err)
		}
		if len(fields) == 0 {
			// Expired between scan and read.
			continue
		}
		snapshot, ok := snapshotFromFields(s.endpointFromKey(key), fields)
		if !ok {
			continue
		}
		entries = append(entries, Entry{Endpoint: snapshot.Endpoint, Snapshot: snapshot})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Endpoint < entries[j].Endpoint })
	return entries, nil
}

func (s *redisStore) CountSnapshots(ctx context.Context, query Query) (int, error) {
	if err := query.Validate(); err != nil {
		return 0, err
	}

	keys, err := s.scanKeys(ctx, query)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (s *redisStore) ResetSnapshots(ctx context.Context, query Query) (int64, error) {
	if err := query.Validate(); err != nil {
		return 0, err
	}

	keys, err := s.scanKeys(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := s.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("reset snapshots: %w", err)
	}
	return deleted, nil
}

func (s *redisStore) scanKeys(ctx context.Context, query Query) ([]string, error) {
	if query.Endpoint != "" {
		key := s.key(query.Endpoint)
		exists, err := s.rdb.Exists(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("scan snapshots: %w", err)
		}
		if exists == 0 {
			return nil, nil
		}
		return []string{key}, nil
	}

	match := s.prefix + ":*"
	if query.Prefix != "" {
		match = s.key(query.Prefix) + "*"
	}

	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan snapshots: %w", err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func snapshotFromFields(endpoint string, fields map[string]string) (core.RateLimitSnapshot, bool) {
	limit, err := strconv.Atoi(fields["limit"])
	if err != nil {
		return core.RateLimitSnapshot{}, false
	}
	remaining, err := strconv.Atoi(fields["remaining"])
	if err != nil {
		return core.RateLimitSnapshot{}, false
	}
	resetAt, err := strconv.ParseInt(fields["reset_at"], 10, 64)
	if err != nil {
		return core.RateLimitSnapshot{}, false
	}
	observedAt, err := strconv.ParseInt(fields["observed_at"], 10, 64)
	if err != nil {
		return core.RateLimitSnapshot{}, false
	}

	return core.RateLimitSnapshot{
		Endpoint:   endpoint,
		Limit:      limit,
		Remaining:  remaining,
		Reset:      time.Unix(resetAt, 0).UTC(),
		ObservedAt: time.Unix(observedAt, 0).UTC(),
	}, true
}

var _ SnapshotStore = (*redisStore)(nil)
