// Package ratelimit tracks provider rate-limit budgets learned from response
// headers, per endpoint and globally. The global view is the most restrictive
// live snapshot, so a single hot endpoint gates admission for everyone.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quotaflow/quotaflow/internal/core"
)

// SnapshotStore persists rate-limit snapshots across restarts.
type SnapshotStore interface {
	LoadSnapshots(ctx context.Context) ([]core.RateLimitSnapshot, error)
	SaveSnapshot(ctx context.Context, snapshot core.RateLimitSnapshot) error
}

// Tracker maintains per-endpoint and global views of remaining request
// budget. Safe for concurrent use.
type Tracker struct {
	Store  SnapshotStore
	Clock  func() time.Time
	Logger *zap.Logger

	mu        sync.Mutex
	snapshots map[string]core.RateLimitSnapshot
	global    *core.RateLimitSnapshot
}

// Restore loads persisted snapshots, skipping any whose window has already
// rolled over. A nil store is a no-op.
func (t *Tracker) Restore(ctx context.Context) error {
	if t == nil || t.Store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	stored, err := t.Store.LoadSnapshots(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for _, snapshot := range stored {
		if snapshot.Endpoint == "" || snapshot.Stale(now) {
			continue
		}
		t.putLocked(snapshot)
	}
	return nil
}

// Observe parses rate-limit metadata from response headers. If any of
// limit/remaining/reset is absent or malformed it returns nil and leaves all
// tracked state unchanged. Otherwise it overwrites the endpoint's snapshot
// and refreshes the global view.
func (t *Tracker) Observe(ctx context.Context, endpoint string, headers map[string]string) *core.RateLimitSnapshot {
	if t == nil || endpoint == "" {
		return nil
	}

	limit, remaining, reset, ok := parseHeaders(headers)
	if !ok {
		return nil
	}

	snapshot := core.RateLimitSnapshot{
		Endpoint:   endpoint,
		Limit:      limit,
		Remaining:  remaining,
		Reset:      reset,
		ObservedAt: t.now(),
	}

	t.mu.Lock()
	t.putLocked(snapshot)
	t.mu.Unlock()

	if t.Store != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		if err := t.Store.SaveSnapshot(ctx, snapshot); err != nil && t.Logger != nil {
			t.Logger.Warn("failed to persist rate-limit snapshot",
				zap.String("endpoint", endpoint),
				zap.Error(err))
		}
	}

	return &snapshot
}

// MostRestrictive prunes stale snapshots and returns the live snapshot with
// the lowest remaining budget, or nil when nothing usable is tracked.
func (t *Tracker) MostRestrictive() *core.RateLimitSnapshot {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked()
	if t.global == nil {
		return nil
	}
	snapshot := *t.global
	return &snapshot
}

// ApproachingLimit reports whether the global remaining budget has dropped
// to thresholdPercent of its limit or below.
func (t *Tracker) ApproachingLimit(thresholdPercent float64) bool {
	snapshot := t.MostRestrictive()
	if snapshot == nil {
		return false
	}
	return snapshot.PercentRemaining() <= thresholdPercent
}

// Exhausted reports whether the global remaining budget is spent.
func (t *Tracker) Exhausted() bool {
	snapshot := t.MostRestrictive()
	return snapshot != nil && snapshot.Remaining <= 0
}

// TimeUntilReset returns the non-negative time until the given snapshot's
// window rolls over. With a nil argument the most restrictive snapshot is
// used; zero when nothing is tracked.
func (t *Tracker) TimeUntilReset(snapshot *core.RateLimitSnapshot) time.Duration {
	if snapshot == nil {
		snapshot = t.MostRestrictive()
	}
	if snapshot == nil {
		return 0
	}
	wait := snapshot.Reset.Sub(t.now())
	if wait < 0 {
		return 0
	}
	return wait
}

// RecommendedWait spreads the remaining window evenly across the remaining
// budget: zero when the limit is not near, the full time-until-reset when
// exhausted, otherwise timeUntilReset/remaining floored at one second so a
// zero wait cannot trigger a burst.
func (t *Tracker) RecommendedWait(thresholdPercent float64) time.Duration {
	snapshot := t.MostRestrictive()
	if snapshot == nil || snapshot.PercentRemaining() > thresholdPercent {
		return 0
	}

	untilReset := t.TimeUntilReset(snapshot)
	if snapshot.Remaining <= 0 {
		return untilReset
	}

	wait := untilReset / time.Duration(snapshot.Remaining)
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}

// putLocked stores a snapshot and refreshes the global view. Caller holds mu.
func (t *Tracker) putLocked(snapshot core.RateLimitSnapshot) {
	if t.snapshots == nil {
		t.snapshots = make(map[string]core.RateLimitSnapshot)
	}
	t.snapshots[snapshot.Endpoint] = snapshot

	if t.global == nil || t.global.Endpoint == snapshot.Endpoint || snapshot.Remaining < t.global.Remaining {
		t.recomputeGlobalLocked()
	}
}

// pruneLocked drops snapshots past their reset and recomputes the global
// view. Caller holds mu.
func (t *Tracker) pruneLocked() {
	now := t.now()
	dropped := false
	for endpoint, snapshot := range t.snapshots {
		if snapshot.Stale(now) {
			delete(t.snapshots, endpoint)
			dropped = true
		}
	}
	if dropped || t.global == nil {
		t.recomputeGlobalLocked()
	}
}

func (t *Tracker) recomputeGlobalLocked() {
	t.global = nil
	for endpoint := range t.snapshots {
		snapshot := t.snapshots[endpoint]
		if t.global == nil || snapshot.Remaining < t.global.Remaining {
			t.global = &snapshot
		}
	}
}

func (t *Tracker) now() time.Time {
	if t != nil && t.Clock != nil {
		return t.Clock()
	}
	return time.Now().UTC()
}
