// Package sched admits queued admin-API requests under a concurrency cap and
// the rate-limit budget tracked by the ratelimit package. A single mutex
// serializes every admission decision; Transport calls run concurrently and
// funnel their completions back through that serialized path.
package sched

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quotaflow/quotaflow/internal/core"
	"github.com/quotaflow/quotaflow/internal/core/ratelimit"
)

// Transport executes one request against the remote admin API. It must honor
// the context deadline and surface a timeout as a failed result or error,
// never a hang.
type Transport interface {
	Do(ctx context.Context, req core.TransportRequest) (*core.TransportResult, error)
}

// Listener receives the current runtime state after every state-relevant
// mutation.
type Listener func(state core.RuntimeState)

var (
	// ErrStopped is returned by Schedule after Stop.
	ErrStopped = errors.New("scheduler is stopped")

	// ErrQueueCleared rejects futures whose requests were dropped by an
	// operator ClearQueue.
	ErrQueueCleared = errors.New("request dropped: queue cleared")
)

// Scheduler owns the admission queue and the in-flight set. Construct with
// New, then Start; it has no terminal state besides an explicit Stop.
type Scheduler struct {
	cfg       core.SchedulerConfig
	tracker   *ratelimit.Tracker
	transport Transport
	logger    *zap.Logger
	clock     func() time.Time

	mu            sync.Mutex
	queue         admissionQueue
	inflight      map[string]*core.Request
	futures       map[string]*Future
	retryTimers   map[string]*time.Timer
	listeners     map[uint64]Listener
	nextListener  uint64
	paused        bool
	cooldownUntil time.Time
	completed     uint64
	lastErr       error
	metrics       core.Metrics
	started       bool
	stopped       bool

	nudge chan struct{}
	done  chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger attaches a logger; a nop logger is used otherwise.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New builds a scheduler around the given tracker and transport.
func New(cfg core.SchedulerConfig, tracker *ratelimit.Tracker, transport Transport, opts ...Option) (*Scheduler, error) {
	if tracker == nil {
		return nil, errors.New("rate tracker is required")
	}
	if transport == nil {
		return nil, errors.New("transport is required")
	}

	s := &Scheduler{
		cfg:         cfg.Normalize(),
		tracker:     tracker,
		transport:   transport,
		logger:      zap.NewNop(),
		clock:       func() time.Time { return time.Now().UTC() },
		inflight:    make(map[string]*core.Request),
		futures:     make(map[string]*Future),
		retryTimers: make(map[string]*time.Timer),
		listeners:   make(map[uint64]Listener),
		nudge:       make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the admission loop. Safe to call once.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.run()
}

// Stop halts admission and pending retry timers. In-flight Transport calls
// still settle their futures when they complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	wasStarted := s.started
	for id, timer := range s.retryTimers {
		timer.Stop()
		delete(s.retryTimers, id)
	}
	s.mu.Unlock()

	if wasStarted {
		close(s.done)
	}
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.admit()
		case <-s.nudge:
			s.admit()
		}
	}
}

// Schedule validates and enqueues a request, returning a future that settles
// exactly once. Configuration errors fail fast, before enqueue.
func (s *Scheduler) Schedule(endpoint, method string, body json.RawMessage, contextID string, priority core.Priority) (*Future, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	contextID = strings.TrimSpace(contextID)
	if contextID == "" {
		return nil, errors.New("execution context is required")
	}

	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}

	if priority == "" {
		priority = core.PriorityNormal
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("unknown priority: %s", priority)
	}

	req := &core.Request{
		ID:         uuid.New().String(),
		Endpoint:   endpoint,
		Method:     method,
		Body:       body,
		ContextID:  contextID,
		Priority:   priority,
		EnqueuedAt: s.clock(),
		MaxRetries: s.cfg.MaxRetries,
	}
	future := newFuture(req.ID)

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	s.queue.push(req)
	s.futures[req.ID] = future
	s.metrics.Submitted++
	s.mu.Unlock()

	s.logger.Debug("request scheduled",
		zap.String("id", req.ID),
		zap.String("endpoint", endpoint),
		zap.String("priority", string(priority)))

	s.notify()
	s.kick()
	return future, nil
}

// admit is one pass of the admission tick: it dispatches queued requests
// while a concurrency slot is free and neither pause, cooldown, nor the
// rate-limit threshold blocks admission.
func (s *Scheduler) admit() {
	for {
		s.mu.Lock()
		if s.stopped || s.paused {
			s.mu.Unlock()
			return
		}

		now := s.clock()
		if !s.cooldownUntil.IsZero() {
			if now.Before(s.cooldownUntil) {
				s.mu.Unlock()
				return
			}
			// Cooldown just elapsed.
			s.cooldownUntil = time.Time{}
			s.mu.Unlock()
			s.logger.Info("cooldown elapsed, resuming admission")
			s.notify()
			continue
		}

		if len(s.inflight) >= s.cfg.MaxConcurrent {
			s.mu.Unlock()
			return
		}

		if s.tracker.ApproachingLimit(s.cfg.CooldownThresholdPercent) {
			s.enterCooldownLocked(now)
			s.mu.Unlock()
			s.notify()
			return
		}

		req := s.queue.pop()
		if req == nil {
			s.mu.Unlock()
			return
		}
		s.inflight[req.ID] = req
		s.mu.Unlock()

		s.logger.Debug("dispatching request",
			zap.String("id", req.ID),
			zap.String("endpoint", req.Endpoint),
			zap.Int("attempt", req.RetryCount+1))

		s.notify()
		go s.dispatch(*req)
	}
}

type transportOutcome struct {
	res *core.TransportResult
	err error
}

// dispatch runs one Transport call off the admission path and hands the
// completion back to the serialized control path, correlated by request id
// and attempt. The scheduler enforces the per-request timeout itself so a
// misbehaving Transport cannot hold a concurrency slot forever.
func (s *Scheduler) dispatch(req core.Request) {
	attempt := req.RetryCount
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()

	start := s.clock()
	outCh := make(chan transportOutcome, 1)
	go func() {
		res, err := s.transport.Do(ctx, core.TransportRequest{
			Endpoint:  req.Endpoint,
			Method:    req.Method,
			Body:      req.Body,
			ContextID: req.ContextID,
		})
		outCh <- transportOutcome{res: res, err: err}
	}()

	select {
	case out := <-outCh:
		s.complete(req.ID, attempt, out.res, out.err, s.clock().Sub(start))
	case <-ctx.Done():
		s.complete(req.ID, attempt, nil,
			fmt.Errorf("request timed out after %s: %w", s.cfg.RequestTimeout, ctx.Err()),
			s.clock().Sub(start))
	}
}

// complete settles one dispatch attempt. A completion whose request is no
// longer in flight, or whose attempt number no longer matches, is a stale
// result for an already retried or rejected request and is discarded.
func (s *Scheduler) complete(id string, attempt int, res *core.TransportResult, err error, elapsed time.Duration) {
	s.mu.Lock()
	req, live := s.inflight[id]
	if live && req.RetryCount != attempt {
		live = false
	}
	s.mu.Unlock()
	if !live {
		s.logger.Debug("discarding stale completion",
			zap.String("id", id),
			zap.Int("attempt", attempt))
		return
	}

	// Rate-limit metadata is recorded off the scheduler mutex; the tracker
	// has its own serialization.
	var snapshot *core.RateLimitSnapshot
	if res != nil && len(res.Headers) > 0 {
		snapshot = s.tracker.Observe(context.Background(), req.Endpoint, res.Headers)
	}

	if err == nil && res != nil && res.Success {
		s.succeed(id, res, snapshot, elapsed)
		return
	}
	s.fail(id, res, err)
}

func (s *Scheduler) succeed(id string, res *core.TransportResult, snapshot *core.RateLimitSnapshot, elapsed time.Duration) {
	s.mu.Lock()
	req, live := s.inflight[id]
	if !live {
		s.mu.Unlock()
		return
	}
	delete(s.inflight, id)

	future := s.futures[id]
	delete(s.futures, id)

	s.completed++
	s.metrics.Succeeded++
	ms := float64(elapsed) / float64(time.Millisecond)
	s.metrics.AvgExecMillis = (s.metrics.AvgExecMillis*float64(s.metrics.ExecSampleSize) + ms) / float64(s.metrics.ExecSampleSize+1)
	s.metrics.ExecSampleSize++

	// Post-response budget check: the response that spent the last of the
	// window should open the cooldown before the next admission.
	if snapshot != nil && s.tracker.ApproachingLimit(s.cfg.CooldownThresholdPercent) {
		s.enterCooldownLocked(s.clock())
	}
	s.mu.Unlock()

	s.logger.Debug("request succeeded",
		zap.String("id", id),
		zap.String("endpoint", req.Endpoint),
		zap.Int("status", res.StatusCode),
		zap.Duration("elapsed", elapsed))

	future.settle(&Result{StatusCode: res.StatusCode, Data: res.Data, Headers: res.Headers}, nil)
	s.notify()
	s.kick()
}

func (s *Scheduler) fail(id string, res *core.TransportResult, cause error) {
	if cause == nil {
		if res != nil && res.Error != "" {
			cause = errors.New(res.Error)
		} else if res != nil {
			cause = fmt.Errorf("request failed with status %d", res.StatusCode)
		} else {
			cause = errors.New("transport returned no result")
		}
	}

	s.mu.Lock()
	req, live := s.inflight[id]
	if !live {
		s.mu.Unlock()
		return
	}

	if req.RetryCount < req.MaxRetries {
		req.RetryCount++
		s.metrics.Retried++
		delay := s.backoffDelay(req.RetryCount)
		s.retryTimers[id] = time.AfterFunc(delay, func() { s.requeue(id) })
		s.mu.Unlock()

		s.logger.Warn("request failed, retrying",
			zap.String("id", id),
			zap.String("endpoint", req.Endpoint),
			zap.Int("attempt", req.RetryCount),
			zap.Int("max_retries", req.MaxRetries),
			zap.Duration("backoff", delay),
			zap.Error(cause))
		return
	}

	delete(s.inflight, id)
	future := s.futures[id]
	delete(s.futures, id)

	terminal := fmt.Errorf("retries exhausted after %d attempts: %w", req.RetryCount+1, cause)
	s.completed++
	s.metrics.Failed++
	s.lastErr = terminal
	s.mu.Unlock()

	s.logger.Error("request failed terminally",
		zap.String("id", id),
		zap.String("endpoint", req.Endpoint),
		zap.Error(terminal))

	future.settle(nil, terminal)
	s.notify()
	s.kick()
}

// requeue moves a request whose backoff elapsed out of the in-flight set and
// back into the queue at high priority, so retried work is not starved
// behind newly arrived low-priority requests. This trades fairness for
// liveness; the elevation is bounded by the retry budget.
func (s *Scheduler) requeue(id string) {
	s.mu.Lock()
	req, live := s.inflight[id]
	if !live || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.inflight, id)
	delete(s.retryTimers, id)
	req.Priority = core.PriorityHigh
	s.queue.push(req)
	s.mu.Unlock()

	s.notify()
	s.kick()
}

// backoffDelay returns base * 2^(attempt-1).
func (s *Scheduler) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return s.cfg.BaseRetryDelay << (attempt - 1)
}

// enterCooldownLocked opens a cooldown lasting at least the configured floor
// and at least until the provider's own reset boundary. Caller holds mu.
func (s *Scheduler) enterCooldownLocked(now time.Time) {
	duration := s.cfg.MinCooldown
	if untilReset := s.tracker.TimeUntilReset(nil); untilReset > duration {
		duration = untilReset
	}
	s.cooldownUntil = now.Add(duration)
	s.metrics.Cooldowns++

	s.logger.Warn("entering cooldown",
		zap.Duration("duration", duration),
		zap.Time("until", s.cooldownUntil))
}

// Pause halts dequeues regardless of queue or rate state. In-flight requests
// are unaffected.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.logger.Info("scheduler paused")
	s.notify()
}

// Resume returns control to the normal tick logic.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.logger.Info("scheduler resumed")
	s.notify()
	s.kick()
}

// ClearQueue drops every queued request and rejects its future. In-flight
// requests are unaffected.
func (s *Scheduler) ClearQueue() int {
	s.mu.Lock()
	dropped := s.queue.drain()
	futures := make([]*Future, 0, len(dropped))
	for _, req := range dropped {
		if future, ok := s.futures[req.ID]; ok {
			futures = append(futures, future)
			delete(s.futures, req.ID)
		}
	}
	s.mu.Unlock()

	for _, future := range futures {
		future.settle(nil, ErrQueueCleared)
	}
	if len(dropped) > 0 {
		s.logger.Info("queue cleared", zap.Int("dropped", len(dropped)))
		s.notify()
	}
	return len(dropped)
}

// ResetMetrics zeroes all counters and the execution-time average.
func (s *Scheduler) ResetMetrics() {
	s.mu.Lock()
	s.metrics = core.Metrics{}
	s.mu.Unlock()
}

// Metrics returns a copy of the current counters.
func (s *Scheduler) Metrics() core.Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// State recomputes the observable runtime state from the live queue,
// in-flight set, and tracker.
func (s *Scheduler) State() core.RuntimeState {
	snapshot := s.tracker.MostRestrictive()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(snapshot)
}

func (s *Scheduler) stateLocked(snapshot *core.RateLimitSnapshot) core.RuntimeState {
	now := s.clock()
	state := core.RuntimeState{
		QueueLength: s.queue.len(),
		InFlight:    len(s.inflight),
		Completed:   s.completed,
		RateLimit:   snapshot,
	}

	switch {
	case s.paused:
		state.Mode = core.ModePaused
	case !s.cooldownUntil.IsZero() && now.Before(s.cooldownUntil):
		until := s.cooldownUntil
		state.CooldownUntil = &until
		state.Mode = core.ModeCooldown
	case len(s.inflight) > 0:
		state.Mode = core.ModeProcessing
	default:
		state.Mode = core.ModeIdle
	}

	if s.lastErr != nil {
		state.LastError = s.lastErr.Error()
	}
	return state
}

// Subscribe registers a listener for state-relevant mutations and returns
// its unsubscribe function. The listener receives the state current at the
// time of each notification.
func (s *Scheduler) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}

	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = listener
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// notify delivers the current state to all subscribers, outside the lock.
func (s *Scheduler) notify() {
	snapshot := s.tracker.MostRestrictive()

	s.mu.Lock()
	if len(s.listeners) == 0 {
		s.mu.Unlock()
		return
	}
	state := s.stateLocked(snapshot)
	listeners := make([]Listener, 0, len(s.listeners))
	for _, listener := range s.listeners {
		listeners = append(listeners, listener)
	}
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(state)
	}
}

// kick wakes the admission loop without waiting for the next tick.
func (s *Scheduler) kick() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}
