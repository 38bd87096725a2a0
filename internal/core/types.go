package core

import (
	"encoding/json"
	"time"
)

// Priority orders admission of queued requests. Higher urgency is dequeued
// first; within a class arrival order is preserved.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank returns the urgency rank of a priority, lower is more urgent.
// Unknown values rank as normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Valid reports whether p is one of the known priority classes.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Request is a pending admin-API call waiting for admission.
type Request struct {
	ID         string          `json:"id"`
	Endpoint   string          `json:"endpoint"`
	Method     string          `json:"method"`
	Body       json.RawMessage `json:"body,omitempty"`
	ContextID  string          `json:"context_id"`
	Priority   Priority        `json:"priority"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
}

// Mode is the scheduler's observable operating mode.
type Mode string

const (
	ModeIdle       Mode = "idle"
	ModeProcessing Mode = "processing"
	ModeCooldown   Mode = "cooldown"
	ModePaused     Mode = "paused"

	// ModeThrottled is reserved. No transition currently produces it.
	ModeThrottled Mode = "throttled"
)

// RateLimitSnapshot is one observation of a provider rate-limit window.
type RateLimitSnapshot struct {
	Endpoint   string    `json:"endpoint"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	Reset      time.Time `json:"reset"`
	ObservedAt time.Time `json:"observed_at"`
}

// Stale reports whether the snapshot's window has already rolled over.
// Stale snapshots must not drive admission decisions.
func (s RateLimitSnapshot) Stale(now time.Time) bool {
	return !now.Before(s.Reset)
}

// PercentRemaining returns the remaining budget as a percentage of the limit.
func (s RateLimitSnapshot) PercentRemaining() float64 {
	if s.Limit <= 0 {
		return 0
	}
	return float64(s.Remaining) / float64(s.Limit) * 100
}

// RuntimeState is a derived snapshot of the scheduler, recomputed on demand.
type RuntimeState struct {
	Mode          Mode               `json:"mode"`
	QueueLength   int                `json:"queue_length"`
	InFlight      int                `json:"in_flight"`
	Completed     uint64             `json:"completed"`
	RateLimit     *RateLimitSnapshot `json:"rate_limit,omitempty"`
	CooldownUntil *time.Time         `json:"cooldown_until,omitempty"`
	LastError     string             `json:"last_error,omitempty"`
}

// Metrics are monotonic scheduler counters plus a running execution-time
// average. Zeroed at construction, reset only by explicit operator action.
type Metrics struct {
	Submitted      uint64  `json:"submitted"`
	Succeeded      uint64  `json:"succeeded"`
	Failed         uint64  `json:"failed"`
	Retried        uint64  `json:"retried"`
	Cooldowns      uint64  `json:"cooldowns"`
	AvgExecMillis  float64 `json:"avg_exec_millis"`
	ExecSampleSize uint64  `json:"exec_sample_size"`
}

// TransportRequest is the closed request schema handed to a Transport.
type TransportRequest struct {
	Endpoint  string          `json:"endpoint"`
	Method    string          `json:"method"`
	Body      json.RawMessage `json:"body,omitempty"`
	ContextID string          `json:"context_id"`
}

// TransportResult is the closed response schema a Transport must return.
// A timeout is surfaced as a failed result, never a hang.
type TransportResult struct {
	Success    bool              `json:"success"`
	StatusCode int               `json:"status_code,omitempty"`
	Data       json.RawMessage   `json:"data,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Error      string            `json:"error,omitempty"`
}
