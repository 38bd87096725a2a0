package sched

import (
	"context"
	"encoding/json"
)

// Result is the payload a caller's future resolves to on success.
type Result struct {
	StatusCode int               `json:"status_code,omitempty"`
	Data       json.RawMessage   `json:"data,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

type outcome struct {
	result *Result
	err    error
}

// Future is the pending result of a scheduled request. It settles exactly
// once: the scheduler keeps futures in a request-id-keyed table and removes
// an entry the moment it is resolved or rejected, so late Transport
// completions for an already-settled request are discarded.
type Future struct {
	id string
	ch chan outcome
}

func newFuture(id string) *Future {
	return &Future{id: id, ch: make(chan outcome, 1)}
}

// ID returns the request id this future belongs to.
func (f *Future) ID() string {
	return f.id
}

// Wait blocks until the request settles or ctx is done.
func (f *Future) Wait(ctx context.Context) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case out := <-f.ch:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// settle delivers the outcome. The buffered channel plus single table
// removal guarantee this never blocks and never fires twice.
func (f *Future) settle(result *Result, err error) {
	if f == nil {
		return
	}
	select {
	case f.ch <- outcome{result: result, err: err}:
	default:
	}
}
