package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/quotaflow/quotaflow/internal/core"
	"github.com/quotaflow/quotaflow/internal/core/sched"
	apperrors "github.com/quotaflow/quotaflow/internal/errors"
)

// SchedulerService is the slice of the scheduler the admin API exposes.
type SchedulerService interface {
	Schedule(endpoint, method string, body json.RawMessage, contextID string, priority core.Priority) (*sched.Future, error)
	Pause()
	Resume()
	ClearQueue() int
	ResetMetrics()
	State() core.RuntimeState
	Metrics() core.Metrics
}

// SchedulerHandler serves the admission and operator endpoints.
type SchedulerHandler struct {
	svc SchedulerService
}

// NewSchedulerHandler builds the handler set around a scheduler.
func NewSchedulerHandler(svc SchedulerService) *SchedulerHandler {
	return &SchedulerHandler{svc: svc}
}

// SubmitRequest is the POST /requests body.
type SubmitRequest struct {
	Endpoint  string          `json:"endpoint"`
	Method    string          `json:"method"`
	Body      json.RawMessage `json:"body,omitempty"`
	ContextID string          `json:"context_id"`
	Priority  core.Priority   `json:"priority,omitempty"`
}

// SubmitResponse is returned once the scheduled request completes.
type SubmitResponse struct {
	ID         string            `json:"id"`
	StatusCode int               `json:"status_code,omitempty"`
	Data       json.RawMessage   `json:"data,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// Submit schedules one request and blocks until its future settles or the
// client goes away.
func (h *SchedulerHandler) Submit(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, r, apperrors.NewInvalidInputError("failed to read request body"))
		return
	}

	var submit SubmitRequest
	if err := json.Unmarshal(raw, &submit); err != nil {
		respondError(w, r, apperrors.NewInvalidInputError("invalid JSON body: "+err.Error()))
		return
	}

	future, err := h.svc.Schedule(submit.Endpoint, submit.Method, submit.Body, submit.ContextID, submit.Priority)
	if err != nil {
		respondError(w, r, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	result, err := future.Wait(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, SubmitResponse{
			ID:         future.ID(),
			StatusCode: result.StatusCode,
			Data:       result.Data,
			Headers:    result.Headers,
		})
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		respondError(w, r, apperrors.NewTimeoutError("request abandoned before completion"))
	case errors.Is(err, sched.ErrQueueCleared):
		respondError(w, r, apperrors.NewConflictError(err.Error()))
	default:
		respondError(w, r, apperrors.NewExternalServiceError(err.Error()))
	}
}

// State returns the scheduler's derived runtime state.
func (h *SchedulerHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.State())
}

// Metrics returns the scheduler counters.
func (h *SchedulerHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Metrics())
}

// Pause halts admission until Resume.
func (h *SchedulerHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.svc.Pause()
	writeJSON(w, http.StatusOK, h.svc.State())
}

// Resume returns admission to normal tick logic.
func (h *SchedulerHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.svc.Resume()
	writeJSON(w, http.StatusOK, h.svc.State())
}

// ClearQueue drops all queued requests.
func (h *SchedulerHandler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	dropped := h.svc.ClearQueue()
	writeJSON(w, http.StatusOK, map[string]any{"dropped": dropped})
}

// ResetMetrics zeroes the scheduler counters.
func (h *SchedulerHandler) ResetMetrics(w http.ResponseWriter, r *http.Request) {
	h.svc.ResetMetrics()
	writeJSON(w, http.StatusOK, h.svc.Metrics())
}
