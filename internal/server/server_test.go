package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quotaflow/quotaflow/internal/core"
	"github.com/quotaflow/quotaflow/internal/core/ratelimit"
	"github.com/quotaflow/quotaflow/internal/core/sched"
	"github.com/quotaflow/quotaflow/internal/server/handlers"
)

type okTransport struct{}

func (okTransport) Do(ctx context.Context, req core.TransportRequest) (*core.TransportResult, error) {
	return &core.TransportResult{
		Success:    true,
		StatusCode: http.StatusOK,
		Data:       json.RawMessage(`{"ok":true}`),
	}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *sched.Scheduler) {
	t.Helper()

	cfg := core.SchedulerConfig{
		MaxConcurrent:            2,
		CooldownThresholdPercent: 10,
		MinCooldown:              time.Minute,
		BaseRetryDelay:           10 * time.Millisecond,
		RequestTimeout:           2 * time.Second,
		TickInterval:             5 * time.Millisecond,
	}

	scheduler, err := sched.New(cfg, &ratelimit.Tracker{}, okTransport{})
	require.NoError(t, err)
	scheduler.Start()
	t.Cleanup(scheduler.Stop)

	srv := New("127.0.0.1", 0, handlers.NewSchedulerHandler(scheduler))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, scheduler
}

type errorEnvelope struct {
	Error struct {
		Code          string `json:"code"`
		Message       string `json:"message"`
		CorrelationID string `json:"correlation_id"`
	} `json:"error"`
}

func decodeJSON(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestServerSubmit(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/requests", map[string]any{
		"endpoint":   "/users",
		"method":     "GET",
		"context_id": "prod",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var submitted handlers.SubmitResponse
	decodeJSON(t, resp, &submitted)
	require.NotEmpty(t, submitted.ID)
	require.Equal(t, http.StatusOK, submitted.StatusCode)
	require.JSONEq(t, `{"ok":true}`, string(submitted.Data))
}

func TestServerSubmitRejectsMissingEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/requests", map[string]any{"context_id": "prod"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var envelope errorEnvelope
	decodeJSON(t, resp, &envelope)
	require.Equal(t, "INVALID_INPUT", envelope.Error.Code)
	require.NotEmpty(t, envelope.Error.CorrelationID)
}

func TestServerSubmitRejectsMalformedJSON(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/requests", "application/json", bytes.NewReader([]byte(`{not json`)))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var envelope errorEnvelope
	decodeJSON(t, resp, &envelope)
	require.Equal(t, "INVALID_INPUT", envelope.Error.Code)
}

func TestServerStateAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/state")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state core.RuntimeState
	decodeJSON(t, resp, &state)
	require.Equal(t, core.ModeIdle, state.Mode)
	require.Zero(t, state.QueueLength)

	postJSON(t, ts.URL+"/requests", map[string]any{
		"endpoint":   "/users",
		"context_id": "prod",
	}).Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)

	var metrics core.Metrics
	decodeJSON(t, resp, &metrics)
	require.EqualValues(t, 1, metrics.Submitted)
	require.EqualValues(t, 1, metrics.Succeeded)
}

func TestServerOperatorControls(t *testing.T) {
	ts, scheduler := newTestServer(t)

	resp := postJSON(t, ts.URL+"/pause", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state core.RuntimeState
	decodeJSON(t, resp, &state)
	require.Equal(t, core.ModePaused, state.Mode)

	resp = postJSON(t, ts.URL+"/queue/clear", nil)
	var cleared struct {
		Dropped int `json:"dropped"`
	}
	decodeJSON(t, resp, &cleared)
	require.Zero(t, cleared.Dropped)

	resp = postJSON(t, ts.URL+"/resume", nil)
	decodeJSON(t, resp, &state)
	require.Equal(t, core.ModeIdle, state.Mode)

	scheduler.ResetMetrics()
	resp = postJSON(t, ts.URL+"/metrics/reset", nil)
	var metrics core.Metrics
	decodeJSON(t, resp, &metrics)
	require.Equal(t, core.Metrics{}, metrics)
}

func TestServerHealthAndVersion(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health handlers.HealthResponse
	decodeJSON(t, resp, &health)
	require.Equal(t, "healthy", health.Status)

	resp, err = http.Get(ts.URL + "/version")
	require.NoError(t, err)

	var version handlers.VersionInfo
	decodeJSON(t, resp, &version)
	require.NotEmpty(t, version.Version)
	require.NotEmpty(t, version.GoVersion)
}

func TestServerNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var envelope errorEnvelope
	decodeJSON(t, resp, &envelope)
	require.Equal(t, "NOT_FOUND", envelope.Error.Code)
}

func TestServerMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/state", nil)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()
}
