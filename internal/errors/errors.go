// Package errors centralizes coded error envelopes for the admin API and
// their HTTP rendering.
package errors

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/quotaflow/quotaflow/internal/observability"
	"github.com/quotaflow/quotaflow/internal/server/middleware"
)

// Envelope is the JSON error body returned by every failing endpoint.
type Envelope struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Timestamp     string `json:"timestamp"`
}

func (e *Envelope) Error() string {
	return e.Code + ": " + e.Message
}

func newEnvelope(code, message string) *Envelope {
	return &Envelope{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// User errors (400-level)

func NewInvalidInputError(message string) *Envelope {
	return newEnvelope("INVALID_INPUT", message)
}

func NewNotFoundError(message string) *Envelope {
	return newEnvelope("NOT_FOUND", message)
}

func NewMethodNotAllowedError(message string) *Envelope {
	return newEnvelope("METHOD_NOT_ALLOWED", message)
}

func NewConflictError(message string) *Envelope {
	return newEnvelope("CONFLICT", message)
}

// Server errors (500-level)

func NewInternalError(message string) *Envelope {
	return newEnvelope("INTERNAL_ERROR", message)
}

func NewExternalServiceError(message string) *Envelope {
	return newEnvelope("EXTERNAL_SERVICE_ERROR", message)
}

func NewTimeoutError(message string) *Envelope {
	return newEnvelope("TIMEOUT", message)
}

func NewConfigInvalidError(message string) *Envelope {
	return newEnvelope("CONFIG_INVALID", message)
}

// HTTPStatus maps an envelope code to a response status.
func HTTPStatus(envelope *Envelope) int {
	switch envelope.Code {
	case "INVALID_INPUT":
		return http.StatusBadRequest
	case "NOT_FOUND":
		return http.StatusNotFound
	case "METHOD_NOT_ALLOWED":
		return http.StatusMethodNotAllowed
	case "CONFLICT":
		return http.StatusConflict
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	case "EXTERNAL_SERVICE_ERROR":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HandleError renders an error as a JSON envelope, stamping the request's
// correlation id and logging server-side failures.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	envelope, ok := err.(*Envelope)
	if !ok {
		envelope = NewInternalError(err.Error())
	}
	if envelope.CorrelationID == "" && r != nil {
		envelope.CorrelationID = middleware.GetRequestID(r.Context())
	}

	status := HTTPStatus(envelope)
	if status >= http.StatusInternalServerError && observability.ServerLogger != nil {
		observability.ServerLogger.Error("request failed",
			zap.String("error_code", envelope.Code),
			zap.Int("http_status", status),
			zap.String("correlation_id", envelope.CorrelationID),
			zap.String("message", envelope.Message))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": envelope})
}
