package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"ArxivDigest/internal/infrastructure/resilience"
)

// HTTPStatusError is returned for non-2xx completion API responses so callers
// can distinguish rate limiting and server faults from client mistakes.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "completion status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("completion %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("completion %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// ScoreParseError reports a relevance response that did not contain a clean
// integer. It is retryable: the model is asked again rather than coerced to 0.
type ScoreParseError struct {
	Response string
}

func (e *ScoreParseError) Error() string {
	return fmt.Sprintf("relevance response is not an integer: %q", e.Response)
}

func classifyCompletionError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	// A per-call timeout consumes a retry attempt like any transient failure;
	// the executor stops on its own once the run context is done.
	if errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var parseErr *ScoreParseError
	if errors.As(err, &parseErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: false}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if isRetryableHTTPStatus(statusErr.StatusCode) {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
