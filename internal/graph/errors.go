// Package graph provides an HTTP client for the Microsoft Graph API
// with app-only authentication, automatic retry with backoff, throttle
// handling, and error classification.
package graph

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, graph.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("graph: bad request")
	ErrUnauthorized = errors.New("graph: unauthorized")
	ErrForbidden    = errors.New("graph: forbidden")
	ErrNotFound     = errors.New("graph: not found")
	ErrConflict     = errors.New("graph: conflict")
	ErrGone         = errors.New("graph: resource gone")
	ErrThrottled    = errors.New("graph: throttled")
	ErrServerError  = errors.New("graph: server error")
)

// APIError wraps a sentinel error with HTTP status code, request ID,
// and the API error message body for debugging.
type APIError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("graph: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("graph: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// AuthError indicates the token endpoint rejected the credentials.
// It is fatal for the run — the token request is never retried here.
type AuthError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("graph: token request failed: HTTP %d: %s", e.StatusCode, e.Body)
	}

	return fmt.Sprintf("graph: token request failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ThrottleError indicates a 429/5xx response that exhausted the retry
// budget, or any throttling response when fail-fast mode is enabled.
// The last response body is carried for diagnostics.
type ThrottleError struct {
	StatusCode int
	Body       string
	Attempts   int
	FailFast   bool
}

func (e *ThrottleError) Error() string {
	if e.FailFast {
		return fmt.Sprintf("graph: HTTP %d with fail-fast enabled: %s", e.StatusCode, e.Body)
	}

	return fmt.Sprintf("graph: HTTP %d after %d attempts: %s", e.StatusCode, e.Attempts, e.Body)
}

func (e *ThrottleError) Unwrap() error {
	return ErrThrottled
}

// TransportError indicates a network-level failure (connection reset,
// timeout) that persisted through the retry budget.
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("graph: transport failure after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusGone:
		return ErrGone
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isThrottle reports whether the status code signals provider-side
// throttling or a transient server fault (429 or any 5xx).
func isThrottle(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
