package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Retry and backoff constants.
const (
	defaultMaxRetries = 6
	backoffBase       = 1.5
	maxBackoff        = 60 * time.Second
	userAgent         = "drivescan/0.1"
)

// Client is an HTTP client for the Microsoft Graph API. It handles
// request construction, bearer authentication, retry with backoff on
// throttling and transport failures, and error classification. All
// authenticated calls in this program go through it.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
	maxRetries int

	// failFast aborts on the first 429/5xx instead of retrying.
	// Useful when a concurrent sync is the cause of transient errors.
	failFast bool

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// Options tunes Client behavior. The zero value uses defaults.
type Options struct {
	MaxRetries int  // retry budget per failure class; 0 means defaultMaxRetries
	FailFast   bool // abort immediately on 429/5xx
}

// NewClient creates a Graph API client.
// baseURL is typically "https://graph.microsoft.com/v1.0".
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger, opts Options) *Client {
	if token == nil {
		panic("graph: NewClient requires a TokenSource")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		maxRetries: maxRetries,
		failFast:   opts.FailFast,
		sleepFunc:  timeSleep,
	}
}

// Do executes an HTTP request against the Graph API with the full
// retry protocol. The path is appended to the client's base URL.
// Bodies must be rewindable (io.ReadSeeker) so retries resend them
// in full. The caller is responsible for closing the response body
// on success.
//
// Failure classes track independent attempt counters:
//   - 401 forces a token refresh via TokenSource.Invalidate and retries
//     without consuming the throttle budget.
//   - 429/5xx sleeps for Retry-After when present, else exponential
//     backoff, unless fail-fast mode is enabled.
//   - Transport errors use the same backoff with their own counter.
func (c *Client) Do(ctx context.Context, method, path string, body io.ReadSeeker) (*http.Response, error) {
	url := c.baseURL + path

	var authAttempts, throttleAttempts, netAttempts int

	for {
		if body != nil {
			if _, err := body.Seek(0, io.SeekStart); err != nil {
				return nil, fmt.Errorf("graph: rewinding request body for retry: %w", err)
			}
		}

		resp, err := c.doOnce(ctx, method, url, body)
		if err != nil {
			// Token acquisition failures are fatal, never retried here.
			var authErr *AuthError
			if errors.As(err, &authErr) {
				return nil, err
			}

			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("graph: request canceled: %w", ctx.Err())
			}

			if netAttempts >= c.maxRetries {
				return nil, &TransportError{Attempts: netAttempts + 1, Err: err}
			}

			backoff := backoffDelay(netAttempts)
			c.logger.Warn("retrying after transport error",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("attempt", netAttempts+1),
				slog.Duration("backoff", backoff),
				slog.String("error", err.Error()),
			)

			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, fmt.Errorf("graph: request canceled: %w", sleepErr)
			}

			netAttempts++

			continue
		}

		// 2xx — success.
		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		// Read and close body for error responses.
		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		reqID := resp.Header.Get("request-id")

		// 401: the credential may have been revoked early. Force an
		// unconditional refresh and retry on a separate budget.
		if resp.StatusCode == http.StatusUnauthorized {
			if authAttempts >= c.maxRetries {
				return nil, &APIError{
					StatusCode: resp.StatusCode,
					RequestID:  reqID,
					Message:    string(errBody),
					Err:        ErrUnauthorized,
				}
			}

			c.logger.Info("401 received, forcing token refresh and retry",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("attempt", authAttempts+1),
			)
			c.token.Invalidate()

			authAttempts++

			continue
		}

		if isThrottle(resp.StatusCode) {
			if c.failFast {
				return nil, &ThrottleError{
					StatusCode: resp.StatusCode,
					Body:       string(errBody),
					Attempts:   throttleAttempts + 1,
					FailFast:   true,
				}
			}

			if throttleAttempts >= c.maxRetries {
				return nil, &ThrottleError{
					StatusCode: resp.StatusCode,
					Body:       string(errBody),
					Attempts:   throttleAttempts + 1,
				}
			}

			backoff := retryAfterDelay(resp, throttleAttempts)
			c.logger.Warn("retrying after throttle response",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", throttleAttempts+1),
				slog.Duration("backoff", backoff),
			)

			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, fmt.Errorf("graph: request canceled: %w", sleepErr)
			}

			throttleAttempts++

			continue
		}

		// Remaining 4xx: not retryable.
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			RequestID:  reqID,
			Message:    string(errBody),
			Err:        classifyStatus(resp.StatusCode),
		}
	}
}

// GetJSON issues a GET and decodes a JSON response body into out.
// Endpoints that return a non-JSON content type or an empty body leave
// out untouched — some Graph endpoints legitimately return empty or
// plain-text bodies.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeBody(resp, out)
}

// PostJSON issues a POST with the given JSON body and decodes the JSON
// response into out, with the same content-type leniency as GetJSON.
func (c *Client) PostJSON(ctx context.Context, path string, body io.ReadSeeker, out any) error {
	resp, err := c.Do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeBody(resp, out)
}

// decodeBody decodes a JSON response into out. Non-JSON and empty
// bodies are drained and ignored.
func decodeBody(resp *http.Response, out any) error {
	ct := resp.Header.Get("Content-Type")

	mediaType := ct
	if parsed, _, err := mime.ParseMediaType(ct); err == nil {
		mediaType = parsed
	}

	if !strings.Contains(mediaType, "json") {
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			return fmt.Errorf("graph: draining non-JSON response body: %w", err)
		}

		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("graph: reading response body: %w", err)
	}

	if len(raw) == 0 || out == nil {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("graph: decoding response body: %w", err)
	}

	return nil
}

// doOnce executes a single HTTP request (no retry).
func (c *Client) doOnce(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// retryAfterDelay returns the backoff for a throttle response. A
// Retry-After header takes precedence; otherwise exponential backoff.
func retryAfterDelay(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	return backoffDelay(attempt)
}

// backoffDelay computes backoffBase^(attempt+1) seconds, capped at maxBackoff.
func backoffDelay(attempt int) time.Duration {
	backoff := math.Pow(backoffBase, float64(attempt+1)) * float64(time.Second)
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
