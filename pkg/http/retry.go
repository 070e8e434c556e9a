package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RequestError is the typed failure surfaced after a request (or the whole
// retry budget) fails. Callers branch on Retryable and Status rather than
// string-matching.
type RequestError struct {
	URL        string
	Status     int // 0 for transport-level failures
	Retryable  bool
	RetryAfter time.Duration // from the Retry-After header, 0 if absent
	Attempts   int
	Err        error
}

func (e *RequestError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("request %s: status %d after %d attempt(s)", e.URL, e.Status, e.Attempts)
	}
	return fmt.Sprintf("request %s: %v after %d attempt(s)", e.URL, e.Err, e.Attempts)
}

func (e *RequestError) Unwrap() error { return e.Err }

// RetryClient wraps Client with bounded exponential-backoff retry.
// Transient failures (connection errors, timeouts, 429, 5xx) are retried;
// other 4xx are permanent and surface immediately.
type RetryClient struct {
	client     *Client
	maxRetries int
	baseDelay  time.Duration
}

// RetryOption configures RetryClient.
type RetryOption func(*RetryClient)

// WithMaxRetries sets the retry budget (attempts beyond the first call).
func WithMaxRetries(n int) RetryOption {
	return func(r *RetryClient) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithBaseDelay sets the first backoff interval.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(r *RetryClient) {
		if d > 0 {
			r.baseDelay = d
		}
	}
}

// NewRetryClient creates a retrying client over the given base client.
func NewRetryClient(client *Client, opts ...RetryOption) *RetryClient {
	r := &RetryClient{
		client:     client,
		maxRetries: 3,
		baseDelay:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do sends the request, retrying transient failures, and decodes the JSON
// response body into dest. On exhausting the budget it returns the last
// classified *RequestError.
func (r *RetryClient) Do(ctx context.Context, opts *RequestOptions, dest interface{}) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.baseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.25
	bo.MaxElapsedTime = 0 // bounded by attempt count, not wall clock
	bo.Reset()

	var last *RequestError
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := bo.NextBackOff()
			if last != nil && last.RetryAfter > 0 {
				delay = last.RetryAfter
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := r.send(ctx, opts, dest)
		if err == nil {
			return nil
		}
		var re *RequestError
		if !errors.As(err, &re) {
			re = &RequestError{URL: opts.URL, Retryable: false, Err: err}
		}
		re.Attempts = attempt + 1
		if !re.Retryable {
			return re
		}
		last = re
	}
	return last
}

func (r *RetryClient) send(ctx context.Context, opts *RequestOptions, dest interface{}) error {
	resp, err := r.client.SendRequest(ctx, opts)
	if err != nil {
		// Transport failures (refused connections, resets, timeouts) are
		// all transient from the caller's point of view.
		return &RequestError{URL: opts.URL, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if dest == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return &RequestError{URL: opts.URL, Status: resp.StatusCode, Retryable: false,
				Err: fmt.Errorf("decode json: %w", err)}
		}
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RequestError{URL: opts.URL, Status: resp.StatusCode, Retryable: true,
			RetryAfter: parseRetryAfter(resp),
			Err:        fmt.Errorf("rate limited")}
	case resp.StatusCode >= 500:
		return &RequestError{URL: opts.URL, Status: resp.StatusCode, Retryable: true,
			Err: fmt.Errorf("server error")}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &RequestError{URL: opts.URL, Status: resp.StatusCode, Retryable: false,
			Err: fmt.Errorf("client error: %s", body)}
	}
}

func parseRetryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
