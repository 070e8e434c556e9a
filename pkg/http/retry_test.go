package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetryClient(retries int) *RetryClient {
	return NewRetryClient(
		NewClient(WithTimeout(2*time.Second)),
		WithMaxRetries(retries),
		WithBaseDelay(5*time.Millisecond),
	)
}

func TestDoSuccessDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price": 42.5}`))
	}))
	defer srv.Close()

	var out struct {
		Price float64 `json:"price"`
	}
	err := newTestRetryClient(3).Do(context.Background(), &RequestOptions{
		Method: http.MethodGet, URL: srv.URL,
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, 42.5, out.Price)
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	err := newTestRetryClient(3).Do(context.Background(), &RequestOptions{
		Method: http.MethodGet, URL: srv.URL,
	}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDoRetries429WithRetryAfter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	start := time.Now()
	err := newTestRetryClient(2).Do(context.Background(), &RequestOptions{
		Method: http.MethodGet, URL: srv.URL,
	}, nil)
	require.NoError(t, err)
	// the Retry-After header overrides the computed backoff
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDoPermanent4xxNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no such instrument"))
	}))
	defer srv.Close()

	err := newTestRetryClient(3).Do(context.Background(), &RequestOptions{
		Method: http.MethodGet, URL: srv.URL,
	}, nil)
	require.Error(t, err)

	var re *RequestError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusNotFound, re.Status)
	assert.False(t, re.Retryable)
	assert.Equal(t, 1, re.Attempts)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Contains(t, re.Err.Error(), "no such instrument")
}

func TestDoExhaustedBudgetReturnsTypedError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := newTestRetryClient(2).Do(context.Background(), &RequestOptions{
		Method: http.MethodGet, URL: srv.URL,
	}, nil)
	require.Error(t, err)

	var re *RequestError
	require.True(t, errors.As(err, &re))
	assert.True(t, re.Retryable)
	assert.Equal(t, http.StatusBadGateway, re.Status)
	assert.Equal(t, 3, re.Attempts) // first call + 2 retries
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDoTransportErrorRetryable(t *testing.T) {
	// a closed server produces connection refused
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := newTestRetryClient(1).Do(context.Background(), &RequestOptions{
		Method: http.MethodGet, URL: url,
	}, nil)
	require.Error(t, err)

	var re *RequestError
	require.True(t, errors.As(err, &re))
	assert.True(t, re.Retryable)
	assert.Zero(t, re.Status)
}

func TestDoContextCancelStopsRetrying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewRetryClient(NewClient(WithTimeout(time.Second)),
		WithMaxRetries(10), WithBaseDelay(200*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Do(ctx, &RequestOptions{Method: http.MethodGet, URL: srv.URL}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseRetryAfterSeconds(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"7"}}}
	assert.Equal(t, 7*time.Second, parseRetryAfter(resp))

	resp = &http.Response{Header: http.Header{}}
	assert.Zero(t, parseRetryAfter(resp))
}
