package transport_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"hlsget/internal/config"
	"hlsget/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger is a no-op logger for testing purposes.
type mockLogger struct{}

func (m *mockLogger) Debugf(format string, v ...interface{}) {}
func (m *mockLogger) Infof(format string, v ...interface{})  {}
func (m *mockLogger) Warnf(format string, v ...interface{})  {}
func (m *mockLogger) Errorf(format string, v ...interface{}) {}

func newTestClient(t *testing.T) *transport.Client {
	t.Helper()
	cfg := config.Default()
	cfg.RequestTimeout = 2 * time.Second
	return transport.New(&mockLogger{}, cfg)
}

// TestFetch_Success verifies a successful fetch on the first attempt.
func TestFetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "segment data")
	}))
	defer server.Close()

	data, err := newTestClient(t).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "segment data", string(data))
}

// TestFetch_AppliesHeaderProfile verifies the browser-like header set is
// attached to every request.
func TestFetch_AppliesHeaderProfile(t *testing.T) {
	var userAgent, referer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		referer = r.Header.Get("Referer")
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Headers = map[string]string{
		"User-Agent": "test-agent",
		"Referer":    "https://example.com/",
	}
	client := transport.New(&mockLogger{}, cfg)

	_, err := client.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "test-agent", userAgent)
	assert.Equal(t, "https://example.com/", referer)
}

// TestFetch_RetryThenSuccess verifies transient non-2xx responses count
// toward the retry budget and that the fetch eventually succeeds.
func TestFetch_RetryThenSuccess(t *testing.T) {
	var requestCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requestCount, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "final segment data")
	}))
	defer server.Close()

	data, err := newTestClient(t).Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "final segment data", string(data))
	assert.Equal(t, int32(3), atomic.LoadInt32(&requestCount), "expected exactly 3 attempts")
}

// TestFetch_FailureAfterRetries verifies the budget is exhausted and the
// final error is a FetchError wrapping the last attempt's failure.
func TestFetch_FailureAfterRetries(t *testing.T) {
	var requestCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := newTestClient(t).Fetch(context.Background(), server.URL)
	require.Error(t, err)

	var fetchErr *transport.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, server.URL, fetchErr.URL)
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.Contains(t, fetchErr.Error(), "non-2xx status: 403")
	assert.Equal(t, int32(3), atomic.LoadInt32(&requestCount), "expected exactly 3 attempts")
}

// TestFetch_Timeout verifies the per-request timeout is enforced.
func TestFetch_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		fmt.Fprint(w, "this should not be sent")
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.RequestTimeout = 50 * time.Millisecond
	cfg.Retries = 1
	client := transport.New(&mockLogger{}, cfg)

	_, err := client.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context deadline exceeded")
}
