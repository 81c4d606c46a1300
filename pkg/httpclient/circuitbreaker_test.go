package httpclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCBConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      100 * time.Millisecond,
		FailureRatio: 0.5,
		MinRequests:  3,
	}
}

func noRetryClient() *Client {
	return New(Config{Timeout: 5 * time.Second, MaxConnsPerHost: 10})
}

// statusServer answers with the status stored in status.
func statusServer(t *testing.T, status *atomic.Int32, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCircuitBreaker_ClosedState_Success(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := statusServer(t, &status, `{"responseHeader":{"status":0}}`)

	cb := NewCircuitBreakerClient(noRetryClient(), testCBConfig("cb-closed"), testLogger())

	resp, err := cb.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.Equal(t, float64(1), testutil.ToFloat64(circuitBreakerRequests.WithLabelValues("cb-closed", "success")))
}

func TestCircuitBreaker_ServerErrorsTripButReturnBody(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusInternalServerError)
	srv := statusServer(t, &status, `{"error":{"msg":"core is loading","code":500}}`)

	cb := NewCircuitBreakerClient(noRetryClient(), testCBConfig("cb-trip"), testLogger())

	for i := 0; i < 3; i++ {
		resp, err := cb.Get(context.Background(), srv.URL)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Contains(t, string(body), "core is loading")
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())
	assert.Equal(t, float64(2), testutil.ToFloat64(circuitBreakerState.WithLabelValues("cb-trip")))

	_, err := cb.Get(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, err.Error(), "cb-trip")
	assert.Equal(t, float64(3), testutil.ToFloat64(circuitBreakerRequests.WithLabelValues("cb-trip", "failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(circuitBreakerRequests.WithLabelValues("cb-trip", "rejected")))
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	srv := statusServer(t, &status, "")

	cb := NewCircuitBreakerClient(noRetryClient(), testCBConfig("cb-recover"), testLogger())
	for i := 0; i < 3; i++ {
		resp, err := cb.Get(context.Background(), srv.URL)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	status.Store(http.StatusOK)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, gobreaker.StateHalfOpen, cb.State())

	resp, err := cb.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.Equal(t, float64(0), testutil.ToFloat64(circuitBreakerState.WithLabelValues("cb-recover")))
}

func TestCircuitBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusBadRequest)
	srv := statusServer(t, &status, `{"error":{"msg":"undefined field foo","code":400}}`)

	cb := NewCircuitBreakerClient(noRetryClient(), testCBConfig("cb-4xx"), testLogger())
	for i := 0; i < 10; i++ {
		resp, err := cb.Get(context.Background(), srv.URL)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_TransportErrorsTrip(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cb := NewCircuitBreakerClient(noRetryClient(), testCBConfig("cb-transport"), testLogger())
	for i := 0; i < 3; i++ {
		_, err := cb.Get(context.Background(), url)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())
}

func TestCircuitBreaker_CanceledCallsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	cb := NewCircuitBreakerClient(noRetryClient(), testCBConfig("cb-cancel"), testLogger())
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := cb.Get(ctx, srv.URL)
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_PostSendsBody(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = r.Header.Get("Content-Type") + " " + string(b)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	cb := NewCircuitBreakerClient(noRetryClient(), testCBConfig("cb-post"), testLogger())
	resp, err := cb.Post(context.Background(), srv.URL, "application/x-www-form-urlencoded", strings.NewReader("q=*:*"))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "application/x-www-form-urlencoded q=*:*", got)
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("solr-read")
	assert.Equal(t, "solr-read", cfg.Name)
	assert.Equal(t, uint32(1), cfg.MaxRequests)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 0.5, cfg.FailureRatio)
	assert.Equal(t, uint32(5), cfg.MinRequests)
}
