package clients

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	var transitions []CircuitBreakerState
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "poster",
		MinRequests:  2,
		FailureRatio: 1.0,
		Timeout:      time.Hour,
		OnStateChange: func(name string, from, to CircuitBreakerState) {
			transitions = append(transitions, to)
		},
	})
	require.Equal(t, "poster", cb.Name())
	require.Equal(t, StateClosed, cb.State())

	boom := errors.New("boom")
	require.ErrorIs(t, cb.Call(func() error { return boom }), boom)
	require.ErrorIs(t, cb.Call(func() error { return boom }), boom)

	require.True(t, cb.IsOpen())
	require.Equal(t, StateOpen, cb.State())
	require.Contains(t, transitions, StateOpen)

	called := false
	err := cb.Call(func() error { called = true; return nil })
	require.ErrorIs(t, err, circuitbreaker.ErrOpen)
	require.False(t, called)
}

func TestCircuitBreaker_ExecuteReturnsValue(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	v, err := cb.Execute(func() (any, error) { return 42, nil })
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestCircuitBreakerState_String(t *testing.T) {
	require.Equal(t, "closed", StateClosed.String())
	require.Equal(t, "half-open", StateHalfOpen.String())
	require.Equal(t, "open", StateOpen.String())
	require.Equal(t, "unknown", CircuitBreakerState(99).String())
}

func TestHTTPExecutor_RetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(HTTPExecutorConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond})
	resp, err := ExecuteHTTP(context.Background(), exec, func() (*http.Response, error) {
		return http.Get(srv.URL)
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestDefaultShouldRetry(t *testing.T) {
	require.True(t, DefaultShouldRetry(nil, errors.New("dial")))
	require.True(t, DefaultShouldRetry(nil, nil))
	require.True(t, DefaultShouldRetry(&http.Response{StatusCode: http.StatusTooManyRequests}, nil))
	require.False(t, DefaultShouldRetry(&http.Response{StatusCode: http.StatusBadRequest}, nil))
	require.False(t, DefaultShouldRetry(&http.Response{StatusCode: http.StatusOK}, nil))
}
