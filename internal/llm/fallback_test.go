package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JAMBAMSF/jagent/internal/resilience"
)

func okServer(content string, calls *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "` + content + `"}}]}`))
	}))
}

func failingServer(calls *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
	}))
}

func TestFallbackClient_SuccessOnPrimary(t *testing.T) {
	var primaryCalls, fallbackCalls atomic.Int32
	primary := okServer("Primary response", &primaryCalls)
	defer primary.Close()
	fallback := okServer("Fallback response", &fallbackCalls)
	defer fallback.Close()

	fc := NewFallbackClient(FallbackConfig{
		PrimaryConfig:   ClientConfig{Endpoint: primary.URL, Timeout: 5 * time.Second},
		PrimaryName:     "primary-ok",
		FallbackConfigs: []ClientConfig{{Endpoint: fallback.URL, Timeout: 5 * time.Second}},
		FallbackNames:   []string{"fallback-ok"},
	})

	out, err := fc.CompleteWithSystem(context.Background(), "sys", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Primary response", out)
	assert.Equal(t, int32(1), primaryCalls.Load())
	assert.Equal(t, int32(0), fallbackCalls.Load())
}

func TestFallbackClient_FallsBack(t *testing.T) {
	var primaryCalls, fallbackCalls atomic.Int32
	primary := failingServer(&primaryCalls)
	defer primary.Close()
	fallback := okServer("Fallback response", &fallbackCalls)
	defer fallback.Close()

	fc := NewFallbackClient(FallbackConfig{
		PrimaryConfig:   ClientConfig{Endpoint: primary.URL},
		PrimaryName:     "primary-down",
		FallbackConfigs: []ClientConfig{{Endpoint: fallback.URL}},
	})

	resp, err := fc.Complete(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)
	msg, _ := resp.FirstMessage()
	assert.Equal(t, "Fallback response", msg.Content)
	assert.Equal(t, "fallback-1", fc.GetCircuitBreakerStatus()[1].Model)
}

func TestFallbackClient_AllFail(t *testing.T) {
	var calls atomic.Int32
	server := failingServer(&calls)
	defer server.Close()

	fc := NewFallbackClient(FallbackConfig{
		PrimaryConfig: ClientConfig{Endpoint: server.URL},
		PrimaryName:   "only-down",
	})

	_, err := fc.Complete(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllModelsFailed)
	assert.True(t, IsRetryable(err))
}

func TestFallbackClient_BreakerOpensAndSkips(t *testing.T) {
	var primaryCalls, fallbackCalls atomic.Int32
	primary := failingServer(&primaryCalls)
	defer primary.Close()
	fallback := okServer("Fallback response", &fallbackCalls)
	defer fallback.Close()

	fc := NewFallbackClient(FallbackConfig{
		PrimaryConfig:   ClientConfig{Endpoint: primary.URL},
		PrimaryName:     "primary-tripping",
		FallbackConfigs: []ClientConfig{{Endpoint: fallback.URL}},
		FallbackNames:   []string{"fallback-steady"},
		Breaker: resilience.Settings{
			MinRequests:     2,
			FailureRatio:    0.5,
			OpenTimeout:     time.Minute,
			HalfOpenMaxReqs: 1,
			CountInterval:   time.Minute,
		},
	})

	msgs := []ChatMessage{{Role: RoleUser, Content: "hi"}}
	for i := 0; i < 4; i++ {
		_, err := fc.Complete(context.Background(), msgs, nil)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(2), primaryCalls.Load(), "primary is skipped once its breaker opens")
	assert.Equal(t, int32(4), fallbackCalls.Load())
	assert.Equal(t, "open", fc.GetCircuitBreakerStatus()[0].State)
}
