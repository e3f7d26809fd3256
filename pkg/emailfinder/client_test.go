package emailfinder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/resilience"
)

func TestFind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/email/find", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		assert.Equal(t, "Ada", r.URL.Query().Get("first_name"))
		assert.Equal(t, "Lovelace", r.URL.Query().Get("last_name"))
		assert.Equal(t, "engines.example.com", r.URL.Query().Get("domain"))

		json.NewEncoder(w).Encode(Result{
			Email:  "ada.lovelace@engines.example.com",
			Status: StatusVerified,
			Score:  97,
		})
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL), WithRateLimit(1000, 1000))
	result, err := client.Find(context.Background(), "Ada", "Lovelace", "engines.example.com")
	require.NoError(t, err)

	assert.Equal(t, "ada.lovelace@engines.example.com", result.Email)
	assert.Equal(t, StatusVerified, result.Status)
	assert.Equal(t, 97, result.Score)
}

func TestDomainInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/domain/engines.example.com", r.URL.Path)
		json.NewEncoder(w).Encode(Domain{
			Domain:    "engines.example.com",
			Pattern:   "{first}.{last}",
			Reachable: true,
		})
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL), WithRateLimit(1000, 1000))
	info, err := client.DomainInfo(context.Background(), "engines.example.com")
	require.NoError(t, err)

	assert.Equal(t, "{first}.{last}", info.Pattern)
	assert.True(t, info.Reachable)
}

func TestFind_RateLimitedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL), WithRateLimit(1000, 1000))
	_, err := client.Find(context.Background(), "Ada", "Lovelace", "engines.example.com")
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimited(err))
}

func TestFind_PerDomainThrottle(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(Result{Status: StatusNotFound})
	}))
	defer server.Close()

	// Burst of 1 at 10 rps: the second call on the same domain must wait
	// roughly 100ms, while a different domain proceeds immediately.
	client := NewClient("test-key", WithBaseURL(server.URL), WithRateLimit(10, 1))

	start := time.Now()
	_, err := client.Find(context.Background(), "A", "B", "one.example.com")
	require.NoError(t, err)
	_, err = client.Find(context.Background(), "C", "D", "two.example.com")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 90*time.Millisecond)

	_, err = client.Find(context.Background(), "E", "F", "one.example.com")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFind_ContextCancelledWhileWaiting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(Result{Status: StatusNotFound})
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL), WithRateLimit(0.001, 1))
	_, err := client.Find(context.Background(), "A", "B", "slow.example.com")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Find(ctx, "C", "D", "slow.example.com")
	require.Error(t, err)
}
