package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
)

func setupRateLimiter(t *testing.T, limit int) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	config := &RateLimitConfig{RequestsPerWindow: limit, WindowDuration: time.Minute}
	return NewRateLimiter(client, config, testLogger()), mr
}

func TestRateLimiterAllow(t *testing.T) {
	rl, _ := setupRateLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := rl.Allow(ctx, "user:alice")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be within the limit", i+1)
	}

	allowed, err := rl.Allow(ctx, "user:alice")
	require.NoError(t, err)
	assert.False(t, allowed, "request over the limit should be denied")

	// Other callers have their own window.
	allowed, err = rl.Allow(ctx, "user:bob")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimiterWindowResets(t *testing.T) {
	rl, mr := setupRateLimiter(t, 1)
	ctx := context.Background()

	allowed, err := rl.Allow(ctx, "user:alice")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = rl.Allow(ctx, "user:alice")
	require.NoError(t, err)
	assert.False(t, allowed)

	mr.FastForward(2 * time.Minute)

	allowed, err = rl.Allow(ctx, "user:alice")
	require.NoError(t, err)
	assert.True(t, allowed, "counter should reset after the window expires")
}

func TestRateLimiterHandler(t *testing.T) {
	rl, _ := setupRateLimiter(t, 1)

	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	principal := &auth.Principal{UserID: "alice", OrgID: "45678"}

	newRequest := func() *http.Request {
		r := httptest.NewRequest("POST", "/v1/authorize", nil)
		return r.WithContext(contextkeys.WithPrincipal(r.Context(), principal))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest())
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimiterFailsOpen(t *testing.T) {
	rl, mr := setupRateLimiter(t, 1)
	mr.Close()

	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/authorize", nil))
		assert.Equal(t, http.StatusOK, rec.Code, "redis outage must not reject traffic")
	}
}

func TestCallerKey(t *testing.T) {
	apiKeyRequest := httptest.NewRequest("GET", "/", nil)
	apiKeyRequest = apiKeyRequest.WithContext(contextkeys.WithPrincipal(apiKeyRequest.Context(),
		&auth.Principal{UserID: "svc", APIKeyID: "k1"}))
	assert.Equal(t, "key:k1", callerKey(apiKeyRequest))

	userRequest := httptest.NewRequest("GET", "/", nil)
	userRequest = userRequest.WithContext(contextkeys.WithPrincipal(userRequest.Context(),
		&auth.Principal{UserID: "alice"}))
	assert.Equal(t, "user:alice", callerKey(userRequest))

	anonymous := httptest.NewRequest("GET", "/", nil)
	anonymous.RemoteAddr = "10.0.0.7:55123"
	assert.Equal(t, "ip:10.0.0.7", callerKey(anonymous))

	forwarded := httptest.NewRequest("GET", "/", nil)
	forwarded.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "ip:203.0.113.9", callerKey(forwarded))
}
