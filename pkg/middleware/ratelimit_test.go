package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tracker/pkg/contextkeys"
	"github.com/platinummonkey/tracker/pkg/observability"
)

func smallConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 2,
		WindowDuration:    time.Hour,
		BurstSize:         1,
	}
}

func TestMemoryRateLimiter_Allow(t *testing.T) {
	limiter := NewMemoryRateLimiter(smallConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "actor:1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := limiter.Allow(ctx, "actor:1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = limiter.Allow(ctx, "actor:2")
	assert.True(t, ok, "keys have separate buckets")
}

func TestMemoryRateLimiter_Cleanup(t *testing.T) {
	limiter := NewMemoryRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    10 * time.Millisecond,
	})
	for _, key := range []string{"a", "b", "c"} {
		_, _ = limiter.Allow(context.Background(), key)
	}
	assert.Equal(t, 3, limiter.size())

	time.Sleep(30 * time.Millisecond)
	limiter.Cleanup()
	assert.Equal(t, 0, limiter.size())
}

func TestMemoryRateLimiter_Concurrency(t *testing.T) {
	limiter := NewMemoryRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 50,
		WindowDuration:    time.Hour,
		BurstSize:         10,
	})

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if ok, _ := limiter.Allow(context.Background(), "shared"); ok {
					atomic.AddInt64(&allowed, 1)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(60), allowed)
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	assert.Positive(t, cfg.RequestsPerWindow)
	assert.True(t, cfg.WindowDuration > 0)
	assert.GreaterOrEqual(t, cfg.BurstSize, 0)

	assert.Equal(t, cfg, NewMemoryRateLimiter(nil).Config())
	assert.Equal(t, cfg, NewMemoryRateLimiter(&RateLimitConfig{WindowDuration: time.Second}).Config())
}

func newRedisLimiter(t *testing.T) (*RedisRateLimiter, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 2,
		WindowDuration:    time.Minute,
	}, "test"), mr
}

func TestRedisRateLimiter_Allow(t *testing.T) {
	limiter, mr := newRedisLimiter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "actor:7")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, "actor:7")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, mr.Exists("test:actor:7"))
	assert.Equal(t, time.Minute, mr.TTL("test:actor:7"))

	mr.FastForward(time.Minute + time.Second)
	ok, err = limiter.Allow(ctx, "actor:7")
	require.NoError(t, err)
	assert.True(t, ok, "a new window starts after expiry")
}

func TestRedisRateLimiter_RemainingAndReset(t *testing.T) {
	limiter, _ := newRedisLimiter(t)
	ctx := context.Background()

	remaining, err := limiter.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	_, _ = limiter.Allow(ctx, "k")
	remaining, err = limiter.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	_, _ = limiter.Allow(ctx, "k")
	_, _ = limiter.Allow(ctx, "k")
	remaining, err = limiter.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	require.NoError(t, limiter.Reset(ctx, "k"))
	remaining, err = limiter.Remaining(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
}

func TestRedisRateLimiter_BackendDown(t *testing.T) {
	limiter, mr := newRedisLimiter(t)
	mr.Close()

	ok, err := limiter.Allow(context.Background(), "k")
	assert.Error(t, err)
	assert.True(t, ok, "errors fail open")
}

func withActor(r *http.Request, id int64) *http.Request {
	return r.WithContext(contextkeys.WithActorID(r.Context(), id))
}

func TestRateLimit_Middleware(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	logger, _ := test.NewNullLogger()
	limiter := NewMemoryRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Hour,
	})

	handler := RateLimit(limiter, logger, metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withActor(httptest.NewRequest(http.MethodGet, "/", nil), 1))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, withActor(httptest.NewRequest(http.MethodGet, "/", nil), 1))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3600", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limited")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, withActor(httptest.NewRequest(http.MethodGet, "/", nil), 2))
	assert.Equal(t, http.StatusNoContent, rec.Code, "other actors keep their budget")

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RateLimitedTotal.WithLabelValues("memory", "allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitedTotal.WithLabelValues("memory", "limited")))
}

func TestRateLimit_FailOpen(t *testing.T) {
	limiter, mr := newRedisLimiter(t)
	mr.Close()
	logger, hook := test.NewNullLogger()

	handler := RateLimit(limiter, logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withActor(httptest.NewRequest(http.MethodGet, "/", nil), 3))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "actor:3", hook.LastEntry().Data["key"])
}

func TestRequestKey(t *testing.T) {
	tests := []struct {
		name    string
		actor   int64
		headers map[string]string
		remote  string
		want    string
	}{
		{"actor wins", 9, map[string]string{"X-Forwarded-For": "1.1.1.1"}, "10.0.0.1:1234", "actor:9"},
		{"forwarded first hop", 0, map[string]string{"X-Forwarded-For": "192.168.1.1, 10.0.0.2"}, "10.0.0.1:1234", "ip:192.168.1.1"},
		{"real ip", 0, map[string]string{"X-Real-IP": "192.168.1.2"}, "10.0.0.1:1234", "ip:192.168.1.2"},
		{"remote addr", 0, nil, "10.0.0.1:1234", "ip:10.0.0.1"},
		{"remote addr without port", 0, nil, "10.0.0.1", "ip:10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if tt.actor != 0 {
				req = withActor(req, tt.actor)
			}
			assert.Equal(t, tt.want, requestKey(req))
		})
	}
}
