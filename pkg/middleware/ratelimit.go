package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/platinummonkey/tracker/pkg/contextkeys"
	"github.com/platinummonkey/tracker/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig returns default per-actor settings
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 600,
		WindowDuration:    time.Minute,
		BurstSize:         50,
	}
}

// Limiter decides whether one more request for key fits the budget
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Config() *RateLimitConfig
	Backend() string
}

// MemoryRateLimiter keeps a token bucket per key in process
type MemoryRateLimiter struct {
	config   *RateLimitConfig
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
}

// NewMemoryRateLimiter creates an in-process limiter. A nil or non-positive
// config falls back to the defaults.
func NewMemoryRateLimiter(config *RateLimitConfig) *MemoryRateLimiter {
	if config == nil || config.RequestsPerWindow <= 0 || config.WindowDuration <= 0 {
		config = DefaultRateLimitConfig()
	}
	return &MemoryRateLimiter{
		config:   config,
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
	}
}

func (rl *MemoryRateLimiter) Config() *RateLimitConfig { return rl.config }
func (rl *MemoryRateLimiter) Backend() string          { return "memory" }

// Allow consumes one token for key. It never returns an error.
func (rl *MemoryRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[key]
	if !ok {
		every := rl.config.WindowDuration / time.Duration(rl.config.RequestsPerWindow)
		l = rate.NewLimiter(rate.Every(every), rl.config.RequestsPerWindow+rl.config.BurstSize)
		rl.limiters[key] = l
	}
	rl.lastSeen[key] = time.Now()
	return l.Allow(), nil
}

// Cleanup drops keys idle for more than two windows
func (rl *MemoryRateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-2 * rl.config.WindowDuration)
	for key, last := range rl.lastSeen {
		if last.Before(cutoff) {
			delete(rl.limiters, key)
			delete(rl.lastSeen, key)
		}
	}
}

// StartCleanup runs Cleanup every window until ctx is done
func (rl *MemoryRateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-ctx.Done():
			return
		}
	}
}

// size returns the number of tracked keys
func (rl *MemoryRateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// RateLimit returns middleware that applies limiter per actor
func RateLimit(limiter Limiter, logger logrus.FieldLogger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := requestKey(r)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.WithError(err).WithFields(logrus.Fields{
					"key":     key,
					"backend": limiter.Backend(),
				}).Warn("Rate limiter unavailable, allowing request")
				observe(metrics, limiter, "error")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				observe(metrics, limiter, "limited")
				rateLimitExceeded(w, limiter.Config())
				return
			}
			observe(metrics, limiter, "allowed")
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Config().RequestsPerWindow))
			next.ServeHTTP(w, r)
		})
	}
}

func observe(metrics *observability.Metrics, limiter Limiter, result string) {
	if metrics == nil {
		return
	}
	metrics.RateLimitedTotal.WithLabelValues(limiter.Backend(), result).Inc()
}

func rateLimitExceeded(w http.ResponseWriter, config *RateLimitConfig) {
	retryAfter := config.WindowDuration.Seconds()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerWindow))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = fmt.Fprintf(w, `{"code":"rate_limited","message":"rate limit exceeded","retry_after":%.0f}`, retryAfter)
}

// requestKey identifies the caller: the actor when known, else the client IP
func requestKey(r *http.Request) string {
	if id, ok := contextkeys.ActorID(r.Context()); ok {
		return "actor:" + strconv.FormatInt(id, 10)
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
