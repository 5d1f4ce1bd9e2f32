package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/newthinker/equicurve/internal/api/response"
	"github.com/newthinker/equicurve/internal/core"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(r *http.Request) string

// ClientKey buckets by client host, ignoring the source port. Run behind
// chi's RealIP so proxies are honoured.
func ClientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// sweepAt is the bucket count that triggers eviction of idle buckets.
const sweepAt = 1024

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a token bucket per key.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	window  time.Duration
	key     KeyFunc
	logger  *zap.Logger
}

// NewRateLimiter allows n requests per window for each key.
func NewRateLimiter(n int, window time.Duration, key KeyFunc, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if key == nil {
		key = ClientKey
	}
	if n <= 0 {
		n = 1
	}
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Every(window / time.Duration(n)),
		burst:   n,
		window:  window,
		key:     key,
		logger:  logger,
	}
}

func (rl *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		if len(rl.buckets) >= sweepAt {
			rl.evictIdle(now)
		}
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// evictIdle drops buckets unused for a full window. Such a bucket has
// refilled to burst, so a fresh one behaves the same.
func (rl *RateLimiter) evictIdle(now time.Time) {
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) >= rl.window {
			delete(rl.buckets, key)
		}
	}
}

// Len reports how many buckets are tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Handler implements rate limiting middleware
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rl.key(r)
		l := rl.limiterFor(key, time.Now())

		res := l.Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			rl.logger.Warn("rate limit exceeded",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("key", key))

			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			response.Error(w, http.StatusTooManyRequests, core.ErrRateLimited)
			return
		}

		next.ServeHTTP(w, r)
	})
}
