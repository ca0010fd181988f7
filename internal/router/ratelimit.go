package router

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"natours/internal/apperr"
	"natours/internal/handler"
	"natours/internal/logger"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter counts requests per client key.
type Limiter interface {
	// Allow records one request for key and reports whether it is within
	// the limit and how many requests remain in the window.
	Allow(ctx context.Context, key string) (ok bool, remaining int64, err error)
}

// RedisLimiter is a fixed-window counter shared by every API instance.
type RedisLimiter struct {
	rdb    *redis.Client
	max    int64
	window time.Duration
}

func NewRedisLimiter(rdb *redis.Client, limit int64, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, max: limit, window: window}
}

// Allow opens the window and counts the hit in one MULTI, so a counter
// never exists without its expiry.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, int64, error) {
	k := "natours:ratelimit:" + key
	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, k, 0, l.window)
		incr = pipe.Incr(ctx, k)
		return nil
	})
	if err != nil {
		return true, 0, fmt.Errorf("rate limit count: %w", err)
	}
	n := incr.Val()
	return n <= l.max, max(l.max-n, 0), nil
}

// MemoryLimiter is a token bucket per client refilled at max per window.
// It is used when no Redis is configured.
type MemoryLimiter struct {
	mu       sync.Mutex
	max      int64
	window   time.Duration
	limiters map[string]*memoryEntry
	swept    time.Time
}

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewMemoryLimiter(limit int64, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		max:      limit,
		window:   window,
		limiters: make(map[string]*memoryEntry),
		swept:    time.Now(),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, int64, error) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.swept) > l.window {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > l.window {
				delete(l.limiters, k)
			}
		}
		l.swept = now
	}

	e, ok := l.limiters[key]
	if !ok {
		every := l.window / time.Duration(max(l.max, 1))
		e = &memoryEntry{limiter: rate.NewLimiter(rate.Every(every), int(l.max))}
		l.limiters[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)
	return allowed, int64(e.limiter.TokensAt(now)), nil
}

// withRateLimit rejects clients over the limit with 429. Limiter errors
// let the request through.
func withRateLimit(l Limiter, limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, remaining, err := l.Allow(r.Context(), clientIP(r))
			if err != nil {
				logger.Warn("rate_limit_unavailable", map[string]any{"error": err})
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if !ok {
				handler.WriteError(w, r, apperr.New("Too many requests from this IP, please try again in an hour!", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP uses RemoteAddr, which middleware.RealIP has already rewritten
// from forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
