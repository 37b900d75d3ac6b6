package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimiter manages one token bucket per caller. Idle buckets expire
// from the cache, so memory stays bounded by active callers.
type RateLimiter struct {
	buckets *cache.Cache
	limit   rate.Limit
	burst   int
}

// NewRateLimiter: perSecond tokens refill rate, burst max tokens in bucket
func NewRateLimiter(perSecond float64, burst int, idleTTL time.Duration) *RateLimiter {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		buckets: cache.New(idleTTL, idleTTL/2),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if v, ok := rl.buckets.Get(key); ok {
		// touch so an active caller never expires mid-burst
		rl.buckets.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	if err := rl.buckets.Add(key, l, cache.DefaultExpiration); err != nil {
		// lost the race; use the winner
		if v, ok := rl.buckets.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return l
}

func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

// Middleware keys on the authenticated caller, falling back to client IP.
// It must run after JWTAuth to see the caller.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if c, ok := CallerFromContext(r.Context()); ok && c.ID != "" {
			key = "caller:" + c.ID
		}

		if !rl.Allow(key) {
			retry := 1
			if rl.limit > 0 && float64(rl.limit) < 1 {
				retry = int(1/float64(rl.limit)) + 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
