package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/sakif/video-portal/internal/metrics"
)

// RateLimiter keeps one token bucket per client IP. Idle buckets expire
// from the cache, so the store does not grow with every address ever seen.
type RateLimiter struct {
	scope   string
	rate    rate.Limit
	burst   int
	clients *cache.Cache
	metrics *metrics.Registry
}

// NewRateLimiter allows perMinute requests per client per minute with the
// given burst. scope names the limiter in metrics.
func NewRateLimiter(scope string, perMinute, burst int, reg *metrics.Registry) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		scope:   scope,
		rate:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   burst,
		clients: cache.New(10*time.Minute, 5*time.Minute),
		metrics: reg,
	}
}

func (l *RateLimiter) limiter(key string) *rate.Limiter {
	if v, ok := l.clients.Get(key); ok {
		lim := v.(*rate.Limiter)
		l.clients.SetDefault(key, lim)
		return lim
	}
	lim := rate.NewLimiter(l.rate, l.burst)
	if err := l.clients.Add(key, lim, cache.DefaultExpiration); err != nil {
		// Another request for the same client got there first.
		if v, ok := l.clients.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// Handler rejects requests over the limit with 429.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lim := l.limiter(clientIP(r))
		res := lim.Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			l.metrics.RateLimited(l.scope)

			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "Too many requests",
				"code":  "rate_limited",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the request's remote address without the port. chi's RealIP
// middleware has already replaced it with the forwarded address when the
// server sits behind a proxy.
func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if addr == "" {
		return "unknown"
	}
	return addr
}
