package httpmiddleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"rollcall/internal/apperror"
	"rollcall/internal/response"
)

// IPRateLimiter keeps one token bucket per client IP; for prod swap to Redis.
type IPRateLimiter struct {
	mu    sync.Mutex
	ips   map[string]*rate.Limiter
	limit rate.Limit
	burst int
}

// NewIPRateLimiter allows perMinute requests per IP with a burst of the same size.
func NewIPRateLimiter(perMinute int) *IPRateLimiter {
	return &IPRateLimiter{
		ips:   make(map[string]*rate.Limiter),
		limit: rate.Limit(float64(perMinute) / 60),
		burst: perMinute,
	}
}

func (l *IPRateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.ips[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.ips[key] = lim
	}
	return lim
}

// GinMiddleware returns gin handler enforcing per-IP limits.
func (l *IPRateLimiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.limiter(ip).Allow() {
			response.Abort(c, http.StatusTooManyRequests, apperror.CodeRateLimit, "too many requests")
			return
		}
		c.Next()
	}
}
