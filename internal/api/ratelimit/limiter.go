package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

const DefaultWindow = time.Minute

type ipBucket struct {
	count     int
	resetTime time.Time
}

// IPLimiter allows a fixed number of requests per client IP per window.
type IPLimiter struct {
	mu      sync.Mutex
	buckets map[string]*ipBucket
	limit   int
	window  time.Duration
	now     func() time.Time
}

// NewIPLimiter creates a limiter allowing limit requests per window.
func NewIPLimiter(limit int, window time.Duration) *IPLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &IPLimiter{
		buckets: make(map[string]*ipBucket),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Middleware rejects requests over the limit with 429 and a Retry-After hint.
func (l *IPLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, retry := l.allow(c.RealIP())
			if !ok {
				c.Response().Header().Set("Retry-After", retryAfterSeconds(retry))
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many scrape requests, please try again later")
			}
			return next(c)
		}
	}
}

func (l *IPLimiter) allow(ip string) (bool, time.Duration) {
	if l.limit <= 0 {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	bucket, exists := l.buckets[ip]
	if !exists || now.After(bucket.resetTime) {
		l.buckets[ip] = &ipBucket{count: 1, resetTime: now.Add(l.window)}
		l.sweep(now)
		return true, 0
	}

	if bucket.count >= l.limit {
		return false, bucket.resetTime.Sub(now)
	}
	bucket.count++
	return true, 0
}

// sweep drops expired buckets; callers hold mu.
func (l *IPLimiter) sweep(now time.Time) {
	for ip, b := range l.buckets {
		if now.After(b.resetTime) {
			delete(l.buckets, ip)
		}
	}
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
