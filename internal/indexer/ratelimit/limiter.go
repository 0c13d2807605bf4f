// Package ratelimit provides rate limiting for upstream and indexer requests.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Window allows Limit calls per Period. Once saturated, callers wait for the
// window to reset, which is at most one Period.
type Window struct {
	limit  int
	period time.Duration
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	count     int
	resetTime time.Time
}

// NewWindow creates a count-per-period limiter.
func NewWindow(name string, limit int, period time.Duration, logger zerolog.Logger) *Window {
	if limit <= 0 {
		limit = 1
	}
	return &Window{
		limit:  limit,
		period: period,
		logger: logger.With().Str("component", "rate-limiter").Str("bucket", name).Logger(),
		now:    time.Now,
	}
}

// reserve records a call if the window has room and returns how long to
// wait otherwise.
func (w *Window) reserve() (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	// Reset if period has passed
	if !now.Before(w.resetTime) {
		w.count = 0
		w.resetTime = now.Add(w.period)
	}

	if w.count < w.limit {
		w.count++
		return true, 0
	}
	return false, w.resetTime.Sub(now)
}

// Allow records a call when the window has room.
func (w *Window) Allow() bool {
	ok, _ := w.reserve()
	return ok
}

// Wait blocks until a call is allowed or ctx is done.
func (w *Window) Wait(ctx context.Context) error {
	for {
		ok, wait := w.reserve()
		if ok {
			return nil
		}

		w.logger.Warn().
			Int("limit", w.limit).
			Dur("period", w.period).
			Dur("wait", wait).
			Msg("Rate limit reached, waiting for window reset")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Remaining returns the calls left in the current window.
func (w *Window) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.now().Before(w.resetTime) {
		return w.limit
	}
	return w.limit - w.count
}

// Instances holds one token-bucket limiter per indexer instance.
type Instances struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewInstances creates an empty per-instance limiter set.
func NewInstances() *Instances {
	return &Instances{limiters: make(map[string]*rate.Limiter)}
}

// Wait paces a request for the named instance. A non-positive rate disables pacing.
func (i *Instances) Wait(ctx context.Context, name string, perSecond float64) error {
	if perSecond <= 0 {
		return nil
	}

	i.mu.Lock()
	l, ok := i.limiters[name]
	if !ok || l.Limit() != rate.Limit(perSecond) {
		l = rate.NewLimiter(rate.Limit(perSecond), 1)
		i.limiters[name] = l
	}
	i.mu.Unlock()

	return l.Wait(ctx)
}
