// Package retry provides exponential backoff with jitter for network and
// database-lock failures.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config configures the exponential backoff retry behavior.
type Config struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	Multiplier   float64
	// Jitter is the fraction of the delay randomly added or removed (0.25 = ±25%).
	Jitter float64
}

// DefaultConfig returns defaults for upstream network retry.
func DefaultConfig() Config {
	return Config{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		MaxAttempts:  5,
		Multiplier:   2.0,
		Jitter:       0.25,
	}
}

// LockConfig returns the retry policy for "database is locked" contention.
// Destructive operations use a higher attempt cap.
func LockConfig(destructive bool) Config {
	attempts := 5
	if destructive {
		attempts = 10
	}
	return Config{
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		MaxAttempts:  attempts,
		Multiplier:   2.0,
		Jitter:       0.5,
	}
}

// Classifier decides whether an error is worth another attempt.
type Classifier func(error) bool

// IsNetworkError checks if an error is likely due to network unavailability.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	var dnsErr *net.DNSError
	if errors.As(err, &netErr) || errors.As(err, &dnsErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	networkIndicators := []string{
		"connection refused",
		"no such host",
		"timeout",
		"network is unreachable",
		"no route to host",
		"host is down",
		"dial tcp",
		"dial udp",
		"i/o timeout",
		"connection reset",
		"unexpected eof",
		"temporary failure in name resolution",
	}
	for _, indicator := range networkIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}

// IsLocked reports whether err is SQLite write contention.
func IsLocked(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy")
}

// Do executes fn until it succeeds, returns an error the classifier rejects,
// or the attempt cap is reached. The last error is returned.
func Do(ctx context.Context, name string, cfg Config, retryable Classifier, fn func() error, logger *zerolog.Logger) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 && logger != nil {
				logger.Debug().Str("operation", name).Int("attempt", attempt).Msg("operation succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if !retryable(err) {
			return err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		if logger != nil {
			logger.Warn().
				Err(err).
				Str("operation", name).
				Int("attempt", attempt).
				Int("maxAttempts", cfg.MaxAttempts).
				Msg("retryable error, backing off")
		}

		if err := Sleep(ctx, Jittered(delay, cfg.Jitter)); err != nil {
			return err
		}
		delay = Next(delay, cfg)
	}

	if logger != nil {
		logger.Error().Err(lastErr).Str("operation", name).Int("attempts", cfg.MaxAttempts).
			Msg("operation failed after all retries")
	}
	return lastErr
}

// Backoff returns the un-jittered delay before the given attempt (1-based).
func Backoff(cfg Config, attempt int) time.Duration {
	delay := cfg.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = Next(delay, cfg)
	}
	return delay
}

// Next grows delay by the multiplier, capped at MaxDelay.
func Next(delay time.Duration, cfg Config) time.Duration {
	mult := cfg.Multiplier
	if mult <= 1 {
		mult = 2
	}
	next := time.Duration(float64(delay) * mult)
	if cfg.MaxDelay > 0 && next > cfg.MaxDelay {
		next = cfg.MaxDelay
	}
	return next
}

// Jittered spreads d by ±fraction.
func Jittered(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || d <= 0 {
		return d
	}
	spread := float64(d) * fraction
	return time.Duration(float64(d) - spread + rand.Float64()*2*spread)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
