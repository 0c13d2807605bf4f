package metadata

import (
	"math/rand/v2"
	"time"
)

// StalenessSource supplies the current threshold in days.
type StalenessSource interface {
	StalenessThresholdDays() int
}

// FixedStaleness is a constant threshold.
type FixedStaleness int

func (f FixedStaleness) StalenessThresholdDays() int { return int(f) }

// JitterFunc returns the random offset added to the threshold.
type JitterFunc func() time.Duration

// DefaultJitter spreads refreshes by ±5 days and ±12 hours.
func DefaultJitter() time.Duration {
	days := rand.IntN(11) - 5
	hours := rand.IntN(25) - 12
	return time.Duration(days)*24*time.Hour + time.Duration(hours)*time.Hour
}

// stalenessPolicy decides when a cached item needs a refresh.
type stalenessPolicy struct {
	source StalenessSource
	jitter JitterFunc
	now    func() time.Time
}

// isStale reports whether updatedAt is older than the jittered threshold.
// A zero updatedAt is always stale.
func (p stalenessPolicy) isStale(updatedAt time.Time) bool {
	if updatedAt.IsZero() {
		return true
	}
	days := p.source.StalenessThresholdDays()
	if days < 1 {
		days = 1
	}
	threshold := time.Duration(days) * 24 * time.Hour
	if p.jitter != nil {
		threshold += p.jitter()
	}
	return p.now().Sub(updatedAt.UTC()) > threshold
}
