package ratelimit

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	// DefaultLimit is the allowed number of submissions per client per window.
	DefaultLimit = 5
	// DefaultWindow is the trailing window submissions are counted over.
	DefaultWindow = time.Hour

	keyPrefix = "rate_limit_"
)

// Limiter throttles submissions per client identifier over a sliding
// window. Timestamps are kept per client with a TTL of one window, so idle
// clients cost nothing.
type Limiter struct {
	store  *gocache.Cache
	limit  int
	window time.Duration
}

// New returns a limiter allowing limit events per window per client.
// Non-positive arguments fall back to the defaults.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		store:  gocache.New(window, 2*window),
		limit:  limit,
		window: window,
	}
}

// Allow reports whether the client may submit at the given instant, and
// records the event when it may. A rejected call records nothing.
func (l *Limiter) Allow(clientID string, now time.Time) bool {
	key := keyPrefix + clientID
	cutoff := now.Add(-l.window)

	var recent []time.Time
	if value, ok := l.store.Get(key); ok {
		for _, at := range value.([]time.Time) {
			if at.After(cutoff) {
				recent = append(recent, at)
			}
		}
	}

	if len(recent) >= l.limit {
		return false
	}

	recent = append(recent, now)
	l.store.Set(key, recent, l.window)
	return true
}
