package worker

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter implements per-host rate limiting with temporary cooldowns.
// A cooldown parks a host after it answers 429 so the scraper can skip
// it until the window passes instead of hammering it.
type Limiter struct {
	limiters     map[string]*rate.Limiter
	cooldowns    map[string]time.Time
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a new rate limiter.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}

	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		cooldowns:    make(map[string]time.Time),
		defaultRate:  rate.Limit(requestsPerSecond),
		defaultBurst: burst,
	}
}

// Wait waits for rate limit clearance for the given URL.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host, err := hostOf(rawURL)
	if err != nil {
		return err
	}

	return l.getLimiter(host).Wait(ctx)
}

// Allow checks if a request is allowed without waiting.
func (l *Limiter) Allow(rawURL string) bool {
	host, err := hostOf(rawURL)
	if err != nil {
		return false
	}

	return l.getLimiter(host).Allow()
}

// Snooze parks a host until the given time.
func (l *Limiter) Snooze(rawURL string, until time.Time) {
	host, err := hostOf(rawURL)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.cooldowns[host] = until
}

// Snoozed reports whether the host is parked and until when. Expired
// cooldowns are cleared on the way out.
func (l *Limiter) Snoozed(rawURL string) (time.Time, bool) {
	host, err := hostOf(rawURL)
	if err != nil {
		return time.Time{}, false
	}

	l.mu.RLock()
	until, exists := l.cooldowns[host]
	l.mu.RUnlock()

	if !exists {
		return time.Time{}, false
	}
	if time.Now().After(until) {
		l.mu.Lock()
		delete(l.cooldowns, host)
		l.mu.Unlock()
		return time.Time{}, false
	}
	return until, true
}

// getLimiter returns the rate limiter for a host.
func (l *Limiter) getLimiter(host string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[host]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[host]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[host] = limiter

	return limiter
}

// SetHostRate sets a custom rate limit for a specific host.
func (l *Limiter) SetHostRate(host string, requestsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if burst <= 0 {
		burst = l.defaultBurst
	}

	l.limiters[host] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// hostOf extracts the host from a URL.
func hostOf(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return parsed.Host, nil
}
