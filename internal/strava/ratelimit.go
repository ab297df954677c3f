package strava

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Strava rate limits:
// - 100 requests per 15 minutes
// - 1000 requests per day
const (
	DefaultShortLimit  = 100
	DefaultDailyLimit  = 1000
	DefaultMinInterval = 150 * time.Millisecond
)

// window is one quota with its own reset schedule
type window struct {
	limit    int
	usage    int
	resetsAt time.Time
	next     func(now time.Time) time.Time
}

func (w *window) roll(now time.Time) {
	if now.After(w.resetsAt) {
		w.usage = 0
		w.resetsAt = w.next(now)
	}
}

func (w *window) exhausted() bool {
	return w.usage >= w.limit
}

func nextQuarterHour(now time.Time) time.Time { return now.Add(15 * time.Minute) }
func nextDay(now time.Time) time.Time         { return now.Truncate(24 * time.Hour).Add(24 * time.Hour) }

// RateLimiter manages Strava API rate limits
type RateLimiter struct {
	mu sync.Mutex

	short window
	daily window

	minInterval time.Duration
	lastRequest time.Time
}

// NewRateLimiter creates a new rate limiter with Strava's limits
func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithLimits(DefaultShortLimit, DefaultDailyLimit, DefaultMinInterval)
}

// NewRateLimiterWithLimits creates a rate limiter with explicit quotas
func NewRateLimiterWithLimits(shortLimit, dailyLimit int, minInterval time.Duration) *RateLimiter {
	now := time.Now()
	return &RateLimiter{
		short:       window{limit: shortLimit, resetsAt: nextQuarterHour(now), next: nextQuarterHour},
		daily:       window{limit: dailyLimit, resetsAt: nextDay(now), next: nextDay},
		minInterval: minInterval,
	}
}

// Wait blocks until a request can be made without exceeding rate limits
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.short.roll(now)
	r.daily.roll(now)

	for _, w := range []*window{&r.short, &r.daily} {
		if !w.exhausted() {
			continue
		}
		if err := r.sleep(ctx, time.Until(w.resetsAt)); err != nil {
			return err
		}
		w.usage = 0
		w.resetsAt = w.next(time.Now())
	}

	if elapsed := time.Since(r.lastRequest); elapsed < r.minInterval {
		if err := r.sleep(ctx, r.minInterval-elapsed); err != nil {
			return err
		}
	}

	r.short.usage++
	r.daily.usage++
	r.lastRequest = time.Now()
	return nil
}

// sleep releases the lock while waiting. Must be called with r.mu held.
func (r *RateLimiter) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Unlock()
	defer r.mu.Lock()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateFromHeaders updates rate limit state from Strava response headers
func (r *RateLimiter) UpdateFromHeaders(h http.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Strava returns: X-RateLimit-Limit: "100,1000" and X-RateLimit-Usage: "34,512"
	if short, daily, ok := parsePair(h.Get("X-RateLimit-Usage")); ok {
		r.short.usage = short
		r.daily.usage = daily
	}
	if short, daily, ok := parsePair(h.Get("X-RateLimit-Limit")); ok {
		r.short.limit = short
		r.daily.limit = daily
	}
}

func parsePair(v string) (int, int, bool) {
	parts := strings.Split(v, ",")
	if len(parts) < 2 {
		return 0, 0, false
	}
	a, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	b, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}
	return a, b, true
}

// Exhaust marks the 15 minute window as used up, so the next Wait blocks
// until it resets. Used when the API refuses a request with 429.
func (r *RateLimiter) Exhaust() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.short.usage = r.short.limit
}

// Status returns current rate limit status
func (r *RateLimiter) Status() (shortRemaining, dailyRemaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.short.limit - r.short.usage, r.daily.limit - r.daily.usage
}

// Usage returns current usage counts
func (r *RateLimiter) Usage() (shortUsage, dailyUsage int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.short.usage, r.daily.usage
}
