package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitError indicates a user exceeded a request limit.
type RateLimitError struct {
	Type       string // "requests_per_minute" or "max_open_sessions"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %s (limit %d, retry after %s)", e.Type, e.Limit, e.RetryAfter)
}

// RateLimiterConfig holds the limits.
type RateLimiterConfig struct {
	RequestsPerMinute int
	MaxOpenSessions   int
}

// DefaultRateLimiterConfig returns sensible limits for a personal reader
// deployment.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerMinute: 60,
		MaxOpenSessions:   8,
	}
}

type userActivity struct {
	requests []time.Time
	sessions int
}

// RateLimiter tracks per-user request rates and open session counts with a
// sliding one-minute window.
type RateLimiter struct {
	config RateLimiterConfig
	mu     sync.Mutex
	users  map[string]*userActivity
	now    func() time.Time // replaceable in tests
}

// NewRateLimiter creates a rate limiter with the given configuration.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		config: config,
		users:  make(map[string]*userActivity),
		now:    time.Now,
	}
}

// CheckRateLimit records one request for the user and reports whether it is
// allowed.
func (rl *RateLimiter) CheckRateLimit(userID string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	activity := rl.activity(userID)
	activity.requests = trimWindow(activity.requests, now.Add(-time.Minute))

	if rl.config.RequestsPerMinute > 0 && len(activity.requests) >= rl.config.RequestsPerMinute {
		retry := time.Minute - now.Sub(activity.requests[0])
		return &RateLimitError{
			Type:       "requests_per_minute",
			Limit:      rl.config.RequestsPerMinute,
			RetryAfter: retry,
		}
	}

	activity.requests = append(activity.requests, now)
	return nil
}

// SessionOpened records a newly opened session, enforcing the per-user cap.
func (rl *RateLimiter) SessionOpened(userID string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	activity := rl.activity(userID)
	if rl.config.MaxOpenSessions > 0 && activity.sessions >= rl.config.MaxOpenSessions {
		return &RateLimitError{
			Type:       "max_open_sessions",
			Limit:      rl.config.MaxOpenSessions,
			RetryAfter: 0,
		}
	}
	activity.sessions++
	return nil
}

// SessionClosed releases one session slot for the user.
func (rl *RateLimiter) SessionClosed(userID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if activity, ok := rl.users[userID]; ok && activity.sessions > 0 {
		activity.sessions--
	}
}

func (rl *RateLimiter) activity(userID string) *userActivity {
	a, ok := rl.users[userID]
	if !ok {
		a = &userActivity{}
		rl.users[userID] = a
	}
	return a
}

func trimWindow(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	return times[i:]
}
