package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_RequestsPerMinute(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 3})

	for i := 0; i < 3; i++ {
		assert.NoError(t, rl.CheckRateLimit("u1"))
	}

	err := rl.CheckRateLimit("u1")
	require.Error(t, err)
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "requests_per_minute", rle.Type)
	assert.Equal(t, 3, rle.Limit)
	assert.Greater(t, rle.RetryAfter, time.Duration(0))

	// Other users are unaffected.
	assert.NoError(t, rl.CheckRateLimit("u2"))
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerMinute: 2})
	base := time.Now()
	rl.now = func() time.Time { return base }

	require.NoError(t, rl.CheckRateLimit("u1"))
	require.NoError(t, rl.CheckRateLimit("u1"))
	require.Error(t, rl.CheckRateLimit("u1"))

	// Both requests fall out of the window.
	rl.now = func() time.Time { return base.Add(61 * time.Second) }
	assert.NoError(t, rl.CheckRateLimit("u1"))
}

func TestRateLimiter_SessionCap(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{MaxOpenSessions: 2})

	require.NoError(t, rl.SessionOpened("u1"))
	require.NoError(t, rl.SessionOpened("u1"))

	err := rl.SessionOpened("u1")
	require.Error(t, err)
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "max_open_sessions", rle.Type)

	rl.SessionClosed("u1")
	assert.NoError(t, rl.SessionOpened("u1"))

	// Closing more sessions than were opened never goes negative.
	rl.SessionClosed("u2")
	require.NoError(t, rl.SessionOpened("u2"))
}

func TestRateLimiter_ZeroLimitsDisableChecks(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{})
	for i := 0; i < 100; i++ {
		require.NoError(t, rl.CheckRateLimit("u1"))
		require.NoError(t, rl.SessionOpened("u1"))
	}
}
