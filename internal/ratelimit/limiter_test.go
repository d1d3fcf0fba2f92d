package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllowRejectsSixthWithinWindow(t *testing.T) {
	limiter := New(5, time.Hour)
	now := time.Unix(1700000000, 0).UTC()

	for i := 0; i < 5; i++ {
		require.True(t, limiter.Allow("203.0.113.7", now.Add(time.Duration(i)*time.Minute)),
			"submission %d should be allowed", i+1)
	}

	require.False(t, limiter.Allow("203.0.113.7", now.Add(10*time.Minute)),
		"sixth submission within the hour must be rejected")
}

func TestAllowRecoversAfterWindowSlides(t *testing.T) {
	limiter := New(5, time.Hour)
	now := time.Unix(1700000000, 0).UTC()

	for i := 0; i < 5; i++ {
		require.True(t, limiter.Allow("203.0.113.7", now.Add(time.Duration(i)*time.Minute)))
	}
	require.False(t, limiter.Allow("203.0.113.7", now.Add(30*time.Minute)))

	// 61 minutes after the first submission, it has slid out of the window.
	require.True(t, limiter.Allow("203.0.113.7", now.Add(61*time.Minute)),
		"submission after the window slides must be allowed")
}

func TestRejectedAttemptIsNotRecorded(t *testing.T) {
	limiter := New(2, time.Hour)
	now := time.Unix(1700000000, 0).UTC()

	require.True(t, limiter.Allow("client", now))
	require.True(t, limiter.Allow("client", now.Add(time.Minute)))
	require.False(t, limiter.Allow("client", now.Add(2*time.Minute)))

	// Only the two accepted events count; once the first slides out a new
	// one fits even though a rejection happened in between.
	require.True(t, limiter.Allow("client", now.Add(61*time.Minute)))
}

func TestClientsAreIndependent(t *testing.T) {
	limiter := New(1, time.Hour)
	now := time.Unix(1700000000, 0).UTC()

	require.True(t, limiter.Allow("client-a", now))
	require.False(t, limiter.Allow("client-a", now.Add(time.Second)))
	require.True(t, limiter.Allow("client-b", now.Add(time.Second)),
		"one client's throttle must not affect another")
}
