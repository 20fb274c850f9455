package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextScheduleDoublesPerAttempt(t *testing.T) {
	p := Policy{Base: 2 * time.Minute, MaxRetries: 3}
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.Equal(t, now.Add(2*time.Minute), p.NextSchedule(now, 0))
	require.Equal(t, now.Add(4*time.Minute), p.NextSchedule(now, 1))
	require.Equal(t, now.Add(8*time.Minute), p.NextSchedule(now, 2))
}

func TestNextScheduleClampsNegativeCount(t *testing.T) {
	p := Policy{Base: time.Minute, MaxRetries: 3}
	now := time.Now().UTC()
	require.Equal(t, now.Add(time.Minute), p.NextSchedule(now, -5))
}

func TestNextScheduleCapsExponent(t *testing.T) {
	p := Policy{Base: time.Second, MaxRetries: 3}
	now := time.Now().UTC()
	require.Equal(t, p.NextSchedule(now, maxShift), p.NextSchedule(now, 1000))
}

func TestExhausted(t *testing.T) {
	p := Policy{Base: time.Minute, MaxRetries: 3}
	require.False(t, p.Exhausted(2))
	require.True(t, p.Exhausted(3))
	require.True(t, p.Exhausted(4))
}
