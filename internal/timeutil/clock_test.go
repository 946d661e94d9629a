package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealClock(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	assert.False(t, now.Before(before))

	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("ticker did not fire")
	}
}

func TestMockClockAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	assert.Equal(t, start, clock.Now())

	for i := 0; i < 200; i++ {
		clock.Advance(5 * time.Millisecond)
	}
	assert.Equal(t, start.Add(time.Second), clock.Now())

	clock.Set(start)
	assert.Equal(t, start, clock.Now())
}

func TestMockTicker(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ticker := clock.NewTicker(10 * time.Millisecond)

	clock.Advance(5 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("fired before its period")
	default:
	}

	clock.Advance(5 * time.Millisecond)
	select {
	case got := <-ticker.C():
		assert.Equal(t, time.Unix(0, 0).Add(10*time.Millisecond), got)
	default:
		t.Fatal("did not fire at its period")
	}

	// Unread ticks are dropped, not queued.
	clock.Advance(10 * time.Millisecond)
	clock.Advance(10 * time.Millisecond)
	require.Len(t, ticker.C(), 1)
	<-ticker.C()

	ticker.Stop()
	clock.Advance(time.Second)
	assert.Len(t, ticker.C(), 0)
}

func TestClockInterface(t *testing.T) {
	var _ Clock = RealClock{}
	var _ Clock = (*MockClock)(nil)
	var _ Ticker = (*MockTicker)(nil)
}
