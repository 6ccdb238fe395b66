package insights

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

type manualClock struct{ t time.Time }

func (m *manualClock) now() time.Time          { return m.t }
func (m *manualClock) advance(d time.Duration) { m.t = m.t.Add(d) }

func newTestLimiter(t *testing.T, max int, window time.Duration) (*LoginLimiter, *manualClock) {
	t.Helper()
	clock := &manualClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	l := NewLoginLimiter(max, window)
	l.mu.Lock()
	l.now = clock.now
	l.mu.Unlock()
	t.Cleanup(l.Stop)
	return l, clock
}

func TestLoginLimiterBlocksAfterMax(t *testing.T) {
	l, _ := newTestLimiter(t, 2, time.Minute)
	ip := "203.0.113.10"

	l.Record(ip)
	assert.True(t, l.Check(ip))
	l.Record(ip)
	assert.False(t, l.Check(ip), "two failures inside the window")
}

func TestLoginLimiterWindowSlides(t *testing.T) {
	l, clock := newTestLimiter(t, 2, time.Minute)
	ip := "203.0.113.20"

	l.Record(ip)
	clock.advance(40 * time.Second)
	l.Record(ip)
	assert.False(t, l.Check(ip))
	assert.Equal(t, 20*time.Second, l.RetryAfter(ip))

	clock.advance(20 * time.Second)
	assert.True(t, l.Check(ip), "first failure aged out")
	assert.Zero(t, l.RetryAfter(ip))
}

func TestLoginLimiterIsPerIP(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Minute)

	l.Record("203.0.113.30")
	assert.False(t, l.Check("203.0.113.30"))
	assert.True(t, l.Check("203.0.113.31"))
}

func TestLoginLimiterCheckDoesNotRecord(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Minute)
	ip := "203.0.113.40"

	for i := 0; i < 3; i++ {
		assert.True(t, l.Check(ip), "check %d", i)
	}
	l.Record(ip)
	assert.False(t, l.Check(ip))
}

func TestLoginLimiterReset(t *testing.T) {
	l, _ := newTestLimiter(t, 1, time.Minute)
	ip := "203.0.113.50"

	l.Record(ip)
	assert.False(t, l.Check(ip))
	l.Reset(ip)
	assert.True(t, l.Check(ip))
}

func TestLoginLimiterStopEndsSweeper(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	l := NewLoginLimiter(1, 10*time.Millisecond)
	l.Stop()
	l.Stop()
}
