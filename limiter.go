package insights

import (
	"sync"
	"time"
)

// LoginLimiter counts failed sign-ins per client IP over a sliding window.
// Both the admin form and the token endpoint share one instance.
type LoginLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	max      int
	window   time.Duration
	now      func() time.Time

	done chan struct{}
	once sync.Once
}

// NewLoginLimiter allows max failures per window. Stop releases the
// background sweeper.
func NewLoginLimiter(max int, window time.Duration) *LoginLimiter {
	l := &LoginLimiter{
		failures: make(map[string][]time.Time),
		max:      max,
		window:   window,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go l.sweep()
	return l
}

// recent drops entries older than the window. Callers hold l.mu.
func (l *LoginLimiter) recent(ip string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	ts := l.failures[ip]
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	ts = ts[i:]
	if len(ts) == 0 {
		delete(l.failures, ip)
		return nil
	}
	l.failures[ip] = ts
	return ts
}

func (l *LoginLimiter) sweep() {
	t := time.NewTicker(l.window)
	defer t.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-t.C:
			l.mu.Lock()
			now := l.now()
			for ip := range l.failures {
				l.recent(ip, now)
			}
			l.mu.Unlock()
		}
	}
}

// Stop ends the sweeper. Repeated calls are no-ops.
func (l *LoginLimiter) Stop() {
	l.once.Do(func() { close(l.done) })
}

// Check reports whether ip is under the failure limit without counting
// anything.
func (l *LoginLimiter) Check(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recent(ip, l.now())) < l.max
}

// Record counts a failed attempt from ip.
func (l *LoginLimiter) Record(ip string) {
	l.mu.Lock()
	l.failures[ip] = append(l.failures[ip], l.now())
	l.mu.Unlock()
}

// Reset forgets every failure from ip, typically after a good sign-in.
func (l *LoginLimiter) Reset(ip string) {
	l.mu.Lock()
	delete(l.failures, ip)
	l.mu.Unlock()
}

// RetryAfter is how long ip must wait before Check succeeds again. It is
// zero when ip is not blocked.
func (l *LoginLimiter) RetryAfter(ip string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	ts := l.recent(ip, now)
	if len(ts) < l.max {
		return 0
	}
	// The oldest failure that keeps the count at max must age out.
	return ts[len(ts)-l.max].Add(l.window).Sub(now)
}
