// Package limiter implements fixed-window per-IP admission control for the
// collection endpoint. State is per-process; exceeding the limit across
// replicas only trades strict fairness for simplicity.
package limiter

import (
	"context"
	"sync"
	"time"
)

type window struct {
	startedAt time.Time
	count     int
	touchedAt time.Time
}

// Limiter admits up to max requests per client IP within each fixed window.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window

	max    int
	length time.Duration

	now func() time.Time
}

// New creates a limiter admitting max requests per windowLength per IP.
func New(max int, windowLength time.Duration) *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		max:     max,
		length:  windowLength,
		now:     time.Now,
	}
}

// Allow reports whether a request from ip is admitted. A fresh or expired
// window restarts at count 1; within a live window requests are admitted
// until the count exceeds the maximum.
func (l *Limiter) Allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[ip]
	if !ok || now.Sub(w.startedAt) >= l.length {
		l.windows[ip] = &window{startedAt: now, count: 1, touchedAt: now}
		return true
	}

	w.count++
	w.touchedAt = now
	return w.count <= l.max
}

// Sweep drops windows untouched for at least twice the window length,
// bounding memory to recently active IPs.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for ip, w := range l.windows {
		if now.Sub(w.touchedAt) >= 2*l.length {
			delete(l.windows, ip)
			evicted++
		}
	}
	return evicted
}

// StartSweeper sweeps once per window length until ctx is cancelled.
func (l *Limiter) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(l.length)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.Sweep(time.Now())
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Len returns the number of tracked windows.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// SetClock overrides the time source; intended for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}
