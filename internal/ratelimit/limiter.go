// Package ratelimit bounds how often a shared resource may be called using a
// sliding window of admission timestamps.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// cushion is added to every computed wait so a woken caller lands just past
// the window boundary instead of on it.
const cushion = 10 * time.Millisecond

// Limiter admits at most capacity callers within any trailing window.
// It is safe for concurrent use; one instance is meant to be shared by every
// call site that hits the same upstream quota.
type Limiter struct {
	mu       sync.Mutex
	capacity int
	window   time.Duration
	stamps   []time.Time

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	onAdmit func(at time.Time)
}

// New creates a limiter allowing capacity admissions per window.
// A capacity of zero or less disables limiting.
func New(capacity int, window time.Duration) *Limiter {
	return &Limiter{
		capacity: capacity,
		window:   window,
		now:      time.Now,
		sleep:    Sleep,
	}
}

// Capacity returns the number of admissions allowed per window.
func (l *Limiter) Capacity() int { return l.capacity }

// Window returns the trailing window duration.
func (l *Limiter) Window() time.Duration { return l.window }

// Wait blocks until the caller may proceed and records the admission.
// The check is re-evaluated after every sleep because other callers may have
// taken the freed slot in the meantime. It only fails when ctx ends.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		wait, ok := l.reserve()
		if ok {
			return nil
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// reserve runs the prune/check/record critical section. When no slot is free
// it returns how long to sleep before trying again.
func (l *Limiter) reserve() (time.Duration, bool) {
	if l.capacity <= 0 {
		return 0, true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if len(l.stamps) < l.capacity {
		l.stamps = append(l.stamps, now)
		if l.onAdmit != nil {
			l.onAdmit(now)
		}
		return 0, true
	}

	// stamps are appended in admission order, so the first one is the oldest
	wait := l.stamps[0].Add(l.window).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait + cushion, false
}

func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	keep := 0
	for keep < len(l.stamps) && !l.stamps[keep].After(cutoff) {
		keep++
	}
	if keep > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[keep:]...)
	}
}

// InWindow reports how many admissions fall inside the current window.
func (l *Limiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.stamps)
}

// Sleep pauses for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
