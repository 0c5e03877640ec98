// Package ratelimit enforces the global outbound-call ceiling shared by every worker.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// clock abstracts time so the window arithmetic can be driven deterministically
type clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Limiter admits at most Points acquisitions in any rolling window of Window length.
// It keeps the grant times of the last Points acquisitions; a caller is admitted once
// the oldest of them has aged out of the window. Callers that cannot be admitted sleep
// until that moment rather than polling.
type Limiter struct {
	points int
	window time.Duration
	clock  clock
	logger arbor.ILogger

	mu     sync.Mutex
	grants []time.Time // Oldest first, len <= points

	onGrant func(time.Time) // Test hook, called under mu
}

// NewLimiter creates a limiter allowing points operations per window
func NewLimiter(points int, window time.Duration, logger arbor.ILogger) (*Limiter, error) {
	if points <= 0 {
		return nil, fmt.Errorf("rate limiter points must be positive, got %d", points)
	}
	if window <= 0 {
		return nil, fmt.Errorf("rate limiter window must be positive, got %s", window)
	}
	if logger == nil {
		logger = arbor.NewNoOpLogger()
	}

	return &Limiter{
		points: points,
		window: window,
		clock:  realClock{},
		logger: logger,
		grants: make([]time.Time, 0, points),
	}, nil
}

// Acquire blocks until a slot is available or ctx is done.
// Exhaustion is never an error; the only error is ctx's.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.clock.Now()
		l.evict(now)

		if len(l.grants) < l.points {
			l.grants = append(l.grants, now)
			if l.onGrant != nil {
				l.onGrant(now)
			}
			l.mu.Unlock()
			return nil
		}

		wait := l.grants[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		l.logger.Debug().
			Dur("wait", wait).
			Int("points", l.points).
			Msg("Rate limit reached, waiting for slot")

		if err := l.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// evict drops grants that have left the window ending at now. Caller holds mu.
func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.grants) && !l.grants[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.grants = append(l.grants[:0], l.grants[i:]...)
	}
}

// Available returns how many acquisitions would currently succeed without waiting
func (l *Limiter) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict(l.clock.Now())
	return l.points - len(l.grants)
}

// Points returns the configured ceiling
func (l *Limiter) Points() int {
	return l.points
}

// Window returns the configured window length
func (l *Limiter) Window() time.Duration {
	return l.window
}
