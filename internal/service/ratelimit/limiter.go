package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type keyState struct {
	mu   sync.Mutex
	last time.Time
}

// Limiter enforces minimum inter-request spacing per endpoint key, plus a
// random jitter so polls do not land on a fixed cadence. Callers sharing a
// key serialize on that key; distinct keys never block each other.
type Limiter struct {
	minInterval time.Duration
	jitter      time.Duration
	clk         clock.Clock

	mu   sync.Mutex
	keys map[string]*keyState
}

// Option configures Limiter.
type Option func(*Limiter)

// WithClock injects a clock, used by tests.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) { l.clk = c }
}

// New creates a limiter with the given minimum spacing and jitter bound.
func New(minInterval, jitter time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		minInterval: minInterval,
		jitter:      jitter,
		clk:         clock.New(),
		keys:        make(map[string]*keyState),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wait blocks until at least minInterval + uniform(0, jitter) has elapsed
// since the last recorded call for key, then records the new call time.
// The minimum spacing is a hard lower bound; the upper bound is best effort.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	ks := l.state(key)
	ks.mu.Lock()
	defer ks.mu.Unlock()

	now := l.clk.Now()
	if !ks.last.IsZero() {
		elapsed := now.Sub(ks.last)
		if elapsed < l.minInterval {
			delay := l.minInterval - elapsed + l.randJitter()
			timer := l.clk.Timer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}
	ks.last = l.clk.Now()
	return nil
}

// LastCall returns the last recorded call time for key, zero if none.
func (l *Limiter) LastCall(key string) time.Time {
	ks := l.state(key)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.last
}

func (l *Limiter) state(key string) *keyState {
	l.mu.Lock()
	defer l.mu.Unlock()
	ks, ok := l.keys[key]
	if !ok {
		ks = &keyState{}
		l.keys[key] = ks
	}
	return ks
}

func (l *Limiter) randJitter() time.Duration {
	if l.jitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(l.jitter)))
}
