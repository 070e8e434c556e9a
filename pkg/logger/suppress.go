package logger

import (
	"sync"
	"time"
)

// Suppressor deduplicates repeated identical log events. The first event for
// a key within the window is logged immediately; repeats are counted and a
// single summary line is emitted when the window rolls over. This keeps a
// sustained outage from flooding the log with one line per failed request.
type Suppressor struct {
	l      *Logger
	window time.Duration

	mu      sync.Mutex
	entries map[string]*suppressEntry
}

type suppressEntry struct {
	firstAt time.Time
	count   int
}

// NewSuppressor wraps a Logger with a per-key repeat window.
func NewSuppressor(l *Logger, window time.Duration) *Suppressor {
	if window <= 0 {
		window = time.Minute
	}
	return &Suppressor{
		l:       l,
		window:  window,
		entries: make(map[string]*suppressEntry),
	}
}

// Error logs the event for key, or counts it if an identical key was logged
// within the window.
func (s *Suppressor) Error(key, msg string, fields ...Field) {
	if se, repeats := s.track(key); se != nil {
		if repeats > 0 {
			s.l.Warn("repeated error suppressed",
				String("key", key),
				Int("count", repeats),
				Duration("window", s.window))
		}
		s.l.Error(msg, fields...)
	}
}

// Warn is the warning-level counterpart of Error.
func (s *Suppressor) Warn(key, msg string, fields ...Field) {
	if se, repeats := s.track(key); se != nil {
		if repeats > 0 {
			s.l.Warn("repeated warning suppressed",
				String("key", key),
				Int("count", repeats),
				Duration("window", s.window))
		}
		s.l.Warn(msg, fields...)
	}
}

// track records an occurrence of key. It returns a non-nil entry when the
// event should be logged, along with the number of occurrences that were
// swallowed since the last logged one.
func (s *Suppressor) track(key string) (*suppressEntry, int) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	se, ok := s.entries[key]
	if !ok || now.Sub(se.firstAt) >= s.window {
		repeats := 0
		if ok {
			repeats = se.count
		}
		s.entries[key] = &suppressEntry{firstAt: now}
		return s.entries[key], repeats
	}
	se.count++
	return nil, 0
}

// Logger returns the underlying logger for events that must never be
// suppressed.
func (s *Suppressor) Logger() *Logger { return s.l }
