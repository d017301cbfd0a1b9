// Package ratelimit implements an in-memory fixed-window request counter keyed by
// an arbitrary identifier, usually the client IP.
package ratelimit

import (
	"log/slog"
	"sync"
	"time"

	"marunose/internal/logger"
)

const (
	DefaultSweepInterval = 5 * time.Minute
	DefaultSweepMaxAge   = 15 * time.Minute
)

// Result is the outcome of a single Check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}

type record struct {
	count       int
	windowStart time.Time
	window      time.Duration
}

// Limiter counts requests per identifier in fixed windows.
// A window starts at the first request after the previous one expired.
type Limiter struct {
	mu      sync.Mutex
	records map[string]*record

	now           func() time.Time
	sweepInterval time.Duration
	sweepMaxAge   time.Duration
	log           *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSweep sets how often stale records are evicted and how old they must be.
func WithSweep(interval, maxAge time.Duration) Option {
	return func(l *Limiter) {
		if interval > 0 {
			l.sweepInterval = interval
		}
		if maxAge > 0 {
			l.sweepMaxAge = maxAge
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(l *Limiter) { l.log = log }
}

func New(opts ...Option) *Limiter {
	l := &Limiter{
		records:       make(map[string]*record),
		now:           time.Now,
		sweepInterval: DefaultSweepInterval,
		sweepMaxAge:   DefaultSweepMaxAge,
		log:           logger.Discard(),
		stopChan:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records an attempt for identifier and reports whether it is within
// maxRequests for the current window. Denied attempts are not counted.
func (l *Limiter) Check(identifier string, maxRequests int, window time.Duration) Result {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[identifier]
	if !ok || rec.windowStart.Before(now.Add(-window)) {
		rec = &record{windowStart: now, window: window}
		l.records[identifier] = rec
	}
	resetTime := rec.windowStart.Add(window)

	if rec.count >= maxRequests {
		return Result{Allowed: false, Remaining: 0, ResetTime: resetTime}
	}

	rec.count++
	return Result{Allowed: true, Remaining: maxRequests - rec.count, ResetTime: resetTime}
}

// Sweep evicts records whose window started longer ago than the configured
// max age. A record whose window has not yet expired is never evicted.
func (l *Limiter) Sweep() int {
	now := l.now()
	cutoff := now.Add(-l.sweepMaxAge)

	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for id, rec := range l.records {
		if rec.windowStart.Before(cutoff) && !now.Before(rec.windowStart.Add(rec.window)) {
			delete(l.records, id)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of tracked identifiers.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Start launches the background sweeper. Calling it more than once has no effect.
func (l *Limiter) Start() {
	l.startOnce.Do(func() {
		l.wg.Add(1)
		go l.sweepLoop()
	})
}

// Stop halts the sweeper and waits for it to exit. It is safe to call repeatedly.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
	l.wg.Wait()
}

func (l *Limiter) sweepLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.log.Debug("Evicted stale rate limit records", "count", n)
			}
		case <-l.stopChan:
			return
		}
	}
}
