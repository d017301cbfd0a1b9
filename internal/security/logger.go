// Package security keeps a bounded in-memory audit trail of authentication
// attempts and flags bursts of activity from a single IP.
package security

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"marunose/internal/logger"

	"github.com/google/uuid"
)

type EventType string

const (
	EventAPIKeyValidation   EventType = "API_KEY_VALIDATION"
	EventRateLimitExceeded  EventType = "RATE_LIMIT_EXCEEDED"
	EventInvalidFormat      EventType = "INVALID_FORMAT"
	EventBruteForceDetected EventType = "BRUTE_FORCE_DETECTED"
)

const (
	DefaultMaxEvents      = 1000
	DefaultTrimTo         = 500
	DefaultBurstThreshold = 10
	DefaultBurstWindow    = 5 * time.Minute
)

// Event is one audit record. ID and Timestamp are assigned by Log.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	IP        string                 `json:"ip"`
	UserAgent string                 `json:"userAgent,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Recorder receives a notification for every stored event.
type Recorder interface {
	RecordSecurityEvent(eventType string)
}

// Logger is safe for concurrent use.
type Logger struct {
	mu     sync.Mutex
	events []Event

	log            *slog.Logger
	now            func() time.Time
	maxEvents      int
	trimTo         int
	burstThreshold int
	burstWindow    time.Duration
	recorder       Recorder
}

type Option func(*Logger)

func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// WithRetention sets the cap that triggers trimming and how many events survive it.
func WithRetention(maxEvents, trimTo int) Option {
	return func(l *Logger) {
		if maxEvents > 0 {
			l.maxEvents = maxEvents
		}
		if trimTo > 0 && trimTo <= l.maxEvents {
			l.trimTo = trimTo
		}
	}
}

func WithBurstDetection(threshold int, window time.Duration) Option {
	return func(l *Logger) {
		if threshold > 0 {
			l.burstThreshold = threshold
		}
		if window > 0 {
			l.burstWindow = window
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(l *Logger) { l.recorder = r }
}

func NewLogger(log *slog.Logger, opts ...Option) *Logger {
	if log == nil {
		log = logger.Discard()
	}
	l := &Logger{
		log:            log,
		now:            time.Now,
		maxEvents:      DefaultMaxEvents,
		trimTo:         DefaultTrimTo,
		burstThreshold: DefaultBurstThreshold,
		burstWindow:    DefaultBurstWindow,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log stores the event, writes it to the structured log and checks the source IP
// for a burst. A burst produces at most one BRUTE_FORCE_DETECTED event per call.
func (l *Logger) Log(e Event) {
	l.mu.Lock()
	stored := l.appendLocked(e)

	var burst *Event
	if stored.Type != EventBruteForceDetected {
		if count := l.recentCountLocked(stored.IP, stored.Timestamp); count > l.burstThreshold {
			b := l.appendLocked(Event{
				Type: EventBruteForceDetected,
				IP:   stored.IP,
				Details: map[string]interface{}{
					"eventCount": count,
					"timeWindow": formatWindow(l.burstWindow),
				},
			})
			burst = &b
		}
	}
	l.mu.Unlock()

	l.emit(stored)
	if burst != nil {
		l.emit(*burst)
	}
}

// Events returns a copy of the retained events, optionally filtered by IP.
func (l *Logger) Events(ip string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, 0, len(l.events))
	for _, e := range l.events {
		if ip == "" || e.IP == ip {
			e.Details = maps.Clone(e.Details)
			out = append(out, e)
		}
	}
	return out
}

func (l *Logger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func (l *Logger) appendLocked(e Event) Event {
	e.ID = uuid.NewString()
	e.Timestamp = l.now()
	e.Details = maps.Clone(e.Details)
	l.events = append(l.events, e)

	if len(l.events) > l.maxEvents {
		kept := make([]Event, l.trimTo)
		copy(kept, l.events[len(l.events)-l.trimTo:])
		l.events = kept
	}
	return e
}

// recentCountLocked counts non-synthetic events from ip inside the burst window.
func (l *Logger) recentCountLocked(ip string, now time.Time) int {
	since := now.Add(-l.burstWindow)
	count := 0
	for i := len(l.events) - 1; i >= 0; i-- {
		e := l.events[i]
		if e.Timestamp.Before(since) {
			break
		}
		if e.IP == ip && e.Type != EventBruteForceDetected {
			count++
		}
	}
	return count
}

func (l *Logger) emit(e Event) {
	level := slog.LevelInfo
	switch e.Type {
	case EventBruteForceDetected:
		level = slog.LevelError
	case EventRateLimitExceeded, EventInvalidFormat:
		level = slog.LevelWarn
	}
	l.log.LogAttrs(context.Background(), level, "Security event",
		slog.String("event_id", e.ID),
		slog.String("type", string(e.Type)),
		slog.String("ip", e.IP),
		slog.String("user_agent", e.UserAgent),
		slog.Time("timestamp", e.Timestamp),
		slog.Any("details", e.Details),
	)
	if l.recorder != nil {
		l.recorder.RecordSecurityEvent(string(e.Type))
	}
}

func formatWindow(d time.Duration) string {
	if d%time.Minute != 0 {
		return d.String()
	}
	m := int(d / time.Minute)
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
