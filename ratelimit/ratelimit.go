// Package ratelimit provides a fixed-window admission limiter with a
// per-subject budget and a stricter global budget shared across all
// subjects. Fixed windows were chosen over sliding windows: the atomic
// section is a single check-and-increment, and an idle subject's budget
// fully replenishes once its window elapses.
package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of an admission attempt. Scope names the budget
// that denied ("user" or "global"); empty when allowed.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Scope      string
}

type window struct {
	start time.Time
	count int
}

// Limiter admits or denies requests. All methods are safe for concurrent
// use; the count increment and limit check are performed under one lock so
// two concurrent admissions can never both take the last slot.
type Limiter struct {
	mu       sync.Mutex
	subjects map[string]*window
	global   window

	subjectLimit  int
	subjectWindow time.Duration
	globalLimit   int
	globalWindow  time.Duration

	// now is the clock; tests inject a fake one.
	now func() time.Time
}

// New constructs a Limiter. A zero or negative limit disables that budget.
func New(subjectLimit int, subjectWindow time.Duration, globalLimit int, globalWindow time.Duration) *Limiter {
	return &Limiter{
		subjects:      make(map[string]*window),
		subjectLimit:  subjectLimit,
		subjectWindow: subjectWindow,
		globalLimit:   globalLimit,
		globalWindow:  globalWindow,
		now:           time.Now,
	}
}

// SetClock replaces the limiter's clock. Intended for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// Admit checks the subject budget and then the global budget, consuming one
// slot from each when admitted. A denied request consumes nothing.
func (l *Limiter) Admit(subject string) Decision {
	return l.admit(subject, false)
}

// AdmitAuthorized is Admit for allow-listed subjects: the per-subject budget
// is bypassed, but the global budget still applies so the upstream provider
// stays protected from aggregate overload.
func (l *Limiter) AdmitAuthorized(subject string) Decision {
	return l.admit(subject, true)
}

func (l *Limiter) admit(subject string, authorized bool) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	var sw *window
	if !authorized && l.subjectLimit > 0 {
		sw = l.subjects[subject]
		if sw == nil {
			sw = &window{start: now}
			l.subjects[subject] = sw
		}
		if now.Sub(sw.start) >= l.subjectWindow {
			sw.start = now
			sw.count = 0
		}
		if sw.count >= l.subjectLimit {
			return Decision{RetryAfter: remaining(sw.start, l.subjectWindow, now), Scope: "user"}
		}
	}

	if l.globalLimit > 0 {
		if now.Sub(l.global.start) >= l.globalWindow {
			l.global.start = now
			l.global.count = 0
		}
		if l.global.count >= l.globalLimit {
			return Decision{RetryAfter: remaining(l.global.start, l.globalWindow, now), Scope: "global"}
		}
		l.global.count++
	}

	if sw != nil {
		sw.count++
	}
	return Decision{Allowed: true}
}

// Prune drops subject windows that have fully elapsed, bounding memory over
// long uptimes with many one-off chatters.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	removed := 0
	for subject, sw := range l.subjects {
		if now.Sub(sw.start) >= l.subjectWindow {
			delete(l.subjects, subject)
			removed++
		}
	}
	return removed
}

func remaining(start time.Time, window time.Duration, now time.Time) time.Duration {
	left := window - now.Sub(start)
	if left < time.Second {
		left = time.Second
	}
	return left
}
