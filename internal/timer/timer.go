// Package timer wraps the wake-up primitive: it arms wall-clock wake-ups per
// alarm identity and invokes a fire callback with only the identity. It holds
// no business logic.
package timer

import (
	"context"
	"log"
	"sync"
	"time"

	"alarm-delivery-backend/config"
)

// FireFunc is invoked, on its own goroutine, when an armed instant is reached.
// Only the identity survives the wake-up; callers resolve everything else from
// durable state.
type FireFunc func(id int64)

// Adapter is the arming surface the scheduler talks to.
type Adapter interface {
	Arm(id int64, at time.Time)
	Cancel(id int64)
	CanScheduleExactly() bool
}

// Wakeup is an in-process Adapter: a single goroutine owns the armed set and
// one timer reset to the earliest deadline.
type Wakeup struct {
	mu      sync.Mutex
	armed   map[int64]time.Time
	refresh chan struct{}

	fire        FireFunc
	exact       bool
	granularity time.Duration
	now         func() time.Time
}

// New creates a Wakeup adapter. Run must be called for it to deliver firings.
func New(cfg *config.TimerConfig, fire FireFunc) *Wakeup {
	return &Wakeup{
		armed:       make(map[int64]time.Time),
		refresh:     make(chan struct{}, 1),
		fire:        fire,
		exact:       cfg.Exact(),
		granularity: time.Duration(cfg.CoarseGranularitySecs) * time.Second,
		now:         time.Now,
	}
}

// CanScheduleExactly reports whether armed instants are honored as given. In
// the degraded mode instants are rounded up to the coarse granularity and
// delivery is best-effort.
func (w *Wakeup) CanScheduleExactly() bool {
	return w.exact
}

// Arm registers a wake-up for the identity, replacing any previous one. Update
// semantics: an id is armed at exactly one instant.
func (w *Wakeup) Arm(id int64, at time.Time) {
	if !w.exact {
		rounded := at.Truncate(w.granularity)
		if rounded.Before(at) {
			rounded = rounded.Add(w.granularity)
		}
		at = rounded
	}
	w.mu.Lock()
	w.armed[id] = at
	w.mu.Unlock()
	w.signal()
}

// Cancel un-arms the identity. Cancelling an unknown identity is a no-op.
func (w *Wakeup) Cancel(id int64) {
	w.mu.Lock()
	delete(w.armed, id)
	w.mu.Unlock()
	w.signal()
}

// ArmedAt returns the pending instant for an identity, if any.
func (w *Wakeup) ArmedAt(id int64) (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	at, ok := w.armed[id]
	return at, ok
}

func (w *Wakeup) signal() {
	select {
	case w.refresh <- struct{}{}:
	default:
		// A refresh is already pending.
	}
}

// Run owns the timer loop until the context is cancelled.
func (w *Wakeup) Run(ctx context.Context) {
	t := time.NewTimer(time.Hour)
	stopTimer(t)

	for {
		next := w.fireDue()

		stopTimer(t)
		if !next.IsZero() {
			d := next.Sub(w.now())
			if d < 0 {
				d = 0
			}
			t.Reset(d)
		}

		select {
		case <-ctx.Done():
			stopTimer(t)
			log.Println("wake-up timer stopped")
			return
		case <-w.refresh:
		case <-t.C:
		}
	}
}

// fireDue dispatches every due identity and returns the next pending instant,
// or zero when nothing is armed.
func (w *Wakeup) fireDue() time.Time {
	now := w.now()

	w.mu.Lock()
	var due []int64
	var next time.Time
	for id, at := range w.armed {
		if !at.After(now) {
			due = append(due, id)
		} else if next.IsZero() || at.Before(next) {
			next = at
		}
	}
	for _, id := range due {
		delete(w.armed, id)
	}
	w.mu.Unlock()

	for _, id := range due {
		go w.fire(id)
	}
	return next
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
