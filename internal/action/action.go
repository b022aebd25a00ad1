// Package action consumes user actions on a ringing alarm (Dismiss, Snooze,
// swipe-away, app-initiated stop) and drives re-scheduling or teardown.
// Every handler is defensive: missing sessions, cleared alerts and cancelled
// schedules are benign no-ops, because the host may deliver these events out
// of order or more than once.
package action

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"alarm-delivery-backend/internal/notify"
	"alarm-delivery-backend/internal/presence"
	"alarm-delivery-backend/internal/store"
)

// State is the per-identity lifecycle position, derived from the durable
// store and the ephemeral session/alert projections.
type State string

const (
	StateIdle      State = "idle"
	StateScheduled State = "scheduled"
	StateRinging   State = "ringing"
)

// Rescheduler is the scheduling surface the handler needs: re-arm an
// identity at an explicit instant, superseding any existing trigger, and
// cancel an identity outright, including any derived companion.
type Rescheduler interface {
	Rearm(ctx context.Context, id int64, at time.Time) error
	Cancel(ctx context.Context, id int64) error
}

// Handler is the action state machine.
type Handler struct {
	store    store.Store
	sched    Rescheduler
	presence *presence.Manager
	notifier *notify.Notifier
	now      func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New creates a Handler.
func New(s store.Store, rs Rescheduler, p *presence.Manager, n *notify.Notifier) *Handler {
	return &Handler{
		store:    s,
		sched:    rs,
		presence: p,
		notifier: n,
		now:      time.Now,
		locks:    make(map[int64]*sync.Mutex),
	}
}

// lock serializes all events for one identity, so concurrent
// Dismiss-vs-Snooze or Fire-vs-Cancel races resolve to a single winner.
func (h *Handler) lock(id int64) func() {
	h.mu.Lock()
	l, ok := h.locks[id]
	if !ok {
		l = &sync.Mutex{}
		h.locks[id] = l
	}
	h.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Dismiss ends the current occurrence: audio stops, the alert clears, and no
// re-arm happens here (recurring alarms were re-armed at fire time). The UI
// is routed to the acknowledgment screen.
func (h *Handler) Dismiss(ctx context.Context, id int64) error {
	defer h.lock(id)()

	h.presence.Stop(id)
	h.notifier.Clear(id)

	alarm, err := h.store.GetAlarm(ctx, id)
	if err != nil && err != gorm.ErrRecordNotFound {
		return fmt.Errorf("dismiss alarm %d: %w", id, err)
	}

	// A dismissed one-shot is finished: cancel the definition so boot
	// recovery cannot resurrect it (a snoozed one-shot carries a future
	// instant that would otherwise re-arm). Cancelling also removes the
	// derived sunrise companion row and its wake-up.
	if alarm != nil && alarm.OneShot() {
		if err := h.sched.Cancel(ctx, id); err != nil {
			return fmt.Errorf("dismiss alarm %d: %w", id, err)
		}
	}
	h.notifier.AnnounceSuccess(alarm)
	return nil
}

// Snooze re-arms the same identity at now plus the configured snooze
// duration, superseding any existing trigger, then tears down the current
// occurrence. Returns the new trigger instant.
func (h *Handler) Snooze(ctx context.Context, id int64) (time.Time, error) {
	defer h.lock(id)()

	minutes, err := h.store.SnoozeMinutes(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("snooze alarm %d: %w", id, err)
	}
	at := h.now().Add(time.Duration(minutes) * time.Minute)

	if err := h.sched.Rearm(ctx, id, at); err != nil {
		return time.Time{}, fmt.Errorf("snooze alarm %d: %w", id, err)
	}

	h.presence.Stop(id)
	h.notifier.Clear(id)
	log.Printf("Alarm %d snoozed for %d minutes (until %s)", id, minutes, at.Format(time.RFC3339))
	return at, nil
}

// SwipeCleared handles the alert being dismissed without an explicit action:
// audio stops and the alert clears, but no success acknowledgment is
// surfaced, so downstream UI routing can tell "acted" from "merely cleared".
func (h *Handler) SwipeCleared(ctx context.Context, id int64) error {
	defer h.lock(id)()

	h.presence.Stop(id)
	h.notifier.Clear(id)
	return nil
}

// StopRinging always stops audio and clears the alert. With no identity it
// stops whatever is currently ringing. Safe to call with no active session.
func (h *Handler) StopRinging(ctx context.Context, id *int64) error {
	if id != nil {
		defer h.lock(*id)()
		h.presence.Stop(*id)
		h.notifier.Clear(*id)
		return nil
	}

	ringing, ok := h.presence.StopAll()
	if ok {
		h.notifier.Clear(ringing)
	}
	return nil
}

// State derives the lifecycle position for an identity.
func (h *Handler) State(ctx context.Context, id int64) State {
	if h.presence.Active(id) {
		return StateRinging
	}
	if _, pending := h.notifier.Pending(id); pending {
		return StateRinging
	}
	if _, err := h.store.GetAlarm(ctx, id); err == nil {
		return StateScheduled
	}
	return StateIdle
}
