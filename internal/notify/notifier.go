// Package notify renders the interruptive alert for a ringing alarm and
// tracks which alerts are still pending user action.
package notify

import (
	"fmt"
	"sync"
	"time"

	"alarm-delivery-backend/internal/events"
	"alarm-delivery-backend/internal/model"
)

// Action names a user affordance on a posted alert.
const (
	ActionDismiss = "dismiss"
	ActionSnooze  = "snooze"
)

// Pending mirrors the ringing session lifecycle: it exists from post until
// the user acts or the alert is cleared.
type Pending struct {
	AlarmID  int64
	Label    string
	Actions  []string
	PostedAt time.Time
}

// Notifier posts alerts to the push channel and the UI event bus.
type Notifier struct {
	mu      sync.Mutex
	pending map[int64]Pending

	pool *WorkerPool
	bus  *events.Bus
	now  func() time.Time
}

// New creates a Notifier. pool may be nil when push delivery is not
// configured; the UI bus still receives events.
func New(pool *WorkerPool, bus *events.Bus) *Notifier {
	return &Notifier{
		pending: make(map[int64]Pending),
		pool:    pool,
		bus:     bus,
		now:     time.Now,
	}
}

// Post renders the alert for a firing. A one-tap Dismiss is offered unless
// the definition requires a dismissal challenge, in which case the external
// unlock flow calls Dismiss on success instead. Posting an already-pending
// identity refreshes it rather than duplicating it.
func (n *Notifier) Post(alarm *model.Alarm) error {
	if alarm == nil {
		return fmt.Errorf("nil alarm definition")
	}

	actions := []string{ActionSnooze}
	if alarm.ChallengeKind == 0 {
		actions = append([]string{ActionDismiss}, actions...)
	}

	n.mu.Lock()
	n.pending[alarm.ID] = Pending{
		AlarmID:  alarm.ID,
		Label:    alarm.Label,
		Actions:  actions,
		PostedAt: n.now(),
	}
	n.mu.Unlock()

	n.bus.Publish(events.Event{
		Type:          events.TypePush,
		AlarmID:       alarm.ID,
		Label:         alarm.Label,
		Kind:          string(alarm.Kind),
		ChallengeKind: alarm.ChallengeKind,
		Sunrise:       alarm.Kind == model.KindSunrise,
	})

	if n.pool != nil {
		n.pool.Dispatch(pushJob{
			AlarmID: alarm.ID,
			Label:   alarm.Label,
			Kind:    string(alarm.Kind),
			Actions: actions,
		})
	}
	return nil
}

// Clear removes the alert for an identity. Clearing an identity with no
// pending alert is a no-op.
func (n *Notifier) Clear(id int64) {
	n.mu.Lock()
	_, existed := n.pending[id]
	delete(n.pending, id)
	n.mu.Unlock()

	if existed && n.pool != nil {
		n.pool.Dispatch(pushJob{AlarmID: id, Clear: true})
	}
}

// Pending returns the posted alert for an identity, if one is still visible.
func (n *Notifier) Pending(id int64) (Pending, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.pending[id]
	return p, ok
}

// AnnounceSuccess publishes the tap event that routes the UI to the
// acknowledgment screen after an explicit Dismiss.
func (n *Notifier) AnnounceSuccess(alarm *model.Alarm) {
	ev := events.Event{Type: events.TypeTap}
	if alarm != nil {
		ev.AlarmID = alarm.ID
		ev.Label = alarm.Label
		ev.Kind = string(alarm.Kind)
		ev.ChallengeKind = alarm.ChallengeKind
		ev.Sunrise = alarm.Kind == model.KindSunrise
	}
	n.bus.Publish(ev)
}
