// Package dispatch handles timer firings: it resolves the alarm identity,
// decides whether to actually ring, and fans out to the ringing session and
// the alert surfaces.
package dispatch

import (
	"context"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"alarm-delivery-backend/internal/model"
	"alarm-delivery-backend/internal/notify"
	"alarm-delivery-backend/internal/presence"
	"alarm-delivery-backend/internal/store"
)

// Rearmer re-arms a recurring definition at its next occurrence.
type Rearmer interface {
	ArmNext(ctx context.Context, alarm *model.Alarm) (time.Time, error)
}

// Dispatcher is the fire callback target.
type Dispatcher struct {
	store    store.Store
	presence *presence.Manager
	notifier *notify.Notifier
	sched    Rearmer

	timeout time.Duration
}

// New creates a Dispatcher.
func New(s store.Store, p *presence.Manager, n *notify.Notifier, r Rearmer) *Dispatcher {
	return &Dispatcher{
		store:    s,
		presence: p,
		notifier: n,
		sched:    r,
		timeout:  10 * time.Second,
	}
}

// OnFire processes one timer firing. Only the identity survives the wake-up;
// everything else is resolved from the store. A firing for an identity no
// longer present is stale and discarded; a firing for an identity already
// ringing is a duplicate and coalesced.
func (d *Dispatcher) OnFire(id int64) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	alarm, err := d.store.GetAlarm(ctx, id)
	if err == gorm.ErrRecordNotFound {
		log.Printf("Stale firing for unknown alarm %d, discarding", id)
		return
	}
	if err != nil {
		log.Printf("Error resolving alarm %d on fire: %v", id, err)
		return
	}

	if d.presence.Active(id) {
		log.Printf("Duplicate firing for alarm %d, coalescing", id)
		return
	}

	// Audio and the alert proceed independently: a misconfigured alert
	// channel must not silence the ring, and a dead audio device must not
	// hide the alert.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if alarm.Kind == model.KindSunrise {
			// Pre-wake events surface visually only.
			return
		}
		if _, err := d.presence.Start(id, alarm.SoundRef); err != nil {
			log.Printf("Ringing session audio for alarm %d unavailable: %v", id, err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := d.notifier.Post(alarm); err != nil {
			log.Printf("Failed to post alert for alarm %d: %v", id, err)
		}
	}()
	wg.Wait()

	// Recurring definitions re-arm immediately so a skipped action still
	// leaves the alarm live for tomorrow. One-shots stay un-armed until the
	// user acts.
	if !alarm.OneShot() {
		if at, err := d.sched.ArmNext(ctx, alarm); err != nil {
			log.Printf("Failed to re-arm recurring alarm %d: %v", id, err)
		} else if !at.IsZero() {
			log.Printf("Alarm %d fired, next occurrence armed for %s", id, at.Format(time.RFC3339))
		}
	}
}
