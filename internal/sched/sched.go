// Package sched computes trigger instants, persists alarm definitions, and
// arms the wake-up timer. It also re-arms everything still in the future at
// process start.
package sched

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"alarm-delivery-backend/internal/model"
	"alarm-delivery-backend/internal/store"
	"alarm-delivery-backend/internal/timer"
)

// ErrPastTrigger is returned when a one-shot definition resolves to an
// instant that is not strictly in the future.
var ErrPastTrigger = errors.New("trigger instant is in the past")

// sunriseOffset derives the companion pre-wake identity from the parent
// alarm identity. Caller-assigned ids must stay below it so the two
// keyspaces cannot collide.
const sunriseOffset = int64(1) << 32

// MaxAlarmID is the largest caller-assignable alarm identity.
const MaxAlarmID = sunriseOffset - 1

// SunriseID returns the identity of the companion pre-wake record for an
// alarm identity.
func SunriseID(id int64) int64 {
	return id + sunriseOffset
}

// Scheduler owns arm/cancel and boot recovery.
type Scheduler struct {
	store store.Store
	timer timer.Adapter
	now   func() time.Time
}

// New creates a Scheduler.
func New(s store.Store, t timer.Adapter) *Scheduler {
	return &Scheduler{store: s, timer: t, now: time.Now}
}

// CanScheduleExactly surfaces the timer capability so callers learn about
// the degraded best-effort mode up front rather than at fire time.
func (s *Scheduler) CanScheduleExactly() bool {
	return s.timer.CanScheduleExactly()
}

// NextOccurrence resolves the next trigger instant strictly after now. For
// time-of-day alarms that is today at the stored time if still future, else
// tomorrow. One-shot definitions whose instant has passed yield
// ErrPastTrigger.
func (s *Scheduler) NextOccurrence(alarm *model.Alarm, now time.Time) (time.Time, error) {
	if alarm.RepeatDaily {
		at := time.Date(now.Year(), now.Month(), now.Day(), alarm.Hour24(), alarm.Minute, 0, 0, now.Location())
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at, nil
	}
	at := time.UnixMilli(alarm.TriggerAtMs)
	if !at.After(now) {
		return time.Time{}, fmt.Errorf("alarm %d: %w", alarm.ID, ErrPastTrigger)
	}
	return at, nil
}

// Arm persists the definition and arms a wake-up at its next occurrence,
// atomically replacing any previous trigger for the identity. When the
// definition carries a sunrise lead, a companion pre-wake record is derived
// and armed as well. The store is only touched after the instant resolves, so
// a failed call leaves no half-armed state.
func (s *Scheduler) Arm(ctx context.Context, alarm *model.Alarm) (time.Time, error) {
	at, err := s.NextOccurrence(alarm, s.now())
	if err != nil {
		return time.Time{}, err
	}
	if err := s.store.SaveAlarm(ctx, alarm); err != nil {
		return time.Time{}, err
	}
	s.timer.Arm(alarm.ID, at)

	if alarm.SunriseLeadMinutes != nil && alarm.Kind != model.KindSunrise {
		if err := s.armSunriseCompanion(ctx, alarm, at); err != nil {
			log.Printf("Failed to arm sunrise companion for alarm %d: %v", alarm.ID, err)
		}
	}
	return at, nil
}

// armSunriseCompanion derives the pre-wake record lead minutes before the
// parent instant. A lead that has already passed is skipped, not an error.
func (s *Scheduler) armSunriseCompanion(ctx context.Context, parent *model.Alarm, parentAt time.Time) error {
	lead := time.Duration(*parent.SunriseLeadMinutes) * time.Minute
	at := parentAt.Add(-lead)
	if !at.After(s.now()) {
		return nil
	}
	companion := &model.Alarm{
		ID:          SunriseID(parent.ID),
		Kind:        model.KindSunrise,
		TriggerAtMs: at.UnixMilli(),
		Label:       parent.Label,
	}
	if err := s.store.SaveAlarm(ctx, companion); err != nil {
		return err
	}
	s.timer.Arm(companion.ID, at)
	return nil
}

// Rearm arms the identity at an explicit instant, superseding any existing
// trigger. Used by snooze. One-shot definitions are rewritten so the store
// stays reconstructable; recurring ones keep their wall-clock time and the
// snoozed instant lives only in the timer.
func (s *Scheduler) Rearm(ctx context.Context, id int64, at time.Time) error {
	alarm, err := s.store.GetAlarm(ctx, id)
	if err == gorm.ErrRecordNotFound {
		// The definition is gone; nothing to re-arm.
		return nil
	}
	if err != nil {
		return err
	}
	if alarm.OneShot() {
		alarm.TriggerAtMs = at.UnixMilli()
		if err := s.store.SaveAlarm(ctx, alarm); err != nil {
			return err
		}
	}
	s.timer.Arm(id, at)
	return nil
}

// ArmNext re-arms a recurring definition at its next occurrence. Called by
// the dispatcher right after a firing so a skipped user action still leaves
// the alarm live for tomorrow. The sunrise companion moves with the parent:
// it is a one-shot, so without re-derivation it would fire exactly once.
func (s *Scheduler) ArmNext(ctx context.Context, alarm *model.Alarm) (time.Time, error) {
	if alarm.OneShot() {
		return time.Time{}, nil
	}
	at, err := s.NextOccurrence(alarm, s.now())
	if err != nil {
		return time.Time{}, err
	}
	s.timer.Arm(alarm.ID, at)
	if alarm.SunriseLeadMinutes != nil && alarm.Kind != model.KindSunrise {
		if err := s.armSunriseCompanion(ctx, alarm, at); err != nil {
			log.Printf("Failed to re-arm sunrise companion for alarm %d: %v", alarm.ID, err)
		}
	}
	return at, nil
}

// Cancel removes the definition and un-arms the timer for the identity and
// its sunrise companion. Cancelling an unknown identity is a no-op.
func (s *Scheduler) Cancel(ctx context.Context, id int64) error {
	if err := s.store.DeleteAlarm(ctx, id); err != nil {
		return err
	}
	s.timer.Cancel(id)

	companion := SunriseID(id)
	if err := s.store.DeleteAlarm(ctx, companion); err != nil {
		return err
	}
	s.timer.Cancel(companion)
	return nil
}

// Recover re-arms every persisted definition whose next occurrence is still
// in the future. It is purely a function of the store: no ephemeral state
// survives a restart. Returns the number of alarms re-armed.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	alarms, err := s.store.ListAlarms(ctx)
	if err != nil {
		return 0, err
	}
	armed := 0
	for i := range alarms {
		alarm := &alarms[i]
		at, err := s.NextOccurrence(alarm, s.now())
		if err != nil {
			if errors.Is(err, ErrPastTrigger) {
				continue
			}
			return armed, err
		}
		s.timer.Arm(alarm.ID, at)
		armed++
		// A recurring parent refreshes its companion row, which may have
		// gone stale while the process was down.
		if alarm.SunriseLeadMinutes != nil && alarm.Kind != model.KindSunrise {
			if err := s.armSunriseCompanion(ctx, alarm, at); err != nil {
				log.Printf("Failed to re-arm sunrise companion for alarm %d: %v", alarm.ID, err)
			}
		}
	}
	log.Printf("Boot recovery re-armed %d of %d alarms", armed, len(alarms))
	return armed, nil
}
