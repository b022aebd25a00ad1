package action

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"alarm-delivery-backend/internal/events"
	"alarm-delivery-backend/internal/model"
	"alarm-delivery-backend/internal/notify"
	"alarm-delivery-backend/internal/presence"
	"alarm-delivery-backend/internal/sched"
	"alarm-delivery-backend/internal/store"
)

type fakeTimer struct {
	mu    sync.Mutex
	armed map[int64]time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{armed: make(map[int64]time.Time)}
}

func (f *fakeTimer) Arm(id int64, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed[id] = at
}

func (f *fakeTimer) Cancel(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.armed, id)
}

func (f *fakeTimer) CanScheduleExactly() bool { return true }

func (f *fakeTimer) armedAt(id int64) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, ok := f.armed[id]
	return at, ok
}

type fixture struct {
	store    store.Store
	timer    *fakeTimer
	sched    *sched.Scheduler
	presence *presence.Manager
	notifier *notify.Notifier
	bus      *events.Bus
	handler  *Handler
}

func newFixture(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.Alarm{}, &model.Setting{}, &model.PushSubscription{}))

	f := &fixture{
		store: store.NewGormStore(db, 5),
		timer: newFakeTimer(),
		bus:   events.NewBus(),
	}
	f.sched = sched.New(f.store, f.timer)
	f.presence = presence.NewManager(presence.NopPlayer{})
	f.notifier = notify.New(nil, f.bus)
	f.handler = New(f.store, f.sched, f.presence, f.notifier)
	return f
}

// ring puts an identity into the Ringing state the way the dispatcher would.
func (f *fixture) ring(t *testing.T, alarm *model.Alarm) {
	require.NoError(t, f.store.SaveAlarm(context.Background(), alarm))
	_, err := f.presence.Start(alarm.ID, alarm.SoundRef)
	require.NoError(t, err)
	require.NoError(t, f.notifier.Post(alarm))
}

func TestSnooze_SingleRearmLaw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alarm := &model.Alarm{ID: 7, TriggerAtMs: time.Now().Add(time.Hour).UnixMilli(), Label: "wake"}
	f.ring(t, alarm)

	now := time.Date(2026, 3, 9, 7, 30, 0, 0, time.UTC)
	f.handler.now = func() time.Time { return now }

	at, err := f.handler.Snooze(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, now.Add(5*time.Minute), at)

	// Exactly one future trigger, at firing-time plus the snooze duration.
	got, ok := f.timer.armedAt(7)
	require.True(t, ok)
	assert.Equal(t, at, got)

	// Old ring torn down.
	assert.False(t, f.presence.Active(7))
	_, pending := f.notifier.Pending(7)
	assert.False(t, pending)
}

func TestSnooze_UsesConfiguredDuration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SetSnoozeMinutes(ctx, 9))

	alarm := &model.Alarm{ID: 8, TriggerAtMs: time.Now().Add(time.Hour).UnixMilli()}
	f.ring(t, alarm)

	now := time.Now()
	f.handler.now = func() time.Time { return now }

	at, err := f.handler.Snooze(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, now.Add(9*time.Minute), at)
}

func TestDismiss_OneShotEndsLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alarm := &model.Alarm{ID: 1, TriggerAtMs: time.Now().Add(time.Hour).UnixMilli()}
	f.ring(t, alarm)

	_, ch := f.bus.Subscribe()

	require.NoError(t, f.handler.Dismiss(ctx, 1))

	assert.False(t, f.presence.Active(1))
	_, pending := f.notifier.Pending(1)
	assert.False(t, pending)
	_, armed := f.timer.armedAt(1)
	assert.False(t, armed)

	// The one-shot is finished: its definition is gone.
	_, err := f.store.GetAlarm(ctx, 1)
	assert.Equal(t, gorm.ErrRecordNotFound, err)

	// Success acknowledgment surfaced.
	select {
	case ev := <-ch:
		assert.Equal(t, events.TypeTap, ev.Type)
		assert.Equal(t, int64(1), ev.AlarmID)
	case <-time.After(time.Second):
		t.Fatal("no tap event published")
	}
}

func TestDismiss_OneShotRemovesSunriseCompanion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lead := 30
	alarm := &model.Alarm{
		ID:                 3,
		TriggerAtMs:        time.Now().Add(time.Hour).UnixMilli(),
		SunriseLeadMinutes: &lead,
	}
	_, err := f.sched.Arm(ctx, alarm)
	require.NoError(t, err)
	_, err = f.presence.Start(alarm.ID, alarm.SoundRef)
	require.NoError(t, err)

	companion := sched.SunriseID(3)
	_, armed := f.timer.armedAt(companion)
	require.True(t, armed)

	require.NoError(t, f.handler.Dismiss(ctx, 3))

	// Parent and companion are gone, rows and wake-ups both.
	_, err = f.store.GetAlarm(ctx, 3)
	assert.Equal(t, gorm.ErrRecordNotFound, err)
	_, err = f.store.GetAlarm(ctx, companion)
	assert.Equal(t, gorm.ErrRecordNotFound, err)
	_, armed = f.timer.armedAt(companion)
	assert.False(t, armed)
}

func TestDismiss_RecurringKeepsNextOccurrence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alarm := &model.Alarm{ID: 2, Hour: 7, Minute: 30, IsAM: true, RepeatDaily: true}
	f.ring(t, alarm)

	// The dispatcher re-armed tomorrow's occurrence at fire time.
	tomorrow := time.Now().Add(24 * time.Hour)
	f.timer.Arm(2, tomorrow)

	require.NoError(t, f.handler.Dismiss(ctx, 2))

	got, ok := f.timer.armedAt(2)
	require.True(t, ok)
	assert.Equal(t, tomorrow, got)
}

func TestSwipeCleared_NoSuccessEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alarm := &model.Alarm{ID: 3, TriggerAtMs: time.Now().Add(time.Hour).UnixMilli()}
	f.ring(t, alarm)

	_, ch := f.bus.Subscribe()

	require.NoError(t, f.handler.SwipeCleared(ctx, 3))

	assert.False(t, f.presence.Active(3))
	_, pending := f.notifier.Pending(3)
	assert.False(t, pending)

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %q after swipe", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStopRinging_WithoutIdentityStopsCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alarm := &model.Alarm{ID: 4, TriggerAtMs: time.Now().Add(time.Hour).UnixMilli()}
	f.ring(t, alarm)

	require.NoError(t, f.handler.StopRinging(ctx, nil))

	assert.False(t, f.presence.Active(4))
	_, pending := f.notifier.Pending(4)
	assert.False(t, pending)
}

func TestHandlers_MissingStateIsBenign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.NoError(t, f.handler.Dismiss(ctx, 99))
	assert.NoError(t, f.handler.SwipeCleared(ctx, 99))
	assert.NoError(t, f.handler.StopRinging(ctx, nil))
	id := int64(99)
	assert.NoError(t, f.handler.StopRinging(ctx, &id))

	// Snooze on an unknown identity re-arms nothing and does not fail.
	_, err := f.handler.Snooze(ctx, 99)
	assert.NoError(t, err)
	_, armed := f.timer.armedAt(99)
	assert.False(t, armed)
}

func TestState_Derivation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, StateIdle, f.handler.State(ctx, 5))

	alarm := &model.Alarm{ID: 5, TriggerAtMs: time.Now().Add(time.Hour).UnixMilli()}
	require.NoError(t, f.store.SaveAlarm(ctx, alarm))
	assert.Equal(t, StateScheduled, f.handler.State(ctx, 5))

	f.ring(t, alarm)
	assert.Equal(t, StateRinging, f.handler.State(ctx, 5))

	require.NoError(t, f.handler.Dismiss(ctx, 5))
	assert.Equal(t, StateIdle, f.handler.State(ctx, 5))
}
