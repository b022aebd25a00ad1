package internal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"alarm-delivery-backend/config"
	"alarm-delivery-backend/internal/action"
	"alarm-delivery-backend/internal/dispatch"
	"alarm-delivery-backend/internal/events"
	"alarm-delivery-backend/internal/model"
	"alarm-delivery-backend/internal/notify"
	"alarm-delivery-backend/internal/presence"
	"alarm-delivery-backend/internal/sched"
	"alarm-delivery-backend/internal/store"
	"alarm-delivery-backend/internal/timer"
)

type testRig struct {
	store     store.Store
	wakeup    *timer.Wakeup
	scheduler *sched.Scheduler
	presence  *presence.Manager
	notifier  *notify.Notifier
	actions   *action.Handler
	bus       *events.Bus
}

// setupRig wires the full delivery pipeline against an in-memory database
// and the real wake-up timer, with audio replaced by a silent player.
func setupRig(t *testing.T, ctx context.Context) *testRig {
	testDB, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	err = testDB.AutoMigrate(&model.Alarm{}, &model.Setting{}, &model.PushSubscription{})
	require.NoError(t, err)

	rig := &testRig{
		store:    store.NewGormStore(testDB, 5),
		bus:      events.NewBus(),
		presence: presence.NewManager(presence.NopPlayer{}),
	}
	rig.notifier = notify.New(nil, rig.bus)

	var dispatcher *dispatch.Dispatcher
	rig.wakeup = timer.New(&config.TimerConfig{}, func(id int64) {
		dispatcher.OnFire(id)
	})
	rig.scheduler = sched.New(rig.store, rig.wakeup)
	dispatcher = dispatch.New(rig.store, rig.presence, rig.notifier, rig.scheduler)
	rig.actions = action.New(rig.store, rig.scheduler, rig.presence, rig.notifier)

	go rig.wakeup.Run(ctx)
	return rig
}

// TestOneShotDeliveryLifecycle walks a one-shot alarm through its whole life:
// scheduled, fired, ringing with a posted alert, snoozed, and finally
// dismissed after the snoozed firing.
func TestOneShotDeliveryLifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rig := setupRig(t, ctx)

	_, pushEvents := rig.bus.Subscribe()

	alarm := &model.Alarm{
		ID:          1,
		Kind:        model.KindAlarm,
		TriggerAtMs: time.Now().Add(60 * time.Millisecond).UnixMilli(),
		Label:       "integration",
	}
	_, err := rig.scheduler.Arm(ctx, alarm)
	require.NoError(t, err)
	assert.Equal(t, action.StateScheduled, rig.actions.State(ctx, 1))

	// --- Firing ---
	select {
	case ev := <-pushEvents:
		assert.Equal(t, events.TypePush, ev.Type)
		assert.Equal(t, int64(1), ev.AlarmID)
		assert.Equal(t, "integration", ev.Label)
	case <-time.After(2 * time.Second):
		t.Fatal("no push event after the armed instant passed")
	}

	assert.Eventually(t, func() bool {
		return rig.presence.Active(1)
	}, 2*time.Second, 10*time.Millisecond, "a ringing session should be active")

	pending, ok := rig.notifier.Pending(1)
	require.True(t, ok, "an alert should be pending")
	assert.Contains(t, pending.Actions, notify.ActionDismiss)
	assert.Contains(t, pending.Actions, notify.ActionSnooze)
	assert.Equal(t, action.StateRinging, rig.actions.State(ctx, 1))

	// --- Snooze ---
	until, err := rig.actions.Snooze(ctx, 1)
	require.NoError(t, err)
	assert.False(t, rig.presence.Active(1), "snooze must stop the ringing session")
	_, ok = rig.notifier.Pending(1)
	assert.False(t, ok, "snooze must clear the alert")
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), until, 2*time.Second)

	armedAt, armed := rig.wakeup.ArmedAt(1)
	require.True(t, armed, "snooze must arm a new wake-up")
	assert.WithinDuration(t, until, armedAt, time.Second)

	// The snoozed instant was written back to the definition, so a restart
	// would recover it.
	stored, err := rig.store.GetAlarm(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, until.UnixMilli(), stored.TriggerAtMs)
	assert.Equal(t, action.StateScheduled, rig.actions.State(ctx, 1))

	// --- Dismiss (pull the snoozed firing forward instead of waiting) ---
	rig.wakeup.Arm(1, time.Now().Add(30*time.Millisecond))
	assert.Eventually(t, func() bool {
		return rig.presence.Active(1)
	}, 2*time.Second, 10*time.Millisecond, "the snoozed firing should ring again")

	require.NoError(t, rig.actions.Dismiss(ctx, 1))
	assert.False(t, rig.presence.Active(1))
	_, ok = rig.notifier.Pending(1)
	assert.False(t, ok)

	// A dismissed one-shot is gone for good.
	_, err = rig.store.GetAlarm(ctx, 1)
	assert.Equal(t, gorm.ErrRecordNotFound, err)
	assert.Equal(t, action.StateIdle, rig.actions.State(ctx, 1))

	// The dismiss routed a success event to the UI.
	sawTap := false
	for !sawTap {
		select {
		case ev := <-pushEvents:
			if ev.Type == events.TypeTap && ev.AlarmID == 1 {
				sawTap = true
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no success event after dismiss")
		}
	}
}

// TestRecoveryAfterRestart simulates a process restart: definitions survive in
// the database, the armed set does not, and recovery re-arms the future ones.
func TestRecoveryAfterRestart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rig := setupRig(t, ctx)

	future := &model.Alarm{ID: 10, Kind: model.KindAlarm, TriggerAtMs: time.Now().Add(time.Hour).UnixMilli()}
	stale := &model.Alarm{ID: 11, Kind: model.KindReminder, TriggerAtMs: time.Now().Add(time.Minute).UnixMilli()}
	recurring := &model.Alarm{ID: 12, Kind: model.KindAlarm, Hour: 6, Minute: 45, IsAM: true, RepeatDaily: true}
	require.NoError(t, rig.store.SaveAlarm(ctx, future))
	require.NoError(t, rig.store.SaveAlarm(ctx, stale))
	require.NoError(t, rig.store.SaveAlarm(ctx, recurring))

	// Make the reminder's instant stale, as if it fired while the process
	// was down.
	stale.TriggerAtMs = time.Now().Add(-time.Minute).UnixMilli()
	require.NoError(t, rig.store.SaveAlarm(ctx, stale))

	n, err := rig.scheduler.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, armed := rig.wakeup.ArmedAt(10)
	assert.True(t, armed)
	_, armed = rig.wakeup.ArmedAt(11)
	assert.False(t, armed, "a stale one-shot must not be re-armed")
	at, armed := rig.wakeup.ArmedAt(12)
	require.True(t, armed)
	assert.Equal(t, 6, at.Hour())
	assert.Equal(t, 45, at.Minute())
}

// TestFiringCoalescesWhileRinging fires the same identity twice in quick
// succession and checks a single session absorbs both.
func TestFiringCoalescesWhileRinging(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rig := setupRig(t, ctx)

	alarm := &model.Alarm{
		ID:          20,
		Kind:        model.KindAlarm,
		TriggerAtMs: time.Now().Add(40 * time.Millisecond).UnixMilli(),
	}
	_, err := rig.scheduler.Arm(ctx, alarm)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return rig.presence.Active(20)
	}, 2*time.Second, 10*time.Millisecond)
	first, ok := rig.presence.Current()
	require.True(t, ok)

	// A second firing for the same identity while it rings.
	rig.wakeup.Arm(20, time.Now().Add(20*time.Millisecond))
	time.Sleep(200 * time.Millisecond)

	second, ok := rig.presence.Current()
	require.True(t, ok)
	assert.Equal(t, first.Handle, second.Handle, "the original session must survive")

	require.NoError(t, rig.actions.StopRinging(ctx, nil))
	_, ok = rig.presence.Current()
	assert.False(t, ok)
}
