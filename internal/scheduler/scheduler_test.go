package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chimed/internal/domain"
	"chimed/internal/wakeup"
)

type staticLister struct {
	alarms []*domain.ScheduledAlarm
}

func (l *staticLister) ListAlarms() ([]*domain.ScheduledAlarm, error) {
	return l.alarms, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []wakeup.Event
}

func (r *eventRecorder) onFire(e wakeup.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) fired() []wakeup.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wakeup.Event(nil), r.events...)
}

func newTestScheduler(t *testing.T, gate PermissionGate, onFire func(wakeup.Event)) *Scheduler {
	t.Helper()
	return newTestSchedulerWithStore(t, gate, onFire, &staticLister{})
}

func newTestSchedulerWithStore(t *testing.T, gate PermissionGate, onFire func(wakeup.Event), store AlarmLister) *Scheduler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if onFire == nil {
		onFire = func(wakeup.Event) {}
	}
	return New(wakeup.New(ctx, onFire), gate, store, time.UTC, 50*time.Millisecond)
}

func TestScheduleTrigger_FiresThroughFacility(t *testing.T) {
	var mu sync.Mutex
	var fired []wakeup.Event
	s := newTestScheduler(t, StaticGate{Notifications: true, ExactScheduling: true}, func(e wakeup.Event) {
		mu.Lock()
		fired = append(fired, e)
		mu.Unlock()
	})

	require.NoError(t, s.ScheduleTrigger(1, time.Now().Add(50*time.Millisecond)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, wakeup.ActionTrigger, fired[0].Action)
	assert.Equal(t, int64(1), fired[0].ID)
}

func TestScheduleTrigger_DeniedWithoutPermission(t *testing.T) {
	s := newTestScheduler(t, StaticGate{ExactScheduling: false}, nil)

	err := s.ScheduleTrigger(1, time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrSchedulingDenied)

	err = s.ScheduleSnooze(1, 10)
	assert.ErrorIs(t, err, domain.ErrSchedulingDenied)

	err = s.ScheduleTimeout(1, time.Minute)
	assert.ErrorIs(t, err, domain.ErrSchedulingDenied)
}

func TestCancelAll_Idempotent(t *testing.T) {
	s := newTestScheduler(t, StaticGate{ExactScheduling: true}, nil)

	// Nothing registered: cancels succeed silently, twice.
	s.CancelAll(42)
	s.CancelAll(42)
}

func TestScheduleAlarm_UsesTriggerMath(t *testing.T) {
	var mu sync.Mutex
	var fired []wakeup.Event
	s := newTestScheduler(t, StaticGate{ExactScheduling: true}, func(e wakeup.Event) {
		mu.Lock()
		fired = append(fired, e)
		mu.Unlock()
	})

	// An alarm set for one minute ago today must not fire now: next trigger is
	// tomorrow, so nothing arrives within the test window.
	now := time.Now()
	past := now.Add(-time.Minute)
	a := &domain.ScheduledAlarm{ID: 9, Hour: past.Hour(), Minute: past.Minute(), Enabled: true}
	require.NoError(t, s.ScheduleAlarm(a))

	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, fired)
}

func TestSweep_ReregistersSnoozedAlarm(t *testing.T) {
	// A snoozed alarm persisted across a restart has lost its in-memory snooze
	// registration; the sweep must rebuild it or the alarm never rings again.
	rec := &eventRecorder{}
	store := &staticLister{alarms: []*domain.ScheduledAlarm{{
		ID:      7,
		Enabled: true,
		State:   domain.AlarmSnoozed,
		Snooze:  domain.SnoozeConfig{Enabled: true, Limit: 3, Remaining: 2, IntervalMinutes: 0},
	}}}
	s := newTestSchedulerWithStore(t, StaticGate{ExactScheduling: true}, rec.onFire, store)

	s.sweep()

	require.Eventually(t, func() bool {
		return len(rec.fired()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, wakeup.ActionSnooze, rec.fired()[0].Action)
	assert.Equal(t, int64(7), rec.fired()[0].ID)
}

func TestSweep_ReregistersRingTimeout(t *testing.T) {
	rec := &eventRecorder{}
	store := &staticLister{alarms: []*domain.ScheduledAlarm{{
		ID:      8,
		Enabled: true,
		State:   domain.AlarmRinging,
	}}}
	s := newTestSchedulerWithStore(t, StaticGate{ExactScheduling: true}, rec.onFire, store)

	s.sweep()

	require.Eventually(t, func() bool {
		return len(rec.fired()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, wakeup.ActionTimeout, rec.fired()[0].Action)
}

func TestSweep_PendingSnoozeNotPushedOut(t *testing.T) {
	// Repeated sweeps must leave an existing snooze registration alone: a
	// fresh one per sweep would move the fire instant forever forward.
	rec := &eventRecorder{}
	store := &staticLister{alarms: []*domain.ScheduledAlarm{{
		ID:      9,
		Enabled: true,
		State:   domain.AlarmSnoozed,
		Snooze:  domain.SnoozeConfig{Enabled: true, Limit: 3, Remaining: 1, IntervalMinutes: 60},
	}}}
	s := newTestSchedulerWithStore(t, StaticGate{ExactScheduling: true}, rec.onFire, store)

	s.sweep()
	require.Eventually(t, func() bool {
		return s.wake.Pending(9, wakeup.ActionSnooze)
	}, time.Second, 10*time.Millisecond)

	s.sweep()
	s.sweep()
	assert.True(t, s.wake.Pending(9, wakeup.ActionSnooze))
	assert.Empty(t, rec.fired())
}
