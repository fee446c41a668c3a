package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chimed/internal/domain"
	"chimed/internal/notify"
	"chimed/internal/scheduler"
	"chimed/internal/storage"
	"chimed/internal/wakeup"
)

type fakeHardware struct {
	mu         sync.Mutex
	playing    bool
	vibrating  bool
	plays      int
	stops      int
	lastSound  string
	lastVolume int
}

func (h *fakeHardware) PlayAlarmSound(sound string, volume int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playing = true
	h.plays++
	h.lastSound = sound
	h.lastVolume = volume
	return nil
}

func (h *fakeHardware) StopSound() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.playing {
		h.stops++
	}
	h.playing = false
}

func (h *fakeHardware) StartVibration() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vibrating = true
}

func (h *fakeHardware) StopVibration() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vibrating = false
}

func (h *fakeHardware) snapshot() fakeHardware {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fakeHardware{playing: h.playing, vibrating: h.vibrating, plays: h.plays,
		stops: h.stops, lastSound: h.lastSound, lastVolume: h.lastVolume}
}

type fakePresenter struct {
	mu      sync.Mutex
	ringing []int64
	missed  []int64
	snoozed []int64
}

func (p *fakePresenter) PostRinging(s notify.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ringing = append(p.ringing, s.ID)
	return nil
}

func (p *fakePresenter) PostMissed(s notify.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.missed = append(p.missed, s.ID)
	return nil
}

func (p *fakePresenter) PostSnoozed(s notify.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snoozed = append(p.snoozed, s.ID)
	return nil
}

func (p *fakePresenter) Cancel(id int64) error { return nil }

func (p *fakePresenter) missedCount(id int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.missed {
		if m == id {
			n++
		}
	}
	return n
}

type fixture struct {
	store *storage.Storage
	coord *Coordinator
	sched *scheduler.Scheduler
	hw    *fakeHardware
	pres  *fakePresenter
	ctx   context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hw := &fakeHardware{}
	pres := &fakePresenter{}
	gate := scheduler.StaticGate{Notifications: true, ExactScheduling: true}

	var coord *Coordinator
	wake := wakeup.New(ctx, func(e wakeup.Event) { coord.HandleWakeup(e) })
	sched := scheduler.New(wake, gate, store, time.UTC, time.Minute)
	coord = New(store, sched, hw, pres, gate, time.Minute)

	go coord.Start(ctx)
	t.Cleanup(coord.Stop)

	return &fixture{store: store, coord: coord, sched: sched, hw: hw, pres: pres, ctx: ctx}
}

func (f *fixture) addAlarm(t *testing.T, state domain.AlarmState, snooze domain.SnoozeConfig) *domain.ScheduledAlarm {
	t.Helper()
	a := &domain.ScheduledAlarm{
		Label:   "test",
		Hour:    7,
		Minute:  0,
		Enabled: true,
		Sound:   "classic.wav",
		Volume:  80,
		Snooze:  snooze,
		State:   state,
	}
	require.NoError(t, f.store.SaveAlarm(a))
	return a
}

func defaultSnooze() domain.SnoozeConfig {
	return domain.SnoozeConfig{Enabled: true, Limit: 3, Remaining: 3, IntervalMinutes: 10}
}

func TestCoordinator_SingleRingingDrivesHardware(t *testing.T) {
	f := newFixture(t)

	f.addAlarm(t, domain.AlarmRinging, defaultSnooze())

	require.Eventually(t, func() bool {
		return f.hw.snapshot().playing
	}, time.Second, 10*time.Millisecond)

	hw := f.hw.snapshot()
	assert.Equal(t, "classic.wav", hw.lastSound)
	assert.Equal(t, 80, hw.lastVolume)
}

func TestCoordinator_HighestIDWinsOlderDemotedOnce(t *testing.T) {
	f := newFixture(t)

	older := f.addAlarm(t, domain.AlarmRinging, defaultSnooze())
	newer := f.addAlarm(t, domain.AlarmRinging, defaultSnooze())
	require.Greater(t, newer.ID, older.ID)

	require.Eventually(t, func() bool {
		got, err := f.store.GetAlarmByID(older.ID)
		return err == nil && got.State == domain.AlarmMissed
	}, time.Second, 10*time.Millisecond)

	got, err := f.store.GetAlarmByID(newer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AlarmRinging, got.State)

	// Give trailing emissions time to be reprocessed, then check the missed
	// notification went out exactly once.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, f.pres.missedCount(older.ID))
}

func TestCoordinator_ReprocessingDoesNotRestartAudio(t *testing.T) {
	f := newFixture(t)

	f.addAlarm(t, domain.AlarmRinging, defaultSnooze())

	require.Eventually(t, func() bool {
		return f.hw.snapshot().plays == 1
	}, time.Second, 10*time.Millisecond)

	// Unrelated mutation forces a fresh emission with the same ringing set.
	f.addAlarm(t, domain.AlarmUpcoming, defaultSnooze())

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, f.hw.snapshot().plays)
	assert.True(t, f.hw.snapshot().playing)
}

func TestCoordinator_TeardownWhenNothingRings(t *testing.T) {
	f := newFixture(t)

	a := f.addAlarm(t, domain.AlarmRinging, defaultSnooze())
	require.Eventually(t, func() bool {
		return f.hw.snapshot().playing
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, f.coord.OnStop(a.ID, false))

	require.Eventually(t, func() bool {
		return !f.hw.snapshot().playing
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.hw.snapshot().stops)
}

func TestCoordinator_OnTrigger(t *testing.T) {
	f := newFixture(t)

	a := f.addAlarm(t, domain.AlarmUpcoming, defaultSnooze())
	require.NoError(t, f.coord.OnTrigger(a.ID))

	got, err := f.store.GetAlarmByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AlarmRinging, got.State)
}

func TestCoordinator_OnTriggerDisabledAlarmIgnored(t *testing.T) {
	f := newFixture(t)

	a := f.addAlarm(t, domain.AlarmUpcoming, defaultSnooze())
	a.Enabled = false
	require.NoError(t, f.store.UpdateAlarm(a))

	require.NoError(t, f.coord.OnTrigger(a.ID))

	got, err := f.store.GetAlarmByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AlarmUpcoming, got.State)
}

func TestCoordinator_OnTriggerDeletedAlarmIsNoop(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.coord.OnTrigger(9999))
}

func TestCoordinator_SnoozeDecrementsBudget(t *testing.T) {
	f := newFixture(t)

	a := f.addAlarm(t, domain.AlarmRinging, defaultSnooze())
	require.NoError(t, f.coord.OnSnoozeRequested(a.ID))

	got, err := f.store.GetAlarmByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AlarmSnoozed, got.State)
	assert.Equal(t, 2, got.Snooze.Remaining)
}

func TestCoordinator_SnoozeExhaustedIsNoop(t *testing.T) {
	f := newFixture(t)

	snooze := defaultSnooze()
	snooze.Remaining = 0
	a := f.addAlarm(t, domain.AlarmRinging, snooze)

	require.NoError(t, f.coord.OnSnoozeRequested(a.ID))

	got, err := f.store.GetAlarmByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AlarmRinging, got.State)
	assert.Equal(t, 0, got.Snooze.Remaining)
}

func TestCoordinator_OnTimeoutMarksMissed(t *testing.T) {
	f := newFixture(t)

	a := f.addAlarm(t, domain.AlarmRinging, defaultSnooze())
	require.NoError(t, f.coord.OnTimeout(a.ID))

	got, err := f.store.GetAlarmByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AlarmMissed, got.State)
}

func TestCoordinator_OnStopRestoresSnoozeBudget(t *testing.T) {
	f := newFixture(t)

	snooze := defaultSnooze()
	snooze.Remaining = 1
	a := f.addAlarm(t, domain.AlarmRinging, snooze)
	a.RepeatDays = []time.Weekday{time.Monday}
	require.NoError(t, f.store.UpdateAlarm(a))

	require.NoError(t, f.coord.OnStop(a.ID, false))

	got, err := f.store.GetAlarmByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AlarmUpcoming, got.State)
	assert.Equal(t, got.Snooze.Limit, got.Snooze.Remaining)
	assert.True(t, got.Enabled)
}

func TestCoordinator_OnStopDisablesOneShot(t *testing.T) {
	f := newFixture(t)

	a := f.addAlarm(t, domain.AlarmRinging, defaultSnooze()) // empty repeat set
	require.NoError(t, f.coord.OnStop(a.ID, false))

	got, err := f.store.GetAlarmByID(a.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, domain.AlarmUpcoming, got.State)
}

func TestCoordinator_PauseResume(t *testing.T) {
	f := newFixture(t)

	f.addAlarm(t, domain.AlarmRinging, defaultSnooze())
	require.Eventually(t, func() bool {
		return f.hw.snapshot().playing
	}, time.Second, 10*time.Millisecond)

	f.coord.OnPause()
	assert.False(t, f.hw.snapshot().playing)

	f.coord.OnResume()
	assert.True(t, f.hw.snapshot().playing)

	// Pausing twice releases hardware once.
	f.coord.OnPause()
	f.coord.OnPause()
	assert.Equal(t, 2, f.hw.snapshot().stops)
}

func TestCoordinator_SnoozedAlarmRingsAfterRestart(t *testing.T) {
	f := newFixture(t)

	// The wakeup heap is rebuilt empty on every daemon start; an alarm
	// persisted as snoozed relies on the scheduler sweep to re-register its
	// snooze wake-up. Interval 0 makes the rebuilt wake-up immediately due.
	snooze := defaultSnooze()
	snooze.Remaining = 2
	snooze.IntervalMinutes = 0
	a := f.addAlarm(t, domain.AlarmSnoozed, snooze)

	go f.sched.Start(f.ctx)

	require.Eventually(t, func() bool {
		got, err := f.store.GetAlarmByID(a.ID)
		return err == nil && got.State == domain.AlarmRinging
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return f.hw.snapshot().playing
	}, time.Second, 10*time.Millisecond)
}

func TestCoordinator_StopIdempotent(t *testing.T) {
	f := newFixture(t)

	f.addAlarm(t, domain.AlarmRinging, defaultSnooze())
	require.Eventually(t, func() bool {
		return f.hw.snapshot().playing
	}, time.Second, 10*time.Millisecond)

	f.coord.Stop()
	f.coord.Stop()

	require.Eventually(t, func() bool {
		return !f.hw.snapshot().playing
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.hw.snapshot().stops)
}
