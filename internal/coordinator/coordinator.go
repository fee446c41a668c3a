// Package coordinator owns the foreground ringing state for alarms. It
// watches the persisted alarm collection and converts it into hardware and
// notification side effects: at most one alarm rings at a time, later
// arrivals win, superseded alarms are surfaced as missed.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"chimed/internal/domain"
	"chimed/internal/hardware"
	"chimed/internal/notify"
	"chimed/internal/scheduler"
	"chimed/internal/storage"
	"chimed/internal/wakeup"
)

// Coordinator reacts to alarm collection snapshots. Processing is level
// triggered: every snapshot is handled from scratch and re-applying an
// unchanged snapshot has no observable effect (already-playing audio is not
// restarted).
type Coordinator struct {
	store       *storage.Storage
	sched       *scheduler.Scheduler
	hw          hardware.Controller
	presenter   notify.Presenter
	gate        scheduler.PermissionGate
	ringTimeout time.Duration

	// hwMu serializes every hardware start/stop so overlapping calls (rapid
	// pause/resume, teardown racing a new primary) cannot leave playback
	// running without a tracked owner.
	hwMu    sync.Mutex
	active  bool
	paused  bool
	primary domain.ScheduledAlarm

	cancel context.CancelFunc
}

func New(store *storage.Storage, sched *scheduler.Scheduler, hw hardware.Controller,
	presenter notify.Presenter, gate scheduler.PermissionGate, ringTimeout time.Duration) *Coordinator {
	return &Coordinator{
		store:       store,
		sched:       sched,
		hw:          hw,
		presenter:   presenter,
		gate:        gate,
		ringTimeout: ringTimeout,
	}
}

// Start subscribes to the alarm stream and processes snapshots strictly in
// arrival order until ctx is cancelled. A failure while processing one
// snapshot is logged and the loop continues; the next emission repairs any
// partial effect. Hardware is released on every exit path.
func (c *Coordinator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.hwMu.Lock()
	c.cancel = cancel
	c.hwMu.Unlock()

	sub := c.store.ObserveAlarms()
	defer sub.Close()
	defer c.teardown()

	log.Println("Ringing coordinator started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case snapshot, ok := <-sub.C():
			if !ok {
				return nil
			}
			c.process(snapshot)
		}
	}
}

// Stop cancels the subscription. Safe to call more than once and before
// Start.
func (c *Coordinator) Stop() {
	c.hwMu.Lock()
	cancel := c.cancel
	c.hwMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// process applies one snapshot: pick the primary ringing alarm, demote the
// rest to missed, drive hardware for the primary.
func (c *Coordinator) process(alarms []*domain.ScheduledAlarm) {
	var ringing []*domain.ScheduledAlarm
	for _, a := range alarms {
		if a.State == domain.AlarmRinging {
			ringing = append(ringing, a)
		}
	}

	if len(ringing) == 0 {
		c.teardown()
		return
	}

	// Highest id wins: the most recently created alarm is treated as the most
	// recently fired one. Total and deterministic.
	primary := ringing[0]
	for _, a := range ringing[1:] {
		if a.ID > primary.ID {
			primary = a
		}
	}

	for _, a := range ringing {
		if a.ID == primary.ID {
			continue
		}
		c.demote(a)
	}

	c.ring(primary)
}

// demote writes a superseded ringing alarm to missed. On a store failure the
// alarm stays visible as ringing and the next emission retries.
func (c *Coordinator) demote(a *domain.ScheduledAlarm) {
	a.State = domain.AlarmMissed
	if err := c.store.UpdateAlarm(a); err != nil {
		log.Printf("Error demoting alarm %d to missed: %v", a.ID, err)
		return
	}
	c.sched.CancelAll(a.ID)
	if err := c.presenter.PostMissed(alarmSnapshot(a)); err != nil {
		log.Printf("Error posting missed notification for alarm %d: %v", a.ID, err)
	}
}

func (c *Coordinator) ring(primary *domain.ScheduledAlarm) {
	c.hwMu.Lock()
	defer c.hwMu.Unlock()

	if c.active && c.primary.ID == primary.ID {
		return
	}
	if c.active {
		c.hw.StopSound()
		c.hw.StopVibration()
		if err := c.presenter.Cancel(c.primary.ID); err != nil {
			log.Printf("Error cancelling notification for alarm %d: %v", c.primary.ID, err)
		}
	}

	if err := c.hw.PlayAlarmSound(primary.Sound, primary.Volume); err != nil {
		log.Printf("Error playing alarm sound for %d: %v", primary.ID, err)
	}
	if primary.Vibrate {
		c.hw.StartVibration()
	}
	if err := c.presenter.PostRinging(alarmSnapshot(primary)); err != nil {
		log.Printf("Error posting ringing notification for alarm %d: %v", primary.ID, err)
	}

	c.active = true
	c.paused = false
	c.primary = *primary
}

// teardown releases hardware and the foreground notification. Idempotent:
// only the transition from active performs work.
func (c *Coordinator) teardown() {
	c.hwMu.Lock()
	defer c.hwMu.Unlock()

	if !c.active {
		return
	}
	c.hw.StopSound()
	c.hw.StopVibration()
	if err := c.presenter.Cancel(c.primary.ID); err != nil {
		log.Printf("Error cancelling notification for alarm %d: %v", c.primary.ID, err)
	}
	c.active = false
	c.paused = false
	c.primary = domain.ScheduledAlarm{}
}

// HandleWakeup dispatches a fired wake-up registration to the matching
// handler. Invoked from the facility goroutine.
func (c *Coordinator) HandleWakeup(e wakeup.Event) {
	var err error
	switch e.Action {
	case wakeup.ActionTrigger, wakeup.ActionSnooze:
		err = c.OnTrigger(e.ID)
	case wakeup.ActionTimeout:
		err = c.OnTimeout(e.ID)
	default:
		err = fmt.Errorf("unknown action %q", e.Action)
	}
	if err != nil {
		log.Printf("Error handling %s wake-up for alarm %d: %v", e.Action, e.ID, err)
	}
}

// OnTrigger moves an upcoming or snoozed alarm into ringing. This is the only
// path that creates a new ringing alarm. Requires the notification permission;
// without it the trigger is skipped and the alarm keeps its prior state.
func (c *Coordinator) OnTrigger(id int64) error {
	if !c.gate.NotificationsGranted() {
		log.Printf("Skipping trigger for alarm %d: notification permission not granted", id)
		return nil
	}

	a, err := c.store.GetAlarmByID(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Deleted between registration and firing.
			c.sched.CancelAll(id)
			return nil
		}
		return fmt.Errorf("load alarm %d: %w", id, err)
	}
	if !a.Enabled {
		return nil
	}

	switch a.State {
	case domain.AlarmUpcoming, domain.AlarmSnoozed:
		a.State = domain.AlarmRinging
		if err := c.store.UpdateAlarm(a); err != nil {
			return fmt.Errorf("mark alarm %d ringing: %w", id, err)
		}
		if err := c.sched.ScheduleTimeout(id, c.ringTimeout); err != nil {
			log.Printf("Error scheduling ring timeout for alarm %d: %v", id, err)
		}
	default:
		// Already ringing or missed: nothing to do.
	}
	return nil
}

// OnSnoozeRequested decrements the snooze budget and parks the alarm until
// the snooze wake-up fires. A no-op once the budget is exhausted: no state
// change, no store write.
func (c *Coordinator) OnSnoozeRequested(id int64) error {
	a, err := c.store.GetAlarmByID(id)
	if err != nil {
		return fmt.Errorf("load alarm %d: %w", id, err)
	}
	if a.State != domain.AlarmRinging || !a.Snooze.CanSnooze() {
		return nil
	}

	a.Snooze.Remaining--
	a.State = domain.AlarmSnoozed
	if err := c.store.UpdateAlarm(a); err != nil {
		return fmt.Errorf("mark alarm %d snoozed: %w", id, err)
	}

	c.sched.CancelAll(id)
	if err := c.sched.ScheduleSnooze(id, a.Snooze.IntervalMinutes); err != nil {
		log.Printf("Error scheduling snooze for alarm %d: %v", id, err)
	}
	if err := c.presenter.PostSnoozed(alarmSnapshot(a)); err != nil {
		log.Printf("Error posting snoozed notification for alarm %d: %v", id, err)
	}
	return nil
}

// OnTimeout marks an alarm that rang unanswered for the full timeout as
// missed. Hardware release follows from the resulting emission.
func (c *Coordinator) OnTimeout(id int64) error {
	a, err := c.store.GetAlarmByID(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load alarm %d: %w", id, err)
	}
	if a.State != domain.AlarmRinging {
		return nil
	}

	a.State = domain.AlarmMissed
	if err := c.store.UpdateAlarm(a); err != nil {
		return fmt.Errorf("mark alarm %d missed: %w", id, err)
	}
	if err := c.presenter.PostMissed(alarmSnapshot(a)); err != nil {
		log.Printf("Error posting missed notification for alarm %d: %v", id, err)
	}
	return nil
}

// OnStop dismisses a ringing, snoozed or missed alarm back to upcoming and
// restores the snooze budget. One-shot alarms are disabled: they have fired.
// With disable set the alarm is switched off regardless of repeat set.
func (c *Coordinator) OnStop(id int64, disable bool) error {
	a, err := c.store.GetAlarmByID(id)
	if err != nil {
		return fmt.Errorf("load alarm %d: %w", id, err)
	}

	a.State = domain.AlarmUpcoming
	a.Snooze.Remaining = a.Snooze.Limit
	if disable || a.IsOneShot() {
		a.Enabled = false
	}
	if err := c.store.UpdateAlarm(a); err != nil {
		return fmt.Errorf("dismiss alarm %d: %w", id, err)
	}

	c.sched.CancelAll(id)
	if a.Enabled {
		if err := c.sched.ScheduleAlarm(a); err != nil {
			log.Printf("Error rescheduling alarm %d: %v", id, err)
		}
	}
	if err := c.presenter.Cancel(id); err != nil {
		log.Printf("Error cancelling notification for alarm %d: %v", id, err)
	}
	return nil
}

// OnPause silences hardware while the host UI transiently covers the ringing
// surface. No state change.
func (c *Coordinator) OnPause() {
	c.hwMu.Lock()
	defer c.hwMu.Unlock()
	if !c.active || c.paused {
		return
	}
	c.hw.StopSound()
	c.hw.StopVibration()
	c.paused = true
}

// OnResume restarts hardware for the current primary after OnPause.
func (c *Coordinator) OnResume() {
	c.hwMu.Lock()
	defer c.hwMu.Unlock()
	if !c.active || !c.paused {
		return
	}
	if err := c.hw.PlayAlarmSound(c.primary.Sound, c.primary.Volume); err != nil {
		log.Printf("Error resuming alarm sound for %d: %v", c.primary.ID, err)
	}
	if c.primary.Vibrate {
		c.hw.StartVibration()
	}
	c.paused = false
}

func alarmSnapshot(a *domain.ScheduledAlarm) notify.Snapshot {
	return notify.Snapshot{
		ID:    a.ID,
		Kind:  notify.KindAlarm,
		Label: a.Label,
		Body:  a.TimeOfDay(),
		At:    time.Now(),
	}
}
