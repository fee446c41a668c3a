// Package scheduler translates domain scheduling requests into deferred
// wake-up registrations and runs the periodic re-sync sweep.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"chimed/internal/domain"
	"chimed/internal/trigger"
	"chimed/internal/wakeup"
)

// PermissionGate answers whether the host allows chimed to post notifications
// and register exact wake-ups. Denials are fail-soft: the action is skipped,
// never crashed on.
type PermissionGate interface {
	NotificationsGranted() bool
	ExactSchedulingGranted() bool
}

// StaticGate is a PermissionGate with fixed answers, configured at startup.
type StaticGate struct {
	Notifications   bool
	ExactScheduling bool
}

func (g StaticGate) NotificationsGranted() bool   { return g.Notifications }
func (g StaticGate) ExactSchedulingGranted() bool { return g.ExactScheduling }

// AlarmLister is the slice of the store the sweep needs.
type AlarmLister interface {
	ListAlarms() ([]*domain.ScheduledAlarm, error)
}

// Scheduler is the facade over the wake-up facility. Each call maps to exactly
// one facility registration or cancellation keyed by (id, action).
type Scheduler struct {
	wake        *wakeup.Facility
	gate        PermissionGate
	store       AlarmLister
	cron        *cron.Cron
	loc         *time.Location
	ringTimeout time.Duration
}

func New(wake *wakeup.Facility, gate PermissionGate, store AlarmLister, loc *time.Location, ringTimeout time.Duration) *Scheduler {
	return &Scheduler{
		wake:        wake,
		gate:        gate,
		store:       store,
		cron:        cron.New(cron.WithLocation(loc)),
		loc:         loc,
		ringTimeout: ringTimeout,
	}
}

// ScheduleTrigger registers the alarm's next fire instant.
func (s *Scheduler) ScheduleTrigger(id int64, at time.Time) error {
	if !s.gate.ExactSchedulingGranted() {
		return fmt.Errorf("schedule trigger %d: %w", id, domain.ErrSchedulingDenied)
	}
	s.wake.Schedule(wakeup.Event{ID: id, Action: wakeup.ActionTrigger, At: at})
	return nil
}

// ScheduleAlarm computes the alarm's next trigger from its time of day and
// repeat set, then registers it.
func (s *Scheduler) ScheduleAlarm(a *domain.ScheduledAlarm) error {
	at := trigger.NextAlarmTrigger(a.Hour, a.Minute, a.RepeatDays, time.Now().In(s.loc))
	return s.ScheduleTrigger(a.ID, at)
}

func (s *Scheduler) CancelTrigger(id int64) {
	s.wake.Cancel(id, wakeup.ActionTrigger)
}

// ScheduleSnooze registers a snooze wake-up intervalMinutes from now.
func (s *Scheduler) ScheduleSnooze(id int64, intervalMinutes int) error {
	if !s.gate.ExactSchedulingGranted() {
		return fmt.Errorf("schedule snooze %d: %w", id, domain.ErrSchedulingDenied)
	}
	at := trigger.NextSnoozeTrigger(time.Now().In(s.loc), intervalMinutes)
	s.wake.Schedule(wakeup.Event{ID: id, Action: wakeup.ActionSnooze, At: at})
	return nil
}

// ScheduleTimeout registers the ring-timeout wake-up for an alarm that just
// started ringing.
func (s *Scheduler) ScheduleTimeout(id int64, offset time.Duration) error {
	if !s.gate.ExactSchedulingGranted() {
		return fmt.Errorf("schedule timeout %d: %w", id, domain.ErrSchedulingDenied)
	}
	s.wake.Schedule(wakeup.Event{ID: id, Action: wakeup.ActionTimeout, At: time.Now().Add(offset)})
	return nil
}

// CancelAll cancels every action registered for the id. Unknown registrations
// are treated as already cancelled.
func (s *Scheduler) CancelAll(id int64) {
	for _, action := range wakeup.Actions {
		s.wake.Cancel(id, action)
	}
}

// Start runs the minute-cadence sweep that re-registers lost wake-ups. The
// heap is in-memory, so a daemon restart drops every registration; the sweep
// rebuilds them from persisted state: upcoming alarms get their next trigger
// (deterministic, so repeating it is idempotent), snoozed alarms get a fresh
// snooze wake-up and ringing alarms a fresh ring timeout, both only when no
// registration is pending so repeated sweeps cannot push them out. Blocks
// until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("* * * * *", s.sweep); err != nil {
		return fmt.Errorf("add sweep job: %w", err)
	}
	s.cron.Start()
	s.sweep()
	log.Printf("Scheduler started (TZ: %s)", s.loc)

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Scheduler stopped")
}

func (s *Scheduler) sweep() {
	alarms, err := s.store.ListAlarms()
	if err != nil {
		log.Printf("Error listing alarms for sweep: %v", err)
		return
	}

	for _, a := range alarms {
		if !a.Enabled {
			s.CancelAll(a.ID)
			continue
		}
		switch a.State {
		case domain.AlarmUpcoming:
			if err := s.ScheduleAlarm(a); err != nil {
				log.Printf("Error scheduling alarm %d: %v", a.ID, err)
			}
		case domain.AlarmSnoozed:
			if s.wake.Pending(a.ID, wakeup.ActionSnooze) {
				continue
			}
			if err := s.ScheduleSnooze(a.ID, a.Snooze.IntervalMinutes); err != nil {
				log.Printf("Error rescheduling snooze for alarm %d: %v", a.ID, err)
			}
		case domain.AlarmRinging:
			if s.wake.Pending(a.ID, wakeup.ActionTimeout) {
				continue
			}
			if err := s.ScheduleTimeout(a.ID, s.ringTimeout); err != nil {
				log.Printf("Error rescheduling ring timeout for alarm %d: %v", a.ID, err)
			}
		}
	}
}
