package service

import (
	"fmt"
	"sort"
	"time"

	"chimed/internal/domain"
	"chimed/internal/storage"
)

// AlarmService is the edit path for alarms. It normalizes the repeat set
// against the daily flag and validates field ranges before anything reaches
// the store.
type AlarmService struct {
	store *storage.Storage
}

func NewAlarmService(store *storage.Storage) *AlarmService {
	return &AlarmService{store: store}
}

// Create persists a new alarm in the upcoming state with a full snooze
// budget.
func (s *AlarmService) Create(a *domain.ScheduledAlarm) error {
	normalize(a)
	if err := validate(a); err != nil {
		return err
	}
	a.State = domain.AlarmUpcoming
	a.Snooze.Remaining = a.Snooze.Limit
	return s.store.SaveAlarm(a)
}

// Update rewrites an alarm's schedule and settings.
func (s *AlarmService) Update(a *domain.ScheduledAlarm) error {
	normalize(a)
	if err := validate(a); err != nil {
		return err
	}
	return s.store.UpdateAlarm(a)
}

// SetEnabled toggles an alarm. Disabling (or re-enabling) also returns it to
// the upcoming state with a fresh snooze budget: a ring cycle cannot survive
// a toggle.
func (s *AlarmService) SetEnabled(id int64, enabled bool) error {
	a, err := s.store.GetAlarmByID(id)
	if err != nil {
		return err
	}
	a.Enabled = enabled
	a.State = domain.AlarmUpcoming
	a.Snooze.Remaining = a.Snooze.Limit
	return s.store.UpdateAlarm(a)
}

// SetRepeatDays replaces the repeat set. Clearing any day while the alarm is
// daily first drops the daily flag; selecting all seven implies it.
func (s *AlarmService) SetRepeatDays(id int64, days []time.Weekday) error {
	a, err := s.store.GetAlarmByID(id)
	if err != nil {
		return err
	}
	a.RepeatDays = days
	a.IsDaily = false
	normalize(a)
	return s.store.UpdateAlarm(a)
}

// Snooze parks a ringing alarm and spends one unit of its snooze budget. The
// daemon observes the write: it silences hardware and registers the snooze
// wake-up on its next sweep.
func (s *AlarmService) Snooze(id int64) error {
	a, err := s.store.GetAlarmByID(id)
	if err != nil {
		return err
	}
	if a.State != domain.AlarmRinging {
		return fmt.Errorf("alarm %d is not ringing: %w", id, domain.ErrConstraint)
	}
	if !a.Snooze.CanSnooze() {
		return fmt.Errorf("alarm %d snooze budget exhausted: %w", id, domain.ErrConstraint)
	}
	a.Snooze.Remaining--
	a.State = domain.AlarmSnoozed
	return s.store.UpdateAlarm(a)
}

// Stop dismisses a ringing, snoozed or missed alarm back to upcoming and
// restores the snooze budget. One-shot alarms are disabled: they have fired.
// With disable set the alarm is switched off regardless of repeat set.
func (s *AlarmService) Stop(id int64, disable bool) error {
	a, err := s.store.GetAlarmByID(id)
	if err != nil {
		return err
	}
	a.State = domain.AlarmUpcoming
	a.Snooze.Remaining = a.Snooze.Limit
	if disable || a.IsOneShot() {
		a.Enabled = false
	}
	return s.store.UpdateAlarm(a)
}

func (s *AlarmService) Delete(id int64) error {
	return s.store.DeleteAlarm(id)
}

func (s *AlarmService) List() ([]*domain.ScheduledAlarm, error) {
	return s.store.ListAlarms()
}

// normalize reconciles the repeat set with the daily flag: daily means the
// full week, and a full week means daily. Days are deduplicated and kept in
// weekday order.
func normalize(a *domain.ScheduledAlarm) {
	if a.IsDaily {
		a.RepeatDays = append([]time.Weekday(nil), domain.AllWeekdays...)
		return
	}

	seen := make(map[time.Weekday]bool, len(a.RepeatDays))
	var days []time.Weekday
	for _, d := range a.RepeatDays {
		if d < time.Sunday || d > time.Saturday || seen[d] {
			continue
		}
		seen[d] = true
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	a.RepeatDays = days

	if len(days) == 7 {
		a.IsDaily = true
	}
}

func validate(a *domain.ScheduledAlarm) error {
	if a.Hour < 0 || a.Hour > 23 {
		return fmt.Errorf("hour %d out of range: %w", a.Hour, domain.ErrConstraint)
	}
	if a.Minute < 0 || a.Minute > 59 {
		return fmt.Errorf("minute %d out of range: %w", a.Minute, domain.ErrConstraint)
	}
	if a.Volume < 0 || a.Volume > 100 {
		return fmt.Errorf("volume %d out of range: %w", a.Volume, domain.ErrConstraint)
	}
	if a.Snooze.Limit < 0 || a.Snooze.Remaining < 0 {
		return fmt.Errorf("negative snooze budget: %w", domain.ErrConstraint)
	}
	if a.Snooze.Enabled && a.Snooze.IntervalMinutes <= 0 {
		return fmt.Errorf("snooze interval must be positive: %w", domain.ErrConstraint)
	}
	return nil
}
