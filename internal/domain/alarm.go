package domain

import (
	"fmt"
	"time"
)

type AlarmState string

const (
	AlarmUpcoming AlarmState = "upcoming"
	AlarmRinging  AlarmState = "ringing"
	AlarmSnoozed  AlarmState = "snoozed"
	AlarmMissed   AlarmState = "missed"
)

// SnoozeConfig is the per-alarm snooze budget. Remaining counts down within a
// single ring cycle and is reset to Limit when the alarm re-enters upcoming.
type SnoozeConfig struct {
	Enabled         bool
	Limit           int
	Remaining       int
	IntervalMinutes int
}

// CanSnooze reports whether another snooze is allowed in this ring cycle.
func (s SnoozeConfig) CanSnooze() bool {
	return s.Enabled && s.Remaining > 0
}

// ScheduledAlarm is a recurring or one-shot reminder. ID 0 means the alarm has
// not been persisted yet.
type ScheduledAlarm struct {
	ID         int64
	Label      string
	Hour       int
	Minute     int
	IsDaily    bool
	RepeatDays []time.Weekday
	Enabled    bool
	Sound      string
	Vibrate    bool
	Volume     int
	Snooze     SnoozeConfig
	State      AlarmState
	CreatedAt  time.Time
}

// IsOneShot reports whether the alarm fires once and never repeats.
func (a *ScheduledAlarm) IsOneShot() bool {
	return len(a.RepeatDays) == 0
}

// HasDay reports whether d is in the repeat set.
func (a *ScheduledAlarm) HasDay(d time.Weekday) bool {
	for _, rd := range a.RepeatDays {
		if rd == d {
			return true
		}
	}
	return false
}

// TimeOfDay formats the alarm time as HH:MM.
func (a *ScheduledAlarm) TimeOfDay() string {
	return fmt.Sprintf("%02d:%02d", a.Hour, a.Minute)
}

// AllWeekdays is the full repeat set implied by the daily flag.
var AllWeekdays = []time.Weekday{
	time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
	time.Thursday, time.Friday, time.Saturday,
}
