// Package trigger computes fire instants for alarms and snoozes. All functions
// are pure: no clock access, no I/O, total over valid inputs.
package trigger

import "time"

// NextAlarmTrigger returns the next instant an alarm with the given time of
// day and repeat set fires, strictly after now, in now's location.
//
// With an empty repeat set the alarm is one-shot: today at the alarm time if
// that is still in the future, otherwise the same time tomorrow.
//
// With a non-empty set, each repeat day d is (d - today + 7) mod 7 days away;
// a zero offset only counts when the alarm time has not yet passed today,
// otherwise that day skips to next week. The smallest offset wins.
func NextAlarmTrigger(hour, minute int, days []time.Weekday, now time.Time) time.Time {
	candidate := atTimeOfDay(now, hour, minute)

	if len(days) == 0 {
		if candidate.After(now) {
			return candidate
		}
		return candidate.AddDate(0, 0, 1)
	}

	today := now.Weekday()
	best := 8 // larger than any reachable offset
	for _, d := range days {
		diff := (int(d) - int(today) + 7) % 7
		if diff == 0 && !candidate.After(now) {
			diff = 7
		}
		if diff < best {
			best = diff
		}
	}
	return atTimeOfDay(now.AddDate(0, 0, best), hour, minute)
}

// NextSnoozeTrigger returns now plus the snooze interval, with seconds and
// sub-second precision truncated to zero.
func NextSnoozeTrigger(now time.Time, intervalMinutes int) time.Time {
	t := now.Add(time.Duration(intervalMinutes) * time.Minute)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
}

// Remaining is the decomposition of the span until a target instant.
type Remaining struct {
	Days    int
	Hours   int
	Minutes int
	Due     bool
}

// RemainingUntil decomposes target minus now into whole days, hours and
// minutes. If target is not after now, Due is set and the fields are zero.
func RemainingUntil(now, target time.Time) Remaining {
	if !target.After(now) {
		return Remaining{Due: true}
	}
	d := target.Sub(now)
	return Remaining{
		Days:    int(d / (24 * time.Hour)),
		Hours:   int(d % (24 * time.Hour) / time.Hour),
		Minutes: int(d % time.Hour / time.Minute),
	}
}

func atTimeOfDay(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}
