// Package export renders the alarm schedule as an iCalendar document so other
// calendar tools can display upcoming reminders.
package export

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"chimed/internal/domain"
	"chimed/internal/trigger"
)

var byDay = map[time.Weekday]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

// Calendar builds a VCALENDAR with one VEVENT per enabled alarm. One-shot
// alarms become plain events at their next trigger; repeating alarms carry an
// RRULE.
func Calendar(alarms []*domain.ScheduledAlarm, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//chimed//alarms//EN")

	for _, a := range alarms {
		if !a.Enabled {
			continue
		}

		vevent := ical.NewEvent()
		vevent.Props.SetText(ical.PropUID, fmt.Sprintf("alarm-%d@chimed", a.ID))
		summary := a.Label
		if summary == "" {
			summary = fmt.Sprintf("Alarm %s", a.TimeOfDay())
		}
		vevent.Props.SetText(ical.PropSummary, summary)
		vevent.Props.SetDateTime(ical.PropDateTimeStart,
			trigger.NextAlarmTrigger(a.Hour, a.Minute, a.RepeatDays, now))

		if rule := recurrenceRule(a); rule != "" {
			vevent.Props.SetText(ical.PropRecurrenceRule, rule)
		}
		vevent.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())

		cal.Children = append(cal.Children, vevent.Component)
	}
	return cal
}

func recurrenceRule(a *domain.ScheduledAlarm) string {
	if a.IsDaily {
		return "FREQ=DAILY"
	}
	if len(a.RepeatDays) == 0 {
		return ""
	}

	days := append([]time.Weekday(nil), a.RepeatDays...)
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	codes := make([]string, 0, len(days))
	for _, d := range days {
		codes = append(codes, byDay[d])
	}
	return "FREQ=WEEKLY;BYDAY=" + strings.Join(codes, ",")
}

// Write encodes the schedule to w.
func Write(w io.Writer, alarms []*domain.ScheduledAlarm, now time.Time) error {
	if err := ical.NewEncoder(w).Encode(Calendar(alarms, now)); err != nil {
		return fmt.Errorf("encoding calendar: %w", err)
	}
	return nil
}

// WriteFile writes the schedule to path, replacing any previous export.
func WriteFile(path string, alarms []*domain.ScheduledAlarm, now time.Time) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if err := Write(f, alarms, now); err != nil {
		return err
	}
	return f.Close()
}
