// Package notify posts user-facing notifications for ringing, missed and
// snoozed events. The core hands over a display snapshot; rendering is the
// presenter's problem.
package notify

import (
	"fmt"
	"log"
	"time"
)

type Kind string

const (
	KindAlarm Kind = "alarm"
	KindTimer Kind = "timer"
)

// Snapshot carries the display-relevant fields of an alarm or timer.
type Snapshot struct {
	ID    int64
	Kind  Kind
	Label string
	// Body is pre-formatted detail text: time of day for alarms, remaining or
	// overrun for timers.
	Body string
	At   time.Time
}

// Presenter is the notification contract produced to by the coordinator and
// the ticker.
type Presenter interface {
	PostRinging(s Snapshot) error
	PostMissed(s Snapshot) error
	PostSnoozed(s Snapshot) error
	Cancel(id int64) error
}

// LogPresenter writes notifications to the process log. Used as the fallback
// backend and in tests.
type LogPresenter struct{}

func (LogPresenter) PostRinging(s Snapshot) error {
	log.Printf("notify: ringing %s %d %q %s", s.Kind, s.ID, s.Label, s.Body)
	return nil
}

func (LogPresenter) PostMissed(s Snapshot) error {
	log.Printf("notify: missed %s %d %q %s", s.Kind, s.ID, s.Label, s.Body)
	return nil
}

func (LogPresenter) PostSnoozed(s Snapshot) error {
	log.Printf("notify: snoozed %s %d %q %s", s.Kind, s.ID, s.Label, s.Body)
	return nil
}

func (LogPresenter) Cancel(id int64) error { return nil }

func title(s Snapshot) string {
	label := s.Label
	if label == "" {
		label = fmt.Sprintf("%s %d", s.Kind, s.ID)
	}
	return label
}
