package domain

import "time"

type TimerState string

const (
	TimerIdle    TimerState = "idle"
	TimerRunning TimerState = "running"
	TimerPaused  TimerState = "paused"
	TimerStopped TimerState = "stopped"
)

// Countdown is a one-shot duration-based reminder. Remaining is a live
// projection derived from TargetDuration and StartedAt while the timer runs;
// it is never the source of truth for elapsed time.
type Countdown struct {
	ID             int64
	Label          string
	TargetDuration time.Duration
	Remaining      time.Duration
	StartedAt      time.Time
	IsRunning      bool
	State          TimerState
	SnoozedTarget  *time.Time
	CreatedAt      time.Time
}

// RemainingAt returns the remaining time as of now. For a running timer the
// value is recomputed from absolute timestamps so that delayed or coalesced
// ticks cannot accumulate drift. For a paused or idle timer the stored value
// is returned unchanged.
func (c *Countdown) RemainingAt(now time.Time) time.Duration {
	if !c.IsRunning {
		return c.Remaining
	}
	return c.TargetDuration - now.Sub(c.StartedAt)
}

// Completed reports whether the countdown has reached zero. A completed timer
// may still be in the running state: it keeps ringing until the user acts.
func (c *Countdown) Completed() bool {
	return c.Remaining <= 0 && (c.State == TimerRunning || c.State == TimerPaused)
}

// Active reports whether the countdown still has time left.
func (c *Countdown) Active() bool {
	return c.Remaining > 0 && (c.State == TimerRunning || c.State == TimerPaused)
}
