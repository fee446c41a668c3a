package service

import (
	"fmt"
	"time"

	"chimed/internal/domain"
	"chimed/internal/storage"
)

// TimerService is the edit path for countdown timers. Start, pause and resume
// keep the invariant that a running timer's remaining time is derivable from
// targetDuration - (now - startedAt): resume back-dates the start timestamp
// instead of mutating the target.
type TimerService struct {
	store *storage.Storage
}

func NewTimerService(store *storage.Storage) *TimerService {
	return &TimerService{store: store}
}

// Create persists a new idle timer.
func (s *TimerService) Create(label string, target time.Duration) (*domain.Countdown, error) {
	if target <= 0 {
		return nil, fmt.Errorf("target duration %s must be positive: %w", target, domain.ErrConstraint)
	}
	c := &domain.Countdown{
		Label:          label,
		TargetDuration: target,
		Remaining:      target,
		State:          domain.TimerIdle,
	}
	if err := s.store.SaveTimer(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Start begins or resumes a countdown. The start timestamp is back-dated by
// the already-elapsed portion so the remaining-time formula holds uniformly.
// Starting a running timer is a no-op.
func (s *TimerService) Start(id int64) error {
	c, err := s.store.GetTimerByID(id)
	if err != nil {
		return err
	}
	if c.IsRunning {
		return nil
	}

	if c.State == domain.TimerIdle || c.State == domain.TimerStopped || c.Remaining <= 0 {
		c.Remaining = c.TargetDuration
	}
	c.StartedAt = time.Now().Add(-(c.TargetDuration - c.Remaining))
	c.IsRunning = true
	c.State = domain.TimerRunning
	c.SnoozedTarget = nil
	return s.store.UpdateTimer(c)
}

// Pause freezes elapsed accounting at the current remaining value.
func (s *TimerService) Pause(id int64) error {
	c, err := s.store.GetTimerByID(id)
	if err != nil {
		return err
	}
	if !c.IsRunning {
		return nil
	}
	c.Remaining = c.RemainingAt(time.Now())
	c.IsRunning = false
	c.State = domain.TimerPaused
	return s.store.UpdateTimer(c)
}

// Resume continues a paused countdown.
func (s *TimerService) Resume(id int64) error {
	return s.Start(id)
}

// Stop dismisses a timer. A completed timer stops ringing; an active one is
// abandoned.
func (s *TimerService) Stop(id int64) error {
	c, err := s.store.GetTimerByID(id)
	if err != nil {
		return err
	}
	c.Remaining = c.RemainingAt(time.Now())
	c.IsRunning = false
	c.State = domain.TimerStopped
	c.SnoozedTarget = nil
	return s.store.UpdateTimer(c)
}

// Snooze restarts a completed timer for a short grace window. The snoozed
// target records when the grace period ends; the start timestamp is back-dated
// so the standard formula yields exactly the grace duration.
func (s *TimerService) Snooze(id int64, grace time.Duration) error {
	if grace <= 0 {
		return fmt.Errorf("grace %s must be positive: %w", grace, domain.ErrConstraint)
	}
	c, err := s.store.GetTimerByID(id)
	if err != nil {
		return err
	}
	if c.RemainingAt(time.Now()) > 0 {
		return fmt.Errorf("timer %d has not completed: %w", id, domain.ErrConstraint)
	}

	now := time.Now()
	target := now.Add(grace)
	c.SnoozedTarget = &target
	c.Remaining = grace
	c.StartedAt = now.Add(-(c.TargetDuration - grace))
	c.IsRunning = true
	c.State = domain.TimerRunning
	return s.store.UpdateTimer(c)
}

func (s *TimerService) Delete(id int64) error {
	return s.store.DeleteTimer(id)
}

func (s *TimerService) List() ([]*domain.Countdown, error) {
	return s.store.GetTimerSnapshot()
}
