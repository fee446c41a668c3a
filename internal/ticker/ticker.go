// Package ticker advances running countdown timers. Remaining time is always
// recomputed from the persisted start timestamp and target duration, so the
// projection survives process death and delayed ticks without drifting.
package ticker

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"chimed/internal/domain"
	"chimed/internal/notify"
	"chimed/internal/storage"
)

// Ticker maintains the live timer projection. The periodic tick runs only
// while at least one timer is running; the loop starts and stops it by itself
// based on the latest store snapshot.
type Ticker struct {
	store     *storage.Storage
	presenter notify.Presenter
	interval  time.Duration

	mu       sync.Mutex
	timers   []*domain.Countdown
	notified map[int64]bool
	cancel   context.CancelFunc
}

func New(store *storage.Storage, presenter notify.Presenter, interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Ticker{
		store:     store,
		presenter: presenter,
		interval:  interval,
		notified:  make(map[int64]bool),
	}
}

// Start subscribes to the timer stream and runs until ctx is cancelled. Every
// snapshot is a restoration point: remaining time is recomputed from absolute
// timestamps, correcting for any window the process was not running.
func (t *Ticker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	sub := t.store.ObserveTimers()
	defer sub.Close()

	var tick *time.Ticker
	var tickC <-chan time.Time
	defer func() {
		if tick != nil {
			tick.Stop()
		}
	}()

	// adjust keeps the periodic tick alive exactly while a timer runs.
	adjust := func() {
		running := t.HasRunningTimers()
		switch {
		case running && tick == nil:
			tick = time.NewTicker(t.interval)
			tickC = tick.C
		case !running && tick != nil:
			tick.Stop()
			tick = nil
			tickC = nil
		}
	}

	log.Println("Countdown ticker started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case snapshot, ok := <-sub.C():
			if !ok {
				return nil
			}
			t.restore(snapshot)
			adjust()
		case <-tickC:
			t.advance()
			adjust()
		}
	}
}

// Stop cancels the subscription and any pending tick. Safe to call more than
// once and before Start.
func (t *Ticker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// restore replaces the projection with a fresh store snapshot. Timers deleted
// concurrently simply vanish from the projection; that is not an error.
func (t *Ticker) restore(snapshot []*domain.Countdown) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.timers = snapshot
	present := make(map[int64]bool, len(snapshot))
	for _, c := range snapshot {
		present[c.ID] = true
		if c.IsRunning {
			c.Remaining = c.RemainingAt(now)
		}
		// Remaining back above zero means the timer was restarted or snoozed:
		// its next completion is a fresh one and must ring again.
		if c.Remaining > 0 {
			delete(t.notified, c.ID)
		}
	}
	for id := range t.notified {
		if !present[id] {
			delete(t.notified, id)
		}
	}

	t.announceCompletedLocked()
}

// advance is one tick: recompute every running timer from wall time.
func (t *Ticker) advance() {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, c := range t.timers {
		if !c.IsRunning {
			continue
		}
		c.Remaining = c.RemainingAt(now)
		if c.Remaining > 0 {
			delete(t.notified, c.ID)
		}
	}
	t.announceCompletedLocked()
}

// announceCompletedLocked posts a ringing notification the first time a
// running timer crosses zero. Requires t.mu held.
func (t *Ticker) announceCompletedLocked() {
	for _, c := range t.timers {
		if !c.IsRunning || c.Remaining > 0 || t.notified[c.ID] {
			continue
		}
		t.notified[c.ID] = true
		if err := t.presenter.PostRinging(timerSnapshot(c)); err != nil {
			log.Printf("Error posting timer %d completion: %v", c.ID, err)
		}
	}
}

// HasRunningTimers reports whether any timer in the projection is running.
func (t *Ticker) HasRunningTimers() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.timers {
		if c.IsRunning {
			return true
		}
	}
	return false
}

// Snapshot partitions the projection for consumers. Active timers (remaining
// time left) come sorted by ascending remaining time with running timers
// before paused ones; completed timers (at or past zero) sorted by ascending
// remaining time, which puts the most overdue first. Both orderings are
// stable.
func (t *Ticker) Snapshot() (active, completed []*domain.Countdown) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, c := range t.timers {
		cc := *c
		switch {
		case cc.Active():
			active = append(active, &cc)
		case cc.Completed():
			completed = append(completed, &cc)
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		if active[i].IsRunning != active[j].IsRunning {
			return active[i].IsRunning
		}
		return active[i].Remaining < active[j].Remaining
	})
	sort.SliceStable(completed, func(i, j int) bool {
		return completed[i].Remaining < completed[j].Remaining
	})
	return active, completed
}

func timerSnapshot(c *domain.Countdown) notify.Snapshot {
	return notify.Snapshot{
		ID:    c.ID,
		Kind:  notify.KindTimer,
		Label: c.Label,
		Body:  fmt.Sprintf("%s elapsed", c.TargetDuration),
		At:    time.Now(),
	}
}
