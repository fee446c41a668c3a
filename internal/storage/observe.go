package storage

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"chimed/internal/domain"
)

// Subscription delivers collection snapshots on C. The channel holds at most
// one pending snapshot: if the subscriber falls behind, intermediate snapshots
// are replaced by the latest one rather than queued. Close releases the
// subscription; closing twice is harmless.
type Subscription[T any] struct {
	ch    chan T
	once  sync.Once
	unsub func()
}

// C returns the snapshot channel. It is closed when the subscription or the
// store is closed.
func (s *Subscription[T]) C() <-chan T { return s.ch }

func (s *Subscription[T]) Close() {
	s.once.Do(s.unsub)
}

type hub[T any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	closed bool
}

func newHub[T any]() *hub[T] {
	return &hub[T]{subs: make(map[*Subscription[T]]struct{})}
}

func (h *hub[T]) subscribe() *Subscription[T] {
	sub := &Subscription[T]{ch: make(chan T, 1)}
	sub.unsub = func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[sub]; ok {
			delete(h.subs, sub)
			close(sub.ch)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// broadcast pushes the snapshot to every subscriber, replacing any snapshot
// the subscriber has not consumed yet. Never blocks the writer.
func (h *hub[T]) broadcast(snapshot T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.ch <- snapshot:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- snapshot:
			default:
			}
		}
	}
}

func (h *hub[T]) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// ObserveAlarms subscribes to the alarm collection. The current snapshot is
// delivered immediately, then a fresh one after every alarm mutation.
func (s *Storage) ObserveAlarms() *Subscription[[]*domain.ScheduledAlarm] {
	sub := s.alarmHub.subscribe()
	s.emitAlarms()
	return sub
}

// ObserveTimers subscribes to the timer collection, with the same delivery
// contract as ObserveAlarms.
func (s *Storage) ObserveTimers() *Subscription[[]*domain.Countdown] {
	sub := s.timerHub.subscribe()
	s.emitTimers()
	return sub
}

// Watch polls for writes made by other processes and rebroadcasts both
// collections when one lands. sqlite's data_version counter changes whenever
// another connection commits, so unchanged databases cost one PRAGMA per
// interval and no emission. In-process mutations broadcast directly and do
// not bump the counter seen by our own connection. Blocks until ctx is
// cancelled.
func (s *Storage) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	last, err := s.dataVersion()
	if err != nil {
		return fmt.Errorf("read data version: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			v, err := s.dataVersion()
			if err != nil {
				log.Printf("storage: read data version: %v", err)
				continue
			}
			if v != last {
				last = v
				s.emitAlarms()
				s.emitTimers()
			}
		}
	}
}

func (s *Storage) dataVersion() (int64, error) {
	var v int64
	if err := s.db.QueryRow(`PRAGMA data_version`).Scan(&v); err != nil {
		return 0, storeErr(err)
	}
	return v, nil
}

func (s *Storage) emitAlarms() {
	alarms, err := s.ListAlarms()
	if err != nil {
		log.Printf("storage: list alarms for broadcast: %v", err)
		return
	}
	s.alarmHub.broadcast(alarms)
}

func (s *Storage) emitTimers() {
	timers, err := s.GetTimerSnapshot()
	if err != nil {
		log.Printf("storage: list timers for broadcast: %v", err)
		return
	}
	s.timerHub.broadcast(timers)
}
