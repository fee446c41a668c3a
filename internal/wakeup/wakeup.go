// Package wakeup implements the deferred wake-up facility: a single goroutine
// that sleeps until the earliest registered instant and fires a callback.
// Registrations are keyed by (id, action); re-scheduling the same key
// overwrites the prior registration and cancelling an unknown key succeeds.
package wakeup

import (
	"container/heap"
	"context"
	"time"
)

type Action string

const (
	ActionTrigger Action = "trigger"
	ActionTimeout Action = "timeout"
	ActionSnooze  Action = "snooze"
)

// Actions lists every action kind a single event id may have registered.
var Actions = []Action{ActionTrigger, ActionTimeout, ActionSnooze}

// Key addresses one registration.
type Key struct {
	ID     int64
	Action Action
}

// Event is a pending wake-up in the facility heap. In-memory only: the heap is
// rebuilt from store state on daemon restart.
type Event struct {
	ID      int64
	Action  Action
	At      time.Time
	Payload string
}

func (e Event) key() Key { return Key{ID: e.ID, Action: e.Action} }

const maxSleepCap = 60 * time.Second

// Facility runs the wake-up goroutine. The onFire callback is invoked from
// that goroutine when a registration's time arrives; it must not block for
// long.
type Facility struct {
	scheduleCh chan Event
	cancelCh   chan Key
	queryCh    chan pendingQuery
	ctx        context.Context
}

type pendingQuery struct {
	key   Key
	reply chan bool
}

// New creates and starts a Facility. The goroutine exits when ctx is
// cancelled.
func New(ctx context.Context, onFire func(Event)) *Facility {
	f := &Facility{
		scheduleCh: make(chan Event, 64),
		cancelCh:   make(chan Key, 64),
		queryCh:    make(chan pendingQuery),
		ctx:        ctx,
	}
	go f.run(onFire)
	return f
}

// Schedule registers a wake-up, replacing any prior registration for the same
// (id, action).
func (f *Facility) Schedule(e Event) {
	select {
	case f.scheduleCh <- e:
	case <-f.ctx.Done():
	}
}

// Cancel removes a registration. Unknown keys are ignored.
func (f *Facility) Cancel(id int64, action Action) {
	select {
	case f.cancelCh <- Key{ID: id, Action: action}:
	case <-f.ctx.Done():
	}
}

// Pending reports whether a registration exists for (id, action). After
// shutdown it reports false.
func (f *Facility) Pending(id int64, action Action) bool {
	q := pendingQuery{key: Key{ID: id, Action: action}, reply: make(chan bool, 1)}
	select {
	case f.queryCh <- q:
	case <-f.ctx.Done():
		return false
	}
	select {
	case ok := <-q.reply:
		return ok
	case <-f.ctx.Done():
		return false
	}
}

// run is the facility goroutine. It keeps a min-heap of events ordered by
// fire time and sleeps with a 60s cap so that host clock adjustments are
// picked up within a bounded window.
func (f *Facility) run(onFire func(Event)) {
	h := &eventHeap{}
	heap.Init(h)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		if h.Len() == 0 {
			return nil
		}
		dur := time.Until((*h)[0].At)
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	timerCh := resetTimer()

	for {
		select {
		case <-f.ctx.Done():
			return

		case e := <-f.scheduleCh:
			heapRemoveByKey(h, e.key())
			heapPush(h, e)
			timerCh = resetTimer()

		case k := <-f.cancelCh:
			heapRemoveByKey(h, k)
			timerCh = resetTimer()

		case q := <-f.queryCh:
			q.reply <- heapContains(h, q.key)

		case <-timerCh:
			now := time.Now()
			for h.Len() > 0 && !(*h)[0].At.After(now) {
				onFire(heapPop(h))
			}
			timerCh = resetTimer()
		}
	}
}
