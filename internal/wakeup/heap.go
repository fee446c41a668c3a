package wakeup

import "container/heap"

// eventHeap implements container/heap.Interface for Event, ordered by At
// (earliest first).
type eventHeap []Event

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return h[i].At.Before(h[j].At) }
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func heapPush(h *eventHeap, e Event) {
	heap.Push(h, e)
}

func heapPop(h *eventHeap) Event {
	return heap.Pop(h).(Event)
}

// heapContains reports whether a registration with the given key is queued.
func heapContains(h *eventHeap, k Key) bool {
	for _, e := range *h {
		if e.key() == k {
			return true
		}
	}
	return false
}

// heapRemoveByKey removes the registration with the given key, if present.
func heapRemoveByKey(h *eventHeap, k Key) bool {
	for i, e := range *h {
		if e.key() == k {
			heap.Remove(h, i)
			return true
		}
	}
	return false
}
