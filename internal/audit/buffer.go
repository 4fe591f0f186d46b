package audit

import "sync"

// RingBuffer is a bounded, thread-safe queue of events. When full, the
// oldest event is dropped to make room.
type RingBuffer struct {
	mu       sync.Mutex
	events   []Event
	head     int
	tail     int
	count    int
	capacity int
	dropped  int64
	notify   chan struct{}
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 10000
	}
	return &RingBuffer{
		events:   make([]Event, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Enqueue adds an event, dropping the oldest if necessary. It reports
// whether an event was dropped.
func (b *RingBuffer) Enqueue(event Event) bool {
	b.mu.Lock()
	dropped := false
	if b.count >= b.capacity {
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.dropped++
		dropped = true
	}
	b.events[b.head] = event
	b.head = (b.head + 1) % b.capacity
	b.count++
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return dropped
}

// DequeueBatch removes up to n events, oldest first.
func (b *RingBuffer) DequeueBatch(n int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	n = min(n, b.count)
	out := make([]Event, n)
	for i := range n {
		out[i] = b.events[b.tail]
		b.events[b.tail] = Event{}
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count -= n
	return out
}

// Ready is signalled after an enqueue.
func (b *RingBuffer) Ready() <-chan struct{} {
	return b.notify
}

func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped returns how many events were discarded because the buffer was full.
func (b *RingBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
