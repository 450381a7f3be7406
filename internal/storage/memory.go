// internal/storage/memory.go
package storage

import (
	"sync"

	"github.com/NoahEritier/Smart-Home-IoT/internal/data"
)

// DefaultCapacity is the number of events kept when no capacity is configured.
const DefaultCapacity = 300

// EventLog is a bounded, insertion-ordered log of decoded events. When full,
// Append drops the oldest event. Appends and evictions are O(1).
type EventLog struct {
	mu       sync.RWMutex
	buffer   []data.Event
	head     int // next write position
	size     int
	capacity int
	appended uint64
	onEvict  func(data.Event)
}

// Option configures an EventLog.
type Option func(*EventLog)

// WithEvictCallback registers fn to be called with every event dropped on overflow.
// fn runs after the log lock is released.
func WithEvictCallback(fn func(data.Event)) Option {
	return func(l *EventLog) { l.onEvict = fn }
}

func NewEventLog(capacity int, opts ...Option) *EventLog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &EventLog{
		buffer:   make([]data.Event, capacity),
		capacity: capacity,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append adds ev as the newest entry, evicting the oldest one when the log is full.
func (l *EventLog) Append(ev data.Event) {
	evicted, dropped := l.append(ev)
	if dropped && l.onEvict != nil {
		l.onEvict(evicted)
	}
}

func (l *EventLog) append(ev data.Event) (data.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var evicted data.Event
	dropped := l.size == l.capacity
	if dropped {
		// head is also the oldest slot once the ring has wrapped.
		evicted = l.buffer[l.head]
	} else {
		l.size++
	}
	l.buffer[l.head] = ev
	l.head = (l.head + 1) % l.capacity
	l.appended++
	return evicted, dropped
}

// Snapshot returns a copy of the retained events, oldest first.
func (l *EventLog) Snapshot() []data.Event {
	return l.GetRecent(0)
}

// GetRecent returns the newest count events, oldest first. A count that is
// zero, negative or larger than the log returns every retained event.
func (l *EventLog) GetRecent(count int) []data.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if count <= 0 || count > l.size {
		count = l.size
	}
	result := make([]data.Event, count)
	start := (l.head - count + l.capacity) % l.capacity
	for i := 0; i < count; i++ {
		result[i] = l.buffer[(start+i)%l.capacity]
	}
	return result
}

func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

func (l *EventLog) Capacity() int {
	return l.capacity
}

// Appended returns the number of events ever appended, including evicted ones.
func (l *EventLog) Appended() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.appended
}
