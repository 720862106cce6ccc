package telemetry

import "sync"

// EventBuffer keeps the most recent events in publication order.
type EventBuffer struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
}

// NewEventBuffer creates a new event buffer with the specified capacity.
func NewEventBuffer(capacity int) *EventBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventBuffer{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
	}
}

// Add appends an event, evicting the oldest one when full.
func (b *EventBuffer) Add(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == b.capacity {
		copy(b.events, b.events[1:])
		b.events = b.events[:len(b.events)-1]
	}
	b.events = append(b.events, event)
}

// EventsAfter returns buffered events with an ID above lastID. A non-empty
// module keeps only that module's events.
func (b *EventBuffer) EventsAfter(lastID int64, module string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for _, event := range b.events {
		if event.ID <= lastID {
			continue
		}
		if module != "" && event.Module != module {
			continue
		}
		result = append(result, event)
	}
	return result
}

// Len returns the current buffer size.
func (b *EventBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
