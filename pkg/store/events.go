package store

import "sync"

// Event names follow "<collection>:change"; ResetEvent is published by
// ClearAll instead of per-collection events.
const ResetEvent = "db:reset"

// ChangeEvent returns the event name for a collection's change channel.
func ChangeEvent(collection string) string { return collection + ":change" }

// Event describes one committed mutation. Notifications fire only after
// the underlying batch has durably committed.
type Event struct {
	Name       string `json:"name"`
	Action     string `json:"action"`
	Collection string `json:"collection,omitempty"`
	Key        string `json:"key,omitempty"`
	Count      int    `json:"count,omitempty"`
}

type subscriber struct {
	id int
	fn func(Event)
}

// bus is an explicit observer registry: event name to ordered
// subscriber set. Broadcast iterates a snapshot so a callback may
// subscribe or unsubscribe without corrupting the iteration.
type bus struct {
	mu   sync.Mutex
	next int
	subs map[string][]subscriber
}

var events = &bus{subs: map[string][]subscriber{}}

// Subscribe registers fn for the named event and returns a disposer.
// Disposing twice is harmless.
func Subscribe(event string, fn func(Event)) func() {
	events.mu.Lock()
	defer events.mu.Unlock()
	events.next++
	id := events.next
	events.subs[event] = append(events.subs[event], subscriber{id: id, fn: fn})
	return func() {
		events.mu.Lock()
		defer events.mu.Unlock()
		list := events.subs[event]
		for i, s := range list {
			if s.id == id {
				events.subs[event] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// publish delivers ev synchronously to a snapshot of the current
// subscribers. Delivery order among subscribers is unspecified.
func publish(ev Event) {
	events.mu.Lock()
	snapshot := append([]subscriber(nil), events.subs[ev.Name]...)
	events.mu.Unlock()
	for _, s := range snapshot {
		s.fn(ev)
	}
}
