// Package index keeps track of which mounted element claims which location
// stack, so that two elements resolving to the same stack can be detected.
package index

import (
	"sync"
	"time"

	"github.com/conneroisu/autotrack/internal/errors"
	"github.com/conneroisu/autotrack/internal/location"
)

// Entry is one registered element.
type Entry struct {
	ElementID   string
	Stack       location.Stack
	ParentStack location.Stack
	Added       time.Time
}

// Event represents a change in the index.
type Event struct {
	Type      EventType
	Entry     Entry
	Timestamp time.Time
}

// EventType represents the type of index event.
type EventType int

const (
	EventTypeAdded EventType = iota
	EventTypeRemoved
	EventTypeCollision
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeAdded:
		return "added"
	case EventTypeRemoved:
		return "removed"
	case EventTypeCollision:
		return "collision"
	default:
		return "unknown"
	}
}

// UniquenessIndex is what the tracking engine needs from an index.
type UniquenessIndex interface {
	Add(elementID string, stack, parentStack location.Stack) error
	Remove(elementID string)
}

// LocationIndex is an in-memory UniquenessIndex.
type LocationIndex struct {
	byElement map[string]Entry
	byStack   map[string]string
	mutex     sync.RWMutex
	watchers  []chan Event
}

// New creates an empty index.
func New() *LocationIndex {
	return &LocationIndex{
		byElement: make(map[string]Entry),
		byStack:   make(map[string]string),
		watchers:  make([]chan Event, 0),
	}
}

// Add registers elementID under stack. It returns a collision error when a
// different live element already holds an equal stack; the existing entry
// is kept. Re-adding an element replaces its previous entry.
func (x *LocationIndex) Add(elementID string, stack, parentStack location.Stack) error {
	x.mutex.Lock()
	defer x.mutex.Unlock()

	key := stack.Key()
	if owner, ok := x.byStack[key]; ok && owner != elementID {
		x.notify(Event{Type: EventTypeCollision, Entry: Entry{ElementID: elementID, Stack: stack.Clone()}})
		return errors.NewCollisionError(elementID, owner, stack.String()).WithComponent("index")
	}

	if prev, ok := x.byElement[elementID]; ok {
		delete(x.byStack, prev.Stack.Key())
	}

	entry := Entry{
		ElementID:   elementID,
		Stack:       stack.Clone(),
		ParentStack: parentStack.Clone(),
		Added:       time.Now(),
	}
	x.byElement[elementID] = entry
	x.byStack[key] = elementID
	x.notify(Event{Type: EventTypeAdded, Entry: entry})
	return nil
}

// Remove deregisters elementID. Unknown ids are ignored.
func (x *LocationIndex) Remove(elementID string) {
	x.mutex.Lock()
	defer x.mutex.Unlock()

	entry, ok := x.byElement[elementID]
	if !ok {
		return
	}
	delete(x.byElement, elementID)
	if x.byStack[entry.Stack.Key()] == elementID {
		delete(x.byStack, entry.Stack.Key())
	}
	x.notify(Event{Type: EventTypeRemoved, Entry: entry})
}

// Get returns the entry registered for elementID.
func (x *LocationIndex) Get(elementID string) (Entry, bool) {
	x.mutex.RLock()
	defer x.mutex.RUnlock()

	entry, ok := x.byElement[elementID]
	return entry, ok
}

// Owner returns the element id holding stack.
func (x *LocationIndex) Owner(stack location.Stack) (string, bool) {
	x.mutex.RLock()
	defer x.mutex.RUnlock()

	id, ok := x.byStack[stack.Key()]
	return id, ok
}

// GetAll returns every entry.
func (x *LocationIndex) GetAll() []Entry {
	x.mutex.RLock()
	defer x.mutex.RUnlock()

	result := make([]Entry, 0, len(x.byElement))
	for _, entry := range x.byElement {
		result = append(result, entry)
	}
	return result
}

// Count returns the number of registered elements.
func (x *LocationIndex) Count() int {
	x.mutex.RLock()
	defer x.mutex.RUnlock()

	return len(x.byElement)
}

// Clear removes every entry without notifying watchers.
func (x *LocationIndex) Clear() {
	x.mutex.Lock()
	defer x.mutex.Unlock()

	x.byElement = make(map[string]Entry)
	x.byStack = make(map[string]string)
}

// Watch returns a channel that receives index events
func (x *LocationIndex) Watch() <-chan Event {
	x.mutex.Lock()
	defer x.mutex.Unlock()

	ch := make(chan Event, 100)
	x.watchers = append(x.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it
func (x *LocationIndex) UnWatch(ch <-chan Event) {
	x.mutex.Lock()
	defer x.mutex.Unlock()

	for i, watcher := range x.watchers {
		if watcher == ch {
			close(watcher)
			x.watchers = append(x.watchers[:i], x.watchers[i+1:]...)
			break
		}
	}
}

// notify must be called with the mutex held.
func (x *LocationIndex) notify(event Event) {
	event.Timestamp = time.Now()
	for _, watcher := range x.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}
