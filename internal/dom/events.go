package dom

// Common event types.
const (
	EventClick = "click"
	EventBlur  = "blur"
)

// Listener handles a dispatched event.
type Listener func(ev *Event)

// ListenerHandle identifies one registered listener.
type ListenerHandle struct {
	el  *Element
	typ string
	id  int
}

type listenerEntry struct {
	id      int
	typ     string
	fn      Listener
	removed bool
}

// Event is a dispatched event. Its Detail map carries caller-defined
// values across a dispatch and is copied by Clone.
type Event struct {
	Type          string
	Target        *Element
	CurrentTarget *Element
	Bubbles       bool
	Detail        map[string]any

	defaultPrevented   bool
	propagationStopped bool
	dispatching        bool
}

// NewEvent creates a bubbling event of the given type.
func NewEvent(typ string) *Event {
	return &Event{Type: typ, Bubbles: true, Detail: make(map[string]any)}
}

// PreventDefault cancels the default action.
func (ev *Event) PreventDefault() {
	ev.defaultPrevented = true
}

// DefaultPrevented reports whether PreventDefault was called.
func (ev *Event) DefaultPrevented() bool {
	return ev.defaultPrevented
}

// StopPropagation keeps the event from reaching further ancestors.
func (ev *Event) StopPropagation() {
	ev.propagationStopped = true
}

// PropagationStopped reports whether StopPropagation was called.
func (ev *Event) PropagationStopped() bool {
	return ev.propagationStopped
}

// Clone returns an undispatched copy of ev with the same type, bubbling
// and detail values.
func (ev *Event) Clone() *Event {
	detail := make(map[string]any, len(ev.Detail))
	for k, v := range ev.Detail {
		detail[k] = v
	}
	return &Event{Type: ev.Type, Bubbles: ev.Bubbles, Detail: detail}
}

// AddEventListener registers fn for events of type typ reaching e.
func (e *Element) AddEventListener(typ string, fn Listener) ListenerHandle {
	e.doc.nextID++
	entry := &listenerEntry{id: e.doc.nextID, typ: typ, fn: fn}
	e.doc.listeners[e.node] = append(e.doc.listeners[e.node], entry)
	return ListenerHandle{el: e, typ: typ, id: entry.id}
}

// RemoveEventListener unregisters a listener. A listener removed while an
// event is being dispatched is not invoked for the rest of that dispatch.
func (e *Element) RemoveEventListener(h ListenerHandle) {
	if h.el == nil {
		return
	}
	entries := e.doc.listeners[h.el.node]
	for i, entry := range entries {
		if entry.id == h.id {
			entry.removed = true
			e.doc.listeners[h.el.node] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(e.doc.listeners[h.el.node]) == 0 {
		delete(e.doc.listeners, h.el.node)
	}
}

// ListenerCount returns how many listeners of type typ are registered on e.
func (e *Element) ListenerCount(typ string) int {
	n := 0
	for _, entry := range e.doc.listeners[e.node] {
		if entry.typ == typ {
			n++
		}
	}
	return n
}

// Dispatch delivers ev to e and, when it bubbles, to each ancestor until
// propagation is stopped. The document's default action for the event type
// runs afterwards unless the event was canceled. It returns false when the
// event was canceled.
func (e *Element) Dispatch(ev *Event) bool {
	if ev.dispatching {
		return !ev.defaultPrevented
	}
	ev.dispatching = true
	defer func() { ev.dispatching = false }()

	if ev.Detail == nil {
		ev.Detail = make(map[string]any)
	}
	ev.Target = e

	path := []*Element{e}
	if ev.Bubbles {
		for p := e.Parent(); p != nil; p = p.Parent() {
			path = append(path, p)
		}
	}

	for _, cur := range path {
		ev.CurrentTarget = cur
		snapshot := append([]*listenerEntry(nil), e.doc.listeners[cur.node]...)
		for _, entry := range snapshot {
			if entry.removed || entry.typ != ev.Type {
				continue
			}
			entry.fn(ev)
		}
		if ev.propagationStopped {
			break
		}
	}
	ev.CurrentTarget = nil

	if !ev.defaultPrevented {
		if action, ok := e.doc.defaults[ev.Type]; ok {
			action(ev)
		}
	}
	return !ev.defaultPrevented
}

// Click dispatches a bubbling click event at e.
func (e *Element) Click() bool {
	return e.Dispatch(NewEvent(EventClick))
}

// Blur dispatches a non-bubbling blur event at e.
func (e *Element) Blur() bool {
	ev := NewEvent(EventBlur)
	ev.Bubbles = false
	return e.Dispatch(ev)
}
