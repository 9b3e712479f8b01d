package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/autotrack/internal/events"
)

// MemorySink keeps every event it receives.
type MemorySink struct {
	mutex  sync.Mutex
	events []events.Event
}

// NewMemorySink creates an empty memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Name implements Sink.
func (m *MemorySink) Name() string { return "memory" }

// Send implements Sink.
func (m *MemorySink) Send(_ context.Context, batch []events.Event) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.events = append(m.events, batch...)
	return nil
}

// Events returns a copy of the received events.
func (m *MemorySink) Events() []events.Event {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]events.Event(nil), m.events...)
}

// OfType returns the received events of one type.
func (m *MemorySink) OfType(typ events.Type) []events.Event {
	var out []events.Event
	for _, ev := range m.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// Reset drops every received event.
func (m *MemorySink) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.events = nil
}

// WriterSink writes events as JSON lines or YAML documents.
type WriterSink struct {
	mutex  sync.Mutex
	w      io.Writer
	format string
}

// NewWriterSink creates a sink writing to w in "json" or "yaml" format.
func NewWriterSink(w io.Writer, format string) (*WriterSink, error) {
	switch format {
	case "json", "yaml":
	default:
		return nil, fmt.Errorf("unsupported event format %q (want json or yaml)", format)
	}
	return &WriterSink{w: w, format: format}, nil
}

// Name implements Sink.
func (s *WriterSink) Name() string { return "writer-" + s.format }

// Send implements Sink.
func (s *WriterSink) Send(_ context.Context, batch []events.Event) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	switch s.format {
	case "yaml":
		enc := yaml.NewEncoder(s.w)
		enc.SetIndent(2)
		for _, ev := range batch {
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(s.w)
		for _, ev := range batch {
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
		return nil
	}
}
