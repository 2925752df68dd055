package telemetry

import "sync"

// Event is a recorded SendEvent call.
type Event struct {
	Name string
	Data any
}

// ErrorReport is a recorded ReportError call.
type ErrorReport struct {
	Desc string
	Err  error
	Data any
}

// Memory keeps everything it is given. The run command prints it and tests
// assert on it.
type Memory struct {
	mu     sync.Mutex
	events []Event
	errors []ErrorReport
}

func (m *Memory) SendEvent(name string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Event{Name: name, Data: data})
}

func (m *Memory) ReportError(desc string, err error, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, ErrorReport{Desc: desc, Err: err, Data: data})
}

// Events returns the recorded events in order.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Errors returns the recorded error reports in order.
func (m *Memory) Errors() []ErrorReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ErrorReport(nil), m.errors...)
}

// EventNames returns the names of the recorded events.
func (m *Memory) EventNames() []string {
	events := m.Events()
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return names
}
