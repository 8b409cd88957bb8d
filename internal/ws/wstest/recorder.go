// Package wstest provides an in-memory ws.Publisher for tests.
package wstest

import "sync"

type Event struct {
	TenantID string
	Name     string
	Payload  interface{}
}

// Recorder keeps every published event in order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(tenantID, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{TenantID: tenantID, Name: event, Payload: payload})
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Names lists event names in publish order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, e := range r.events {
		names[i] = e.Name
	}
	return names
}
