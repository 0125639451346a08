// Package memory provides an in-process publisher that records completion
// and alert events so tests and queue-less runs can assert on them.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Event is one recorded publish.
type Event struct {
	Topic   string
	Payload any
}

// Publisher collects events in publish order.
type Publisher struct {
	mu     sync.RWMutex
	events []Event
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event and returns a synthetic message ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Event{Topic: topic, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.events)), nil
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}
