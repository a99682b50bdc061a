// Package events fans domain events out to in-process subscribers.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Type names a domain event.
type Type string

const (
	ProjectCreated Type = "project.created"
	ProjectUpdated Type = "project.updated"
	ProjectDeleted Type = "project.deleted"

	FolderCreated Type = "folder.created"
	FolderUpdated Type = "folder.updated"
	FolderRenamed Type = "folder.renamed"
	FolderDeleted Type = "folder.deleted"

	DiagramCreated Type = "diagram.created"
	DiagramUpdated Type = "diagram.updated"
	DiagramDeleted Type = "diagram.deleted"
)

// Event is delivered to subscribers after a successful mutation.
type Event struct {
	Type      Type           `json:"type"`
	ProjectID string         `json:"project_id,omitempty"`
	EntityID  string         `json:"entity_id"`
	Record    any            `json:"record,omitempty"`
	Delta     map[string]any `json:"delta,omitempty"`
	At        time.Time      `json:"at"`
}

// Publisher is what repositories depend on.
type Publisher interface {
	Publish(event Event)
}

// DefaultBuffer is the per-subscriber channel size.
const DefaultBuffer = 64

type subscriber struct {
	ch    chan Event
	types map[Type]struct{}
}

func (s *subscriber) wants(t Type) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus delivers events to every matching subscriber without blocking the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	dropped     atomic.Int64
	now         func() time.Time
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[*subscriber]struct{}),
		now:         time.Now,
	}
}

// Subscribe registers a subscriber for the given types (all types when none
// are given). The returned cancel func unregisters it and closes the channel.
func (b *Bus) Subscribe(buffer int, types ...Type) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &subscriber{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		sub.types = make(map[Type]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, sub)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Publish delivers the event to every matching subscriber.
func (b *Bus) Publish(event Event) {
	if event.At.IsZero() {
		event.At = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Drop if buffer full to avoid blocking the writer.
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(Event) {}
