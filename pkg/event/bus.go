// Package event provides the in-process publish mechanism for graph mutations.
//
// The bus is deliberately minimal: subscribers register callbacks for event
// types, and the store publishes synchronously after each committed mutation,
// in mutation order. There are no delivery guarantees beyond "fires once per
// committed mutation"; subscribers needing durability persist state themselves.
//
// Subscribers are plain callbacks held in a list, pushed to directly. There is
// no emitter base type to inherit from and no dynamic dispatch beyond the
// function call itself.
package event

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kgraphdb/kgraph/pkg/graph"
)

// Type identifies what kind of mutation an event describes.
type Type string

// Event types.
const (
	NodeAdded           Type = "node_added"
	NodeUpdated         Type = "node_updated"
	NodeRemoved         Type = "node_removed"
	RelationshipAdded   Type = "relationship_added"
	RelationshipUpdated Type = "relationship_updated"
	RelationshipRemoved Type = "relationship_removed"
	GraphRestored       Type = "graph_restored"
)

// Event is one committed graph mutation. On update events, Changes lists the
// top-level fields that differ from the previous version, so subscribers can
// decide whether to re-read the entity at all.
type Event struct {
	ID             string               `json:"id"`
	Type           Type                 `json:"type"`
	GraphID        string               `json:"graphId"`
	NodeID         graph.NodeID         `json:"nodeId,omitempty"`
	RelationshipID graph.RelationshipID `json:"relationshipId,omitempty"`
	Changes        []string             `json:"changes,omitempty"`
	Timestamp      time.Time            `json:"timestamp"`
}

// NewEvent builds an event with a fresh ID and timestamp.
func NewEvent(t Type, graphID string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		GraphID:   graphID,
		Timestamp: time.Now(),
	}
}

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine; a slow handler slows publishing.
type Handler func(Event)

// Subscription identifies a registered handler so it can be removed.
type Subscription int

// Bus is a single-process publish/subscribe hub.
//
// Publish is safe to call concurrently with Subscribe/Unsubscribe, but the
// store serializes its own Publish calls, which is what gives subscribers
// mutation-order delivery.
type Bus struct {
	mu     sync.RWMutex
	nextID Subscription
	subs   map[Subscription]subscriber
	logger *slog.Logger
}

type subscriber struct {
	types   map[Type]bool // nil means all types
	handler Handler
}

// NewBus creates an empty bus. logger may be nil.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[Subscription]subscriber),
		logger: logger,
	}
}

// Subscribe registers a handler for the given event types. With no types the
// handler receives every event. Returns a Subscription for Unsubscribe.
func (b *Bus) Subscribe(handler Handler, types ...Type) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	var filter map[Type]bool
	if len(types) > 0 {
		filter = make(map[Type]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
	}

	b.nextID++
	id := b.nextID
	b.subs[id] = subscriber{types: filter, handler: handler}
	return id
}

// Unsubscribe removes a handler. Unknown subscriptions are ignored.
func (b *Bus) Unsubscribe(id Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Publish delivers an event to every matching subscriber, synchronously.
// A panicking handler is recovered and logged so one bad subscriber cannot
// poison the mutation path.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.types == nil || sub.types[ev.Type] {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.deliver(handler, ev)
	}
}

func (b *Bus) deliver(handler Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", ev.Type, "graph", ev.GraphID, "panic", r)
		}
	}()
	handler(ev)
}
