package connection

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"resonance/backend/pkg/logger"
)

// EventKind names a lifecycle state change
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventAccepted  EventKind = "accepted"
	EventDeclined  EventKind = "declined"
	EventWithdrawn EventKind = "withdrawn"
)

// Event is an outbound state-change notification. Acceptance is the sole
// trigger that makes a pair eligible for messaging and community features;
// those systems subscribe here instead of being called directly, keeping the
// lifecycle decoupled from downstream effects.
type Event struct {
	Kind       EventKind `json:"kind"`
	Request    Request   `json:"request"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Bus fans lifecycle events out to subscribers. Delivery is best-effort: a
// subscriber that stops draining its channel loses events rather than
// blocking transitions.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan Event
	logger *zap.Logger
}

// NewBus creates an event bus
func NewBus() *Bus {
	return &Bus{logger: logger.Named("connection.events")}
}

// Subscribe registers a new subscriber and returns its channel
func (b *Bus) Subscribe(buffer int) <-chan Event {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers an event to every subscriber without blocking
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.logger.Warn("dropping lifecycle event for slow subscriber",
				zap.String("kind", string(event.Kind)),
				zap.String("request_id", event.Request.ID),
			)
		}
	}
}
