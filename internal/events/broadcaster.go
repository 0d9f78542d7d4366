package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Subscription is one subscriber's view of the event stream. Events are
// delivered on C until Unsubscribe is called, after which C is closed.
// Subscribers receive only events published after they subscribe; there is
// no replay.
type Subscription struct {
	ID uuid.UUID
	C  <-chan Event

	ch chan Event
}

// Broadcaster is an in-process fan-out publish/subscribe channel. Each
// subscriber gets its own buffered channel; publishing never blocks — if a
// subscriber's buffer is full the event is dropped for that subscriber and
// counted.
type Broadcaster struct {
	mu         sync.RWMutex
	subs       map[uuid.UUID]*Subscription
	bufferSize int
	dropped    atomic.Uint64
	logger     *slog.Logger
}

// NewBroadcaster creates a Broadcaster whose subscriber channels hold up to
// bufferSize undelivered events.
func NewBroadcaster(bufferSize int, logger *slog.Logger) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Broadcaster{
		subs:       make(map[uuid.UUID]*Subscription),
		bufferSize: bufferSize,
		logger:     logger.With("component", "event_broadcaster"),
	}
}

// Subscribe registers a new subscriber and returns its subscription.
func (b *Broadcaster) Subscribe() *Subscription {
	ch := make(chan Event, b.bufferSize)
	sub := &Subscription{
		ID: uuid.New(),
		C:  ch,
		ch: ch,
	}

	b.mu.Lock()
	b.subs[sub.ID] = sub
	count := len(b.subs)
	b.mu.Unlock()

	b.logger.Debug("subscriber connected",
		"subscriber_id", sub.ID,
		"subscriber_count", count)

	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call for
// an already-removed id.
func (b *Broadcaster) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	count := len(b.subs)
	b.mu.Unlock()

	if !ok {
		return
	}

	close(sub.ch)
	b.logger.Debug("subscriber disconnected",
		"subscriber_id", id,
		"subscriber_count", count)
}

// Publish fans the event out to all current subscribers without blocking.
// A subscriber whose buffer is full misses the event.
func (b *Broadcaster) Publish(eventType string, data any) {
	event := NewEvent(eventType, data)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				"subscriber_id", id,
				"event_type", eventType,
				"dropped_total", b.dropped.Add(1))
		}
	}
}

// SubscriberCount returns the number of currently-connected subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
