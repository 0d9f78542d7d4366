package events_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/phrazzld/taskrelay/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroadcaster(bufferSize int) *events.Broadcaster {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return events.NewBroadcaster(bufferSize, logger)
}

func receiveEvent(t *testing.T, c <-chan events.Event) events.Event {
	t.Helper()
	select {
	case event, ok := <-c:
		require.True(t, ok, "channel closed before event arrived")
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}

func TestBroadcasterDeliversToAllSubscribers(t *testing.T) {
	t.Parallel()

	b := newTestBroadcaster(8)
	first := b.Subscribe()
	second := b.Subscribe()

	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(events.EventTaskCreated, map[string]string{"id": "t-1"})

	for _, sub := range []*events.Subscription{first, second} {
		event := receiveEvent(t, sub.C)
		assert.Equal(t, events.EventTaskCreated, event.Type)
		assert.False(t, event.Timestamp.IsZero())
	}
}

func TestBroadcasterNoReplayForLateSubscribers(t *testing.T) {
	t.Parallel()

	b := newTestBroadcaster(8)
	b.Publish(events.EventTaskCreated, nil)

	sub := b.Subscribe()
	b.Publish(events.EventTaskClaimed, nil)

	event := receiveEvent(t, sub.C)
	assert.Equal(t, events.EventTaskClaimed, event.Type)
}

func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	b := newTestBroadcaster(8)
	sub := b.Subscribe()

	b.Unsubscribe(sub.ID)
	assert.Equal(t, 0, b.SubscriberCount())

	_, ok := <-sub.C
	assert.False(t, ok, "channel should be closed after unsubscribe")

	// Unsubscribing twice is harmless.
	b.Unsubscribe(sub.ID)
}

func TestBroadcasterDropsWhenSubscriberBufferFull(t *testing.T) {
	t.Parallel()

	b := newTestBroadcaster(1)
	slow := b.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Publish(events.EventTaskCreated, nil)
		b.Publish(events.EventTaskClaimed, nil)
		b.Publish(events.EventTaskCompleted, nil)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// Only the first event fit in the buffer; the rest were dropped.
	event := receiveEvent(t, slow.C)
	assert.Equal(t, events.EventTaskCreated, event.Type)

	select {
	case extra := <-slow.C:
		t.Fatalf("unexpected buffered event %q", extra.Type)
	default:
	}
}

func TestBroadcasterPublishWithoutSubscribers(t *testing.T) {
	t.Parallel()

	b := newTestBroadcaster(8)
	// Must not panic or block.
	b.Publish(events.EventTaskCreated, nil)
}
