package api_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phrazzld/taskrelay/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialEvents(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event events.Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestEventsStreamHandshakeAndDelivery(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	server := httptest.NewServer(e.handler)
	defer server.Close()

	conn := dialEvents(t, server)
	defer conn.Close()

	handshake := readEvent(t, conn)
	assert.Equal(t, events.EventConnected, handshake.Type)

	// Wait for the subscription to register before publishing.
	require.Eventually(t, func() bool {
		return e.broadcaster.SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	e.broadcaster.Publish(events.EventTaskCreated, map[string]string{"id": "t-1"})

	event := readEvent(t, conn)
	assert.Equal(t, events.EventTaskCreated, event.Type)
	assert.False(t, event.Timestamp.IsZero())
}

func TestEventsStreamSeesBrokerTransitions(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	server := httptest.NewServer(e.handler)
	defer server.Close()

	conn := dialEvents(t, server)
	defer conn.Close()

	handshake := readEvent(t, conn)
	require.Equal(t, events.EventConnected, handshake.Type)

	require.Eventually(t, func() bool {
		return e.broadcaster.SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	// Submitting over HTTP must surface on the stream.
	rec := e.do(t, "POST", "/tasks", map[string]string{
		"content": "explain the build log",
	})
	require.Equal(t, 201, rec.Code)

	event := readEvent(t, conn)
	assert.Equal(t, events.EventTaskCreated, event.Type)
}

func TestEventsStreamDisconnectCleansUp(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	server := httptest.NewServer(e.handler)
	defer server.Close()

	conn := dialEvents(t, server)
	_ = readEvent(t, conn)

	require.Eventually(t, func() bool {
		return e.broadcaster.SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return e.broadcaster.SubscriberCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
