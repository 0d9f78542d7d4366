package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phrazzld/taskrelay/internal/events"
)

const (
	// wsWriteTimeout bounds how long a single frame write may take before
	// the subscriber is considered gone.
	wsWriteTimeout = 10 * time.Second

	// wsPingInterval keeps idle connections alive through proxies.
	wsPingInterval = 30 * time.Second

	// wsPongTimeout is how long a connection may go without answering a
	// ping before it is closed.
	wsPongTimeout = 60 * time.Second
)

// EventsHandler upgrades GET /events to a WebSocket and pumps broker events
// to the client. Subscribers receive only events published after they
// connect, preceded by a handshake frame confirming the connection.
type EventsHandler struct {
	broadcaster *events.Broadcaster
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// NewEventsHandler creates a new EventsHandler over the given broadcaster.
func NewEventsHandler(broadcaster *events.Broadcaster, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		broadcaster: broadcaster,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Producers and consumers are local processes, not browsers;
			// same-origin enforcement does not apply here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "events_handler"),
	}
}

// ServeHTTP handles GET /events requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Debug("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	sub := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(sub.ID)

	h.logger.Info("event subscriber connected",
		"subscriber_id", sub.ID,
		"remote_addr", r.RemoteAddr)

	// Reader goroutine: the client never sends application data, but we
	// must drain control frames and notice the connection closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	handshake := events.NewEvent(events.EventConnected, map[string]string{
		"subscriber_id": sub.ID.String(),
	})
	if err := h.writeEvent(conn, handshake); err != nil {
		h.logger.Debug("failed to send handshake", "subscriber_id", sub.ID, "error", err)
		_ = conn.Close()
		return
	}

	pinger := time.NewTicker(wsPingInterval)
	defer pinger.Stop()
	defer func() { _ = conn.Close() }()

	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			if err := h.writeEvent(conn, event); err != nil {
				h.logger.Debug("event write failed, dropping subscriber",
					"subscriber_id", sub.ID, "error", err)
				return
			}
		case <-pinger.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *EventsHandler) writeEvent(conn *websocket.Conn, event events.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(event)
}
