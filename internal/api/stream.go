package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SessionEvent describes websocket payloads emitted as a session's workflow
// progresses.
type SessionEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Message   string    `json:"message,omitempty"`
	ElapsedMs int64     `json:"elapsed_ms,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Event types broadcast by the workflow handlers.
const (
	EventPackageCommitted = "package_committed"
	EventScriptGenerated  = "script_generated"
)

// wsClient wraps a websocket connection with write locking.
type wsClient struct {
	conn    *websocket.Conn
	session string
	mu      sync.Mutex
}

// SessionNotifier tracks active websocket clients and broadcasts workflow
// events to the clients watching the matching session.
type SessionNotifier struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewSessionNotifier constructs a notifier instance.
func NewSessionNotifier() *SessionNotifier {
	return &SessionNotifier{clients: make(map[*wsClient]struct{})}
}

// Register attaches a websocket connection scoped to one session.
func (n *SessionNotifier) Register(conn *websocket.Conn, session string) *wsClient {
	client := &wsClient{conn: conn, session: session}
	n.mu.Lock()
	n.clients[client] = struct{}{}
	n.mu.Unlock()
	return client
}

// Unregister removes the websocket client and closes the socket.
func (n *SessionNotifier) Unregister(client *wsClient) {
	if client == nil {
		return
	}
	n.mu.Lock()
	delete(n.clients, client)
	n.mu.Unlock()
	_ = client.conn.Close()
}

// Broadcast sends the event to every client registered for its session.
func (n *SessionNotifier) Broadcast(event SessionEvent) {
	event.Timestamp = time.Now().UTC()

	n.mu.Lock()
	for client := range n.clients {
		if client.session != event.SessionID {
			continue
		}
		if err := client.writeJSON(event); err != nil {
			delete(n.clients, client)
			_ = client.conn.Close()
		}
	}
	n.mu.Unlock()
}

func (c *wsClient) writeJSON(payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(payload)
}
