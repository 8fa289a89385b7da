package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

const sendQueueSize = 64

// Client is one authenticated websocket connection. Writes go through the
// send queue so a single writer goroutine owns the connection.
type Client struct {
	UserID      uint
	SessionID   uint
	Username    string
	DisplayName string

	conn      *websocket.Conn
	send      chan any
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan any, sendQueueSize),
		done: make(chan struct{}),
	}
}

// Enqueue queues a message for delivery. It never blocks: when the client
// is gone or its queue is full the message is dropped and false returned.
func (c *Client) Enqueue(msg any) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Close marks the client dead and closes the underlying connection. Safe to
// call from any goroutine, any number of times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Done is closed once the client is shut down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Registry tracks the live connection per user. A user has at most one
// connection: registering a new one displaces and closes the previous.
type Registry struct {
	mu      sync.RWMutex
	clients map[uint]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[uint]*Client)}
}

// Register installs client as the user's live connection and returns the
// displaced one, if any. The caller closes the displaced connection.
func (r *Registry) Register(client *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.clients[client.UserID]
	r.clients[client.UserID] = client
	return previous
}

// Unregister removes client only if it is still the user's current
// connection, so a stale connection cannot evict its replacement.
func (r *Registry) Unregister(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clients[client.UserID] == client {
		delete(r.clients, client.UserID)
	}
}

// Lookup returns the user's live connection.
func (r *Registry) Lookup(userID uint) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[userID]
	return client, ok
}

// SessionID reports the durable session row backing the user's live
// connection, or zero when the user is not connected. Implements
// presence.SessionLocator for the periodic flush job.
func (r *Registry) SessionID(userID uint) uint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if client, ok := r.clients[userID]; ok {
		return client.SessionID
	}
	return 0
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}
