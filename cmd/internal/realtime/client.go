package realtime

import (
	"sync"

	v1 "lobby/shared/contracts/presence/v1"
)

// Client is one authenticated websocket connection.
//
// Send is never closed by the server; broadcasters may still hold the client after teardown.
// done signals the pumps to stop and Close is idempotent.
type Client struct {
	ID       string
	UserID   string
	Username string
	Send     chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(id, userID, username string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = wsMinSendQueueSize
	}
	return &Client{
		ID:       id,
		UserID:   userID,
		Username: username,
		Send:     make(chan v1.Envelope, sendQueueSize),
		done:     make(chan struct{}),
	}
}

// HandleID identifies the connection inside the presence registry.
func (c *Client) HandleID() string { return c.ID }

// Enqueue offers env without blocking. It reports false when the client is closing or its queue is full.
func (c *Client) Enqueue(env v1.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- env:
		return true
	default:
		return false
	}
}

// Done is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
