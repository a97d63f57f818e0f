package wsrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// Handler answers an inbound request (one the peer initiated) with either a
// response payload or an error.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// Conn is one duplex RPC connection over a websocket, usable to both issue
// outbound calls and dispatch inbound ones — the shape spec.md §3 calls a
// "Worker Stub" when the master holds it, and what a worker holds to reach
// back into the master's RPC surface (spec.md §6).
type Conn struct {
	ws *websocket.Conn

	send     chan Envelope
	handlers map[string]Handler

	mu      sync.Mutex
	pending map[string]chan Envelope
	closed  bool
}

// NewConn wraps an established websocket connection. Call Run to start its
// pumps; Run blocks until the connection closes.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{
		ws:       ws,
		send:     make(chan Envelope, 64),
		handlers: make(map[string]Handler),
		pending:  make(map[string]chan Envelope),
	}
}

// Handle registers the function that answers inbound requests for method.
func (c *Conn) Handle(method string, h Handler) {
	c.handlers[method] = h
}

// Run starts the read and write pumps and blocks until the connection
// closes, mirroring the teacher's Client.readPump/writePump split so reads
// and writes each happen on exactly one goroutine.
func (c *Conn) Run() {
	done := make(chan struct{})
	go func() {
		c.writePump()
		close(done)
	}()
	c.readPump()
	<-done
}

// Call issues an outbound RPC and blocks for the matching response,
// decoding its payload into result (if non-nil). Every outbound RPC in
// spec.md §5 ("every outbound RPC... is asynchronous and suspends") is
// modeled by this call blocking the caller's goroutine, not the pumps.
func (c *Conn) Call(ctx context.Context, method string, req any, result any) error {
	id := uuid.NewString()
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("wsrpc: marshal request: %w", err)
	}

	reply := make(chan Envelope, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("wsrpc: connection closed")
	}
	c.pending[id] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	select {
	case c.send <- Envelope{ID: id, Method: method, Payload: payload}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case env, ok := <-reply:
		if !ok {
			return fmt.Errorf("wsrpc: %s: connection closed", method)
		}
		if env.Err != "" {
			return fmt.Errorf("wsrpc: %s: %s", method, env.Err)
		}
		if result != nil && len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, result); err != nil {
				return fmt.Errorf("wsrpc: unmarshal %s response: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears down the connection. A Conn built without a websocket has
// nothing to close.
func (c *Conn) Close() error {
	if c.ws == nil {
		return nil
	}
	return c.ws.Close()
}

func (c *Conn) readPump() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		for _, ch := range c.pending {
			close(ch)
		}
		c.mu.Unlock()
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("wsrpc: read error", "error", err)
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			slog.Error("wsrpc: malformed envelope", "error", err)
			continue
		}
		if env.Response {
			c.mu.Lock()
			ch, ok := c.pending[env.ID]
			c.mu.Unlock()
			if ok {
				ch <- env
			}
			continue
		}
		go c.dispatch(env)
	}
}

func (c *Conn) dispatch(env Envelope) {
	h, ok := c.handlers[env.Method]
	if !ok {
		c.send <- Envelope{ID: env.ID, Response: true, Err: fmt.Sprintf("unknown method %q", env.Method)}
		return
	}
	result, err := h(context.Background(), env.Payload)
	if err != nil {
		c.send <- Envelope{ID: env.ID, Response: true, Err: err.Error()}
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		c.send <- Envelope{ID: env.ID, Response: true, Err: err.Error()}
		return
	}
	c.send <- Envelope{ID: env.ID, Response: true, Payload: payload}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case env, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
