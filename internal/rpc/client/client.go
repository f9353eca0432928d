// Package client implements the JSON-RPC client the CLI uses to talk to
// the daemon's control socket.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"i3pm/internal/rpc/message"
)

// NotificationHandler receives server-push notifications.
type NotificationHandler func(method string, params []byte)

// Client is a JSON-RPC 2.0 client over a unix domain socket with
// newline-delimited framing.
type Client struct {
	conn      net.Conn
	mu        sync.Mutex
	nextID    int64
	pending   map[int64]chan *message.Response
	pendingMu sync.RWMutex
	onNotify  NotificationHandler
	closeCh   chan struct{}
}

// Dial connects to the daemon socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s (is the daemon running?): %w", socketPath, err)
	}

	c := &Client{
		conn:    conn,
		nextID:  1,
		pending: make(map[int64]chan *message.Response),
		closeCh: make(chan struct{}),
	}

	// Start reading responses in background
	go c.readLoop()

	return c, nil
}

// OnNotification sets the handler for server-push notifications. Must be
// set before the first notification arrives to be useful.
func (c *Client) OnNotification(h NotificationHandler) {
	c.mu.Lock()
	c.onNotify = h
	c.mu.Unlock()
}

// Call makes a JSON-RPC call and waits for the response.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (*message.Response, error) {
	// Generate request ID
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.mu.Unlock()

	req, err := message.NewRequest(message.NumberID(id), method, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	data, err := marshalFramed(req)
	if err != nil {
		return nil, err
	}

	// Create response channel
	respCh := make(chan *message.Response, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	// Send request
	c.mu.Lock()
	_, err = c.conn.Write(data)
	c.mu.Unlock()
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	// Wait for response
	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, fmt.Errorf("connection closed")
		}
		return resp, nil
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, ctx.Err()
	case <-c.closeCh:
		return nil, fmt.Errorf("connection closed")
	}
}

// readLoop reads newline-delimited messages from the socket and routes
// responses to waiting callers; messages without an ID are notifications.
func (c *Client) readLoop() {
	defer close(c.closeCh)

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		// Messages carrying a method are server-push notifications;
		// everything else is a response to one of our calls.
		var probe struct {
			Method string `json:"method"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			continue
		}
		if probe.Method != "" {
			c.dispatchNotification(line)
			continue
		}

		resp, err := message.ParseResponse(line)
		if err != nil || resp.ID == nil {
			continue
		}

		idInt := idToInt64(resp.ID)
		if idInt < 0 {
			continue
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[idInt]
		if ok {
			delete(c.pending, idInt)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- resp
		}
	}

	// Connection gone; fail every waiter.
	c.pendingMu.Lock()
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = make(map[int64]chan *message.Response)
	c.pendingMu.Unlock()
}

func (c *Client) dispatchNotification(line []byte) {
	req, err := message.ParseRequest(line)
	if err != nil || !req.IsNotification() {
		return
	}
	c.mu.Lock()
	h := c.onNotify
	c.mu.Unlock()
	if h != nil {
		h(req.Method, req.Params)
	}
}

func marshalFramed(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return append(data, '\n'), nil
}

// idToInt64 extracts the int64 value from an ID.
// Returns -1 if the ID is not a number.
func idToInt64(id *message.ID) int64 {
	if id == nil {
		return -1
	}
	var n int64
	_, err := fmt.Sscanf(id.String(), "%d", &n)
	if err != nil {
		return -1
	}
	return n
}

// Close closes the socket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
