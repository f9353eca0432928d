// Package i3 implements the i3/sway IPC protocol: request/response
// messages framed with the "i3-ipc" magic header, plus the event
// subscription stream.
package i3

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"i3pm/internal/domain"
)

// IPC message types.
const (
	msgRunCommand    = 0
	msgGetWorkspaces = 1
	msgSubscribe     = 2
	msgGetOutputs    = 3
	msgGetTree       = 4
	msgGetVersion    = 7
)

var ipcMagic = []byte("i3-ipc")

const headerLen = 14 // magic(6) + length(4) + type(4)

// DefaultTimeout bounds a single request/response round trip when the
// caller's context carries no deadline.
const DefaultTimeout = 3 * time.Second

// SocketPath resolves the WM IPC socket path from the environment.
func SocketPath() (string, error) {
	if p := os.Getenv("I3SOCK"); p != "" {
		return p, nil
	}
	if p := os.Getenv("SWAYSOCK"); p != "" {
		return p, nil
	}
	return "", fmt.Errorf("neither I3SOCK nor SWAYSOCK is set")
}

// Client is a connection to the window manager's IPC socket for
// request/response traffic. Event subscriptions use their own connection,
// see Subscribe.
type Client struct {
	socketPath string
	timeout    time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// NewClient creates a client for the given socket path. Pass an empty path
// to resolve it from the environment.
func NewClient(socketPath string) (*Client, error) {
	if socketPath == "" {
		p, err := SocketPath()
		if err != nil {
			return nil, err
		}
		socketPath = p
	}
	return &Client{socketPath: socketPath, timeout: DefaultTimeout}, nil
}

// SetTimeout overrides the per-round-trip deadline. Values <= 0 keep the
// default.
func (c *Client) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

// Connect dials the request connection. Safe to call again after a
// transport failure to re-establish it.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return domain.NewWMError("connect", fmt.Errorf("%w: %v", domain.ErrWMUnavailable, err))
	}
	c.conn = conn
	return nil
}

// Close closes the request connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// roundTrip sends one request and reads one reply on the shared request
// connection. The connection is poisoned (closed) on any transport error so
// the next call re-dials instead of desyncing on a half-read frame.
func (c *Client) roundTrip(ctx context.Context, msgType uint32, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		conn, err := net.Dial("unix", c.socketPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrWMUnavailable, err)
		}
		c.conn = conn
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	if err := writeMessage(c.conn, msgType, payload); err != nil {
		c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("%w: %v", domain.ErrWMUnavailable, err)
	}

	_, resp, err := readMessage(c.conn)
	if err != nil {
		c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("%w: %v", domain.ErrWMUnavailable, err)
	}
	return resp, nil
}

func writeMessage(w io.Writer, msgType uint32, payload []byte) error {
	msg := make([]byte, headerLen+len(payload))
	copy(msg[0:6], ipcMagic)
	binary.LittleEndian.PutUint32(msg[6:10], uint32(len(payload)))
	binary.LittleEndian.PutUint32(msg[10:14], msgType)
	copy(msg[headerLen:], payload)
	_, err := w.Write(msg)
	return err
}

func readMessage(r io.Reader) (msgType uint32, payload []byte, err error) {
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	if string(header[0:6]) != string(ipcMagic) {
		return 0, nil, fmt.Errorf("bad IPC magic %q", header[0:6])
	}
	length := binary.LittleEndian.Uint32(header[6:10])
	msgType = binary.LittleEndian.Uint32(header[10:14])

	payload = make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, err
		}
	}
	return msgType, payload, nil
}

// GetTree returns the full layout tree.
func (c *Client) GetTree(ctx context.Context) (*Node, error) {
	resp, err := c.roundTrip(ctx, msgGetTree, nil)
	if err != nil {
		return nil, domain.NewWMError("get_tree", err)
	}
	var root Node
	if err := json.Unmarshal(resp, &root); err != nil {
		return nil, domain.NewWMError("get_tree", fmt.Errorf("decode tree: %w", err))
	}
	return &root, nil
}

// Workspace is one entry from GET_WORKSPACES.
type Workspace struct {
	Num     int    `json:"num"`
	Name    string `json:"name"`
	Focused bool   `json:"focused"`
	Visible bool   `json:"visible"`
	Output  string `json:"output"`
}

// GetWorkspaces returns the current workspace list.
func (c *Client) GetWorkspaces(ctx context.Context) ([]Workspace, error) {
	resp, err := c.roundTrip(ctx, msgGetWorkspaces, nil)
	if err != nil {
		return nil, domain.NewWMError("get_workspaces", err)
	}
	var workspaces []Workspace
	if err := json.Unmarshal(resp, &workspaces); err != nil {
		return nil, domain.NewWMError("get_workspaces", fmt.Errorf("decode workspaces: %w", err))
	}
	return workspaces, nil
}

// Output is one entry from GET_OUTPUTS.
type Output struct {
	Name    string `json:"name"`
	Active  bool   `json:"active"`
	Primary bool   `json:"primary"`
	Rect    Rect   `json:"rect"`
}

// GetOutputs returns the current output list.
func (c *Client) GetOutputs(ctx context.Context) ([]Output, error) {
	resp, err := c.roundTrip(ctx, msgGetOutputs, nil)
	if err != nil {
		return nil, domain.NewWMError("get_outputs", err)
	}
	var outputs []Output
	if err := json.Unmarshal(resp, &outputs); err != nil {
		return nil, domain.NewWMError("get_outputs", fmt.Errorf("decode outputs: %w", err))
	}
	return outputs, nil
}

// CommandResult is the per-command outcome of RUN_COMMAND. The WM executes
// semicolon-joined commands sequentially and reports one result each, in
// order.
type CommandResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RunCommand executes one or more semicolon-joined WM commands.
func (c *Client) RunCommand(ctx context.Context, cmd string) ([]CommandResult, error) {
	resp, err := c.roundTrip(ctx, msgRunCommand, []byte(cmd))
	if err != nil {
		return nil, domain.NewWMError("run_command", err)
	}
	var results []CommandResult
	if err := json.Unmarshal(resp, &results); err != nil {
		return nil, domain.NewWMError("run_command", fmt.Errorf("decode command results: %w", err))
	}
	return results, nil
}

// GetVersion performs a version round trip, used as a liveness probe.
func (c *Client) GetVersion(ctx context.Context) error {
	if _, err := c.roundTrip(ctx, msgGetVersion, nil); err != nil {
		return domain.NewWMError("get_version", err)
	}
	return nil
}

// JoinCommands builds a single batched command string from per-window
// directives.
func JoinCommands(cmds []string) string {
	return strings.Join(cmds, "; ")
}
