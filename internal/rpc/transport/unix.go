package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// UnixServer accepts control connections on a unix domain socket.
// The socket is created with 0600 permissions: the control surface is
// local and single-user, there is no network exposure.
type UnixServer struct {
	path string

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]*ConnTransport
	wg       sync.WaitGroup
	closed   bool
}

// NewUnixServer creates a server for the given socket path.
func NewUnixServer(path string) *UnixServer {
	return &UnixServer{
		path:  path,
		conns: make(map[string]*ConnTransport),
	}
}

// Start listens on the socket and calls handler for each connection in its
// own goroutine. A stale socket file from a dead daemon is removed first.
// Start blocks until ctx is cancelled or the listener fails.
func (s *UnixServer) Start(ctx context.Context, handler TransportHandler) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	// A leftover socket from an unclean shutdown blocks the bind. Only
	// remove it when nothing is listening behind it.
	if _, err := os.Stat(s.path); err == nil {
		if conn, err := net.Dial("unix", s.path); err == nil {
			conn.Close()
			return fmt.Errorf("socket %s is already in use", s.path)
		}
		if err := os.Remove(s.path); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
		log.Debug().Str("path", s.path).Msg("removed stale socket")
	}

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	log.Info().Str("path", s.path).Msg("control socket listening")

	go func() {
		<-ctx.Done()
		s.closeListener()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		t := NewConnTransport(conn)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			t.Close()
			return nil
		}
		s.conns[t.ID()] = t
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, t.ID())
				s.mu.Unlock()
			}()
			handler(t)
		}()
	}
}

// Stop closes the listener and every open connection, then waits for the
// handlers to finish or the context to expire.
func (s *UnixServer) Stop(ctx context.Context) error {
	s.closeListener()

	s.mu.Lock()
	for _, t := range s.conns {
		_ = t.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", s.path).Msg("failed to remove socket file")
	}
	return nil
}

// Addr returns the socket path.
func (s *UnixServer) Addr() string {
	return s.path
}

func (s *UnixServer) closeListener() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
}

// ConnTransport implements Transport over a stream connection with
// newline-delimited JSON framing.
type ConnTransport struct {
	id     string
	conn   net.Conn
	reader *bufio.Reader

	done    chan struct{}
	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool
}

// NewConnTransport wraps an accepted connection.
func NewConnTransport(conn net.Conn) *ConnTransport {
	return &ConnTransport{
		id:     GenerateID(),
		conn:   conn,
		reader: bufio.NewReader(conn),
		done:   make(chan struct{}),
	}
}

// ID returns the unique identifier for this transport.
func (t *ConnTransport) ID() string {
	return t.id
}

// Read reads the next newline-delimited message.
func (t *ConnTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-t.done:
		return nil, ErrTransportClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	for {
		line, err := t.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			select {
			case <-t.done:
				return nil, ErrTransportClosed
			default:
			}
			return nil, err
		}

		line = trimCRLF(line)
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
}

// Write sends one newline-delimited message. Writes are serialized so
// concurrent notifications never interleave on the wire.
func (t *ConnTransport) Write(ctx context.Context, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	select {
	case <-t.done:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	_, err := t.conn.Write(append(data, '\n'))
	return err
}

// Close closes the connection.
func (t *ConnTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	return t.conn.Close()
}

// Done returns a channel that's closed when the transport is closed.
func (t *ConnTransport) Done() <-chan struct{} {
	return t.done
}

// Info returns metadata about the connection.
func (t *ConnTransport) Info() TransportInfo {
	return TransportInfo{
		Type:       "unix",
		RemoteAddr: t.conn.RemoteAddr().String(),
		LocalAddr:  t.conn.LocalAddr().String(),
	}
}

// trimCRLF removes a trailing \r\n or \n from a frame.
func trimCRLF(data []byte) []byte {
	if n := len(data); n > 0 && data[n-1] == '\n' {
		data = data[:n-1]
	}
	if n := len(data); n > 0 && data[n-1] == '\r' {
		data = data[:n-1]
	}
	return data
}
