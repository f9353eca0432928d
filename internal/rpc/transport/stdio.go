package transport

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"
)

// StdioTransport serves the control protocol over stdin/stdout with the
// same newline framing the socket transport uses. It lets a supervisor or
// a script drive the daemon without touching the socket.
type StdioTransport struct {
	id     string
	reader *bufio.Reader
	writer io.Writer

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewStdioTransport wraps the process's stdin and stdout.
func NewStdioTransport() *StdioTransport {
	return NewStdioPipe(os.Stdin, os.Stdout)
}

// NewStdioPipe builds the transport over an arbitrary reader/writer pair.
func NewStdioPipe(r io.Reader, w io.Writer) *StdioTransport {
	return &StdioTransport{
		id:     "stdio",
		reader: bufio.NewReader(r),
		writer: w,
		done:   make(chan struct{}),
	}
}

// ID implements Transport.
func (t *StdioTransport) ID() string {
	return t.id
}

// Read returns the next newline-delimited message, skipping blank lines.
func (t *StdioTransport) Read(ctx context.Context) ([]byte, error) {
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
			return nil, err
		}
		line = trimCRLF(line)
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
}

// Write sends one newline-delimited message.
func (t *StdioTransport) Write(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	_, err := t.writer.Write(append(data, '\n'))
	return err
}

// Close marks the transport closed. stdin/stdout themselves stay open,
// they may be shared with logging.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	return nil
}

// Done implements Transport.
func (t *StdioTransport) Done() <-chan struct{} {
	return t.done
}

// Info returns metadata about the stdio transport.
func (t *StdioTransport) Info() TransportInfo {
	return TransportInfo{Type: "stdio"}
}
