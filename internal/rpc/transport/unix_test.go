package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startServer(t *testing.T, path string) (*UnixServer, chan Transport) {
	t.Helper()
	srv := NewUnixServer(path)
	accepted := make(chan Transport, 4)

	errCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		errCh <- srv.Start(ctx, func(tr Transport) {
			accepted <- tr
			<-tr.Done()
		})
	}()
	t.Cleanup(func() {
		cancel()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
		defer stopCancel()
		_ = srv.Stop(stopCtx)
		if err := <-errCh; err != nil {
			t.Errorf("Start() returned %v", err)
		}
	})

	waitForSocket(t, path)
	return srv, accepted
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("socket %s never appeared", path)
}

func TestUnixServer_AcceptAndFraming(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipc.sock")
	_, accepted := startServer(t, path)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	var tr Transport
	select {
	case tr = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("connection never reached the handler")
	}
	if tr.ID() == "" {
		t.Error("transport must get a generated ID")
	}

	// Client to server: one JSON line, blank lines skipped.
	if _, err := conn.Write([]byte("\r\n{\"jsonrpc\":\"2.0\",\"method\":\"daemon.status\"}\n")); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := tr.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(msg) != `{"jsonrpc":"2.0","method":"daemon.status"}` {
		t.Errorf("Read() = %q", msg)
	}

	// Server to client: newline-terminated.
	if err := tr.Write(ctx, []byte(`{"jsonrpc":"2.0","result":{}}`)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("client read error = %v", err)
	}
	if line != `{"jsonrpc":"2.0","result":{}}`+"\n" {
		t.Errorf("client got %q", line)
	}
}

func TestUnixServer_SocketPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipc.sock")
	startServer(t, path)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket permissions = %o, want 0600", perm)
	}
}

func TestUnixServer_RemovesStaleSocket(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ipc.sock")

	// A dead daemon's leftover socket file: nothing listens behind it.
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatal(err)
	}

	_, accepted := startServer(t, path)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial after stale takeover failed: %v", err)
	}
	defer conn.Close()
	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted after removing the stale socket")
	}
}

func TestUnixServer_RefusesLiveSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipc.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	srv := NewUnixServer(path)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Start(ctx, func(Transport) {}); err == nil {
		t.Error("a socket with a live listener must not be taken over")
	}
}

func TestUnixServer_StopRemovesSocketFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipc.sock")
	srv := NewUnixServer(path)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx, func(tr Transport) { <-tr.Done() }) }()
	waitForSocket(t, path)

	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := srv.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Start() returned %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("socket file must be removed on Stop")
	}
}

func TestConnTransport_CloseUnblocksAndFlags(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	tr := NewConnTransport(server)

	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	select {
	case <-tr.Done():
	default:
		t.Error("Done() must be closed after Close()")
	}

	ctx := context.Background()
	if _, err := tr.Read(ctx); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Read() after close = %v, want ErrTransportClosed", err)
	}
	if err := tr.Write(ctx, []byte("x")); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Write() after close = %v, want ErrTransportClosed", err)
	}
}
