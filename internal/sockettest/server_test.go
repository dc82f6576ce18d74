package sockettest

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

// mockHandler implements Handler interface for testing
type mockHandler struct {
	mu       sync.Mutex
	conns    []net.Conn
	handleCh chan net.Conn
}

func newMockHandler() *mockHandler {
	return &mockHandler{handleCh: make(chan net.Conn, 10)}
}

func (h *mockHandler) Handle(conn net.Conn) {
	h.mu.Lock()
	h.conns = append(h.conns, conn)
	h.mu.Unlock()

	select {
	case h.handleCh <- conn:
	default:
	}

	// Hold the connection until the peer or the server closes it.
	_, _ = io.Copy(io.Discard, conn)
}

func (h *mockHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func TestListen_InvalidAddr(t *testing.T) {
	server1, err := Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("first Listen failed: %v", err)
	}
	defer server1.Close()

	// Try to listen on the same port - should fail
	_, err = Listen("tcp", server1.Address())
	if err == nil {
		t.Error("expected error for occupied port")
	}
}

func TestServer_Close(t *testing.T) {
	server, err := Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	if err = server.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err = server.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	if _, err = net.Dial("tcp", server.Address()); err == nil {
		t.Error("expected dial error after close")
	}
}

func TestServer_Serve_ContextCanceled(t *testing.T) {
	server, err := Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer server.Close()

	handler := newMockHandler()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, handler)
	}()

	client, err := net.Dial("tcp", server.Address())
	if err != nil {
		t.Fatalf("client dial failed: %v", err)
	}
	defer client.Close()

	select {
	case <-handler.handleCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for handler")
	}

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Serve to return")
	}
}

func TestStartUnix_MultipleConnections(t *testing.T) {
	handler := newMockHandler()
	server := StartUnix(t, handler)

	if server.Network() != "unix" {
		t.Fatalf("network = %q, want unix", server.Network())
	}

	const numClients = 5
	for i := 0; i < numClients; i++ {
		client, err := net.Dial("unix", server.Address())
		if err != nil {
			t.Fatalf("client %d dial failed: %v", i, err)
		}
		defer client.Close()

		select {
		case <-handler.handleCh:
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for handler %d", i)
		}
	}

	if n := server.Accepted(); n != numClients {
		t.Errorf("Accepted = %d, want %d", n, numClients)
	}
	if n := server.Open(); n != numClients {
		t.Errorf("Open = %d, want %d", n, numClients)
	}
	if n := handler.count(); n != numClients {
		t.Errorf("handler received %d connections, want %d", n, numClients)
	}
}

func TestServer_CloseEndsHandlers(t *testing.T) {
	handler := newMockHandler()
	server := StartTCP(t, handler)

	client, err := net.Dial("tcp", server.Address())
	if err != nil {
		t.Fatalf("client dial failed: %v", err)
	}
	defer client.Close()
	<-handler.handleCh

	if err := server.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// The server closed its side; the client reads EOF.
	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := client.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
	if n := server.Open(); n != 0 {
		t.Errorf("Open = %d after Close, want 0", n)
	}
}

func TestEcho(t *testing.T) {
	server := StartUnix(t, Echo())

	client, err := net.Dial("unix", server.Address())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	if _, err := client.Write([]byte("ping\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	buf := make([]byte, 5)
	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.ReadFull(client, buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(buf) != "ping\n" {
		t.Errorf("echo = %q, want ping", buf)
	}
}

func TestRecorder_WaitLines(t *testing.T) {
	recorder := &Recorder{}
	server := StartUnix(t, recorder)

	client, err := net.Dial("unix", server.Address())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	client.Write([]byte("one\ntwo\nthr"))

	lines := recorder.WaitLines(t, 2, 5*time.Second)
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Errorf("lines = %q, want one, two", lines)
	}
}
