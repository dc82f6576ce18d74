package sockettest

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

// Echo returns a handler that writes back everything it reads.
func Echo() Handler {
	return HandlerFunc(func(conn net.Conn) {
		_, _ = io.Copy(conn, conn)
	})
}

// Send returns a handler that writes each chunk as a separate write, pausing
// between them so the client sees separate reads, then waits for the client
// to hang up.
func Send(pause time.Duration, chunks ...string) Handler {
	return HandlerFunc(func(conn net.Conn) {
		for i, c := range chunks {
			if i > 0 && pause > 0 {
				time.Sleep(pause)
			}
			if _, err := conn.Write([]byte(c)); err != nil {
				return
			}
		}
		_, _ = io.Copy(io.Discard, conn)
	})
}

// Recorder is a handler that keeps everything clients write to it.
type Recorder struct {
	mu   sync.Mutex
	data []byte
}

// Handle implements Handler.
func (r *Recorder) Handle(conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			r.mu.Lock()
			r.data = append(r.data, buf[:n]...)
			r.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// Bytes returns a copy of everything received so far.
func (r *Recorder) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	return bytes.Clone(r.data)
}

// Lines returns the complete newline-terminated lines received so far.
func (r *Recorder) Lines() []string {
	data := r.Bytes()
	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return nil
	}

	var lines []string
	for _, l := range bytes.Split(data[:end], []byte{'\n'}) {
		lines = append(lines, string(l))
	}
	return lines
}

// WaitLines blocks until at least n lines arrived and returns them.
// The test fails if they do not arrive within timeout.
func (r *Recorder) WaitLines(tb testing.TB, n int, timeout time.Duration) []string {
	tb.Helper()

	deadline := time.Now().Add(timeout)
	for {
		lines := r.Lines()
		if len(lines) >= n {
			return lines
		}
		if time.Now().After(deadline) {
			tb.Fatalf("timeout waiting for %d lines, got %d: %q", n, len(lines), lines)
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}
