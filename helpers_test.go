package socketsubject

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type testMsg struct {
	A string `json:"a"`
}

func discardLogger() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// event is one callback received by a chanObserver.
type event[T any] struct {
	kind  string // "next", "error" or "complete"
	value T
	err   error
}

// chanObserver forwards every callback to a channel.
type chanObserver[T any] struct {
	ch chan event[T]
}

func newChanObserver[T any]() *chanObserver[T] {
	return &chanObserver[T]{ch: make(chan event[T], 64)}
}

func (o *chanObserver[T]) Next(v T)        { o.ch <- event[T]{kind: "next", value: v} }
func (o *chanObserver[T]) Error(err error) { o.ch <- event[T]{kind: "error", err: err} }
func (o *chanObserver[T]) Complete()       { o.ch <- event[T]{kind: "complete"} }

func (o *chanObserver[T]) wait(t *testing.T) event[T] {
	t.Helper()

	select {
	case ev := <-o.ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for observer event")
		return event[T]{}
	}
}

// timeline records lifecycle callbacks in the order they happen.
type timeline struct {
	mu     sync.Mutex
	events []string
	signal chan string
}

func newTimeline() *timeline {
	return &timeline{signal: make(chan string, 64)}
}

func (tl *timeline) add(e string) {
	tl.mu.Lock()
	tl.events = append(tl.events, e)
	tl.mu.Unlock()
	tl.signal <- e
}

func (tl *timeline) snapshot() []string {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	return append([]string(nil), tl.events...)
}

// waitFor blocks until e is recorded.
func (tl *timeline) waitFor(t *testing.T, e string) {
	t.Helper()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-tl.signal:
			if got == e {
				return
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %q, have %v", e, tl.snapshot())
		}
	}
}

// eventually polls cond until it holds or the test times out.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
