package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Zereker/socketsubject"
	"github.com/Zereker/socketsubject/internal/sockettest"
)

type message struct {
	Seq  int    `json:"seq"`
	Text string `json:"text"`
}

func main() {
	dir, err := os.MkdirTemp("", "echo")
	if err != nil {
		slog.Error("failed to create socket dir", "error", err)
		return
	}
	defer os.RemoveAll(dir)

	server, err := sockettest.Listen("unix", filepath.Join(dir, "echo.sock"))
	if err != nil {
		slog.Error("failed to create server", "error", err)
		return
	}
	defer server.Close()

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := server.Serve(ctx, sockettest.Echo()); err != nil {
			slog.Error("server error", "error", err)
		}
	}()

	subject, err := socketsubject.NewWithContext[message](ctx, socketsubject.UnixTarget(server.Address()),
		socketsubject.OpenObserverOption(socketsubject.NotifyFunc[struct{}](func(struct{}) {
			slog.Info("connected")
		})),
		socketsubject.CloseObserverOption(socketsubject.NotifyFunc[bool](func(hadError bool) {
			slog.Info("disconnected", "had_error", hadError)
		})),
	)
	if err != nil {
		slog.Error("failed to create subject", "error", err)
		return
	}
	defer subject.Close()

	// Queued until the connection opens.
	for i := 1; i <= 3; i++ {
		if err := subject.Push(message{Seq: i, Text: "hello"}); err != nil {
			slog.Error("push failed", "error", err)
		}
	}

	done := make(chan struct{})
	received := 0
	sub, err := subject.Subscribe(socketsubject.Observe(
		func(m message) {
			slog.Info("echo", "seq", m.Seq, "text", m.Text)
			received++
			if received == 3 {
				close(done)
			}
		},
		func(err error) { slog.Error("connection failed", "error", err) },
		func() { slog.Info("connection completed") },
	))
	if err != nil {
		slog.Error("subscribe failed", "error", err)
		return
	}
	defer sub.Unsubscribe()

	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		slog.Warn("timed out waiting for echoes")
	}
}
