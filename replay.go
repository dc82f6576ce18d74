package socketsubject

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// replayLog records every pushed value for the subject's lifetime.
//
// Without a writer it only buffers. drain writes the whole log to a new
// connection and then attaches it, so later pushes are written through
// directly. Values are encoded when written, never when pushed.
type replayLog[T any] struct {
	codec     Codec[T]
	delimiter byte
	logger    Logger
	metrics   *metrics

	mu      sync.Mutex
	entries []T
	writer  io.Writer
}

func newReplayLog[T any](codec Codec[T], delimiter byte, logger Logger, m *metrics) *replayLog[T] {
	return &replayLog[T]{
		codec:     codec,
		delimiter: delimiter,
		logger:    logger,
		metrics:   m,
	}
}

// push appends v and, when a writer is attached, writes it.
// The value stays in the log even if the write fails.
func (l *replayLog[T]) push(v T) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, v)
	l.metrics.logSize(len(l.entries))

	if l.writer == nil {
		return nil
	}

	return l.write(l.writer, v)
}

// drain writes every logged value to w in push order, then attaches w.
// Pushes wait for the drain, so none can overtake a logged value.
// Values that fail to encode are skipped; a write error aborts the drain
// and leaves the log detached.
func (l *replayLog[T]) drain(w io.Writer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	replayed := 0
	for _, v := range l.entries {
		if err := l.write(w, v); err != nil {
			var ee *encodeError
			if errors.As(err, &ee) {
				l.logger.Warn("skipping value on replay", "error", err)
				continue
			}
			return err
		}
		replayed++
	}
	l.metrics.replay(replayed)

	l.writer = w
	return nil
}

// detach returns the log to buffer-only mode if w is still attached.
func (l *replayLog[T]) detach(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == w {
		l.writer = nil
	}
}

// attached reports whether pushes are currently written through.
func (l *replayLog[T]) attached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.writer != nil
}

// len returns the number of logged values.
func (l *replayLog[T]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

// write encodes v and writes it with its delimiter in a single call.
func (l *replayLog[T]) write(w io.Writer, v T) error {
	data, err := l.codec.Encode(v)
	if err != nil {
		return &encodeError{err: err}
	}

	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, data...)
	frame = append(frame, l.delimiter)

	n, err := w.Write(frame)
	l.metrics.written(n)
	if err != nil {
		return errors.Wrap(err, "write value")
	}

	return nil
}

// encodeError marks a codec failure, as opposed to a transport failure.
type encodeError struct {
	err error
}

func (e *encodeError) Error() string {
	return "encode value: " + e.err.Error()
}

func (e *encodeError) Unwrap() error {
	return e.err
}
