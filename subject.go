// Package socketsubject turns a unix domain or TCP stream socket into a
// bidirectional message channel.
//
// A Subject connects lazily when the first observer subscribes and
// disconnects when the last one leaves. Values pushed before the connection
// opens are kept in a replay log and written, in order, as soon as it does.
// Incoming bytes are split into delimiter-terminated messages and decoded
// with a pluggable codec (line-delimited JSON by default).
//
// There is no reconnection: when the socket closes, observers of that
// connection receive one terminal Error or Complete, and a later Subscribe
// starts a new connection.
package socketsubject

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Subject is a message-oriented client for one stream socket.
// All methods are safe for concurrent use, including from observer callbacks.
type Subject[T any] struct {
	target  Target
	opts    options
	codec   Codec[T]
	metrics *metrics
	log     *replayLog[T]
	ctx     context.Context

	mu     sync.Mutex
	gen    *generation[T]
	genID  uint64
	closed bool
}

// New creates a subject for target. It does not connect.
// Returns an error if the options are invalid.
func New[T any](target Target, opt ...Option) (*Subject[T], error) {
	return NewWithContext[T](context.Background(), target, opt...)
}

// NewWithContext is like New, but ctx is the parent of every connection's
// context, so every connection ends when ctx is done.
func NewWithContext[T any](ctx context.Context, target Target, opt ...Option) (*Subject[T], error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	codec, err := checkOptions[T](target, &opts)
	if err != nil {
		return nil, err
	}

	m, err := newMetrics(opts.registerer, target)
	if err != nil {
		return nil, err
	}

	logger := withAttrs(opts.logger, "target", target.String())
	return &Subject[T]{
		target:  target,
		opts:    opts,
		codec:   codec,
		metrics: m,
		log:     newReplayLog(codec, opts.delimiter, logger, m),
		ctx:     ctx,
	}, nil
}

// Subscribe attaches obs to the current connection, connecting first if
// there is none. Unsubscribing the last observer closes the connection.
func (s *Subject[T]) Subscribe(obs Observer[T]) (*Subscription, error) {
	if obs == nil {
		return nil, ErrInvalidObserver
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSubjectClosed
	}

	g := s.gen
	start := g == nil
	if start {
		s.genID++
		g = newGeneration(s, s.genID)
		s.gen = g
	}

	// A generation still referenced by s.gen has not been stopped, so add
	// never replays a terminal signal here.
	id, _ := g.output.add(obs)
	s.mu.Unlock()

	if start {
		go g.run()
	}

	return &Subscription{teardown: func() {
		s.leave(g, id)
	}}, nil
}

// Push queues v for writing. While a connection is open v is written
// immediately, otherwise on the next connection. v is kept for replay on
// every later connection. A write error is returned, but v stays queued.
func (s *Subject[T]) Push(v T) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return ErrSubjectClosed
	}

	err := s.log.push(v)
	if errors.Is(err, errGenerationEnded) {
		return nil
	}

	return err
}

// Unsubscribe closes the current connection immediately, whatever the
// number of observers. Remaining observers receive Complete. The subject
// stays usable.
func (s *Subject[T]) Unsubscribe() {
	s.mu.Lock()
	g := s.gen
	s.gen = nil
	s.mu.Unlock()

	if g != nil {
		g.end()
	}
}

// Close closes the current connection and rejects any further Subscribe or
// Push with ErrSubjectClosed. Safe to call multiple times.
func (s *Subject[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	g := s.gen
	s.gen = nil
	s.mu.Unlock()

	if g != nil {
		g.end()
	}

	return nil
}

// State returns the state of the current connection.
func (s *Subject[T]) State() ConnectionState {
	s.mu.Lock()
	g := s.gen
	s.mu.Unlock()

	if g == nil {
		return Idle
	}

	return g.currentState()
}

// Target returns the address the subject connects to.
func (s *Subject[T]) Target() Target {
	return s.target
}

// Logged returns the number of values in the replay log.
// The log is never pruned.
func (s *Subject[T]) Logged() int {
	return s.log.len()
}

// leave detaches an observer and ends g when nobody is left on it.
func (s *Subject[T]) leave(g *generation[T], id uint64) {
	if g.output.remove(id) > 0 {
		return
	}

	s.mu.Lock()
	if s.gen != g || g.output.count() > 0 {
		s.mu.Unlock()
		return
	}
	s.gen = nil
	s.mu.Unlock()

	g.end()
}

// release forgets g if it is still current.
func (s *Subject[T]) release(g *generation[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen == g {
		s.gen = nil
	}
}
