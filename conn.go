package socketsubject

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ConnectionState describes the socket of a subject.
type ConnectionState int

const (
	// Idle means there is no socket.
	Idle ConnectionState = iota
	// Connecting means a dial is in flight.
	Connecting
	// Open means the socket is connected and pushes are written directly.
	Open
	// Closing means the socket is being torn down.
	Closing
)

func (s ConnectionState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// errGenerationEnded is returned by writes to a generation that was torn
// down locally. The value is still in the replay log.
var errGenerationEnded = errors.New("connection ended locally")

// generation is one connect, open, close cycle of a subject. It owns the
// socket, the frame decoder and the output channel of that cycle.
type generation[T any] struct {
	id      uint64
	subject *Subject[T]
	output  *outputChannel[T]
	decoder *frameDecoder[T]
	logger  Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	conn    net.Conn
	state   ConnectionState
	ended   bool  // torn down locally
	failure error // first fatal error raised by this side
}

func newGeneration[T any](s *Subject[T], id uint64) *generation[T] {
	ctx, cancel := context.WithCancel(s.ctx)
	logger := withAttrs(s.opts.logger, "target", s.target.String(), "generation", id)
	return &generation[T]{
		id:      id,
		subject: s,
		output:  newOutputChannel[T](),
		decoder: newFrameDecoder(s.codec, s.opts.delimiter, s.opts.frameSize, s.opts.maxBufferFrames, logger, s.metrics),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		state:   Connecting,
	}
}

// run dials, opens, reads until the socket goes away and reports the close.
// It is the only goroutine delivering events of this generation, so
// observers see them in order.
func (g *generation[T]) run() {
	s := g.subject
	s.metrics.connectionAttempt()
	g.logger.Debug("connecting")

	conn, err := s.opts.dialer.DialContext(g.ctx, s.target.Network, s.target.Address)
	if err != nil {
		g.finish(errors.Wrap(err, "dial"))
		return
	}

	g.mu.Lock()
	if g.ended {
		g.mu.Unlock()
		conn.Close()
		g.finish(nil)
		return
	}
	g.conn = conn
	g.state = Open
	g.mu.Unlock()

	g.logger.Info("connection established", "addr", conn.RemoteAddr())
	g.logger.Debug("connection options",
		"frame_size", s.opts.frameSize,
		"max_buffer_frames", s.opts.maxBufferFrames)

	if s.opts.openObserver != nil {
		s.opts.openObserver.Notify(struct{}{})
	}

	if err = s.log.drain(g); err != nil {
		conn.Close()
		g.finish(err)
		return
	}
	if g.isEnded() {
		s.log.detach(g)
	}

	group, child := errgroup.WithContext(g.ctx)

	group.Go(func() error {
		return g.readLoop(child)
	})

	group.Go(func() error {
		<-child.Done()
		conn.Close()
		return child.Err()
	})

	err = group.Wait()
	g.finish(err)
}

// readLoop reads frames and hands decoded messages to the output channel.
// Returns when the context is canceled or the socket fails.
func (g *generation[T]) readLoop(ctx context.Context) error {
	buf := make([]byte, g.subject.opts.frameSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			n, err := g.conn.Read(buf)
			if n > 0 {
				g.subject.metrics.read(n)

				chunk := make([]byte, n)
				copy(chunk, buf[:n])

				msgs, ferr := g.decoder.feed(chunk)
				for _, msg := range msgs {
					g.output.next(msg)
				}
				if ferr != nil {
					g.fail(ferr)
					return ferr
				}
			}

			if err != nil {
				g.logger.Debug("read error", "error", err)
				return err
			}
		}
	}
}

// Write writes p to the socket. The replay log writes through the
// generation so a failed write tears the generation down.
func (g *generation[T]) Write(p []byte) (int, error) {
	n, err := g.conn.Write(p)
	if err == nil {
		return n, nil
	}

	if g.isEnded() {
		return n, errGenerationEnded
	}

	g.logger.Debug("write error", "error", err)
	g.fail(&ConnectionError{Target: g.subject.target, Err: err})
	return n, err
}

// fail records err as the reason this generation ends and closes the socket.
func (g *generation[T]) fail(err error) {
	g.mu.Lock()
	if g.failure == nil && !g.ended {
		g.failure = err
	}
	conn := g.conn
	g.state = Closing
	g.mu.Unlock()

	g.cancel()
	if conn != nil {
		conn.Close()
	}
}

// end tears the generation down locally without waiting for the peer.
// The close notifier and terminal signal follow from run.
func (g *generation[T]) end() {
	g.mu.Lock()
	if g.ended {
		g.mu.Unlock()
		return
	}
	g.ended = true
	g.state = Closing
	conn := g.conn
	g.mu.Unlock()

	g.cancel()
	if conn != nil {
		conn.Close()
	}
	g.subject.log.detach(g)
}

func (g *generation[T]) isEnded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.ended
}

func (g *generation[T]) currentState() ConnectionState {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.state
}

// finish resets the subject, notifies the close observer and sends the
// terminal signal to this generation's observers.
func (g *generation[T]) finish(cause error) {
	s := g.subject

	g.mu.Lock()
	ended := g.ended
	failure := g.failure
	g.state = Closing
	g.mu.Unlock()

	g.cancel()
	s.log.detach(g)
	s.release(g)

	var terminal error
	switch {
	case failure != nil:
		terminal = failure
	case ended, s.ctx.Err() != nil:
	case cause == nil, errors.Is(cause, io.EOF), errors.Is(cause, context.Canceled):
	default:
		terminal = &ConnectionError{Target: s.target, Err: cause}
	}

	g.mu.Lock()
	g.state = Idle
	g.mu.Unlock()

	hadError := terminal != nil
	if hadError {
		s.metrics.connectionError()
		g.logger.Info("connection closed with error", "error", terminal)
	} else {
		g.logger.Info("connection closed")
	}

	if s.opts.closeObserver != nil {
		s.opts.closeObserver.Notify(hadError)
	}

	if hadError {
		g.output.error(terminal)
	} else {
		g.output.complete()
	}
}
