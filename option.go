package socketsubject

import (
	"context"
	"net"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Default configuration values.
const (
	// DefaultFrameSize is the default read size and framing heuristic.
	DefaultFrameSize = 8192
	// DefaultMaxBufferFrames bounds the partial-frame buffer to this many frames.
	DefaultMaxBufferFrames = 10
	// DefaultDelimiter terminates every message on the wire.
	DefaultDelimiter byte = '\n'
)

// Target is the address a subject connects to.
type Target struct {
	// Network is "unix" for a filesystem socket or "tcp" for host and port.
	Network string
	// Address is the socket path or "host:port".
	Address string
}

// UnixTarget addresses an interprocess socket by filesystem path.
func UnixTarget(path string) Target {
	return Target{Network: "unix", Address: path}
}

// TCPTarget addresses a TCP endpoint.
func TCPTarget(host string, port int) Target {
	return Target{Network: "tcp", Address: net.JoinHostPort(host, strconv.Itoa(port))}
}

func (t Target) String() string {
	return t.Network + "://" + t.Address
}

// Dialer opens the underlying stream. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Notifier receives fire-and-forget lifecycle notifications.
type Notifier[V any] interface {
	Notify(v V)
}

// NotifyFunc adapts a function to the Notifier interface.
type NotifyFunc[V any] func(V)

// Notify implements Notifier.
func (f NotifyFunc[V]) Notify(v V) {
	f(v)
}

// options holds the configuration for a subject.
type options struct {
	codec  any // Codec[T], checked against T in New
	logger Logger
	dialer Dialer

	openObserver  Notifier[struct{}]
	closeObserver Notifier[bool]

	registerer prometheus.Registerer

	frameSize       int  // bytes per read; a full read suggests truncation
	maxBufferFrames int  // partial-frame bound, in frames
	delimiter       byte // message terminator
	delimiterSet    bool
}

// Option is a function that configures subject options.
type Option func(*options)

// CodecOption returns an Option that sets the value codec.
// T must match the subject's type parameter, otherwise New returns
// ErrInvalidCodec. JSONCodec is used when unset.
func CodecOption[T any](codec Codec[T]) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// FrameSizeOption returns an Option that sets the read size.
// A read that returns exactly this many bytes is treated as a possibly
// truncated message.
func FrameSizeOption(size int) Option {
	return func(o *options) {
		o.frameSize = size
	}
}

// MaxBufferFramesOption returns an Option that bounds the partial-frame
// buffer to frames × frame size bytes.
func MaxBufferFramesOption(frames int) Option {
	return func(o *options) {
		o.maxBufferFrames = frames
	}
}

// DelimiterOption returns an Option that sets the message terminator.
func DelimiterOption(delim byte) Option {
	return func(o *options) {
		o.delimiter = delim
		o.delimiterSet = true
	}
}

// OpenObserverOption returns an Option that sets the notifier invoked when a
// connection opens. Panics raised by it are not recovered.
func OpenObserverOption(n Notifier[struct{}]) Option {
	return func(o *options) {
		o.openObserver = n
	}
}

// CloseObserverOption returns an Option that sets the notifier invoked with
// the "had error" flag when a connection closes.
func CloseObserverOption(n Notifier[bool]) Option {
	return func(o *options) {
		o.closeObserver = n
	}
}

// DialerOption returns an Option that sets the dialer used to open connections.
func DialerOption(d Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// MetricsOption returns an Option that registers Prometheus collectors with reg.
// Metrics are disabled when reg is nil.
func MetricsOption(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// checkOptions validates and sets default values for subject options.
func checkOptions[T any](target Target, opts *options) (Codec[T], error) {
	if target.Network == "" || target.Address == "" {
		return nil, ErrInvalidTarget
	}

	if opts.frameSize <= 0 {
		opts.frameSize = DefaultFrameSize
	}

	if opts.maxBufferFrames <= 0 {
		opts.maxBufferFrames = DefaultMaxBufferFrames
	}

	if !opts.delimiterSet {
		opts.delimiter = DefaultDelimiter
	}

	if opts.dialer == nil {
		opts.dialer = &net.Dialer{}
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.codec == nil {
		return JSONCodec[T]{}, nil
	}

	codec, ok := opts.codec.(Codec[T])
	if !ok {
		return nil, ErrInvalidCodec
	}

	return codec, nil
}
