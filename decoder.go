package socketsubject

import (
	"bytes"
)

// frameDecoder reassembles delimiter-terminated messages from raw reads.
//
// There is no length prefix on the wire, so truncation is guessed: a read
// that filled the whole frame probably cut a message short, and its bytes
// are kept until a later read completes them. The guess is wrong for
// transports whose reads do not fill fixed-size frames; in that case a
// message longer than one read still decodes, because short reads that end
// mid-line are kept as well.
//
// A decoder belongs to one connection generation and is not safe for
// concurrent use.
type frameDecoder[T any] struct {
	codec     Codec[T]
	delimiter byte
	frameSize int
	limit     int // frameSize × maxBufferFrames

	// pending holds undecoded tail data. Never longer than limit.
	pending []byte
	failed  error

	logger  Logger
	metrics *metrics
}

func newFrameDecoder[T any](codec Codec[T], delimiter byte, frameSize, maxBufferFrames int, logger Logger, m *metrics) *frameDecoder[T] {
	return &frameDecoder[T]{
		codec:     codec,
		delimiter: delimiter,
		frameSize: frameSize,
		limit:     frameSize * maxBufferFrames,
		logger:    logger,
		metrics:   m,
	}
}

// feed consumes one chunk and returns the messages it completed, in wire order.
// After a *BufferOverflowError every further call returns the same error.
func (d *frameDecoder[T]) feed(chunk []byte) ([]T, error) {
	if d.failed != nil {
		return nil, d.failed
	}
	if len(chunk) == 0 {
		return nil, nil
	}

	var msgs []T
	if len(d.pending) > 0 {
		msgs = d.parse(d.joined(chunk))
		if len(msgs) == 0 {
			msgs = d.parse(chunk)
		}
	} else {
		msgs = d.parse(chunk)
	}

	if len(msgs) > 0 {
		d.pending = d.pending[:0]
		return msgs, nil
	}

	// A short read that ends on a delimiter held only complete lines, none
	// of which decoded. Nothing in it can be completed later.
	if len(chunk) != d.frameSize && chunk[len(chunk)-1] == d.delimiter {
		d.pending = d.pending[:0]
		return nil, nil
	}

	size := len(d.pending) + len(chunk)
	if size > d.limit {
		d.failed = &BufferOverflowError{Size: size, Limit: d.limit}
		d.pending = nil
		d.metrics.bufferOverflow()
		return nil, d.failed
	}

	d.pending = append(d.pending, chunk...)
	return nil, nil
}

// buffered returns the number of undecoded bytes held.
func (d *frameDecoder[T]) buffered() int {
	return len(d.pending)
}

func (d *frameDecoder[T]) joined(chunk []byte) []byte {
	out := make([]byte, 0, len(d.pending)+len(chunk))
	out = append(out, d.pending...)
	return append(out, chunk...)
}

// parse splits data on the delimiter and decodes every non-empty fragment.
// Fragments that fail to decode are dropped; they never affect their siblings.
func (d *frameDecoder[T]) parse(data []byte) []T {
	var msgs []T
	for _, frag := range bytes.Split(data, []byte{d.delimiter}) {
		if len(frag) == 0 {
			continue
		}

		v, err := d.codec.Decode(frag)
		if err != nil {
			d.logger.Debug("fragment dropped", "error", &DecodeError{Fragment: frag, Err: err})
			d.metrics.fragmentDropped()
			continue
		}

		msgs = append(msgs, v)
	}

	d.metrics.messagesDecoded(len(msgs))
	return msgs
}
