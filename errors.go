package socketsubject

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errors returned by subject construction and operations.
var (
	// ErrInvalidCodec is returned when the codec does not match the subject's value type.
	ErrInvalidCodec = errors.New("invalid codec")
	// ErrInvalidTarget is returned when the connect target has no network or address.
	ErrInvalidTarget = errors.New("invalid connect target")
	// ErrInvalidObserver is returned when Subscribe is called with a nil observer.
	ErrInvalidObserver = errors.New("invalid observer")
	// ErrSubjectClosed is returned when operating on a closed subject.
	ErrSubjectClosed = errors.New("subject closed")
)

// ConnectionError is delivered to observers when the transport fails: the
// dial did not succeed, a read or write failed, or the peer closed abnormally.
// It is terminal for the connection generation it was raised in.
type ConnectionError struct {
	Target Target
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// BufferOverflowError is delivered to observers when undecodable data keeps
// arriving until the partial-frame buffer would exceed its limit.
type BufferOverflowError struct {
	// Size is the length the buffer would have grown to.
	Size int
	// Limit is frameSize × maxBufferFrames.
	Limit int
}

func (e *BufferOverflowError) Error() string {
	return fmt.Sprintf("partial frame buffer overflow: %d bytes exceeds limit of %d", e.Size, e.Limit)
}

// DecodeError describes a single fragment that failed to deserialize.
// It is only logged; observers never see it.
type DecodeError struct {
	Fragment []byte
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode fragment of %d bytes: %v", len(e.Fragment), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err is, or wraps, a *ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsBufferOverflow reports whether err is, or wraps, a *BufferOverflowError.
func IsBufferOverflow(err error) bool {
	var be *BufferOverflowError
	return errors.As(err, &be)
}
