package socketsubject

import (
	"encoding/json"
)

// Codec is the interface for value serialization.
// Applications implement it to define their own wire format for a single
// message (e.g., JSON, Protocol Buffers in text form, etc.). Framing is not
// the codec's concern: the subject appends the delimiter after Encode and
// hands Decode exactly one fragment with the delimiter stripped.
type Codec[T any] interface {
	// Encode serializes a value for transmission.
	// The result must not contain the delimiter.
	Encode(v T) ([]byte, error)
	// Decode deserializes one fragment. A failure drops the fragment only.
	Decode(data []byte) (T, error)
}

// JSONCodec encodes values as single-line JSON. It is the default codec.
type JSONCodec[T any] struct{}

// Encode implements Codec.
func (JSONCodec[T]) Encode(v T) ([]byte, error) {
	return json.Marshal(v)
}

// Decode implements Codec.
func (JSONCodec[T]) Decode(data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

// CodecFuncs adapts a pair of functions to the Codec interface.
type CodecFuncs[T any] struct {
	EncodeFunc func(T) ([]byte, error)
	DecodeFunc func([]byte) (T, error)
}

// Encode implements Codec.
func (c CodecFuncs[T]) Encode(v T) ([]byte, error) {
	return c.EncodeFunc(v)
}

// Decode implements Codec.
func (c CodecFuncs[T]) Decode(data []byte) (T, error) {
	return c.DecodeFunc(data)
}
