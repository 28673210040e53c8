// Package packet implements the packet-construction core: a single growable
// byte buffer composed as a stack of layers, each a bounds-checked
// (offset, length) window into the shared bytes. Layers never hold raw
// pointers into the buffer, so resizing cannot leave a dangling view.
package packet

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacity is returned when a resize would exceed the buffer's
	// configured maximum size.
	ErrCapacity = errors.New("buffer capacity exceeded")

	// ErrOutOfBounds is returned when a layer view falls outside the
	// buffer's current length.
	ErrOutOfBounds = errors.New("segment out of buffer bounds")
)

// Buffer is the single owned byte container shared by all layers of a
// stack. It starts empty and grows as layers and payload are added.
type Buffer struct {
	data []byte
	max  int
}

// NewBuffer returns an empty buffer. A max of zero means unbounded.
func NewBuffer(max int) *Buffer {
	return &Buffer{max: max}
}

// Len returns the current buffer length in bytes.
func (b *Buffer) Len() int { return len(b.data) }

// Bytes returns the underlying bytes. The slice aliases the buffer and is
// invalidated by the next Resize.
func (b *Buffer) Bytes() []byte { return b.data }

// Resize grows or shrinks the buffer to n bytes. Grown bytes are zeroed.
func (b *Buffer) Resize(n int) error {
	if n < 0 {
		return fmt.Errorf("invalid buffer length %d", n)
	}
	if b.max > 0 && n > b.max {
		return fmt.Errorf("%w: want %d bytes, limit is %d", ErrCapacity, n, b.max)
	}

	if n <= len(b.data) {
		b.data = b.data[:n]
		return nil
	}
	if n <= cap(b.data) {
		grown := b.data[len(b.data):n]
		for i := range grown {
			grown[i] = 0
		}
		b.data = b.data[:n]
		return nil
	}

	data := make([]byte, n)
	copy(data, b.data)
	b.data = data
	return nil
}

// Slice returns the n bytes starting at off, bounds-checked against the
// current length. The slice aliases the buffer.
func (b *Buffer) Slice(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(b.data) {
		return nil, fmt.Errorf("%w: [%d, %d) of %d", ErrOutOfBounds, off, off+n, len(b.data))
	}
	return b.data[off : off+n], nil
}
