package tftp

import (
	"errors"
	"fmt"
)

var (
	errBufferOverrun  = errors.New("tftp: buffer overrun")
	errBufferUnderrun = errors.New("tftp: buffer underrun")
)

// buffer is a fixed capacity byte container that tracks how many bytes are
// in use. It never grows.
type buffer struct {
	data []byte
	n    int
}

func newBuffer(size int) *buffer {
	return &buffer{
		data: make([]byte, size),
	}
}

// reset marks the buffer as empty. Backing memory is left as is.
func (b *buffer) reset() {
	b.n = 0
}

// put copies p into the backing storage at off and extends the used length
// to cover it.
func (b *buffer) put(off int, p []byte) error {
	if off < 0 || off+len(p) > len(b.data) {
		return fmt.Errorf("%w: write of %d bytes at %d, capacity %d", errBufferOverrun, len(p), off, len(b.data))
	}

	copy(b.data[off:], p)
	if end := off + len(p); end > b.n {
		b.n = end
	}
	return nil
}

// view returns n used bytes starting at off. The slice aliases the buffer.
func (b *buffer) view(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > b.n {
		return nil, fmt.Errorf("%w: read of %d bytes at %d, length %d", errBufferUnderrun, n, off, b.n)
	}
	return b.data[off : off+n], nil
}

// space exposes the whole backing storage, used as a receive target.
func (b *buffer) space() []byte {
	return b.data
}

// setLength records how many bytes of the backing storage are valid,
// clamped to the capacity.
func (b *buffer) setLength(n int) {
	switch {
	case n < 0:
		b.n = 0
	case n > len(b.data):
		b.n = len(b.data)
	default:
		b.n = n
	}
}

func (b *buffer) bytes() []byte {
	return b.data[:b.n]
}

func (b *buffer) length() int {
	return b.n
}

func (b *buffer) capacity() int {
	return len(b.data)
}

func (b *buffer) full() bool {
	return b.n >= len(b.data)
}
