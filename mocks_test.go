package tftp

import (
	"bytes"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

type datagram struct {
	data []byte
	addr net.Addr
}

// fakeConn is an in-memory net.PacketConn. Reads on an empty queue time
// out immediately.
type fakeConn struct {
	mu     sync.Mutex
	in     []datagram
	out    []datagram
	closed bool
	// writeErr, when set, fails every WriteTo.
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{}
}

func udpAddr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func (c *fakeConn) push(port int, raw []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.in = append(c.in, datagram{data: raw, addr: udpAddr(port)})
}

// pushMessage serializes msg as if port had sent it.
func (c *fakeConn) pushMessage(port int, msg message) {
	b := newBuffer(bufferSize)
	if err := serializeMessage(b, msg); err != nil {
		panic(err)
	}
	c.push(port, append([]byte(nil), b.bytes()...))
}

func (c *fakeConn) sent() []datagram {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]datagram(nil), c.out...)
}

// lastSent decodes the most recent datagram written to the conn.
func (c *fakeConn) lastSent() (message, net.Addr) {
	out := c.sent()
	if len(out) == 0 {
		return dudMessage, nil
	}
	last := out[len(out)-1]
	return parseMessage(bufferOf(last.data)), last.addr
}

func (c *fakeConn) ReadFrom(p []byte) (int, net.Addr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, nil, net.ErrClosed
	}
	if len(c.in) == 0 {
		return 0, nil, os.ErrDeadlineExceeded
	}

	d := c.in[0]
	c.in = c.in[1:]
	return copy(p, d.data), d.addr, nil
}

func (c *fakeConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, net.ErrClosed
	}
	if c.writeErr != nil {
		return 0, c.writeErr
	}

	c.out = append(c.out, datagram{data: append([]byte(nil), p...), addr: addr})
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) LocalAddr() net.Addr              { return udpAddr(69) }
func (c *fakeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

// memFile records whether it was closed.
type memFile struct {
	io.Reader
	io.Writer
	closed bool
}

func (f *memFile) Close() error {
	f.closed = true
	return nil
}

// memStorage is an in-memory Storage. Written files become visible in
// files once their transfer writes them.
type memStorage struct {
	files   map[string]*bytes.Buffer
	opened  []*memFile
	failDst io.Writer
}

func newMemStorage() *memStorage {
	return &memStorage{files: make(map[string]*bytes.Buffer)}
}

func (s *memStorage) add(name string, data []byte) {
	s.files[name] = bytes.NewBuffer(data)
}

func (s *memStorage) OpenRead(name string) (io.ReadCloser, error) {
	buf, ok := s.files[name]
	if !ok {
		return nil, newErrorPacket(errNotFound, "file not found")
	}
	f := &memFile{Reader: bytes.NewReader(buf.Bytes())}
	s.opened = append(s.opened, f)
	return f, nil
}

func (s *memStorage) OpenWrite(name string) (io.WriteCloser, error) {
	if _, ok := s.files[name]; ok {
		return nil, newErrorPacket(errAlreadyExists, "file already exists")
	}
	buf := new(bytes.Buffer)
	s.files[name] = buf

	var w io.Writer = buf
	if s.failDst != nil {
		w = s.failDst
	}
	f := &memFile{Writer: w}
	s.opened = append(s.opened, f)
	return f, nil
}
