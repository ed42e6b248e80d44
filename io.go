package tftp

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

type packetReader interface {
	Read() (msg message, from net.Addr, err error)
}

// udpPacketReader receives one datagram per Read. Datagrams that fail to
// decode are returned as dudMessage rather than as an error.
type udpPacketReader struct {
	conn    net.PacketConn
	buf     *buffer
	timeout time.Duration
}

func newUDPPacketReader(conn net.PacketConn, bufsize int, timeout time.Duration) *udpPacketReader {
	return &udpPacketReader{
		conn:    conn,
		buf:     newBuffer(bufsize),
		timeout: timeout,
	}
}

func (r *udpPacketReader) Read() (message, net.Addr, error) {
	if r.timeout > 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
			return dudMessage, nil, err
		}
	}

	r.buf.reset()
	n, addr, err := r.conn.ReadFrom(r.buf.space())
	if err != nil {
		return dudMessage, nil, err
	}
	r.buf.setLength(n)

	msg, err := decodeMessage(r.buf)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "udpPacketReader.Read",
			"peer":     addr.String(),
			"size":     n,
			"error":    err.Error(),
		}).Debug("Failed to decode datagram")
	}

	return msg, addr, nil
}

type packetWriter interface {
	Write(msg message, to net.Addr) error
}

type udpPacketWriter struct {
	conn net.PacketConn
	buf  *buffer
}

func newUDPPacketWriter(conn net.PacketConn, bufsize int) *udpPacketWriter {
	return &udpPacketWriter{
		conn: conn,
		buf:  newBuffer(bufsize),
	}
}

func (w *udpPacketWriter) Write(msg message, to net.Addr) error {
	if err := serializeMessage(w.buf, msg); err != nil {
		return err
	}

	_, err := w.conn.WriteTo(w.buf.bytes(), to)
	return err
}

type tracingPacketReader struct {
	r packetReader
}

func newTracingPacketReader(r packetReader) *tracingPacketReader {
	return &tracingPacketReader{r: r}
}

func (r *tracingPacketReader) Read() (message, net.Addr, error) {
	msg, addr, err := r.r.Read()
	if err == nil {
		logrus.WithFields(logrus.Fields{
			"function": "Read",
			"peer":     addr.String(),
			"packet":   msg.String(),
		}).Debug("<-")
	}
	return msg, addr, err
}

type tracingPacketWriter struct {
	w packetWriter
}

func newTracingPacketWriter(w packetWriter) *tracingPacketWriter {
	return &tracingPacketWriter{w: w}
}

func (w *tracingPacketWriter) Write(msg message, to net.Addr) error {
	err := w.w.Write(msg, to)

	fields := logrus.Fields{
		"function": "Write",
		"peer":     to.String(),
		"packet":   msg.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	logrus.WithFields(fields).Debug("->")

	return err
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// peerTID returns the transfer ID of addr, its UDP port.
func peerTID(addr net.Addr) uint16 {
	if addr == nil {
		return tidNone
	}

	if udp, ok := addr.(*net.UDPAddr); ok {
		return uint16(udp.Port)
	}

	_, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return tidNone
	}

	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return tidNone
	}
	return uint16(n)
}
