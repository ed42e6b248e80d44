package tftp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	errInvalidPacket = errors.New("tftp: invalid packet")
)

// payload is implemented by every message body the codec understands.
type payload interface {
	String() string
	isPayload()
}

// message is a decoded TFTP datagram. The payload type always matches op:
// RRQ/WRQ carry *request, DATA *dataPacket, ACK *ackPacket, ERROR
// *errorPacket and NONE dudPayload. Use the constructors below to build one.
type message struct {
	op      opcode
	payload payload
}

func (m message) String() string {
	return fmt.Sprintf("%s %s", m.op, m.payload)
}

var dudMessage = message{op: opNONE, payload: dudPayload{}}

func newRequestMessage(write bool, filename string, mode dataMode) message {
	op := opRRQ
	if write {
		op = opWRQ
	}
	return message{op: op, payload: &request{Filename: filename, Mode: mode}}
}

func newDataMessage(block uint16, data []byte) message {
	return message{op: opDATA, payload: &dataPacket{Block: block, Data: data}}
}

func newAckMessage(block uint16) message {
	return message{op: opACK, payload: &ackPacket{Block: block}}
}

// newErrorMessage builds an ERROR message carrying the fixed text for code.
func newErrorMessage(code errorCode) message {
	return message{op: opERROR, payload: newErrorPacket(code, code.message())}
}

type dudPayload struct{}

func (dudPayload) isPayload() {}

func (dudPayload) String() string {
	return "<dud>"
}

type request struct {
	Filename string
	Mode     dataMode
}

func (*request) isPayload() {}

func (r *request) String() string {
	return fmt.Sprintf("<file: %s, mode: %s>", r.Filename, r.Mode)
}

type dataPacket struct {
	Block uint16
	Data  []byte
}

func (*dataPacket) isPayload() {}

func (p *dataPacket) String() string {
	return fmt.Sprintf("<block: %d, size: %d>", p.Block, len(p.Data))
}

type ackPacket struct {
	Block uint16
}

func (*ackPacket) isPayload() {}

func (p *ackPacket) String() string {
	return fmt.Sprintf("<block: %d>", p.Block)
}

// errorPacket is the body of an ERROR message. It also satisfies the error
// interface so that failures can carry the TFTP code they map to.
type errorPacket struct {
	Code    errorCode
	Message string
}

func newErrorPacket(code errorCode, message string) *errorPacket {
	return &errorPacket{
		Code:    code,
		Message: message,
	}
}

func (*errorPacket) isPayload() {}

func (p *errorPacket) Error() string {
	return fmt.Sprintf("tftp: %s", p.Message)
}

func (p *errorPacket) String() string {
	return fmt.Sprintf("<code: %d, message: %s>", p.Code, p.Message)
}

// parseMessage decodes the used bytes of b. Any failure yields dudMessage;
// no field is read after the first one that fails.
func parseMessage(b *buffer) message {
	msg, _ := decodeMessage(b)
	return msg
}

// decodeMessage is parseMessage that also reports why decoding failed.
func decodeMessage(b *buffer) (message, error) {
	raw, pos, err := readU16(b, 0)
	if err != nil {
		return dudMessage, fmt.Errorf("%w: too short", errInvalidPacket)
	}

	op := opcode(raw)

	switch op {
	case opRRQ, opWRQ:
		filename, pos, err := readText(b, pos)
		if err != nil {
			return dudMessage, fmt.Errorf("%w: invalid request", errInvalidPacket)
		}

		mode, _, err := readText(b, pos)
		if err != nil {
			return dudMessage, fmt.Errorf("%w: invalid request", errInvalidPacket)
		}

		return newRequestMessage(op == opWRQ, filename, parseMode(mode)), nil
	case opDATA:
		block, pos, err := readU16(b, pos)
		if err != nil {
			return dudMessage, fmt.Errorf("%w: too short", errInvalidPacket)
		}

		data, _, err := readBlob(b, pos, chunkSize)
		if err != nil {
			return dudMessage, fmt.Errorf("%w: invalid data", errInvalidPacket)
		}

		return newDataMessage(block, data), nil
	case opACK:
		block, _, err := readU16(b, pos)
		if err != nil {
			return dudMessage, fmt.Errorf("%w: too short", errInvalidPacket)
		}

		return newAckMessage(block), nil
	case opERROR:
		code, pos, err := readU16(b, pos)
		if err != nil {
			return dudMessage, fmt.Errorf("%w: too short", errInvalidPacket)
		}

		text, _, err := readText(b, pos)
		if err != nil {
			return dudMessage, fmt.Errorf("%w: invalid error message", errInvalidPacket)
		}

		return message{op: opERROR, payload: newErrorPacket(errorCode(code), text)}, nil
	default:
		return dudMessage, fmt.Errorf("%w: unknown op: %d", errInvalidPacket, raw)
	}
}

// serializeMessage encodes msg into b. On failure b is left empty so that
// nothing partial can be sent.
func serializeMessage(b *buffer, msg message) error {
	b.reset()

	pos, err := writeU16(b, 0, uint16(msg.op))
	if err == nil {
		switch p := msg.payload.(type) {
		case *request:
			if pos, err = writeText(b, pos, p.Filename); err == nil {
				_, err = writeText(b, pos, p.Mode.wireName())
			}
		case *dataPacket:
			if pos, err = writeU16(b, pos, p.Block); err == nil {
				_, err = writeBlob(b, pos, p.Data)
			}
		case *ackPacket:
			_, err = writeU16(b, pos, p.Block)
		case *errorPacket:
			if pos, err = writeU16(b, pos, uint16(p.Code)); err == nil {
				_, err = writeText(b, pos, p.Message)
			}
		case dudPayload:
			err = fmt.Errorf("%w: nothing to serialize for %s", errInvalidPacket, msg.op)
		default:
			err = fmt.Errorf("%w: unsupported payload %T", errInvalidPacket, p)
		}
	}

	if err != nil {
		b.reset()
		return err
	}
	return nil
}

// parseMode maps a mode string to a dataMode. Only the exact lowercase
// names netascii and mail are recognised; anything else is octet.
func parseMode(s string) dataMode {
	switch {
	case s == "netascii":
		return modeNetascii
	case s == "mail":
		return modeMail
	default:
		return modeOctet
	}
}

func readU16(b *buffer, pos int) (uint16, int, error) {
	p, err := b.view(pos, 2)
	if err != nil {
		return 0, 0, err
	}
	return binary.BigEndian.Uint16(p), pos + 2, nil
}

// readText reads a NUL terminated string at pos and returns the position
// just past the terminator.
func readText(b *buffer, pos int) (string, int, error) {
	if pos >= b.length() {
		return "", 0, fmt.Errorf("%w: no text at %d", errBufferUnderrun, pos)
	}

	p, err := b.view(pos, b.length()-pos)
	if err != nil {
		return "", 0, err
	}

	idx := bytes.IndexByte(p, 0)
	if idx < 0 {
		return "", 0, fmt.Errorf("%w: unterminated text at %d", errBufferUnderrun, pos)
	}

	return string(p[:idx]), pos + idx + 1, nil
}

// readBlob copies at most limit bytes starting at pos, stopping early at the
// end of the used length. The copy never aliases b.
func readBlob(b *buffer, pos, limit int) ([]byte, int, error) {
	if pos > b.length() {
		return nil, 0, fmt.Errorf("%w: no blob at %d", errBufferUnderrun, pos)
	}

	n := min(limit, b.length()-pos)
	p, err := b.view(pos, n)
	if err != nil {
		return nil, 0, err
	}

	data := make([]byte, n)
	copy(data, p)
	return data, pos + n, nil
}

func writeU16(b *buffer, pos int, v uint16) (int, error) {
	var p [2]byte
	binary.BigEndian.PutUint16(p[:], v)
	if err := b.put(pos, p[:]); err != nil {
		return 0, err
	}
	return pos + 2, nil
}

func writeText(b *buffer, pos int, s string) (int, error) {
	if pos < 0 || pos+len(s)+delimSize > b.capacity() {
		return 0, fmt.Errorf("%w: text of %d bytes at %d", errBufferOverrun, len(s), pos)
	}

	if err := b.put(pos, []byte(s)); err != nil {
		return 0, err
	}
	if err := b.put(pos+len(s), []byte{0}); err != nil {
		return 0, err
	}
	return pos + len(s) + delimSize, nil
}

// writeBlob writes p at pos. Bytes that do not fit the capacity of b are
// dropped.
func writeBlob(b *buffer, pos int, p []byte) (int, error) {
	if pos < 0 || pos > b.capacity() {
		return 0, fmt.Errorf("%w: blob at %d", errBufferOverrun, pos)
	}

	n := min(len(p), b.capacity()-pos)
	if err := b.put(pos, p[:n]); err != nil {
		return 0, err
	}
	return pos + n, nil
}
