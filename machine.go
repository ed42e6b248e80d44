package tftp

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
)

var (
	errProtocol  = errors.New("tftp: protocol violation")
	errTransport = errors.New("tftp: transport failure")
	errHalted    = errors.New("tftp: service halted")
)

type state uint8

const (
	stateDecode state = iota
	stateDownload
	stateDone
	stateError
	stateStop
)

func (s state) String() string {
	switch s {
	case stateDecode:
		return "decode"
	case stateDownload:
		return "download"
	case stateDone:
		return "done"
	case stateError:
		return "error"
	case stateStop:
		return "stop"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

type machineOpts struct {
	// ContinueOnError makes the error state return to decode instead of
	// stopping the service.
	ContinueOnError bool
}

// machine drives a single transfer at a time through the decode, download,
// done and error states. Only the goroutine calling run touches it.
//
// While a transfer is in progress the machine alternates between decode
// (receive the next datagram) and download (act on it). The transaction
// stays ready across those steps until done or error ends it.
type machine struct {
	pr    packetReader
	pw    packetWriter
	store Storage
	opts  machineOpts

	state state
	txn   transaction
	msg   message
	peer  net.Addr
	fault error
	halt  error
	chunk []byte
}

func newMachine(pr packetReader, pw packetWriter, store Storage, opts machineOpts) *machine {
	return &machine{
		pr:    pr,
		pw:    pw,
		store: store,
		opts:  opts,
		state: stateDecode,
		txn:   newTransaction(),
		msg:   dudMessage,
		chunk: make([]byte, chunkSize),
	}
}

// run executes state steps until the machine stops or ctx is cancelled.
// Cancellation is only observed between steps, so it takes effect within
// one receive timeout.
func (m *machine) run(ctx context.Context) error {
	defer func() {
		if err := m.txn.reset(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "run",
				"error":    err.Error(),
			}).Warn("Failed to close transfer on shutdown")
		}
	}()

	for m.state != stateStop {
		if err := ctx.Err(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "run",
				"state":    m.state.String(),
			}).Info("Shutdown requested")
			return nil
		}

		m.state = m.step()
	}

	if m.halt != nil {
		return fmt.Errorf("%w: %w", errHalted, m.halt)
	}
	return nil
}

// step executes the behavior of the current state and returns the next one.
func (m *machine) step() state {
	switch m.state {
	case stateDecode:
		return m.decode()
	case stateDownload:
		return m.download()
	case stateDone:
		return m.done()
	case stateError:
		return m.fail()
	default:
		return stateStop
	}
}

func (m *machine) decode() state {
	msg, addr, err := m.pr.Read()
	if err != nil {
		switch {
		case isTimeout(err):
			return stateDecode
		case errors.Is(err, net.ErrClosed):
			return stateStop
		default:
			m.msg, m.peer = dudMessage, nil
			m.fault = fmt.Errorf("%w: %v", errTransport, err)
			return stateError
		}
	}

	m.msg, m.peer = msg, addr
	return stateDownload
}

func (m *machine) download() state {
	next, err := m.handle(m.msg, m.peer)
	if err != nil {
		m.fault = err
		return stateError
	}
	return next
}

func (m *machine) handle(msg message, peer net.Addr) (state, error) {
	tid := peerTID(peer)
	if m.txn.tid != tidNone && tid != m.txn.tid {
		return stateError, newErrorPacket(errUnknownTID, fmt.Sprintf("datagram from tid %d, transfer bound to %d", tid, m.txn.tid))
	}

	switch p := msg.payload.(type) {
	case *request:
		return m.handleRequest(msg.op == opWRQ, p, tid)
	case *ackPacket:
		return m.handleAck(p)
	case *dataPacket:
		return m.handleData(p)
	case *errorPacket:
		logrus.WithFields(logrus.Fields{
			"function": "handle",
			"peer":     peer.String(),
			"code":     p.Code.String(),
			"message":  p.Message,
		}).Warn("Peer aborted transfer")
		return stateDone, nil
	case dudPayload:
		return stateError, fmt.Errorf("%w: undecodable datagram", errInvalidPacket)
	default:
		return stateError, fmt.Errorf("%w: unexpected payload %T", errProtocol, p)
	}
}

func (m *machine) done() state {
	fields := logrus.Fields{
		"function": "done",
		"tid":      m.txn.tid,
		"blocks":   m.txn.block,
	}

	if err := m.txn.reset(); err != nil {
		fields["error"] = err.Error()
		logrus.WithFields(fields).Error("Failed to close transfer")
	} else {
		logrus.WithFields(fields).Info("Transfer complete")
	}

	return stateDecode
}

// fail replies to the last peer with an ERROR message, best effort, and
// decides whether the service keeps running.
func (m *machine) fail() state {
	code := classify(m.fault, m.msg.op)

	fields := logrus.Fields{
		"function": "fail",
		"code":     code.String(),
		"tid":      m.txn.tid,
		"block":    m.txn.block,
	}
	if m.fault != nil {
		fields["error"] = m.fault.Error()
	}
	if m.peer != nil {
		fields["peer"] = m.peer.String()
	}
	logrus.WithFields(fields).Warn("Transfer failed")

	if m.peer != nil {
		if err := m.pw.Write(newErrorMessage(code), m.peer); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "fail",
				"peer":     m.peer.String(),
				"error":    err.Error(),
			}).Error("Failed to send error packet")
		}
	}

	fault := m.fault
	m.fault = nil

	if !m.opts.ContinueOnError {
		m.halt = fault
		return stateStop
	}

	// A stray datagram from another peer does not affect the bound transfer.
	if code != errUnknownTID {
		if err := m.txn.reset(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "fail",
				"error":    err.Error(),
			}).Error("Failed to close transfer")
		}
	}
	return stateDecode
}

// classify maps a failure to the TFTP error code reported to the peer.
func classify(err error, op opcode) errorCode {
	var pkt *errorPacket
	switch {
	case errors.As(err, &pkt):
		return pkt.Code
	case errors.Is(err, errStorage), errors.Is(err, errTransport):
		return errDiskFull
	case !op.isRequestRange():
		return errIllegalOp
	default:
		return errUndefined
	}
}
