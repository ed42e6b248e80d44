package tftp

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// handleRequest accepts an RRQ or WRQ, binds the session to tid and sends
// the first DATA block or ACK(0).
func (m *machine) handleRequest(write bool, req *request, tid uint16) (state, error) {
	if m.txn.ready() {
		return stateError, newErrorPacket(errIllegalOp, "transfer already in progress")
	}

	if req.Mode != modeOctet {
		return stateError, newErrorPacket(errIllegalOp, fmt.Sprintf("unsupported mode: %s", req.Mode))
	}

	if write {
		dst, err := m.store.OpenWrite(req.Filename)
		if err != nil {
			return stateError, storageFault(err, errPermission)
		}
		m.txn.dst = dst
	} else {
		src, err := m.store.OpenRead(req.Filename)
		if err != nil {
			return stateError, storageFault(err, errNotFound)
		}
		m.txn.src = src
	}

	m.txn.bind(tid)
	m.txn.mode = modeOctet

	logrus.WithFields(logrus.Fields{
		"function": "handleRequest",
		"peer":     m.peer.String(),
		"tid":      m.txn.tid,
		"file":     req.Filename,
		"write":    write,
	}).Info("Transfer started")

	if write {
		m.txn.block = 0
		return m.sendAck()
	}

	m.txn.block = 1
	return m.sendData()
}

// storageFault keeps the code of err when it has one and otherwise reports
// fallback.
func storageFault(err error, fallback errorCode) error {
	var pkt *errorPacket
	if errors.As(err, &pkt) {
		return pkt
	}
	return newErrorPacket(fallback, err.Error())
}
