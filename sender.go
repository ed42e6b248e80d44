package tftp

import "fmt"

// handleAck advances a read transfer. Only the ACK of the block sent last
// is accepted; the ACK of the final block ends the transfer.
func (m *machine) handleAck(ack *ackPacket) (state, error) {
	if !m.txn.ready() || m.txn.writing() {
		return stateError, newErrorPacket(errIllegalOp, "no read transfer in progress")
	}

	if ack.Block != m.txn.block {
		return stateError, fmt.Errorf("%w: ack for block %d, expected %d", errProtocol, ack.Block, m.txn.block)
	}

	if m.txn.final {
		return stateDone, nil
	}

	m.txn.block++
	return m.sendData()
}

// sendData reads the next chunk and sends it as the current block. A short
// chunk is the last one.
func (m *machine) sendData() (state, error) {
	n, err := m.txn.readChunk(m.chunk)
	if err != nil {
		return stateError, err
	}

	if err := m.pw.Write(newDataMessage(m.txn.block, m.chunk[:n]), m.peer); err != nil {
		return stateError, fmt.Errorf("%w: %v", errTransport, err)
	}

	// TODO: retransmit this block when its ACK does not arrive within the
	// receive timeout (RFC 1350 section 6).
	if n < chunkSize {
		m.txn.final = true
	}
	return stateDecode, nil
}
