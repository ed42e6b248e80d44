package tftp

import "fmt"

// handleData writes the next block of a write transfer and acknowledges it.
func (m *machine) handleData(data *dataPacket) (state, error) {
	if !m.txn.ready() || !m.txn.writing() {
		return stateError, newErrorPacket(errIllegalOp, "no write transfer in progress")
	}

	if data.Block != m.txn.block+1 {
		return stateError, fmt.Errorf("%w: data block %d, expected %d", errProtocol, data.Block, m.txn.block+1)
	}

	if err := m.txn.writeChunk(data.Data); err != nil {
		return stateError, err
	}

	m.txn.block++

	next, err := m.sendAck()
	if err != nil {
		return next, err
	}

	if len(data.Data) < chunkSize {
		return stateDone, nil
	}
	return next, nil
}

func (m *machine) sendAck() (state, error) {
	if err := m.pw.Write(newAckMessage(m.txn.block), m.peer); err != nil {
		return stateError, fmt.Errorf("%w: %v", errTransport, err)
	}
	return stateDecode, nil
}
