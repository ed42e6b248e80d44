package tftp

import (
	"errors"
	"fmt"
	"io"
)

var (
	errStorage = errors.New("tftp: storage failure")
)

// transaction is the context of the single transfer the server serves at a
// time. At most one of src and dst is open.
type transaction struct {
	src   io.ReadCloser
	dst   io.WriteCloser
	tid   uint16
	block uint16
	mode  dataMode
	// final is set once the short DATA block of a read transfer was sent.
	final bool
}

func newTransaction() transaction {
	return transaction{tid: tidNone, mode: modeInvalid}
}

func (t *transaction) open() bool {
	return t.src != nil || t.dst != nil
}

// ready reports whether a request was accepted and the transfer is bound.
func (t *transaction) ready() bool {
	return t.open() && t.tid != tidNone && t.mode != modeInvalid
}

func (t *transaction) writing() bool {
	return t.dst != nil
}

// bind records tid unless the transaction is already bound.
func (t *transaction) bind(tid uint16) {
	if t.tid == tidNone {
		t.tid = tid
	}
}

// readChunk fills p from the open source. It only returns fewer than
// len(p) bytes at the end of the file.
func (t *transaction) readChunk(p []byte) (int, error) {
	if t.src == nil {
		return 0, fmt.Errorf("%w: no file open for reading", errStorage)
	}

	n, err := io.ReadFull(t.src, p)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return n, fmt.Errorf("%w: %v", errStorage, err)
	}
	return n, nil
}

func (t *transaction) writeChunk(p []byte) error {
	if t.dst == nil {
		return fmt.Errorf("%w: no file open for writing", errStorage)
	}

	if _, err := t.dst.Write(p); err != nil {
		return fmt.Errorf("%w: %v", errStorage, err)
	}
	return nil
}

// reset closes the open file and returns the transaction to its dud state.
func (t *transaction) reset() error {
	var err error
	if t.src != nil {
		err = t.src.Close()
	}
	if t.dst != nil {
		err = errors.Join(err, t.dst.Close())
	}

	*t = newTransaction()

	if err != nil {
		return fmt.Errorf("%w: %v", errStorage, err)
	}
	return nil
}
