package tftp

import "fmt"

type opcode uint16

const (
	opRRQ opcode = iota + 1
	opWRQ
	opDATA
	opACK
	opERROR
	// opNONE never appears on the wire; it marks a datagram that could
	// not be decoded.
	opNONE
)

func (op opcode) String() string {
	switch op {
	case opRRQ:
		return "RRQ"
	case opWRQ:
		return "WRQ"
	case opDATA:
		return "DATA"
	case opACK:
		return "ACK"
	case opERROR:
		return "ERROR"
	case opNONE:
		return "NONE"
	default:
		return fmt.Sprintf("OP(%d)", uint16(op))
	}
}

// isRequestRange reports whether op is one of the opcodes the server knows
// how to handle.
func (op opcode) isRequestRange() bool {
	return op >= opRRQ && op < opNONE
}

type dataMode uint8

const (
	modeNetascii dataMode = iota
	modeOctet
	modeMail
	modeInvalid
)

func (m dataMode) String() string {
	switch m {
	case modeNetascii:
		return "netascii"
	case modeMail:
		return "mail"
	case modeInvalid:
		return "invalid"
	default:
		return "octet"
	}
}

// wireName is the mode string sent in a request. Modes without a name of
// their own go out as octet.
func (m dataMode) wireName() string {
	switch m {
	case modeNetascii, modeMail:
		return m.String()
	default:
		return "octet"
	}
}

type errorCode uint16

// Wire values of TFTP error codes.
const (
	errOK errorCode = iota
	errUndefined
	errNotFound
	errPermission
	errDiskFull
	errIllegalOp
	errUnknownTID
	errAlreadyExists
	errNoSuchUser
)

var errorMessages = [...]string{
	errOK:            "OK",
	errUndefined:     "Server error",
	errNotFound:      "File not found",
	errPermission:    "Access violation",
	errDiskFull:      "Memory / storage error",
	errIllegalOp:     "Bad opcode",
	errUnknownTID:    "Unknown TID",
	errAlreadyExists: "File already exists",
	errNoSuchUser:    "Invalid user",
}

// message returns the fixed human readable text for c. Codes outside the
// table fall back to the undefined error text.
func (c errorCode) message() string {
	if int(c) >= len(errorMessages) {
		return errorMessages[errUndefined]
	}
	return errorMessages[c]
}

func (c errorCode) String() string {
	return fmt.Sprintf("%d (%s)", uint16(c), c.message())
}

const (
	chunkSize     = 512
	opcodeSize    = 2
	delimSize     = 1
	maxPathLength = 64
	maxModeLength = 16

	// bufferSize fits the largest RRQ/WRQ or a DATA packet carrying a full
	// chunk.
	bufferSize = opcodeSize + maxPathLength + delimSize + maxModeLength + delimSize + chunkSize

	// tidNone marks a session that has not been bound to a peer yet.
	tidNone uint16 = 0
)
