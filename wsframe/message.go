package wsframe

import (
	"github.com/gobwas/ws"
)

// Kind is the kind of a wire message.
type Kind int

// Kind constants.
const (
	KindText Kind = iota + 1
	KindBinary
	KindPing
	KindPong
	KindClose
	// KindFrame is a single raw frame that is not part of a reassembled message.
	// Transports that surface frames individually report them with this kind.
	// Conn never produces it but will write one when asked to.
	KindFrame
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindClose:
		return "close"
	case KindFrame:
		return "frame"
	default:
		return "unknown"
	}
}

// Message is a complete message as read from or written to the wire.
type Message struct {
	Kind    Kind
	Payload []byte

	// Close is set on a KindClose message that carries a status code.
	// A KindClose message with a nil Close has an empty payload.
	Close *CloseFrame

	// Header describes a KindFrame message. Length and masking are computed
	// when the frame is written.
	Header ws.Header
}

// CloseFrame is the status code and reason of a close message.
type CloseFrame struct {
	Code   ws.StatusCode
	Reason string
}
