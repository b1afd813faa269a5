package wsupgrade

import (
	"fmt"
)

// CloseCode is the status code of a close frame.
type CloseCode uint16

// These codes were retrieved from:
// https://www.iana.org/assignments/websocket/websocket.xhtml#close-code-number
const (
	CloseNormal CloseCode = 1000 + iota
	CloseAway
	CloseProtocol
	CloseUnsupported
	_ // 1004 is reserved.
	CloseStatus
	CloseAbnormal
	CloseInvalid
	ClosePolicy
	CloseSize
	CloseExtension
	CloseError
	CloseRestart
	CloseAgain
)

var closeCodeNames = map[CloseCode]string{
	CloseNormal:      "CloseNormal",
	CloseAway:        "CloseAway",
	CloseProtocol:    "CloseProtocol",
	CloseUnsupported: "CloseUnsupported",
	CloseStatus:      "CloseStatus",
	CloseAbnormal:    "CloseAbnormal",
	CloseInvalid:     "CloseInvalid",
	ClosePolicy:      "ClosePolicy",
	CloseSize:        "CloseSize",
	CloseExtension:   "CloseExtension",
	CloseError:       "CloseError",
	CloseRestart:     "CloseRestart",
	CloseAgain:       "CloseAgain",
}

func (c CloseCode) String() string {
	if s, ok := closeCodeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CloseCode(%d)", uint16(c))
}
