package wsupgrade

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/gobwas/ws"

	"github.com/coder/wsupgrade/wsframe"
)

// MessageType is the type of a Message.
type MessageType int

// MessageType constants.
const (
	MessageText MessageType = iota + 1
	MessageBinary
	MessagePing
	MessagePong
	MessageClose
)

func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "MessageText"
	case MessageBinary:
		return "MessageBinary"
	case MessagePing:
		return "MessagePing"
	case MessagePong:
		return "MessagePong"
	case MessageClose:
		return "MessageClose"
	default:
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
}

// Message is a WebSocket message.
//
// For MessageClose, Data is unused and Close holds the status code and
// reason, or nil when the close frame had no payload.
type Message struct {
	Type  MessageType
	Data  []byte
	Close *CloseFrame
}

// CloseFrame is the payload of a close message.
type CloseFrame struct {
	Code   CloseCode
	Reason string
}

// ErrInvalidUTF8 is returned by IntoText and ToText when a message is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("message is not valid UTF-8")

// Text returns a text message holding s.
func Text(s string) Message {
	return Message{Type: MessageText, Data: []byte(s)}
}

// Binary returns a binary message holding p.
func Binary(p []byte) Message {
	return Message{Type: MessageBinary, Data: p}
}

// Ping returns a ping message holding p.
func Ping(p []byte) Message {
	return Message{Type: MessagePing, Data: p}
}

// Pong returns a pong message holding p.
func Pong(p []byte) Message {
	return Message{Type: MessagePong, Data: p}
}

// Close returns a close message. A nil frame sends an empty close payload.
func Close(f *CloseFrame) Message {
	return Message{Type: MessageClose, Close: f}
}

// CloseWith returns a close message with code and reason.
func CloseWith(code CloseCode, reason string) Message {
	return Close(&CloseFrame{Code: code, Reason: reason})
}

// IntoData returns the bytes of m.
// A close message yields its reason, or nothing without a frame.
func (m Message) IntoData() []byte {
	if m.Type == MessageClose {
		if m.Close == nil {
			return []byte{}
		}
		return []byte(m.Close.Reason)
	}
	if m.Data == nil {
		return []byte{}
	}
	return m.Data
}

// IntoText returns the bytes of m as a string.
// It fails with ErrInvalidUTF8 if they are not valid UTF-8.
func (m Message) IntoText() (string, error) {
	return m.ToText()
}

// ToText is like IntoText. Neither modifies m.
func (m Message) ToText() (string, error) {
	p := m.IntoData()
	if !utf8.Valid(p) {
		return "", fmt.Errorf("failed to decode %v as text: %w", m.Type, ErrInvalidUTF8)
	}
	return string(p), nil
}

func (m Message) String() string {
	if m.Type == MessageClose {
		if m.Close == nil {
			return "Close"
		}
		return fmt.Sprintf("Close(%v, %q)", m.Close.Code, m.Close.Reason)
	}
	return fmt.Sprintf("%v(%d bytes)", m.Type, len(m.Data))
}

func (m Message) toWire() (wsframe.Message, error) {
	switch m.Type {
	case MessageText:
		return wsframe.Message{Kind: wsframe.KindText, Payload: m.Data}, nil
	case MessageBinary:
		return wsframe.Message{Kind: wsframe.KindBinary, Payload: m.Data}, nil
	case MessagePing:
		return wsframe.Message{Kind: wsframe.KindPing, Payload: m.Data}, nil
	case MessagePong:
		return wsframe.Message{Kind: wsframe.KindPong, Payload: m.Data}, nil
	case MessageClose:
		wm := wsframe.Message{Kind: wsframe.KindClose}
		if m.Close != nil {
			wm.Close = &wsframe.CloseFrame{
				Code:   ws.StatusCode(m.Close.Code),
				Reason: m.Close.Reason,
			}
		}
		return wm, nil
	default:
		return wsframe.Message{}, fmt.Errorf("unknown message type %v", m.Type)
	}
}

// fromWire reports false for wire messages that have no Message form.
func fromWire(wm wsframe.Message) (Message, bool) {
	switch wm.Kind {
	case wsframe.KindText:
		return Message{Type: MessageText, Data: wm.Payload}, true
	case wsframe.KindBinary:
		return Message{Type: MessageBinary, Data: wm.Payload}, true
	case wsframe.KindPing:
		return Message{Type: MessagePing, Data: wm.Payload}, true
	case wsframe.KindPong:
		return Message{Type: MessagePong, Data: wm.Payload}, true
	case wsframe.KindClose:
		m := Message{Type: MessageClose}
		if wm.Close != nil {
			m.Close = &CloseFrame{
				Code:   CloseCode(wm.Close.Code),
				Reason: wm.Close.Reason,
			}
		}
		return m, true
	default:
		return Message{}, false
	}
}
