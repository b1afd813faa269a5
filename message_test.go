package wsupgrade

import (
	"testing"

	"github.com/gobwas/ws"

	"github.com/coder/wsupgrade/internal/test/assert"
	"github.com/coder/wsupgrade/internal/test/xrand"
	"github.com/coder/wsupgrade/wsframe"
)

func TestMessageWire(t *testing.T) {
	t.Parallel()

	msgs := []Message{
		Text(""),
		Text(xrand.String(64)),
		Text("héllo wörld"),
		Binary(nil),
		Binary(xrand.Bytes(64)),
		Ping([]byte("ping")),
		Pong([]byte("pong")),
		Close(nil),
		CloseWith(CloseNormal, ""),
		CloseWith(CloseAway, "restarting"),
		CloseWith(CloseCode(4000), "custom"),
	}

	for _, m := range msgs {
		m := m
		t.Run(m.String(), func(t *testing.T) {
			t.Parallel()

			wm, err := m.toWire()
			assert.Success(t, err)
			if wm.Kind == wsframe.KindFrame {
				t.Fatal("message translated to a raw frame")
			}

			act, ok := fromWire(wm)
			assert.Equal(t, "ok", true, ok)
			assert.Equal(t, "message", m, act)
		})
	}

	t.Run("closeCode", func(t *testing.T) {
		t.Parallel()

		wm, err := CloseWith(CloseSize, "big").toWire()
		assert.Success(t, err)
		assert.Equal(t, "code", ws.StatusMessageTooBig, wm.Close.Code)
	})

	t.Run("frameFiltered", func(t *testing.T) {
		t.Parallel()

		_, ok := fromWire(wsframe.Message{Kind: wsframe.KindFrame, Payload: []byte("x")})
		assert.Equal(t, "ok", false, ok)
	})

	t.Run("unknownType", func(t *testing.T) {
		t.Parallel()

		_, err := Message{Type: MessageType(42)}.toWire()
		assert.Contains(t, err, "unknown message type")
	})
}

func TestMessageData(t *testing.T) {
	t.Parallel()

	invalid := []byte{0xff, 0xfe, 'a'}

	testCases := []struct {
		name    string
		msg     Message
		data    []byte
		text    string
		invalid bool
	}{
		{name: "text", msg: Text("héllo"), data: []byte("héllo"), text: "héllo"},
		{name: "emptyText", msg: Text(""), data: []byte{}, text: ""},
		{name: "binary", msg: Binary([]byte("abc")), data: []byte("abc"), text: "abc"},
		{name: "invalidBinary", msg: Binary(invalid), data: invalid, invalid: true},
		{name: "nilBinary", msg: Binary(nil), data: []byte{}, text: ""},
		{name: "ping", msg: Ping([]byte("p")), data: []byte("p"), text: "p"},
		{name: "invalidPong", msg: Pong(invalid), data: invalid, invalid: true},
		{name: "closeNoFrame", msg: Close(nil), data: []byte{}, text: ""},
		{name: "closeFrame", msg: CloseWith(CloseNormal, "bye"), data: []byte("bye"), text: "bye"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, "data", tc.data, tc.msg.IntoData())

			text, err := tc.msg.ToText()
			if tc.invalid {
				assert.ErrorIs(t, ErrInvalidUTF8, err)
				_, err = tc.msg.IntoText()
				assert.ErrorIs(t, ErrInvalidUTF8, err)
				assert.Equal(t, "data after failed decode", tc.data, tc.msg.IntoData())
				return
			}
			assert.Success(t, err)
			assert.Equal(t, "to text", tc.text, text)

			text, err = tc.msg.IntoText()
			assert.Success(t, err)
			assert.Equal(t, "into text", tc.text, text)
		})
	}
}

func TestMessageTypeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "text", "MessageText", MessageText.String())
	assert.Equal(t, "close", "MessageClose", MessageClose.String())
	assert.Equal(t, "unknown", "MessageType(9)", MessageType(9).String())
}
