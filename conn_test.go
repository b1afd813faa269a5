package wsupgrade_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/coder/wsupgrade"
	"github.com/coder/wsupgrade/internal/test/assert"
	"github.com/coder/wsupgrade/internal/test/wstest"
	"github.com/coder/wsupgrade/internal/test/xrand"
	"github.com/coder/wsupgrade/internal/xsync"
	"github.com/coder/wsupgrade/wsframe"
)

type fakeTransport struct {
	in      []wsframe.Message
	err     error
	queued  []wsframe.Message
	flushed []wsframe.Message
	shut    bool
}

func (t *fakeTransport) NextMessage(ctx context.Context) (wsframe.Message, error) {
	if len(t.in) == 0 {
		if t.err != nil {
			return wsframe.Message{}, t.err
		}
		return wsframe.Message{}, io.EOF
	}
	m := t.in[0]
	t.in = t.in[1:]
	return m, nil
}

func (t *fakeTransport) WriteMessage(ctx context.Context, m wsframe.Message) error {
	t.queued = append(t.queued, m)
	return nil
}

func (t *fakeTransport) Flush(ctx context.Context) error {
	t.flushed = append(t.flushed, t.queued...)
	t.queued = nil
	return nil
}

func (t *fakeTransport) Shutdown() error {
	t.shut = true
	return nil
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
	t.Cleanup(cancel)
	return ctx
}

func TestConn(t *testing.T) {
	t.Parallel()

	t.Run("framesSkipped", func(t *testing.T) {
		t.Parallel()

		ctx := testContext(t)
		tt := &fakeTransport{
			in: []wsframe.Message{
				{Kind: wsframe.KindFrame, Payload: []byte("raw")},
				{Kind: wsframe.KindText, Payload: []byte("a")},
				{Kind: wsframe.KindFrame},
				{Kind: wsframe.KindFrame},
				{Kind: wsframe.KindBinary, Payload: []byte("b")},
			},
		}
		c := wsupgrade.NewConn(tt, "")

		m, err := c.Receive(ctx)
		assert.Success(t, err)
		assert.Equal(t, "first", wsupgrade.Text("a"), m)

		m, err = c.Receive(ctx)
		assert.Success(t, err)
		assert.Equal(t, "second", wsupgrade.Binary([]byte("b")), m)

		_, err = c.Receive(ctx)
		assert.Equal(t, "end of stream", io.EOF, err)

		_, err = c.Receive(ctx)
		assert.ErrorIs(t, wsupgrade.ErrClosed, err)
	})

	t.Run("transportError", func(t *testing.T) {
		t.Parallel()

		errBroken := errors.New("broken")
		c := wsupgrade.NewConn(&fakeTransport{err: errBroken}, "")

		_, err := c.Receive(testContext(t))
		assert.ErrorIs(t, errBroken, err)
		assert.Contains(t, err, "failed to receive message")
	})

	t.Run("feedFlush", func(t *testing.T) {
		t.Parallel()

		ctx := testContext(t)
		tt := &fakeTransport{}
		c := wsupgrade.NewConn(tt, "")

		assert.Success(t, c.Feed(ctx, wsupgrade.Text("a")))
		assert.Success(t, c.Feed(ctx, wsupgrade.Ping([]byte("b"))))
		assert.Equal(t, "flushed", 0, len(tt.flushed))

		assert.Success(t, c.Flush(ctx))
		assert.Equal(t, "flushed", []wsframe.Message{
			{Kind: wsframe.KindText, Payload: []byte("a")},
			{Kind: wsframe.KindPing, Payload: []byte("b")},
		}, tt.flushed)

		assert.Success(t, c.Send(ctx, wsupgrade.CloseWith(wsupgrade.CloseNormal, "done")))
		assert.Equal(t, "close", wsframe.Message{
			Kind:  wsframe.KindClose,
			Close: &wsframe.CloseFrame{Code: 1000, Reason: "done"},
		}, tt.flushed[2])
	})

	t.Run("closeTerminal", func(t *testing.T) {
		t.Parallel()

		ctx := testContext(t)
		tt := &fakeTransport{in: []wsframe.Message{{Kind: wsframe.KindText}}}
		c := wsupgrade.NewConn(tt, "chat")

		assert.Success(t, c.Close(ctx))
		assert.Equal(t, "close frame", []wsframe.Message{{Kind: wsframe.KindClose}}, tt.flushed)
		assert.Equal(t, "shutdown", true, tt.shut)

		_, err := c.Receive(ctx)
		assert.ErrorIs(t, wsupgrade.ErrClosed, err)
		assert.ErrorIs(t, wsupgrade.ErrClosed, c.Send(ctx, wsupgrade.Text("x")))
		assert.ErrorIs(t, wsupgrade.ErrClosed, c.Feed(ctx, wsupgrade.Text("x")))
		assert.ErrorIs(t, wsupgrade.ErrClosed, c.Flush(ctx))
		assert.ErrorIs(t, wsupgrade.ErrClosed, c.Close(ctx))
		assert.ErrorIs(t, wsupgrade.ErrClosed, c.CloseWith(ctx, wsupgrade.CloseNormal, ""))
		assert.Equal(t, "protocol", "chat", c.Protocol())
	})

	t.Run("pipe", func(t *testing.T) {
		t.Parallel()

		ctx := testContext(t)
		server, client, err := wstest.Pipe(&wstest.PipeOptions{
			Subprotocols: []string{"chat", "echo"},
			Upgrade: func(u *wsupgrade.Upgrade) *wsupgrade.Upgrade {
				return u.Protocols("echo")
			},
		})
		assert.Success(t, err)
		assert.Equal(t, "server protocol", "echo", server.Protocol())
		assert.Equal(t, "client protocol", "echo", client.Protocol())

		echoErrs := xsync.Go(func() error {
			return wstest.EchoLoop(ctx, server)
		})

		for i := 0; i < 10; i++ {
			err = wstest.Echo(ctx, client, 1<<14)
			assert.Success(t, err)
		}

		// The echo loop reads the close frame and returns.
		assert.Success(t, client.Close(ctx))
		assert.Success(t, <-echoErrs)
	})

	t.Run("closeReceived", func(t *testing.T) {
		t.Parallel()

		ctx := testContext(t)
		server, client, err := wstest.Pipe(nil)
		assert.Success(t, err)

		errs := xsync.Go(func() error {
			return server.CloseWith(ctx, wsupgrade.CloseAway, "restart")
		})

		m, err := client.Receive(ctx)
		assert.Success(t, err)
		assert.Equal(t, "close", wsupgrade.CloseWith(wsupgrade.CloseAway, "restart"), m)
		assert.Success(t, <-errs)

		_, err = client.Receive(ctx)
		assert.Equal(t, "end of stream", io.EOF, err)
		_, err = client.Receive(ctx)
		assert.ErrorIs(t, wsupgrade.ErrClosed, err)
	})

	t.Run("split", func(t *testing.T) {
		t.Parallel()

		ctx := testContext(t)
		server, client, err := wstest.Pipe(nil)
		assert.Success(t, err)

		const n = 32
		sr, sw := server.Split()
		cr, cw := client.Split()

		send := func(w wsupgrade.MessageWriter) func() error {
			return func() error {
				for i := 0; i < n; i++ {
					err := w.Send(ctx, wsupgrade.Binary(xrand.Bytes(512)))
					if err != nil {
						return err
					}
				}
				return nil
			}
		}
		recv := func(r wsupgrade.MessageReader) func() error {
			return func() error {
				for i := 0; i < n; i++ {
					m, err := r.Receive(ctx)
					if err != nil {
						return err
					}
					if m.Type != wsupgrade.MessageBinary || len(m.Data) != 512 {
						return errors.New("unexpected message " + m.String())
					}
				}
				return nil
			}
		}

		errs := []<-chan error{
			xsync.Go(send(sw)),
			xsync.Go(send(cw)),
			xsync.Go(recv(sr)),
			xsync.Go(recv(cr)),
		}
		for _, errc := range errs {
			assert.Success(t, <-errc)
		}

		assert.Success(t, wstest.ClosePipe(ctx, client, server))
	})
}
