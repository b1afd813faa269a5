package wsupgrade

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/coder/wsupgrade/wsframe"
)

// ErrClosed is returned by every Conn method once the Conn has been
// closed or has already reported the end of the stream.
var ErrClosed = errors.New("connection already closed")

// MessageReader is the receiving side of a connection.
type MessageReader interface {
	Receive(ctx context.Context) (Message, error)
}

// MessageWriter is the sending side of a connection.
type MessageWriter interface {
	Feed(ctx context.Context, m Message) error
	Flush(ctx context.Context) error
	Send(ctx context.Context, m Message) error
	Close(ctx context.Context) error
}

// Conn is an established WebSocket connection.
//
// Receive must not be called concurrently with itself, nor the writing
// methods with each other. One goroutine may receive while another sends;
// Split makes that explicit.
type Conn struct {
	t        wsframe.Transport
	protocol string

	closed atomic.Bool
	eof    atomic.Bool
}

var (
	_ MessageReader = (*Conn)(nil)
	_ MessageWriter = (*Conn)(nil)
)

// NewConn returns a Conn over t that reports protocol as its subprotocol.
//
// The transport is shut down by Close or, failing that, once the Conn is
// garbage collected.
func NewConn(t wsframe.Transport, protocol string) *Conn {
	c := &Conn{
		t:        t,
		protocol: protocol,
	}
	runtime.SetFinalizer(c, func(c *Conn) {
		c.t.Shutdown()
	})
	return c
}

// Protocol returns the negotiated subprotocol.
// An empty string means none was negotiated.
func (c *Conn) Protocol() string {
	return c.protocol
}

// Receive returns the next message from the peer.
//
// Pings and pongs are returned like any other message; the pong for a
// received ping has already been sent. After the peer's close message,
// Receive returns io.EOF once and ErrClosed afterwards.
func (c *Conn) Receive(ctx context.Context) (Message, error) {
	if c.closed.Load() {
		return Message{}, ErrClosed
	}

	for {
		wm, err := c.t.NextMessage(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if c.eof.Swap(true) {
					return Message{}, ErrClosed
				}
				return Message{}, io.EOF
			}
			return Message{}, fmt.Errorf("failed to receive message: %w", err)
		}

		m, ok := fromWire(wm)
		if !ok {
			continue
		}
		return m, nil
	}
}

// Feed queues m without flushing it.
func (c *Conn) Feed(ctx context.Context, m Message) error {
	if c.closed.Load() {
		return ErrClosed
	}

	wm, err := m.toWire()
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	err = c.t.WriteMessage(ctx, wm)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Flush writes every message queued by Feed.
func (c *Conn) Flush(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	err := c.t.Flush(ctx)
	if err != nil {
		return fmt.Errorf("failed to flush messages: %w", err)
	}
	return nil
}

// Send queues m and flushes it.
func (c *Conn) Send(ctx context.Context, m Message) error {
	err := c.Feed(ctx, m)
	if err != nil {
		return err
	}
	return c.Flush(ctx)
}

// Close sends a close message without a status code and shuts the
// connection down. It does not wait for the peer's reply.
//
// The Conn cannot be used afterwards.
func (c *Conn) Close(ctx context.Context) error {
	return c.close(ctx, wsframe.Message{Kind: wsframe.KindClose})
}

// CloseWith is Close with a status code and reason.
func (c *Conn) CloseWith(ctx context.Context, code CloseCode, reason string) error {
	wm, err := CloseWith(code, reason).toWire()
	if err != nil {
		return err
	}
	return c.close(ctx, wm)
}

func (c *Conn) close(ctx context.Context, wm wsframe.Message) error {
	if c.closed.Swap(true) {
		return ErrClosed
	}
	runtime.SetFinalizer(c, nil)

	err := c.t.WriteMessage(ctx, wm)
	if err == nil {
		err = c.t.Flush(ctx)
	}
	err = multierr.Append(err, c.t.Shutdown())
	if err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

// Split returns the two halves of c. They share c's state: closing the
// write half closes c.
func (c *Conn) Split() (*ReadHalf, *WriteHalf) {
	return &ReadHalf{c: c}, &WriteHalf{c: c}
}

// ReadHalf is the receiving half of a split Conn.
type ReadHalf struct {
	c *Conn
}

// Receive is Conn.Receive.
func (r *ReadHalf) Receive(ctx context.Context) (Message, error) {
	return r.c.Receive(ctx)
}

// WriteHalf is the sending half of a split Conn.
type WriteHalf struct {
	c *Conn
}

// Feed is Conn.Feed.
func (w *WriteHalf) Feed(ctx context.Context, m Message) error {
	return w.c.Feed(ctx, m)
}

// Flush is Conn.Flush.
func (w *WriteHalf) Flush(ctx context.Context) error {
	return w.c.Flush(ctx)
}

// Send is Conn.Send.
func (w *WriteHalf) Send(ctx context.Context, m Message) error {
	return w.c.Send(ctx, m)
}

// Close is Conn.Close.
func (w *WriteHalf) Close(ctx context.Context) error {
	return w.c.Close(ctx)
}

var (
	_ MessageReader = (*ReadHalf)(nil)
	_ MessageWriter = (*WriteHalf)(nil)
)
