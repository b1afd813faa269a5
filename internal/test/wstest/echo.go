package wstest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/coder/wsupgrade"
	"github.com/coder/wsupgrade/internal/test/xrand"
	"github.com/coder/wsupgrade/internal/xsync"
)

// EchoLoop sends back every data message received on c until the peer
// closes, an error occurs or the context expires. It returns nil when the
// peer closed the connection.
func EchoLoop(ctx context.Context, c *wsupgrade.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute*5)
	defer cancel()

	for {
		m, err := c.Receive(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		switch m.Type {
		case wsupgrade.MessageText, wsupgrade.MessageBinary:
			err = c.Send(ctx, m)
			if err != nil {
				return err
			}
		}
	}
}

// Echo sends a random message and ensures the same is sent back on c.
func Echo(ctx context.Context, c *wsupgrade.Conn, max int) error {
	exp := randMessage(xrand.Int(max))

	writeErr := xsync.Go(func() error {
		return c.Send(ctx, exp)
	})

	act, err := c.Receive(ctx)
	if err != nil {
		return err
	}

	err = <-writeErr
	if err != nil {
		return err
	}

	if exp.Type != act.Type {
		return fmt.Errorf("unexpected message type (%v): %v", exp.Type, act.Type)
	}

	if !bytes.Equal(exp.Data, act.Data) {
		return fmt.Errorf("unexpected msg read: %#v", act.Data)
	}

	return nil
}

func randMessage(n int) wsupgrade.Message {
	if xrand.Bool() {
		return wsupgrade.Binary(xrand.Bytes(n))
	}
	return wsupgrade.Text(xrand.String(n))
}
