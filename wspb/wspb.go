// Package wspb provides helpers for protobuf messages.
package wspb

import (
	"context"

	"github.com/golang/protobuf/proto"
	"golang.org/x/xerrors"

	"github.com/coder/wsupgrade"
)

// MaxMessageSize is the largest protobuf message Receive will unmarshal.
const MaxMessageSize = 32768

// Receive reads the next binary message from c and unmarshals it into v.
// Pings and pongs received before it are skipped.
func Receive(ctx context.Context, c wsupgrade.MessageReader, v proto.Message) error {
	err := receive(ctx, c, v)
	if err != nil {
		return xerrors.Errorf("failed to read protobuf: %w", err)
	}
	return nil
}

func receive(ctx context.Context, c wsupgrade.MessageReader, v proto.Message) error {
	var m wsupgrade.Message
	for {
		var err error
		m, err = c.Receive(ctx)
		if err != nil {
			return err
		}
		if m.Type != wsupgrade.MessagePing && m.Type != wsupgrade.MessagePong {
			break
		}
	}

	if m.Type != wsupgrade.MessageBinary {
		return xerrors.Errorf("unexpected message type for protobuf (expected %v): %v", wsupgrade.MessageBinary, m.Type)
	}

	if len(m.Data) > MaxMessageSize {
		return xerrors.Errorf("protobuf message of %v bytes exceeds %v", len(m.Data), MaxMessageSize)
	}

	err := proto.Unmarshal(m.Data, v)
	if err != nil {
		return xerrors.Errorf("failed to unmarshal protobuf: %w", err)
	}

	return nil
}

// Send marshals v and sends it to c as a binary message.
func Send(ctx context.Context, c wsupgrade.MessageWriter, v proto.Message) error {
	err := send(ctx, c, v)
	if err != nil {
		return xerrors.Errorf("failed to write protobuf: %w", err)
	}
	return nil
}

func send(ctx context.Context, c wsupgrade.MessageWriter, v proto.Message) error {
	b, err := proto.Marshal(v)
	if err != nil {
		return xerrors.Errorf("failed to marshal protobuf: %w", err)
	}

	return c.Send(ctx, wsupgrade.Binary(b))
}
