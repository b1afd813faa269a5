// Package wsjson provides helpers for JSON messages.
package wsjson

import (
	"bytes"
	"context"
	"encoding/json"

	"golang.org/x/xerrors"

	"github.com/coder/wsupgrade"
)

// MaxMessageSize is the largest JSON message Receive will decode.
const MaxMessageSize = 32768

// Receive reads the next text message from c and decodes it into v.
// Pings and pongs received before it are skipped.
func Receive(ctx context.Context, c wsupgrade.MessageReader, v interface{}) error {
	err := receive(ctx, c, v)
	if err != nil {
		return xerrors.Errorf("failed to read json: %w", err)
	}
	return nil
}

func receive(ctx context.Context, c wsupgrade.MessageReader, v interface{}) error {
	m, err := nextData(ctx, c)
	if err != nil {
		return err
	}

	if m.Type != wsupgrade.MessageText {
		return xerrors.Errorf("unexpected message type for json (expected %v): %v", wsupgrade.MessageText, m.Type)
	}

	if len(m.Data) > MaxMessageSize {
		return xerrors.Errorf("json message of %v bytes exceeds %v", len(m.Data), MaxMessageSize)
	}

	d := json.NewDecoder(bytes.NewReader(m.Data))
	err = d.Decode(v)
	if err != nil {
		return xerrors.Errorf("failed to decode json: %w", err)
	}

	return nil
}

func nextData(ctx context.Context, c wsupgrade.MessageReader) (wsupgrade.Message, error) {
	for {
		m, err := c.Receive(ctx)
		if err != nil {
			return wsupgrade.Message{}, err
		}
		if m.Type == wsupgrade.MessagePing || m.Type == wsupgrade.MessagePong {
			continue
		}
		return m, nil
	}
}

// Send encodes v and sends it to c as a text message.
func Send(ctx context.Context, c wsupgrade.MessageWriter, v interface{}) error {
	err := send(ctx, c, v)
	if err != nil {
		return xerrors.Errorf("failed to write json: %w", err)
	}
	return nil
}

func send(ctx context.Context, c wsupgrade.MessageWriter, v interface{}) error {
	var b bytes.Buffer
	e := json.NewEncoder(&b)
	err := e.Encode(v)
	if err != nil {
		return xerrors.Errorf("failed to encode json: %w", err)
	}

	return c.Send(ctx, wsupgrade.Message{Type: wsupgrade.MessageText, Data: b.Bytes()})
}
