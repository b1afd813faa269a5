package wsframe

import (
	"context"
)

// Transport is a framed, full duplex connection carrying wire messages.
//
// NextMessage must not be called concurrently with itself, and the write
// methods must not be called concurrently with each other. A reader and a
// writer may run in parallel.
type Transport interface {
	// NextMessage returns the next message from the peer.
	// It returns io.EOF once the close handshake has completed.
	NextMessage(ctx context.Context) (Message, error)

	// WriteMessage queues m for writing. It does not flush.
	WriteMessage(ctx context.Context, m Message) error

	// Flush writes every queued message to the peer.
	Flush(ctx context.Context) error

	// Shutdown releases the underlying connection.
	Shutdown() error
}
