package wsframe

import (
	"cdr.dev/slog"
)

// Defaults used when the corresponding Config field is zero.
const (
	DefaultMaxMessageSize = 64 << 20
	DefaultMaxFrameSize   = 16 << 20
)

// Role is the side of the connection a Conn speaks for.
type Role int

// Role constants.
const (
	// RoleServer expects masked frames and writes unmasked ones.
	RoleServer Role = iota
	// RoleClient expects unmasked frames and masks the frames it writes.
	RoleClient
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// Config holds the limits of a Conn. It is fixed once the Conn is created.
type Config struct {
	// MaxSendQueue bounds the number of frames WriteMessage may queue
	// before a Flush. Zero means no bound.
	MaxSendQueue int

	// MaxMessageSize bounds the size of a reassembled message.
	// Zero means DefaultMaxMessageSize.
	MaxMessageSize int64

	// MaxFrameSize bounds the payload of a single frame.
	// Zero means DefaultMaxFrameSize.
	MaxFrameSize int64

	// Logger receives control frame and close handshake events.
	// The zero value discards them.
	Logger slog.Logger
}

func (c Config) maxMessageSize() int64 {
	if c.MaxMessageSize > 0 {
		return c.MaxMessageSize
	}
	return DefaultMaxMessageSize
}

func (c Config) maxFrameSize() int64 {
	if c.MaxFrameSize > 0 {
		return c.MaxFrameSize
	}
	return DefaultMaxFrameSize
}
