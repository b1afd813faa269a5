package wsframe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"cdr.dev/slog"
	"github.com/eapache/queue"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Errors returned by Conn.
var (
	ErrFrameTooLarge     = wsutil.ErrFrameTooLarge
	ErrMessageTooLarge   = errors.New("message exceeds max message size")
	ErrSendQueueFull     = errors.New("send queue is full")
	ErrCloseSent         = errors.New("close frame already sent")
	ErrControlTooLarge   = errors.New("control frame payload exceeds 125 bytes")
	ErrUnknownKind       = errors.New("unknown message kind")
	ErrClosedNoHandshake = errors.New("connection closed without a close frame")
)

const maxControlPayload = 125

// Conn is a Transport over a net.Conn that uses gobwas/ws for framing.
//
// Pings are answered with pongs and a close frame from the peer is echoed
// before either is returned from NextMessage.
type Conn struct {
	nc   net.Conn
	role Role
	cfg  Config
	log  slog.Logger

	readMu        sync.Mutex
	rd            *wsutil.Reader
	readCtx       context.Context
	readErr       error
	closeReceived bool
	readDeadline  deadline

	writeMu       sync.Mutex
	bw            *bufio.Writer
	queue         *queue.Queue
	closeSent     bool
	writeDeadline deadline

	shutdownOnce sync.Once
	shutdownErr  error
}

var _ Transport = (*Conn)(nil)

// NewConn returns a Conn reading from and writing to nc.
// brw may hold data already buffered from nc, as returned by http.Hijacker.
// A nil brw, or a nil half of it, is replaced with a fresh buffer over nc.
func NewConn(nc net.Conn, brw *bufio.ReadWriter, role Role, cfg Config) *Conn {
	var br *bufio.Reader
	var bw *bufio.Writer
	if brw != nil {
		br = brw.Reader
		bw = brw.Writer
	}
	if br == nil {
		br = bufio.NewReader(nc)
	}
	if bw == nil {
		bw = bufio.NewWriter(nc)
	}

	c := &Conn{
		nc:      nc,
		role:    role,
		cfg:     cfg,
		log:     cfg.Logger.Named("wsframe").With(slog.F("role", role.String())),
		bw:      bw,
		queue:   queue.New(),
		readCtx: context.Background(),
	}
	c.readDeadline.set = nc.SetReadDeadline
	c.writeDeadline.set = nc.SetWriteDeadline

	state := ws.StateServerSide
	if role == RoleClient {
		state = ws.StateClientSide
	}
	c.rd = &wsutil.Reader{
		Source:         br,
		State:          state,
		CheckUTF8:      true,
		MaxFrameSize:   cfg.maxFrameSize(),
		OnIntermediate: c.handleIntermediate,
	}
	return c
}

// NextMessage reads the next complete message.
//
// Fragmented messages are reassembled. Control frames that arrive between
// fragments are handled but not returned. After the peer's close frame
// has been returned, NextMessage returns io.EOF.
//
// Any error other than io.EOF is sticky: the connection can no longer be read.
func (c *Conn) NextMessage(ctx context.Context) (Message, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.readErr != nil {
		return Message{}, c.readErr
	}
	if c.closeReceived {
		return Message{}, io.EOF
	}

	stop := c.readDeadline.watch(ctx)
	defer stop()

	c.readCtx = ctx
	defer func() {
		c.readCtx = context.Background()
	}()

	m, err := c.readMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("failed to read frame: %w", ctx.Err())
		}
		c.readErr = err
		return Message{}, err
	}
	return m, nil
}

func (c *Conn) readMessage(ctx context.Context) (Message, error) {
	hdr, err := c.rd.NextFrame()
	if err != nil {
		return Message{}, c.readFailed(ctx, err)
	}
	if hdr.OpCode.IsControl() {
		p, err := io.ReadAll(c.rd)
		if err != nil {
			return Message{}, c.readFailed(ctx, err)
		}
		return c.handleControl(ctx, hdr.OpCode, p)
	}

	max := c.cfg.maxMessageSize()
	p, err := io.ReadAll(io.LimitReader(c.rd, max+1))
	if err != nil {
		var ic *intermediateCloseError
		if errors.As(err, &ic) {
			return ic.msg, nil
		}
		return Message{}, c.readFailed(ctx, err)
	}
	if int64(len(p)) > max {
		return Message{}, c.fail(ctx, ws.StatusMessageTooBig, ErrMessageTooLarge)
	}

	kind := KindBinary
	if hdr.OpCode == ws.OpText {
		kind = KindText
	}
	return Message{Kind: kind, Payload: p}, nil
}

func (c *Conn) handleControl(ctx context.Context, op ws.OpCode, p []byte) (Message, error) {
	switch op {
	case ws.OpPing:
		err := c.reply(ctx, ws.NewPongFrame(p))
		if err != nil {
			return Message{}, fmt.Errorf("failed to write pong: %w", err)
		}
		c.log.Debug(ctx, "answered ping", slog.F("len", len(p)))
		return Message{Kind: KindPing, Payload: p}, nil
	case ws.OpPong:
		return Message{Kind: KindPong, Payload: p}, nil
	case ws.OpClose:
		c.closeReceived = true

		m := Message{Kind: KindClose}
		if len(p) > 0 {
			if len(p) < 2 {
				return Message{}, c.fail(ctx, ws.StatusProtocolError, errors.New("close payload cannot hold a status code"))
			}
			code, reason := ws.ParseCloseFrameData(p)
			err := ws.CheckCloseFrameData(code, reason)
			if err != nil {
				return Message{}, c.fail(ctx, ws.StatusProtocolError, fmt.Errorf("invalid close frame: %w", err))
			}
			m.Payload = p
			m.Close = &CloseFrame{Code: code, Reason: reason}
		}

		err := c.reply(ctx, ws.NewCloseFrame(p))
		if err != nil {
			c.log.Debug(ctx, "failed to echo close frame", slog.Error(err))
		}
		c.log.Debug(ctx, "received close frame", slog.F("payload_len", len(p)))
		return m, nil
	default:
		return Message{}, c.fail(ctx, ws.StatusProtocolError, fmt.Errorf("unexpected control opcode %v", op))
	}
}

// intermediateCloseError aborts reading a fragmented message when the peer
// sends a close frame between fragments.
type intermediateCloseError struct {
	msg Message
}

func (e *intermediateCloseError) Error() string {
	return "close frame received inside fragmented message"
}

func (c *Conn) handleIntermediate(hdr ws.Header, r io.Reader) error {
	p, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m, err := c.handleControl(c.readCtx, hdr.OpCode, p)
	if err != nil {
		return err
	}
	if m.Kind == KindClose {
		return &intermediateCloseError{msg: m}
	}
	return nil
}

func (c *Conn) readFailed(ctx context.Context, err error) error {
	var pe ws.ProtocolError
	switch {
	case errors.Is(err, ErrFrameTooLarge):
		return c.fail(ctx, ws.StatusMessageTooBig, err)
	case errors.Is(err, wsutil.ErrInvalidUTF8):
		return c.fail(ctx, ws.StatusInvalidFramePayloadData, err)
	case errors.As(err, &pe):
		return c.fail(ctx, ws.StatusProtocolError, err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ErrClosedNoHandshake
	default:
		return fmt.Errorf("failed to read frame: %w", err)
	}
}

// fail sends a close frame with code and returns err.
func (c *Conn) fail(ctx context.Context, code ws.StatusCode, err error) error {
	werr := c.reply(ctx, ws.NewCloseFrame(ws.NewCloseFrameBody(code, "")))
	if werr != nil {
		c.log.Debug(ctx, "failed to write close frame", slog.F("code", int(code)), slog.Error(werr))
	}
	return err
}

// reply writes a control frame on behalf of the read path.
// Nothing is written once a close frame has been sent.
func (c *Conn) reply(ctx context.Context, f ws.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closeSent {
		return nil
	}
	if f.Header.OpCode == ws.OpClose {
		c.closeSent = true
	}

	stop := c.writeDeadline.watch(ctx)
	defer stop()

	err := ws.WriteFrame(c.bw, c.mask(f))
	if err != nil {
		return err
	}
	return c.bw.Flush()
}

// WriteMessage queues m. It returns ErrSendQueueFull when MaxSendQueue
// frames are already waiting for a Flush.
func (c *Conn) WriteMessage(ctx context.Context, m Message) error {
	f, err := newFrame(m)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closeSent {
		if m.Kind == KindClose {
			return nil
		}
		return ErrCloseSent
	}
	if max := c.cfg.MaxSendQueue; max > 0 && c.queue.Length() >= max {
		return ErrSendQueueFull
	}
	if m.Kind == KindClose {
		c.closeSent = true
	}
	c.queue.Add(c.mask(f))
	return nil
}

// Flush writes every queued frame and flushes the write buffer.
func (c *Conn) Flush(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	stop := c.writeDeadline.watch(ctx)
	defer stop()

	for c.queue.Length() > 0 {
		f := c.queue.Peek().(ws.Frame)
		err := ws.WriteFrame(c.bw, f)
		if err != nil {
			return c.writeFailed(ctx, err)
		}
		c.queue.Remove()
	}
	err := c.bw.Flush()
	if err != nil {
		return c.writeFailed(ctx, err)
	}
	return nil
}

func (c *Conn) writeFailed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("failed to write frame: %w", ctx.Err())
	}
	return fmt.Errorf("failed to write frame: %w", err)
}

// Shutdown closes the underlying net.Conn. Blocked reads and writes return.
func (c *Conn) Shutdown() error {
	c.shutdownOnce.Do(func() {
		c.shutdownErr = c.nc.Close()
	})
	return c.shutdownErr
}

func (c *Conn) mask(f ws.Frame) ws.Frame {
	if c.role != RoleClient {
		return f
	}
	// MaskFrameInPlace would scribble over the caller's payload.
	p := make([]byte, len(f.Payload))
	copy(p, f.Payload)
	f.Payload = p
	return ws.MaskFrameInPlace(f)
}

func newFrame(m Message) (ws.Frame, error) {
	switch m.Kind {
	case KindText:
		return ws.NewTextFrame(m.Payload), nil
	case KindBinary:
		return ws.NewBinaryFrame(m.Payload), nil
	case KindPing:
		if len(m.Payload) > maxControlPayload {
			return ws.Frame{}, ErrControlTooLarge
		}
		return ws.NewPingFrame(m.Payload), nil
	case KindPong:
		if len(m.Payload) > maxControlPayload {
			return ws.Frame{}, ErrControlTooLarge
		}
		return ws.NewPongFrame(m.Payload), nil
	case KindClose:
		if m.Close == nil {
			return ws.NewCloseFrame(nil), nil
		}
		if len(m.Close.Reason)+2 > maxControlPayload {
			return ws.Frame{}, ErrControlTooLarge
		}
		return ws.NewCloseFrame(ws.NewCloseFrameBody(m.Close.Code, m.Close.Reason)), nil
	case KindFrame:
		return ws.NewFrame(m.Header.OpCode, m.Header.Fin, m.Payload), nil
	default:
		return ws.Frame{}, fmt.Errorf("%w: %v", ErrUnknownKind, m.Kind)
	}
}
