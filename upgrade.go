package wsupgrade

import (
	"context"
	"net/http"
	"strings"

	"cdr.dev/slog"
	"golang.org/x/net/http/httpguts"

	"github.com/coder/wsupgrade/wsframe"
)

// Upgrade is a validated WebSocket upgrade request that has not been
// answered yet. Configure it with the builder methods and finish it with
// OnUpgrade.
type Upgrade struct {
	cfg      wsframe.Config
	protocol string
	key      string

	onUpgrade *OnUpgrade

	clientProtocols    string
	hasClientProtocols bool

	log     slog.Logger
	waitCtx context.Context
	ctx     context.Context
	grace   *Grace

	consumed bool
}

// MaxSendQueue bounds the number of messages that may be fed without a
// flush. Zero, the default, means no bound.
func (u *Upgrade) MaxSendQueue(n int) *Upgrade {
	u.cfg.MaxSendQueue = n
	return u
}

// MaxMessageSize sets the largest message the connection will read.
// Zero means wsframe.DefaultMaxMessageSize.
func (u *Upgrade) MaxMessageSize(n int64) *Upgrade {
	u.cfg.MaxMessageSize = n
	return u
}

// MaxFrameSize sets the largest frame payload the connection will read.
// Zero means wsframe.DefaultMaxFrameSize.
func (u *Upgrade) MaxFrameSize(n int64) *Upgrade {
	u.cfg.MaxFrameSize = n
	return u
}

// Logger sets the logger used by the upgrade task and the connection.
func (u *Upgrade) Logger(l slog.Logger) *Upgrade {
	u.log = l
	u.cfg.Logger = l
	return u
}

// Protocols negotiates a subprotocol against the client's
// Sec-WebSocket-Protocol header.
//
// The first candidate, in the order given, that equals one of the client's
// comma separated tokens is selected. Candidates that are not valid header
// values never match. With no client header or no match the protocol is
// left unset. Each call replaces the result of the previous one.
func (u *Upgrade) Protocols(candidates ...string) *Upgrade {
	u.protocol = ""
	if !u.hasClientProtocols || !visibleASCII(u.clientProtocols) {
		return u
	}

	offered := strings.Split(u.clientProtocols, ",")
	for i := range offered {
		offered[i] = strings.TrimSpace(offered[i])
	}

	for _, c := range candidates {
		if !httpguts.ValidHeaderFieldValue(c) {
			continue
		}
		for _, o := range offered {
			if c == o {
				u.protocol = c
				return u
			}
		}
	}
	return u
}

// Protocol returns the negotiated subprotocol or "" if there is none.
func (u *Upgrade) Protocol() string {
	return u.protocol
}

// OnUpgrade finishes the handshake.
//
// The returned Response switches protocols when served. Once it has been
// written and the connection taken over, cb runs in its own goroutine with
// the established connection. If taking over the connection fails, the
// failure is logged and cb is never called.
//
// OnUpgrade may only be called once.
func (u *Upgrade) OnUpgrade(cb func(ctx context.Context, c *Conn)) *Response {
	if u.consumed {
		panic("wsupgrade: OnUpgrade called twice on the same Upgrade")
	}
	u.consumed = true

	h := http.Header{}
	h.Set("Connection", "upgrade")
	h.Set("Upgrade", "websocket")
	h.Set("Sec-WebSocket-Accept", AcceptKey(u.key))
	if u.protocol != "" {
		h.Set("Sec-WebSocket-Protocol", u.protocol)
	}

	go u.run(cb)

	return &Response{
		StatusCode: http.StatusSwitchingProtocols,
		Header:     h,
		upgrade:    u.onUpgrade,
	}
}

func (u *Upgrade) run(cb func(ctx context.Context, c *Conn)) {
	ctx := u.ctx
	log := u.log.Named("wsupgrade")

	nc, brw, err := u.onUpgrade.Wait(u.waitCtx)
	if err != nil {
		log.Error(ctx, "connection upgrade failed", slog.Error(err))
		return
	}

	c := NewConn(wsframe.NewConn(nc, brw, wsframe.RoleServer, u.cfg), u.protocol)
	if u.grace != nil {
		err = u.grace.addConn(c)
		if err != nil {
			log.Error(ctx, "connection upgrade refused", slog.Error(err))
			return
		}
		defer u.grace.delConn(c)
	}

	log.Debug(ctx, "connection upgraded", slog.F("protocol", u.protocol))
	cb(ctx, c)
}

func visibleASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b != ' ' && b != '\t' && (b < 0x21 || b > 0x7e) {
			return false
		}
	}
	return true
}
