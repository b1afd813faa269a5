package wsupgrade

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

var keyGUID = []byte("258EAFA5-E914-47DA-95CA-C5AB0DC85B11")

// AcceptKey returns the Sec-WebSocket-Accept value for secWebSocketKey.
func AcceptKey(secWebSocketKey string) string {
	h := sha1.New()
	h.Write([]byte(secWebSocketKey))
	h.Write(keyGUID)

	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Validate checks that method and h describe a WebSocket upgrade request
// and takes the *OnUpgrade capability out of ext.
//
// The checks run in a fixed order and the first failure is returned as one
// of the Err* rejections. On success the Sec-WebSocket-Key header has been
// removed from h and the capability from ext. Nothing else is modified.
//
// The returned Upgrade waits for its response without a deadline. Prefer
// FromRequest when serving with net/http.
func Validate(method string, h http.Header, ext *Extensions) (*Upgrade, error) {
	if method != http.MethodGet {
		return nil, ErrMethodNotGet
	}

	// Clients do not all format Connection as a token list, so this is a
	// substring match rather than a token match.
	if !headerContains(h, "Connection", "upgrade") {
		return nil, ErrInvalidConnectionHeader
	}

	if !headerEqualFold(h, "Upgrade", "websocket") {
		return nil, ErrInvalidUpgradeHeader
	}

	if !headerEqualFold(h, "Sec-WebSocket-Version", "13") {
		return nil, ErrInvalidWebSocketVersionHeader
	}

	key, ok := takeHeader(h, "Sec-WebSocket-Key")
	if !ok {
		return nil, ErrWebSocketKeyHeaderMissing
	}

	onUpgrade, ok := Take[*OnUpgrade](ext)
	if !ok || onUpgrade == nil {
		return nil, ErrConnectionNotUpgradable
	}

	u := &Upgrade{
		key:       key,
		onUpgrade: onUpgrade,
		waitCtx:   context.Background(),
		ctx:       context.Background(),
	}
	if vs := h.Values("Sec-WebSocket-Protocol"); len(vs) > 0 {
		u.clientProtocols = vs[0]
		u.hasClientProtocols = true
	}
	return u, nil
}

// FromRequest validates r as a WebSocket upgrade.
//
// The upgrade capability is only present when r is at least HTTP/1.1 and
// w implements http.Hijacker. Otherwise ErrConnectionNotUpgradable is
// returned.
//
// The OnUpgrade callback receives a context that carries r's values but is
// not cancelled when the handler returns.
func FromRequest(w http.ResponseWriter, r *http.Request) (*Upgrade, error) {
	ext := NewExtensions()
	if hj, ok := w.(http.Hijacker); ok && r.ProtoAtLeast(1, 1) {
		Insert(ext, NewOnUpgrade(hj))
	}

	u, err := Validate(r.Method, r.Header, ext)
	if err != nil {
		return nil, err
	}

	g := graceFromRequest(r)
	if g != nil && g.isClosing() {
		return nil, ErrGraceClosing
	}

	u.grace = g
	u.waitCtx = r.Context()
	u.ctx = context.WithoutCancel(r.Context())
	return u, nil
}

// Handle returns a handler that validates each request and serves the
// Response returned by fn. Rejected requests are answered with the
// rejection's status and body and fn is not called.
//
// fn typically configures the Upgrade and returns the result of OnUpgrade.
// A nil Response writes nothing.
func Handle(fn func(r *http.Request, u *Upgrade) *Response) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := FromRequest(w, r)
		if err != nil {
			var rej *Rejection
			if errors.As(err, &rej) {
				rej.Response().ServeHTTP(w, r)
				return
			}
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		resp := fn(r, u)
		if resp != nil {
			resp.ServeHTTP(w, r)
		}
	})
}

func headerContains(h http.Header, key, lowerSub string) bool {
	vs := h.Values(key)
	if len(vs) == 0 {
		return false
	}
	return strings.Contains(strings.ToLower(vs[0]), lowerSub)
}

func headerEqualFold(h http.Header, key, val string) bool {
	vs := h.Values(key)
	if len(vs) == 0 {
		return false
	}
	// val is ASCII, so equal lengths keep Unicode folds such as the
	// Kelvin sign from matching an ASCII letter.
	return len(vs[0]) == len(val) && strings.EqualFold(vs[0], val)
}

// takeHeader removes key from h and returns its first value.
// A header that is present but empty is still present.
func takeHeader(h http.Header, key string) (string, bool) {
	vs := h.Values(key)
	if len(vs) == 0 {
		return "", false
	}
	h.Del(key)
	return vs[0], true
}
