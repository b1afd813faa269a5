package wstest

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/coder/wsupgrade"
	"github.com/coder/wsupgrade/internal/errd"
	"github.com/coder/wsupgrade/internal/test/xrand"
	"github.com/coder/wsupgrade/internal/xsync"
	"github.com/coder/wsupgrade/wsframe"
)

// PipeOptions configures Pipe.
type PipeOptions struct {
	// Subprotocols are offered by the client.
	Subprotocols []string

	// Upgrade, if set, configures the server side of the handshake.
	Upgrade func(u *wsupgrade.Upgrade) *wsupgrade.Upgrade

	// Client configures the client transport.
	Client wsframe.Config
}

// Pipe performs a handshake over an in memory connection, analogous to
// net.Pipe, and returns both ends.
func Pipe(opts *PipeOptions) (server, client *wsupgrade.Conn, err error) {
	defer errd.Wrap(&err, "failed to create ws pipe")

	if opts == nil {
		opts = &PipeOptions{}
	}

	sc, cc := net.Pipe()
	defer func() {
		if err != nil {
			sc.Close()
			cc.Close()
		}
	}()

	conns := make(chan *wsupgrade.Conn, 1)
	h := wsupgrade.Handle(func(r *http.Request, u *wsupgrade.Upgrade) *wsupgrade.Response {
		if opts.Upgrade != nil {
			u = opts.Upgrade(u)
		}
		return u.OnUpgrade(func(ctx context.Context, c *wsupgrade.Conn) {
			conns <- c
		})
	})

	key := base64.StdEncoding.EncodeToString(xrand.Bytes(16))
	r := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	r.Header.Set("Connection", "Upgrade")
	r.Header.Set("Upgrade", "websocket")
	r.Header.Set("Sec-WebSocket-Version", "13")
	r.Header.Set("Sec-WebSocket-Key", key)
	if len(opts.Subprotocols) > 0 {
		r.Header.Set("Sec-WebSocket-Protocol", strings.Join(opts.Subprotocols, ", "))
	}

	hj := testHijacker{
		ResponseRecorder: httptest.NewRecorder(),
		serverConn:       sc,
	}
	h.ServeHTTP(hj, r)

	resp := hj.Result()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		b, _ := io.ReadAll(resp.Body)
		return nil, nil, fmt.Errorf("unexpected handshake status %v: %q", resp.StatusCode, b)
	}
	if got := resp.Header.Get("Sec-WebSocket-Accept"); got != wsupgrade.AcceptKey(key) {
		return nil, nil, fmt.Errorf("unexpected Sec-WebSocket-Accept %q", got)
	}

	select {
	case server = <-conns:
	case <-time.After(time.Second * 5):
		return nil, nil, fmt.Errorf("upgrade callback was not called")
	}

	ct := wsframe.NewConn(cc, nil, wsframe.RoleClient, opts.Client)
	client = wsupgrade.NewConn(ct, resp.Header.Get("Sec-WebSocket-Protocol"))
	return server, client, nil
}

type testHijacker struct {
	*httptest.ResponseRecorder
	serverConn net.Conn
}

var _ http.Hijacker = testHijacker{}

func (hj testHijacker) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return hj.serverConn, bufio.NewReadWriter(bufio.NewReader(hj.serverConn), bufio.NewWriter(hj.serverConn)), nil
}

// ClosePipe closes a and b, starting the close handshake from a.
func ClosePipe(ctx context.Context, a, b *wsupgrade.Conn) error {
	errs := xsync.Go(func() error {
		for {
			_, err := b.Receive(ctx)
			if errors.Is(err, io.EOF) {
				// a has already shut down, so b's echo may have failed.
				b.Close(ctx)
				return nil
			}
			if err != nil {
				return err
			}
		}
	})

	err := a.Close(ctx)
	if err != nil {
		return err
	}
	return <-errs
}
