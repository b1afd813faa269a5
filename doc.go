// Package wsupgrade implements the server side of the WebSocket handshake
// for net/http and the message connection it produces.
//
// See https://tools.ietf.org/html/rfc6455
//
// A handler validates the request with FromRequest, optionally negotiates
// a subprotocol and limits, then serves the Response returned by OnUpgrade:
//
//	http.Handle("/ws", wsupgrade.Handle(func(r *http.Request, u *wsupgrade.Upgrade) *wsupgrade.Response {
//		return u.Protocols("echo").OnUpgrade(func(ctx context.Context, c *wsupgrade.Conn) {
//			for {
//				m, err := c.Receive(ctx)
//				if err != nil {
//					return
//				}
//				if m.Type == wsupgrade.MessageText || m.Type == wsupgrade.MessageBinary {
//					c.Send(ctx, m)
//				}
//			}
//		})
//	}))
//
// Requests that are not valid upgrades are answered with the status and
// body of the corresponding Rejection.
//
// Framing is done by package wsframe. Use NewConn to run a Conn over any
// other wsframe.Transport.
package wsupgrade
