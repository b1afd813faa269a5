// Package wsgin serves WebSocket upgrades from gin handlers.
package wsgin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coder/wsupgrade"
)

// Handler returns a gin handler that validates the request as a WebSocket
// upgrade and serves the Response returned by fn.
//
// Rejected requests are answered with the rejection's status and body and
// the chain is aborted without calling fn.
func Handler(fn func(c *gin.Context, u *wsupgrade.Upgrade) *wsupgrade.Response) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := wsupgrade.FromRequest(c.Writer, c.Request)
		if err != nil {
			var rej *wsupgrade.Rejection
			if errors.As(err, &rej) {
				c.Data(rej.StatusCode(), "text/plain; charset=utf-8", []byte(rej.Body()))
				c.Abort()
				return
			}
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		resp := fn(c, u)
		if resp != nil {
			resp.ServeHTTP(c.Writer, c.Request)
		}
	}
}
