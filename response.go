package wsupgrade

import (
	"net/http"
)

// Response is an HTTP response produced by the handshake: either the
// switching protocols response from OnUpgrade or a rejection.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	upgrade *OnUpgrade
}

// ServeHTTP writes resp to w.
//
// For a switching protocols response the connection is then hijacked,
// which hands it to the callback passed to OnUpgrade. w must be the
// ResponseWriter the Upgrade was created from.
func (resp *Response) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	for k, v := range resp.Header {
		h[k] = append([]string(nil), v...)
	}

	w.WriteHeader(resp.StatusCode)
	if resp.upgrade == nil {
		w.Write(resp.Body)
		return
	}

	// See https://github.com/nhooyr/websocket/issues/166
	if ginWriter, ok := w.(interface{ WriteHeaderNow() }); ok {
		ginWriter.WriteHeaderNow()
	}

	err := resp.upgrade.hijack()
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
