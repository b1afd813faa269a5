package wstest

import (
	"net/http/httptest"
	"net/url"
)

// URL is the address a WebSocket client dials to reach s.
// It is s.URL with the scheme switched to ws, or wss for TLS servers.
func URL(s *httptest.Server) string {
	u, err := url.Parse(s.URL)
	if err != nil {
		panic(err)
	}
	u.Scheme = "ws"
	if s.TLS != nil {
		u.Scheme = "wss"
	}
	return u.String()
}
