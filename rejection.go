package wsupgrade

import (
	"net/http"
)

// RejectionKind identifies why a request could not be upgraded.
type RejectionKind int

// RejectionKind constants, in the order Validate checks for them.
const (
	MethodNotGet RejectionKind = iota + 1
	InvalidConnectionHeader
	InvalidUpgradeHeader
	InvalidWebSocketVersionHeader
	WebSocketKeyHeaderMissing
	ConnectionNotUpgradable
	// GraceClosing is reported by FromRequest once the request's Grace
	// has started shutting down.
	GraceClosing
)

func (k RejectionKind) String() string {
	switch k {
	case MethodNotGet:
		return "MethodNotGet"
	case InvalidConnectionHeader:
		return "InvalidConnectionHeader"
	case InvalidUpgradeHeader:
		return "InvalidUpgradeHeader"
	case InvalidWebSocketVersionHeader:
		return "InvalidWebSocketVersionHeader"
	case WebSocketKeyHeaderMissing:
		return "WebSocketKeyHeaderMissing"
	case ConnectionNotUpgradable:
		return "ConnectionNotUpgradable"
	case GraceClosing:
		return "GraceClosing"
	default:
		return "RejectionKind(unknown)"
	}
}

// Rejection is returned when a request is not a valid WebSocket upgrade.
// It carries the HTTP status and plain text body to respond with.
type Rejection struct {
	Kind   RejectionKind
	status int
	body   string
}

// Rejections returned by Validate and FromRequest.
// Compare against them with errors.Is.
var (
	ErrMethodNotGet = &Rejection{
		Kind:   MethodNotGet,
		status: http.StatusMethodNotAllowed,
		body:   "Request method must be `GET`",
	}
	ErrInvalidConnectionHeader = &Rejection{
		Kind:   InvalidConnectionHeader,
		status: http.StatusBadRequest,
		body:   "Connection header did not include 'upgrade'",
	}
	ErrInvalidUpgradeHeader = &Rejection{
		Kind:   InvalidUpgradeHeader,
		status: http.StatusBadRequest,
		body:   "`Upgrade` header did not include 'websocket'",
	}
	ErrInvalidWebSocketVersionHeader = &Rejection{
		Kind:   InvalidWebSocketVersionHeader,
		status: http.StatusBadRequest,
		body:   "`Sec-WebSocket-Version` header did not include '13'",
	}
	ErrWebSocketKeyHeaderMissing = &Rejection{
		Kind:   WebSocketKeyHeaderMissing,
		status: http.StatusBadRequest,
		body:   "`Sec-WebSocket-Key` header missing",
	}
	// ErrConnectionNotUpgradable is returned when the request carries no
	// upgrade capability, for example an HTTP/1.0 or HTTP/2 request.
	ErrConnectionNotUpgradable = &Rejection{
		Kind:   ConnectionNotUpgradable,
		status: http.StatusUpgradeRequired,
		body:   "WebSocket request couldn't be upgraded since no upgrade state was present",
	}
	ErrGraceClosing = &Rejection{
		Kind:   GraceClosing,
		status: http.StatusServiceUnavailable,
		body:   "server shutting down",
	}
)

func (r *Rejection) Error() string {
	return r.body
}

// StatusCode returns the HTTP status to respond with.
func (r *Rejection) StatusCode() int {
	return r.status
}

// Body returns the plain text body to respond with.
func (r *Rejection) Body() string {
	return r.body
}

// Response returns the HTTP response for r.
func (r *Rejection) Response() *Response {
	h := make(http.Header)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	return &Response{
		StatusCode: r.status,
		Header:     h,
		Body:       []byte(r.body),
	}
}
