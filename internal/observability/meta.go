package observability

import (
	"net"
	"net/http"
	"strings"
)

// RequestMeta is the client-identifying metadata carried on published events
// alongside the session they describe.
type RequestMeta struct {
	DeviceID  string
	RequestID string
	IP        string
}

// MetaFromRequest extracts device, correlation and address metadata from an
// upgrade or API request. The client IP prefers the first X-Forwarded-For hop
// over the socket peer address.
func MetaFromRequest(r *http.Request) RequestMeta {
	return RequestMeta{
		DeviceID:  r.Header.Get("X-Device-Id"),
		RequestID: r.Header.Get("X-Request-Id"),
		IP:        clientIP(r),
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
