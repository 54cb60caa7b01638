package observability

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-Id"
	DeviceIDHeader  = "X-Device-Id"

	// RequestIDKey is the gin context key holding the request id.
	RequestIDKey = "request_id"
)

// RequestMeta identifies the caller of an HTTP request or websocket handshake.
type RequestMeta struct {
	RequestID string
	DeviceID  string
	IP        string
	UserAgent string
}

func RequestMetaFrom(r *http.Request) RequestMeta {
	return RequestMeta{
		RequestID: r.Header.Get(RequestIDHeader),
		DeviceID:  r.Header.Get(DeviceIDHeader),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-Ip.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-Ip")); xr != "" {
		return xr
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// RequestID makes sure every request carries an id. An incoming X-Request-Id is
// kept, otherwise a UUID is assigned; the id is echoed on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			c.Request.Header.Set(RequestIDHeader, id)
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
