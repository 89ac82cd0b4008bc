package httpserver

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// TestNowHeader carries a unix-millisecond timestamp that replaces the clock
// when test mode is on.
const TestNowHeader = "x-test-now-ms"

type clockKey struct{}

// TestClock stores the TestNowHeader time in the request context when enabled.
// Missing or malformed headers leave the real clock in place.
func TestClock(enabled bool) func(http.Handler) http.Handler {
	if !enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v := strings.TrimSpace(r.Header.Get(TestNowHeader)); v != "" {
				if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
					ctx := context.WithValue(r.Context(), clockKey{}, time.UnixMilli(ms).UTC())
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func testNow(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(clockKey{}).(time.Time)
	return t, ok
}

// ClientIP returns the client IP respecting proxy headers when trustProxy is true.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if len(parts) > 0 {
				ip := strings.TrimSpace(parts[0])
				if ip != "" {
					return ip
				}
			}
		}
		if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
			return strings.TrimSpace(xrip)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
