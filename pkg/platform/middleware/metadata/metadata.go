package metadata

import (
	"context"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

// Context keys for client metadata.
type contextKeyClientIP struct{}
type contextKeyDeviceLabel struct{}

// proxyHeaders are consulted in order when resolving the client IP. Several
// proxy generations are still in front of deployments, hence the legacy
// WebLogic header.
var proxyHeaders = []string{"X-Forwarded-For", "Proxy-Client-IP", "WL-Proxy-Client-IP"}

// ClientMetadata extracts the client IP address and a coarse device label
// from the request and adds them to the context for handlers and services.
// Apply early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = context.WithValue(ctx, contextKeyClientIP{}, ClientIPFromRequest(r))
		ctx = context.WithValue(ctx, contextKeyDeviceLabel{}, deviceLabel(r.Header.Get("User-Agent")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientIP retrieves the client IP address from the context.
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(contextKeyClientIP{}).(string); ok {
		return ip
	}
	return ""
}

// GetDeviceLabel retrieves the coarse device label ("browser/os") from the
// context. Best-effort; "" when the User-Agent was absent or unparseable.
func GetDeviceLabel(ctx context.Context) string {
	if label, ok := ctx.Value(contextKeyDeviceLabel{}).(string); ok {
		return label
	}
	return ""
}

// WithClientMetadata injects client metadata into a context. Useful for
// service unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, deviceLabel string) context.Context {
	ctx = context.WithValue(ctx, contextKeyClientIP{}, clientIP)
	ctx = context.WithValue(ctx, contextKeyDeviceLabel{}, deviceLabel)
	return ctx
}

// ClientIPFromRequest extracts the real client IP, handling proxies and load
// balancers. Proxy headers carrying "unknown" are treated as absent; a
// multi-hop X-Forwarded-For yields its first segment (the original client).
func ClientIPFromRequest(r *http.Request) string {
	for _, header := range proxyHeaders {
		ip := r.Header.Get(header)
		if ip == "" || strings.EqualFold(ip, "unknown") {
			continue
		}
		if idx := strings.Index(ip, ","); idx != -1 {
			return strings.TrimSpace(ip[:idx])
		}
		return strings.TrimSpace(ip)
	}

	// Fall back to RemoteAddr (direct connection). RemoteAddr is "ip:port";
	// for IPv6 the host part is bracketed.
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return strings.Trim(addr[:idx], "[]")
		}
		return addr
	}

	return "unknown"
}

func deviceLabel(ua string) string {
	if ua == "" {
		return ""
	}
	parsed := useragent.New(ua)
	name, _ := parsed.Browser()
	if name == "" {
		return parsed.OS()
	}
	if os := parsed.OS(); os != "" {
		return name + "/" + os
	}
	return name
}
