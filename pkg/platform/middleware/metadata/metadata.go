// Package metadata puts the caller's IP and User-Agent on the request context.
// Enrollment binds the derived hardware id to these values.
package metadata

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"

	"praman/pkg/requestcontext"
)

// MaxXFFHeaderLength bounds the X-Forwarded-For header that will be parsed.
const MaxXFFHeaderLength = 500

// Middleware extracts client metadata. Forwarding headers are honoured only
// when the direct peer is one of the trusted proxies.
type Middleware struct {
	trustedProxies []netip.Prefix
}

// NewMiddleware creates the metadata middleware. A nil or empty prefix list
// means forwarding headers are never trusted.
func NewMiddleware(trustedProxies []netip.Prefix) *Middleware {
	return &Middleware{trustedProxies: trustedProxies}
}

// ParseTrustedProxies parses a comma-separated CIDR list such as "10.0.0.0/8,172.16.0.0/12".
func ParseTrustedProxies(csv string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := netip.ParsePrefix(part)
		if err != nil {
			return nil, fmt.Errorf("parse trusted proxy %q: %w", part, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Handler stores the client IP and User-Agent on the request context.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), m.clientIP(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) clientIP(r *http.Request) string {
	remote, ok := parseRemoteAddr(r.RemoteAddr)
	if !ok {
		return "unknown"
	}
	if !m.isTrusted(remote) {
		return remote.String()
	}

	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		forwarded = r.Header.Get("X-Real-IP")
	}
	if forwarded == "" || len(forwarded) > MaxXFFHeaderLength {
		return remote.String()
	}

	first, _, _ := strings.Cut(forwarded, ",")
	addr, err := netip.ParseAddr(strings.TrimSpace(first))
	if err != nil {
		return remote.String()
	}
	return addr.Unmap().String()
}

func (m *Middleware) isTrusted(addr netip.Addr) bool {
	for _, p := range m.trustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parseRemoteAddr(remoteAddr string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(remoteAddr); err == nil {
		return ap.Addr().Unmap(), true
	}
	if addr, err := netip.ParseAddr(remoteAddr); err == nil {
		return addr.Unmap(), true
	}
	return netip.Addr{}, false
}
