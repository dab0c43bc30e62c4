// Package privacy keeps identifying values out of logs and audit records.
package privacy

import (
	"net/netip"
	"net/url"
)

// AnonymizeIP truncates an IP address to its network prefix: /24 for IPv4
// and /48 for IPv6. Returns "unknown" for empty input and "invalid" for
// values that do not parse as an address.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()

	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}

// RedactURL strips credentials, query and path from a connection string so it
// can be logged. Only scheme and host survive.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "[redacted]"
	}
	return u.Scheme + "://" + u.Host
}
