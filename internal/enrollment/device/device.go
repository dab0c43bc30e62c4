package device

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/mssola/useragent"
)

// Type is the coarse form factor of an enrolling device.
type Type string

const (
	TypeMobile  Type = "mobile"
	TypeTablet  Type = "tablet"
	TypeDesktop Type = "desktop"
)

// HardwareIDLength is the number of hex characters kept from the digest.
const HardwareIDLength = 32

const unknown = "unknown"

// HardwareID binds an authenticator credential to the network and client it
// enrolled from. Missing IP or user agent values hash as "unknown".
func HardwareID(credentialID, clientIP, userAgent string) string {
	if clientIP == "" {
		clientIP = unknown
	}
	if userAgent == "" {
		userAgent = unknown
	}
	h := sha256.New()
	h.Write([]byte(credentialID))
	h.Write([]byte(clientIP))
	h.Write([]byte(userAgent))
	return hex.EncodeToString(h.Sum(nil))[:HardwareIDLength]
}

// Classify returns the device type for a User-Agent string.
func Classify(userAgentString string) Type {
	if userAgentString == "" {
		return TypeDesktop
	}
	ua := useragent.New(userAgentString)
	platform := ua.Platform()
	switch {
	case platform == "iPad" || strings.Contains(userAgentString, "Tablet"):
		return TypeTablet
	case strings.Contains(ua.OS(), "Android") && !strings.Contains(userAgentString, "Mobile"):
		return TypeTablet
	case ua.Mobile():
		return TypeMobile
	default:
		return TypeDesktop
	}
}

// Name extracts a human-readable device display name from a User-Agent string.
// Returns format: "Browser on OS" (e.g., "Chrome on macOS", "Safari on iPhone")
func Name(userAgentString string) string {
	if userAgentString == "" {
		return "Unknown Device"
	}

	ua := useragent.New(userAgentString)

	browser, _ := ua.Browser()
	os := ua.OS()

	if ua.Mobile() {
		if platform := ua.Platform(); platform != "" {
			return strings.TrimSpace(browser + " on " + platform)
		}
	}

	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}
