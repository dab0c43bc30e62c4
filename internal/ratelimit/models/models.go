package models

import (
	"time"
)

// EndpointClass groups routes that share a request budget.
type EndpointClass string

const (
	// ClassDefault covers resolution and credential endpoints.
	ClassDefault EndpointClass = "default"
	// ClassEnrollment covers the WebAuthn ceremony, which is kept stricter
	// against challenge brute forcing.
	ClassEnrollment EndpointClass = "enrollment"
)

// CodeRateLimitExceeded is the error code returned with HTTP 429.
const CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"

func (c EndpointClass) IsValid() bool {
	switch c {
	case ClassDefault, ClassEnrollment:
		return true
	}
	return false
}

// Limit is a sliding window budget.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Key builds the bucket key for a client within a class.
func Key(class EndpointClass, clientIP string) string {
	if clientIP == "" {
		clientIP = "unknown"
	}
	return "ratelimit:" + string(class) + ":" + clientIP
}

type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"resetAt"`
	RetryAfter int       `json:"retryAfter,omitempty"` // seconds, only set when not allowed
}

// RetryAfterSeconds rounds the time until resetAt up to whole seconds.
func RetryAfterSeconds(resetAt, now time.Time) int {
	d := resetAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// ExceededResponse is the 429 body.
type ExceededResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}
