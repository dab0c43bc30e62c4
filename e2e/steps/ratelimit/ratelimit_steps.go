//go:build e2e

package ratelimit

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseHeader(name string) string
}

// RegisterSteps registers rate limiting step definitions. Scenarios using
// them need a server started with RATE_LIMIT_ENABLED=true.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I send (\d+) enrollment start requests$`, steps.sendEnrollmentStarts)
	ctx.Step(`^the response should carry rate limit headers$`, steps.responseCarriesHeaders)
	ctx.Step(`^at least one request should be rate limited$`, steps.someRequestLimited)
	ctx.Step(`^the rate limited response should ask me to retry later$`, steps.limitedResponseHasRetry)
}

type ratelimitSteps struct {
	tc             TestContext
	requestResults []int // status codes from multiple requests
	retryAfter     string
	limitedBody    bool
}

func (s *ratelimitSteps) sendEnrollmentStarts(ctx context.Context, n int) error {
	s.requestResults = make([]int, 0, n)
	for range n {
		if err := s.tc.POST("/enrollment/start", map[string]any{}); err != nil {
			return err
		}
		status := s.tc.GetLastResponseStatus()
		s.requestResults = append(s.requestResults, status)
		if status == 429 && s.retryAfter == "" {
			s.retryAfter = s.tc.GetLastResponseHeader("Retry-After")
			code, err := s.tc.GetResponseField("code")
			s.limitedBody = err == nil && code == "RATE_LIMIT_EXCEEDED"
		}
	}
	return nil
}

func (s *ratelimitSteps) responseCarriesHeaders(ctx context.Context) error {
	for _, header := range []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"} {
		if s.tc.GetLastResponseHeader(header) == "" {
			return fmt.Errorf("response is missing %s", header)
		}
	}
	return nil
}

func (s *ratelimitSteps) someRequestLimited(ctx context.Context) error {
	for _, status := range s.requestResults {
		if status == 429 {
			return nil
		}
	}
	return fmt.Errorf("no request was rate limited, statuses: %v", s.requestResults)
}

func (s *ratelimitSteps) limitedResponseHasRetry(ctx context.Context) error {
	seconds, err := strconv.Atoi(s.retryAfter)
	if err != nil || seconds <= 0 {
		return fmt.Errorf("expected a positive Retry-After header, got %q", s.retryAfter)
	}
	if !s.limitedBody {
		return fmt.Errorf("rate limited response did not carry the RATE_LIMIT_EXCEEDED code")
	}
	return nil
}
