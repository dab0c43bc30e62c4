package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"praman/internal/ratelimit/models"
	"praman/pkg/requestcontext"
)

type MiddlewareSuite struct {
	suite.Suite
	logger *slog.Logger
}

func TestMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(MiddlewareSuite))
}

func (s *MiddlewareSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubLimiter struct {
	result  *models.RateLimitResult
	err     error
	gotIP   string
	gotCall models.EndpointClass
}

func (l *stubLimiter) CheckIPRateLimit(_ context.Context, ip string, class models.EndpointClass) (*models.RateLimitResult, error) {
	l.gotIP = ip
	l.gotCall = class
	return l.result, l.err
}

func (s *MiddlewareSuite) serve(limiter RateLimiter, class models.EndpointClass) (*httptest.ResponseRecorder, bool) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	handler := New(limiter, s.logger).RateLimit(class)(next)

	req := httptest.NewRequest(http.MethodPost, "/enrollment/start", nil)
	req = req.WithContext(requestcontext.WithClientMetadata(req.Context(), "203.0.113.7", "test-agent"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, called
}

func (s *MiddlewareSuite) TestAllowedRequestGetsHeaders() {
	reset := time.Unix(1_700_000_000, 0)
	limiter := &stubLimiter{result: &models.RateLimitResult{Allowed: true, Limit: 10, Remaining: 9, ResetAt: reset}}

	rec, called := s.serve(limiter, models.ClassEnrollment)

	s.True(called)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("10", rec.Header().Get("X-RateLimit-Limit"))
	s.Equal("9", rec.Header().Get("X-RateLimit-Remaining"))
	s.Equal("1700000000", rec.Header().Get("X-RateLimit-Reset"))
	s.Equal("203.0.113.7", limiter.gotIP)
	s.Equal(models.ClassEnrollment, limiter.gotCall)
}

func (s *MiddlewareSuite) TestExceededReturns429() {
	limiter := &stubLimiter{result: &models.RateLimitResult{
		Allowed: false, Limit: 10, Remaining: 0, ResetAt: time.Now().Add(time.Minute), RetryAfter: 42,
	}}

	rec, called := s.serve(limiter, models.ClassDefault)

	s.False(called)
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Equal("42", rec.Header().Get("Retry-After"))

	var body models.ExceededResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal(models.CodeRateLimitExceeded, body.Code)
	s.Equal(42, body.RetryAfter)
}

func (s *MiddlewareSuite) TestLimiterFailureFailsOpen() {
	limiter := &stubLimiter{err: errors.New("redis down")}

	rec, called := s.serve(limiter, models.ClassDefault)

	s.True(called)
	s.Equal(http.StatusOK, rec.Code)
	s.Empty(rec.Header().Get("X-RateLimit-Limit"))
}
