// Package middleware enforces per-client request budgets on HTTP routes.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"praman/internal/ratelimit/models"
	"praman/pkg/platform/httputil"
	"praman/pkg/platform/privacy"
	"praman/pkg/requestcontext"
)

const (
	headerLimit      = "X-RateLimit-Limit"
	headerRemaining  = "X-RateLimit-Remaining"
	headerReset      = "X-RateLimit-Reset"
	headerRetryAfter = "Retry-After"
)

type RateLimiter interface {
	CheckIPRateLimit(ctx context.Context, ip string, class models.EndpointClass) (*models.RateLimitResult, error)
}

type Middleware struct {
	limiter RateLimiter
	logger  *slog.Logger
}

func New(limiter RateLimiter, logger *slog.Logger) *Middleware {
	return &Middleware{limiter: limiter, logger: logger}
}

// RateLimit charges each request to the client IP's budget for class.
// When the limiter itself fails the request is served without headers.
func (m *Middleware) RateLimit(class models.EndpointClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)

			result, err := m.limiter.CheckIPRateLimit(ctx, ip, class)
			switch {
			case err != nil:
				m.logger.ErrorContext(ctx, "rate limit check failed, serving request",
					"error", err,
					"class", string(class),
					"ip_prefix", privacy.AnonymizeIP(ip),
				)
			case result != nil:
				setBudgetHeaders(w.Header(), result)
				if !result.Allowed {
					m.reject(ctx, w, class, ip, result)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) reject(ctx context.Context, w http.ResponseWriter, class models.EndpointClass, ip string, result *models.RateLimitResult) {
	m.logger.InfoContext(ctx, "request rate limited",
		"class", string(class),
		"ip_prefix", privacy.AnonymizeIP(ip),
		"retry_after", result.RetryAfter,
		"request_id", requestcontext.RequestID(ctx),
	)
	w.Header().Set(headerRetryAfter, strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.ExceededResponse{
		Code:       models.CodeRateLimitExceeded,
		Message:    "Too many requests. Please try again later.",
		RetryAfter: result.RetryAfter,
	})
}

func setBudgetHeaders(h http.Header, result *models.RateLimitResult) {
	h.Set(headerLimit, strconv.Itoa(result.Limit))
	h.Set(headerRemaining, strconv.Itoa(result.Remaining))
	h.Set(headerReset, strconv.FormatInt(result.ResetAt.Unix(), 10))
}
