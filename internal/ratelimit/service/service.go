package service

import (
	"context"
	"fmt"
	"log/slog"

	"praman/internal/platform/metrics"
	"praman/internal/ratelimit/models"
	"praman/internal/ratelimit/store/bucket"
	"praman/pkg/platform/privacy"
)

// Service enforces per-client-IP limits for each endpoint class.
type Service struct {
	buckets bucket.Store
	limits  map[models.EndpointClass]models.Limit
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New validates limits and returns a limiter. Every class that is checked
// must have a positive limit.
func New(buckets bucket.Store, limits map[models.EndpointClass]models.Limit, opts ...Option) (*Service, error) {
	if buckets == nil {
		return nil, fmt.Errorf("bucket store is required")
	}
	for class, limit := range limits {
		if !class.IsValid() {
			return nil, fmt.Errorf("unknown endpoint class %q", class)
		}
		if limit.Requests <= 0 || limit.Window <= 0 {
			return nil, fmt.Errorf("limit for %s must have positive requests and window", class)
		}
	}
	svc := &Service{
		buckets: buckets,
		limits:  limits,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CheckIPRateLimit consumes one request for clientIP in class.
func (s *Service) CheckIPRateLimit(ctx context.Context, clientIP string, class models.EndpointClass) (*models.RateLimitResult, error) {
	limit, ok := s.limits[class]
	if !ok {
		return nil, fmt.Errorf("no limit configured for class %q", class)
	}

	result, err := s.buckets.AllowN(ctx, models.Key(class, clientIP), 1, limit.Requests, limit.Window)
	if err != nil {
		return nil, err
	}
	if !result.Allowed {
		s.metrics.IncrementRateLimited(string(class))
		s.logger.WarnContext(ctx, "rate limit exceeded",
			"class", string(class),
			"ip_prefix", privacy.AnonymizeIP(clientIP),
			"retry_after", result.RetryAfter,
		)
	}
	return result, nil
}
