package bucket

import (
	"context"
	"time"

	"praman/internal/ratelimit/models"
)

// Store counts requests per key in a sliding window. AllowN consumes cost
// units only when the whole cost fits within limit.
type Store interface {
	AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (*models.RateLimitResult, error)
}
