package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"praman/internal/did"
	"praman/internal/platform/metrics"
	"praman/internal/resolver/models"
	"praman/pkg/platform/circuit"
	"praman/pkg/platform/sentinel"
)

const (
	DefaultCacheTTL = 10 * time.Minute
	cacheKeyPrefix  = "did:doc:"
)

// CachedStore is a read-through cache in front of a Store. Cache failures
// never fail a lookup. After repeated failures the breaker opens and reads
// go straight to the delegate, with an occasional probe of the cache.
//
// Deactivation overwrites the cached entry with the deactivated registration.
// Reads fill active entries only into empty slots, so a read that raced a
// deactivation cannot put the active registration back over that entry.
type CachedStore struct {
	delegate Store
	cache    Cache
	ttl      time.Duration
	breaker  *circuit.Breaker
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type CachedOption func(*CachedStore)

func WithCacheTTL(ttl time.Duration) CachedOption {
	return func(s *CachedStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithCacheMetrics(m *metrics.Metrics) CachedOption {
	return func(s *CachedStore) {
		s.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) CachedOption {
	return func(s *CachedStore) {
		if b != nil {
			s.breaker = b
		}
	}
}

func NewCached(delegate Store, cache Cache, logger *slog.Logger, opts ...CachedOption) *CachedStore {
	s := &CachedStore{
		delegate: delegate,
		cache:    cache,
		ttl:      DefaultCacheTTL,
		breaker:  circuit.New("resolver_cache"),
		logger:   logger,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func cacheKey(d did.DID) string {
	return cacheKeyPrefix + d.Identifier()
}

func (s *CachedStore) Save(ctx context.Context, reg models.Registration) error {
	return s.delegate.Save(ctx, reg)
}

func (s *CachedStore) FindByDID(ctx context.Context, d did.DID) (models.Registration, error) {
	if !s.breaker.Allow() {
		s.metrics.IncrementCache("bypass")
		return s.delegate.FindByDID(ctx, d)
	}

	raw, err := s.cache.Get(ctx, cacheKey(d))
	switch {
	case err == nil:
		var entry cacheEntry
		if jsonErr := json.Unmarshal(raw, &entry); jsonErr == nil {
			s.recordSuccess(ctx)
			s.metrics.IncrementCache("hit")
			return entry.registration(), nil
		}
		s.metrics.IncrementCache("miss")
		if delErr := s.cache.Del(ctx, cacheKey(d)); delErr != nil {
			s.recordFailure(ctx, delErr)
		}
	case errors.Is(err, sentinel.ErrNotFound):
		s.recordSuccess(ctx)
		s.metrics.IncrementCache("miss")
	default:
		s.recordFailure(ctx, err)
		s.metrics.IncrementCache("error")
	}

	reg, err := s.delegate.FindByDID(ctx, d)
	if err != nil {
		return models.Registration{}, err
	}
	s.fill(ctx, d, reg)
	return reg, nil
}

// Deactivate writes through, then replaces the cached entry with the
// tombstone. When the cache can neither store the tombstone nor drop the
// entry, Deactivate fails so the caller retries; the delegate's deactivation
// is idempotent.
func (s *CachedStore) Deactivate(ctx context.Context, d did.DID, at time.Time) (models.Registration, error) {
	reg, err := s.delegate.Deactivate(ctx, d, at)
	if err != nil {
		return models.Registration{}, err
	}

	raw, err := json.Marshal(newCacheEntry(reg))
	if err != nil {
		return models.Registration{}, fmt.Errorf("encode resolver cache tombstone: %w", err)
	}
	setErr := s.cache.Set(ctx, cacheKey(d), raw, s.ttl)
	if setErr == nil {
		s.recordSuccess(ctx)
		return reg, nil
	}
	s.recordFailure(ctx, setErr)
	s.logger.WarnContext(ctx, "failed to cache deactivated did, evicting", "did", d.String(), "error", setErr)

	if delErr := s.cache.Del(ctx, cacheKey(d)); delErr != nil {
		s.recordFailure(ctx, delErr)
		return models.Registration{}, fmt.Errorf("evict resolver cache entry: %w", errors.Join(setErr, delErr))
	}
	return reg, nil
}

func (s *CachedStore) fill(ctx context.Context, d did.DID, reg models.Registration) {
	raw, err := json.Marshal(newCacheEntry(reg))
	if err != nil {
		return
	}
	if reg.IsDeactivated() {
		err = s.cache.Set(ctx, cacheKey(d), raw, s.ttl)
	} else {
		_, err = s.cache.SetNX(ctx, cacheKey(d), raw, s.ttl)
	}
	if err != nil {
		s.recordFailure(ctx, err)
		return
	}
	s.recordSuccess(ctx)
}

func (s *CachedStore) recordFailure(ctx context.Context, err error) {
	if s.breaker.Failure() == circuit.Opened {
		s.logger.ErrorContext(ctx, "circuit breaker opened", "circuit", s.breaker.Name(), "error", err)
	}
}

func (s *CachedStore) recordSuccess(ctx context.Context) {
	if s.breaker.Success() == circuit.Closed {
		s.logger.InfoContext(ctx, "circuit breaker closed", "circuit", s.breaker.Name())
	}
}

// cacheEntry is the JSON form of a registration held in the cache.
type cacheEntry struct {
	DID           string           `json:"did"`
	KeyType       string           `json:"keyType"`
	PublicKey     []byte           `json:"publicKey"`
	Services      []models.Service `json:"services,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
	DeactivatedAt *time.Time       `json:"deactivatedAt,omitempty"`
}

func newCacheEntry(reg models.Registration) cacheEntry {
	return cacheEntry{
		DID:           reg.DID.String(),
		KeyType:       string(reg.KeyType),
		PublicKey:     reg.PublicKey,
		Services:      reg.Services,
		CreatedAt:     reg.CreatedAt,
		UpdatedAt:     reg.UpdatedAt,
		DeactivatedAt: reg.DeactivatedAt,
	}
}

func (e cacheEntry) registration() models.Registration {
	return models.Registration{
		DID:           did.DID(e.DID),
		KeyType:       models.KeyType(e.KeyType),
		PublicKey:     e.PublicKey,
		Services:      e.Services,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
		DeactivatedAt: e.DeactivatedAt,
	}
}
