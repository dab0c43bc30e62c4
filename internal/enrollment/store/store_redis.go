package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"praman/internal/enrollment/models"
	"praman/pkg/platform/sentinel"
	"praman/pkg/requestcontext"
)

const (
	sessionKeyPrefix = "enrollment:"

	// expiredGrace keeps a session readable past ExpiresAt so a late
	// verification reports Expired instead of NotFound.
	expiredGrace = time.Minute
)

// consumeScript deletes the session only while it holds the expected
// challenge and returns the stored payload, or nil when nothing was deleted.
var consumeScript = redis.NewScript(`
local payload = redis.call('GET', KEYS[1])
if not payload then
  return false
end
local ok, session = pcall(cjson.decode, payload)
if not ok or session['challenge'] ~= ARGV[1] then
  return false
end
redis.call('DEL', KEYS[1])
return payload
`)

// RedisStore persists sessions as JSON under enrollment:<userId> with a TTL
// derived from the session expiry.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedis(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(userID string) string {
	return sessionKeyPrefix + userID
}

// Create writes the session with SET NX. When a session is already present
// it is replaced only if it has expired and is sitting out its grace period.
func (s *RedisStore) Create(ctx context.Context, session models.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal enrollment session: %w", err)
	}
	now := requestcontext.Now(ctx)
	ttl := session.ExpiresAt.Sub(now) + expiredGrace
	if ttl <= 0 {
		ttl = expiredGrace
	}
	key := sessionKey(session.UserID)

	created, err := s.client.SetNX(ctx, key, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("save enrollment session: %w", err)
	}
	if created {
		return nil
	}

	existing, err := s.Find(ctx, session.UserID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
	case err != nil:
		return err
	case !existing.IsExpiredAt(now):
		return sentinel.ErrAlreadyUsed
	}
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("save enrollment session: %w", err)
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, userID string) (models.Session, error) {
	payload, err := s.client.Get(ctx, sessionKey(userID)).Bytes()
	return decodeSession(payload, err)
}

// Consume runs the check and the delete as one script, so concurrent
// callers on any replica see the session at most once.
func (s *RedisStore) Consume(ctx context.Context, userID, challenge string) (models.Session, error) {
	payload, err := consumeScript.Run(ctx, s.client, []string{sessionKey(userID)}, challenge).Text()
	return decodeSession([]byte(payload), err)
}

func decodeSession(payload []byte, err error) (models.Session, error) {
	if errors.Is(err, redis.Nil) {
		return models.Session{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("load enrollment session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return models.Session{}, fmt.Errorf("decode enrollment session: %w", err)
	}
	return session, nil
}
