//go:build integration

// Package containers starts the backing services integration tests run
// against. Each service starts on first use and is shared by every suite in
// the test binary.
package containers

import (
	"sync"
	"testing"
)

type Manager struct {
	postgres shared[*PostgresContainer]
	redis    shared[*RedisContainer]
	mongo    shared[*MongoContainer]
	kafka    shared[*KafkaContainer]
}

var manager = &Manager{}

func GetManager() *Manager {
	return manager
}

// GetPostgres returns a migrated Postgres.
func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return m.postgres.get(t, NewPostgresContainer)
}

func (m *Manager) GetRedis(t *testing.T) *RedisContainer {
	t.Helper()
	return m.redis.get(t, NewRedisContainer)
}

func (m *Manager) GetMongo(t *testing.T) *MongoContainer {
	t.Helper()
	return m.mongo.get(t, NewMongoContainer)
}

// GetKafka returns a Redpanda broker with topic auto-creation enabled.
func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return m.kafka.get(t, NewKafkaContainer)
}

// shared holds a container started at most once. A failed start fails the
// calling test and leaves the slot empty for the next caller.
type shared[T any] struct {
	mu      sync.Mutex
	value   T
	started bool
}

func (s *shared[T]) get(t *testing.T, start func(*testing.T) T) T {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.value = start(t)
		s.started = true
	}
	return s.value
}
