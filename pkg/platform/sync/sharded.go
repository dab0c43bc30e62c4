// Package sync holds locking helpers shared by services.
package sync

import (
	"hash/fnv"
	"sync"
)

// DefaultShards is the shard count used when NewShardedMutex is given a
// non-positive count.
const DefaultShards = 32

// ShardedMutex serializes work per key without one global lock. Keys that
// hash to the same shard also share its lock.
type ShardedMutex struct {
	shards []sync.Mutex
}

func NewShardedMutex(shards int) *ShardedMutex {
	if shards <= 0 {
		shards = DefaultShards
	}
	return &ShardedMutex{shards: make([]sync.Mutex, shards)}
}

func (m *ShardedMutex) Lock(key string) {
	m.shards[m.shardFor(key)].Lock()
}

func (m *ShardedMutex) Unlock(key string) {
	m.shards[m.shardFor(key)].Unlock()
}

// Do runs fn while holding the lock for key.
func (m *ShardedMutex) Do(key string, fn func()) {
	m.Lock(key)
	defer m.Unlock(key)
	fn()
}

func (m *ShardedMutex) shardFor(key string) int {
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(m.shards)))
}
