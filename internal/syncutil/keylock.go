// Package syncutil holds the per-transaction lock used to queue concurrent
// mutations of the same escrow inside one process.
package syncutil

import (
	"context"
	"hash/fnv"
)

// DefaultShards is the shard count used by NewContextShardedMutex(0).
const DefaultShards = 256

// ContextShardedMutex is a fixed pool of channel-backed mutexes selected by
// key hash. Waiters give up when their context is done. Distinct keys may
// share a shard; that only costs throughput, never correctness.
type ContextShardedMutex struct {
	shards []chan struct{}
}

// NewContextShardedMutex creates a mutex pool with n shards.
func NewContextShardedMutex(n int) *ContextShardedMutex {
	if n <= 0 {
		n = DefaultShards
	}
	m := &ContextShardedMutex{shards: make([]chan struct{}, n)}
	for i := range m.shards {
		m.shards[i] = make(chan struct{}, 1)
		m.shards[i] <- struct{}{}
	}
	return m
}

// LockContext blocks until the shard for key is free or ctx is done.
// On success the returned func releases the lock and must be called once.
func (m *ContextShardedMutex) LockContext(ctx context.Context, key string) (func(), error) {
	ch := m.shards[m.index(key)]
	select {
	case <-ch:
		return func() { ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryLock acquires the shard for key without waiting.
func (m *ContextShardedMutex) TryLock(key string) (func(), bool) {
	ch := m.shards[m.index(key)]
	select {
	case <-ch:
		return func() { ch <- struct{}{} }, true
	default:
		return nil, false
	}
}

func (m *ContextShardedMutex) index(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(m.shards)))
}
