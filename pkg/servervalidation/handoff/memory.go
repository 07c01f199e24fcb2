package handoff

import (
	"context"
	"sync"
	"time"

	sv "katydid-common-validation/pkg/servervalidation"
)

type memoryEntry struct {
	snap      sv.Snapshot
	expiresAt time.Time
}

// MemoryStore 进程内快照存储（单实例部署与开发环境）
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore 创建进程内存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// SaveSnapshot 实现 servervalidation.SnapshotStore
func (m *MemoryStore) SaveSnapshot(_ context.Context, key string, snap sv.Snapshot, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{snap: snap}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

// LoadSnapshot 实现 servervalidation.SnapshotStore
func (m *MemoryStore) LoadSnapshot(_ context.Context, key string) (sv.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return sv.Snapshot{}, sv.ErrSnapshotNotFound
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return sv.Snapshot{}, sv.ErrSnapshotNotFound
	}
	return e.snap, nil
}

// DeleteSnapshot 实现 servervalidation.SnapshotStore
func (m *MemoryStore) DeleteSnapshot(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
