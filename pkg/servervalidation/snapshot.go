package servervalidation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SnapshotVersion 当前快照格式版本
const SnapshotVersion = 1

// Snapshot 会话记录的值拷贝，用于跳转（redirect）前后交接错误
type Snapshot struct {
	Version   int       `json:"version" validate:"eq=1"`
	CreatedAt time.Time `json:"createdAt"`
	Records   Records   `json:"records" validate:"dive"`
}

// SnapshotStore 快照交接存储
// LoadSnapshot 在键不存在时返回 ErrSnapshotNotFound
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, key string, snap Snapshot, ttl time.Duration) error
	LoadSnapshot(ctx context.Context, key string) (Snapshot, error)
	DeleteSnapshot(ctx context.Context, key string) error
}

// Snapshot 获取当前记录快照
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Version:   SnapshotVersion,
		CreatedAt: time.Now().UTC(),
		Records:   s.Items(),
	}
}

// Restore 用快照替换当前记录并请求派发
func (s *Session) Restore(snap Snapshot) error {
	if err := validate.Struct(snap); err != nil {
		return fmt.Errorf("%w: snapshot: %v", ErrInvalidModelState, err)
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrSessionDisposed
	}
	s.store.replace(snap.Records)
	s.mu.Unlock()

	s.disp.request()
	return nil
}

// Handoff 把当前记录交给存储，供跳转后的页面认领
func (s *Session) Handoff(ctx context.Context, store SnapshotStore, key string, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := store.SaveSnapshot(ctx, key, s.Snapshot(), ttl); err != nil {
		return fmt.Errorf("handoff %s: %w", key, err)
	}
	return nil
}

// Claim 认领跳转前交接的记录：恢复、删除存储中的快照，然后派发一轮并清空
// 没有可认领的快照时返回 false
func (s *Session) Claim(ctx context.Context, store SnapshotStore, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	snap, err := store.LoadSnapshot(ctx, key)
	if errors.Is(err, ErrSnapshotNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}

	if err := validate.Struct(snap); err != nil {
		return false, fmt.Errorf("%w: snapshot: %v", ErrInvalidModelState, err)
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return false, ErrSessionDisposed
	}
	s.store.replace(snap.Records)
	s.mu.Unlock()

	if err := store.DeleteSnapshot(ctx, key); err != nil {
		return true, fmt.Errorf("claim %s: %w", key, err)
	}

	s.NotifyAndClear()
	return true, nil
}
