package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	sv "katydid-common-validation/pkg/servervalidation"
)

// DefaultKeyPrefix redis 键前缀
const DefaultKeyPrefix = "validation:handoff:"

// RedisStore 基于 redis 的快照交接存储
// 适用于多实例部署：跳转后的请求可能落到另一台机器
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore 创建 redis 存储，prefix 为空时使用 DefaultKeyPrefix
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

// SaveSnapshot 实现 servervalidation.SnapshotStore，ttl<=0 表示不过期
func (s *RedisStore) SaveSnapshot(ctx context.Context, key string, snap sv.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, s.key(key), data, ttl).Err()
}

// LoadSnapshot 实现 servervalidation.SnapshotStore
func (s *RedisStore) LoadSnapshot(ctx context.Context, key string) (sv.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return sv.Snapshot{}, sv.ErrSnapshotNotFound
	}
	if err != nil {
		return sv.Snapshot{}, err
	}

	var snap sv.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return sv.Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// DeleteSnapshot 实现 servervalidation.SnapshotStore
func (s *RedisStore) DeleteSnapshot(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}
