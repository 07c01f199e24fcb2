package handoff

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sv "katydid-common-validation/pkg/servervalidation"
)

func sampleSnapshot(t *testing.T) sv.Snapshot {
	t.Helper()
	s := sv.NewSession(sv.WithScheduler(sv.NewManualScheduler()))
	require.NoError(t, s.AddPropertyError("title", "en-US", "", "Required", ""))
	require.NoError(t, s.AddFieldError("Name", "Name is required"))
	return s.Snapshot()
}

// exerciseStore 所有存储共用的行为测试
func exerciseStore(t *testing.T, store sv.SnapshotStore) {
	t.Helper()
	ctx := context.Background()
	snap := sampleSnapshot(t)

	_, err := store.LoadSnapshot(ctx, "missing")
	assert.ErrorIs(t, err, sv.ErrSnapshotNotFound)

	require.NoError(t, store.SaveSnapshot(ctx, "content:1", snap, time.Hour))
	got, err := store.LoadSnapshot(ctx, "content:1")
	require.NoError(t, err)
	assert.Equal(t, snap.Version, got.Version)
	assert.Equal(t, snap.Records, got.Records)

	// 同键覆盖
	snap.Records = snap.Records[:1]
	require.NoError(t, store.SaveSnapshot(ctx, "content:1", snap, time.Hour))
	got, err = store.LoadSnapshot(ctx, "content:1")
	require.NoError(t, err)
	assert.Len(t, got.Records, 1)

	require.NoError(t, store.DeleteSnapshot(ctx, "content:1"))
	_, err = store.LoadSnapshot(ctx, "content:1")
	assert.ErrorIs(t, err, sv.ErrSnapshotNotFound)
}

// TestMemoryStore 测试进程内存储
func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

// TestMemoryStore_Expiry 测试过期
func TestMemoryStore_Expiry(t *testing.T) {
	m := NewMemoryStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.SaveSnapshot(context.Background(), "k", sampleSnapshot(t), time.Minute))
	now = now.Add(2 * time.Minute)
	_, err := m.LoadSnapshot(context.Background(), "k")
	assert.ErrorIs(t, err, sv.ErrSnapshotNotFound)
}

// TestGormStore 使用内存 sqlite 测试数据库存储
func TestGormStore(t *testing.T) {
	db, err := OpenGorm(DialectSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)

	store, err := NewGormStore(db)
	require.NoError(t, err)
	exerciseStore(t, store)
}

// TestGormStore_Expiry 测试数据库存储的过期与清理
func TestGormStore_Expiry(t *testing.T) {
	db, err := OpenGorm(DialectSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	store, err := NewGormStore(db)
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.SaveSnapshot(ctx, "expiring", sampleSnapshot(t), time.Hour))
	require.NoError(t, store.SaveSnapshot(ctx, "forever", sampleSnapshot(t), 0))

	now = now.Add(2 * time.Hour)
	_, err = store.LoadSnapshot(ctx, "expiring")
	assert.ErrorIs(t, err, sv.ErrSnapshotNotFound)
	_, err = store.LoadSnapshot(ctx, "forever")
	assert.NoError(t, err)

	purged, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

// TestOpenGorm_UnknownDialect 测试未知方言
func TestOpenGorm_UnknownDialect(t *testing.T) {
	_, err := OpenGorm("oracle", "")
	assert.Error(t, err)
}

// TestRedisStore 需要 REDIS_ADDR 指向可用的 redis
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())

	exerciseStore(t, NewRedisStore(client, fmt.Sprintf("test:%d:", time.Now().UnixNano())))
}

// TestSession_ClaimThroughMemoryStore 测试会话通过存储完成交接
func TestSession_ClaimThroughMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	before := sv.NewSession(sv.WithScheduler(sv.NewManualScheduler()))
	require.NoError(t, before.AddPropertyError("title", "", "", "Required", ""))
	require.NoError(t, before.Handoff(ctx, store, "content:42", time.Minute))

	sched := sv.NewManualScheduler()
	after := sv.NewSession(sv.WithScheduler(sched))
	var valid []bool
	_, err := after.Subscribe(sv.PropertyIdentity("title", "", "", ""), func(n sv.Notification) {
		valid = append(valid, n.Valid)
	})
	require.NoError(t, err)

	ok, err := after.Claim(ctx, store, "content:42")
	require.NoError(t, err)
	require.True(t, ok)
	sched.RunPending()

	assert.Equal(t, []bool{true, false}, valid)
}
