package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"katydid-common-validation/pkg/config"
	sv "katydid-common-validation/pkg/servervalidation"
	"katydid-common-validation/pkg/servervalidation/handoff"
)

// TestFlattenCmd 测试展开命令的输出
func TestFlattenCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"Name": ["Name is required"],
		"_Properties.title.en-US.null.": ["Title is required"]
	}`), 0o600))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"flatten", "--file", path, "--parent", "page"})
	require.NoError(t, root.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var recs []sv.ErrorRecord
	for _, line := range lines {
		var rec sv.ErrorRecord
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		recs = append(recs, rec)
	}
	assert.Contains(t, recs, sv.ErrorRecord{
		Identity: sv.FieldIdentity("Name"),
		Message:  "Name is required",
	})
	assert.Contains(t, recs, sv.ErrorRecord{
		Identity: sv.PropertyIdentity("page/title", "en-US", "", ""),
		Message:  "Title is required",
	})
}

// TestFlattenCmd_Invalid 测试非法输入
func TestFlattenCmd_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(path, []byte(`["not", "an", "object"]`), 0o600))

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"flatten", "--file", path})
	assert.ErrorIs(t, root.Execute(), sv.ErrInvalidModelState)

	root = newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"flatten"})
	assert.Error(t, root.Execute())
}

// TestNewScheduler_Manual 测试 manual 模式下定时批量派发
func TestNewScheduler_Manual(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := newScheduler(ctx, config.SessionConfig{
		Dispatch:      config.DispatchManual,
		FlushInterval: 5 * time.Millisecond,
	}, zap.NewNop())
	require.IsType(t, &sv.ManualScheduler{}, sched)

	done := make(chan struct{})
	sched.Schedule(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled task was not flushed")
	}

	assert.IsType(t, sv.GoScheduler{}, newScheduler(ctx, config.SessionConfig{Dispatch: config.DispatchAsync}, zap.NewNop()))
}

// TestNewHandoffStore 测试按驱动创建交接存储
func TestNewHandoffStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeFn, err := newHandoffStore(ctx, config.HandoffConfig{Driver: config.HandoffNone}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, store)
	closeFn()

	store, closeFn, err = newHandoffStore(ctx, config.HandoffConfig{
		Driver: config.HandoffGorm,
		TTL:    time.Minute,
		Gorm:   config.GormConfig{Dialect: "sqlite", DSN: "file:TestNewHandoffStore?mode=memory&cache=shared"},
	}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, store)
	defer closeFn()

	_, err = store.LoadSnapshot(ctx, "missing")
	assert.ErrorIs(t, err, sv.ErrSnapshotNotFound)
}

// TestNewHandoffStore_MigrateFailureClosesDB 测试建表失败时关闭数据库连接
func TestNewHandoffStore_MigrateFailureClosesDB(t *testing.T) {
	var opened *gorm.DB
	newGormStore = func(db *gorm.DB) (*handoff.GormStore, error) {
		opened = db
		return nil, errors.New("migrate failed")
	}
	t.Cleanup(func() { newGormStore = handoff.NewGormStore })

	_, _, err := newHandoffStore(context.Background(), config.HandoffConfig{
		Driver: config.HandoffGorm,
		Gorm:   config.GormConfig{Dialect: "sqlite", DSN: "file:TestMigrateFailure?mode=memory&cache=shared"},
	}, zap.NewNop())
	require.Error(t, err)
	require.NotNil(t, opened)

	sqlDB, err := opened.DB()
	require.NoError(t, err)
	assert.Error(t, sqlDB.Ping(), "connection pool should be closed")
}
