package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "validationd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// TestLoad_Defaults 测试默认值
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 1000, cfg.Session.MaxSessions)
	assert.Equal(t, DispatchAsync, cfg.Session.Dispatch)
	assert.Equal(t, HandoffNone, cfg.Handoff.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Handoff.TTL)
}

// TestLoad_File 测试读取 yaml 文件
func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  mode: debug
log:
  level: debug
  format: console
session:
  max_sessions: 50
handoff:
  driver: gorm
  ttl: 30s
  gorm:
    dialect: sqlite
    dsn: "file:handoff.db"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 50, cfg.Session.MaxSessions)
	assert.Equal(t, HandoffGorm, cfg.Handoff.Driver)
	assert.Equal(t, 30*time.Second, cfg.Handoff.TTL)
	assert.Equal(t, "file:handoff.db", cfg.Handoff.Gorm.DSN)
}

// TestLoad_Env 测试环境变量覆盖
func TestLoad_Env(t *testing.T) {
	t.Setenv("VALIDATIOND_SERVER_ADDR", ":7070")
	t.Setenv("VALIDATIOND_SESSION_DISPATCH", "manual")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, DispatchManual, cfg.Session.Dispatch)
}

// TestLoad_Invalid 测试非法配置
func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "handoff:\n  driver: etcd\n"},
		{"redis without addr", "handoff:\n  driver: redis\n"},
		{"gorm without dsn", "handoff:\n  driver: gorm\n"},
		{"bad dialect", "handoff:\n  gorm:\n    dialect: oracle\n"},
		{"zero sessions", "session:\n  max_sessions: 0\n"},
		{"bad log level", "log:\n  level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
