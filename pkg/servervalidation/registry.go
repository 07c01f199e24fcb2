package servervalidation

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	"go.uber.org/zap"
)

const (
	// defaultMaxSessions 默认最大会话数量
	// 说明：每个打开的编辑表单一个会话，限制数量防止泄漏
	defaultMaxSessions = 1000

	// absoluteMaxSessions 绝对最大会话数量（硬性上限）
	absoluteMaxSessions = 100_000

	// maxKeyLength 键的最大长度
	maxKeyLength = 256
)

// keyFormatRegex 键的合法字符：字母、数字、下划线、连字符、点、冒号
var keyFormatRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-.:]+$`)

// SessionRegistry 表单键 -> 验证会话
// 每个编辑表单拥有自己的会话，而不是共享一个全局实例
type SessionRegistry struct {
	sessions    map[string]*Session
	maxSessions int
	opts        []Option
	logger      *zap.Logger
	mu          sync.RWMutex
}

var (
	// defaultRegistry 进程级默认注册表
	defaultRegistry *SessionRegistry

	// registryOnce 确保默认注册表只初始化一次
	registryOnce sync.Once
)

// DefaultRegistry 获取进程级默认注册表
func DefaultRegistry() *SessionRegistry {
	registryOnce.Do(func() {
		defaultRegistry = NewSessionRegistry(zap.NewNop())
	})
	return defaultRegistry
}

// NewSessionRegistry 创建注册表，opts 作用于注册表创建的每个会话
func NewSessionRegistry(logger *zap.Logger, opts ...Option) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRegistry{
		sessions:    make(map[string]*Session),
		maxSessions: defaultMaxSessions,
		opts:        append([]Option{WithLogger(logger)}, opts...),
		logger:      logger,
	}
}

// Create 创建并登记新会话
func (r *SessionRegistry) Create(key string) (*Session, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[key]; exists {
		return nil, fmt.Errorf("%w: key '%s'", ErrSessionExists, key)
	}
	return r.createLocked(key)
}

// Get 获取已登记的会话
func (r *SessionRegistry) Get(key string) (*Session, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.sessions[key]
	if !exists {
		return nil, fmt.Errorf("%w: key '%s'", ErrSessionNotFound, key)
	}
	return s, nil
}

// GetOrCreate 获取会话，不存在则创建
func (r *SessionRegistry) GetOrCreate(key string) (*Session, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, exists := r.sessions[key]; exists {
		return s, nil
	}
	return r.createLocked(key)
}

func (r *SessionRegistry) createLocked(key string) (*Session, error) {
	if len(r.sessions) >= r.maxSessions {
		return nil, fmt.Errorf("%w: current %d, max %d",
			ErrMaxSessionsReached, len(r.sessions), r.maxSessions)
	}

	s := NewSession(r.opts...)
	r.sessions[key] = s

	r.logger.Debug("validation session created", zap.String("key", key))
	return s, nil
}

// Remove 移除并释放会话
func (r *SessionRegistry) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	r.mu.Lock()
	s, exists := r.sessions[key]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: key '%s'", ErrSessionNotFound, key)
	}
	delete(r.sessions, key)
	r.mu.Unlock()

	s.Dispose()

	r.logger.Debug("validation session removed", zap.String("key", key))
	return nil
}

// Keys 列出所有会话键（已排序）
func (r *SessionRegistry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.sessions))
	for key := range r.sessions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len 会话数量
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SetMaxSessions 设置最大会话数量
func (r *SessionRegistry) SetMaxSessions(max int) error {
	if max <= 0 {
		return fmt.Errorf("max sessions must be positive, got %d", max)
	}
	if max > absoluteMaxSessions {
		return fmt.Errorf("max sessions cannot exceed absolute limit %d, got %d",
			absoluteMaxSessions, max)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) > max {
		return fmt.Errorf("current session count %d exceeds new max %d", len(r.sessions), max)
	}
	r.maxSessions = max
	return nil
}

// Close 释放全部会话
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Dispose()
	}
}

// validateKey 验证键的有效性
func validateKey(key string) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	if len(key) > maxKeyLength {
		return fmt.Errorf("%w: key too long (max %d), got %d", ErrInvalidKey, maxKeyLength, len(key))
	}
	if !keyFormatRegex.MatchString(key) {
		return fmt.Errorf("%w: key '%s' contains invalid characters", ErrInvalidKey, key)
	}
	return nil
}
