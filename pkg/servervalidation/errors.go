package servervalidation

import "errors"

var (
	// ErrInvalidIdentity 身份字段缺失或非法（调用方的契约错误）
	ErrInvalidIdentity = errors.New("invalid validation identity")

	// ErrInvalidModelState 模型状态不是对象或为nil
	ErrInvalidModelState = errors.New("invalid model state")

	// ErrInvalidPayload 嵌套错误载荷无法解析
	ErrInvalidPayload = errors.New("invalid nested validation payload")

	// ErrNilCallback 订阅回调为nil
	ErrNilCallback = errors.New("subscription callback cannot be nil")

	// ErrSessionDisposed 会话已释放
	ErrSessionDisposed = errors.New("validation session disposed")

	// ErrSessionNotFound 会话未找到
	ErrSessionNotFound = errors.New("validation session not found")

	// ErrSessionExists 会话已存在
	ErrSessionExists = errors.New("validation session already exists")

	// ErrInvalidKey 无效的会话键
	ErrInvalidKey = errors.New("invalid session key")

	// ErrMaxSessionsReached 达到最大会话数量
	ErrMaxSessionsReached = errors.New("maximum number of sessions reached")

	// ErrSnapshotNotFound 交接存储中没有对应快照
	ErrSnapshotNotFound = errors.New("validation snapshot not found")
)
