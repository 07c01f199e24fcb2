package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	sv "katydid-common-validation/pkg/servervalidation"
)

// ============================================================================
// 诊断与协作方 HTTP 接口
// ============================================================================

// Handler 基于会话注册表的 HTTP 处理器
type Handler struct {
	registry   *sv.SessionRegistry
	logger     *zap.Logger
	jwtSecret  []byte
	handoff    sv.SnapshotStore
	handoffTTL time.Duration
}

// Option 处理器选项
type Option func(*Handler)

// WithJWTSecret 设置 HS256 密钥，非空时所有接口都要求 Bearer 令牌
func WithJWTSecret(secret string) Option {
	return func(h *Handler) {
		h.jwtSecret = []byte(secret)
	}
}

// WithHandoffStore 启用跨重定向交接接口
func WithHandoffStore(store sv.SnapshotStore, ttl time.Duration) Option {
	return func(h *Handler) {
		h.handoff = store
		h.handoffTTL = ttl
	}
}

// New 创建处理器
func New(registry *sv.SessionRegistry, logger *zap.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{registry: registry, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewRouter 创建挂载了全部路由的 gin 引擎
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog())
	h.Register(r)
	return r
}

// Register 注册路由
func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/sessions")
	if len(h.jwtSecret) > 0 {
		g.Use(bearerAuth(h.jwtSecret))
	}

	g.GET("", h.listSessions)
	g.POST("/:key/modelstate", h.applyModelState)
	g.GET("/:key/items", h.items)
	g.GET("/:key/errors", h.queryErrors)
	g.GET("/:key/stats", h.stats)
	g.POST("/:key/reset", h.reset)
	g.DELETE("/:key", h.dispose)

	if h.handoff != nil {
		g.POST("/:key/handoff", h.handoffSession)
		g.POST("/:key/claim", h.claimSession)
	}
}

func (h *Handler) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.registry.Keys()})
}

func (h *Handler) applyModelState(c *gin.Context) {
	s, err := h.registry.GetOrCreate(c.Param("key"))
	if err != nil {
		h.fail(c, err)
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := s.ApplyModelStateJSON(body, c.Query("parent")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": s.Count()})
}

func (h *Handler) items(c *gin.Context) {
	s, err := h.registry.Get(c.Param("key"))
	if err != nil {
		h.fail(c, err)
		return
	}
	items := s.Items()
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *Handler) queryErrors(c *gin.Context) {
	s, err := h.registry.Get(c.Param("key"))
	if err != nil {
		h.fail(c, err)
		return
	}

	mode, err := sv.ParseMatchMode(c.Query("match"))
	if err != nil {
		h.fail(c, err)
		return
	}
	path := c.Query("path")
	if path == "" {
		h.fail(c, sv.ErrInvalidIdentity)
		return
	}

	var found sv.Records
	if mode.IsSet() {
		found = s.GetPropertyErrorsByValidationPath(path, c.Query("culture"), c.Query("segment"), mode)
	} else {
		found = s.GetPropertyErrors(path, c.Query("culture"), c.Query("field"), c.Query("segment"))
	}
	if found == nil {
		found = sv.Records{}
	}
	c.JSON(http.StatusOK, gin.H{"valid": len(found) == 0, "errors": found})
}

func (h *Handler) stats(c *gin.Context) {
	s, err := h.registry.Get(c.Param("key"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Stats().ToMap())
}

func (h *Handler) reset(c *gin.Context) {
	s, err := h.registry.Get(c.Param("key"))
	if err != nil {
		h.fail(c, err)
		return
	}
	s.Reset()
	c.Status(http.StatusNoContent)
}

func (h *Handler) dispose(c *gin.Context) {
	if err := h.registry.Remove(c.Param("key")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handoffSession 保存会话快照，?target= 为交接键，缺省使用会话键
func (h *Handler) handoffSession(c *gin.Context) {
	s, err := h.registry.Get(c.Param("key"))
	if err != nil {
		h.fail(c, err)
		return
	}
	target := c.DefaultQuery("target", c.Param("key"))
	if err := s.Handoff(c.Request.Context(), h.handoff, target, h.handoffTTL); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"target": target, "count": s.Count()})
}

// claimSession 认领交接快照，?from= 为交接键，缺省使用会话键
func (h *Handler) claimSession(c *gin.Context) {
	s, err := h.registry.GetOrCreate(c.Param("key"))
	if err != nil {
		h.fail(c, err)
		return
	}
	from := c.DefaultQuery("from", c.Param("key"))
	claimed, err := s.Claim(c.Request.Context(), h.handoff, from)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claimed": claimed})
}

// fail 把错误映射为状态码
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sv.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, sv.ErrMaxSessionsReached):
		status = http.StatusTooManyRequests
	case errors.Is(err, sv.ErrSessionDisposed):
		status = http.StatusGone
	case errors.Is(err, sv.ErrInvalidKey),
		errors.Is(err, sv.ErrInvalidIdentity),
		errors.Is(err, sv.ErrInvalidModelState),
		errors.Is(err, sv.ErrInvalidPayload):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// accessLog 访问日志
func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
