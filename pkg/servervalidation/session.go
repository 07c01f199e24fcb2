package servervalidation

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ============================================================================
// 验证会话（对外门面）
// ============================================================================

// validate 参数校验器（并发安全，全局复用）
var validate = validator.New()

// Option 会话选项
type Option func(*Session)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithScheduler 设置派发调度器
func WithScheduler(scheduler Scheduler) Option {
	return func(s *Session) {
		if scheduler != nil {
			s.scheduler = scheduler
		}
	}
}

// Session 一个编辑表单的服务端验证状态
// 职责：维护错误记录与订阅，记录变化后在下一拍通知订阅者
//
// 同一会话的所有回调（派发、Subscribe 的首次回调、Reset 的通知）串行执行，互不重叠，执行期间不持有会话锁。
// 没有投递在进行时回调在调用方协程中同步执行；否则排在进行中的投递之后，由执行它的协程完成。
// 回调内再调用 Add*/Remove*/Reset/Clear 不被禁止但不推荐：
// 写入与删除在当前派发结束后再派发一轮；Reset 与 Clear 使当前派发立即停止。
type Session struct {
	mu         sync.RWMutex
	store      *recordStore
	subs       *subscriptionRegistry
	disp       *dispatcher
	deliveries *deliveryQueue
	scheduler  Scheduler
	logger     *zap.Logger
	stats      *Stats

	// gen Reset/Clear/Dispose 时递增，旧一代的派发不再继续
	gen uint64

	// claimed NotifyAndClear 清空前的记录，供下一轮派发使用
	claimed Records

	disposed bool
}

// NewSession 创建验证会话
func NewSession(opts ...Option) *Session {
	s := &Session{
		store:      newRecordStore(),
		subs:       newSubscriptionRegistry(),
		deliveries: newDeliveryQueue(),
		scheduler:  GoScheduler{},
		logger:     zap.NewNop(),
		stats:      &Stats{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.disp = newDispatcher(s.scheduler, s.runPass)
	return s
}

// ============================================================================
// 写入
// ============================================================================

// AddFieldError 记录原生字段错误（幂等）
func (s *Session) AddFieldError(fieldName, message string) error {
	if fieldName == "" {
		return fmt.Errorf("%w: field name is required", ErrInvalidIdentity)
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrSessionDisposed
	}
	added := s.addLocked(ErrorRecord{Identity: FieldIdentity(fieldName), Message: trimMessage(message)})
	s.mu.Unlock()

	if added {
		s.disp.request()
	}
	return nil
}

// AddPropertyError 记录属性错误（幂等）
// 消息是 JSON 数组时按嵌套载荷展开，子错误以 propertyPath 为根递归加入，本记录消息置空
func (s *Session) AddPropertyError(propertyPath, culture, fieldName, message, segment string) error {
	if propertyPath == "" {
		return fmt.Errorf("%w: property path is required", ErrInvalidIdentity)
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrSessionDisposed
	}
	s.addPropertyLocked(PropertyIdentity(propertyPath, culture, segment, fieldName), message)
	s.mu.Unlock()

	s.disp.request()
	return nil
}

// AddErrorsForModelState 应用一份完整的服务端模型状态
// parentPath 非空时作为属性路径前缀；所有键先解析，任何键非法则不写入任何记录
func (s *Session) AddErrorsForModelState(ms ModelState, parentPath string) error {
	if ms == nil {
		return fmt.Errorf("%w: model state is nil", ErrInvalidModelState)
	}

	keys := ms.sortedKeys()
	parsed := make([]ModelStateKey, len(keys))
	for i, k := range keys {
		key, err := ParseModelStateKey(k)
		if err != nil {
			return err
		}
		parsed[i] = key
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrSessionDisposed
	}
	for i, k := range keys {
		s.applyKeyLocked(parsed[i], ms[k].First(), parentPath)
	}
	s.mu.Unlock()

	s.logger.Debug("model state applied",
		zap.Int("keys", len(keys)),
		zap.String("parent_path", parentPath))

	s.disp.request()
	return nil
}

// ApplyModelStateJSON 解码并应用服务端模型状态 JSON
func (s *Session) ApplyModelStateJSON(data []byte, parentPath string) error {
	ms, err := DecodeModelState(data)
	if err != nil {
		return err
	}
	return s.AddErrorsForModelState(ms, parentPath)
}

func (s *Session) applyKeyLocked(key ModelStateKey, message, parentPath string) {
	switch k := key.(type) {
	case FieldKey:
		s.addLocked(ErrorRecord{Identity: FieldIdentity(k.Name), Message: trimMessage(message)})
	case PropertyKey:
		s.addPropertyLocked(k.Identity(parentPath), message)
	}
}

// addPropertyLocked 写入属性记录，必要时展开嵌套载荷
func (s *Session) addPropertyLocked(id Identity, message string) {
	msg := trimMessage(message)

	if IsComplexPayload(msg) {
		nested, err := ParseComplexError([]byte(msg), id.PropertyPath)
		if err != nil {
			// 无法解析时按字面消息保存，属性仍然标记为无效
			s.logger.Warn("nested validation payload not parseable",
				zap.String("property_path", id.PropertyPath),
				zap.Error(err))
		} else {
			for _, n := range nested {
				s.applyNestedLocked(n)
			}
			msg = ""
		}
	}

	s.addLocked(ErrorRecord{Identity: id, Message: msg})
}

// applyNestedLocked 嵌套模型状态中的非法键被跳过
func (s *Session) applyNestedLocked(n NestedValidation) {
	for _, k := range n.ModelState.sortedKeys() {
		key, err := ParseModelStateKey(k)
		if err != nil {
			s.logger.Debug("skip nested model state key",
				zap.String("validation_path", n.ValidationPath),
				zap.String("key", k))
			continue
		}
		s.applyKeyLocked(key, n.ModelState[k].First(), n.ValidationPath)
	}
}

func (s *Session) addLocked(r ErrorRecord) bool {
	if !s.store.add(r) {
		s.stats.DuplicatesIgnored.Add(1)
		return false
	}
	s.stats.RecordsAdded.Add(1)
	return true
}

// ============================================================================
// 删除
// ============================================================================

// RemovePropertyError 删除匹配的属性记录，确有删除时才派发
func (s *Session) RemovePropertyError(propertyPath, culture, fieldName, segment string, mode MatchMode) (int, error) {
	if propertyPath == "" {
		return 0, fmt.Errorf("%w: property path is required", ErrInvalidIdentity)
	}
	query := PropertyIdentity(propertyPath, culture, segment, fieldName)
	return s.removeWhere(func(r ErrorRecord) bool {
		return !r.IsField() && Matches(r, query, mode)
	})
}

// RemoveFieldError 删除原生字段记录
func (s *Session) RemoveFieldError(fieldName string) (int, error) {
	if fieldName == "" {
		return 0, fmt.Errorf("%w: field name is required", ErrInvalidIdentity)
	}
	return s.removeWhere(func(r ErrorRecord) bool {
		return r.IsField() && r.FieldName == fieldName
	})
}

func (s *Session) removeWhere(pred func(ErrorRecord) bool) (int, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return 0, ErrSessionDisposed
	}
	removed := s.store.removeWhere(pred)
	s.mu.Unlock()

	if removed > 0 {
		s.stats.RecordsRemoved.Add(uint64(removed))
		s.disp.request()
	}
	return removed, nil
}

// Reset 清空记录并通知所有订阅者"已有效"（表单提交成功后使用）
// 进行中的派发不再继续，其余订阅者只会收到本次的有效通知
func (s *Session) Reset() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.clearLocked()
	gen := s.gen
	s.mu.Unlock()

	s.deliveries.run(func() {
		s.mu.RLock()
		subs := s.subs.snapshot()
		s.mu.RUnlock()
		s.deliver(subs, Records{}, gen)
	})
}

// Clear 清空记录但不通知（随后会重新填充）
func (s *Session) Clear() {
	s.mu.Lock()
	s.clearLocked()
	s.mu.Unlock()
}

// clearLocked 清空记录，丢弃待派发请求并使进行中的派发失效
func (s *Session) clearLocked() {
	s.stats.RecordsRemoved.Add(uint64(s.store.len()))
	s.store.clear()
	s.claimed = nil
	s.gen++
	s.disp.cancel()
}

// ============================================================================
// 订阅
// ============================================================================

// Subscribe 登记订阅，并以当前状态回调一次（有投递进行中时排在其后）
// 返回的函数取消本订阅，可重复调用，也可在回调内调用
func (s *Session) Subscribe(identity Identity, cb Callback, opts ...SubscribeOptions) (func(), error) {
	if cb == nil {
		return nil, ErrNilCallback
	}

	var opt SubscribeOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	if err := validate.Struct(opt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}

	identity = identity.Normalize()
	if opt.Match.IsSet() && identity.PropertyPath == "" {
		return nil, fmt.Errorf("%w: match mode %s needs a property path", ErrInvalidIdentity, opt.Match)
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, ErrSessionDisposed
	}
	sub := s.subs.add(identity, opt.Match, cb)
	s.mu.Unlock()

	// 首次回调使用投递时的记录
	s.deliveries.run(func() {
		s.mu.RLock()
		alive := s.subs.alive(sub.id)
		all := s.store.all()
		s.mu.RUnlock()
		if alive {
			s.invoke(sub, sub.notification(all))
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.subs.removeByID(sub.id)
			s.mu.Unlock()
		})
	}, nil
}

// Unsubscribe 删除身份完全相等的全部订阅（整个编辑器卸载时使用）
func (s *Session) Unsubscribe(identity Identity) int {
	identity = identity.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs.removeIdentity(identity)
}

// SubscriptionCount 当前订阅数量
func (s *Session) SubscriptionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subs.len()
}

// ============================================================================
// 派发
// ============================================================================

// NotifyAll 请求一次派发（下一拍执行）
func (s *Session) NotifyAll() {
	s.disp.request()
}

// NotifyAndClear 以当前记录派发一轮后丢弃记录
// 记录立即清空，派发仍在下一拍执行并看到清空前的记录（路由跳转后让新挂载的控件认领错误）
func (s *Session) NotifyAndClear() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.claimed = append(s.claimed, s.store.all()...)
	s.store.clear()
	s.mu.Unlock()

	s.disp.request()
}

// WaitIdle 等待直到没有待执行或执行中的派发与投递
func (s *Session) WaitIdle(ctx context.Context) error {
	for {
		if err := s.disp.wait(ctx); err != nil {
			return err
		}
		if err := s.deliveries.wait(ctx); err != nil {
			return err
		}
		// 回调可能又请求了派发
		if s.disp.isIdle() && s.deliveries.isIdle() {
			return nil
		}
	}
}

// runPass 执行一轮派发
func (s *Session) runPass() {
	s.deliveries.run(s.passJob)
}

// passJob 在投递队列中取记录与订阅快照并逐个回调
func (s *Session) passJob() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	all := s.claimed
	s.claimed = nil
	if all == nil {
		all = s.store.all()
	}
	subs := s.subs.snapshot()
	gen := s.gen
	s.mu.Unlock()

	s.stats.DispatchPasses.Add(1)
	s.logger.Debug("dispatch pass",
		zap.Int("subscriptions", len(subs)),
		zap.Int("records", len(all)))

	s.deliver(subs, all, gen)
}

// deliver 逐个回调，跳过派发中途已取消的订阅
// 会话在派发中途被 Reset/Clear/Dispose 时停止
func (s *Session) deliver(subs []*subscription, all Records, gen uint64) {
	for _, sub := range subs {
		s.mu.RLock()
		stale := s.gen != gen
		alive := s.subs.alive(sub.id)
		s.mu.RUnlock()
		if stale {
			s.logger.Debug("dispatch pass superseded", zap.Int("records", len(all)))
			return
		}
		if !alive {
			continue
		}
		s.invoke(sub, sub.notification(all))
	}
}

// invoke 安全执行回调（捕获 panic，避免单个订阅者影响其他订阅者）
func (s *Session) invoke(sub *subscription, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			s.stats.CallbacksPanicked.Add(1)
			s.logger.Error("validation subscriber panicked",
				zap.String("subscription", sub.id),
				zap.Stringer("identity", sub.identity),
				zap.Any("panic", r))
		}
	}()

	s.stats.CallbacksInvoked.Add(1)
	sub.callback(n)
}

// ============================================================================
// 查询（同步、无副作用）
// ============================================================================

// Items 当前全部记录的只读副本
func (s *Session) Items() Records {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.all()
}

// Count 记录数量
func (s *Session) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.len()
}

// HasErrors 是否存在任何记录
func (s *Session) HasErrors() bool {
	return s.Count() > 0
}

func (s *Session) query(id Identity, mode MatchMode) Records {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.filter(id, mode)
}

// GetPropertyErrors 精确路径查询；fieldName 为空时匹配该属性的所有字段
func (s *Session) GetPropertyErrors(propertyPath, culture, fieldName, segment string) Records {
	if propertyPath == "" {
		return nil
	}
	return s.query(PropertyIdentity(propertyPath, culture, segment, fieldName), MatchUnset)
}

// GetPropertyError 返回第一条匹配的属性记录
func (s *Session) GetPropertyError(propertyPath, culture, fieldName, segment string) (ErrorRecord, bool) {
	errs := s.GetPropertyErrors(propertyPath, culture, fieldName, segment)
	if len(errs) == 0 {
		return ErrorRecord{}, false
	}
	return errs[0], true
}

// HasPropertyError 是否存在匹配的属性记录
func (s *Session) HasPropertyError(propertyPath, culture, fieldName, segment string) bool {
	_, ok := s.GetPropertyError(propertyPath, culture, fieldName, segment)
	return ok
}

// GetFieldErrors 原生字段记录
func (s *Session) GetFieldErrors(fieldName string) Records {
	if fieldName == "" {
		return nil
	}
	return s.query(FieldIdentity(fieldName), MatchUnset)
}

// GetFieldError 返回原生字段记录
func (s *Session) GetFieldError(fieldName string) (ErrorRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.get(FieldIdentity(fieldName))
}

// HasFieldError 是否存在原生字段记录
func (s *Session) HasFieldError(fieldName string) bool {
	_, ok := s.GetFieldError(fieldName)
	return ok
}

// GetVariantErrors 指定语言与分段下的全部属性记录
func (s *Session) GetVariantErrors(culture, segment string) Records {
	culture = normalizeCulture(culture)
	segment = normalizeSegment(segment)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out Records
	for _, r := range s.store.records {
		if !r.IsField() && r.Culture == culture && r.Segment == segment {
			out = append(out, r)
		}
	}
	return out
}

// HasVariantError 指定语言与分段下是否有属性记录
func (s *Session) HasVariantError(culture, segment string) bool {
	return len(s.GetVariantErrors(culture, segment)) > 0
}

// GetPropertyErrorsByValidationPath 层级查询，嵌套编辑器用来发现后代错误
// mode 未指定时按 MatchExact（忽略字段名）
func (s *Session) GetPropertyErrorsByValidationPath(propertyPath, culture, segment string, mode MatchMode) Records {
	if propertyPath == "" {
		return nil
	}
	if !mode.IsSet() {
		mode = MatchExact
	}
	return s.query(PropertyIdentity(propertyPath, culture, segment, ""), mode)
}

// Stats 运行指标
func (s *Session) Stats() *Stats {
	return s.stats.Snapshot()
}

// ============================================================================
// 生命周期
// ============================================================================

// Dispose 释放会话：丢弃所有记录与订阅，之后的写入返回 ErrSessionDisposed
func (s *Session) Dispose() {
	s.mu.Lock()
	s.disposed = true
	s.clearLocked()
	s.subs.clear()
	s.mu.Unlock()
}

// Disposed 是否已释放
func (s *Session) Disposed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disposed
}
