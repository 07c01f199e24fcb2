package servervalidation

import (
	"github.com/google/uuid"
)

// ============================================================================
// 订阅
// ============================================================================

// Notification 一次回调收到的验证状态
type Notification struct {
	// Valid 匹配记录为空时为 true
	Valid bool
	// Matched 匹配本订阅的记录
	Matched Records
	// All 当前全部记录
	All Records
	// Culture / Segment 订阅的语言与分段
	Culture string
	Segment string
}

// Callback 订阅回调
type Callback func(Notification)

// SubscribeOptions 订阅选项
type SubscribeOptions struct {
	// Match 层级匹配方式
	Match MatchMode `validate:"gte=0,lte=4"`
}

// subscription 一个订阅登记
type subscription struct {
	id       string
	identity Identity
	mode     MatchMode
	callback Callback
}

// subscriptionRegistry 有序的订阅集合（非线程安全，由 Session 加锁）
type subscriptionRegistry struct {
	subs []*subscription
	byID map[string]*subscription
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{
		subs: make([]*subscription, 0, 8),
		byID: make(map[string]*subscription),
	}
}

// add 登记订阅并返回订阅
func (r *subscriptionRegistry) add(identity Identity, mode MatchMode, cb Callback) *subscription {
	sub := &subscription{
		id:       uuid.NewString(),
		identity: identity,
		mode:     mode,
		callback: cb,
	}
	r.subs = append(r.subs, sub)
	r.byID[sub.id] = sub
	return sub
}

// alive 订阅是否仍然登记
func (r *subscriptionRegistry) alive(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// removeByID 按订阅ID删除
func (r *subscriptionRegistry) removeByID(id string) bool {
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	for i, s := range r.subs {
		if s.id == id {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			break
		}
	}
	return true
}

// removeIdentity 删除身份完全相等的全部订阅，返回删除数量
func (r *subscriptionRegistry) removeIdentity(identity Identity) int {
	kept := r.subs[:0]
	removed := 0
	for _, s := range r.subs {
		if s.identity == identity {
			delete(r.byID, s.id)
			removed++
			continue
		}
		kept = append(kept, s)
	}
	for i := len(kept); i < len(r.subs); i++ {
		r.subs[i] = nil
	}
	r.subs = kept
	return removed
}

// snapshot 返回当前订阅列表的副本，派发时遍历副本
func (r *subscriptionRegistry) snapshot() []*subscription {
	out := make([]*subscription, len(r.subs))
	copy(out, r.subs)
	return out
}

func (r *subscriptionRegistry) len() int {
	return len(r.subs)
}

func (r *subscriptionRegistry) clear() {
	for i := range r.subs {
		r.subs[i] = nil
	}
	r.subs = r.subs[:0]
	clear(r.byID)
}

// notification 计算订阅在给定记录集上的状态
func (s *subscription) notification(all Records) Notification {
	matched := filterRecords(all, s.identity, s.mode)
	if matched == nil {
		matched = Records{}
	}
	return Notification{
		Valid:   len(matched) == 0,
		Matched: matched,
		All:     all,
		Culture: s.identity.Culture,
		Segment: s.identity.Segment,
	}
}
