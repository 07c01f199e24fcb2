package servervalidation

import "sync/atomic"

// Stats 会话运行指标（只负责计数）
type Stats struct {
	RecordsAdded      atomic.Uint64 // 新增记录数
	DuplicatesIgnored atomic.Uint64 // 幂等忽略的重复记录数
	RecordsRemoved    atomic.Uint64 // 删除记录数
	DispatchPasses    atomic.Uint64 // 派发轮数
	CallbacksInvoked  atomic.Uint64 // 回调调用次数
	CallbacksPanicked atomic.Uint64 // 回调 panic 次数
}

// Snapshot 获取指标快照
func (s *Stats) Snapshot() *Stats {
	out := &Stats{}
	if s == nil {
		return out
	}
	out.RecordsAdded.Store(s.RecordsAdded.Load())
	out.DuplicatesIgnored.Store(s.DuplicatesIgnored.Load())
	out.RecordsRemoved.Store(s.RecordsRemoved.Load())
	out.DispatchPasses.Store(s.DispatchPasses.Load())
	out.CallbacksInvoked.Store(s.CallbacksInvoked.Load())
	out.CallbacksPanicked.Store(s.CallbacksPanicked.Load())
	return out
}

// ToMap 转换为 map（便于序列化和展示）
func (s *Stats) ToMap() map[string]uint64 {
	if s == nil {
		return map[string]uint64{}
	}
	return map[string]uint64{
		"records_added":      s.RecordsAdded.Load(),
		"duplicates_ignored": s.DuplicatesIgnored.Load(),
		"records_removed":    s.RecordsRemoved.Load(),
		"dispatch_passes":    s.DispatchPasses.Load(),
		"callbacks_invoked":  s.CallbacksInvoked.Load(),
		"callbacks_panicked": s.CallbacksPanicked.Load(),
	}
}
