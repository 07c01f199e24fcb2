package servervalidation

// ============================================================================
// 错误记录存储
// ============================================================================

// recordStore 有序的错误记录集合（非线程安全，由 Session 加锁）
// 职责：插入、删除、查询；同一身份最多一条记录
type recordStore struct {
	// records 按插入顺序保存的记录
	records []ErrorRecord

	// index 身份索引（用于幂等插入）
	index map[Identity]int
}

func newRecordStore() *recordStore {
	return &recordStore{
		records: make([]ErrorRecord, 0, 8),
		index:   make(map[Identity]int),
	}
}

// add 添加记录，身份已存在时返回 false
func (s *recordStore) add(r ErrorRecord) bool {
	if _, ok := s.index[r.Identity]; ok {
		return false
	}
	s.index[r.Identity] = len(s.records)
	s.records = append(s.records, r)
	return true
}

// get 按身份取记录
func (s *recordStore) get(id Identity) (ErrorRecord, bool) {
	i, ok := s.index[id]
	if !ok {
		return ErrorRecord{}, false
	}
	return s.records[i], true
}

// removeWhere 删除满足条件的记录，返回删除数量
func (s *recordStore) removeWhere(pred func(ErrorRecord) bool) int {
	kept := s.records[:0]
	removed := 0
	for _, r := range s.records {
		if pred(r) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	if removed == 0 {
		return 0
	}
	// 清掉尾部残留，避免旧记录被底层数组引用
	for i := len(kept); i < len(s.records); i++ {
		s.records[i] = ErrorRecord{}
	}
	s.records = kept
	s.reindex()
	return removed
}

func (s *recordStore) reindex() {
	clear(s.index)
	for i, r := range s.records {
		s.index[r.Identity] = i
	}
}

// all 返回全部记录的副本
func (s *recordStore) all() Records {
	out := make(Records, len(s.records))
	copy(out, s.records)
	return out
}

// filter 按身份与匹配方式查询
func (s *recordStore) filter(query Identity, mode MatchMode) Records {
	return filterRecords(s.records, query, mode)
}

func (s *recordStore) len() int {
	return len(s.records)
}

// clear 清空
func (s *recordStore) clear() {
	s.records = s.records[:0]
	clear(s.index)
}

// replace 整体替换（用于快照恢复），重复身份只保留第一条
func (s *recordStore) replace(records []ErrorRecord) {
	s.clear()
	for _, r := range records {
		r.Identity = r.Identity.Normalize()
		s.add(r)
	}
}
